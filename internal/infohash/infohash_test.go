package infohash_test

import (
	"testing"

	"github.com/cenkalti/remotetorrent/internal/infohash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	b := make([]byte, infohash.Length)
	for i := range b {
		b[i] = byte(i)
	}
	ih, err := infohash.Parse(b)
	require.NoError(t, err)
	assert.Equal(t, "000102030405060708090a0b0c0d0e0f10111213", ih.String())
	assert.Equal(t, "000102030405060708090a0b0c0d0e0f10111213.torrent", ih.Filename())
}

func TestParseInvalidLength(t *testing.T) {
	_, err := infohash.Parse([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestMustParsePanics(t *testing.T) {
	assert.Panics(t, func() {
		infohash.MustParse([]byte{1, 2, 3})
	})
}

func TestEquality(t *testing.T) {
	a := infohash.MustParse(make([]byte, infohash.Length))
	b := infohash.MustParse(make([]byte, infohash.Length))
	assert.Equal(t, a, b)
	assert.True(t, a == b)

	m := map[infohash.Infohash]int{a: 1}
	m[b]++
	assert.Equal(t, 2, m[a])
}
