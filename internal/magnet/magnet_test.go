package magnet_test

import (
	"testing"

	"github.com/cenkalti/remotetorrent/internal/infohash"
	"github.com/cenkalti/remotetorrent/internal/magnet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOmitsSentinelTrackers(t *testing.T) {
	ih := infohash.MustParse(make([]byte, 20))
	uri := magnet.New(ih, []string{"DHT"})
	assert.Equal(t, "magnet:?xt=urn:btih:"+ih.String(), uri)
}

func TestNewAppendsEncodedTrackers(t *testing.T) {
	ih := infohash.MustParse(make([]byte, 20))
	uri := magnet.New(ih, []string{"no-DHT", "http://tracker.example/announce", "DHT"})
	assert.Equal(t,
		"magnet:?xt=urn:btih:"+ih.String()+"&tr=http%3A%2F%2Ftracker.example%2Fannounce",
		uri)
}

func TestParseRoundTrip(t *testing.T) {
	var raw [20]byte
	raw[0] = 0xab
	ih := infohash.MustParse(raw[:])
	uri := magnet.New(ih, []string{"http://a", "http://b"})

	m, err := magnet.Parse(uri)
	require.NoError(t, err)
	assert.Equal(t, ih, m.InfoHash)
	assert.Equal(t, []string{"http://a", "http://b"}, m.Trackers)
}

func TestParseRejectsNonMagnet(t *testing.T) {
	_, err := magnet.Parse("http://example.com")
	assert.Error(t, err)
}

func TestParseRejectsMissingXT(t *testing.T) {
	_, err := magnet.Parse("magnet:?dn=foo")
	assert.Error(t, err)
}
