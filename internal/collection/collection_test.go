package collection_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cenkalti/remotetorrent/internal/collection"
	"github.com/cenkalti/remotetorrent/internal/infohash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveDescriptorUniqueness(t *testing.T) {
	dir := t.TempDir()
	c, err := collection.New(dir)
	require.NoError(t, err)

	ih := infohash.MustParse(make([]byte, infohash.Length))
	assert.False(t, c.HasDescriptor(ih))

	wrote, err := c.SaveDescriptor(ih, []byte("first"))
	require.NoError(t, err)
	assert.True(t, wrote)
	assert.True(t, c.HasDescriptor(ih))

	// P1: a second save for an already-present infohash is a no-op.
	wrote, err = c.SaveDescriptor(ih, []byte("second"))
	require.NoError(t, err)
	assert.False(t, wrote)

	data, err := os.ReadFile(c.DescriptorPath(ih))
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
}

func TestSaveThumbnailCreatesParentDir(t *testing.T) {
	dir := t.TempDir()
	c, err := collection.New(dir)
	require.NoError(t, err)

	subpath := filepath.Join("thumbs", "abc.png")
	assert.False(t, c.HasThumbnail(subpath))

	err = c.SaveThumbnail(subpath, []byte("png-bytes"))
	require.NoError(t, err)
	assert.True(t, c.HasThumbnail(subpath))

	data, err := os.ReadFile(c.ThumbnailPath(subpath))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
}
