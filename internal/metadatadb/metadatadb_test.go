package metadatadb_test

import (
	"path/filepath"
	"testing"

	"github.com/cenkalti/remotetorrent/internal/descriptor"
	"github.com/cenkalti/remotetorrent/internal/infohash"
	"github.com/cenkalti/remotetorrent/internal/metadatadb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func open(t *testing.T) *metadatadb.BoltDatabase {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metadata.db")
	db, err := metadatadb.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testInfohash(b byte) infohash.Infohash {
	buf := make([]byte, infohash.Length)
	buf[0] = b
	return infohash.MustParse(buf)
}

func TestAddExternalThenHasAndUpdate(t *testing.T) {
	db := open(t)
	ih := testInfohash(1)

	has, err := db.Has(ih)
	require.NoError(t, err)
	assert.False(t, has)

	tdef := &descriptor.TorrentDef{InfoHash: ih, Trackers: []string{"http://tr.example", "DHT", "no-DHT"}}
	require.NoError(t, db.AddExternal(tdef, "/col/"+ih.String()+".torrent", "good"))

	has, err = db.Has(ih)
	require.NoError(t, err)
	assert.True(t, has)

	trackers, err := db.GetTrackers(ih)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"http://tr.example", "DHT", "no-DHT"}, trackers)

	require.NoError(t, db.Update(ih, "/col/renamed.torrent"))

	count, err := db.CountCollected()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestFreeSpaceEvictsOldestFirst(t *testing.T) {
	db := open(t)
	var hashes []infohash.Infohash
	for i := byte(0); i < 5; i++ {
		ih := testInfohash(i)
		hashes = append(hashes, ih)
		require.NoError(t, db.AddExternal(&descriptor.TorrentDef{InfoHash: ih}, ih.String()+".torrent", "good"))
	}

	n, err := db.FreeSpace(2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := db.CountCollected()
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	has, err := db.Has(hashes[0])
	require.NoError(t, err)
	assert.False(t, has, "oldest row should have been evicted first")

	has, err = db.Has(hashes[4])
	require.NoError(t, err)
	assert.True(t, has, "newest row should survive")
}

func TestFreeSpaceCapsAtAvailableRows(t *testing.T) {
	db := open(t)
	ih := testInfohash(9)
	require.NoError(t, db.AddExternal(&descriptor.TorrentDef{InfoHash: ih}, "x.torrent", "good"))

	n, err := db.FreeSpace(100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
