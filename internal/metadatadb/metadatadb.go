// Package metadatadb implements the torrent metadata database contract
// consumed by the coordinator (spec §6): Has, Update, AddExternal,
// GetTrackers, CountCollected, FreeSpace.
//
// Grounded directly on the teacher's own session.go, which opens exactly
// this dependency (bolt.Open, bolt.Tx, CreateBucketIfNotExists) to track
// per-torrent resume state, and on original_source's
// torrent_db.hasTorrent/updateTorrent/addExternalTorrent/
// getTrackerListByInfohash/getNumberCollectedTorrents/freeSpace.
package metadatadb

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/boltdb/bolt"
	"github.com/cenkalti/remotetorrent/internal/descriptor"
	"github.com/cenkalti/remotetorrent/internal/infohash"
)

// Database is the metadata-store contract the coordinator and magnet
// requester consume (spec §6).
type Database interface {
	Has(ih infohash.Infohash) (bool, error)
	Update(ih infohash.Infohash, filename string) error
	AddExternal(tdef *descriptor.TorrentDef, filename string, status string) error
	GetTrackers(ih infohash.Infohash) ([]string, error)
	CountCollected() (int, error)
	// FreeSpace evicts n rows, oldest-added first, and returns the
	// number actually evicted (may be less than n if fewer rows exist).
	FreeSpace(n int) (int, error)
}

var (
	torrentsBucket = []byte("torrents")
	orderBucket    = []byte("order")
)

type record struct {
	Filename  string    `json:"filename"`
	Status    string    `json:"status"`
	Trackers  []string  `json:"trackers"`
	Seq       uint64    `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
}

// BoltDatabase is the bolt-backed Database implementation.
type BoltDatabase struct {
	db *bolt.DB
}

// Open opens (creating if necessary) a bolt database at path, the same
// way the teacher's session.New opens its resume database.
func Open(path string) (*BoltDatabase, error) {
	db, err := bolt.Open(path, 0640, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(torrentsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(orderBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltDatabase{db: db}, nil
}

// Close closes the underlying bolt database.
func (d *BoltDatabase) Close() error {
	return d.db.Close()
}

func (d *BoltDatabase) Has(ih infohash.Infohash) (bool, error) {
	var has bool
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(torrentsBucket).Get(ih[:])
		has = v != nil
		return nil
	})
	return has, err
}

func (d *BoltDatabase) Update(ih infohash.Infohash, filename string) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(torrentsBucket)
		v := b.Get(ih[:])
		if v == nil {
			return d.put(tx, ih, record{Filename: filename, Status: "good"})
		}
		var rec record
		if err := json.Unmarshal(v, &rec); err != nil {
			return err
		}
		rec.Filename = filename
		buf, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(ih[:], buf)
	})
}

func (d *BoltDatabase) AddExternal(tdef *descriptor.TorrentDef, filename string, status string) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		return d.put(tx, tdef.InfoHash, record{
			Filename: filename,
			Status:   status,
			Trackers: tdef.Trackers,
		})
	})
}

// put inserts a new row, stamping it with the next sequence number so
// FreeSpace can evict oldest-added rows first.
func (d *BoltDatabase) put(tx *bolt.Tx, ih infohash.Infohash, rec record) error {
	ob := tx.Bucket(orderBucket)
	seq, err := ob.NextSequence()
	if err != nil {
		return err
	}
	rec.Seq = seq
	rec.CreatedAt = time.Now().UTC()

	var seqKey [8]byte
	binary.BigEndian.PutUint64(seqKey[:], seq)
	if err := ob.Put(seqKey[:], ih[:]); err != nil {
		return err
	}
	buf, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return tx.Bucket(torrentsBucket).Put(ih[:], buf)
}

func (d *BoltDatabase) GetTrackers(ih infohash.Infohash) ([]string, error) {
	var trackers []string
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(torrentsBucket).Get(ih[:])
		if v == nil {
			return nil
		}
		var rec record
		if err := json.Unmarshal(v, &rec); err != nil {
			return err
		}
		trackers = rec.Trackers
		return nil
	})
	return trackers, err
}

func (d *BoltDatabase) CountCollected() (int, error) {
	var n int
	err := d.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(torrentsBucket).Stats().KeyN
		return nil
	})
	return n, err
}

// FreeSpace evicts the n oldest-added rows (spec §4.6 "delegated to the
// database's free-space routine" leaves the policy to the database; the
// original Python treats torrent_db.freeSpace as equally opaque).
func (d *BoltDatabase) FreeSpace(n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	var evicted int
	err := d.db.Update(func(tx *bolt.Tx) error {
		ob := tx.Bucket(orderBucket)
		tb := tx.Bucket(torrentsBucket)
		cur := ob.Cursor()
		var toDelete [][]byte
		for k, ihBytes := cur.First(); k != nil && evicted < n; k, ihBytes = cur.Next() {
			toDelete = append(toDelete, append([]byte(nil), k...))
			if err := tb.Delete(ihBytes); err != nil {
				return err
			}
			evicted++
		}
		for _, k := range toDelete {
			if err := ob.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	return evicted, err
}
