// Package descriptor provides the minimal torrent-descriptor
// representation and decoding the coordinator needs. Full descriptor
// parsing and validation (file lists, piece hashes, announce-list
// semantics) is a declared non-goal (spec §1); this package only
// extracts enough to name the on-disk file, detect duplicates and build
// magnet links: the infohash, the raw bytes, their size and the tracker
// URLs.
//
// BencodeCodec is adapted from the teacher's internal/metainfo/metainfo.go,
// which decodes a torrent file the same way (bencode.NewDecoder(r).Decode),
// trimmed down from the teacher's full MetaInfo/Info structs (which carry
// file lists and piece hashes this subsystem never inspects) to just the
// raw info dict and its hash.
package descriptor

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // BEP 3 mandates SHA-1 for the infohash.
	"errors"

	"github.com/cenkalti/remotetorrent/internal/infohash"
	"github.com/zeebo/bencode"
)

// TorrentDef is the minimal descriptor the coordinator persists and
// indexes. Size is the raw byte length, used for the magnet requester's
// bandwidth counter (spec §4.5).
type TorrentDef struct {
	InfoHash infohash.Infohash
	Raw      []byte
	Trackers []string
	Size     int64
}

// Codec decodes a fetched byte blob into a TorrentDef. Consumed as an
// external collaborator per spec §1/§6 ("torrent descriptor parser").
type Codec interface {
	Decode(data []byte) (*TorrentDef, error)
}

type rawTorrentFile struct {
	Info         bencode.RawMessage `bencode:"info"`
	Announce     string             `bencode:"announce"`
	AnnounceList [][]string         `bencode:"announce-list"`
}

// BencodeCodec is the default Codec, decoding a standard bencoded
// .torrent file far enough to recover the infohash (SHA-1 of the raw
// info dict, per BEP 3) and tracker URLs.
type BencodeCodec struct{}

func (BencodeCodec) Decode(data []byte) (*TorrentDef, error) {
	var raw rawTorrentFile
	if err := bencode.NewDecoder(bytes.NewReader(data)).Decode(&raw); err != nil {
		return nil, err
	}
	if len(raw.Info) == 0 {
		return nil, errors.New("descriptor: no info dict in torrent file")
	}
	sum := sha1.Sum(raw.Info)
	return &TorrentDef{
		InfoHash: infohash.Infohash(sum),
		Raw:      data,
		Trackers: trackerList(raw),
		Size:     int64(len(data)),
	}, nil
}

func trackerList(raw rawTorrentFile) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(u string) {
		if u == "" {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	add(raw.Announce)
	for _, tier := range raw.AnnounceList {
		for _, u := range tier {
			add(u)
		}
	}
	return out
}
