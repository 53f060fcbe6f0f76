// Package magnet builds and parses the magnet URIs spec §6 describes:
// "magnet:?xt=urn:btih:<hex-infohash>" followed by zero or more
// "&tr=<url-encoded-tracker-url>" parameters.
//
// Adapted from the calling shape of the teacher's (not-included-in-pack)
// internal/magnet package, referenced in session.go as magnet.New(link);
// the grammar itself follows spec §6 and original_source's
// "magnet:?xt=urn:btih:" + infohash_str + "&tr=" + urllib.quote_plus(tr)
// construction.
package magnet

import (
	"encoding/hex"
	"errors"
	"net/url"
	"strings"

	"github.com/cenkalti/remotetorrent/internal/infohash"
)

// sentinel tracker values the database may return that never belong in a
// magnet link (spec §4.5/§6).
const (
	sentinelNoDHT = "no-DHT"
	sentinelDHT   = "DHT"
)

// Magnet is a parsed magnet URI.
type Magnet struct {
	InfoHash infohash.Infohash
	Trackers []string
}

// New builds a magnet URI for ih, appending every tracker in trackers
// except the sentinels "no-DHT" and "DHT" (spec §4.5/§6).
func New(ih infohash.Infohash, trackers []string) string {
	var b strings.Builder
	b.WriteString("magnet:?xt=urn:btih:")
	b.WriteString(ih.String())
	for _, tr := range trackers {
		if tr == sentinelNoDHT || tr == sentinelDHT {
			continue
		}
		b.WriteString("&tr=")
		b.WriteString(url.QueryEscape(tr))
	}
	return b.String()
}

// Parse decodes a magnet URI back into its infohash and tracker list.
func Parse(uri string) (*Magnet, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "magnet" {
		return nil, errors.New("magnet: not a magnet URI")
	}
	q := u.Query()
	xt := q.Get("xt")
	const prefix = "urn:btih:"
	if !strings.HasPrefix(xt, prefix) {
		return nil, errors.New("magnet: missing or unsupported xt parameter")
	}
	hexHash := strings.TrimPrefix(xt, prefix)
	raw, err := hex.DecodeString(hexHash)
	if err != nil {
		return nil, err
	}
	ih, err := infohash.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &Magnet{InfoHash: ih, Trackers: q["tr"]}, nil
}
