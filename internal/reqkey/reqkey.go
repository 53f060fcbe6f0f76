// Package reqkey models the disjoint union spec §3 calls RequestKey: a
// bare Infohash (descriptor request) or an (Infohash, subpath) pair
// (thumbnail request), as a single comparable struct instead of a
// tuple-or-scalar shape (Design Note "tagged request key").
package reqkey

import "github.com/cenkalti/remotetorrent/internal/infohash"

// Key identifies a request. Subpath == "" means a descriptor request for
// Infohash; a non-empty Subpath means a thumbnail request for that
// relative path under the infohash's descriptor.
type Key struct {
	Infohash infohash.Infohash
	Subpath  string
}

// Descriptor returns the bare-infohash request key.
func Descriptor(ih infohash.Infohash) Key {
	return Key{Infohash: ih}
}

// Thumbnail returns the (infohash, subpath) request key.
func Thumbnail(ih infohash.Infohash, subpath string) Key {
	return Key{Infohash: ih, Subpath: subpath}
}

// IsThumbnail reports whether k names a thumbnail request.
func (k Key) IsThumbnail() bool {
	return k.Subpath != ""
}

func (k Key) String() string {
	if k.IsThumbnail() {
		return k.Infohash.String() + ":" + k.Subpath
	}
	return k.Infohash.String()
}
