// Package collection implements the flat on-disk collection directory
// spec §3/§6 describes: descriptors named <hex(infohash)>.torrent and
// thumbnails at caller-supplied relative subpaths. Presence of a file is
// authoritative for "is this asset on disk."
//
// Grounded on the teacher's own path handling in session.go
// (filepath.Join, os.MkdirAll(..., 0750)) and original_source's
// has_torrent/get_torrent_filename/save_metadata.
package collection

import (
	"os"
	"path/filepath"

	"github.com/cenkalti/remotetorrent/internal/infohash"
)

// Collection is a directory of descriptor and thumbnail files.
type Collection struct {
	Dir string
}

// New returns a Collection rooted at dir, creating it if necessary.
func New(dir string) (*Collection, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, err
	}
	return &Collection{Dir: dir}, nil
}

// DescriptorPath is the absolute path a descriptor for ih would live at.
func (c *Collection) DescriptorPath(ih infohash.Infohash) string {
	return filepath.Join(c.Dir, ih.Filename())
}

// ThumbnailPath is the absolute path a thumbnail at subpath would live
// at.
func (c *Collection) ThumbnailPath(subpath string) string {
	return filepath.Join(c.Dir, subpath)
}

// HasDescriptor reports whether a descriptor for ih is already on disk.
func (c *Collection) HasDescriptor(ih infohash.Infohash) bool {
	return fileExists(c.DescriptorPath(ih))
}

// HasThumbnail reports whether a thumbnail at subpath is already on
// disk.
func (c *Collection) HasThumbnail(subpath string) bool {
	return fileExists(c.ThumbnailPath(subpath))
}

// SaveDescriptor writes data to the descriptor path for ih. If a
// descriptor is already present it is a no-op (spec P1: uniqueness) and
// returns (false, nil); callers use the bool to decide whether to notify
// subscribers of a *new* descriptor.
func (c *Collection) SaveDescriptor(ih infohash.Infohash, data []byte) (wrote bool, err error) {
	path := c.DescriptorPath(ih)
	if fileExists(path) {
		return false, nil
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return false, err
	}
	return true, nil
}

// SaveThumbnail writes data to subpath, creating any missing parent
// directories on demand (spec §6).
func (c *Collection) SaveThumbnail(subpath string, data []byte) error {
	path := c.ThumbnailPath(subpath)
	dir := filepath.Dir(path)
	if !dirExists(dir) {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0640)
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}

func dirExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
