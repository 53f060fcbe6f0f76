package remotetorrent

import (
	"github.com/cenkalti/remotetorrent/internal/descriptor"
	"github.com/cenkalti/remotetorrent/internal/infohash"
)

// SaveTorrent persists a resolved descriptor and fans its callbacks out
// (spec §4.6 save_torrent): a no-op if the descriptor is already on disk
// (spec P1), otherwise writes it, upserts the database row, and notifies
// every callback registered for ih.
//
// Exported because it also implements requester.MagnetHost for the
// magnet requester (spec §4.5): both the file-transfer descriptor
// requester and the magnet requester converge on this single persistence
// path, so a descriptor arriving by either route is recorded exactly
// once (P1) and notifies exactly once.
func (c *Coordinator) SaveTorrent(tdef *descriptor.TorrentDef) {
	path := c.collection.DescriptorPath(tdef.InfoHash)
	wrote, err := c.collection.SaveDescriptor(tdef.InfoHash, tdef.Raw)
	if err != nil {
		c.log.Errorln("save_torrent: write failed for", tdef.InfoHash, ":", err)
		return
	}
	if !wrote {
		return
	}

	has, err := c.db.Has(tdef.InfoHash)
	if err != nil {
		c.log.Errorln("save_torrent: db.Has failed for", tdef.InfoHash, ":", err)
		return
	}
	if has {
		err = c.db.Update(tdef.InfoHash, path)
	} else {
		err = c.db.AddExternal(tdef, path, "good")
	}
	if err != nil {
		c.log.Errorln("save_torrent: db write failed for", tdef.InfoHash, ":", err)
		return
	}

	c.handleCallback(tdef.InfoHash, path)
}

// saveMetadata persists a fetched thumbnail and fans its callbacks out
// (spec §4.6 save_metadata).
func (c *Coordinator) saveMetadata(ih infohash.Infohash, subpath string, data []byte) {
	if err := c.collection.SaveThumbnail(subpath, data); err != nil {
		c.log.Errorln("save_metadata: write failed for", subpath, ":", err)
		return
	}
	c.notifyThumbnailCallbacks(ih, c.collection.ThumbnailPath(subpath))
}

// handleCallback is the shared dispatch point for both download_torrent
// and download_torrentmessage callbacks (original_source's single
// torrent_callbacks dict, spec §4.6 _handle_callback). filename == ""
// signals arrival via the overlay side channel (spec scenario 6): in
// that case only overlay-message requesters tracking ih are told to
// forget it; a non-empty filename means a real descriptor landed on
// disk, so magnet requesters tracking ih are told to forget it instead
// (resolving Open Question #1: no separate, possibly-diverging path
// computation here — the caller already computed the real path).
func (c *Coordinator) handleCallback(ih infohash.Infohash, filename string) {
	if cbs, ok := c.descriptorCallbacks[ih]; ok {
		delete(c.descriptorCallbacks, ih)
		c.sched.CallLater("notify_torrent "+ih.String(), 0, func() {
			for _, cb := range cbs {
				cb(filename)
			}
		})
	}

	if filename != "" {
		for _, mr := range c.magnetRequesters {
			if mr.HasRequested(ih) {
				mr.RemoveRequest(ih)
			}
		}
	} else {
		for _, or := range c.overlayRequesters {
			if or.HasRequested(ih) {
				or.RemoveRequest(ih)
			}
		}
	}
}

// notifyThumbnailCallbacks fans a thumbnail arrival out to its
// registered callbacks. A key with none registered (nobody is waiting,
// or they already fired) is skipped silently rather than logged,
// resolving Open Question #2.
func (c *Coordinator) notifyThumbnailCallbacks(ih infohash.Infohash, path string) {
	cbs, ok := c.thumbnailCallbacks[ih]
	if !ok {
		return
	}
	delete(c.thumbnailCallbacks, ih)
	c.sched.CallLater("notify_metadata "+ih.String(), 0, func() {
		for _, cb := range cbs {
			cb(path)
		}
	})
}
