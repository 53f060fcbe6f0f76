// Package transport defines the three adapter interfaces spec §4.1
// consumes: an in-overlay broadcast, a file-transfer download, and a
// DHT/magnet lookup. The coordinator and requesters depend only on
// these; concrete implementations (the real overlay community, the UDP
// file-transfer engine, a DHT node) live outside this module and are
// wired in by the host application.
//
// Grounded on original_source's TftpHandler.download_file /
// TorrentDef.retrieve_from_magnet signatures and spec §4.1/§6.
package transport

import (
	"context"
	"net"
	"time"

	"github.com/cenkalti/remotetorrent/internal/candidate"
	"github.com/cenkalti/remotetorrent/internal/descriptor"
	"github.com/cenkalti/remotetorrent/internal/infohash"
)

// ExtraInfo is the concrete form of spec §6's extra-info dictionary,
// used by the file-transfer requester to correlate a success/failure
// callback back to the request key it was issued for. Carrying the
// subpath alongside the infohash (rather than indexing callbacks by bare
// infohash) resolves Design Note/Open Question #3: a thumbnail key's
// failover bookkeeping can never be misfiled under its infohash's
// descriptor bookkeeping.
type ExtraInfo struct {
	Infohash         infohash.Infohash
	ThumbnailSubpath string
}

// OverlayBroadcast is the in-overlay message transport (spec §4.1):
// fire-and-forget, no completion signal. Any eventual descriptor arrives
// asynchronously via an unrelated overlay input path.
type OverlayBroadcast interface {
	SendDescriptorRequest(ctx context.Context, ih infohash.Infohash, c candidate.Candidate)
}

// FileTransfer delivers bytes in memory over a direct connection to a
// candidate. Exactly one of onSuccess/onFailure is invoked, asynchronously,
// for a given call.
type FileTransfer interface {
	DownloadFile(ctx context.Context, filename string, ip net.IP, port int, extra ExtraInfo,
		onSuccess func(addr *net.TCPAddr, filename string, data []byte, extra ExtraInfo),
		onFailure func(addr *net.TCPAddr, filename string, errMsg string, extra ExtraInfo))
}

// MagnetResolver performs DHT-based resolution of a magnet URI into a
// full descriptor. Exactly one of onSuccess/onTimeout is invoked.
type MagnetResolver interface {
	RetrieveFromMagnet(ctx context.Context, magnetURI string,
		onSuccess func(tdef *descriptor.TorrentDef),
		timeout time.Duration,
		onTimeout func(ih infohash.Infohash))
}
