package remotetorrent

import (
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/remotetorrent/internal/candidate"
	"github.com/cenkalti/remotetorrent/internal/collection"
	"github.com/cenkalti/remotetorrent/internal/descriptor"
	"github.com/cenkalti/remotetorrent/internal/infohash"
	"github.com/cenkalti/remotetorrent/internal/logger"
	"github.com/cenkalti/remotetorrent/internal/metadatadb"
	"github.com/cenkalti/remotetorrent/internal/reqkey"
	"github.com/cenkalti/remotetorrent/internal/requester"
	"github.com/cenkalti/remotetorrent/internal/scheduler"
	"github.com/cenkalti/remotetorrent/internal/transport"
)

// Dependencies bundles the external collaborators spec §1/§6 declares
// out of scope and consumes only through narrow interfaces: the
// overlay/file-transfer/DHT transports and the metadata database.
type Dependencies struct {
	// FileTransfer is required: both the descriptor and thumbnail
	// requesters use it (spec §4.4).
	FileTransfer transport.FileTransfer
	// MagnetResolver is required: the magnet requester's DHT fallback
	// (spec §4.5).
	MagnetResolver transport.MagnetResolver
	// OverlayBroadcast wraps a single broadcast transport into the
	// Communities contract below, for hosts that don't model multiple
	// overlay communities. Ignored if Communities is set.
	OverlayBroadcast transport.OverlayBroadcast
	// Communities enumerates overlay communities of the search kind
	// (spec §6 enumerate_communities()), replacing capability discovery
	// via class identity (Design Note) with an explicit interface.
	Communities func() []requester.SearchCommunity
	// Database is the torrent metadata database (spec §6).
	Database metadatadb.Database
	// Codec decodes fetched descriptor bytes. Defaults to
	// descriptor.BencodeCodec{}.
	Codec descriptor.Codec
}

// Coordinator is the top-level facade of spec §4.6: it dispatches
// requests to the right requester, owns the callback registries and
// collection-directory/database persistence, and enforces the disk
// quota.
//
// Every exported request/notification method marshals onto a single
// reactor goroutine (spec §5) via the scheduler. The requester.MagnetHost
// methods (HasDescriptor, Trackers, SaveTorrent, NotifyPossibleDescriptor)
// do not: they run on the caller's goroutine, and the requesters call
// them from the reactor. Once on that goroutine, state is mutated
// without further synchronization, so no field here is protected by a
// mutex — see internal/requester's package doc for the same contract.
type Coordinator struct {
	cfg   Config
	sched *scheduler.Scheduler
	log   logger.Logger

	collection *collection.Collection
	db         metadatadb.Database
	codec      descriptor.Codec

	fileTransfer   transport.FileTransfer
	magnetResolver transport.MagnetResolver
	communities    func() []requester.SearchCommunity

	descriptorRequesters map[int]*requester.FileTransfer
	overlayRequesters    map[int]*requester.Overlay
	magnetRequesters     map[int]*requester.Magnet
	thumbnailRequester   *requester.FileTransfer

	descriptorCallbacks map[infohash.Infohash][]func(string)
	thumbnailCallbacks  map[infohash.Infohash][]func(string)

	maxNumTorrents int
}

// New constructs a Coordinator, opens the collection directory, and
// starts its reactor goroutine and the recurring quota check (spec
// §4.6). Callers must call Shutdown when done.
func New(cfg *Config, deps Dependencies) (*Coordinator, error) {
	if deps.FileTransfer == nil {
		return nil, errors.New("remotetorrent: Dependencies.FileTransfer is required")
	}
	if deps.MagnetResolver == nil {
		return nil, errors.New("remotetorrent: Dependencies.MagnetResolver is required")
	}
	if deps.Database == nil {
		return nil, errors.New("remotetorrent: Dependencies.Database is required")
	}
	communities := deps.Communities
	if communities == nil {
		if deps.OverlayBroadcast == nil {
			return nil, errors.New("remotetorrent: Dependencies.OverlayBroadcast or Communities is required")
		}
		communities = requester.SingleCommunity(deps.OverlayBroadcast)
	}

	col, err := collection.New(cfg.CollectionDir)
	if err != nil {
		return nil, fmt.Errorf("remotetorrent: opening collection dir: %w", err)
	}
	codec := deps.Codec
	if codec == nil {
		codec = descriptor.BencodeCodec{}
	}

	c := &Coordinator{
		cfg:                  *cfg,
		sched:                scheduler.New(),
		log:                  logger.New("coordinator"),
		collection:           col,
		db:                   deps.Database,
		codec:                codec,
		fileTransfer:         deps.FileTransfer,
		magnetResolver:       deps.MagnetResolver,
		communities:          communities,
		descriptorRequesters: make(map[int]*requester.FileTransfer),
		overlayRequesters:    make(map[int]*requester.Overlay),
		magnetRequesters:     make(map[int]*requester.Magnet),
		descriptorCallbacks:  make(map[infohash.Infohash][]func(string)),
		thumbnailCallbacks:   make(map[infohash.Infohash][]func(string)),
		maxNumTorrents:       cfg.MaxNumTorrents,
	}
	c.thumbnailRequester = requester.NewFileTransfer("thumbnail-requester", 0, c.cfg.slowRequestInterval(), c.sched,
		c.fileTransfer,
		func(key reqkey.Key) string { return key.Subpath },
		func(key reqkey.Key, data []byte) { c.saveMetadata(key.Infohash, key.Subpath, data) })

	c.sched.CallInLoop("overflow_check", c.cfg.overflowCheckInterval(), true, c.checkOverflow)
	return c, nil
}

// Shutdown cancels every scheduled task and stops the reactor (spec
// §5). Dependencies with their own lifecycle (e.g. a DHTResolver) are
// the host's responsibility to stop.
func (c *Coordinator) Shutdown() {
	c.sched.Shutdown()
}

// SetMaxNumTorrents retunes the quota target without a restart
// (original_source's set_max_num_torrents, dropped from the distilled
// spec's prose but part of a complete implementation per SPEC_FULL §4.6).
func (c *Coordinator) SetMaxNumTorrents(n int) {
	c.sched.Post(func() { c.maxNumTorrents = n })
}

func clampPriority(priority int) int {
	if priority < 0 {
		return 0
	}
	if priority > 1 {
		return 1
	}
	return priority
}

// DownloadTorrent implements spec §4.6 download_torrent: acquire the
// descriptor for ih, either from candidate over the file-transfer
// transport or, if candidate is nil, via the DHT/magnet fallback.
// callback, if non-nil, fires exactly once with the descriptor's path
// on the first successful acquisition (spec scenario 1: a cache hit
// fires it immediately, without any transport call).
func (c *Coordinator) DownloadTorrent(cand *candidate.Candidate, ih infohash.Infohash, callback func(string), priority int, timeout *time.Duration) {
	c.sched.Post(func() { c.downloadTorrent(cand, ih, callback, priority, timeout) })
}

func (c *Coordinator) downloadTorrent(cand *candidate.Candidate, ih infohash.Infohash, callback func(string), priority int, timeout *time.Duration) {
	priority = clampPriority(priority)

	if c.collection.HasDescriptor(ih) {
		if callback != nil {
			path := c.collection.DescriptorPath(ih)
			c.sched.CallLater("notify_torrent "+ih.String(), 0, func() { callback(path) })
		}
		return
	}

	if callback != nil {
		c.descriptorCallbacks[ih] = append(c.descriptorCallbacks[ih], callback)
	}

	if cand == nil {
		mr := c.magnetRequester(priority)
		delay := time.Duration(priority) * c.cfg.magnetTimeout()
		c.sched.CallLater("magnet_request "+ih.String(), delay, func() {
			mr.AddRequest(ih, candidate.Candidate{}, time.Time{})
		})
		return
	}

	var req *requester.FileTransfer
	for p := 0; p <= priority; p++ {
		if r, ok := c.descriptorRequesters[p]; ok && r.HasRequested(reqkey.Descriptor(ih)) {
			req = r
			break
		}
	}
	if req == nil {
		req = c.descriptorRequester(priority)
	}
	req.AddRequest(reqkey.Descriptor(ih), *cand, deadlineFor(timeout))
}

// DownloadTorrentMessage implements spec §4.3/§4.6 download_torrentmessage:
// request the descriptor via the in-overlay broadcast. The same callback
// registry as DownloadTorrent is used (original_source shares one
// torrent_callbacks dict between both paths); the wrapper below discards
// the filename _handleCallback would otherwise pass and hands the
// caller its infohash instead, matching spec scenario 6 ("cb fires with
// H, not a filename").
func (c *Coordinator) DownloadTorrentMessage(cand candidate.Candidate, ih infohash.Infohash, callback func(string), priority int) {
	c.sched.Post(func() { c.downloadTorrentMessage(cand, ih, callback, priority) })
}

func (c *Coordinator) downloadTorrentMessage(cand candidate.Candidate, ih infohash.Infohash, callback func(string), priority int) {
	priority = clampPriority(priority)
	if callback != nil {
		c.descriptorCallbacks[ih] = append(c.descriptorCallbacks[ih], func(string) { callback(ih.String()) })
	}
	c.overlayRequester(priority).AddRequest(ih, cand, time.Time{})
}

// NotifyDescriptorReceivedViaOverlay is the external "overlay input
// path" spec §4.3 describes: the host calls this when an out-of-band
// overlay message delivers a descriptor for ih outside the file-transfer
// or magnet paths. Fires registered callbacks with an empty filename,
// matching scenario 6, and forgets ih from every overlay-message
// requester tracking it.
func (c *Coordinator) NotifyDescriptorReceivedViaOverlay(ih infohash.Infohash) {
	c.sched.Post(func() { c.handleCallback(ih, "") })
}

// DownloadMetadata implements spec §4.6 download_metadata: if the
// thumbnail already exists on disk, this is a no-op (no callback
// fires); otherwise register callback and enqueue on the single
// thumbnail requester.
func (c *Coordinator) DownloadMetadata(cand candidate.Candidate, ih infohash.Infohash, subpath string, callback func(string), timeout *time.Duration) {
	c.sched.Post(func() { c.downloadMetadata(cand, ih, subpath, callback, timeout) })
}

func (c *Coordinator) downloadMetadata(cand candidate.Candidate, ih infohash.Infohash, subpath string, callback func(string), timeout *time.Duration) {
	if c.collection.HasThumbnail(subpath) {
		return
	}
	if callback != nil {
		c.thumbnailCallbacks[ih] = append(c.thumbnailCallbacks[ih], callback)
	}
	c.thumbnailRequester.AddRequest(reqkey.Thumbnail(ih, subpath), cand, deadlineFor(timeout))
}

func deadlineFor(timeout *time.Duration) time.Time {
	if timeout == nil {
		return time.Time{}
	}
	return time.Now().Add(*timeout)
}

func (c *Coordinator) descriptorRequester(priority int) *requester.FileTransfer {
	if r, ok := c.descriptorRequesters[priority]; ok {
		return r
	}
	r := requester.NewFileTransfer(fmt.Sprintf("descriptor-requester-%d", priority), priority,
		c.cfg.requestInterval()*time.Duration(priority), c.sched, c.fileTransfer,
		func(key reqkey.Key) string { return key.Infohash.Filename() },
		func(key reqkey.Key, data []byte) { c.onDescriptorFetched(key, data) })
	c.descriptorRequesters[priority] = r
	return r
}

func (c *Coordinator) onDescriptorFetched(key reqkey.Key, data []byte) {
	tdef, err := c.codec.Decode(data)
	if err != nil {
		c.log.Errorln("descriptor fetched for", key, "failed to decode:", err)
		return
	}
	c.SaveTorrent(tdef)
}

func (c *Coordinator) overlayRequester(priority int) *requester.Overlay {
	if r, ok := c.overlayRequesters[priority]; ok {
		return r
	}
	r := requester.NewOverlay(priority, c.cfg.overlayRequestInterval()*time.Duration(priority), c.sched, c.communities)
	c.overlayRequesters[priority] = r
	return r
}

func (c *Coordinator) magnetRequester(priority int) *requester.Magnet {
	if r, ok := c.magnetRequesters[priority]; ok {
		return r
	}
	r := requester.NewMagnet(priority, c.cfg.slowRequestInterval()*time.Duration(priority), c.sched,
		c, c.magnetResolver, c.magnetMaxConcurrent(priority), c.cfg.magnetRetrieveTimeout())
	c.magnetRequesters[priority] = r
	return r
}

func (c *Coordinator) magnetMaxConcurrent(priority int) int {
	if c.cfg.ConstrainedFileDescriptors {
		return requester.DefaultMaxConcurrent
	}
	if priority <= 1 {
		return requester.PriorityMaxConcurrent
	}
	return requester.DefaultMaxConcurrent
}

// HasDescriptor, Trackers, SaveTorrent and NotifyPossibleDescriptor
// implement requester.MagnetHost for the magnet requester (spec §4.5),
// reusing exactly the persistence/notification paths the file-transfer
// descriptor requester uses.
func (c *Coordinator) HasDescriptor(ih infohash.Infohash) bool {
	return c.collection.HasDescriptor(ih)
}

func (c *Coordinator) Trackers(ih infohash.Infohash) []string {
	trackers, err := c.db.GetTrackers(ih)
	if err != nil {
		c.log.Errorln("get_trackers failed for", ih, ":", err)
		return nil
	}
	return trackers
}

func (c *Coordinator) NotifyPossibleDescriptor(ih infohash.Infohash) {
	c.handleCallback(ih, c.collection.DescriptorPath(ih))
}
