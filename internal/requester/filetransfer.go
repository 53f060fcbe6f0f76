package requester

import (
	"context"
	"net"
	"time"

	"github.com/cenkalti/remotetorrent/internal/candidate"
	"github.com/cenkalti/remotetorrent/internal/logger"
	"github.com/cenkalti/remotetorrent/internal/reqkey"
	"github.com/cenkalti/remotetorrent/internal/scheduler"
	"github.com/cenkalti/remotetorrent/internal/transport"
)

// PendingRequest is the per-key bookkeeping of spec §3: an ordered
// sequence of untried candidates (FIFO) and an ordered sequence of
// tried candidates (FIFO, diagnostics only). A key is present in the
// pending map if and only if it has an entry here.
type PendingRequest struct {
	Untried []candidate.Candidate
	Tried   []candidate.Candidate
	// Deadline is carried for the §3 data model but intentionally not
	// enforced here; file-transfer requests have no requester-level
	// expiry (spec §4.4).
	Deadline time.Time
}

// FileTransfer is the file-transfer requester of spec §4.4: single
// in-flight request per instance, keys processed strictly FIFO, and
// per-key candidates attempted strictly FIFO (spec P3). It replaces
// Base's shared pacing loop (per spec §4.2) because its queueing
// discipline — one live transfer at a time, failover instead of pacing
// between candidates of the same key — doesn't fit the generic
// CanRequest/DoFetch shape the overlay and magnet requesters share.
//
// Grounded directly on original_source's TftpRequester /
// TftpTorrentRequester / TftpMetadataRequester: both concrete requesters
// share this exact struct, differing only in the onSuccess hook passed
// to NewFileTransfer (save the descriptor vs. save the thumbnail).
type FileTransfer struct {
	Priority       int
	PacingInterval time.Duration

	sched     *scheduler.Scheduler
	log       logger.Logger
	name      string
	transport transport.FileTransfer

	// filenameFor computes the transported filename for a key (spec
	// §4.4: the thumbnail subpath if the key carries one, else
	// <hex(infohash)>.torrent).
	filenameFor func(reqkey.Key) string
	// onSuccess is the type-specific hook (spec §4.4): the descriptor
	// variant decodes file_data and calls Coordinator.SaveTorrent; the
	// thumbnail variant calls Coordinator.saveMetadata.
	onSuccess func(key reqkey.Key, data []byte)

	counters Counters
	queue    []reqkey.Key
	pending  map[reqkey.Key]*PendingRequest
}

// NewFileTransfer constructs a file-transfer requester. name
// distinguishes the descriptor and thumbnail instantiations in logs and
// scheduled-task names.
func NewFileTransfer(name string, priority int, pacing time.Duration, sched *scheduler.Scheduler,
	tr transport.FileTransfer, filenameFor func(reqkey.Key) string, onSuccess func(key reqkey.Key, data []byte)) *FileTransfer {
	return &FileTransfer{
		Priority:       priority,
		PacingInterval: pacing,
		sched:          sched,
		log:            logger.New(name),
		name:           name,
		transport:      tr,
		filenameFor:    filenameFor,
		onSuccess:      onSuccess,
		pending:        make(map[reqkey.Key]*PendingRequest),
	}
}

// Counters returns a snapshot of the current bookkeeping fields.
func (f *FileTransfer) Counters() Counters { return f.counters }

// Backlog is the number of distinct keys currently pending.
func (f *FileTransfer) Backlog() int { return len(f.pending) }

// HasRequested reports whether key is currently pending.
func (f *FileTransfer) HasRequested(key reqkey.Key) bool {
	_, ok := f.pending[key]
	return ok
}

// RemoveRequest drops a tracked key, wherever it sits in the queue.
func (f *FileTransfer) RemoveRequest(key reqkey.Key) {
	delete(f.pending, key)
}

// AddRequest implements spec §4.4's add_request: coalesce onto an
// already-pending key's untried list (skipping duplicates already
// tried or untried — spec P3/P7), or start a new pending entry and
// enqueue it.
func (f *FileTransfer) AddRequest(key reqkey.Key, c candidate.Candidate, deadline time.Time) {
	queueWasEmpty := len(f.queue) == 0

	if pr, ok := f.pending[key]; ok {
		if !containsCandidate(pr.Untried, c) && !containsCandidate(pr.Tried, c) {
			pr.Untried = append(pr.Untried, c)
		}
		return
	}

	f.pending[key] = &PendingRequest{Untried: []candidate.Candidate{c}, Deadline: deadline}
	f.queue = append(f.queue, key)

	if queueWasEmpty {
		f.scheduleWake(f.PacingInterval)
	}
}

func containsCandidate(list []candidate.Candidate, c candidate.Candidate) bool {
	for _, existing := range list {
		if existing.Key() == c.Key() {
			return true
		}
	}
	return false
}

func (f *FileTransfer) scheduleWake(delay time.Duration) {
	f.sched.CallLater(f.name+" requester wake", delay, f.doRequest)
}

// doRequest peeks the head key, pops its first untried candidate, moves
// it to tried, and dispatches do_fetch — spec §4.4's _do_request.
// Stale queue entries (keys removed via RemoveRequest since being
// enqueued) are skipped.
func (f *FileTransfer) doRequest() {
	for len(f.queue) > 0 {
		key := f.queue[0]
		pr, ok := f.pending[key]
		if !ok {
			f.queue = f.queue[1:]
			continue
		}
		if len(pr.Untried) == 0 {
			// Shouldn't happen in normal operation (exhaustion always
			// clears the head), but guard defensively.
			f.queue = f.queue[1:]
			delete(f.pending, key)
			continue
		}
		c := pr.Untried[0]
		pr.Untried = pr.Untried[1:]
		pr.Tried = append(pr.Tried, c)
		f.doFetch(key, c)
		return
	}
}

// doFetch computes the transported filename and issues the file
// transfer, per spec §4.4. Per transport.FileTransfer's contract, a real
// implementation calls onSuccess/onFailure asynchronously from its own
// goroutine, so both are marshalled back onto the reactor via
// sched.Post rather than invoked directly.
func (f *FileTransfer) doFetch(key reqkey.Key, c candidate.Candidate) {
	filename := f.filenameFor(key)
	extra := transport.ExtraInfo{Infohash: key.Infohash, ThumbnailSubpath: key.Subpath}
	f.log.Debugln("starting file transfer for", key, "from", c)
	f.transport.DownloadFile(context.Background(), filename, c.IP, c.Port, extra,
		func(addr *net.TCPAddr, filename string, data []byte, extra transport.ExtraInfo) {
			f.sched.Post(func() { f.handleSuccess(extra, addr, filename, data) })
		},
		func(addr *net.TCPAddr, filename string, errMsg string, extra transport.ExtraInfo) {
			f.sched.Post(func() { f.handleFailure(extra, addr, filename, errMsg) })
		})
}

// keyFromExtra reconstructs the canonical reqkey.Key from the transport
// callback's ExtraInfo rather than indexing by bare infohash. This is
// the resolution to Design Note/Open Question #3: the original indexes
// untried_sources[infohash], which collides a thumbnail key's failover
// list with its infohash's descriptor-request list; reconstructing the
// full tagged key here makes that collision impossible.
func keyFromExtra(e transport.ExtraInfo) reqkey.Key {
	return reqkey.Key{Infohash: e.Infohash, Subpath: e.ThumbnailSubpath}
}

func (f *FileTransfer) handleSuccess(extra transport.ExtraInfo, _ *net.TCPAddr, _ string, data []byte) {
	key := keyFromExtra(extra)
	f.counters.RequestsSuccess++
	f.counters.BytesTransferred += int64(len(data))
	f.clearHead(key)
	f.scheduleWake(f.PacingInterval)
	if f.onSuccess != nil {
		f.onSuccess(key, data)
	}
}

func (f *FileTransfer) handleFailure(extra transport.ExtraInfo, _ *net.TCPAddr, _ string, errMsg string) {
	key := keyFromExtra(extra)
	f.counters.RequestsFailed++

	pr, ok := f.pending[key]
	if ok && len(pr.Untried) > 0 {
		c := pr.Untried[0]
		pr.Untried = pr.Untried[1:]
		pr.Tried = append(pr.Tried, c)
		f.log.Debugln("failover to next candidate for", key, ":", errMsg)
		f.sched.CallLater(f.name+" requester wake", 0, func() { f.doFetch(key, c) })
		return
	}

	f.log.Debugln("no more candidates for", key, ":", errMsg)
	f.clearHead(key)
	f.scheduleWake(f.PacingInterval)
}

// clearHead drops key entirely: both its candidate bookkeeping and its
// queue slot (spec §4.4 success callback: "drop the head key entirely").
func (f *FileTransfer) clearHead(key reqkey.Key) {
	delete(f.pending, key)
	if len(f.queue) > 0 && f.queue[0] == key {
		f.queue = f.queue[1:]
	}
}
