// Package requester implements the per-priority request queues and
// pacing loops of spec §4.2-§4.5: Base (the shared pacing loop used by
// the overlay-message and magnet requesters), Overlay, FileTransfer, and
// Magnet.
//
// Translated from original_source's Requester/TorrentMessageRequester/
// TftpRequester/TftpTorrentRequester/TftpMetadataRequester/MagnetRequester
// class hierarchy (Python inheritance -> Go struct embedding, per Design
// Note "per-requester pacing... state machine").
//
// None of the types in this package use internal locking: every method
// is only ever called while already running on the coordinator's
// reactor goroutine (spec §5 "every coordinator/requester method
// executes on one designated reactor thread"); the Coordinator's public
// entry points and the transport callbacks that FileTransfer and Magnet
// hand to their transports are the boundaries that marshal external
// calls onto it via scheduler.Post.
package requester

import (
	"time"

	"github.com/cenkalti/remotetorrent/internal/candidate"
	"github.com/cenkalti/remotetorrent/internal/infohash"
	"github.com/cenkalti/remotetorrent/internal/logger"
	"github.com/cenkalti/remotetorrent/internal/scheduler"
)

// Counters are the per-requester bookkeeping fields of spec §3.
type Counters struct {
	RequestsMade int
	// RequestsSuccess is -1 to mean "not tracked" (overlay-message
	// requester, spec §4.3).
	RequestsSuccess  int
	RequestsFailed   int
	RequestsOnDisk   int
	BytesTransferred int64
}

// Fetcher is the extension point the overlay-message and magnet
// requesters implement and pass to Base (spec §4.2): CanRequest gates
// whether the pacing loop may dequeue at all; DoFetch performs the
// actual dispatch for one key against its snapshotted candidate set,
// returning whether a dispatch occurred.
type Fetcher interface {
	CanRequest() bool
	DoFetch(ih infohash.Infohash, candidates []candidate.Candidate) bool
}

// Base is the shared pacing loop of spec §4.2: a FIFO queue of pending
// infohashes, a key -> candidate-set dedup map (for coalescing
// concurrent add_request calls, spec P7), per-requester counters, and a
// single named scheduled wake driving it all.
type Base struct {
	Priority       int
	PacingInterval time.Duration

	sched   *scheduler.Scheduler
	log     logger.Logger
	name    string
	fetcher Fetcher

	queue     []infohash.Infohash
	sources   map[infohash.Infohash]map[string]candidate.Candidate
	deadlines map[infohash.Infohash]time.Time
	counters  Counters
}

// NewBase wires up a Base. successTracked is false for the
// overlay-message requester, which permanently reports -1 ("not
// measured", spec §4.3).
func NewBase(name string, priority int, pacing time.Duration, sched *scheduler.Scheduler, successTracked bool, fetcher Fetcher) *Base {
	b := &Base{
		Priority:       priority,
		PacingInterval: pacing,
		sched:          sched,
		log:            logger.New(name),
		name:           name,
		fetcher:        fetcher,
		sources:        make(map[infohash.Infohash]map[string]candidate.Candidate),
		deadlines:      make(map[infohash.Infohash]time.Time),
	}
	if !successTracked {
		b.counters.RequestsSuccess = -1
	}
	return b
}

// Counters returns a snapshot of the current bookkeeping fields.
func (b *Base) Counters() Counters { return b.counters }

// Backlog is the number of distinct keys currently tracked (dedup map
// size), used by the coordinator's queue-size status accessor.
func (b *Base) Backlog() int { return len(b.sources) }

// CandidateCount returns the number of distinct candidates recorded for
// ih (spec P7), or 0 if ih isn't currently tracked.
func (b *Base) CandidateCount(ih infohash.Infohash) int {
	return len(b.sources[ih])
}

// AddRequest enqueues ih for c, recording c in the key's candidate set
// if it isn't already there (spec P7: each new candidate recorded
// exactly once). deadline is the zero Time for "never" (spec §3
// PendingRequest default). Schedules the first paced wake when a
// previously empty queue receives its first request.
func (b *Base) AddRequest(ih infohash.Infohash, c candidate.Candidate, deadline time.Time) {
	queueWasEmpty := len(b.queue) == 0

	set, ok := b.sources[ih]
	if !ok {
		set = make(map[string]candidate.Candidate)
		b.sources[ih] = set
	}
	set[c.Key()] = c
	b.deadlines[ih] = deadline
	b.queue = append(b.queue, ih)

	if queueWasEmpty {
		b.scheduleWake(b.PacingInterval)
	}
}

// HasRequested reports whether ih is currently tracked.
func (b *Base) HasRequested(ih infohash.Infohash) bool {
	_, ok := b.sources[ih]
	return ok
}

// RemoveRequest drops a tracked key, e.g. when the coordinator learns
// the descriptor arrived through another path (spec §4.6 callback
// fan-out: "tell every magnet/overlay-message requester to forget that
// key").
func (b *Base) RemoveRequest(ih infohash.Infohash) {
	delete(b.sources, ih)
	delete(b.deadlines, ih)
}

func (b *Base) scheduleWake(delay time.Duration) {
	b.sched.CallLater(b.name+" requester wake", delay, b.wake)
}

// wake is the pacing loop of spec §4.2 steps 2-4, translated directly
// from original_source's Requester._do_request.
func (b *Base) wake() {
	madeRequest := false

	if b.fetcher.CanRequest() {
		for {
			ih, ok := b.popQueue()
			if !ok {
				// Queue fully drained (original's Queue.Empty): no
				// reschedule until the next add_request.
				return
			}
			if deadline, hasDeadline := b.deadlines[ih]; hasDeadline && !deadline.IsZero() && time.Now().After(deadline) {
				b.log.Debugln("dropping expired request for", ih)
				b.RemoveRequest(ih)
				continue
			}
			set, stillTracked := b.sources[ih]
			if !stillTracked {
				// Duplicate queue entry for an already-processed or
				// already-removed key; skip it.
				continue
			}
			candidates := make([]candidate.Candidate, 0, len(set))
			for _, c := range set {
				candidates = append(candidates, c)
			}
			b.RemoveRequest(ih)

			madeRequest = b.safeDoFetch(ih, candidates)
			if madeRequest {
				b.counters.RequestsMade++
			}
			break
		}
	}

	if madeRequest || !b.fetcher.CanRequest() {
		b.scheduleWake(b.PacingInterval)
	} else {
		b.scheduleWake(0)
	}
}

// safeDoFetch catches anything DoFetch panics with so one bad request
// can't stop the pacing loop (spec §4.2 step 4 / §7 "callback exception
// ... caught inside the pacing loop so the loop survives").
func (b *Base) safeDoFetch(ih infohash.Infohash, candidates []candidate.Candidate) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Errorln("do_fetch panicked for", ih, ":", r)
			ok = false
		}
	}()
	return b.fetcher.DoFetch(ih, candidates)
}

func (b *Base) popQueue() (infohash.Infohash, bool) {
	if len(b.queue) == 0 {
		return infohash.Infohash{}, false
	}
	ih := b.queue[0]
	b.queue = b.queue[1:]
	return ih, true
}
