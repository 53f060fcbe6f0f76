package requester

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/remotetorrent/internal/candidate"
	"github.com/cenkalti/remotetorrent/internal/descriptor"
	"github.com/cenkalti/remotetorrent/internal/infohash"
	"github.com/cenkalti/remotetorrent/internal/logger"
	"github.com/cenkalti/remotetorrent/internal/magnet"
	"github.com/cenkalti/remotetorrent/internal/scheduler"
	"github.com/cenkalti/remotetorrent/internal/transport"
)

// MagnetHost is what the magnet requester needs from the coordinator
// (spec §4.5): check the collection directory and database, and persist
// a resolved descriptor. Kept as a narrow interface here (rather than an
// import of the root package) to avoid a coordinator<->requester import
// cycle, the same reason original_source's MagnetRequester only ever
// calls back through its remote_torrent_handler reference.
type MagnetHost interface {
	HasDescriptor(ih infohash.Infohash) bool
	Trackers(ih infohash.Infohash) []string
	SaveTorrent(tdef *descriptor.TorrentDef)
	NotifyPossibleDescriptor(ih infohash.Infohash)
}

// Magnet is the DHT-based fallback requester of spec §4.5: bounded
// concurrency via a simple in-flight count, ignoring candidates entirely
// since resolution goes through the DHT.
type Magnet struct {
	*Base
	host            MagnetHost
	resolver        transport.MagnetResolver
	retrieveTimeout time.Duration
	log             logger.Logger

	maxConcurrent int
	inFlight      map[infohash.Infohash]struct{}
}

// DefaultMaxConcurrent is MAX_CONCURRENT from spec §4.5.
const DefaultMaxConcurrent = 1

// PriorityMaxConcurrent is the override for priority <= 1 on
// non-file-descriptor-constrained platforms (spec §4.5).
const PriorityMaxConcurrent = 3

// NewMagnet constructs a magnet requester. maxConcurrent is the
// resolved MAX_CONCURRENT for this priority/platform combination (spec
// §4.5); retrieveTimeout is MAGNET_RETRIEVE_TIMEOUT (30s default).
func NewMagnet(priority int, pacing time.Duration, sched *scheduler.Scheduler,
	host MagnetHost, resolver transport.MagnetResolver, maxConcurrent int, retrieveTimeout time.Duration) *Magnet {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	m := &Magnet{
		host:            host,
		resolver:        resolver,
		retrieveTimeout: retrieveTimeout,
		log:             logger.New("magnet-requester"),
		maxConcurrent:   maxConcurrent,
		inFlight:        make(map[infohash.Infohash]struct{}),
	}
	m.Base = NewBase(fmt.Sprintf("magnet-%d", priority), priority, pacing, sched, true, m)
	return m
}

// CanRequest implements spec P5: in-flight resolutions bounded by
// MAX_CONCURRENT.
func (m *Magnet) CanRequest() bool {
	return len(m.inFlight) < m.maxConcurrent
}

// DoFetch implements spec §4.5: if ih is already in flight, no-op
// (returns false). Otherwise mark it in flight and check the collection
// directory first; a cache hit short-circuits straight to notification
// without touching the DHT, a miss builds a magnet URI from the
// database's known trackers and submits it to the resolver.
func (m *Magnet) DoFetch(ih infohash.Infohash, _ []candidate.Candidate) bool {
	if _, already := m.inFlight[ih]; already {
		return false
	}
	m.inFlight[ih] = struct{}{}

	if m.host.HasDescriptor(ih) {
		m.release(ih)
		m.host.NotifyPossibleDescriptor(ih)
		m.Base.counters.RequestsOnDisk++
		return true
	}

	trackers := m.host.Trackers(ih)
	uri := magnet.New(ih, trackers)
	m.log.Debugln("requesting magnet for", ih, ":", uri)

	// Per transport.MagnetResolver's contract, a real implementation
	// invokes onSuccess/onTimeout asynchronously from its own goroutine
	// (e.g. magnetresolver.DHTResolver's processResults loop), so both
	// are marshalled back onto the reactor rather than invoked directly.
	m.resolver.RetrieveFromMagnet(context.Background(), uri, func(tdef *descriptor.TorrentDef) {
		m.sched.Post(func() { m.onResolved(ih, tdef) })
	}, m.retrieveTimeout, func(failedIH infohash.Infohash) {
		m.sched.Post(func() { m.onTimeout(failedIH) })
	})
	return true
}

func (m *Magnet) onResolved(ih infohash.Infohash, tdef *descriptor.TorrentDef) {
	m.release(ih)
	m.host.SaveTorrent(tdef)
	m.Base.counters.RequestsSuccess++
	m.Base.counters.BytesTransferred += tdef.Size
}

func (m *Magnet) onTimeout(ih infohash.Infohash) {
	m.release(ih)
	m.Base.counters.RequestsFailed++
}

func (m *Magnet) release(ih infohash.Infohash) {
	delete(m.inFlight, ih)
}
