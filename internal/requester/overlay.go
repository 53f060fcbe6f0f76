package requester

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/remotetorrent/internal/candidate"
	"github.com/cenkalti/remotetorrent/internal/infohash"
	"github.com/cenkalti/remotetorrent/internal/logger"
	"github.com/cenkalti/remotetorrent/internal/scheduler"
	"github.com/cenkalti/remotetorrent/internal/transport"
)

// SearchCommunity is the explicit capability interface Design Note
// "capability discovery via class identity" asks for, replacing the
// original's isinstance(community, SearchCommunity) check: only overlay
// communities implementing this interface can field a descriptor
// request.
type SearchCommunity interface {
	CreateDescriptorRequest(ih infohash.Infohash, c candidate.Candidate)
}

// Overlay is the overlay-message requester of spec §4.3: broadcasts a
// descriptor request to every search-capable overlay community for each
// candidate. It has no completion callback of its own; any resulting
// descriptor arrives asynchronously via an unrelated overlay input path
// that the coordinator learns about through
// NotifyDescriptorReceivedViaOverlay.
type Overlay struct {
	*Base
	communities func() []SearchCommunity
	log         logger.Logger
}

// NewOverlay constructs an overlay-message requester. communities
// enumerates the currently-known overlay communities (spec §6
// enumerate_communities()); pacing is the resolved REQUEST_INTERVAL *
// priority for this instance, already carrying the platform override
// (spec §4.2: 1.0s on constrained platforms).
func NewOverlay(priority int, pacing time.Duration, sched *scheduler.Scheduler, communities func() []SearchCommunity) *Overlay {
	o := &Overlay{communities: communities, log: logger.New("overlay-requester")}
	o.Base = NewBase(fmt.Sprintf("overlay-%d", priority), priority, pacing, sched, false, o)
	return o
}

// CanRequest always allows dequeuing (spec §4.2 default).
func (o *Overlay) CanRequest() bool { return true }

// DoFetch broadcasts a descriptor request to every search community for
// each candidate (spec §4.3), returning true if any dispatch occurred.
func (o *Overlay) DoFetch(ih infohash.Infohash, candidates []candidate.Candidate) bool {
	dispatched := false
	communities := o.communities()
	for _, c := range candidates {
		for _, comm := range communities {
			comm.CreateDescriptorRequest(ih, c)
			dispatched = true
		}
	}
	return dispatched
}

// overlayBroadcastAdapter lets a plain transport.OverlayBroadcast stand
// in as a single SearchCommunity, for hosts that don't model multiple
// overlay communities.
type overlayBroadcastAdapter struct {
	b transport.OverlayBroadcast
}

func (a overlayBroadcastAdapter) CreateDescriptorRequest(ih infohash.Infohash, c candidate.Candidate) {
	a.b.SendDescriptorRequest(context.Background(), ih, c)
}

// SingleCommunity adapts a single transport.OverlayBroadcast into the
// communities() contract Overlay expects.
func SingleCommunity(b transport.OverlayBroadcast) func() []SearchCommunity {
	return func() []SearchCommunity { return []SearchCommunity{overlayBroadcastAdapter{b: b}} }
}
