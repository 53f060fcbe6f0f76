package requester_test

import (
	"testing"
	"time"

	"github.com/cenkalti/remotetorrent/internal/candidate"
	"github.com/cenkalti/remotetorrent/internal/infohash"
	"github.com/cenkalti/remotetorrent/internal/requester"
	"github.com/cenkalti/remotetorrent/internal/scheduler"
	"github.com/stretchr/testify/assert"
)

type fakeCommunity struct {
	requests chan infohash.Infohash
}

func (f *fakeCommunity) CreateDescriptorRequest(ih infohash.Infohash, _ candidate.Candidate) {
	f.requests <- ih
}

func TestOverlayBroadcastsToEveryCommunity(t *testing.T) {
	sched := scheduler.New()
	defer sched.Shutdown()

	comm1 := &fakeCommunity{requests: make(chan infohash.Infohash, 4)}
	comm2 := &fakeCommunity{requests: make(chan infohash.Infohash, 4)}
	o := requester.NewOverlay(0, 10*time.Millisecond, sched, func() []requester.SearchCommunity {
		return []requester.SearchCommunity{comm1, comm2}
	})

	ih := infohash.MustParse(make([]byte, 20))
	sched.Post(func() { o.AddRequest(ih, candidate.New(nil, 0), time.Time{}) })

	for _, c := range []*fakeCommunity{comm1, comm2} {
		select {
		case got := <-c.requests:
			assert.Equal(t, ih, got)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for community dispatch")
		}
	}
}

// TestOverlayRequestsSuccessNotTracked pins down spec §4.3: requests_success
// stays permanently -1 ("not measured").
func TestOverlayRequestsSuccessNotTracked(t *testing.T) {
	sched := scheduler.New()
	defer sched.Shutdown()

	o := requester.NewOverlay(0, 10*time.Millisecond, sched, func() []requester.SearchCommunity { return nil })
	assert.Equal(t, -1, o.Counters().RequestsSuccess)
}
