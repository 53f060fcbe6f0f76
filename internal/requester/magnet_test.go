package requester_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/remotetorrent/internal/candidate"
	"github.com/cenkalti/remotetorrent/internal/descriptor"
	"github.com/cenkalti/remotetorrent/internal/infohash"
	"github.com/cenkalti/remotetorrent/internal/requester"
	"github.com/cenkalti/remotetorrent/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMagnetHost struct {
	mu          sync.Mutex
	onDisk      map[infohash.Infohash]bool
	trackers    []string
	saved       []*descriptor.TorrentDef
	notified    []infohash.Infohash
}

func (h *fakeMagnetHost) HasDescriptor(ih infohash.Infohash) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.onDisk[ih]
}
func (h *fakeMagnetHost) Trackers(infohash.Infohash) []string { return h.trackers }
func (h *fakeMagnetHost) SaveTorrent(tdef *descriptor.TorrentDef) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.saved = append(h.saved, tdef)
}
func (h *fakeMagnetHost) NotifyPossibleDescriptor(ih infohash.Infohash) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notified = append(h.notified, ih)
}

type fakeMagnetResolver struct {
	uris    chan string
	timeout bool
	tdef    *descriptor.TorrentDef
	// respond controls whether RetrieveFromMagnet calls back at all;
	// false leaves the lookup hanging, to exercise the in-flight cap.
	respond bool
}

func (r *fakeMagnetResolver) RetrieveFromMagnet(_ context.Context, uri string,
	onSuccess func(tdef *descriptor.TorrentDef), _ time.Duration, onTimeout func(ih infohash.Infohash)) {
	r.uris <- uri
	if !r.respond {
		return
	}
	if r.timeout {
		onTimeout(r.tdef.InfoHash)
		return
	}
	onSuccess(r.tdef)
}

func TestMagnetCacheHitSkipsDHT(t *testing.T) {
	sched := scheduler.New()
	defer sched.Shutdown()

	ih := infohash.MustParse(make([]byte, 20))
	host := &fakeMagnetHost{onDisk: map[infohash.Infohash]bool{ih: true}}
	resolver := &fakeMagnetResolver{uris: make(chan string, 1), respond: true}
	m := requester.NewMagnet(0, 10*time.Millisecond, sched, host, resolver, 1, 30*time.Second)

	sched.Post(func() { m.AddRequest(ih, candidate.Candidate{}, time.Time{}) })

	select {
	case <-resolver.uris:
		t.Fatal("resolver was contacted despite an on-disk cache hit")
	case <-time.After(150 * time.Millisecond):
	}

	host.mu.Lock()
	defer host.mu.Unlock()
	require.Len(t, host.notified, 1)
	assert.Equal(t, ih, host.notified[0])
}

func TestMagnetBuildsURIWithoutSentinelTrackers(t *testing.T) {
	sched := scheduler.New()
	defer sched.Shutdown()

	ih := infohash.MustParse(make([]byte, 20))
	tdef := &descriptor.TorrentDef{InfoHash: ih, Size: 42}
	host := &fakeMagnetHost{onDisk: map[infohash.Infohash]bool{}, trackers: []string{"DHT"}}
	resolver := &fakeMagnetResolver{uris: make(chan string, 1), tdef: tdef, respond: true}
	m := requester.NewMagnet(1, 0, sched, host, resolver, 1, 30*time.Second)

	sched.Post(func() { m.AddRequest(ih, candidate.Candidate{}, time.Time{}) })

	select {
	case uri := <-resolver.uris:
		assert.Contains(t, uri, "urn:btih:"+ih.String())
		assert.NotContains(t, uri, "&tr=")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for resolver call")
	}

	// onResolved is marshalled back onto the reactor via sched.Post, so
	// the save lands after the resolver has seen the URI.
	require.Eventually(t, func() bool {
		host.mu.Lock()
		defer host.mu.Unlock()
		return len(host.saved) == 1
	}, time.Second, 5*time.Millisecond)

	host.mu.Lock()
	defer host.mu.Unlock()
	require.Len(t, host.saved, 1)
	assert.Equal(t, ih, host.saved[0].InfoHash)
}

func TestMagnetConcurrencyCap(t *testing.T) {
	sched := scheduler.New()
	defer sched.Shutdown()

	host := &fakeMagnetHost{onDisk: map[infohash.Infohash]bool{}}
	resolver := &fakeMagnetResolver{uris: make(chan string, 8), respond: false}
	m := requester.NewMagnet(0, time.Hour, sched, host, resolver, 1, time.Hour)

	var ih1, ih2 infohash.Infohash
	ih1[0] = 1
	ih2[0] = 2

	assert.True(t, m.CanRequest())
	done := make(chan struct{})
	sched.Post(func() {
		ok := m.DoFetch(ih1, nil)
		assert.True(t, ok)
		done <- struct{}{}
	})
	<-done

	canRequest := make(chan bool, 1)
	sched.Post(func() { canRequest <- m.CanRequest() })
	assert.False(t, <-canRequest, "MAX_CONCURRENT=1 must block a second in-flight resolution")
}
