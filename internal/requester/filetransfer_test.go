package requester_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/cenkalti/remotetorrent/internal/candidate"
	"github.com/cenkalti/remotetorrent/internal/infohash"
	"github.com/cenkalti/remotetorrent/internal/reqkey"
	"github.com/cenkalti/remotetorrent/internal/requester"
	"github.com/cenkalti/remotetorrent/internal/scheduler"
	"github.com/cenkalti/remotetorrent/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFileTransfer lets a test script exactly which candidate
// succeeds/fails, mirroring the scenario tables in spec §8.
type fakeFileTransfer struct {
	t        *testing.T
	attempts chan net.IP
	// fail reports whether the download from ip should fail.
	fail map[string]bool
}

func (f *fakeFileTransfer) DownloadFile(_ context.Context, filename string, ip net.IP, port int, extra transport.ExtraInfo,
	onSuccess func(addr *net.TCPAddr, filename string, data []byte, extra transport.ExtraInfo),
	onFailure func(addr *net.TCPAddr, filename string, errMsg string, extra transport.ExtraInfo)) {
	f.attempts <- ip
	addr := &net.TCPAddr{IP: ip, Port: port}
	if f.fail[ip.String()] {
		onFailure(addr, filename, "connection refused", extra)
		return
	}
	onSuccess(addr, filename, []byte("descriptor-bytes"), extra)
}

func TestFileTransferFailoverToSecondCandidate(t *testing.T) {
	sched := scheduler.New()
	defer sched.Shutdown()

	ft := &fakeFileTransfer{
		t:        t,
		attempts: make(chan net.IP, 4),
		fail:     map[string]bool{"10.0.0.1": true},
	}
	savedC := make(chan []byte, 1)
	req := requester.NewFileTransfer("ft-descriptor", 0, 10*time.Millisecond, sched, ft,
		func(key reqkey.Key) string { return key.Infohash.Filename() },
		func(_ reqkey.Key, data []byte) { savedC <- data })

	ih := infohash.MustParse(make([]byte, 20))
	c1 := candidate.New(net.ParseIP("10.0.0.1"), 1)
	c2 := candidate.New(net.ParseIP("10.0.0.2"), 2)

	sched.Post(func() {
		req.AddRequest(reqkey.Descriptor(ih), c1, time.Time{})
		req.AddRequest(reqkey.Descriptor(ih), c2, time.Time{})
	})

	// Order of attempts must be [C1, C2] (spec P3 / scenario 2).
	first := waitForIP(t, ft.attempts)
	assert.Equal(t, "10.0.0.1", first.String())
	second := waitForIP(t, ft.attempts)
	assert.Equal(t, "10.0.0.2", second.String())

	select {
	case data := <-savedC:
		assert.Equal(t, []byte("descriptor-bytes"), data)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for save callback")
	}

	done := make(chan bool, 1)
	sched.Post(func() { done <- req.HasRequested(reqkey.Descriptor(ih)) })
	require.False(t, <-done, "head key must be cleared after success")
}

// TestFileTransferDedupesCandidates pins down spec P3/P7: re-adding a
// candidate already recorded as untried must not queue it twice. With
// dedup broken, the single failing candidate would be retried rather
// than exhausting the key after its first attempt.
func TestFileTransferDedupesCandidates(t *testing.T) {
	sched := scheduler.New()
	defer sched.Shutdown()

	ft := &fakeFileTransfer{
		t:        t,
		attempts: make(chan net.IP, 4),
		fail:     map[string]bool{"10.0.0.1": true},
	}
	req := requester.NewFileTransfer("ft-descriptor", 0, 10*time.Millisecond, sched, ft,
		func(key reqkey.Key) string { return key.Infohash.Filename() },
		func(reqkey.Key, []byte) {})

	ih := infohash.MustParse(make([]byte, 20))
	c1 := candidate.New(net.ParseIP("10.0.0.1"), 1)

	sched.Post(func() {
		req.AddRequest(reqkey.Descriptor(ih), c1, time.Time{})
		req.AddRequest(reqkey.Descriptor(ih), c1, time.Time{}) // duplicate, must not re-queue
	})

	first := waitForIP(t, ft.attempts)
	assert.Equal(t, "10.0.0.1", first.String())

	select {
	case ip := <-ft.attempts:
		t.Fatalf("candidate %s retried; dedup failed", ip)
	case <-time.After(100 * time.Millisecond):
	}

	cleared := make(chan bool, 1)
	sched.Post(func() { cleared <- req.HasRequested(reqkey.Descriptor(ih)) })
	assert.False(t, <-cleared, "key with no untried candidates left must be dropped")
}

func waitForIP(t *testing.T, c chan net.IP) net.IP {
	t.Helper()
	select {
	case ip := <-c:
		return ip
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for download attempt")
		return nil
	}
}
