package remotetorrent

// QueueStats is the per-priority backlog size of one requester family
// (spec §4.6 status accessor (a)).
type QueueStats struct {
	Priority int
	Backlog  int
}

// ProgressStats is the per-priority request bookkeeping of one requester
// family (spec §4.6 status accessor (b)). The overlay-message requester,
// whose success count is not measured (spec §4.3), has no ProgressStats
// entry at all.
type ProgressStats struct {
	Priority int
	Made     int
	Success  int
	Failed   int
	OnDisk   int
}

// BandwidthStats is the per-priority byte counter of one requester
// family (spec §4.6 status accessor (c)). The overlay-message requester
// has none: it never carries payload bytes through this coordinator.
type BandwidthStats struct {
	Priority int
	Bytes    int64
}

// Status is a snapshot of every requester family's bookkeeping.
type Status struct {
	DescriptorQueues []QueueStats
	MagnetQueues     []QueueStats
	MessageQueues    []QueueStats

	DescriptorProgress []ProgressStats
	MagnetProgress     []ProgressStats

	DescriptorBandwidth []BandwidthStats
	MagnetBandwidth     []BandwidthStats
}

// Status reports a consistent snapshot of every requester family,
// computed on the reactor goroutine (grounded on the teacher's
// run.go command-channel idiom: "req := <-t.statsCommandC; req.Response
// <- t.stats()" marshals a synchronous read onto the single goroutine
// that owns the mutable state).
func (c *Coordinator) Status() Status {
	result := make(chan Status, 1)
	c.sched.Post(func() { result <- c.status() })
	return <-result
}

func (c *Coordinator) status() Status {
	var s Status

	for p, r := range c.descriptorRequesters {
		cnt := r.Counters()
		s.DescriptorQueues = append(s.DescriptorQueues, QueueStats{Priority: p, Backlog: r.Backlog()})
		s.DescriptorProgress = append(s.DescriptorProgress, ProgressStats{
			Priority: p, Made: cnt.RequestsMade, Success: cnt.RequestsSuccess,
			Failed: cnt.RequestsFailed, OnDisk: cnt.RequestsOnDisk,
		})
		s.DescriptorBandwidth = append(s.DescriptorBandwidth, BandwidthStats{Priority: p, Bytes: cnt.BytesTransferred})
	}

	for p, r := range c.magnetRequesters {
		cnt := r.Counters()
		s.MagnetQueues = append(s.MagnetQueues, QueueStats{Priority: p, Backlog: r.Backlog()})
		s.MagnetProgress = append(s.MagnetProgress, ProgressStats{
			Priority: p, Made: cnt.RequestsMade, Success: cnt.RequestsSuccess,
			Failed: cnt.RequestsFailed, OnDisk: cnt.RequestsOnDisk,
		})
		s.MagnetBandwidth = append(s.MagnetBandwidth, BandwidthStats{Priority: p, Bytes: cnt.BytesTransferred})
	}

	for p, r := range c.overlayRequesters {
		// Overlay-message progress/bandwidth are "not measured" (spec
		// §4.3): no entry is appended at all, rather than a zeroed one
		// that would read as "measured and zero".
		s.MessageQueues = append(s.MessageQueues, QueueStats{Priority: p, Backlog: r.Backlog()})
	}

	return s
}
