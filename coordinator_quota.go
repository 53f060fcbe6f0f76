package remotetorrent

import "time"

// checkOverflow is the recurring quota task of spec §4.6/P4, grounded on
// original_source's RemoteTorrentHandler.__check_overflow /
// clean_until_done: once the collected count exceeds MaxNumTorrents,
// evict back down to 95% of it in chunks, spaced out so a large
// overshoot doesn't stall the reactor in one scheduler tick.
func (c *Coordinator) checkOverflow() {
	n, err := c.db.CountCollected()
	if err != nil {
		c.log.Errorln("overflow check: count_collected failed:", err)
		return
	}
	if n <= c.maxNumTorrents {
		return
	}

	numDelete := n - int(0.95*float64(c.maxNumTorrents))
	chunk := numDelete / 180
	if chunk < 25 {
		chunk = 25
	}
	c.log.Infof("overflow: %d collected exceeds max %d, evicting %d in chunks of %d", n, c.maxNumTorrents, numDelete, chunk)
	c.cleanUntilDone(numDelete, chunk)
}

// cleanUntilDone evicts in chunk-sized steps five seconds apart (spec
// §4.6 scenario 4), re-scheduling itself on the reactor rather than
// blocking it.
func (c *Coordinator) cleanUntilDone(remaining, chunk int) {
	if remaining <= 0 {
		return
	}
	step := chunk
	if remaining < step {
		step = remaining
	}
	evicted, err := c.db.FreeSpace(step)
	if err != nil {
		c.log.Errorln("overflow: free_space failed:", err)
		return
	}
	remaining -= evicted
	if evicted == 0 {
		// Nothing left to evict; stop rather than loop forever.
		return
	}
	c.sched.CallLater("overflow_clean", 5*time.Second, func() { c.cleanUntilDone(remaining, chunk) })
}
