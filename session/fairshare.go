package session

// shareConsumer is one participant in a weighted fair-share distribution:
// it requests up to Want units at Priority weight, and Satisfied units are
// what the allocator could actually grant.
type shareConsumer struct {
	Priority  int
	Want      int
	Satisfied int
}

// allocateResources runs libtorrent's weighted fair-share-with-saturation
// algorithm (session_impl::operator()()'s four per-tick
// allocate_resources() calls, one each for upload rate, download rate, max
// uploads and max connections): distribute `total` units across consumers
// proportional to Priority, but never hand a consumer more than it asked
// for — the leftover from satisfied (saturated) consumers is redistributed
// among the rest in a further pass, repeating until nothing more can be
// given away or the whole budget is spent.
func allocateResources(consumers []*shareConsumer, total int) {
	if total <= 0 || len(consumers) == 0 {
		for _, c := range consumers {
			c.Satisfied = 0
		}
		return
	}
	remaining := total
	active := make([]*shareConsumer, 0, len(consumers))
	for _, c := range consumers {
		c.Satisfied = 0
		if c.Want > 0 {
			active = append(active, c)
		}
	}
	for len(active) > 0 && remaining > 0 {
		weightSum := 0
		for _, c := range active {
			weightSum += c.Priority
		}
		if weightSum == 0 {
			// no priority information carried by any remaining consumer:
			// fall back to an even split.
			for _, c := range active {
				c.Priority = 1
			}
			weightSum = len(active)
		}

		progressed := false
		pool := remaining
		next := active[:0]
		for _, c := range active {
			share := pool * c.Priority / weightSum
			if share <= 0 {
				share = 1
			}
			want := c.Want - c.Satisfied
			grant := share
			if grant > want {
				grant = want
			}
			if grant > remaining {
				grant = remaining
			}
			if grant > 0 {
				c.Satisfied += grant
				remaining -= grant
				progressed = true
			}
			if c.Satisfied < c.Want {
				next = append(next, c)
			}
		}
		active = next
		if !progressed {
			break
		}
	}
}
