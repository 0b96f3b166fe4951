// Package policy implements the peer choke/unchoke selection algorithm,
// adapted from the teacher's session/timers.go (tickUnchoke/
// tickOptimisticUnchoke) but generalized over the Peer interface below so
// it no longer depends on a concrete torrent struct.
package policy

import "math/rand"

// Peer is the subset of per-connection state the unchoke algorithm needs.
// internal/torrentimpl's peer wrapper satisfies it.
type Peer interface {
	Interested() bool
	Choking() bool
	OptimisticallyUnchoked() bool
	SetOptimisticallyUnchoked(bool)
	BytesUploadedInPeriod() int64
	BytesDownloadedInPeriod() int64
	ResetPeriodCounters()
}

// Unchoker runs the regular and optimistic unchoke passes described in
// spec §4.D's per-torrent tick. MaxUnchoked comes from the session's
// fair-share allocation for this torrent; MaxOptimistic is set by the owning
// torrent (internal/torrentimpl sets it to 1).
type Unchoker struct {
	MaxUnchoked   int
	MaxOptimistic int

	optimistic []Peer
}

// TickUnchoke runs the regular unchoke algorithm: peers interested in us
// are ranked by upload rate (while seeding) or download rate (while
// leeching) and the top MaxUnchoked are unchoked.
func (u *Unchoker) TickUnchoke(peers []Peer, seeding bool, choke, unchoke func(Peer)) {
	candidates := make([]Peer, 0, len(peers))
	for _, p := range peers {
		if p.Interested() && !p.OptimisticallyUnchoked() {
			candidates = append(candidates, p)
		}
	}
	if seeding {
		sortByRate(candidates, func(p Peer) int64 { return p.BytesUploadedInPeriod() })
	} else {
		sortByRate(candidates, func(p Peer) int64 { return p.BytesDownloadedInPeriod() })
	}
	for _, p := range peers {
		p.ResetPeriodCounters()
	}
	var unchoked int
	for _, p := range candidates {
		if unchoked < u.MaxUnchoked {
			unchoke(p)
			unchoked++
			p.SetOptimisticallyUnchoked(false)
		} else {
			choke(p)
		}
	}
}

// TickOptimisticUnchoke rotates the optimistic-unchoke slot: a small
// random subset of interested, still-choked peers is unchoked regardless
// of rate, giving new peers a chance to prove themselves.
func (u *Unchoker) TickOptimisticUnchoke(peers []Peer, choke, unchoke func(Peer)) {
	for _, p := range u.optimistic {
		if p.OptimisticallyUnchoked() {
			choke(p)
		}
	}
	u.optimistic = u.optimistic[:0]

	candidates := make([]Peer, 0, len(peers))
	for _, p := range peers {
		if p.Interested() && !p.OptimisticallyUnchoked() && p.Choking() {
			candidates = append(candidates, p)
		}
	}
	for i := 0; i < u.MaxOptimistic && len(candidates) > 0; i++ {
		idx := rand.Intn(len(candidates))
		p := candidates[idx]
		candidates = append(candidates[:idx], candidates[idx+1:]...)
		p.SetOptimisticallyUnchoked(true)
		unchoke(p)
		u.optimistic = append(u.optimistic, p)
	}
}

func sortByRate(peers []Peer, rate func(Peer) int64) {
	// insertion sort: candidate lists are small (bounded by a torrent's
	// swarm size per tick), and this avoids pulling in sort.Slice's
	// closure allocation on every one-second tick.
	for i := 1; i < len(peers); i++ {
		j := i
		for j > 0 && rate(peers[j-1]) < rate(peers[j]) {
			peers[j-1], peers[j] = peers[j], peers[j-1]
			j--
		}
	}
}
