package policy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakePeer struct {
	interested, choking, optimistic bool
	uploaded, downloaded            int64
	resets                          int
}

func (p *fakePeer) Interested() bool                 { return p.interested }
func (p *fakePeer) Choking() bool                    { return p.choking }
func (p *fakePeer) OptimisticallyUnchoked() bool      { return p.optimistic }
func (p *fakePeer) SetOptimisticallyUnchoked(v bool) { p.optimistic = v }
func (p *fakePeer) BytesUploadedInPeriod() int64     { return p.uploaded }
func (p *fakePeer) BytesDownloadedInPeriod() int64   { return p.downloaded }
func (p *fakePeer) ResetPeriodCounters()             { p.resets++ }

func TestTickUnchokeRanksByRateWhileSeeding(t *testing.T) {
	slow := &fakePeer{interested: true, uploaded: 10}
	fast := &fakePeer{interested: true, uploaded: 1000}
	u := &Unchoker{MaxUnchoked: 1}

	var unchoked, choked []Peer
	u.TickUnchoke([]Peer{slow, fast}, true,
		func(p Peer) { choked = append(choked, p) },
		func(p Peer) { unchoked = append(unchoked, p) },
	)

	require.Equal(t, []Peer{fast}, unchoked)
	require.Equal(t, []Peer{slow}, choked)
	require.Equal(t, 1, slow.resets)
	require.Equal(t, 1, fast.resets)
}

func TestTickUnchokeSkipsUninterestedPeers(t *testing.T) {
	uninterested := &fakePeer{interested: false}
	u := &Unchoker{MaxUnchoked: 5}

	var unchoked, choked []Peer
	u.TickUnchoke([]Peer{uninterested}, true,
		func(p Peer) { choked = append(choked, p) },
		func(p Peer) { unchoked = append(unchoked, p) },
	)

	require.Empty(t, unchoked)
	require.Empty(t, choked)
}

func TestTickUnchokeLeavesOptimisticSlotAlone(t *testing.T) {
	optimistic := &fakePeer{interested: true, optimistic: true, uploaded: 9999}
	u := &Unchoker{MaxUnchoked: 1}

	var unchoked []Peer
	u.TickUnchoke([]Peer{optimistic}, true, func(Peer) {}, func(p Peer) { unchoked = append(unchoked, p) })
	require.Empty(t, unchoked, "peers already optimistically unchoked must not be double-counted")
}

func TestTickOptimisticUnchokeRotatesPreviousSlot(t *testing.T) {
	p1 := &fakePeer{interested: true, choking: true, optimistic: true}
	u := &Unchoker{MaxOptimistic: 1, optimistic: []Peer{p1}}

	var choked []Peer
	u.TickOptimisticUnchoke([]Peer{p1}, func(p Peer) { choked = append(choked, p) }, func(Peer) {})
	require.Contains(t, choked, Peer(p1))
}

func TestTickOptimisticUnchokeRespectsMax(t *testing.T) {
	peers := []Peer{
		&fakePeer{interested: true, choking: true},
		&fakePeer{interested: true, choking: true},
		&fakePeer{interested: true, choking: true},
	}
	u := &Unchoker{MaxOptimistic: 2}

	var unchoked []Peer
	u.TickOptimisticUnchoke(peers, func(Peer) {}, func(p Peer) { unchoked = append(unchoked, p) })
	require.Len(t, unchoked, 2)
}
