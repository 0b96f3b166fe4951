package torrentimpl

import (
	"sync/atomic"

	"github.com/rcrowley/go-metrics"
)

// peerWrapper adapts a connected peer's live counters to the
// internal/policy.Peer interface the choke/unchoke algorithm runs over.
// Upload/download rate is tracked with rcrowley/go-metrics's EWMA
// (replacing the teacher's raw reset-every-tick byte counters): Update
// accumulates bytes seen since the last SecondTick, Tick() applies the
// decay and rolls the window, and Rate gives policy.Peer a smoothed
// per-second figure instead of a bursty single-tick snapshot.
type peerWrapper struct {
	interested int32
	choking    int32
	optimistic int32

	uploadRate   metrics.EWMA
	downloadRate metrics.EWMA
}

func newPeerWrapper() *peerWrapper {
	return &peerWrapper{
		uploadRate:   metrics.NewEWMA1(),
		downloadRate: metrics.NewEWMA1(),
	}
}

func (p *peerWrapper) Interested() bool             { return atomic.LoadInt32(&p.interested) != 0 }
func (p *peerWrapper) Choking() bool                { return atomic.LoadInt32(&p.choking) != 0 }
func (p *peerWrapper) OptimisticallyUnchoked() bool { return atomic.LoadInt32(&p.optimistic) != 0 }

func (p *peerWrapper) SetOptimisticallyUnchoked(v bool) {
	atomic.StoreInt32(&p.optimistic, boolToInt32(v))
}

func (p *peerWrapper) setChoking(v bool) { atomic.StoreInt32(&p.choking, boolToInt32(v)) }

func (p *peerWrapper) BytesUploadedInPeriod() int64   { return int64(p.uploadRate.Rate()) }
func (p *peerWrapper) BytesDownloadedInPeriod() int64 { return int64(p.downloadRate.Rate()) }

func (p *peerWrapper) AddUploaded(n int64)   { p.uploadRate.Update(n) }
func (p *peerWrapper) AddDownloaded(n int64) { p.downloadRate.Update(n) }

// ResetPeriodCounters rolls the EWMA window forward; called once per
// reactor SecondTick, mirroring the once-a-second Tick cadence
// rcrowley/go-metrics's own EWMA is designed around.
func (p *peerWrapper) ResetPeriodCounters() {
	p.uploadRate.Tick()
	p.downloadRate.Tick()
}

func boolToInt32(v bool) int32 {
	if v {
		return 1
	}
	return 0
}
