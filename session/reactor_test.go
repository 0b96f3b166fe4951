package session

import (
	"testing"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/stretchr/testify/require"

	"github.com/kagen/torrentd/internal/logger"
)

// fakeTickTorrent is a minimal Torrent+AllocatorConsumer used to observe
// how many times the reactor's Tick phase actually fires.
type fakeTickTorrent struct {
	ticks    int
	priority int
	quota    int
}

func (f *fakeTickTorrent) InfoHash() [20]byte                         { return [20]byte{1} }
func (f *fakeTickTorrent) Name() string                               { return "fake" }
func (f *fakeTickTorrent) State() TorrentState                        { return TorrentDownloading }
func (f *fakeTickTorrent) NumPieces() int                             { return 1 }
func (f *fakeTickTorrent) BlockSize() int                             { return 1 }
func (f *fakeTickTorrent) PieceLength(int) int                        { return 1 }
func (f *fakeTickTorrent) SecondTick(time.Duration)                   { f.ticks++ }
func (f *fakeTickTorrent) Announce() error                            { return nil }
func (f *fakeTickTorrent) Abort()                                     {}
func (f *fakeTickTorrent) FastResumeData() ([]byte, error)            { return nil, nil }
func (f *fakeTickTorrent) ApplyFastResume([]byte, map[int][]byte) error { return nil }
func (f *fakeTickTorrent) PieceAdler32(int) uint32                    { return 0 }
func (f *fakeTickTorrent) FileSizesMatch([][2]int64) bool             { return true }
func (f *fakeTickTorrent) VerifyAll() ([]byte, error)                 { return nil, nil }
func (f *fakeTickTorrent) SeedPeers([]string)                         {}
func (f *fakeTickTorrent) AnnounceStopped() error                     { return nil }
func (f *fakeTickTorrent) Priority() int                              { return f.priority }
func (f *fakeTickTorrent) SetQuota(upload, download, maxUploads, maxConnections int) {
	f.quota = upload
}

// newBareSession builds a Session directly, bypassing New's bolt/selector
// setup, so reactor cadence can be driven against a clock.Mock instead of
// wall-clock sleeps.
func newBareSession(t *testing.T) (*Session, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	s := &Session{
		clock:       mock,
		log:         logger.New("test"),
		alerts:      newAlertSink(),
		selector:    newPipeSelector(),
		halfOpen:    make(map[socketID]*Connection),
		connections: make(map[socketID]*Connection),
		torrents:    make(map[[20]byte]Torrent),
		abort:       make(chan struct{}),
		closed:      make(chan struct{}),
	}
	return s, mock
}

func TestTickPhaseDrivesSecondTickAndAllocatesQuota(t *testing.T) {
	s, _ := newBareSession(t)
	ft := &fakeTickTorrent{priority: 1}
	s.torrents[ft.InfoHash()] = ft
	s.settings.uploadRateLimit = 1000
	s.settings.maxUploads = 4
	s.settings.maxConnections = 10

	s.tickPhase(time.Second)

	require.Equal(t, 1, ft.ticks)
	require.Equal(t, 1000, ft.quota)
}

func TestReactorOnlyTicksOncePerTickInterval(t *testing.T) {
	s, mock := newBareSession(t)
	ft := &fakeTickTorrent{priority: 1}
	s.torrents[ft.InfoHash()] = ft

	go s.run()
	defer func() {
		close(s.abort)
		<-s.closed
	}()

	// Let the reactor spin a few times without advancing the clock: the
	// tick gate (now - lastTick >= tickInterval) must stay closed.
	require.Never(t, func() bool { return ft.ticks > 0 }, 100*time.Millisecond, 10*time.Millisecond)

	mock.Add(tickInterval)
	require.Eventually(t, func() bool { return ft.ticks >= 1 }, time.Second, 5*time.Millisecond)
}
