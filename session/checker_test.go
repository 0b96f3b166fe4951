package session

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zeebo/bencode"
)

type fakeCheckerTorrent struct {
	infoHash       [20]byte
	numPieces      int
	pieceLength    int
	blockSize      int
	verifyAllBytes []byte
	verifyAllErr   error
	applied        bool
	seededPeers    []string
}

func (f *fakeCheckerTorrent) InfoHash() [20]byte                        { return f.infoHash }
func (f *fakeCheckerTorrent) Name() string                              { return "fake" }
func (f *fakeCheckerTorrent) State() TorrentState                       { return TorrentChecking }
func (f *fakeCheckerTorrent) NumPieces() int                            { return f.numPieces }
func (f *fakeCheckerTorrent) BlockSize() int                            { return f.blockSize }
func (f *fakeCheckerTorrent) PieceLength(int) int                       { return f.pieceLength }
func (f *fakeCheckerTorrent) SecondTick(time.Duration)                  {}
func (f *fakeCheckerTorrent) Announce() error                           { return nil }
func (f *fakeCheckerTorrent) Abort()                                    {}
func (f *fakeCheckerTorrent) FastResumeData() ([]byte, error)           { return nil, nil }
func (f *fakeCheckerTorrent) PieceAdler32(int) uint32                   { return 0 }
func (f *fakeCheckerTorrent) FileSizesMatch([][2]int64) bool            { return true }
func (f *fakeCheckerTorrent) SeedPeers(addrs []string)                  { f.seededPeers = addrs }
func (f *fakeCheckerTorrent) AnnounceStopped() error                    { return nil }
func (f *fakeCheckerTorrent) VerifyAll() ([]byte, error) {
	return f.verifyAllBytes, f.verifyAllErr
}
func (f *fakeCheckerTorrent) ApplyFastResume(pieces []byte, unfinished map[int][]byte) error {
	f.applied = true
	return nil
}

func TestCheckerFallsBackToVerifyAllWithoutResumeData(t *testing.T) {
	c := newCheckerThread(&Session{alerts: newAlertSink()})
	tr := &fakeCheckerTorrent{numPieces: 2, verifyAllBytes: []byte{0x03}}
	result := c.check(&checkJob{torrent: tr})
	require.NoError(t, result.err)
	require.Equal(t, []byte{0x03}, result.pieces)
	require.False(t, tr.applied)
}

func TestCheckerFallsBackOnUnparsableResumeData(t *testing.T) {
	c := newCheckerThread(&Session{alerts: newAlertSink()})
	tr := &fakeCheckerTorrent{numPieces: 2, verifyAllBytes: []byte{0x01}}
	result := c.check(&checkJob{torrent: tr, resumeData: []byte("garbage")})
	require.NoError(t, result.err)
	require.Equal(t, []byte{0x01}, result.pieces)

	alert, ok := c.session.alerts.pop()
	require.True(t, ok)
	require.Equal(t, AlertFastresumeRejected, alert.Kind)
}

func TestCheckerPropagatesVerifyAllError(t *testing.T) {
	c := newCheckerThread(&Session{alerts: newAlertSink()})
	tr := &fakeCheckerTorrent{numPieces: 2, verifyAllErr: errors.New("disk read failed")}
	result := c.check(&checkJob{torrent: tr})
	require.Error(t, result.err)
}

func TestCheckerReturnsInvariantViolationWhenAbortedBeforeStart(t *testing.T) {
	c := newCheckerThread(&Session{alerts: newAlertSink()})
	tr := &fakeCheckerTorrent{numPieces: 1}
	result := c.check(&checkJob{torrent: tr, abort: true})
	require.Error(t, result.err)
	var iv *InvariantViolation
	require.ErrorAs(t, result.err, &iv)
}

func TestCheckerSeedsPeersFromFastResume(t *testing.T) {
	c := newCheckerThread(&Session{alerts: newAlertSink()})
	var infoHash [20]byte

	f := fastResumeFile{
		FileFormat:  fastResumeFileFormat,
		FileVersion: fastResumeFileVersion,
		InfoHash:    string(infoHash[:]),
		Peers:       []string{"203.0.113.1:6881"},
	}
	var buf bytes.Buffer
	require.NoError(t, bencode.NewEncoder(&buf).Encode(&f))

	tr := &fakeCheckerTorrent{infoHash: infoHash, numPieces: 1, blockSize: 8, pieceLength: 8}
	result := c.check(&checkJob{torrent: tr, resumeData: buf.Bytes()})
	require.NoError(t, result.err)
	require.Equal(t, []string{"203.0.113.1:6881"}, tr.seededPeers)
}

func TestCheckerEnqueueAndCancelDropsPending(t *testing.T) {
	c := newCheckerThread(&Session{alerts: newAlertSink()})
	var ih [20]byte
	copy(ih[:], "aaaaaaaaaaaaaaaaaaaa")
	c.enqueue(&checkJob{torrent: &fakeCheckerTorrent{infoHash: ih}})
	require.Len(t, c.pending, 1)

	c.cancel(ih)
	require.Empty(t, c.pending)
}

func TestCheckerRunProcessesQueuedJobAndSignalsResult(t *testing.T) {
	c := newCheckerThread(&Session{alerts: newAlertSink()})
	go c.run()
	defer c.stop()

	tr := &fakeCheckerTorrent{numPieces: 1, verifyAllBytes: []byte{0x01}}
	resultC := make(chan checkJobResult, 1)
	c.enqueue(&checkJob{torrent: tr, resultC: resultC})

	select {
	case res := <-resultC:
		require.NoError(t, res.err)
		require.Equal(t, []byte{0x01}, res.pieces)
	case <-time.After(time.Second):
		t.Fatal("checker did not produce a result in time")
	}
}
