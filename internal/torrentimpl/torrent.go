// Package torrentimpl is the concrete session.Torrent implementation,
// adapted from the teacher's session/torrent.go field layout. It runs no
// goroutine or event loop of its own: the session's reactor and checker
// call its methods (SecondTick, Announce, VerifyAll, ...) through the
// session package's Torrent interface.
package torrentimpl

import (
	"context"
	"crypto/sha1"
	"hash/adler32"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/kagen/torrentd/internal/bitfield"
	"github.com/kagen/torrentd/internal/logger"
	"github.com/kagen/torrentd/internal/metainfo"
	"github.com/kagen/torrentd/internal/policy"
	"github.com/kagen/torrentd/internal/resumer/boltdbresumer"
	"github.com/kagen/torrentd/internal/storage"
	"github.com/kagen/torrentd/internal/tracker"
	"github.com/kagen/torrentd/session"
)

// Torrent implements session.Torrent and session.AllocatorConsumer.
type Torrent struct {
	info    *metainfo.Info
	infoHash [20]byte
	sto     *storage.FileStorage
	trackers []string
	trackerMgr *tracker.Manager
	resumer *boltdbresumer.Resumer
	log     logger.Logger

	port   int
	peerID [20]byte

	mu          sync.Mutex
	pieces      *bitfield.Bitfield
	peers       map[*peerWrapper]struct{}
	unchoker    policy.Unchoker
	state       session.TorrentState
	bytesUp     int64
	bytesDown   int64
	priority    int
	lastAnnounce time.Time
	announceInterval time.Duration
	announced        bool
	completedSent    bool

	uploadBps      int
	downloadBps    int
	maxConnections int

	candidates []string
}

// New constructs a Torrent ready to be registered with a session. Storage
// is allocated immediately; piece verification happens later, driven by
// the checker thread via VerifyAll/ApplyFastResume.
func New(info *metainfo.Info, infoHash [20]byte, sto *storage.FileStorage, trackers []string, trackerMgr *tracker.Manager, res *boltdbresumer.Resumer, port int, peerID [20]byte) (*Torrent, error) {
	if err := sto.Allocate(info); err != nil {
		return nil, err
	}
	return &Torrent{
		info:       info,
		infoHash:   infoHash,
		sto:        sto,
		trackers:   trackers,
		trackerMgr: trackerMgr,
		resumer:    res,
		log:        logger.New("torrent"),
		port:       port,
		peerID:     peerID,
		pieces:     bitfield.New(uint32(info.NumPieces())),
		peers:      make(map[*peerWrapper]struct{}),
		state:      session.TorrentChecking,
		priority:   1,
		announceInterval: 30 * time.Minute,
	}, nil
}

func (t *Torrent) InfoHash() [20]byte      { return t.infoHash }
func (t *Torrent) Name() string            { return t.info.Name }
func (t *Torrent) NumPieces() int          { return t.info.NumPieces() }
func (t *Torrent) PieceLength(i int) int   { return int(t.info.PieceLengthAt(i)) }

// BlockSize is fixed at 16KiB, the BEP3 convention every mainline client
// uses for request granularity.
func (t *Torrent) BlockSize() int { return 16 * 1024 }

func (t *Torrent) State() session.TorrentState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Torrent) Priority() int { return t.priority }

// SetQuota installs this torrent's current slice of the session's
// fair-share allocation (spec §4.I): maxUploads feeds the choke algorithm
// directly, while uploadBps/downloadBps/maxConnections are kept for the
// reactor to read back (UploadQuota/DownloadQuota/MaxConnections) when it
// spreads the byte-rate budget across this torrent's live Connections and
// decides whether it has room to dial another peer.
func (t *Torrent) SetQuota(uploadBps, downloadBps, maxUploads, maxConnections int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.uploadBps = uploadBps
	t.downloadBps = downloadBps
	t.maxConnections = maxConnections
	t.unchoker.MaxUnchoked = maxUploads
	if t.unchoker.MaxOptimistic == 0 {
		t.unchoker.MaxOptimistic = 1
	}
}

func (t *Torrent) UploadQuota() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.uploadBps
}

func (t *Torrent) DownloadQuota() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.downloadBps
}

func (t *Torrent) MaxConnections() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxConnections
}

// SeedPeers registers peer addresses recovered from fast-resume data or a
// tracker announce as outbound-connection candidates; DrainCandidates
// hands them to the reactor and clears the backlog.
func (t *Torrent) SeedPeers(addrs []string) {
	if len(addrs) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.candidates = append(t.candidates, addrs...)
}

func (t *Torrent) DrainCandidates() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.candidates
	t.candidates = nil
	return out
}

// Abort marks the torrent TorrentStopped, after which SecondTick does
// nothing. The torrent has no background work of its own to stop; the
// session's reactor owns tearing down this torrent's Connections
// separately.
func (t *Torrent) Abort() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = session.TorrentStopped
}

// SecondTick runs the choke/unchoke algorithm and rolls over per-period
// byte counters, mirroring the teacher's torrent.run() handling of its
// tick channel case.
func (t *Torrent) SecondTick(dt time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == session.TorrentStopped {
		return
	}
	peers := make([]policy.Peer, 0, len(t.peers))
	for p := range t.peers {
		peers = append(peers, p)
	}
	seeding := t.pieces.All()
	t.unchoker.TickUnchoke(peers, seeding, t.choke, t.unchoke)
	t.unchoker.TickOptimisticUnchoke(peers, t.choke, t.unchoke)
}

func (t *Torrent) choke(p policy.Peer)   { p.(*peerWrapper).setChoking(true) }
func (t *Torrent) unchoke(p policy.Peer) { p.(*peerWrapper).setChoking(false) }

// Announce contacts the torrent's first listed tracker (no other tracker is
// tried when that one fails) if the last successful
// announce's interval has elapsed, or immediately if no announce has ever
// been sent (the mandatory BEP3 "started" event) or the download has just
// finished (the mandatory "completed" event). A failure here is always
// non-fatal (spec §4.D): the caller only logs/alerts, never aborts the
// torrent.
func (t *Torrent) Announce() error {
	t.mu.Lock()
	event := tracker.EventNone
	switch {
	case !t.announced:
		event = tracker.EventStarted
	case t.bytesLeftLocked() == 0 && !t.completedSent:
		event = tracker.EventCompleted
	}
	due := event != tracker.EventNone || time.Since(t.lastAnnounce) >= t.announceInterval
	hasTrackers := len(t.trackers) > 0
	t.mu.Unlock()
	if !due || !hasTrackers {
		return nil
	}

	resp, err := t.doAnnounce(event)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.lastAnnounce = time.Now()
	t.announced = true
	if event == tracker.EventCompleted {
		t.completedSent = true
	}
	if resp != nil {
		if resp.Interval > 0 {
			t.announceInterval = time.Duration(resp.Interval) * time.Second
		}
		t.candidates = append(t.candidates, peerAddrs(resp.Peers)...)
	}
	t.mu.Unlock()
	return nil
}

// AnnounceStopped sends the mandatory BEP3 "stopped" event once, when the
// torrent is removed or the session shuts down (spec §4.E step 10). It
// does not update lastAnnounce/announceInterval: a stopped torrent never
// announces again.
func (t *Torrent) AnnounceStopped() error {
	t.mu.Lock()
	hasTrackers := len(t.trackers) > 0
	t.mu.Unlock()
	if !hasTrackers {
		return nil
	}
	_, err := t.doAnnounce(tracker.EventStopped)
	return err
}

func (t *Torrent) doAnnounce(event tracker.Event) (*tracker.AnnounceResponse, error) {
	t.mu.Lock()
	left := t.bytesLeftLocked()
	t.mu.Unlock()
	client := t.trackerMgr.Get(t.trackers[0], 15*time.Second, "torrentd/1.0")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return client.Announce(ctx, tracker.Torrent{
		InfoHash:        t.infoHash,
		PeerID:          t.peerID,
		Port:            t.port,
		BytesUploaded:   t.bytesUp,
		BytesDownloaded: t.bytesDown,
		BytesLeft:       left,
	}, event, 50)
}

// peerAddrs renders a tracker's compact peer list as dial targets in the
// same "host:port" shape SeedPeers expects from fast-resume data.
func peerAddrs(peers []tracker.Peer) []string {
	if len(peers) == 0 {
		return nil
	}
	addrs := make([]string, 0, len(peers))
	for _, p := range peers {
		addrs = append(addrs, net.JoinHostPort(p.IP.String(), strconv.Itoa(int(p.Port))))
	}
	return addrs
}

func (t *Torrent) bytesLeftLocked() int64 {
	total := t.info.TotalLength()
	have := int64(t.pieces.Count()) * t.info.PieceLength
	if have > total {
		have = total
	}
	return total - have
}

// FastResumeData returns the torrent's current piece map as the packed
// bitfield bytes ApplyFastResume accepts. It does not bencode them into a
// fast-resume file and does not write them to the resumer.
func (t *Torrent) FastResumeData() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pieces.Bytes(), nil
}

func (t *Torrent) ApplyFastResume(pieces []byte, unfinished map[int][]byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	bf, err := bitfield.NewBytes(pieces, uint32(t.info.NumPieces()))
	if err != nil {
		return err
	}
	t.pieces = bf
	if t.pieces.All() {
		t.state = session.TorrentSeeding
	} else {
		t.state = session.TorrentDownloading
	}
	return nil
}

// PieceAdler32 recomputes the checksum over a piece's on-disk bytes, the
// same validation parse_resume_data performs before trusting an
// "unfinished" resume entry's bitmask (spec §4.G step 6). A read failure
// reports a checksum of zero, which parseFastResume's comparison treats as
// untrusted and falls back to re-downloading the piece.
func (t *Torrent) PieceAdler32(piece int) uint32 {
	if piece < 0 || piece >= t.info.NumPieces() {
		return 0
	}
	length := t.info.PieceLengthAt(piece)
	buf := make([]byte, length)
	offset := int64(piece) * t.info.PieceLength
	if _, err := t.sto.ReadAt(buf, offset); err != nil {
		return 0
	}
	return adler32.Checksum(buf)
}

// FileSizesMatch compares the resume file's recorded sizes (the first
// element of each [size, mtime] pair) against what Allocate already created
// on disk.
func (t *Torrent) FileSizesMatch(sizes [][2]int64) bool {
	if len(t.info.Files) == 0 {
		return len(sizes) == 1 && sizes[0][0] == t.info.Length
	}
	if len(sizes) != len(t.info.Files) {
		return false
	}
	for i, f := range t.info.Files {
		if sizes[i][0] != f.Length {
			return false
		}
	}
	return true
}

// VerifyAll hashes every piece currently on disk, the full-scan fallback
// the checker thread uses when fast-resume data is absent or rejected.
func (t *Torrent) VerifyAll() ([]byte, error) {
	n := t.info.NumPieces()
	bf := bitfield.New(uint32(n))
	buf := make([]byte, t.info.PieceLength)
	var offset int64
	for i := 0; i < n; i++ {
		length := t.info.PieceLengthAt(i)
		chunk := buf[:length]
		if _, err := t.sto.ReadAt(chunk, offset); err != nil {
			return nil, session.NewFileError(err)
		}
		sum := sha1.Sum(chunk)
		if string(sum[:]) == string(t.info.PieceHash(i)) {
			bf.Set(uint32(i))
		}
		offset += length
	}
	t.mu.Lock()
	t.pieces = bf
	if bf.All() {
		t.state = session.TorrentSeeding
	} else {
		t.state = session.TorrentDownloading
	}
	t.mu.Unlock()
	return bf.Bytes(), nil
}
