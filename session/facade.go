package session

import (
	"encoding/base64"
	"io"
	"net"
	"path/filepath"

	"github.com/kagen/torrentd/internal/metainfo"
	"github.com/kagen/torrentd/internal/resumer/boltdbresumer"
	"github.com/kagen/torrentd/internal/storage"
	"github.com/kagen/torrentd/internal/torrentimpl"
	"github.com/kagen/torrentd/internal/tracker"
)

// trackerManager returns the Session's trackerMgr field, creating the
// instance lazily on first use; every Session gets its own.
func (s *Session) trackerManager() *tracker.Manager {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trackerMgr == nil {
		s.trackerMgr = tracker.NewManager()
	}
	return s.trackerMgr
}

// AddTorrent registers a new torrent from a .torrent file's bytes,
// allocates its storage and a listen/local port, persists its fast-resume
// Spec, and enqueues it with the checker thread for initial verification —
// mirroring session::add_torrent()'s duplicate-check-then-register shape
// in session.cpp.
func (s *Session) AddTorrent(r io.Reader, destDir string) (Torrent, error) {
	mi, err := metainfo.New(r)
	if err != nil {
		return nil, err
	}
	return s.addParsed(mi, destDir)
}

func (s *Session) addParsed(mi *metainfo.MetaInfo, destDir string) (Torrent, error) {
	s.mu.Lock()
	_, dup := s.torrents[mi.Info.Hash]
	s.mu.Unlock()
	if dup {
		return nil, &DuplicateTorrent{InfoHash: mi.Info.Hash}
	}

	port, err := s.getPort()
	if err != nil {
		return nil, err
	}
	releasePort := true
	defer func() {
		if releasePort {
			s.releasePort(port)
		}
	}()

	id := base64.RawURLEncoding.EncodeToString(mi.Info.Hash[:])
	dest := filepath.Join(destDir, id)
	sto, err := storage.New(dest)
	if err != nil {
		return nil, err
	}

	res, err := boltdbresumer.New(s.db, torrentsBucket, []byte(id))
	if err != nil {
		return nil, err
	}

	t, err := torrentimpl.New(mi.Info, mi.Info.Hash, sto, mi.GetTrackers(), s.trackerManager(), res, int(port), s.peerID)
	if err != nil {
		return nil, err
	}

	if err := res.Write(&boltdbresumer.Spec{
		InfoHash: mi.Info.Hash[:],
		Dest:     dest,
		Port:     int(port),
		Name:     mi.Info.Name,
		Trackers: mi.GetTrackers(),
		Info:     mi.Info.Bytes,
	}); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.torrents[mi.Info.Hash] = t
	s.mu.Unlock()
	releasePort = false

	resumeData, _ := res.Read()
	var rd []byte
	if resumeData != nil {
		rd = resumeData.Bitfield
	}
	resultC := make(chan checkJobResult, 1)
	s.checker.enqueue(&checkJob{torrent: t, resumeData: rd, resultC: resultC})
	go s.awaitCheckResult(t, resultC)

	return t, nil
}

// awaitCheckResult observes the checker's verdict on a torrent's initial
// check, posting a file_error alert on failure or a torrent_finished alert
// when the check found every piece already complete (spec §4.F steps
// 6/10) — previously discarded because no caller ever attached resultC.
func (s *Session) awaitCheckResult(t Torrent, resultC chan checkJobResult) {
	result := <-resultC
	if result.err != nil {
		s.postAlert(Alert{
			Kind:     AlertFileError,
			Severity: SeverityWarning,
			InfoHash: t.InfoHash(),
			Message:  result.err.Error(),
		})
		return
	}
	if t.State() == TorrentSeeding {
		s.postAlert(Alert{
			Kind:     AlertTorrentFinished,
			Severity: SeverityInfo,
			InfoHash: t.InfoHash(),
		})
	}
}

// RemoveTorrent aborts a torrent and drops every Connection associated
// with it, mirroring session::remove_torrent()'s "abort if in session;
// mark abort if processing in checker, else erase" split in session.cpp.
// The torrent stays in s.torrents until the next tick: tickPhase notices
// its Stopped state, fires the tracker's "stopped" announce, and erases it
// only then (spec §4.E step 10) — erasing here would skip that announce.
func (s *Session) RemoveTorrent(infoHash [20]byte) error {
	s.mu.Lock()
	t, ok := s.torrents[infoHash]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	var toDisconnect []*Connection
	for _, c := range s.connections {
		if ih, has := c.AssociatedTorrent(); has && ih == infoHash {
			toDisconnect = append(toDisconnect, c)
		}
	}
	for _, c := range s.halfOpen {
		if ih, has := c.AssociatedTorrent(); has && ih == infoHash {
			toDisconnect = append(toDisconnect, c)
		}
	}
	s.mu.Unlock()

	s.checker.cancel(infoHash)
	t.Abort()
	for _, c := range toDisconnect {
		s.deferDisconnect(c)
	}
	return nil
}

// GetTorrents returns a snapshot of every registered torrent.
func (s *Session) GetTorrents() []Torrent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Torrent, 0, len(s.torrents))
	for _, t := range s.torrents {
		out = append(out, t)
	}
	return out
}

// GetTorrent looks up a single torrent by info-hash.
func (s *Session) GetTorrent(infoHash [20]byte) (Torrent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.torrents[infoHash]
	return t, ok
}

// Connect dials addr as a new outbound Connection for infoHash. The TCP
// dial and the BitTorrent handshake both run synchronously on the caller's
// goroutine; once they succeed the connection is queued for the reactor's
// next processConnectionQueue pass — mirrors peer_connection::connect()
// feeding session_impl's connection_queue in session.cpp.
func (s *Session) Connect(addr net.Addr, infoHash [20]byte) error {
	s.mu.Lock()
	halfOpenCount := len(s.halfOpen)
	limit := s.settings.halfOpenLimit
	s.mu.Unlock()
	if limit > 0 && halfOpenCount >= limit {
		return errHalfOpenLimitReached
	}

	c := newConnection(0, nil, infoHash, false)
	if err := c.Connect(addr, infoHash, s.peerID); err != nil {
		return err
	}
	c.sock = socketID(fdOf(c.conn))
	s.mu.Lock()
	s.connectionQueue = append(s.connectionQueue, c)
	s.mu.Unlock()
	return nil
}

// PopAlert dequeues the oldest pending alert.
func (s *Session) PopAlert() (Alert, bool) { return s.alerts.pop() }

// SetSeverityLevel changes the minimum severity PopAlert will ever return.
func (s *Session) SetSeverityLevel(sev Severity) { s.alerts.setSeverity(sev) }

// SetMaxUploads/SetMaxConnections/SetUploadRateLimit/SetDownloadRateLimit
// update the session-wide budgets the Tick phase's fair-share allocator
// redistributes across torrents every second.
func (s *Session) SetMaxUploads(n int) {
	s.settings.mu.Lock()
	s.settings.maxUploads = n
	s.settings.mu.Unlock()
}

func (s *Session) SetMaxConnections(n int) {
	s.settings.mu.Lock()
	s.settings.maxConnections = n
	s.settings.mu.Unlock()
}

func (s *Session) SetUploadRateLimit(bytesPerSec int) {
	s.settings.mu.Lock()
	s.settings.uploadRateLimit = bytesPerSec
	s.settings.mu.Unlock()
}

func (s *Session) SetDownloadRateLimit(bytesPerSec int) {
	s.settings.mu.Lock()
	s.settings.downloadRateLimit = bytesPerSec
	s.settings.mu.Unlock()
}

// SetIPFilter replaces the blocked-range set and evicts any already
// established connection that now falls inside it, matching
// session::set_ip_filter()'s "walk m_connections, close anything now
// blocked" pass in session.cpp.
func (s *Session) SetIPFilter(blocks [][2]net.IP) {
	s.ipFilter.Reset()
	for _, b := range blocks {
		s.ipFilter.Block(b[0], b[1])
	}
	s.mu.Lock()
	var toEvict []*Connection
	for _, c := range s.connections {
		if tc, ok := c.conn.(*net.TCPConn); ok {
			if addr, ok := tc.RemoteAddr().(*net.TCPAddr); ok && s.ipFilter.Blocked(addr.IP) {
				toEvict = append(toEvict, c)
			}
		}
	}
	s.mu.Unlock()
	for _, c := range toEvict {
		s.deferDisconnect(c)
	}
}

