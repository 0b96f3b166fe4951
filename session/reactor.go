package session

import (
	"net"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	selectorWaitBudget = 500 * time.Millisecond
	tickInterval       = time.Second
)

// run is the reactor's main loop, grounded directly on
// session_impl::operator()() in session.cpp: wait on the selector with a
// fixed budget, then walk the Send/Receive/Error/Tick phases in that
// order, purging deferred-disconnect connections between each. The Tick
// phase itself only fires once tickInterval has elapsed — ticks are never
// allowed to "catch up" in a burst after a stall, matching the original's
// `if (now - m_last_tick < milliseconds(1000)) goto check_new_connections`
// short-circuit.
func (s *Session) run() {
	defer close(s.closed)
	lastTick := s.clock.Now()
	for {
		select {
		case <-s.abort:
			s.drain()
			return
		default:
		}

		events, err := s.selector.Wait(selectorWaitBudget)
		if err != nil {
			s.postAlert(Alert{Kind: AlertListenFailed, Severity: SeverityFatal, Message: err.Error()})
		}
		s.purgeConnections()

		select {
		case <-s.abort:
			s.drain()
			return
		default:
		}

		s.processConnectionQueue()
		s.sendPhase(events)
		s.purgeConnections()

		s.receivePhase(events)
		s.purgeConnections()

		s.errorPhase(events)
		s.purgeConnections()

		now := s.clock.Now()
		if now.Sub(lastTick) >= tickInterval {
			s.tickPhase(now.Sub(lastTick))
			lastTick = now
			s.purgeConnections()
		}
	}
}

// processConnectionQueue moves sockets off the FIFO connection_queue into
// half_open and registers them with the selector, mirroring
// process_connection_queue() in session.cpp. The queue exists so a burst
// of new outbound attempts doesn't need session.mu held across the actual
// (possibly blocking) dial.
func (s *Session) processConnectionQueue() {
	s.mu.Lock()
	queue := s.connectionQueue
	s.connectionQueue = nil
	s.mu.Unlock()

	for _, c := range queue {
		if err := s.selector.Add(c.sock, c.CanRead(), c.CanWrite()); err != nil {
			s.deferDisconnect(c)
			continue
		}
		s.mu.Lock()
		s.halfOpen[c.sock] = c
		s.mu.Unlock()
	}
}

func (s *Session) connectionsSnapshot() []*Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Connection, 0, len(s.connections)+len(s.halfOpen))
	for _, c := range s.connections {
		out = append(out, c)
	}
	for _, c := range s.halfOpen {
		out = append(out, c)
	}
	return out
}

// sendPhase writes outgoing data on every writable socket.
// connection_failed()'s tri-way lookup (connections/listen_socket/
// half_open) is replaced here by connectionsSnapshot covering both maps at
// once, since our half-open connections and established ones share the
// same Connection type.
func (s *Session) sendPhase(events []selectorEvent) {
	writable := toSocketSet(events, func(e selectorEvent) bool { return e.writable })
	for _, c := range s.connectionsSnapshot() {
		if !writable[c.sock] {
			continue
		}
		if c.IsConnecting() {
			s.completeHalfOpen(c)
			continue
		}
		if err := c.SendData(); err != nil {
			s.failConnection(c, err)
		}
	}
}

func (s *Session) completeHalfOpen(c *Connection) {
	c.ConnectionComplete(s.log, s.extensions)
	s.mu.Lock()
	delete(s.halfOpen, c.sock)
	s.connections[c.sock] = c
	s.mu.Unlock()
	s.selector.SetInterest(c.sock, true, false)
}

// receivePhase reads from every readable socket, including accepting new
// incoming connections on the listen socket (handled by listen.go's
// acceptLoop goroutine feeding s.connectionQueue, so nothing special is
// required here beyond the ordinary per-connection read).
func (s *Session) receivePhase(events []selectorEvent) {
	readable := toSocketSet(events, func(e selectorEvent) bool { return e.readable })
	for _, c := range s.connectionsSnapshot() {
		if !readable[c.sock] {
			continue
		}
		if err := c.ReceiveData(); err != nil {
			s.failConnection(c, err)
		}
	}
}

func (s *Session) errorPhase(events []selectorEvent) {
	errored := toSocketSet(events, func(e selectorEvent) bool { return e.errored })
	for _, c := range s.connectionsSnapshot() {
		if errored[c.sock] {
			s.failConnection(c, NewPeerError(errConnectionReset))
		}
	}
}

// peerCandidateSource is implemented by a Torrent that can supply
// not-yet-connected peer addresses recovered from fast-resume data or a
// tracker announce (spec §4.G/§4.F's peer_map) for the reactor to dial.
type peerCandidateSource interface {
	DrainCandidates() []string
}

// tickPhase runs once per tickInterval: erase any torrent the tick finds
// aborted (firing its stopped announce first), per-torrent SecondTick/
// Announce and candidate dialing, then the four allocate_resources()
// passes (upload rate, download rate, max uploads, max connections)
// redistributing the session-wide settings across torrents by priority,
// matching session_impl::operator()()'s Tick phase exactly in shape.
func (s *Session) tickPhase(dt time.Duration) {
	s.mu.Lock()
	torrents := make([]Torrent, 0, len(s.torrents))
	for _, t := range s.torrents {
		torrents = append(torrents, t)
	}
	s.mu.Unlock()

	for _, c := range s.connectionsSnapshot() {
		if c.HasTimedOut(s.clock.Now()) {
			s.deferDisconnect(c)
			continue
		}
		c.KeepAlive()
	}

	active := torrents[:0]
	for _, t := range torrents {
		if t.State() != TorrentStopped {
			active = append(active, t)
			continue
		}
		if err := t.AnnounceStopped(); err != nil {
			s.postAlert(Alert{Kind: AlertTrackerAnnounce, Severity: SeverityInfo, InfoHash: t.InfoHash(), Message: err.Error()})
		}
		s.mu.Lock()
		delete(s.torrents, t.InfoHash())
		s.mu.Unlock()
	}
	torrents = active

	for _, t := range torrents {
		t.SecondTick(dt)
		if err := t.Announce(); err != nil {
			s.postAlert(Alert{Kind: AlertTrackerAnnounce, Severity: SeverityInfo, InfoHash: t.InfoHash(), Message: err.Error()})
		}
		if src, ok := t.(peerCandidateSource); ok {
			s.dialCandidates(t, src.DrainCandidates())
		}
	}

	s.distributeResources(torrents)
}

// maxConnectionsSource is implemented by a Torrent that tracks its own
// most recently allocated connection-count budget, so dialCandidates can
// stop opening new outbound sockets once that torrent is at its share.
type maxConnectionsSource interface {
	MaxConnections() int
}

// dialCandidates attempts an outbound connection to every address a
// torrent's peer_map surfaced since the last tick, stopping early if the
// torrent is already at its fair-share connection budget. Dial failures
// are silently dropped: an unreachable or malformed candidate is routine
// churn, not something worth an alert.
func (s *Session) dialCandidates(t Torrent, addrs []string) {
	infoHash := t.InfoHash()
	limit := -1
	if mc, ok := t.(maxConnectionsSource); ok {
		limit = mc.MaxConnections()
	}
	for _, addr := range addrs {
		if limit >= 0 && s.torrentConnectionCount(infoHash) >= limit {
			return
		}
		raddr, err := net.ResolveTCPAddr("tcp", addr)
		if err != nil {
			continue
		}
		_ = s.Connect(raddr, infoHash)
	}
}

// torrentConnectionCount counts a torrent's established and half-open
// Connections.
func (s *Session) torrentConnectionCount(infoHash [20]byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.connections {
		if ih, has := c.AssociatedTorrent(); has && ih == infoHash {
			n++
		}
	}
	for _, c := range s.halfOpen {
		if ih, has := c.AssociatedTorrent(); has && ih == infoHash {
			n++
		}
	}
	return n
}

// distributeResources runs libtorrent's weighted fair-share allocator
// identically for all four budgets spec §4.I names (upload bytes/sec,
// download bytes/sec, simultaneous uploads, simultaneous connections),
// then pushes each torrent's share both into its own SetQuota and onto the
// rate.Limiters its live Connections actually read from.
func (s *Session) distributeResources(torrents []Torrent) {
	s.settings.mu.Lock()
	ul, dl, maxUp, maxConn := s.settings.uploadRateLimit, s.settings.downloadRateLimit, s.settings.maxUploads, s.settings.maxConnections
	s.settings.mu.Unlock()

	var consumers []AllocatorConsumer
	for _, t := range torrents {
		if ac, ok := t.(AllocatorConsumer); ok {
			consumers = append(consumers, ac)
		}
	}
	if len(consumers) == 0 {
		return
	}
	sort.Slice(consumers, func(i, j int) bool {
		a, b := consumers[i].InfoHash(), consumers[j].InfoHash()
		return string(a[:]) < string(b[:])
	})

	ulShares := make([]*shareConsumer, len(consumers))
	dlShares := make([]*shareConsumer, len(consumers))
	upShares := make([]*shareConsumer, len(consumers))
	connShares := make([]*shareConsumer, len(consumers))
	for i, ac := range consumers {
		priority := ac.Priority()
		ulShares[i] = &shareConsumer{Priority: priority, Want: ul}
		dlShares[i] = &shareConsumer{Priority: priority, Want: dl}
		upShares[i] = &shareConsumer{Priority: priority, Want: maxUp}
		connShares[i] = &shareConsumer{Priority: priority, Want: maxConn}
	}
	allocateResources(ulShares, ul)
	allocateResources(dlShares, dl)
	allocateResources(upShares, maxUp)
	allocateResources(connShares, maxConn)

	for i, ac := range consumers {
		upload, download := ulShares[i].Satisfied, dlShares[i].Satisfied
		ac.SetQuota(upload, download, upShares[i].Satisfied, connShares[i].Satisfied)
		s.applyConnectionQuota(ac.InfoHash(), upload, download)
	}
}

// applyConnectionQuota splits a torrent's allocated upload/download quota
// evenly across its live Connections and pushes the result into each
// Connection's rate.Limiter, which internal/peerconn's reader/writer
// goroutines actually wait on — without this, the limiters constructed in
// newConnection never move off rate.Inf.
func (s *Session) applyConnectionQuota(infoHash [20]byte, uploadBps, downloadBps int) {
	s.mu.Lock()
	var conns []*Connection
	for _, c := range s.connections {
		if ih, has := c.AssociatedTorrent(); has && ih == infoHash {
			conns = append(conns, c)
		}
	}
	s.mu.Unlock()
	if len(conns) == 0 {
		return
	}
	ulLimit := perConnectionLimit(uploadBps, len(conns))
	dlLimit := perConnectionLimit(downloadBps, len(conns))
	for _, c := range conns {
		c.ulQuota.SetLimit(ulLimit)
		c.dlQuota.SetLimit(dlLimit)
	}
}

func perConnectionLimit(totalBps, n int) rate.Limit {
	if totalBps <= 0 {
		return rate.Inf
	}
	share := totalBps / n
	if share <= 0 {
		share = 1
	}
	return rate.Limit(share)
}

// drain mirrors the post-loop cleanup after abort in
// session_impl::operator()(): every still-registered torrent gets a
// best-effort "stopped" tracker announce fired concurrently (bounded so an
// unreachable tracker can't hang shutdown), then the reactor waits for the
// last connections to close.
func (s *Session) drain() {
	s.mu.Lock()
	torrents := make([]Torrent, 0, len(s.torrents))
	for ih, t := range s.torrents {
		torrents = append(torrents, t)
		delete(s.torrents, ih)
	}
	s.mu.Unlock()
	for _, c := range s.connectionsSnapshot() {
		s.deferDisconnect(c)
	}
	s.purgeConnections()

	var wg sync.WaitGroup
	for _, t := range torrents {
		wg.Add(1)
		go func(t Torrent) {
			defer wg.Done()
			t.AnnounceStopped()
		}(t)
	}
	announcesDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(announcesDone)
	}()
	select {
	case <-announcesDone:
	case <-time.After(5 * time.Second):
	}

	deadline := s.clock.Now().Add(5 * time.Second)
	for s.clock.Now().Before(deadline) {
		s.mu.Lock()
		n := len(s.connections) + len(s.halfOpen)
		s.mu.Unlock()
		if n == 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func (s *Session) failConnection(c *Connection, err error) {
	c.SetFailed()
	s.postAlert(Alert{Kind: AlertPeerError, Severity: SeverityDebug, Message: err.Error()})
	s.deferDisconnect(c)
}

func toSocketSet(events []selectorEvent, pred func(selectorEvent) bool) map[socketID]bool {
	set := make(map[socketID]bool, len(events))
	for _, e := range events {
		if pred(e) {
			set[e.sock] = true
		}
	}
	return set
}
