package session

import (
	"net"
	"strconv"
	"time"

	"github.com/kagen/torrentd/internal/btconn"
)

// ListenOn opens the session's incoming listen socket on exactly host:port
// and starts the accept loop. It binds that single port only: when the bind
// fails it posts a listen_failed alert and returns the error without trying
// any other port of the configured range.
func (s *Session) ListenOn(host string, port uint16) error {
	l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(int(port))))
	if err != nil {
		s.postAlert(Alert{Kind: AlertListenFailed, Severity: SeverityFatal, Message: err.Error()})
		return err
	}
	s.listener = l
	go s.acceptLoop(l)
	return nil
}

// ListenPort reports the bound listen port, or 0 if not listening.
func (s *Session) ListenPort() uint16 {
	if s.listener == nil {
		return 0
	}
	addr, ok := s.listener.Addr().(*net.TCPAddr)
	if !ok {
		return 0
	}
	return uint16(addr.Port)
}

// acceptLoop accepts inbound TCP connections, applies the IP filter, and
// hands each through the BitTorrent handshake before enqueueing it onto
// the session's connection_queue — the same FIFO outbound dials use, so
// process_connection_queue() (reactor.go) treats both uniformly.
func (s *Session) acceptLoop(l net.Listener) {
	for {
		conn, err := l.Accept()
		if err != nil {
			return // listener closed: Close() tore it down
		}
		remoteIP := conn.RemoteAddr().(*net.TCPAddr).IP
		if s.ipFilter.Blocked(remoteIP) {
			conn.Close()
			continue
		}
		go s.handleIncoming(conn)
	}
}

func (s *Session) handleIncoming(conn net.Conn) {
	ih, res, err := btconn.AcceptHandshake(conn, s.isKnownTorrent, s.peerID)
	if err != nil {
		conn.Close()
		return
	}
	c := newConnection(socketID(fdOf(conn)), conn, ih, true)
	c.peerID = res.PeerID
	c.connectStart = time.Now()
	c.state = stateConnecting
	s.mu.Lock()
	s.connectionQueue = append(s.connectionQueue, c)
	s.mu.Unlock()
}

func (s *Session) isKnownTorrent(ih [20]byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.torrents[ih]
	return ok
}
