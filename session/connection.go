package session

import (
	"net"
	"time"

	"golang.org/x/time/rate"

	"github.com/kagen/torrentd/internal/bitfield"
	"github.com/kagen/torrentd/internal/btconn"
	"github.com/kagen/torrentd/internal/peerconn"
)

// connState is a Connection's position in the §3/§4.C lifecycle. The four
// states correspond 1:1 with the four disjoint session collections a
// Connection can occupy.
type connState int

const (
	stateQueued connState = iota
	stateConnecting
	stateEstablished
	statePendingDisconnect
)

// socketID is the key every session collection is keyed by — never by
// address, per the §3 invariant. It is the connection's file descriptor,
// which Selector also uses as its native key.
type socketID int

// Connection is one active TCP attempt/session with a peer (spec §4.C). It
// owns a socket and holds weak references to its Peer and Torrent: the
// reactor's collections own the lifetime, so those references are a
// connHandle and an info-hash, never raw pointers (spec §9).
type Connection struct {
	sock socketID
	conn net.Conn

	peer    connHandle
	torrent [20]byte
	hasTorrent bool

	state   connState
	failed  bool
	incoming bool

	peerID [20]byte

	lastActivity time.Time
	connectStart time.Time

	ulQuota *rate.Limiter
	dlQuota *rate.Limiter

	wantRead  bool
	wantWrite bool

	pc *peerconn.Peer

	bytesUp   int64
	bytesDown int64
}

func newConnection(sock socketID, conn net.Conn, torrent [20]byte, incoming bool) *Connection {
	return &Connection{
		sock:       sock,
		conn:       conn,
		torrent:    torrent,
		hasTorrent: true,
		incoming:   incoming,
		state:      stateQueued,
		lastActivity: time.Now(),
		ulQuota:    rate.NewLimiter(rate.Inf, 1<<20),
		dlQuota:    rate.NewLimiter(rate.Inf, 1<<20),
		wantRead:   true,
		wantWrite:  true,
	}
}

// GetSocket returns the socket identity this connection is keyed by in
// every session collection.
func (c *Connection) GetSocket() socketID { return c.sock }

// AssociatedTorrent returns the info-hash of the torrent this connection
// belongs to.
func (c *Connection) AssociatedTorrent() ([20]byte, bool) { return c.torrent, c.hasTorrent }

// ID returns the remote peer's 20-byte BitTorrent peer id, populated once
// the handshake completes.
func (c *Connection) ID() [20]byte { return c.peerID }

func (c *Connection) IsConnecting() bool     { return c.state == stateConnecting }
func (c *Connection) IsDisconnecting() bool  { return c.state == statePendingDisconnect }
func (c *Connection) CanRead() bool          { return c.wantRead }
func (c *Connection) CanWrite() bool         { return c.wantWrite || c.state == stateConnecting }

// HasTimedOut reports whether no activity has been observed for longer
// than the handshake/keepalive budget. Established connections time out
// after two minutes of silence; connecting ones after 30s, matching the
// BitTorrent handshake timeout convention the teacher's btconn package
// assumes implicitly via its dial/accept deadlines.
func (c *Connection) HasTimedOut(now time.Time) bool {
	if c.state == stateConnecting {
		return now.Sub(c.connectStart) > 30*time.Second
	}
	return now.Sub(c.lastActivity) > 120*time.Second
}

// Connect begins the outbound TCP handshake by dialing and performing the
// BitTorrent handshake via internal/btconn, mirroring peer_connection::connect.
func (c *Connection) Connect(addr net.Addr, infoHash, ourID [20]byte) error {
	c.connectStart = time.Now()
	c.state = stateConnecting
	dialed, err := net.DialTimeout("tcp", addr.String(), 30*time.Second)
	if err != nil {
		return NewPeerError(err)
	}
	c.conn = dialed
	res, err := btconn.DialHandshake(dialed, infoHash, ourID)
	if err != nil {
		dialed.Close()
		return NewPeerError(err)
	}
	c.peerID = res.PeerID
	return nil
}

// ConnectionComplete is invoked by the reactor when writability is first
// observed on a half-open socket: the TCP handshake finished. It spins up
// the framed peer-wire reader/writer and moves the connection logically
// out of the Connecting state.
func (c *Connection) ConnectionComplete(l peerconn.Logger, ourExtensions *bitfield.Bitfield) {
	c.state = stateEstablished
	c.lastActivity = time.Now()
	c.pc = peerconn.New(c.conn, c.peerID, ourExtensions, l)
	c.pc.SetLimiters(c.ulQuota, c.dlQuota)
}

// SendData reports whether the peer-wire writer/reader has failed, as a
// PeerError (the reactor then drops the connection) — spec §4.C/§7.
// Outgoing messages are written by internal/peerconn's writer goroutine,
// not here. SendData does no storage I/O and never returns a FileError.
func (c *Connection) SendData() error {
	c.lastActivity = time.Now()
	if c.pc == nil {
		return nil
	}
	// Actual byte framing is owned by internal/peerconn's writer goroutine;
	// here we only need to observe whether it has reported a fatal error.
	select {
	case err := <-c.pc.Errors():
		if err != nil {
			return NewPeerError(err)
		}
	default:
	}
	return nil
}

// ReceiveData reports a peer-wire failure the same way SendData does. It
// does not read the decoded messages internal/peerconn's reader delivers.
func (c *Connection) ReceiveData() error {
	c.lastActivity = time.Now()
	if c.pc == nil {
		return nil
	}
	select {
	case err := <-c.pc.Errors():
		if err != nil {
			return NewPeerError(err)
		}
	default:
	}
	return nil
}

// KeepAlive queues a keep-alive message on the peer-wire writer. It does
// not check for idleness: the reactor's Tick phase calls it once per tick
// for every connection that has not timed out.
func (c *Connection) KeepAlive() {
	if c.pc != nil {
		c.pc.KeepAlive()
	}
}

// SetFailed marks the connection failed; it will not be reused.
func (c *Connection) SetFailed() { c.failed = true }
func (c *Connection) Failed() bool { return c.failed }

// MarkDisconnecting transitions the connection into the deferred-destroy
// state; purgeConnections() is what actually removes it from its owning
// collection (spec §9's "deferred disconnect" pattern).
func (c *Connection) MarkDisconnecting() { c.state = statePendingDisconnect }

// Close releases the underlying socket.
func (c *Connection) Close() {
	if c.pc != nil {
		c.pc.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}

// Stats returns cumulative bytes transferred, used when detaching a Peer
// record from its Connection (spec §3 invariant).
func (c *Connection) Stats() (down, up int64) { return c.bytesDown, c.bytesUp }
