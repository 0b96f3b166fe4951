// Package session implements the two-thread BitTorrent session runtime: a
// single reactor goroutine multiplexing peer I/O through a Selector, and a
// dedicated checker goroutine that verifies pieces via fast-resume data,
// the two communicating only through mutex-protected queues.
package session

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/boltdb/bolt"
	"github.com/mitchellh/go-homedir"

	"github.com/kagen/torrentd/internal/bitfield"
	"github.com/kagen/torrentd/internal/ipfilter"
	"github.com/kagen/torrentd/internal/logger"
	"github.com/kagen/torrentd/internal/metrics"
	"github.com/kagen/torrentd/internal/resumer/boltdbresumer"
	"github.com/kagen/torrentd/internal/tracker"
)

var (
	sessionBucket  = []byte("session")
	torrentsBucket = []byte("torrents")
)

// Session is the root object: it owns the listen socket, the four
// connection collections (spec §3), the torrent table, and the two
// background threads (reactor, checker).
type Session struct {
	config Config
	clock  clock.Clock
	log    logger.Logger
	db     *bolt.DB

	peerID     [20]byte
	key        [4]byte
	extensions *bitfield.Bitfield

	ipFilter *ipfilter.Filter
	alerts   *alertSink
	metrics  *metrics.Registry

	selector Selector
	listener net.Listener // set by ListenOn; kept as a field so Close can tear it down

	settings settingsState

	// mu guards every field below it: the four disjoint connection
	// collections plus the torrent table. session.mu is always acquired
	// before checker.mu when both are needed (spec §3 lock ordering).
	mu sync.Mutex

	connectionQueue []*Connection          // FIFO: sockets accepted/dialed but not yet handed to the selector
	halfOpen        map[socketID]*Connection
	connections     map[socketID]*Connection
	disconnectPeer  []*Connection // deferred-destruction stack; purgeConnections drains it

	torrents   map[[20]byte]Torrent
	trackerMgr *tracker.Manager

	mPorts         sync.Mutex
	availablePorts map[uint16]struct{}

	checker *checkerThread

	abort  chan struct{}
	closed chan struct{}
}

type settingsState struct {
	mu                sync.Mutex
	uploadRateLimit   int // bytes/sec, 0 = unlimited
	downloadRateLimit int
	maxUploads        int
	maxConnections    int
	halfOpenLimit     int
}

// New constructs a Session from cfg and starts its two background threads
// (checker and reactor); call ListenOn to accept incoming connections.
func New(cfg Config) (*Session, error) {
	if cfg.PortBegin >= cfg.PortEnd {
		return nil, errors.New("session: invalid listen port range")
	}
	dbPath, err := homedir.Expand(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, err
	}
	db, err := bolt.Open(dbPath, 0640, &bolt.Options{Timeout: time.Second})
	if err == bolt.ErrTimeout {
		return nil, errors.New("session: resume database is locked by another process")
	} else if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(sessionBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(torrentsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	sel, err := newSelector()
	if err != nil {
		db.Close()
		return nil, err
	}

	ports := make(map[uint16]struct{}, int(cfg.PortEnd-cfg.PortBegin))
	for p := cfg.PortBegin; p < cfg.PortEnd; p++ {
		ports[p] = struct{}{}
	}

	s := &Session{
		config:         cfg,
		clock:          clock.New(),
		log:            logger.New("session"),
		db:             db,
		ipFilter:       ipfilter.New(),
		alerts:         newAlertSink(),
		metrics:        metrics.NewRegistry(),
		selector:       sel,
		availablePorts: ports,
		halfOpen:       make(map[socketID]*Connection),
		connections:    make(map[socketID]*Connection),
		torrents:       make(map[[20]byte]Torrent),
		abort:          make(chan struct{}),
		closed:         make(chan struct{}),
	}
	s.settings = settingsState{
		uploadRateLimit:   cfg.UploadRateLimit,
		downloadRateLimit: cfg.DownloadRateLimit,
		maxUploads:        cfg.MaxUploads,
		maxConnections:    cfg.MaxConnections,
		halfOpenLimit:     cfg.MaxHalfOpenConnections,
	}
	s.peerID, s.key = generatePeerID(cfg.PeerIDPrefix)
	s.extensions = defaultExtensions()
	s.applyExtensionMarker()
	s.checker = newCheckerThread(s)

	if err := boltdbresumer.EnsureBuckets(db, torrentsBucket); err != nil {
		db.Close()
		return nil, err
	}

	go s.checker.run()
	go s.run()

	return s, nil
}

// getPort allocates a listen/local port from the configured range.
func (s *Session) getPort() (uint16, error) {
	s.mPorts.Lock()
	defer s.mPorts.Unlock()
	for p := range s.availablePorts {
		delete(s.availablePorts, p)
		return p, nil
	}
	return 0, errors.New("session: no free port in configured range")
}

func (s *Session) releasePort(p uint16) {
	s.mPorts.Lock()
	defer s.mPorts.Unlock()
	s.availablePorts[p] = struct{}{}
}

// purgeConnections removes every connection on the disconnectPeer stack
// from halfOpen/connections and the selector, closing its socket.
// Mirrors session_impl::purge_connections()'s "erase while safe" pattern:
// called at defined points between reactor phases, never from the middle
// of an iteration over a live collection.
func (s *Session) purgeConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.disconnectPeer) == 0 {
		return
	}
	for _, c := range s.disconnectPeer {
		delete(s.halfOpen, c.sock)
		delete(s.connections, c.sock)
		s.selector.Remove(c.sock)
		c.Close()
	}
	s.disconnectPeer = s.disconnectPeer[:0]
}

// deferDisconnect marks a connection for teardown at the next purge point
// rather than destroying it inline, so callers iterating s.connections
// never need to special-case concurrent erasure (spec §3/§9).
func (s *Session) deferDisconnect(c *Connection) {
	if c.IsDisconnecting() {
		return
	}
	c.MarkDisconnecting()
	s.mu.Lock()
	s.disconnectPeer = append(s.disconnectPeer, c)
	s.mu.Unlock()
}

func (s *Session) postAlert(a Alert) { s.alerts.post(a) }

// Metrics returns the session's Prometheus registry, for callers (such as
// internal/rpc) that expose it over an HTTP /metrics route.
func (s *Session) Metrics() *metrics.Registry { return s.metrics }

// Close requests both background threads to stop and blocks until they
// have, then releases the resume database. Mirrors session::~session()'s
// abort/notify/join sequence (session.cpp), except Go's GC makes the
// explicit destructor unnecessary for anything but the two goroutines and
// the *bolt.DB handle.
func (s *Session) Close() error {
	close(s.abort)
	s.checker.stop()
	<-s.closed
	if s.listener != nil {
		s.listener.Close()
	}
	s.selector.Close()
	return s.db.Close()
}
