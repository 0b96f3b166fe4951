// Package peerconn pairs a PeerReader and PeerWriter over one net.Conn into
// a single framed peer-wire connection, adapted from the teacher's
// torrent/internal/peerconn package (same reader/writer-goroutine split,
// same closeC/closedC shutdown handshake) but flattened out of torrent/
// and relocated under internal/ so session.Connection can own it directly.
package peerconn

import (
	"net"

	"golang.org/x/time/rate"

	"github.com/kagen/torrentd/internal/bitfield"
	"github.com/kagen/torrentd/internal/logger"
	"github.com/kagen/torrentd/internal/peerconn/peerprotocol"
	"github.com/kagen/torrentd/internal/peerconn/peerreader"
	"github.com/kagen/torrentd/internal/peerconn/peerwriter"
)

// Logger is the subset of internal/logger.Logger a Peer needs; declared
// locally so callers outside session/ aren't forced to import the concrete
// logger package just to satisfy New's signature.
type Logger = logger.Logger

type Peer struct {
	conn          net.Conn
	id            [20]byte
	FastExtension bool

	reader *peerreader.PeerReader
	writer *peerwriter.PeerWriter

	log logger.Logger

	errC    chan error
	closeC  chan struct{}
	closedC chan struct{}
}

// New wraps conn for framed peer-wire I/O. extensions is the local
// BEP6/BEP10 capability bitfield (session's ourExtensions); bit 61 selects
// the fast extension, bit 43 the generic extension protocol, matching BEP4
// reserved-byte bit numbering.
func New(conn net.Conn, id [20]byte, extensions *bitfield.Bitfield, l logger.Logger) *Peer {
	fastExtension := extensions != nil && extensions.Test(61)
	extensionProtocol := extensions != nil && extensions.Test(43)
	p := &Peer{
		conn:          conn,
		id:            id,
		FastExtension: fastExtension,
		reader:        peerreader.New(conn, l, fastExtension, extensionProtocol),
		writer:        peerwriter.New(conn, l),
		log:           l,
		errC:          make(chan error, 1),
		closeC:        make(chan struct{}),
		closedC:       make(chan struct{}),
	}
	go p.run()
	return p
}

// SetLimiters attaches the owning Connection's upload/download quotas
// (spec §4.I's per-torrent fair share) to the writer/reader goroutines, so
// every byte actually sent or received is paced against the allocation
// instead of the quota sitting unused beside the socket.
func (p *Peer) SetLimiters(upload, download *rate.Limiter) {
	p.writer.SetLimiter(upload)
	p.reader.SetLimiter(download)
}

func (p *Peer) ID() [20]byte        { return p.id }
func (p *Peer) String() string      { return p.conn.RemoteAddr().String() }
func (p *Peer) Messages() <-chan interface{} { return p.reader.Messages() }
func (p *Peer) Errors() <-chan error         { return p.errC }

func (p *Peer) SendMessage(msg peerprotocol.Message) { p.writer.SendMessage(msg) }

func (p *Peer) KeepAlive() {
	// The writer's own ticker already emits keep-alives on idle; an
	// explicit call queues one more. The session's reactor makes that call
	// once per tick for every connection that has not timed out
	// (session.cpp's keep_alive()).
	p.writer.SendMessage(nil)
}

func (p *Peer) Close() {
	select {
	case <-p.closeC:
	default:
		close(p.closeC)
	}
	<-p.closedC
}

// run mirrors the teacher's Peer.Run: two goroutines for the two
// directions, the first to observe closure wins and tears down the other.
func (p *Peer) run() {
	defer close(p.closedC)

	readerDone := make(chan struct{})
	go func() {
		p.reader.Run(p.closeC)
		close(readerDone)
	}()

	writerDone := make(chan struct{})
	go func() {
		p.writer.Run(p.closeC)
		close(writerDone)
	}()

	go func() {
		select {
		case err := <-p.reader.Errors():
			select {
			case p.errC <- err:
			default:
			}
		case <-p.closeC:
		}
	}()
	go func() {
		select {
		case err := <-p.writer.Errors():
			select {
			case p.errC <- err:
			default:
			}
		case <-p.closeC:
		}
	}()

	select {
	case <-p.closeC:
		p.conn.Close()
		<-readerDone
		<-writerDone
	case <-readerDone:
		p.conn.Close()
		<-writerDone
	case <-writerDone:
		p.conn.Close()
		<-readerDone
	}
}
