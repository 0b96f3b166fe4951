// Package peerwriter owns the write half of a peer-wire connection: a
// single goroutine serializing outgoing messages so writes are never
// interleaved, grounded on the teacher's torrent/internal/peerconn/peer.go
// reader/writer goroutine split.
package peerwriter

import (
	"context"
	"encoding/binary"
	"io"
	"time"

	"golang.org/x/time/rate"

	"github.com/kagen/torrentd/internal/logger"
	"github.com/kagen/torrentd/internal/peerconn/peerprotocol"
)

const keepAliveInterval = 2 * time.Minute

type PeerWriter struct {
	conn    io.Writer
	log     logger.Logger
	queue   chan peerprotocol.Message
	errC    chan error
	limiter *rate.Limiter
}

func New(conn io.Writer, l logger.Logger) *PeerWriter {
	return &PeerWriter{
		conn:  conn,
		log:   l,
		queue: make(chan peerprotocol.Message, 256),
		errC:  make(chan error, 1),
	}
}

// SetLimiter attaches the per-connection upload quota; every subsequent
// write blocks until the limiter admits its byte count, giving the
// session's fair-share allocation (§4.I) real teeth on the wire instead of
// only shaping bookkeeping. A nil limiter leaves writes unthrottled.
func (w *PeerWriter) SetLimiter(l *rate.Limiter) { w.limiter = l }

func (w *PeerWriter) Errors() <-chan error { return w.errC }

// SendMessage enqueues a message for the write goroutine. It never blocks
// the caller on I/O.
func (w *PeerWriter) SendMessage(msg peerprotocol.Message) {
	select {
	case w.queue <- msg:
	default:
		// Queue saturated: drop rather than stall the reactor tick; the
		// piece downloader's own timeout will re-request.
	}
}

// Run drains the queue, framing and writing each message, until closeC
// fires. A keep-alive (zero-length message) is sent whenever the queue has
// been idle past keepAliveInterval.
func (w *PeerWriter) Run(closeC <-chan struct{}) {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case msg := <-w.queue:
			if err := w.write(msg); err != nil {
				w.errC <- err
				return
			}
			ticker.Reset(keepAliveInterval)
		case <-ticker.C:
			if err := w.write(nil); err != nil {
				w.errC <- err
				return
			}
		case <-closeC:
			return
		}
	}
}

func (w *PeerWriter) write(msg peerprotocol.Message) error {
	if msg == nil {
		var zero [4]byte
		_, err := w.conn.Write(zero[:])
		return err
	}
	body := msg.Encode()
	header := make([]byte, 5)
	binary.BigEndian.PutUint32(header[0:4], uint32(len(body)+1))
	header[4] = byte(msg.ID())
	if w.limiter != nil {
		if err := w.limiter.WaitN(context.Background(), len(header)+len(body)); err != nil {
			return err
		}
	}
	if _, err := w.conn.Write(header); err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	_, err := w.conn.Write(body)
	return err
}
