// Package peerreader decodes the length-prefixed BitTorrent peer-wire
// message stream, grounded on the teacher's torrent/internal/peerconn
// reader/writer split (one goroutine per direction, a channel handing
// decoded messages to the owning Peer).
package peerreader

import (
	"context"
	"encoding/binary"
	"io"

	"golang.org/x/time/rate"

	"github.com/kagen/torrentd/internal/logger"
	"github.com/kagen/torrentd/internal/peerconn/peerprotocol"
)

const maxMessageLength = 1<<17 + 128 // largest legal piece message plus header slack

// PeerReader owns the read half of a peer-wire connection.
type PeerReader struct {
	conn    io.Reader
	log     logger.Logger
	fast    bool
	ext     bool
	msgC    chan interface{}
	errC    chan error
	limiter *rate.Limiter
}

func New(conn io.Reader, l logger.Logger, fastExtension, extensionProtocol bool) *PeerReader {
	return &PeerReader{
		conn: conn,
		log:  l,
		fast: fastExtension,
		ext:  extensionProtocol,
		msgC: make(chan interface{}, 64),
		errC: make(chan error, 1),
	}
}

// SetLimiter attaches the per-connection download quota; every decoded
// message's bytes are charged against it before being handed to the
// owning Peer. A nil limiter leaves reads unthrottled.
func (r *PeerReader) SetLimiter(l *rate.Limiter) { r.limiter = l }

func (r *PeerReader) Messages() <-chan interface{} { return r.msgC }
func (r *PeerReader) Errors() <-chan error          { return r.errC }

// Run decodes messages until the connection closes or closeC fires. Each
// decoded message (or decode error) is handed to the owning Peer over
// msgC/errC; Run itself never touches session state.
func (r *PeerReader) Run(closeC <-chan struct{}) {
	defer close(r.msgC)
	for {
		var lenBuf [4]byte
		if _, err := io.ReadFull(r.conn, lenBuf[:]); err != nil {
			r.errC <- err
			return
		}
		length := binary.BigEndian.Uint32(lenBuf[:])
		if length == 0 {
			continue // keep-alive
		}
		if length > maxMessageLength {
			r.errC <- io.ErrShortBuffer
			return
		}
		payload := make([]byte, length)
		if _, err := io.ReadFull(r.conn, payload); err != nil {
			r.errC <- err
			return
		}
		if r.limiter != nil {
			if err := r.limiter.WaitN(context.Background(), int(length)); err != nil {
				r.errC <- err
				return
			}
		}
		msg, err := decode(peerprotocol.MessageID(payload[0]), payload[1:])
		if err != nil {
			r.errC <- err
			return
		}
		select {
		case r.msgC <- msg:
		case <-closeC:
			return
		}
	}
}

func decode(id peerprotocol.MessageID, body []byte) (interface{}, error) {
	switch id {
	case peerprotocol.Choke, peerprotocol.Unchoke, peerprotocol.Interested,
		peerprotocol.NotInterested, peerprotocol.HaveAll, peerprotocol.HaveNone:
		return id, nil
	case peerprotocol.Have:
		if len(body) != 4 {
			return nil, io.ErrUnexpectedEOF
		}
		return peerprotocol.HaveMessage{Index: binary.BigEndian.Uint32(body)}, nil
	case peerprotocol.Bitfield:
		return peerprotocol.BitfieldMessage{Data: body}, nil
	case peerprotocol.Request, peerprotocol.AllowedFast, peerprotocol.SuggestPiece:
		if len(body) != 12 {
			return nil, io.ErrUnexpectedEOF
		}
		return peerprotocol.RequestMessage{
			Index:  binary.BigEndian.Uint32(body[0:4]),
			Begin:  binary.BigEndian.Uint32(body[4:8]),
			Length: binary.BigEndian.Uint32(body[8:12]),
		}, nil
	case peerprotocol.Cancel:
		if len(body) != 12 {
			return nil, io.ErrUnexpectedEOF
		}
		return peerprotocol.CancelMessage{
			Index:  binary.BigEndian.Uint32(body[0:4]),
			Begin:  binary.BigEndian.Uint32(body[4:8]),
			Length: binary.BigEndian.Uint32(body[8:12]),
		}, nil
	case peerprotocol.Reject:
		if len(body) != 12 {
			return nil, io.ErrUnexpectedEOF
		}
		return peerprotocol.RejectMessage{
			Index:  binary.BigEndian.Uint32(body[0:4]),
			Begin:  binary.BigEndian.Uint32(body[4:8]),
			Length: binary.BigEndian.Uint32(body[8:12]),
		}, nil
	case peerprotocol.Piece:
		if len(body) < 8 {
			return nil, io.ErrUnexpectedEOF
		}
		return Piece{
			PieceMessage: peerprotocol.PieceMessage{
				Index: binary.BigEndian.Uint32(body[0:4]),
				Begin: binary.BigEndian.Uint32(body[4:8]),
			},
			Data: body[8:],
		}, nil
	default:
		return nil, nil // unknown/extension message: ignore per BEP10
	}
}
