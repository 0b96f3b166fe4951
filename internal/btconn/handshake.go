package btconn

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"time"
)

const protocolString = "BitTorrent protocol"

var handshakeTimeout = 30 * time.Second

// HandshakeResult carries what the handshake negotiated: the remote peer
// id and its reserved-byte extension flags (BEP4).
type HandshakeResult struct {
	PeerID   [20]byte
	Reserved [8]byte
}

// DialHandshake performs the outgoing BitTorrent handshake over an already
//-connected socket: send our handshake, read theirs, verify the info hash
// matches and that we didn't just connect to ourselves.
func DialHandshake(conn net.Conn, infoHash, ourID [20]byte) (HandshakeResult, error) {
	conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetDeadline(time.Time{})

	if err := writeHandshake(conn, infoHash, ourID); err != nil {
		return HandshakeResult{}, err
	}
	return readHandshake(conn, infoHash, ourID)
}

// AcceptHandshake performs the incoming side: read the remote's handshake
// first (so we learn which torrent it wants before committing our own
// bytes), verify the info hash against isKnown, then reply.
func AcceptHandshake(conn net.Conn, isKnown func([20]byte) bool, ourID [20]byte) ([20]byte, HandshakeResult, error) {
	conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetDeadline(time.Time{})

	var buf [68]byte
	if _, err := io.ReadFull(conn, buf[:]); err != nil {
		return [20]byte{}, HandshakeResult{}, err
	}
	if buf[0] != 19 || string(buf[1:20]) != protocolString {
		return [20]byte{}, HandshakeResult{}, fmt.Errorf("btconn: invalid protocol header")
	}
	var infoHash [20]byte
	copy(infoHash[:], buf[28:48])
	if !isKnown(infoHash) {
		return [20]byte{}, HandshakeResult{}, fmt.Errorf("btconn: unknown info hash")
	}
	var res HandshakeResult
	copy(res.Reserved[:], buf[20:28])
	copy(res.PeerID[:], buf[48:68])
	if res.PeerID == ourID {
		return infoHash, res, ErrOwnConnection
	}
	if err := writeHandshake(conn, infoHash, ourID); err != nil {
		return infoHash, res, err
	}
	return infoHash, res, nil
}

func writeHandshake(w io.Writer, infoHash, id [20]byte) error {
	var buf bytes.Buffer
	buf.WriteByte(19)
	buf.WriteString(protocolString)
	buf.Write(make([]byte, 8)) // reserved bytes: always zero, no extension bits are advertised here
	buf.Write(infoHash[:])
	buf.Write(id[:])
	_, err := w.Write(buf.Bytes())
	return err
}

func readHandshake(r io.Reader, wantInfoHash, ourID [20]byte) (HandshakeResult, error) {
	var buf [68]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return HandshakeResult{}, err
	}
	if buf[0] != 19 || string(buf[1:20]) != protocolString {
		return HandshakeResult{}, fmt.Errorf("btconn: invalid protocol header")
	}
	var gotHash [20]byte
	copy(gotHash[:], buf[28:48])
	if gotHash != wantInfoHash {
		return HandshakeResult{}, errInvalidInfoHash
	}
	var res HandshakeResult
	copy(res.Reserved[:], buf[20:28])
	copy(res.PeerID[:], buf[48:68])
	if res.PeerID == ourID {
		return res, ErrOwnConnection
	}
	return res, nil
}
