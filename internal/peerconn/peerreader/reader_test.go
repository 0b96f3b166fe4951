package peerreader

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kagen/torrentd/internal/logger"
	"github.com/kagen/torrentd/internal/peerconn/peerprotocol"
)

func frame(id peerprotocol.MessageID, body []byte) []byte {
	buf := make([]byte, 4+1+len(body))
	binary.BigEndian.PutUint32(buf[0:4], uint32(1+len(body)))
	buf[4] = byte(id)
	copy(buf[5:], body)
	return buf
}

func keepAliveFrame() []byte { return []byte{0, 0, 0, 0} }

func TestPeerReaderDecodesSimpleMessages(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(keepAliveFrame())
	buf.Write(frame(peerprotocol.Unchoke, nil))
	haveBody := make([]byte, 4)
	binary.BigEndian.PutUint32(haveBody, 7)
	buf.Write(frame(peerprotocol.Have, haveBody))

	r := New(&buf, logger.New("test"), false, false)
	closeC := make(chan struct{})
	go r.Run(closeC)

	msg1 := recvMsg(t, r)
	require.Equal(t, peerprotocol.Unchoke, msg1)

	msg2 := recvMsg(t, r)
	have, ok := msg2.(peerprotocol.HaveMessage)
	require.True(t, ok)
	require.EqualValues(t, 7, have.Index)
}

func TestPeerReaderDecodesPieceMessage(t *testing.T) {
	var buf bytes.Buffer
	body := make([]byte, 8+4)
	binary.BigEndian.PutUint32(body[0:4], 2)
	binary.BigEndian.PutUint32(body[4:8], 16)
	copy(body[8:], []byte{1, 2, 3, 4})
	buf.Write(frame(peerprotocol.Piece, body))

	r := New(&buf, logger.New("test"), false, false)
	go r.Run(make(chan struct{}))

	msg := recvMsg(t, r)
	piece, ok := msg.(Piece)
	require.True(t, ok)
	require.EqualValues(t, 2, piece.Index)
	require.EqualValues(t, 16, piece.Begin)
	require.Equal(t, []byte{1, 2, 3, 4}, piece.Data)
}

func TestPeerReaderErrorsOnOversizedMessage(t *testing.T) {
	var buf bytes.Buffer
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], maxMessageLength+1)
	buf.Write(lenBuf[:])

	r := New(&buf, logger.New("test"), false, false)
	go r.Run(make(chan struct{}))

	select {
	case err := <-r.Errors():
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("expected an error for an oversized message")
	}
}

func TestPeerReaderErrorsOnTruncatedConnection(t *testing.T) {
	r := New(bytes.NewReader(nil), logger.New("test"), false, false)
	go r.Run(make(chan struct{}))

	select {
	case err := <-r.Errors():
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("expected an EOF error")
	}
}

func recvMsg(t *testing.T, r *PeerReader) interface{} {
	t.Helper()
	select {
	case msg := <-r.Messages():
		return msg
	case err := <-r.Errors():
		t.Fatalf("unexpected decode error: %v", err)
		return nil
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a message")
		return nil
	}
}
