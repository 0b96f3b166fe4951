package piecedownloader

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kagen/torrentd/internal/bitfield"
	"github.com/kagen/torrentd/internal/logger"
	"github.com/kagen/torrentd/internal/peerconn"
	"github.com/kagen/torrentd/internal/peerconn/peerprotocol"
	"github.com/kagen/torrentd/internal/peerconn/peerreader"
)

func newTestPeer(t *testing.T) *peerconn.Peer {
	t.Helper()
	clientConn, remoteConn := net.Pipe()
	t.Cleanup(func() { clientConn.Close(); remoteConn.Close() })
	// drain whatever the writer half sends so it never blocks.
	go func() {
		buf := make([]byte, 4096)
		for {
			if _, err := remoteConn.Read(buf); err != nil {
				return
			}
		}
	}()
	var id [20]byte
	return peerconn.New(clientConn, id, bitfield.New(64), logger.New("test"))
}

func TestPieceDownloaderAssemblesAllBlocks(t *testing.T) {
	p := newTestPeer(t)
	defer p.Close()

	blockSize := uint32(4)
	d := New(0, 10, blockSize, p) // 3 blocks: 4, 4, 2

	stopC := make(chan struct{})
	defer close(stopC)
	go d.Run(stopC)

	feed := func(begin uint32, data []byte) {
		d.PieceC <- peerreader.Piece{
			PieceMessage: peerprotocol.PieceMessage{Index: 0, Begin: begin, Length: uint32(len(data))},
			Data:         data,
		}
	}
	feed(0, []byte{1, 2, 3, 4})
	feed(4, []byte{5, 6, 7, 8})
	feed(8, []byte{9, 10})

	select {
	case result := <-d.DoneC:
		require.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, result)
	case <-time.After(time.Second):
		t.Fatal("piece downloader never completed")
	}
}

func TestPieceDownloaderHandlesReject(t *testing.T) {
	p := newTestPeer(t)
	defer p.Close()

	d := New(0, 4, 4, p)
	stopC := make(chan struct{})
	defer close(stopC)
	go d.Run(stopC)

	d.RejectC <- peerprotocol.RequestMessage{Index: 0, Begin: 0, Length: 4}

	d.PieceC <- peerreader.Piece{
		PieceMessage: peerprotocol.PieceMessage{Index: 0, Begin: 0, Length: 4},
		Data:         []byte{9, 9, 9, 9},
	}

	select {
	case result := <-d.DoneC:
		require.Equal(t, []byte{9, 9, 9, 9}, result)
	case <-time.After(time.Second):
		t.Fatal("piece downloader never completed after reject+re-request")
	}
}

func TestPieceDownloaderStopsOnStopC(t *testing.T) {
	p := newTestPeer(t)
	defer p.Close()

	d := New(0, 4, 4, p)
	stopC := make(chan struct{})
	done := make(chan struct{})
	go func() { d.Run(stopC); close(done) }()

	close(stopC)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after stopC closed")
	}
}
