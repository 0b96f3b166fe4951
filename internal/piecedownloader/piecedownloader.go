// Package piecedownloader drives the block-request state machine for a
// single piece against a single peer, adapted from the teacher's
// internal/downloader/piecedownloader package but retargeted at
// internal/peerconn's Peer/peerprotocol types instead of the teacher's own
// internal/peer abstraction.
package piecedownloader

import (
	"bytes"
	"errors"

	"github.com/kagen/torrentd/internal/peerconn"
	"github.com/kagen/torrentd/internal/peerconn/peerprotocol"
	"github.com/kagen/torrentd/internal/peerconn/peerreader"
)

const maxQueuedBlocks = 10

type block struct {
	begin, length uint32
	requested     bool
	data          []byte
}

// PieceDownloader downloads every block of one piece from one peer,
// respecting a sliding window of at most maxQueuedBlocks in-flight
// requests (the same limit the teacher's version uses, itself matching
// libtorrent's default request pipeline depth).
type PieceDownloader struct {
	Index  uint32
	Length uint32

	peer   *peerconn.Peer
	blocks []block

	limiter chan struct{}

	PieceC   chan peerreader.Piece
	RejectC  chan peerprotocol.RequestMessage
	ChokeC   chan struct{}
	UnchokeC chan struct{}
	DoneC    chan []byte
	ErrC     chan error
}

func New(index, length, blockSize uint32, p *peerconn.Peer) *PieceDownloader {
	n := (length + blockSize - 1) / blockSize
	blocks := make([]block, n)
	for i := range blocks {
		begin := uint32(i) * blockSize
		l := blockSize
		if begin+l > length {
			l = length - begin
		}
		blocks[i] = block{begin: begin, length: l}
	}
	return &PieceDownloader{
		Index:    index,
		Length:   length,
		peer:     p,
		blocks:   blocks,
		limiter:  make(chan struct{}, maxQueuedBlocks),
		PieceC:   make(chan peerreader.Piece),
		RejectC:  make(chan peerprotocol.RequestMessage),
		ChokeC:   make(chan struct{}),
		UnchokeC: make(chan struct{}),
		DoneC:    make(chan []byte, 1),
		ErrC:     make(chan error, 1),
	}
}

// Run drives the block pipeline until the piece is fully assembled, an
// invalid reject is reported on ErrC, or stopC fires; a choke only pauses
// requesting until the next unchoke. It never touches storage:
// the caller writes DoneC's result to disk and verifies its hash.
func (d *PieceDownloader) Run(stopC <-chan struct{}) {
	for {
		select {
		case d.limiter <- struct{}{}:
			b := d.nextBlock()
			if b == nil {
				d.limiter = nil
				continue
			}
			d.peer.SendMessage(peerprotocol.RequestMessage{Index: d.Index, Begin: b.begin, Length: b.length})
		case p := <-d.PieceC:
			idx := p.Begin / d.blockSize()
			if int(idx) >= len(d.blocks) {
				continue
			}
			b := &d.blocks[idx]
			if b.requested && b.data == nil && d.limiter != nil {
				<-d.limiter
			}
			b.data = p.Data
			if d.allDone() {
				d.DoneC <- d.assemble()
				return
			}
		case req := <-d.RejectC:
			idx := req.Begin / d.blockSize()
			if int(idx) >= len(d.blocks) || !d.blocks[idx].requested {
				d.ErrC <- errors.New("piecedownloader: received invalid reject message")
				return
			}
			d.blocks[idx].requested = false
		case <-d.ChokeC:
			for i := range d.blocks {
				if d.blocks[i].data == nil {
					d.blocks[i].requested = false
				}
			}
			d.limiter = nil
		case <-d.UnchokeC:
			d.limiter = make(chan struct{}, maxQueuedBlocks)
		case <-stopC:
			return
		}
	}
}

func (d *PieceDownloader) blockSize() uint32 {
	if len(d.blocks) == 0 {
		return 1
	}
	return d.blocks[0].length
}

func (d *PieceDownloader) nextBlock() *block {
	for i := range d.blocks {
		if !d.blocks[i].requested {
			d.blocks[i].requested = true
			return &d.blocks[i]
		}
	}
	return nil
}

func (d *PieceDownloader) allDone() bool {
	for i := range d.blocks {
		if d.blocks[i].data == nil {
			return false
		}
	}
	return true
}

func (d *PieceDownloader) assemble() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, d.Length))
	for i := range d.blocks {
		buf.Write(d.blocks[i].data)
	}
	return buf.Bytes()
}
