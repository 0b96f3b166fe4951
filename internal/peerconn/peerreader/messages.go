package peerreader

import (
	"github.com/kagen/torrentd/internal/peerconn/peerprotocol"
)

// Piece is the decoded form of a Piece message: the fixed header plus the
// block payload that follows it on the wire.
type Piece struct {
	peerprotocol.PieceMessage
	Data []byte
}
