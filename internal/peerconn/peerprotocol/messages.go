// Package peerprotocol implements the wire encoding of BitTorrent peer
// messages (BEP3), plus the BEP6 fast-extension and BEP10 extension-protocol
// message IDs the session's ourExtensions bitfield can advertise.
package peerprotocol

import "encoding/binary"

type MessageID uint8

const (
	Choke         MessageID = 0
	Unchoke       MessageID = 1
	Interested    MessageID = 2
	NotInterested MessageID = 3
	Have          MessageID = 4
	Bitfield      MessageID = 5
	Request       MessageID = 6
	Piece         MessageID = 7
	Cancel        MessageID = 8

	// BEP6 fast extension.
	HaveAll      MessageID = 14
	HaveNone     MessageID = 15
	Reject       MessageID = 16
	AllowedFast  MessageID = 17
	SuggestPiece MessageID = 13

	// BEP10 extension protocol.
	Extension MessageID = 20
)

// Message is satisfied by every concrete message type below; Encode writes
// the message's payload (not the length-prefix/ID header — PeerWriter owns
// framing).
type Message interface {
	ID() MessageID
	Encode() []byte
}

type HaveMessage struct{ Index uint32 }

func (HaveMessage) ID() MessageID { return Have }
func (m HaveMessage) Encode() []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, m.Index)
	return b
}

type BitfieldMessage struct{ Data []byte }

func (BitfieldMessage) ID() MessageID   { return Bitfield }
func (m BitfieldMessage) Encode() []byte { return m.Data }

type RequestMessage struct {
	Index, Begin, Length uint32
}

func (RequestMessage) ID() MessageID { return Request }
func (m RequestMessage) Encode() []byte {
	b := make([]byte, 12)
	binary.BigEndian.PutUint32(b[0:4], m.Index)
	binary.BigEndian.PutUint32(b[4:8], m.Begin)
	binary.BigEndian.PutUint32(b[8:12], m.Length)
	return b
}

type CancelMessage RequestMessage

func (CancelMessage) ID() MessageID { return Cancel }
func (m CancelMessage) Encode() []byte { return RequestMessage(m).Encode() }

type RejectMessage RequestMessage

func (RejectMessage) ID() MessageID { return Reject }
func (m RejectMessage) Encode() []byte { return RequestMessage(m).Encode() }

type PieceMessage struct {
	Index, Begin uint32
	Length       uint32
}

func (PieceMessage) ID() MessageID { return Piece }
func (m PieceMessage) Encode() []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint32(b[0:4], m.Index)
	binary.BigEndian.PutUint32(b[4:8], m.Begin)
	return b
}

type simpleMessage struct{ id MessageID }

func (m simpleMessage) ID() MessageID  { return m.id }
func (simpleMessage) Encode() []byte   { return nil }

var (
	ChokeMessage         Message = simpleMessage{Choke}
	UnchokeMessage       Message = simpleMessage{Unchoke}
	InterestedMessage    Message = simpleMessage{Interested}
	NotInterestedMessage Message = simpleMessage{NotInterested}
	HaveAllMessage       Message = simpleMessage{HaveAll}
	HaveNoneMessage      Message = simpleMessage{HaveNone}
)
