package session

import (
	"crypto/rand"

	"github.com/kagen/torrentd/internal/bitfield"
)

// printableAlphabet mirrors session_impl's constructor in session.cpp: the
// peer id's random tail is filled from this exact character set rather
// than arbitrary bytes, so peer ids stay printable in logs/trackers.
const printableAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-_.!~*'()"

// generatePeerID builds a 20-byte BEP20 peer id ("-XX0001-" + random tail)
// from prefix, and a random 4-byte announce key (BEP7), matching
// session_impl's constructor: fingerprint copied to the front, the
// remainder filled from printableAlphabet, with bytes 17-19 reserved for
// an extension marker (set by applyExtensionMarker, called from New,
// EnableExtension and disableExtensions).
func generatePeerID(prefix string) (id [20]byte, key [4]byte) {
	n := copy(id[:], prefix)
	fillRandomPrintable(id[n:])
	rand.Read(key[:])
	return id, key
}

func fillRandomPrintable(b []byte) {
	buf := make([]byte, len(b))
	rand.Read(buf)
	for i, c := range buf {
		b[i] = printableAlphabet[int(c)%len(printableAlphabet)]
	}
}

// applyExtensionMarker keeps peer id bytes 17-19 in sync with whether any
// extension is currently advertised: the literal "ext" when at least one
// bit is set, a fresh random tail otherwise. internal/bitfield has no
// Any() method, so Count() > 0 is the "any enabled" test.
func (s *Session) applyExtensionMarker() {
	if s.extensions.Count() > 0 {
		copy(s.peerID[17:20], "ext")
	} else {
		fillRandomPrintable(s.peerID[17:20])
	}
}

// disableExtensions clears every advertised extension and re-randomizes
// peer id bytes 17-19, the position session::disable_extensions()
// overwrites to stop advertising support for BEP6/BEP10 once a setting
// disables them at runtime.
func (s *Session) disableExtensions() {
	s.extensions = bitfield.New(64)
	s.applyExtensionMarker()
}

// defaultExtensions returns the bitfield of advertised extensions: the
// fast extension (BEP6, bit 61) and extension protocol (BEP10, bit 43) on
// by default; DHT (BEP5) deliberately left unset since DHT is out of
// scope for this session runtime.
func defaultExtensions() *bitfield.Bitfield {
	b := bitfield.New(64)
	b.Set(61)
	b.Set(43)
	return b
}

// EnableExtension sets bit i in the advertised extension bitfield (handed
// to each Connection's peerconn.Peer when it completes; the handshake's
// reserved bytes are always sent as zero) and keeps
// peer id bytes 17-19 consistent with invariant 7: they must read "ext"
// whenever any extension is enabled.
func (s *Session) EnableExtension(bit uint32) {
	s.extensions.Set(bit)
	s.applyExtensionMarker()
}

// DisableExtensions clears every advertised extension and re-randomizes
// the peer id's reserved suffix, matching session::disable_extensions().
func (s *Session) DisableExtensions() {
	s.disableExtensions()
}
