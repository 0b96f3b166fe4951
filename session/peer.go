package session

import (
	"net"
	"time"
)

// AddressKind discriminates the PeerAddress sum type, replacing the
// inheritance hierarchy (base peer + IPv4/IPv6/I2P derived) the original
// torrent_peer/ipv4_peer/ipv6_peer/i2p_peer split used — see spec §9.
type AddressKind uint8

const (
	AddrV4 AddressKind = iota
	AddrV6
	AddrI2P
)

// PeerAddress is a tagged variant: exactly one of V4/V6/I2PDest is
// inhabited, selected by Kind.
type PeerAddress struct {
	Kind   AddressKind
	V4     [4]byte
	V6     [16]byte
	I2PDest string
}

// IP renders the address as a net.IP. I2P addresses have no IP
// representation and return nil.
func (a PeerAddress) IP() net.IP {
	switch a.Kind {
	case AddrV4:
		return net.IP(a.V4[:])
	case AddrV6:
		return net.IP(a.V6[:])
	default:
		return nil
	}
}

func (a PeerAddress) String() string {
	if a.Kind == AddrI2P {
		return a.I2PDest
	}
	return a.IP().String()
}

// PeerSource is a bitmask of discovery mechanisms; only the low byte is
// meaningful (spec §4.B).
type PeerSource uint8

const (
	SourceTracker PeerSource = 1 << iota
	SourceDHT
	SourcePEX
	SourceLSD
	SourceIncoming
	SourceResume
)

// connHandle is a weak, non-owning reference to a Connection: an index
// plus a generation counter, not a pointer. This avoids the dangling-pointer
// hazard spec §9 calls out explicitly — the reactor is free to destroy
// Connections (via purgeConnections) without Peer records needing updating
// synchronously. valid only reports whether a handle has been set (gen is
// non-zero); nothing in the session resolves a handle back to a Connection.
type connHandle struct {
	index int
	gen   uint64
}

func (h connHandle) valid() bool { return h.gen != 0 }

// PeerRecord is the persistent per-endpoint state described in spec §3/§4.B.
type PeerRecord struct {
	Port uint16
	Addr PeerAddress

	Source PeerSource

	Hashfails      int
	Failcount      int
	FastReconnects int
	TrustPoints    int

	LastConnected              time.Time
	LastOptimisticallyUnchoked time.Time

	Connectable             bool
	Seed                    bool
	OnParole                bool
	Banned                  bool
	OptimisticallyUnchoked  bool
	SupportsUTP             bool
	ConfirmedSupportsUTP    bool
	SupportsHolepunch       bool
	WebSeed                 bool
	AddedToDHT              bool

	conn connHandle

	// prevAmountDownload/Upload are kilobytes-shifted: the live byte count
	// is prev<<10 while no Connection is attached (spec §3 invariant).
	prevAmountDownload uint32
	prevAmountUpload   uint32
}

// NewPeerRecord mirrors torrent_peer's constructor (torrent_peer.cpp):
// port, connectable flag and discovery source are set; everything else
// zero-values correctly except SupportsUTP, which defaults optimistic.
func NewPeerRecord(addr PeerAddress, port uint16, connectable bool, src PeerSource) *PeerRecord {
	return &PeerRecord{
		Port:        port,
		Addr:        addr,
		Source:      src,
		Connectable: connectable,
		SupportsUTP: true,
	}
}

// HasConnection reports whether a Connection is currently attached.
func (p *PeerRecord) HasConnection() bool { return p.conn.valid() }

// attach associates a live Connection and, per the §3 invariant, zeroes the
// cached pre-connection byte totals.
func (p *PeerRecord) attach(h connHandle) {
	p.conn = h
	p.prevAmountDownload = 0
	p.prevAmountUpload = 0
}

// detach clears the weak back-reference, caching the connection's final
// byte counts (shifted down to kilobytes) so TotalDownload/TotalUpload
// keep working with no live Connection.
func (p *PeerRecord) detach(downloaded, uploaded int64) {
	p.conn = connHandle{}
	p.prevAmountDownload = uint32(downloaded >> 10)
	p.prevAmountUpload = uint32(uploaded >> 10)
}

// TotalDownload returns live statistics from the attached Connection, or
// prevAmountDownload<<10 if there is none (spec §4.B).
func (p *PeerRecord) TotalDownload(live func(connHandle) (int64, bool)) int64 {
	if p.conn.valid() {
		if n, ok := live(p.conn); ok {
			return n
		}
	}
	return int64(p.prevAmountDownload) << 10
}

// TotalUpload mirrors TotalDownload for uploaded bytes.
func (p *PeerRecord) TotalUpload(live func(connHandle) (int64, bool)) int64 {
	if p.conn.valid() {
		if n, ok := live(p.conn); ok {
			return n
		}
	}
	return int64(p.prevAmountUpload) << 10
}
