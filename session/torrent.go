package session

import "time"

// TorrentState is the lifecycle stage of a managed torrent.
type TorrentState int

const (
	TorrentQueued TorrentState = iota
	TorrentChecking
	TorrentDownloading
	TorrentSeeding
	TorrentStopped
	TorrentError
)

// Torrent is the contract the reactor and checker drive a managed torrent
// through. Concrete torrents (internal/torrentimpl.Torrent) implement it;
// session itself holds only this interface, never a concrete struct,
// keeping the reactor/checker generic over torrent implementations the way
// session_impl operates purely through file_checker_data/torrent_handle
// indirection in the original.
type Torrent interface {
	InfoHash() [20]byte
	Name() string
	State() TorrentState

	// NumPieces and BlockSize are needed by fast-resume validation
	// (spec §4.G): blocks-per-piece must match the resume data's slot
	// width before the unfinished-piece bitmask can be trusted.
	NumPieces() int
	BlockSize() int
	PieceLength(index int) int

	// SecondTick runs once per reactor tick (spec §4.E "Tick phase") for
	// the torrent's own per-second work, such as choke/unchoke and
	// optimistic-unchoke bookkeeping. Connection timeouts and keep-alives
	// are handled by the reactor itself, not here.
	SecondTick(dt time.Duration)

	// Announce is invoked on every tick right after SecondTick; the
	// implementation decides whether a tracker contact is due. Errors are
	// non-fatal and surfaced as alerts, never aborting the reactor.
	Announce() error

	// Abort stops the torrent's own background work (announcer,
	// handshakers) without touching its Connections; purgeConnections
	// owns connection teardown.
	Abort()

	// FastResumeData returns a snapshot of the torrent's piece map in the
	// packed form ApplyFastResume accepts as its pieces argument. It is not
	// the bencoded fast-resume file parseFastResume reads.
	FastResumeData() ([]byte, error)

	// ApplyFastResume installs a validated fast-resume result: a
	// complete piece bitfield and, per unfinished piece, a partial
	// block bitmask. The checker thread calls this only after
	// parse_resume_data-equivalent validation succeeds.
	ApplyFastResume(pieces []byte, unfinished map[int][]byte) error

	// PieceAdler32 returns the adler32 checksum libtorrent stores per
	// partially-downloaded piece, used to validate an "unfinished" resume
	// entry's bitmask before trusting it.
	PieceAdler32(piece int) uint32

	// FileSizesMatch compares the resume file's recorded [size, mtime]
	// pairs against what is actually on disk; called only when the
	// fast-resume piece map claims the torrent is complete.
	FileSizesMatch(sizes [][2]int64) bool

	// VerifyAll performs a full on-disk hash check of every piece,
	// invoked by the checker thread when fast-resume data is absent or
	// fails validation. Returns the resulting complete piece bitfield.
	VerifyAll() ([]byte, error)

	// SeedPeers registers peer addresses recovered from fast-resume data
	// or a tracker announce (spec §4.G's peer_map) as outbound-connection
	// candidates for the reactor to dial.
	SeedPeers(addrs []string)

	// AnnounceStopped sends a tracker "stopped" event (BEP3), used once
	// when a torrent is aborted (spec §4.E step 10) and during session
	// shutdown drain.
	AnnounceStopped() error
}

// AllocatorConsumer is implemented by Torrent when it participates in
// weighted fair-share bandwidth/slot distribution (spec §4.I). Kept as a
// separate, optional interface so a Torrent under test need not implement
// the full distribute_resources contract.
type AllocatorConsumer interface {
	Torrent
	Priority() int
	SetQuota(uploadBytesPerSec, downloadBytesPerSec int, maxUploads, maxConnections int)
}
