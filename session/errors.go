package session

import (
	stderrors "errors"

	"github.com/pkg/errors"
)

// errConnectionReset is reported by the reactor's Error phase when a
// socket is selected as errored (EPOLLERR/EPOLLHUP); the lower-level OS
// error isn't available through the Selector interface, so this stands in
// for it the way session.cpp's generic "socket error" alert message does.
var errConnectionReset = stderrors.New("connection reset")

// errHalfOpenLimitReached is returned by Connect when the session's
// half-open connection budget (spec §3/§4.I) is already exhausted.
var errHalfOpenLimitReached = stderrors.New("session: half-open connection limit reached")

// FileError is raised by a Torrent's VerifyAll (check_files) when on-disk
// storage I/O fails; the checker returns it as the job's result and
// awaitCheckResult posts a file_error alert. Connection's SendData/
// ReceiveData never return it, and the reactor has no FileError case: any
// error from them drops just the connection and does not pause the
// torrent.
type FileError struct {
	cause error
}

func NewFileError(cause error) *FileError { return &FileError{cause: errors.WithStack(cause)} }
func (e *FileError) Error() string        { return "file error: " + e.cause.Error() }
func (e *FileError) Unwrap() error        { return e.cause }

// PeerError is raised by a Connection's send_data/receive_data for any
// protocol-level failure. It never propagates past the connection that
// raised it; the reactor drops the connection and posts a debug alert.
type PeerError struct {
	cause error
}

func NewPeerError(cause error) *PeerError { return &PeerError{cause: errors.WithStack(cause)} }
func (e *PeerError) Error() string        { return "peer error: " + e.cause.Error() }
func (e *PeerError) Unwrap() error        { return e.cause }

// DuplicateTorrent is returned by AddTorrent when the info-hash is already
// present in either the session's torrent map or the checker's queues.
type DuplicateTorrent struct {
	InfoHash [20]byte
}

func (e *DuplicateTorrent) Error() string { return "torrent already added" }

// InvalidResumeData documents a fast-resume parse failure. It is never
// fatal: the checker always falls back to full verification when it's
// returned. Callers generally only use it to format the fastresume_rejected
// alert message.
type InvalidResumeData struct {
	Reason string
}

func (e *InvalidResumeData) Error() string { return "invalid resume data: " + e.Reason }

// InvariantViolation marks a programmer bug: a disjointness or state
// invariant described in spec §3/§8 did not hold. checkInvariant panics
// with it only when built with the "torrentdebug" build tag (see
// invariants_debug.go); in every build the checker also returns one as the
// result of a job that was aborted before it started.
type InvariantViolation struct {
	What string
}

func (e *InvariantViolation) Error() string { return "invariant violation: " + e.What }
