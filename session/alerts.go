package session

import (
	"sync"

	"github.com/google/uuid"
)

// Severity mirrors libtorrent's alert::severity_t.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityFatal
)

// Kind names the defined alert types from spec §6.
type Kind string

const (
	AlertListenFailed       Kind = "listen_failed"
	AlertPeerError          Kind = "peer_error"
	AlertFileError          Kind = "file_error"
	AlertFastresumeRejected Kind = "fastresume_rejected"
	AlertTorrentFinished    Kind = "torrent_finished"
	AlertTrackerAnnounce    Kind = "tracker_announce"
)

// Alert is a single notification posted to the alert sink. ID is an
// expansion over spec §6: it lets a façade consumer deduplicate alerts
// observed across repeated PopAlert polling without re-parsing Message.
type Alert struct {
	ID       uuid.UUID
	Kind     Kind
	Severity Severity
	InfoHash [20]byte
	Message  string
}

// alertSink is an unbounded FIFO of pending alerts plus the minimum severity
// that should be posted, guarded by its own mutex so posting from the
// reactor or checker never needs session.mu held.
type alertSink struct {
	mu       sync.Mutex
	severity Severity
	pending  []Alert
}

func newAlertSink() *alertSink {
	return &alertSink{severity: SeverityWarning}
}

func (s *alertSink) setSeverity(sev Severity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.severity = sev
}

func (s *alertSink) shouldPost(sev Severity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sev >= s.severity
}

func (s *alertSink) post(a Alert) {
	if !s.shouldPost(a.Severity) {
		return
	}
	a.ID = uuid.New()
	s.mu.Lock()
	s.pending = append(s.pending, a)
	s.mu.Unlock()
}

// pop returns the oldest pending alert, or false if none is queued.
func (s *alertSink) pop() (Alert, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return Alert{}, false
	}
	a := s.pending[0]
	s.pending = s.pending[1:]
	return a, true
}
