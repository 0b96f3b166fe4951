package session

import (
	"sync"
	"time"
)

// selectorEvent is one socket's readiness as reported by a Selector pass,
// mirroring the three batches session_impl::operator()() iterates in turn
// (readable, writable, errored) — see session.cpp.
type selectorEvent struct {
	sock     socketID
	readable bool
	writable bool
	errored  bool
}

// Selector multiplexes readiness across every registered socket. The
// reactor calls Wait once per loop iteration with a 500ms budget, exactly
// as session_impl's main loop does via m_selector.wait(microsec(500000)).
type Selector interface {
	Add(sock socketID, wantRead, wantWrite bool) error
	Remove(sock socketID)
	SetInterest(sock socketID, wantRead, wantWrite bool)
	Wait(timeout time.Duration) ([]selectorEvent, error)
	Close() error
}

// pipeSelector is the portable Selector fallback: it doesn't actually poll
// kernel readiness, it tracks interest sets and on each Wait reports every
// registered socket as readable and/or writable exactly as its registered
// read/write interest says, relying on the
// reactor's own non-blocking Read/Write calls to no-op when there's
// nothing to do. Used wherever the epoll-based Selector (selector_linux.go)
// isn't available.
type pipeSelector struct {
	mu      sync.Mutex
	wake    chan struct{}
	sockets map[socketID]struct{ read, write bool }
}

func newPipeSelector() *pipeSelector {
	return &pipeSelector{
		wake:    make(chan struct{}, 1),
		sockets: make(map[socketID]struct{ read, write bool }),
	}
}

func (s *pipeSelector) Add(sock socketID, wantRead, wantWrite bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets[sock] = struct{ read, write bool }{wantRead, wantWrite}
	s.notify()
	return nil
}

func (s *pipeSelector) Remove(sock socketID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sockets, sock)
}

func (s *pipeSelector) SetInterest(sock socketID, wantRead, wantWrite bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sockets[sock]; ok {
		s.sockets[sock] = struct{ read, write bool }{wantRead, wantWrite}
	}
	s.notify()
}

// notify must be called with mu held; it wakes a blocked Wait early, the
// Go analogue of session_impl's self-pipe "interrupt the selector" trick.
func (s *pipeSelector) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *pipeSelector) Wait(timeout time.Duration) ([]selectorEvent, error) {
	select {
	case <-s.wake:
	case <-time.After(timeout):
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	events := make([]selectorEvent, 0, len(s.sockets))
	for sock, interest := range s.sockets {
		events = append(events, selectorEvent{sock: sock, readable: interest.read, writable: interest.write})
	}
	return events, nil
}

func (s *pipeSelector) Close() error { return nil }
