//go:build linux

package session

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// epollSelector is the real Selector: one epoll instance registering every
// connected socket's raw fd, woken early by writing to a self-pipe exactly
// as libtorrent's selector interrupt() does (session.cpp relies on this to
// break out of a blocked wait() when a new connection needs registering).
type epollSelector struct {
	epfd int

	wakeR, wakeW int

	mu   sync.Mutex
	fds  map[socketID]int // socket identity -> raw fd, for the reverse lookup epoll_wait doesn't give us
}

func newEpollSelector() (*epollSelector, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	var pipefds [2]int
	if err := unix.Pipe2(pipefds[:], unix.O_NONBLOCK); err != nil {
		unix.Close(epfd)
		return nil, err
	}
	s := &epollSelector{epfd: epfd, wakeR: pipefds[0], wakeW: pipefds[1], fds: make(map[socketID]int)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, s.wakeR, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(s.wakeR)}); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func epollEvents(wantRead, wantWrite bool) uint32 {
	var ev uint32
	if wantRead {
		ev |= unix.EPOLLIN
	}
	if wantWrite {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (s *epollSelector) Add(sock socketID, wantRead, wantWrite bool) error {
	s.mu.Lock()
	s.fds[sock] = int(sock)
	s.mu.Unlock()
	return unix.EpollCtl(s.epfd, unix.EPOLL_CTL_ADD, int(sock), &unix.EpollEvent{
		Events: epollEvents(wantRead, wantWrite),
		Fd:     int32(sock),
	})
}

func (s *epollSelector) Remove(sock socketID) {
	s.mu.Lock()
	delete(s.fds, sock)
	s.mu.Unlock()
	unix.EpollCtl(s.epfd, unix.EPOLL_CTL_DEL, int(sock), nil)
}

func (s *epollSelector) SetInterest(sock socketID, wantRead, wantWrite bool) {
	unix.EpollCtl(s.epfd, unix.EPOLL_CTL_MOD, int(sock), &unix.EpollEvent{
		Events: epollEvents(wantRead, wantWrite),
		Fd:     int32(sock),
	})
	s.wake()
}

func (s *epollSelector) wake() {
	unix.Write(s.wakeW, []byte{0})
}

func (s *epollSelector) Wait(timeout time.Duration) ([]selectorEvent, error) {
	raw := make([]unix.EpollEvent, 256)
	n, err := unix.EpollWait(s.epfd, raw, int(timeout/time.Millisecond))
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	events := make([]selectorEvent, 0, n)
	for i := 0; i < n; i++ {
		fd := int(raw[i].Fd)
		if fd == s.wakeR {
			var drain [64]byte
			unix.Read(s.wakeR, drain[:])
			continue
		}
		events = append(events, selectorEvent{
			sock:     socketID(fd),
			readable: raw[i].Events&unix.EPOLLIN != 0,
			writable: raw[i].Events&unix.EPOLLOUT != 0,
			errored:  raw[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0,
		})
	}
	return events, nil
}

func (s *epollSelector) Close() error {
	unix.Close(s.wakeR)
	unix.Close(s.wakeW)
	return unix.Close(s.epfd)
}

// newSelector picks the real epoll-backed Selector on Linux.
func newSelector() (Selector, error) {
	return newEpollSelector()
}
