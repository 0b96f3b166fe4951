//go:build linux

package session

import "net"

// fdOf extracts the raw file descriptor backing conn, used as the socket
// identity every collection and the epoll Selector are keyed on.
func fdOf(conn net.Conn) int {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return 0
	}
	rc, err := tc.SyscallConn()
	if err != nil {
		return 0
	}
	var fd int
	rc.Control(func(f uintptr) { fd = int(f) })
	return fd
}
