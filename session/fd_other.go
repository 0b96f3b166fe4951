//go:build !linux

package session

import "net"

// fdOf has no portable meaning outside epoll's world; the pipeSelector
// fallback doesn't key off real file descriptors, so a process-unique
// counter is enough to keep socketIDs distinct.
var fdCounter int

func fdOf(conn net.Conn) int {
	fdCounter++
	return fdCounter
}
