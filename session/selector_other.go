//go:build !linux

package session

// newSelector falls back to pipeSelector on platforms without epoll; the
// reactor's phase ordering and tick budget are unaffected, only the
// readiness signal's precision is.
func newSelector() (Selector, error) {
	return newPipeSelector(), nil
}
