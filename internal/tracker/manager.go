package tracker

import (
	"sync"
	"time"
)

// Manager caches one Client per tracker URL so repeated announces across
// torrents sharing a tracker reuse the same *http.Client (and its
// connection pool), grounded on the teacher's session.go reference to a
// trackerManager collaborator it never shipped the source for.
type Manager struct {
	mu      sync.Mutex
	clients map[string]*Client
}

func NewManager() *Manager {
	return &Manager{clients: make(map[string]*Client)}
}

func (m *Manager) Get(url string, timeout time.Duration, userAgent string) *Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.clients[url]; ok {
		return c
	}
	c := NewClient(url, timeout, userAgent)
	m.clients[url] = c
	return c
}
