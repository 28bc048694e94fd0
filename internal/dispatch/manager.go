package dispatch

import (
	"sync"

	"github.com/arashov/collabedit/internal/ot"
	"github.com/arashov/collabedit/internal/transport"
)

// Manager owns one Dispatcher per live document, created lazily on first
// access. Grounded on teacher internal/collab/manager.go's
// GetOrCreateSession double-checked-locking pattern.
type Manager struct {
	mu          sync.RWMutex
	dispatchers map[string]*Dispatcher

	hub        *transport.Hub
	pool       *Pool
	maxHistory int
}

// NewManager creates an empty manager. Every dispatcher it lazily creates
// shares hub for broadcast and pool for bounding concurrent commits;
// maxHistory bounds each document's per-user undo/redo stacks.
func NewManager(hub *transport.Hub, pool *Pool, maxHistory int) *Manager {
	return &Manager{
		dispatchers: make(map[string]*Dispatcher),
		hub:         hub,
		pool:        pool,
		maxHistory:  maxHistory,
	}
}

// GetOrCreate returns the dispatcher for docID, creating a fresh
// ot.Controller and Dispatcher on first access.
func (m *Manager) GetOrCreate(docID string) *Dispatcher {
	m.mu.RLock()
	d, ok := m.dispatchers[docID]
	m.mu.RUnlock()

	if ok {
		return d
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok = m.dispatchers[docID]; ok {
		return d
	}

	controller := ot.NewController(m.maxHistory)
	d = NewDispatcher(docID, controller, m.hub, m.pool)
	m.dispatchers[docID] = d

	return d
}

// Get returns the dispatcher for docID if one already exists.
func (m *Manager) Get(docID string) (*Dispatcher, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.dispatchers[docID]

	return d, ok
}

// Close stops and removes the dispatcher for docID, if any.
func (m *Manager) Close(docID string) {
	m.mu.Lock()
	d, ok := m.dispatchers[docID]
	if ok {
		delete(m.dispatchers, docID)
	}
	m.mu.Unlock()

	if ok {
		d.Stop()
	}
}

// CloseAll stops every live dispatcher.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := make([]*Dispatcher, 0, len(m.dispatchers))
	for _, d := range m.dispatchers {
		all = append(all, d)
	}
	m.dispatchers = make(map[string]*Dispatcher)
	m.mu.Unlock()

	for _, d := range all {
		d.Stop()
	}
}

// DocumentCount returns how many documents currently have a live
// dispatcher.
func (m *Manager) DocumentCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.dispatchers)
}
