package taskstore

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Manager hands out one Store per signed-in identity and drops it again on
// sign-out. A store is created lazily on the first request for an identity
// and primed with an initial load.
type Manager struct {
	backend Backend
	notify  Notifier
	logger  *log.Logger

	mu     sync.Mutex
	stores map[string]*Store
}

// NewManager creates a Manager over the given backend. notify may be nil.
func NewManager(backend Backend, notify Notifier, logger *log.Logger) *Manager {
	if backend == nil {
		panic("taskstore.NewManager: backend is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Manager{
		backend: backend,
		notify:  notify,
		logger:  logger,
		stores:  make(map[string]*Store),
	}
}

// ForUser returns the store for the given identity, creating and loading it
// on first access. An empty identity is rejected without touching the
// backend.
func (m *Manager) ForUser(ctx context.Context, userID string) (*Store, error) {
	if userID == "" {
		return nil, ErrAuthRequired
	}

	m.mu.Lock()
	st, ok := m.stores[userID]
	if !ok {
		st = New(m.backend, userID, m.notify, m.logger)
		m.stores[userID] = st
	}
	m.mu.Unlock()

	if !ok {
		if err := st.Load(ctx); err != nil {
			m.mu.Lock()
			if m.stores[userID] == st {
				delete(m.stores, userID)
			}
			m.mu.Unlock()
			st.Close()
			return nil, err
		}
	}
	return st, nil
}

// SignOut drops the identity's store. Any load still in flight for it is
// discarded when it resolves.
func (m *Manager) SignOut(userID string) {
	m.mu.Lock()
	st, ok := m.stores[userID]
	if ok {
		delete(m.stores, userID)
	}
	m.mu.Unlock()
	if ok {
		st.Close()
	}
}
