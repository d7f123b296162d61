package calendar

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Manager keeps one Service per owner, opened on first use and closed once
// it has sat idle.
type Manager struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	services map[string]*managed
	closed   bool
}

type managed struct {
	svc      *Service
	lastUsed time.Time
}

func NewManager(repo Repository, logger *slog.Logger) *Manager {
	return &Manager{
		repo:     repo,
		logger:   logger,
		now:      time.Now,
		services: make(map[string]*managed),
	}
}

// For returns the owner's service, opening it if needed.
func (m *Manager) For(ctx context.Context, ownerID string) (*Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if entry, ok := m.services[ownerID]; ok {
		entry.lastUsed = m.now()
		return entry.svc, nil
	}

	svc, err := Open(ctx, m.repo, ownerID, m.logger)
	if err != nil {
		return nil, err
	}
	m.services[ownerID] = &managed{svc: svc, lastUsed: m.now()}
	return svc, nil
}

// EvictIdle closes services not handed out for at least idle and returns how
// many were closed. The next For for an evicted owner opens a fresh service.
func (m *Manager) EvictIdle(idle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-idle)
	evicted := 0
	for owner, entry := range m.services {
		if entry.lastUsed.After(cutoff) {
			continue
		}
		entry.svc.Close()
		delete(m.services, owner)
		evicted++
	}
	return evicted
}

// Len returns the number of open services.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.services)
}

// CloseAll tears down every service.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	for owner, entry := range m.services {
		entry.svc.Close()
		delete(m.services, owner)
	}
}
