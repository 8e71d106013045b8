package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/koinonia/liveworkshop/internal/core"
	"github.com/koinonia/liveworkshop/internal/domain"
)

// Manager shards live coordination by workshop id: one Session actor per
// active workshop, created on first join and reaped after a terminal state.
type Manager struct {
	deps Deps

	mu       sync.RWMutex
	sessions map[domain.WorkshopID]*Session

	sweepInterval time.Duration
	idleWarnAfter time.Duration
	reapAfter     time.Duration
}

func NewManager(deps Deps, sweepInterval, idleWarnAfter time.Duration) *Manager {
	return &Manager{
		deps:          deps,
		sessions:      make(map[domain.WorkshopID]*Session),
		sweepInterval: sweepInterval,
		idleWarnAfter: idleWarnAfter,
		reapAfter:     time.Minute,
	}
}

// GetOrCreate returns the session for a workshop, creating it (and starting
// its command loop) on first access. Workshop meta is read from the store
// exactly once, at creation.
func (m *Manager) GetOrCreate(ctx context.Context, id domain.WorkshopID) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}

	w, err := m.deps.Store.Workshop(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: workshop %s: %v", core.ErrNotFound, id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok = m.sessions[id]; ok {
		return s, nil
	}
	s = NewSession(w, m.deps)
	m.sessions[id] = s
	go s.Run()
	log.Info().Str("module", "session.manager").Str("workshop", string(id)).Str("session", string(s.ID())).Msg("session created")
	return s, nil
}

// Get returns an existing session without creating one.
func (m *Manager) Get(id domain.WorkshopID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Snapshots lists every tracked session's full view, for the REST surface.
func (m *Manager) Snapshots() []core.Snapshot {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	out := make([]core.Snapshot, 0, len(all))
	for _, s := range all {
		snap, err := s.Snapshot()
		if err != nil {
			continue
		}
		out = append(out, snap)
	}
	return out
}

// Run sweeps sessions until ctx is cancelled: terminal sessions are reaped
// once their linger window passes, and idle lobbies are logged (never
// terminated; there is no server-enforced lobby timeout).
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.Shutdown()
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Manager) sweep() {
	m.mu.RLock()
	all := make(map[domain.WorkshopID]*Session, len(m.sessions))
	for id, s := range m.sessions {
		all[id] = s
	}
	m.mu.RUnlock()

	for id, s := range all {
		info, err := s.Info()
		if err != nil {
			m.remove(id, s)
			continue
		}
		if info.State.Terminal() {
			if now().Sub(info.LastActivity) >= m.reapAfter {
				m.remove(id, s)
			}
			continue
		}
		s.WarnIfIdle(m.idleWarnAfter)
	}
}

func (m *Manager) remove(id domain.WorkshopID, s *Session) {
	m.mu.Lock()
	if cur, ok := m.sessions[id]; ok && cur == s {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	s.Stop()
	log.Info().Str("module", "session.manager").Str("workshop", string(id)).Msg("session reaped")
}

// Shutdown stops every session loop.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[domain.WorkshopID]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.Stop()
	}
}
