// Package store provides the in-memory workshop metadata backend used in
// dev mode and tests. The production platform fronts its relational store
// behind the same core.WorkshopStore interface.
package store

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/koinonia/liveworkshop/internal/domain"
)

var ErrUnknownWorkshop = errors.New("store: unknown workshop")

type Memory struct {
	mu        sync.RWMutex
	workshops map[domain.WorkshopID]domain.Workshop
}

func NewMemory() *Memory {
	return &Memory{workshops: make(map[domain.WorkshopID]domain.Workshop)}
}

// Seed registers workshop records, typically from config in dev mode.
func (m *Memory) Seed(ws ...domain.Workshop) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range ws {
		if w.Status == "" {
			w.Status = domain.WorkshopScheduled
		}
		m.workshops[w.ID] = w
	}
}

func (m *Memory) Workshop(ctx context.Context, id domain.WorkshopID) (domain.Workshop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.workshops[id]
	if !ok {
		return domain.Workshop{}, ErrUnknownWorkshop
	}
	return w, nil
}

// FinishWorkshop records the final attendance and completion status written
// back by the coordinator on session end.
func (m *Memory) FinishWorkshop(ctx context.Context, id domain.WorkshopID, attendeeCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workshops[id]
	if !ok {
		return ErrUnknownWorkshop
	}
	w.Status = domain.WorkshopCompleted
	w.AttendeeCount = attendeeCount
	m.workshops[id] = w
	log.Info().Str("module", "store").Str("workshop", string(id)).Int("attendees", attendeeCount).Msg("workshop finished")
	return nil
}
