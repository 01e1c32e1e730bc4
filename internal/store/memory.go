package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/agentic-research/rota/internal/calendar"
	"github.com/google/uuid"
)

// MemoryStore is a mutex-guarded in-memory Store. Used by tests and by
// the CLI when no database path is given.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]calendar.Exception
	byUser map[string][]uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[uuid.UUID]calendar.Exception),
		byUser: make(map[string][]uuid.UUID),
	}
}

// Put inserts or replaces an exception.
func (s *MemoryStore) Put(_ context.Context, exc calendar.Exception) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.byID[exc.ID]
	switch {
	case !exists:
		s.byUser[exc.UserID] = append(s.byUser[exc.UserID], exc.ID)
	case prev.UserID != exc.UserID:
		// Reassigned upsert: move the ID to the new user's list.
		s.removeUserID(prev.UserID, exc.ID)
		s.byUser[exc.UserID] = append(s.byUser[exc.UserID], exc.ID)
	}
	s.byID[exc.ID] = exc
	return nil
}

// removeUserID drops id from one user's list. Caller holds mu.
func (s *MemoryStore) removeUserID(user string, id uuid.UUID) {
	ids := s.byUser[user]
	for i, other := range ids {
		if other == id {
			s.byUser[user] = append(ids[:i], ids[i+1:]...)
			return
		}
	}
}

// Delete removes an exception by ID.
func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exc, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.byID, id)
	s.removeUserID(exc.UserID, id)
	return nil
}

// ExceptionsFor implements Store.
func (s *MemoryStore) ExceptionsFor(_ context.Context, from, to time.Time, userID string) ([]calendar.Exception, error) {
	fromDay, toDay := calendar.EpochDay(from), calendar.EpochDay(to)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []calendar.Exception
	for _, id := range s.byUser[userID] {
		exc := s.byID[id]
		day := calendar.EpochDay(exc.Date)
		if day >= fromDay && day <= toDay {
			out = append(out, exc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}
