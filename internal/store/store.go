// Package store provides exception persistence: the Store interface the
// data manager consumes, a SQLite-backed implementation, and an
// in-memory implementation for tests and zero-setup runs.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/agentic-research/rota/internal/calendar"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a referenced exception does not exist.
var ErrNotFound = errors.New("exception not found")

// Store supplies per-date exception records for a user and date range.
type Store interface {
	// ExceptionsFor returns all exceptions for userID with dates in
	// [from, to], ordered by date.
	ExceptionsFor(ctx context.Context, from, to time.Time, userID string) ([]calendar.Exception, error)
}

// Writer is the mutation side, implemented by both stores. The cache
// layer only needs Store; the CLI and tests use Writer to seed data.
type Writer interface {
	Put(ctx context.Context, exc calendar.Exception) error
	Delete(ctx context.Context, id uuid.UUID) error
}
