package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentic-research/rota/internal/calendar"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "exceptions.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testException(user string, date time.Time, typ calendar.ExceptionType) calendar.Exception {
	return calendar.Exception{
		ID:     uuid.New(),
		UserID: user,
		Date:   date,
		Type:   typ,
		Active: true,
	}
}

func TestSQLiteStore_PutAndQueryRange(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	inRange := testException("u1", time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), calendar.Vacation)
	before := testException("u1", time.Date(2025, 2, 20, 0, 0, 0, 0, time.UTC), calendar.Overtime)
	otherUser := testException("u2", time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), calendar.SickLeave)

	for _, exc := range []calendar.Exception{inRange, before, otherUser} {
		require.NoError(t, s.Put(ctx, exc))
	}

	got, err := s.ExceptionsFor(ctx,
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), "u1")
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, inRange.ID, got[0].ID)
	assert.Equal(t, calendar.Vacation, got[0].Type)
	assert.True(t, got[0].Active)
	assert.True(t, got[0].Date.Equal(calendar.Normalize(inRange.Date)))
}

func TestSQLiteStore_EmptyRangeIsFast(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, testException("u1", time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), calendar.Vacation)))

	// The day index answers this without a query; result must still be
	// correct.
	got, err := s.ExceptionsFor(ctx,
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC), "u1")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.ExceptionsFor(ctx,
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), "stranger")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLiteStore_PutMovesDateKeepsIndexHonest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	exc := testException("u1", time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), calendar.Vacation)
	require.NoError(t, s.Put(ctx, exc))

	exc.Date = time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Put(ctx, exc))

	march, err := s.ExceptionsFor(ctx,
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), "u1")
	require.NoError(t, err)
	assert.Empty(t, march, "old date must not resurface after update")

	april, err := s.ExceptionsFor(ctx,
		time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC), "u1")
	require.NoError(t, err)
	require.Len(t, april, 1)
}

func TestSQLiteStore_PutMovesUserKeepsIndexHonest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	mine := testException("u1", day, calendar.Vacation)
	theirs := testException("u2", day, calendar.Overtime)
	require.NoError(t, s.Put(ctx, mine))
	require.NoError(t, s.Put(ctx, theirs))

	// Reassign u2's exception to u1. The old row's day must be removed
	// from u2's index, not u1's, or u1's refcount for the day goes stale.
	theirs.UserID = "u1"
	require.NoError(t, s.Put(ctx, theirs))

	require.NoError(t, s.Delete(ctx, mine.ID))

	got, err := s.ExceptionsFor(ctx,
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), "u1")
	require.NoError(t, err)
	require.Len(t, got, 1, "reassigned exception must not be hidden by the day index")
	assert.Equal(t, theirs.ID, got[0].ID)

	got, err = s.ExceptionsFor(ctx,
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), "u2")
	require.NoError(t, err)
	assert.Empty(t, got, "old user must not keep the reassigned exception")
}

func TestSQLiteStore_Delete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	exc := testException("u1", time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), calendar.Vacation)
	require.NoError(t, s.Put(ctx, exc))
	require.NoError(t, s.Delete(ctx, exc.ID))

	got, err := s.ExceptionsFor(ctx,
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), "u1")
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.ErrorIs(t, s.Delete(ctx, uuid.New()), ErrNotFound)
}

func TestSQLiteStore_IndexSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exceptions.db")
	ctx := context.Background()

	s, err := OpenSQLite(path, nil)
	require.NoError(t, err)
	exc := testException("u1", time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), calendar.Permit104)
	require.NoError(t, s.Put(ctx, exc))
	require.NoError(t, s.Close())

	reopened, err := OpenSQLite(path, nil)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	got, err := reopened.ExceptionsFor(ctx,
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), "u1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, calendar.Permit104, got[0].Type)
}

func TestSQLiteStore_OrderedByDate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, d := range []int{20, 5, 12} {
		require.NoError(t, s.Put(ctx, testException("u1",
			time.Date(2025, 3, d, 0, 0, 0, 0, time.UTC), calendar.Training)))
	}

	got, err := s.ExceptionsFor(ctx,
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), "u1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, got[0].Date.Before(got[1].Date) && got[1].Date.Before(got[2].Date))
}
