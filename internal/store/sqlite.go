package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/agentic-research/rota/internal/calendar"
	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the durable exception store.
//
// Alongside the table it keeps a per-user roaring bitmap of epoch days
// that carry exceptions, so range queries over exception-free windows
// (the common case when scrolling) never touch the database.
type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger

	mu      sync.RWMutex
	dayIdx  map[string]*roaring.Bitmap // userID → epoch days with exceptions
	dayRefs map[string]map[uint32]int  // userID → epoch day → record count
}

// OpenSQLite opens (creating if needed) an exception database and loads
// the day index.
func OpenSQLite(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS exceptions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		epoch_day INTEGER NOT NULL,
		type TEXT NOT NULL,
		replacement_shift TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS idx_user_day ON exceptions(user_id, epoch_day);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		log:     logger,
		dayIdx:  make(map[string]*roaring.Bitmap),
		dayRefs: make(map[string]map[uint32]int),
	}
	if err := s.loadIndex(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// loadIndex rebuilds the in-memory day index from the table.
func (s *SQLiteStore) loadIndex() error {
	rows, err := s.db.Query("SELECT user_id, epoch_day FROM exceptions")
	if err != nil {
		return fmt.Errorf("load day index: %w", err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	count := 0
	for rows.Next() {
		var user string
		var day int64
		if err := rows.Scan(&user, &day); err != nil {
			return fmt.Errorf("scan index row: %w", err)
		}
		s.indexAdd(user, day)
		count++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate index rows: %w", err)
	}
	s.log.Debug("exception day index loaded", zap.Int("records", count))
	return nil
}

// indexAdd records one exception day. Caller must hold mu for writing
// (or be the only goroutine, as during loadIndex).
func (s *SQLiteStore) indexAdd(user string, day int64) {
	if day < 0 {
		return // pre-epoch dates skip the fast path
	}
	bm, ok := s.dayIdx[user]
	if !ok {
		bm = roaring.New()
		s.dayIdx[user] = bm
		s.dayRefs[user] = make(map[uint32]int)
	}
	bm.Add(uint32(day))
	s.dayRefs[user][uint32(day)]++
}

func (s *SQLiteStore) indexRemove(user string, day int64) {
	if day < 0 {
		return
	}
	refs, ok := s.dayRefs[user]
	if !ok {
		return
	}
	refs[uint32(day)]--
	if refs[uint32(day)] <= 0 {
		delete(refs, uint32(day))
		if bm := s.dayIdx[user]; bm != nil {
			bm.Remove(uint32(day))
		}
	}
}

// Put inserts or replaces an exception.
func (s *SQLiteStore) Put(ctx context.Context, exc calendar.Exception) error {
	day := calendar.EpochDay(exc.Date)

	// Fetch the previous row so a user or date change keeps the index
	// honest. The removal must target the row's old owner, not the
	// incoming one.
	var prevUser string
	var prevDay int64
	var hadPrev bool
	err := s.db.QueryRowContext(ctx,
		"SELECT user_id, epoch_day FROM exceptions WHERE id = ?", exc.ID.String()).Scan(&prevUser, &prevDay)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return fmt.Errorf("lookup exception %s: %w", exc.ID, err)
	default:
		hadPrev = true
	}

	active := 0
	if exc.Active {
		active = 1
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO exceptions (id, user_id, epoch_day, type, replacement_shift, active)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			epoch_day = excluded.epoch_day,
			type = excluded.type,
			replacement_shift = excluded.replacement_shift,
			active = excluded.active`,
		exc.ID.String(), exc.UserID, day, string(exc.Type), exc.ReplacementShift, active)
	if err != nil {
		return fmt.Errorf("upsert exception %s: %w", exc.ID, err)
	}

	s.mu.Lock()
	if hadPrev {
		s.indexRemove(prevUser, prevDay)
	}
	s.indexAdd(exc.UserID, day)
	s.mu.Unlock()
	return nil
}

// Delete removes an exception by ID.
func (s *SQLiteStore) Delete(ctx context.Context, id uuid.UUID) error {
	var user string
	var day int64
	err := s.db.QueryRowContext(ctx,
		"SELECT user_id, epoch_day FROM exceptions WHERE id = ?", id.String()).Scan(&user, &day)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup exception %s: %w", id, err)
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM exceptions WHERE id = ?", id.String()); err != nil {
		return fmt.Errorf("delete exception %s: %w", id, err)
	}

	s.mu.Lock()
	s.indexRemove(user, day)
	s.mu.Unlock()
	return nil
}

// ExceptionsFor implements Store.
func (s *SQLiteStore) ExceptionsFor(ctx context.Context, from, to time.Time, userID string) ([]calendar.Exception, error) {
	fromDay, toDay := calendar.EpochDay(from), calendar.EpochDay(to)
	if fromDay > toDay {
		return nil, nil
	}

	// Fast path: the bitmap proves the range is exception-free.
	if fromDay >= 0 {
		s.mu.RLock()
		bm := s.dayIdx[userID]
		empty := bm == nil || bm.Rank(uint32(toDay))-rankBefore(bm, uint32(fromDay)) == 0
		s.mu.RUnlock()
		if empty {
			return nil, nil
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, epoch_day, type, replacement_shift, active
		FROM exceptions
		WHERE user_id = ? AND epoch_day BETWEEN ? AND ?
		ORDER BY epoch_day`,
		userID, fromDay, toDay)
	if err != nil {
		return nil, fmt.Errorf("query exceptions: %w", err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	var out []calendar.Exception
	for rows.Next() {
		var (
			rawID, user, typ, repl string
			day                    int64
			active                 int
		)
		if err := rows.Scan(&rawID, &user, &day, &typ, &repl, &active); err != nil {
			return nil, fmt.Errorf("scan exception row: %w", err)
		}
		id, err := uuid.Parse(rawID)
		if err != nil {
			s.log.Warn("skipping exception with malformed id", zap.String("id", rawID), zap.Error(err))
			continue
		}
		out = append(out, calendar.Exception{
			ID:               id,
			UserID:           user,
			Date:             time.Unix(day*86400, 0).UTC(),
			Type:             calendar.ExceptionType(typ),
			ReplacementShift: repl,
			Active:           active != 0,
		})
	}
	return out, rows.Err()
}

// rankBefore counts bitmap members strictly below x.
func rankBefore(bm *roaring.Bitmap, x uint32) uint64 {
	if x == 0 {
		return 0
	}
	return bm.Rank(x - 1)
}
