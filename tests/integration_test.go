package tests

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/agentic-research/rota/api"
	"github.com/agentic-research/rota/internal/cache"
	"github.com/agentic-research/rota/internal/calendar"
	"github.com/agentic-research/rota/internal/merge"
	"github.com/agentic-research/rota/internal/store"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// patternHCL is a three-team rotation anchored so that 2025-03-10 is
// position 0: Morning A, Afternoon B, Night C.
const patternHCL = `
reference_date = "2025-03-10"
cycle_length   = 3

team "A" {}
team "B" {}
team "C" {}

shift "Morning" {
  start = "06:00"
  end   = "14:00"
}
shift "Afternoon" {
  start = "14:00"
  end   = "22:00"
}
shift "Night" {
  start = "22:00"
  end   = "06:00"
}

position {
  index = 0
  assign "Morning" { teams = ["A"] }
  assign "Afternoon" { teams = ["B"] }
  assign "Night" { teams = ["C"] }
}
position {
  index = 1
  assign "Morning" { teams = ["B"] }
  assign "Afternoon" { teams = ["C"] }
  assign "Night" { teams = ["A"] }
}
position {
  index = 2
  assign "Morning" { teams = ["C"] }
  assign "Afternoon" { teams = ["A"] }
  assign "Night" { teams = ["B"] }
}
`

// fixture wires the full pipeline: HCL config → generator, SQLite
// exception store, merge engine, data manager.
type fixture struct {
	store *store.SQLiteStore
	mgr   *cache.Manager
}

// settleWatcher resolves months as they reach a terminal state.
type settleWatcher struct {
	mu      sync.Mutex
	settled map[calendar.MonthKey]cache.DataState
	signal  chan struct{}
}

func newSettleWatcher() *settleWatcher {
	return &settleWatcher{
		settled: make(map[calendar.MonthKey]cache.DataState),
		signal:  make(chan struct{}, 64),
	}
}

func (w *settleWatcher) OnDataStateChanged(month calendar.MonthKey, state cache.DataState, _ []*calendar.Day) {
	if state != cache.StateLoaded && state != cache.StateError {
		return
	}
	w.mu.Lock()
	w.settled[month] = state
	w.mu.Unlock()
	w.signal <- struct{}{}
}

func (w *settleWatcher) OnLoadingProgress(calendar.MonthKey, int) {}

func (w *settleWatcher) wait(t *testing.T, keys ...calendar.MonthKey) {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		w.mu.Lock()
		missing := 0
		for _, k := range keys {
			if _, ok := w.settled[k]; !ok {
				missing++
			}
		}
		w.mu.Unlock()
		if missing == 0 {
			return
		}
		select {
		case <-w.signal:
		case <-deadline:
			t.Fatalf("timed out, %d months not settled", missing)
		}
	}
}

func (w *settleWatcher) reset() {
	w.mu.Lock()
	w.settled = make(map[calendar.MonthKey]cache.DataState)
	w.mu.Unlock()
}

func setup(t *testing.T) *fixture {
	t.Helper()

	fsys := memfs.New()
	require.NoError(t, util.WriteFile(fsys, "pattern.hcl", []byte(patternHCL), 0o644))
	cfg, err := api.Load(fsys, "pattern.hcl", nil)
	require.NoError(t, err)

	gen, err := calendar.NewGenerator(cfg)
	require.NoError(t, err)

	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "exceptions.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	mgr := cache.NewManager(gen, st, merge.NewEngine(nil), "A", "u1", cache.DefaultOptions(), nil)
	t.Cleanup(mgr.Close)

	return &fixture{store: st, mgr: mgr}
}

func TestEndToEnd_ViewportScrollMergesExceptions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	march := calendar.MonthKey{Year: 2025, Month: time.March}

	// A is on vacation on 2025-03-10 (base: Morning) and works Night as
	// overtime on 2025-03-12 (base: Afternoon).
	vacation := calendar.Exception{
		ID: uuid.New(), UserID: "u1",
		Date: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		Type: calendar.Vacation, Active: true,
	}
	overtime := calendar.Exception{
		ID: uuid.New(), UserID: "u1",
		Date: time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC),
		Type: calendar.Overtime, ReplacementShift: "Night", Active: true,
	}
	require.NoError(t, f.store.Put(ctx, vacation))
	require.NoError(t, f.store.Put(ctx, overtime))

	watcher := newSettleWatcher()
	unsubscribe := f.mgr.Subscribe(watcher)
	defer unsubscribe()

	// Fast forward scroll centered on March: expect 2025-02 .. 2025-06.
	f.mgr.RequestViewportData(march, cache.Forward, 2.5)

	expected := []calendar.MonthKey{
		march.Add(-1), march, march.Add(1), march.Add(2), march.Add(3),
	}
	watcher.wait(t, expected...)
	for _, key := range expected {
		assert.Equal(t, cache.StateLoaded, f.mgr.GetDataState(key), "month %s", key)
	}

	days, ok := f.mgr.GetMonthData(march)
	require.True(t, ok)
	require.Len(t, days, 31)

	// 2025-03-10: vacation empties Morning of A.
	day10 := days[9]
	assert.Equal(t, 0, day10.ShiftByName("Morning").Teams.Len())
	assert.True(t, day10.OffWork.Has("A"))
	assert.True(t, day10.ShiftByName("Night").Teams.Has("C"), "other teams unaffected")

	// 2025-03-12: overtime moves A from Afternoon into Night.
	day12 := days[11]
	assert.False(t, day12.ShiftByName("Afternoon").Teams.Has("A"))
	assert.True(t, day12.ShiftByName("Night").Teams.Has("A"))
	assert.False(t, day12.OffWork.Has("A"))

	// 2025-03-11 has no exception: pure base pattern, A on Night.
	day11 := days[10]
	assert.True(t, day11.ShiftByName("Night").Teams.Has("A"))
}

func TestEndToEnd_RefreshAfterUpstreamChange(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	march := calendar.MonthKey{Year: 2025, Month: time.March}

	watcher := newSettleWatcher()
	defer f.mgr.Subscribe(watcher)()

	f.mgr.GetMonthData(march)
	watcher.wait(t, march)

	days, _ := f.mgr.GetMonthData(march)
	assert.False(t, days[19].OffWork.Has("A"), "baseline: no exception on 2025-03-20")

	// Upstream writes a new exception; the cache is stale until the
	// consumer refreshes the month.
	sick := calendar.Exception{
		ID: uuid.New(), UserID: "u1",
		Date: time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC),
		Type: calendar.SickLeave, Active: true,
	}
	require.NoError(t, f.store.Put(ctx, sick))

	stale, _ := f.mgr.GetMonthData(march)
	assert.False(t, stale[19].OffWork.Has("A"), "cache serves stale data until refresh")

	watcher.reset()
	f.mgr.RefreshMonth(march)
	watcher.wait(t, march)

	fresh, ok := f.mgr.GetMonthData(march)
	require.True(t, ok)
	assert.True(t, fresh[19].OffWork.Has("A"))
}

func TestEndToEnd_DeterministicAcrossManagers(t *testing.T) {
	f1 := setup(t)
	f2 := setup(t)
	march := calendar.MonthKey{Year: 2025, Month: time.March}

	w1, w2 := newSettleWatcher(), newSettleWatcher()
	defer f1.mgr.Subscribe(w1)()
	defer f2.mgr.Subscribe(w2)()

	f1.mgr.GetMonthData(march)
	f2.mgr.GetMonthData(march)
	w1.wait(t, march)
	w2.wait(t, march)

	d1, _ := f1.mgr.GetMonthData(march)
	d2, _ := f2.mgr.GetMonthData(march)
	require.Len(t, d2, len(d1))
	for i := range d1 {
		assert.True(t, d1[i].Equal(d2[i]), "day %d differs between independent pipelines", i)
	}
}
