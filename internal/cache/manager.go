package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentic-research/rota/internal/calendar"
	"github.com/agentic-research/rota/internal/merge"
	"github.com/agentic-research/rota/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Options tunes cache capacity and prefetch-window sizing.
type Options struct {
	// Capacity is the maximum number of cached months. Pinned months
	// do not count against forced eviction; they are never removed.
	Capacity int
	// MaxReach is how many months ahead of travel to prefetch at high
	// velocity. Reach is 1 at rest.
	MaxReach int
	// VelocityLow/VelocityHigh are the thresholds where reach grows
	// from 1 to 2 and from 2 to MaxReach.
	VelocityLow  float64
	VelocityHigh float64
}

// DefaultOptions returns the tuning used by the CLI.
func DefaultOptions() Options {
	return Options{Capacity: 24, MaxReach: 3, VelocityLow: 0.5, VelocityHigh: 2.0}
}

// entry is one month's cache slot. All fields are guarded by the
// manager mutex.
type entry struct {
	key        calendar.MonthKey
	state      DataState
	days       []*calendar.Day
	err        error
	lastAccess time.Time
	lruElem    *list.Element

	// seq is stamped on every state transition; a publisher whose seq
	// is no longer the entry's latest has been superseded.
	seq uint64
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Entries   int
	Hits      int64
	Misses    int64
	Loads     int64
	Errors    int64
	Evictions int64
}

// Manager orchestrates cache population: it computes prefetch windows
// from scroll context, runs load+merge operations asynchronously,
// deduplicates concurrent requests per month key, and publishes state
// changes to subscribers.
//
// Merges for one key are serialized (single-flight); different keys
// load concurrently. A superseded load is not cancelled: it completes
// and populates the cache for later reuse, and consumers compare the
// callback's month against their current viewport before acting.
type Manager struct {
	gen    *calendar.Generator
	store  store.Store
	engine *merge.Engine
	team   string
	userID string
	opts   Options
	log    *zap.Logger

	mu      sync.Mutex
	entries map[calendar.MonthKey]*entry
	lru     *list.List // front = most recently used, values are MonthKey
	pinned  map[calendar.MonthKey]struct{}
	subs    map[int]Callback
	nextSub int
	seq     uint64 // transition counter shared by all entries
	closed  bool

	// pubLocks serialize callback delivery per key. They outlive
	// eviction so a recreated month cannot publish past a callback
	// still being delivered for its predecessor. Never taken while
	// holding mu.
	pubLocks map[calendar.MonthKey]*sync.Mutex

	flight singleflight.Group
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	hits, misses, loads, loadErrors, evictions int64
}

// NewManager wires a manager from its collaborators. team and userID
// select whose calendar is merged. A nil logger disables logging.
func NewManager(gen *calendar.Generator, st store.Store, engine *merge.Engine, team, userID string, opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultOptions().Capacity
	}
	if opts.MaxReach <= 0 {
		opts.MaxReach = DefaultOptions().MaxReach
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		gen:      gen,
		store:    st,
		engine:   engine,
		team:     team,
		userID:   userID,
		opts:     opts,
		log:      logger,
		entries:  make(map[calendar.MonthKey]*entry),
		lru:      list.New(),
		pinned:   make(map[calendar.MonthKey]struct{}),
		subs:     make(map[int]Callback),
		pubLocks: make(map[calendar.MonthKey]*sync.Mutex),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Subscribe registers a callback and returns its unsubscribe handle.
func (m *Manager) Subscribe(cb Callback) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = cb
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// GetMonthData is the non-blocking read. It returns the merged days if
// the month is loaded; otherwise it triggers an async load as a side
// effect and returns immediately with ok=false.
func (m *Manager) GetMonthData(key calendar.MonthKey) ([]*calendar.Day, bool) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, false
	}
	if e, ok := m.entries[key]; ok && e.state == StateLoaded {
		m.touchLocked(e)
		days := append([]*calendar.Day(nil), e.days...)
		m.mu.Unlock()
		atomic.AddInt64(&m.hits, 1)
		return days, true
	}
	m.mu.Unlock()

	atomic.AddInt64(&m.misses, 1)
	m.ensureLoad(key)
	return nil, false
}

// GetDataState returns the current state of a month entry.
func (m *Manager) GetDataState(key calendar.MonthKey) DataState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		return e.state
	}
	return StateEmpty
}

// LastError returns the load error of a month in StateError, nil
// otherwise. Consumers use it for the per-month error affordance.
func (m *Manager) LastError(key calendar.MonthKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok && e.state == StateError {
		return e.err
	}
	return nil
}

// RequestViewportData recomputes the prefetch window around the center
// month, pins it against eviction, and dispatches loads for every
// uncached month in it. Fire-and-forget; results arrive via callbacks.
func (m *Manager) RequestViewportData(center calendar.MonthKey, direction ScrollDirection, velocity float64) {
	keys := window(ScrollContext{Direction: direction, Velocity: velocity, Center: center}, m.opts)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.pinned = make(map[calendar.MonthKey]struct{}, len(keys))
	for _, k := range keys {
		m.pinned[k] = struct{}{}
	}
	m.mu.Unlock()

	m.log.Debug("viewport window computed",
		zap.Stringer("center", center),
		zap.Stringer("direction", direction),
		zap.Float64("velocity", velocity),
		zap.Int("months", len(keys)))

	for _, k := range keys {
		m.ensureLoad(k)
	}
}

// RefreshMonth force-invalidates and reloads a month. Used after
// exception data changed upstream. If a load is already in flight it
// attaches to it: that load reads the store now and delivers fresh
// data, and a second in-flight load per key is never allowed.
func (m *Manager) RefreshMonth(key calendar.MonthKey) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	e := m.entryLocked(key)
	if e.state == StateLoading {
		m.mu.Unlock()
		return
	}
	e.state = StateLoading
	e.days = nil
	e.err = nil
	seq := m.stampLocked(e)
	m.mu.Unlock()

	m.publishState(e, seq, StateLoading, nil)
	m.spawnLoad(key)
}

// Stats returns a snapshot of cache counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	entries := len(m.entries)
	m.mu.Unlock()
	return Stats{
		Entries:   entries,
		Hits:      atomic.LoadInt64(&m.hits),
		Misses:    atomic.LoadInt64(&m.misses),
		Loads:     atomic.LoadInt64(&m.loads),
		Errors:    atomic.LoadInt64(&m.loadErrors),
		Evictions: atomic.LoadInt64(&m.evictions),
	}
}

// Close stops accepting work and waits for in-flight loads to settle.
// Results arriving after Close are dropped without callbacks.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
}

// entryLocked returns the slot for key, creating it in StateEmpty if
// missing. Caller holds mu.
func (m *Manager) entryLocked(key calendar.MonthKey) *entry {
	e, ok := m.entries[key]
	if !ok {
		e = &entry{key: key, state: StateEmpty, lastAccess: time.Now()}
		e.lruElem = m.lru.PushFront(key)
		m.entries[key] = e
	}
	return e
}

// ensureLoad transitions an Empty or Error entry to Loading and spawns
// the load. Loading and Loaded entries are left alone, which is what
// makes concurrent requests for the same key collapse into one load.
func (m *Manager) ensureLoad(key calendar.MonthKey) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	e := m.entryLocked(key)
	if e.state == StateLoading || e.state == StateLoaded {
		m.mu.Unlock()
		return
	}
	// Empty → Loading, or Error → Loading on re-request.
	e.state = StateLoading
	e.days = nil
	e.err = nil
	seq := m.stampLocked(e)
	m.mu.Unlock()

	m.publishState(e, seq, StateLoading, nil)
	m.spawnLoad(key)
}

func (m *Manager) spawnLoad(key calendar.MonthKey) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		v, err, _ := m.flight.Do(key.String(), func() (any, error) {
			return m.loadMonth(key)
		})
		var days []*calendar.Day
		if err == nil {
			days = v.([]*calendar.Day)
		}
		m.settle(key, days, err)
	}()
}

// loadMonth is the load+merge pipeline for one month: generate base
// days, fetch exceptions, merge. Pure except for the store fetch.
func (m *Manager) loadMonth(key calendar.MonthKey) ([]*calendar.Day, error) {
	base := m.gen.GenerateMonth(key)
	m.notifyProgress(key, 40)

	first := key.Time()
	last := first.AddDate(0, 1, -1)
	excs, err := m.store.ExceptionsFor(m.ctx, first, last, m.userID)
	if err != nil {
		return nil, fmt.Errorf("fetch exceptions for %s: %w", key, err)
	}
	m.notifyProgress(key, 70)

	return m.engine.Merge(base, excs, m.team), nil
}

// settle records a load result and publishes the transition.
func (m *Manager) settle(key calendar.MonthKey, days []*calendar.Day, err error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	e, ok := m.entries[key]
	if !ok {
		m.mu.Unlock()
		return
	}
	if err != nil {
		e.state = StateError
		e.err = err
		e.days = nil
		atomic.AddInt64(&m.loadErrors, 1)
	} else {
		e.state = StateLoaded
		e.days = days
		e.err = nil
		atomic.AddInt64(&m.loads, 1)
	}
	seq := m.stampLocked(e)
	m.touchLocked(e)
	m.evictLocked()
	m.mu.Unlock()

	if err != nil {
		m.log.Warn("month load failed", zap.Stringer("month", key), zap.Error(err))
		m.publishState(e, seq, StateError, nil)
		return
	}
	m.publishState(e, seq, StateLoaded, days)
}

// stampLocked assigns the next transition sequence number to an entry.
// Caller holds mu.
func (m *Manager) stampLocked(e *entry) uint64 {
	m.seq++
	e.seq = m.seq
	return e.seq
}

// publishState delivers one state transition to subscribers, keeping
// per-key callback order equal to transition order. The key's publish
// lock serializes publishers; a transition superseded while waiting
// (its seq is no longer the entry's latest) is dropped, since the
// newer publisher follows with current data. An evicted entry still
// delivers its final transition.
func (m *Manager) publishState(e *entry, seq uint64, state DataState, days []*calendar.Day) {
	m.mu.Lock()
	lk, ok := m.pubLocks[e.key]
	if !ok {
		lk = &sync.Mutex{}
		m.pubLocks[e.key] = lk
	}
	m.mu.Unlock()

	lk.Lock()
	defer lk.Unlock()

	m.mu.Lock()
	stale := e.seq != seq
	m.mu.Unlock()
	if stale {
		return
	}
	m.notifyState(e.key, state, days)
}

// touchLocked refreshes LRU position. Caller holds mu.
func (m *Manager) touchLocked(e *entry) {
	e.lastAccess = time.Now()
	m.lru.MoveToFront(e.lruElem)
}

// evictLocked enforces capacity: least-recently-used first, never a
// pinned month, never an entry with a load in flight. Caller holds mu.
func (m *Manager) evictLocked() {
	for len(m.entries) > m.opts.Capacity {
		victim := m.victimLocked()
		if victim == nil {
			return // everything left is pinned or loading
		}
		m.lru.Remove(victim.lruElem)
		delete(m.entries, victim.key)
		atomic.AddInt64(&m.evictions, 1)
		m.log.Debug("evicted month", zap.Stringer("month", victim.key))
	}
}

func (m *Manager) victimLocked() *entry {
	for el := m.lru.Back(); el != nil; el = el.Prev() {
		key := el.Value.(calendar.MonthKey)
		if _, pinned := m.pinned[key]; pinned {
			continue
		}
		e := m.entries[key]
		if e.state == StateLoading {
			continue
		}
		return e
	}
	return nil
}

// subscribers snapshots the callback list so notifications run outside
// the manager lock.
func (m *Manager) subscribers() []Callback {
	m.mu.Lock()
	defer m.mu.Unlock()
	cbs := make([]Callback, 0, len(m.subs))
	for _, cb := range m.subs {
		cbs = append(cbs, cb)
	}
	return cbs
}

func (m *Manager) notifyState(key calendar.MonthKey, state DataState, days []*calendar.Day) {
	for _, cb := range m.subscribers() {
		cb.OnDataStateChanged(key, state, days)
	}
}

func (m *Manager) notifyProgress(key calendar.MonthKey, percent int) {
	for _, cb := range m.subscribers() {
		cb.OnLoadingProgress(key, percent)
	}
}
