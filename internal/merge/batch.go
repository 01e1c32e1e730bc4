package merge

import (
	"context"
	"runtime"
	"sync"

	"github.com/agentic-research/rota/internal/calendar"
	"golang.org/x/sync/errgroup"
)

// BatchMergeMonths runs the single-month merge independently over a
// keyed collection. Months share no mutable state, so they are merged
// in parallel with bounded concurrency. A month missing from the
// exception map merges against an empty exception list.
func (e *Engine) BatchMergeMonths(ctx context.Context, base map[calendar.MonthKey][]*calendar.Day, exceptions map[calendar.MonthKey][]calendar.Exception, team string) (map[calendar.MonthKey][]*calendar.Day, error) {
	var (
		mu  sync.Mutex
		out = make(map[calendar.MonthKey][]*calendar.Day, len(base))
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for key, days := range base {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			merged := e.Merge(days, exceptions[key], team)
			mu.Lock()
			out[key] = merged
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
