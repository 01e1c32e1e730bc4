package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/agentic-research/rota/internal/cache"
	"github.com/agentic-research/rota/internal/calendar"
	"github.com/agentic-research/rota/internal/merge"
	"github.com/spf13/cobra"
)

const showTimeout = 15 * time.Second

var showCmd = &cobra.Command{
	Use:   "show [month]",
	Short: "Render one merged month (e.g. rota show 2025-03)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := calendar.MonthKeyOf(time.Now())
		if len(args) == 1 {
			var err error
			if key, err = calendar.ParseMonthKey(args[0]); err != nil {
				return err
			}
		}

		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }() // safe to ignore

		gen, err := newGenerator(logger)
		if err != nil {
			return err
		}
		st, closeStore, err := openStore(logger)
		if err != nil {
			return err
		}
		defer closeStore()

		mgr := cache.NewManager(gen, st, merge.NewEngine(logger), teamName, userID, cache.DefaultOptions(), logger)
		defer mgr.Close()

		// Drive the manager the way a scrolling UI would: subscribe,
		// issue a stationary viewport request, wait for our month.
		wait := &monthWaiter{target: key, done: make(chan monthResult, 1)}
		unsubscribe := mgr.Subscribe(wait)
		defer unsubscribe()

		mgr.RequestViewportData(key, cache.Stationary, 0)

		select {
		case res := <-wait.done:
			if res.err != nil {
				return res.err
			}
			printMonth(cmd, key, res.days)
			return nil
		case <-time.After(showTimeout):
			return fmt.Errorf("timed out waiting for %s", key)
		}
	},
}

type monthResult struct {
	days []*calendar.Day
	err  error
}

// monthWaiter is a Callback that resolves once its target month settles.
type monthWaiter struct {
	target calendar.MonthKey
	done   chan monthResult
}

func (w *monthWaiter) OnDataStateChanged(month calendar.MonthKey, state cache.DataState, days []*calendar.Day) {
	if month != w.target {
		return
	}
	switch state {
	case cache.StateLoaded:
		select {
		case w.done <- monthResult{days: days}:
		default:
		}
	case cache.StateError:
		select {
		case w.done <- monthResult{err: fmt.Errorf("load failed for %s", month)}:
		default:
		}
	}
}

func (w *monthWaiter) OnLoadingProgress(calendar.MonthKey, int) {}

func printMonth(cmd *cobra.Command, key calendar.MonthKey, days []*calendar.Day) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (team %s, user %s)\n\n", key, teamName, userID)
	for _, day := range days {
		var parts []string
		for _, sh := range day.Shifts {
			teams := sh.Teams.Names()
			if len(teams) == 0 {
				continue
			}
			parts = append(parts, fmt.Sprintf("%s=%s", sh.Name, strings.Join(teams, ",")))
		}
		if day.OffWork.Len() > 0 {
			parts = append(parts, fmt.Sprintf("off=%s", strings.Join(day.OffWork.Names(), ",")))
		}
		fmt.Fprintf(out, "%s %s  %s\n",
			day.Date().Format("2006-01-02"),
			day.Date().Format("Mon"),
			strings.Join(parts, "  "))
	}
}
