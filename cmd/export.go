package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/agentic-research/rota/internal/calendar"
	"github.com/agentic-research/rota/internal/merge"
	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var exportOut string

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file (stdout if empty)")
}

var exportCmd = &cobra.Command{
	Use:   "export [from] [to]",
	Short: "Export a merged month range as JSON (e.g. rota export 2025-01 2025-06)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := calendar.ParseMonthKey(args[0])
		if err != nil {
			return err
		}
		to := from
		if len(args) == 2 {
			if to, err = calendar.ParseMonthKey(args[1]); err != nil {
				return err
			}
		}
		if to.Before(from) {
			return fmt.Errorf("range end %s precedes start %s", to, from)
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

		// Synchronous batch path: the export has no viewport to hide
		// latency behind, so it bypasses the cache entirely.
		engine := merge.NewEngine(logger)
		ctx := cmd.Context()

		base := make(map[calendar.MonthKey][]*calendar.Day)
		excs := make(map[calendar.MonthKey][]calendar.Exception)
		var keys []calendar.MonthKey
		for key := from; !to.Before(key); key = key.Next() {
			base[key] = gen.GenerateMonth(key)
			first := key.Time()
			monthExcs, err := st.ExceptionsFor(ctx, first, first.AddDate(0, 1, -1), userID)
			if err != nil {
				return fmt.Errorf("fetch exceptions for %s: %w", key, err)
			}
			excs[key] = monthExcs
			keys = append(keys, key)
		}

		merged, err := engine.BatchMergeMonths(ctx, base, excs, teamName)
		if err != nil {
			return err
		}

		doc := map[string]any{
			"team":   teamName,
			"user":   userID,
			"from":   from.String(),
			"to":     to.String(),
			"months": make([]any, 0, len(keys)),
		}
		for _, key := range keys {
			doc["months"] = append(doc["months"].([]any), renderMonth(key, merged[key]))
		}

		text := oj.JSON(doc, 2)
		if exportOut == "" {
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		}
		if err := os.WriteFile(exportOut, []byte(text+"\n"), 0o644); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
		logger.Info("export written", zap.String("path", exportOut), zap.Int("months", len(keys)))
		return nil
	},
}

func renderMonth(key calendar.MonthKey, days []*calendar.Day) map[string]any {
	rendered := make([]any, 0, len(days))
	for _, day := range days {
		shifts := make([]any, 0, len(day.Shifts))
		for _, sh := range day.Shifts {
			shifts = append(shifts, map[string]any{
				"name":  sh.Name,
				"start": sh.Start,
				"end":   sh.End,
				"teams": toAny(sh.Teams.Names()),
			})
		}
		rendered = append(rendered, map[string]any{
			"date":     day.Date().Format(time.DateOnly),
			"shifts":   shifts,
			"off_work": toAny(day.OffWork.Names()),
		})
	}
	return map[string]any{"month": key.String(), "days": rendered}
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
