package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/reaper/internal/service/analysis"
	"github.com/panbanda/reaper/pkg/analyzer/deadcode"
	"github.com/panbanda/reaper/pkg/watch"
)

func watchCmd() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Re-run dead code analysis whenever sources change",
		ArgsUsage: "[dir]",
		Description: `Runs the analysis once, then again after each burst of edits, printing
which symbols became dead and which were revived. Unchanged files are served
from the cache.`,
		Flags: append(analysisFlags(),
			&cli.DurationFlag{
				Name:  "debounce",
				Value: watch.DefaultDebounce,
				Usage: "Quiet period before re-analyzing",
			},
		),
		Action: runWatchCmd,
	}
}

func runWatchCmd(c *cli.Context) error {
	dir, err := getPath(c)
	if err != nil {
		return err
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	res, cfg, err := runAnalysis(c, absDir)
	if err != nil {
		return err
	}
	prev := deadFindings(res)
	printWatchDiff(c.App.Writer, nil, prev, res.Report.Summary)

	w, err := watch.NewWatcher(absDir, cfg, c.Duration("debounce"), c.App.ErrWriter)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Stop()

	w.SetCallback(func([]string) {
		res, _, err := runAnalysis(c, absDir)
		if err != nil {
			color.New(color.FgRed).Fprintf(c.App.ErrWriter, "analysis failed: %v\n", err)
			return
		}
		next := deadFindings(res)
		printWatchDiff(c.App.Writer, prev, next, res.Report.Summary)
		prev = next
	})

	if err := w.Start(c.Context); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func deadFindings(res *analysis.Result) map[string]deadcode.Finding {
	out := make(map[string]deadcode.Finding)
	for _, f := range res.Report.Findings() {
		out[f.ID] = f
	}
	return out
}

// printWatchDiff prints the dead count and the findings that appeared or
// disappeared since the previous run.
func printWatchDiff(w io.Writer, prev, next map[string]deadcode.Finding, summary deadcode.Summary) {
	var added, removed []string
	for id := range next {
		if _, ok := prev[id]; !ok {
			added = append(added, id)
		}
	}
	for id := range prev {
		if _, ok := next[id]; !ok {
			removed = append(removed, id)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)

	fmt.Fprintf(w, "Dead: %d of %d symbols (+%d, -%d)\n",
		summary.DeadSymbols, summary.TotalSymbols, len(added), len(removed))
	red := color.New(color.FgRed)
	for _, id := range added {
		f := next[id]
		red.Fprintf(w, "  + %s (%s:%d)\n", id, f.File, f.Line)
	}
	green := color.New(color.FgGreen)
	for _, id := range removed {
		green.Fprintf(w, "  - %s\n", id)
	}
}
