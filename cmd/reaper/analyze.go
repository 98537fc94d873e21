package main

import (
	"github.com/urfave/cli/v2"

	"github.com/panbanda/reaper/internal/output"
	"github.com/panbanda/reaper/pkg/analyzer/deadcode"
)

func analyzeCmd() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Aliases:   []string{"deadcode", "dc"},
		Usage:     "Report symbols no entry point can reach",
		ArgsUsage: "[dir]",
		Description: `Scans dir (default: the current directory) for Rust, Go and facts files,
resolves the call graph, and reports dead code grouped by the unreachable root
that owns it. Symbols reached only through dynamic dispatch without a known
receiver are kept alive but marked provisional.

Examples:
  reaper analyze
  reaper analyze --mode library ./crates/core
  reaper analyze -e 'handle_*' -f json -o dead.json
  reaper analyze --type functions --sort confidence --limit 20`,
		Flags: append(analysisFlags(),
			&cli.StringFlag{
				Name:    "type",
				Aliases: []string{"t"},
				Usage:   "Only report dead functions or types (functions, types)",
			},
			&cli.Float64Flag{
				Name:    "min-confidence",
				Aliases: []string{"confidence"},
				Usage:   "Minimum confidence threshold (0.0-1.0)",
			},
			&cli.StringFlag{
				Name:  "sort",
				Value: string(deadcode.SortGroup),
				Usage: "Finding order: group (chain order) or confidence",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Usage:   "Maximum findings to show after sorting (0 = all)",
			},
			&cli.BoolFlag{
				Name:  "fail-on-dead",
				Usage: "Exit with status 2 when dead code is found (after filtering)",
			},
		),
		Action: runAnalyzeCmd,
	}
}

func runAnalyzeCmd(c *cli.Context) error {
	dir, err := getPath(c)
	if err != nil {
		return err
	}
	filter, err := findingFilter(c)
	if err != nil {
		return err
	}
	res, cfg, err := runAnalysis(c, dir)
	if err != nil {
		return err
	}

	formatter, err := newFormatter(c, cfg)
	if err != nil {
		return err
	}
	defer formatter.Close()

	if err := formatter.Output(output.NewDeadCode(res.Report, cfg.Output.Verbose).WithFilter(filter)); err != nil {
		return err
	}
	if c.String("output") != "" {
		output.NewWriterFormatter(output.FormatText, c.App.ErrWriter, cfg.Output.Color).
			Success("Report written to %s", c.String("output"))
	}

	if c.Bool("fail-on-dead") && len(res.Report.Apply(filter).Findings()) > 0 {
		return cli.Exit("", 2)
	}
	return nil
}

// findingFilter reads the result filter flags.
func findingFilter(c *cli.Context) (deadcode.Filter, error) {
	kind, err := deadcode.ParseFindingKind(c.String("type"))
	if err != nil {
		return deadcode.Filter{}, err
	}
	order, err := deadcode.ParseSortOrder(c.String("sort"))
	if err != nil {
		return deadcode.Filter{}, err
	}
	filter := deadcode.Filter{
		Kind:          kind,
		MinConfidence: c.Float64("min-confidence"),
		Sort:          order,
		Limit:         c.Int("limit"),
	}
	return filter, filter.Validate()
}
