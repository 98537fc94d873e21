package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/reaper/internal/output"
	"github.com/panbanda/reaper/internal/service/analysis"
	"github.com/panbanda/reaper/pkg/config"
)

// getPath returns the directory argument, defaulting to ".".
func getPath(c *cli.Context) (string, error) {
	switch c.Args().Len() {
	case 0:
		return ".", nil
	case 1:
		return c.Args().First(), nil
	default:
		return "", fmt.Errorf("expected one directory, got %d arguments", c.Args().Len())
	}
}

// loadConfig loads --config when given, else the standard config under dir.
// It returns the file the configuration came from, "" for defaults.
func loadConfig(c *cli.Context, dir string) (*config.Config, string, error) {
	if path := c.String("config"); path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, path, err
		}
		return cfg, path, nil
	}
	return config.LoadOrDefault(dir)
}

// analysisFlags are shared by the commands that run the pipeline.
func analysisFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "mode",
			Aliases: []string{"m"},
			Usage:   "Entry mode: binary or library (library roots every public symbol)",
		},
		&cli.BoolFlag{
			Name:  "include-tests",
			Usage: "Treat tests as roots and report unused test helpers",
		},
		&cli.StringSliceFlag{
			Name:    "entry",
			Aliases: []string{"e"},
			Usage:   "Additional root by name, qualified path or glob (repeatable)",
		},
		&cli.IntFlag{
			Name:  "workers",
			Usage: "Worker goroutines for parsing and resolution (0 = 2x CPUs)",
		},
		&cli.BoolFlag{
			Name:  "parallel",
			Usage: "Traverse the call graph with a parallel frontier",
		},
	}
}

// applyFlags overrides cfg with the flags the user set and validates the result.
func applyFlags(c *cli.Context, cfg *config.Config) error {
	if c.IsSet("mode") {
		cfg.Analysis.Mode = c.String("mode")
	}
	if c.IsSet("include-tests") {
		cfg.Analysis.IncludeTests = c.Bool("include-tests")
	}
	if entries := c.StringSlice("entry"); len(entries) > 0 {
		cfg.Entry.Patterns = append(cfg.Entry.Patterns, entries...)
	}
	if c.IsSet("workers") {
		cfg.Analysis.Workers = c.Int("workers")
	}
	if c.IsSet("parallel") {
		cfg.Analysis.ParallelTraversal = c.Bool("parallel")
	}
	if c.IsSet("format") {
		cfg.Output.Format = c.String("format")
	}
	if c.Bool("verbose") {
		cfg.Output.Verbose = true
	}
	return cfg.Validate()
}

// runAnalysis loads configuration for dir and runs the pipeline over it.
func runAnalysis(c *cli.Context, dir string) (*analysis.Result, *config.Config, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, nil, err
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("%s is not a directory", dir)
	}

	cfg, _, err := loadConfig(c, dir)
	if err != nil {
		return nil, nil, err
	}
	if err := applyFlags(c, cfg); err != nil {
		return nil, nil, err
	}

	opts := []analysis.Option{analysis.WithConfig(cfg)}
	if c.Bool("no-cache") {
		opts = append(opts, analysis.WithoutCache())
	}
	if c.String("output") != "" || cfg.Output.Format == string(output.FormatText) {
		opts = append(opts, analysis.WithProgress(c.App.ErrWriter))
	}
	res, err := analysis.New(opts...).Analyze(c.Context, dir)
	if err != nil {
		return nil, cfg, err
	}
	if res.FileErrors.HasErrors() {
		notes := output.NewWriterFormatter(output.FormatText, c.App.ErrWriter, cfg.Output.Color)
		for _, e := range res.FileErrors.Errors {
			notes.Warning("skipped %s: %v", e.Path, e.Err)
		}
	}
	return res, cfg, nil
}

// newFormatter builds the formatter for the configured format and --output.
func newFormatter(c *cli.Context, cfg *config.Config) (*output.Formatter, error) {
	format, err := output.ParseFormat(cfg.Output.Format)
	if err != nil {
		return nil, err
	}
	if c.String("output") == "" {
		return output.NewWriterFormatter(format, c.App.Writer, cfg.Output.Color), nil
	}
	return output.NewFormatter(format, c.String("output"), cfg.Output.Color)
}
