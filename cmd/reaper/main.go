// Command reaper finds code that no entry point can reach.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

var (
	version = "dev"
	commit  = "none"    //nolint:unused // set via ldflags at build time
	date    = "unknown" //nolint:unused // set via ldflags at build time
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newApp().RunContext(ctx, os.Args)
	stop()
	os.Exit(exitStatus(err))
}

// exitStatus reports err on stderr and returns the process exit code.
// cli.Exit errors carry their own code and may have an empty message.
func exitStatus(err error) int {
	if err == nil {
		return 0
	}
	code := 1
	var coder cli.ExitCoder
	if errors.As(err, &coder) {
		code = coder.ExitCode()
	}
	if msg := err.Error(); msg != "" {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	return code
}

func newApp() *cli.App {
	return &cli.App{
		Name:     "reaper",
		Usage:    "Reachability-based dead code detection",
		Version:  version,
		Metadata: make(map[string]any),
		// Exit codes are applied in main.
		ExitErrHandler: func(*cli.Context, error) {},
		Description: `Reaper builds a call graph of a Rust or Go tree, finds the program entry
points and reports every symbol no entry point can reach, grouped into chains
that can be removed together.

Supports: Rust, Go, and pre-extracted *.facts.json / *.facts.yaml files`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file (TOML, YAML, or JSON)",
				EnvVars: []string{"REAPER_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: text, json, markdown, toon (default from config, else text)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write output to file",
			},
			&cli.BoolFlag{
				Name:  "no-cache",
				Usage: "Disable the parsed unit cache",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging and resolution diagnostics",
			},
			&cli.StringFlag{
				Name:  "pprof",
				Usage: "Enable pprof profiling and write to specified prefix (creates <prefix>.cpu.pprof and <prefix>.mem.pprof)",
			},
		},
		Before: beforeRun,
		After:  afterRun,
		Commands: []*cli.Command{
			analyzeCmd(),
			explainCmd(),
			watchCmd(),
			configCmd(),
			mcpCmd(),
		},
	}
}
