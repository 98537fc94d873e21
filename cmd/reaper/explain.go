package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/reaper/internal/output"
)

func explainCmd() *cli.Command {
	return &cli.Command{
		Name:      "explain",
		Aliases:   []string{"why"},
		Usage:     "Explain why a symbol is live or dead",
		ArgsUsage: "<symbol> [dir]",
		Description: `Runs the analysis and shows, for one symbol, its status, a shortest call
path from a root, its resolved callers and callees, and references from its
body that could not be resolved.

The symbol may be a full id (src/main.rs::helper), a qualified path
(Circle::new) or a unique short name (helper).`,
		Flags:  analysisFlags(),
		Action: runExplainCmd,
	}
}

func runExplainCmd(c *cli.Context) error {
	if c.Args().Len() < 1 || c.Args().Len() > 2 {
		return fmt.Errorf("usage: reaper explain <symbol> [dir]")
	}
	query := c.Args().Get(0)
	dir := "."
	if c.Args().Len() == 2 {
		dir = c.Args().Get(1)
	}

	res, cfg, err := runAnalysis(c, dir)
	if err != nil {
		return err
	}
	exp, err := res.Explain(query)
	if err != nil {
		return err
	}

	formatter, err := newFormatter(c, cfg)
	if err != nil {
		return err
	}
	defer formatter.Close()
	return formatter.Output(output.NewExplanation(exp))
}
