package main

import (
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/reaper/internal/mcpserver"
)

func mcpCmd() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Start MCP (Model Context Protocol) server for LLM tool integration",
		Description: `Starts an MCP server over stdio transport that exposes reaper's analysis
as tools that LLMs can invoke.

To use with Claude Desktop, add to your config:
  {
    "mcpServers": {
      "reaper": {
        "command": "reaper",
        "args": ["mcp"]
      }
    }
  }

Available tools:
  - analyze_reachability  Dead code grouped by unreachable root
  - explain_symbol        Why one symbol is live or dead

Without --config, each tool call loads the configuration of the directory it analyzes.`,
		Subcommands: []*cli.Command{
			{
				Name:   "manifest",
				Usage:  "Print the MCP registry manifest (server.json)",
				Action: runMCPManifestCmd,
			},
		},
		Action: runMCPCmd,
	}
}

func runMCPCmd(c *cli.Context) error {
	opts := []mcpserver.Option{mcpserver.WithLogger(slog.Default())}
	if path := c.String("config"); path != "" {
		cfg, _, err := loadConfig(c, ".")
		if err != nil {
			return err
		}
		opts = append(opts, mcpserver.WithConfig(cfg))
		slog.Debug("mcp config loaded", "path", path)
	}
	return mcpserver.NewServer(version, opts...).Run(c.Context)
}

func runMCPManifestCmd(c *cli.Context) error {
	data, err := mcpserver.GenerateManifest(version)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, string(data))
	return err
}
