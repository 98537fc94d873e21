package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

func configCmd() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration management commands",
		Subcommands: []*cli.Command{
			{
				Name:      "validate",
				Usage:     "Validate a configuration file",
				ArgsUsage: "[dir]",
				Description: `Validates a reaper configuration file for syntax errors and invalid values.

Examples:
  reaper config validate                    # Validates default config locations
  reaper -c reaper.toml config validate     # Validates specific file`,
				Action: runConfigValidate,
			},
			{
				Name:      "show",
				Usage:     "Show the effective configuration",
				ArgsUsage: "[dir]",
				Description: `Shows the configuration from defaults and config file as TOML.

Examples:
  reaper config show                  # Show effective config
  reaper -c reaper.toml config show   # Show config from specific file`,
				Action: runConfigShow,
			},
		},
	}
}

func runConfigValidate(c *cli.Context) error {
	dir, err := getPath(c)
	if err != nil {
		return err
	}
	_, source, err := loadConfig(c, dir)
	if err != nil {
		color.New(color.FgRed).Fprintln(c.App.Writer, "Configuration validation failed:")
		fmt.Fprintf(c.App.Writer, "  - %s\n", err)
		return cli.Exit("", 1)
	}

	if source != "" {
		color.New(color.FgGreen).Fprintf(c.App.Writer, "Configuration valid: %s\n", source)
	} else {
		color.New(color.FgYellow).Fprintln(c.App.Writer, "No config file found. Default configuration is valid.")
	}
	return nil
}

func runConfigShow(c *cli.Context) error {
	dir, err := getPath(c)
	if err != nil {
		return err
	}
	cfg, source, err := loadConfig(c, dir)
	if err != nil {
		return err
	}

	if source != "" {
		fmt.Fprintf(c.App.Writer, "# Configuration from: %s\n\n", source)
	} else {
		fmt.Fprintln(c.App.Writer, "# Default configuration (no config file found)")
	}

	content, err := cfg.TOML()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	fmt.Fprint(c.App.Writer, string(content))
	return nil
}
