package main

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/reaper/internal/logging"
)

const profileKey = "profile"

// profile is an active --pprof session.
type profile struct {
	prefix string
	cpu    *os.File
}

// startProfile begins CPU profiling to <prefix>.cpu.pprof.
func startProfile(prefix string) (*profile, error) {
	f, err := os.Create(prefix + ".cpu.pprof")
	if err != nil {
		return nil, fmt.Errorf("failed to create CPU profile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to start CPU profile: %w", err)
	}
	return &profile{prefix: prefix, cpu: f}, nil
}

// stop ends CPU profiling and writes a heap profile to <prefix>.mem.pprof.
func (p *profile) stop(w io.Writer) error {
	pprof.StopCPUProfile()
	if err := p.cpu.Close(); err != nil {
		return err
	}
	fmt.Fprintf(w, "CPU profile written to %s\n", p.cpu.Name())

	mem, err := os.Create(p.prefix + ".mem.pprof")
	if err != nil {
		return fmt.Errorf("failed to create memory profile: %w", err)
	}
	defer mem.Close()

	runtime.GC()
	if err := pprof.WriteHeapProfile(mem); err != nil {
		return fmt.Errorf("failed to write memory profile: %w", err)
	}
	fmt.Fprintf(w, "Memory profile written to %s\n", mem.Name())
	return nil
}

// beforeRun configures logging and starts --pprof profiling.
func beforeRun(c *cli.Context) error {
	logging.Setup(c.App.ErrWriter, c.Bool("verbose"))
	prefix := c.String("pprof")
	if prefix == "" {
		return nil
	}
	p, err := startProfile(prefix)
	if err != nil {
		return err
	}
	c.App.Metadata[profileKey] = p
	return nil
}

func afterRun(c *cli.Context) error {
	p, ok := c.App.Metadata[profileKey].(*profile)
	if !ok {
		return nil
	}
	delete(c.App.Metadata, profileKey)
	return p.stop(c.App.ErrWriter)
}
