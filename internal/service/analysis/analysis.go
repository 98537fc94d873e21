// Package analysis runs the reachability pipeline over a source tree: scan,
// extract units, resolve edges, classify roots, traverse and report.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/panbanda/reaper/internal/cache"
	"github.com/panbanda/reaper/internal/fileproc"
	"github.com/panbanda/reaper/internal/progress"
	"github.com/panbanda/reaper/internal/scanner"
	"github.com/panbanda/reaper/pkg/analyzer/deadcode"
	"github.com/panbanda/reaper/pkg/analyzer/edges"
	"github.com/panbanda/reaper/pkg/analyzer/entry"
	"github.com/panbanda/reaper/pkg/analyzer/reachability"
	"github.com/panbanda/reaper/pkg/callgraph"
	"github.com/panbanda/reaper/pkg/config"
	"github.com/panbanda/reaper/pkg/frontend/facts"
	"github.com/panbanda/reaper/pkg/frontend/treesitter"
	"github.com/panbanda/reaper/pkg/parser"
	"github.com/panbanda/reaper/pkg/symtab"
)

// ErrNoSources is returned when a tree holds no file any front-end handles.
var ErrNoSources = errors.New("no analyzable source files found")

// Service orchestrates reachability analysis.
type Service struct {
	config   *config.Config
	logger   *slog.Logger
	progress io.Writer
	noCache  bool
}

// Option configures a Service.
type Option func(*Service)

// WithConfig sets the configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.config = cfg
		}
	}
}

// WithLogger sets the logger passed to every pipeline stage.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithProgress draws a parsing progress bar on w.
func WithProgress(w io.Writer) Option {
	return func(s *Service) {
		s.progress = w
	}
}

// WithoutCache disables the unit cache regardless of configuration.
func WithoutCache() Option {
	return func(s *Service) {
		s.noCache = true
	}
}

// New creates a new analysis service.
func New(opts ...Option) *Service {
	s := &Service{
		config: config.DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result holds every stage output of one run. It is immutable; re-running
// the pipeline is the only way to refresh it.
type Result struct {
	Root         string
	Files        int
	CacheHits    int
	Table        *symtab.Table
	Hints        symtab.Hints
	Edges        *edges.Result
	Roots        *entry.RootSet
	Reachability *reachability.Result
	Report       *deadcode.Report
	// FileErrors lists files that could not be read or parsed. They are
	// left out of the analysis.
	FileErrors *fileproc.ProcessingErrors
}

// Graph returns the resolved call graph.
func (r *Result) Graph() *callgraph.Graph {
	return r.Edges.Graph
}

// Analyze scans root and runs the pipeline over every source and facts file
// found. Fatal pipeline errors (duplicate symbols, no entry points, graph
// integrity) return no result.
func (s *Service) Analyze(ctx context.Context, root string) (*Result, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	files, err := scanner.NewScanner(s.config).ScanDir(absRoot)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	if files.Skipped > 0 {
		s.logger.Warn("files over size limit skipped", "count", files.Skipped, "max_file_size", s.config.Analysis.MaxFileSize)
	}
	if files.Len() == 0 {
		return nil, fmt.Errorf("%s: %w", root, ErrNoSources)
	}
	for lang, group := range scanner.GroupByLanguage(files.Sources) {
		s.logger.Debug("sources found", "language", lang, "files", len(group))
	}
	if len(files.Facts) > 0 {
		s.logger.Debug("facts files found", "files", len(files.Facts))
	}

	units, fileErrs, hits, err := s.loadUnits(ctx, absRoot, files)
	if err != nil {
		return nil, err
	}
	// Skipped files are returned in Result.FileErrors for the caller to report.
	if fileErrs.HasErrors() {
		for _, e := range fileErrs.Errors {
			s.logger.Debug("file skipped", "path", e.Path, "error", e.Err)
		}
	}

	res, err := s.Run(ctx, units...)
	if err != nil {
		return nil, err
	}
	res.Root = absRoot
	res.Files = len(units)
	res.CacheHits = hits
	res.FileErrors = fileErrs
	return res, nil
}

// Run executes the pipeline over already extracted units.
func (s *Service) Run(ctx context.Context, units ...symtab.Unit) (*Result, error) {
	cfg := s.config
	table, hints, err := symtab.Load(units...)
	if err != nil {
		return nil, err
	}

	built, err := edges.New(
		edges.WithWorkers(cfg.Analysis.Workers),
		edges.WithLogger(s.logger),
	).Build(ctx, table, hints)
	if err != nil {
		return nil, err
	}

	mode, err := entry.ParseMode(cfg.Analysis.Mode)
	if err != nil {
		return nil, err
	}
	roots, err := entry.New(
		entry.WithMode(mode),
		entry.WithIncludeTests(cfg.Analysis.IncludeTests),
		entry.WithNames(cfg.Entry.Names...),
		entry.WithPatterns(cfg.Entry.Patterns...),
		entry.WithIDs(cfg.Entry.IDs...),
		entry.WithLogger(s.logger),
	).Classify(table, hints)
	if err != nil {
		return nil, err
	}

	engineOpts := []reachability.Option{reachability.WithLogger(s.logger)}
	if cfg.Analysis.ParallelTraversal {
		workers := cfg.Analysis.Workers
		if workers <= 0 {
			workers = 2
		}
		engineOpts = append(engineOpts, reachability.WithWorkers(workers))
	}
	reach, err := reachability.New(engineOpts...).Run(ctx, built.Graph, roots)
	if err != nil {
		return nil, err
	}

	report, err := deadcode.New(
		deadcode.WithThresholds(deadcode.ConfidenceThresholds{
			HighThreshold:   cfg.Thresholds.ConfidenceHigh,
			MediumThreshold: cfg.Thresholds.ConfidenceMedium,
		}),
		deadcode.WithLogger(s.logger),
	).Report(deadcode.Input{
		Graph:        built.Graph,
		Roots:        roots,
		Reachability: reach,
		Edges:        built,
		Hints:        hints,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("analysis complete",
		"symbols", table.Len(),
		"edges", built.Graph.NumEdges(),
		"roots", len(roots.Roots),
		"dead", report.Summary.DeadSymbols)
	return &Result{
		Files:        len(units),
		Table:        table,
		Hints:        hints,
		Edges:        built,
		Roots:        roots,
		Reachability: reach,
		Report:       report,
	}, nil
}

// loadUnits extracts a unit per file, in parallel, through the cache.
func (s *Service) loadUnits(ctx context.Context, root string, files *scanner.Result) ([]symtab.Unit, *fileproc.ProcessingErrors, int, error) {
	c, err := s.openCache(root)
	if err != nil {
		s.logger.Warn("cache disabled", "error", err)
		c, _ = cache.New("", 0, false)
	}

	fe := treesitter.New(treesitter.WithRoot(root))
	workers := s.config.Analysis.Workers
	tracker := progress.NewTracker(s.progress, "Parsing", files.Len())
	var hits atomic.Int64

	units, errs := fileproc.MapFilesN(ctx, files.Sources, workers, func(psr *parser.Parser, path string) (symtab.Unit, error) {
		source, err := os.ReadFile(path)
		if err != nil {
			return symtab.Unit{}, err
		}
		rel := fe.RelPath(path)
		hash := cache.ContentHash(rel, source)
		if unit, ok := c.Get(rel, hash); ok {
			hits.Add(1)
			return unit, nil
		}
		unit, err := fe.ParseSource(ctx, psr, rel, source)
		if err != nil {
			return symtab.Unit{}, err
		}
		if err := c.Put(rel, hash, unit); err != nil {
			s.logger.Debug("cache write failed", "path", rel, "error", err)
		}
		return unit, nil
	}, tracker.Tick)

	if len(files.Facts) > 0 {
		loader, err := facts.NewLoader()
		if err != nil {
			tracker.FinishError(err)
			return nil, nil, 0, err
		}
		factUnits, factErrs := fileproc.ForEachFileN(ctx, files.Facts, workers, func(path string) (symtab.Unit, error) {
			data, err := os.ReadFile(path)
			if err != nil {
				return symtab.Unit{}, err
			}
			return loader.Decode(fe.RelPath(path), data)
		}, tracker.Tick)
		units = append(units, factUnits...)
		errs = mergeErrors(errs, factErrs)
	}
	if err := ctx.Err(); err != nil {
		tracker.FinishError(err)
		return nil, nil, 0, err
	}
	tracker.FinishSuccess()
	s.logger.Debug("units loaded", "units", len(units), "cache_hits", hits.Load())
	return units, errs, int(hits.Load()), nil
}

func (s *Service) openCache(root string) (*cache.Cache, error) {
	cc := s.config.Cache
	if s.noCache || !cc.Enabled {
		return cache.New("", 0, false)
	}
	dir := cc.Dir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	return cache.New(dir, cc.TTLDuration(), true)
}

func mergeErrors(a, b *fileproc.ProcessingErrors) *fileproc.ProcessingErrors {
	if !b.HasErrors() {
		return a
	}
	if a == nil {
		return b
	}
	for _, e := range b.Errors {
		a.Add(e.Path, e.Err)
	}
	return a
}
