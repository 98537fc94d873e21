// Package edges resolves recorded call sites into call graph edges, tagging
// each edge with how its target was determined.
package edges

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"

	"github.com/sourcegraph/conc/pool"

	"github.com/panbanda/reaper/pkg/callgraph"
	"github.com/panbanda/reaper/pkg/symtab"
)

// chunkSize is the number of symbols resolved per pool task.
const chunkSize = 64

// Builder resolves call sites against a symbol table.
type Builder struct {
	workers int
	logger  *slog.Logger
}

// Option is a functional option for configuring Builder.
type Option func(*Builder)

// WithWorkers sets the number of resolution workers.
func WithWorkers(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// New creates a new edge builder.
func New(opts ...Option) *Builder {
	b := &Builder{
		workers: runtime.NumCPU(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build resolves every call site in table. The table is only read. Edges are
// emitted in symbol insertion order, then call site order, whatever the
// number of workers. Unresolvable sites become diagnostics, not errors.
func (b *Builder) Build(ctx context.Context, table *symtab.Table, hints symtab.Hints) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	impls := append(slices.Clone(hints.Implementations), Structural(table, hints.Capabilities)...)
	r := &resolver{table: table, caps: NewCapabilityIndex(impls)}
	n := table.Len()
	batches := make([]batch, n)

	p := pool.New().WithMaxGoroutines(b.workers)
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		p.Go(func() {
			for i := start; i < end; i++ {
				batches[i] = r.resolveSymbol(i)
			}
		})
	}
	p.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{}
	var edges []callgraph.Edge
	for i := range batches {
		bt := &batches[i]
		edges = append(edges, bt.edges...)
		res.Diagnostics = append(res.Diagnostics, bt.diagnostics...)
		res.Unresolved += bt.unresolved
		res.Ambiguous += bt.ambiguous
	}
	for _, e := range edges {
		if e.Kind.Approximate() {
			res.ApproximateEdges++
		}
	}

	g, err := callgraph.New(table, edges)
	if err != nil {
		return nil, fmt.Errorf("build call graph: %w", err)
	}
	res.Graph = g

	b.logger.Debug("call graph built",
		"symbols", n,
		"edges", g.NumEdges(),
		"unresolved", res.Unresolved,
		"ambiguous", res.Ambiguous,
		"approximate", res.ApproximateEdges)
	return res, nil
}
