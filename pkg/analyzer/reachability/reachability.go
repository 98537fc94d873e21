// Package reachability computes the set of symbols reachable from a root set
// over a call graph, promoting conditional roots until a fixed point.
package reachability

import (
	"context"
	"log/slog"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/sourcegraph/conc/pool"

	"github.com/panbanda/reaper/pkg/analyzer/entry"
	"github.com/panbanda/reaper/pkg/callgraph"
)

// frontierChunk is the number of frontier nodes expanded per pool task.
const frontierChunk = 256

// Engine runs the traversal.
type Engine struct {
	workers int
	logger  *slog.Logger
}

// Option is a functional option for configuring Engine.
type Option func(*Engine)

// WithWorkers expands each BFS level with n goroutines when n > 1.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an engine. The default traversal is sequential.
func New(opts ...Option) *Engine {
	e := &Engine{
		workers: 1,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// indexedRoots is a RootSet translated to graph node indices.
type indexedRoots struct {
	roots       []int
	conditional [][2]int // global, initializer
	excluded    *roaring.Bitmap
}

// Run computes the reachable closure of roots over g. Root identities absent
// from the graph fail with *callgraph.GraphIntegrityError.
func (e *Engine) Run(ctx context.Context, g *callgraph.Graph, roots *entry.RootSet) (*Result, error) {
	ir, err := index(g, roots)
	if err != nil {
		return nil, err
	}

	reachable, promoted, order, passes, err := e.fixedPoint(ctx, g, ir, false)
	if err != nil {
		return nil, err
	}
	firm, _, _, _, err := e.fixedPoint(ctx, g, ir, true)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Reachable:   reachable,
		Firm:        firm,
		Provisional: roaring.AndNot(reachable, firm),
		Roots:       append(slices.Clone(ir.roots), order...),
		Promoted:    promoted,
		Passes:      passes,
		initial:     ir.roots,
		order:       order,
		excluded:    ir.excluded,
	}

	e.logger.Debug("reachability computed",
		"nodes", g.NumNodes(),
		"reachable", res.Count(),
		"provisional", res.Provisional.GetCardinality(),
		"promoted", len(order),
		"passes", passes)
	return res, nil
}

// fixedPoint traverses from the roots, then promotes initializers of reached
// globals and resumes until a pass promotes nothing.
func (e *Engine) fixedPoint(ctx context.Context, g *callgraph.Graph, ir *indexedRoots, firm bool) (*roaring.Bitmap, map[int]int, []int, int, error) {
	visited := NewBitSet()
	var frontier []int
	for _, r := range ir.roots {
		if visited.TestAndSet(uint32(r)) {
			frontier = append(frontier, r)
		}
	}

	promoted := make(map[int]int)
	var order []int
	passes := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, nil, 0, err
		}
		passes++
		e.traverse(g, visited, ir.excluded, frontier, firm)
		e.logger.Debug("reachability pass", "pass", passes, "firm", firm, "visited", visited.Count())

		frontier = frontier[:0]
		for _, c := range ir.conditional {
			global, initializer := c[0], c[1]
			if !visited.IsSet(uint32(global)) {
				continue
			}
			if visited.TestAndSet(uint32(initializer)) {
				promoted[initializer] = global
				order = append(order, initializer)
				frontier = append(frontier, initializer)
			}
		}
		if len(frontier) == 0 {
			break
		}
	}
	return visited.Snapshot(), promoted, order, passes, nil
}

// traverse marks everything reachable from frontier. Excluded nodes are never
// entered; approximate edges are skipped when firm is set.
func (e *Engine) traverse(g *callgraph.Graph, visited *BitSet, excluded *roaring.Bitmap, frontier []int, firm bool) {
	expand := func(node int, emit func(int)) {
		for _, ei := range g.Outgoing(node) {
			if firm && g.Edge(ei).Kind.Approximate() {
				continue
			}
			_, to := g.Endpoints(ei)
			if excluded.Contains(uint32(to)) {
				continue
			}
			if visited.TestAndSet(uint32(to)) {
				emit(to)
			}
		}
	}

	if e.workers <= 1 {
		queue := slices.Clone(frontier)
		for head := 0; head < len(queue); head++ {
			expand(queue[head], func(n int) { queue = append(queue, n) })
		}
		return
	}

	level := slices.Clone(frontier)
	for len(level) > 0 {
		chunks := (len(level) + frontierChunk - 1) / frontierChunk
		next := make([][]int, chunks)
		p := pool.New().WithMaxGoroutines(e.workers)
		for c := 0; c < chunks; c++ {
			lo := c * frontierChunk
			hi := min(lo+frontierChunk, len(level))
			p.Go(func() {
				var local []int
				for _, node := range level[lo:hi] {
					expand(node, func(n int) { local = append(local, n) })
				}
				next[c] = local
			})
		}
		p.Wait()

		level = level[:0]
		for _, part := range next {
			level = append(level, part...)
		}
		slices.Sort(level)
	}
}

func index(g *callgraph.Graph, roots *entry.RootSet) (*indexedRoots, error) {
	table := g.Table()
	lookup := func(id string) (int, error) {
		i, ok := table.Index(id)
		if !ok || i >= g.NumNodes() {
			return 0, &callgraph.GraphIntegrityError{Symbol: id}
		}
		return i, nil
	}

	ir := &indexedRoots{excluded: roaring.New()}
	for _, id := range roots.Excluded {
		i, err := lookup(id)
		if err != nil {
			return nil, err
		}
		ir.excluded.Add(uint32(i))
	}
	for _, id := range roots.Roots {
		i, err := lookup(id)
		if err != nil {
			return nil, err
		}
		ir.roots = append(ir.roots, i)
	}
	for _, c := range roots.Conditional {
		global, err := lookup(c.Global)
		if err != nil {
			return nil, err
		}
		initializer, err := lookup(c.Initializer)
		if err != nil {
			return nil, err
		}
		if ir.excluded.Contains(uint32(initializer)) {
			continue
		}
		ir.conditional = append(ir.conditional, [2]int{global, initializer})
	}
	return ir, nil
}
