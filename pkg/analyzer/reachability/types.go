package reachability

import (
	"errors"
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/panbanda/reaper/pkg/callgraph"
	"github.com/panbanda/reaper/pkg/symtab"
)

// ErrUnreachable is returned by Result.Path for symbols outside the closure.
var ErrUnreachable = errors.New("symbol is not reachable")

// Result is the reachable closure of a root set.
type Result struct {
	// Reachable holds the indices of every reachable symbol, roots included.
	Reachable *roaring.Bitmap
	// Firm holds symbols reachable without dispatch-approximate edges.
	Firm *roaring.Bitmap
	// Provisional is Reachable minus Firm.
	Provisional *roaring.Bitmap
	// Roots are the unconditional roots followed by promoted initializers.
	Roots []int
	// Promoted maps each promoted initializer to the global that enabled it.
	Promoted map[int]int
	// Passes is the number of traversal passes until the fixed point.
	Passes int

	initial  []int
	order    []int // promoted initializers in promotion order
	excluded *roaring.Bitmap

	parentsOnce sync.Once
	parents     []int
}

// IsReachable reports whether the symbol at index i is reachable.
func (r *Result) IsReachable(i int) bool {
	return r.Reachable.Contains(uint32(i))
}

// IsProvisional reports whether i is reachable only through approximate edges.
func (r *Result) IsProvisional(i int) bool {
	return r.Provisional.Contains(uint32(i))
}

// Count returns the number of reachable symbols.
func (r *Result) Count() int {
	return int(r.Reachable.GetCardinality())
}

// Path returns a shortest chain of symbol IDs from a root to id. For symbols
// reached through a promoted initializer the chain starts at the root that
// made its global live.
func (r *Result) Path(g *callgraph.Graph, id string) ([]string, error) {
	idx, ok := g.Table().Index(id)
	if !ok {
		return nil, fmt.Errorf("path to %q: %w", id, symtab.ErrNotFound)
	}
	if !r.IsReachable(idx) {
		return nil, fmt.Errorf("path to %q: %w", id, ErrUnreachable)
	}
	r.parentsOnce.Do(func() { r.parents = r.buildParents(g) })

	var chain []int
	for cur := idx; ; {
		chain = append(chain, cur)
		p := r.parents[cur]
		if p >= 0 {
			cur = p
			continue
		}
		global, promoted := r.Promoted[cur]
		if !promoted {
			break
		}
		// The global was reached in an earlier pass, so this terminates.
		cur = global
	}

	out := make([]string, len(chain))
	for i, n := range chain {
		out[len(chain)-1-i] = g.Table().At(n).ID
	}
	return out, nil
}

// buildParents replays the traversal pass by pass and records the first
// predecessor of every node. Roots have parent -1.
func (r *Result) buildParents(g *callgraph.Graph) []int {
	const unseen = -2
	parents := make([]int, g.NumNodes())
	for i := range parents {
		parents[i] = unseen
	}

	bfs := func(queue []int) {
		for head := 0; head < len(queue); head++ {
			cur := queue[head]
			for _, ei := range g.Outgoing(cur) {
				_, to := g.Endpoints(ei)
				if parents[to] != unseen || r.excluded.Contains(uint32(to)) {
					continue
				}
				parents[to] = cur
				queue = append(queue, to)
			}
		}
	}

	var queue []int
	for _, root := range r.initial {
		if parents[root] == unseen {
			parents[root] = -1
			queue = append(queue, root)
		}
	}
	bfs(queue)
	for _, p := range r.order {
		if parents[p] == unseen {
			parents[p] = -1
			bfs([]int{p})
		}
	}
	return parents
}
