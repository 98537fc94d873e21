// Package callgraph is the resolved, directed call graph the reachability
// engine walks. Nodes are the symbols of a symtab.Table addressed by their
// dense insertion index; edges keep their insertion order.
package callgraph

import (
	"github.com/panbanda/reaper/pkg/symtab"
)

// Graph is immutable once built.
type Graph struct {
	table *symtab.Table
	edges []Edge
	from  []int // edge index -> source symbol index
	to    []int // edge index -> target symbol index
	out   [][]int
	in    [][]int
}

// New builds a graph over table. Every edge endpoint must be registered,
// otherwise *GraphIntegrityError is returned.
func New(table *symtab.Table, edges []Edge) (*Graph, error) {
	n := table.Len()
	g := &Graph{
		table: table,
		edges: make([]Edge, 0, len(edges)),
		from:  make([]int, 0, len(edges)),
		to:    make([]int, 0, len(edges)),
		out:   make([][]int, n),
		in:    make([][]int, n),
	}
	for i := range edges {
		e := edges[i]
		src, ok := table.Index(e.From)
		if !ok {
			return nil, &GraphIntegrityError{Edge: &e, Symbol: e.From}
		}
		dst, ok := table.Index(e.To)
		if !ok {
			return nil, &GraphIntegrityError{Edge: &e, Symbol: e.To}
		}
		idx := len(g.edges)
		g.edges = append(g.edges, e)
		g.from = append(g.from, src)
		g.to = append(g.to, dst)
		g.out[src] = append(g.out[src], idx)
		g.in[dst] = append(g.in[dst], idx)
	}
	return g, nil
}

// Table returns the symbol table the graph is built over.
func (g *Graph) Table() *symtab.Table {
	return g.table
}

// NumNodes returns the number of symbols.
func (g *Graph) NumNodes() int {
	return len(g.out)
}

// NumEdges returns the number of edges.
func (g *Graph) NumEdges() int {
	return len(g.edges)
}

// Edges returns all edges in insertion order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Edge returns the edge at index i.
func (g *Graph) Edge(i int) Edge {
	return g.edges[i]
}

// Endpoints returns the source and target symbol indices of edge i.
func (g *Graph) Endpoints(i int) (from, to int) {
	return g.from[i], g.to[i]
}

// Outgoing returns the indices of edges leaving node, in insertion order.
func (g *Graph) Outgoing(node int) []int {
	return g.out[node]
}

// Incoming returns the indices of edges entering node, in insertion order.
func (g *Graph) Incoming(node int) []int {
	return g.in[node]
}

// CountByKind returns the number of edges per resolution kind.
func (g *Graph) CountByKind() map[Resolution]int {
	counts := make(map[Resolution]int, len(Resolutions))
	for _, e := range g.edges {
		counts[e.Kind]++
	}
	return counts
}
