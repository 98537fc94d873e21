package analysis

import (
	"fmt"
	"strings"

	"github.com/panbanda/reaper/pkg/analyzer/deadcode"
	"github.com/panbanda/reaper/pkg/symtab"
)

// Status summarises a symbol's standing in a run.
type Status string

const (
	StatusRoot        Status = "root"
	StatusLive        Status = "live"
	StatusProvisional Status = "provisional"
	StatusDead        Status = "dead"
	StatusTestOnly    Status = "test-only"
)

// Reference is one resolved edge endpoint seen from the explained symbol.
type Reference struct {
	ID   string `json:"id" toon:"id"`
	Kind string `json:"kind" toon:"kind"`
	Site string `json:"site,omitempty" toon:"site,omitempty"`
}

// Explanation tells why a symbol is live or dead.
type Explanation struct {
	ID         string            `json:"id" toon:"id"`
	Name       string            `json:"name" toon:"name"`
	Kind       symtab.Kind       `json:"kind" toon:"kind"`
	Visibility symtab.Visibility `json:"visibility" toon:"visibility"`
	Location   string            `json:"location" toon:"location"`
	Status     Status            `json:"status" toon:"status"`
	RootReason string            `json:"root_reason,omitempty" toon:"root_reason,omitempty"`
	// Path is a shortest chain from a root to the symbol.
	Path       []string          `json:"path,omitempty" toon:"path,omitempty"`
	Callers    []Reference       `json:"callers,omitempty" toon:"callers,omitempty"`
	Callees    []Reference       `json:"callees,omitempty" toon:"callees,omitempty"`
	Finding    *deadcode.Finding `json:"finding,omitempty" toon:"finding,omitempty"`
	Unresolved []string          `json:"unresolved,omitempty" toon:"unresolved,omitempty"`
}

// AmbiguousSymbolError is returned when a query names several symbols.
type AmbiguousSymbolError struct {
	Query      string
	Candidates []string
}

func (e *AmbiguousSymbolError) Error() string {
	return fmt.Sprintf("%q matches %d symbols: %s", e.Query, len(e.Candidates), strings.Join(e.Candidates, ", "))
}

// Resolve finds the symbol a query names: an exact identity, a qualified
// path such as "Circle::new", or a unique short name.
func (r *Result) Resolve(query string) (int, error) {
	if i, ok := r.Table.Index(query); ok {
		return i, nil
	}
	matches := r.Table.ByPath(query)
	if len(matches) == 0 {
		matches = r.Table.ByName(query)
	}
	switch len(matches) {
	case 0:
		return 0, fmt.Errorf("%q: %w", query, symtab.ErrNotFound)
	case 1:
		return matches[0], nil
	}
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = r.Table.At(m).ID
	}
	return 0, &AmbiguousSymbolError{Query: query, Candidates: ids}
}

// Explain reports why the symbol named by query is live or dead.
func (r *Result) Explain(query string) (*Explanation, error) {
	idx, err := r.Resolve(query)
	if err != nil {
		return nil, err
	}
	sym := r.Table.At(idx)
	g := r.Graph()

	exp := &Explanation{
		ID:         sym.ID,
		Name:       sym.Name,
		Kind:       sym.Kind,
		Visibility: sym.Visibility,
		Location:   sym.Location.String(),
	}
	for _, e := range g.Incoming(idx) {
		edge := g.Edge(e)
		exp.Callers = append(exp.Callers, Reference{ID: edge.From, Kind: edge.Kind.String(), Site: edge.Site.String()})
	}
	for _, e := range g.Outgoing(idx) {
		edge := g.Edge(e)
		exp.Callees = append(exp.Callees, Reference{ID: edge.To, Kind: edge.Kind.String(), Site: edge.Site.String()})
	}
	for _, d := range r.Edges.Diagnostics {
		if d.Source == sym.ID {
			exp.Unresolved = append(exp.Unresolved, fmt.Sprintf("%s %s: %s", d.Ref, d.Name, d.Message))
		}
	}

	reach := r.Reachability
	switch {
	case reach.IsReachable(idx):
		exp.Status = StatusLive
		if reason, ok := r.Roots.Reason(sym.ID); ok {
			exp.Status = StatusRoot
			exp.RootReason = reason.String()
		} else if reach.IsProvisional(idx) {
			exp.Status = StatusProvisional
		}
		path, err := reach.Path(g, sym.ID)
		if err != nil {
			return nil, err
		}
		exp.Path = path
	case sym.TestOnly:
		exp.Status = StatusTestOnly
	default:
		exp.Status = StatusDead
		if f, ok := r.Report.Lookup(sym.ID); ok {
			exp.Finding = &f
		}
	}
	return exp, nil
}
