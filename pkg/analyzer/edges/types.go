package edges

import (
	"fmt"
	"strings"

	"github.com/panbanda/reaper/pkg/callgraph"
	"github.com/panbanda/reaper/pkg/symtab"
)

// UnresolvedReferenceError reports a call site with no matching target. It
// is recoverable: the site contributes no edge and analysis continues.
type UnresolvedReferenceError struct {
	Site   symtab.CallSite
	Reason string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("unresolved %s reference %q from %s: %s", e.Site.Ref, e.Site.Name, e.Site.Source, e.Reason)
}

// DiagnosticKind classifies recoverable resolution problems.
type DiagnosticKind string

const (
	DiagnosticUnresolved DiagnosticKind = "unresolved"
	DiagnosticAmbiguous  DiagnosticKind = "ambiguous"
)

// Diagnostic is a recoverable resolution problem surfaced with the report.
type Diagnostic struct {
	Kind       DiagnosticKind  `json:"kind" toon:"kind"`
	Source     string          `json:"source" toon:"source"`
	Ref        symtab.RefKind  `json:"ref" toon:"ref"`
	Name       string          `json:"name" toon:"name"`
	Location   symtab.Location `json:"location,omitempty" toon:"location,omitempty"`
	Message    string          `json:"message" toon:"message"`
	Candidates []string        `json:"candidates,omitempty" toon:"candidates,omitempty"`
}

// Err returns the diagnostic as an error value.
func (d Diagnostic) Err() error {
	site := symtab.CallSite{Source: d.Source, Ref: d.Ref, Name: d.Name, Location: d.Location}
	if d.Kind == DiagnosticUnresolved {
		return &UnresolvedReferenceError{Site: site, Reason: d.Message}
	}
	return fmt.Errorf("ambiguous %s reference %q from %s: %s", d.Ref, d.Name, d.Source, d.Message)
}

// Result is the output of Build.
type Result struct {
	Graph       *callgraph.Graph
	Diagnostics []Diagnostic
	// Unresolved counts call sites that produced no edge.
	Unresolved int
	// Ambiguous counts direct references linked to several candidates.
	Ambiguous int
	// ApproximateEdges counts dispatch-approximate edges created.
	ApproximateEdges int
}

// CapabilityIndex maps capability sets (interfaces, traits) to their
// implementing types. It is built once from front-end hints and only read.
type CapabilityIndex struct {
	implementers map[string][]string
	capabilities map[string][]string // type -> capabilities it implements
}

// NewCapabilityIndex indexes implementation hints, dropping duplicates.
func NewCapabilityIndex(impls []symtab.Implementation) *CapabilityIndex {
	c := &CapabilityIndex{
		implementers: make(map[string][]string),
		capabilities: make(map[string][]string),
	}
	for _, impl := range impls {
		capName := baseTypeName(impl.Capability)
		typeName := baseTypeName(impl.Type)
		if capName == "" || typeName == "" {
			continue
		}
		if !contains(c.implementers[capName], typeName) {
			c.implementers[capName] = append(c.implementers[capName], typeName)
		}
		if !contains(c.capabilities[typeName], capName) {
			c.capabilities[typeName] = append(c.capabilities[typeName], capName)
		}
	}
	return c
}

// Structural infers implementations of structural capabilities: every owner
// that declares all required methods implements the capability. Owners are
// visited in symbol insertion order.
func Structural(table *symtab.Table, decls []symtab.CapabilityDecl) []symtab.Implementation {
	var owners []string
	seen := make(map[string]struct{})
	for i := range table.Len() {
		sym := table.At(i)
		if sym.Kind != symtab.KindMethod || sym.Owner == "" {
			continue
		}
		if _, ok := seen[sym.Owner]; ok {
			continue
		}
		seen[sym.Owner] = struct{}{}
		owners = append(owners, sym.Owner)
	}

	var impls []symtab.Implementation
	for _, d := range decls {
		if !d.Structural || len(d.Methods) == 0 {
			continue
		}
		for _, owner := range owners {
			if owner == d.Name {
				continue
			}
			if implementsAll(table, owner, d.Methods) {
				impls = append(impls, symtab.Implementation{Type: owner, Capability: d.Name})
			}
		}
	}
	return impls
}

func implementsAll(table *symtab.Table, owner string, methods []string) bool {
	for _, m := range methods {
		if len(table.Methods(owner, m)) == 0 {
			return false
		}
	}
	return true
}

// Implementers returns the types implementing capability, in hint order.
func (c *CapabilityIndex) Implementers(capability string) []string {
	return c.implementers[baseTypeName(capability)]
}

// Capabilities returns the capabilities typeName implements.
func (c *CapabilityIndex) Capabilities(typeName string) []string {
	return c.capabilities[baseTypeName(typeName)]
}

// Resolve returns every method called method that a value of capability may
// dispatch to: the implementers' methods and the capability's default body.
func (c *CapabilityIndex) Resolve(table *symtab.Table, capability, method string) []int {
	var targets []int
	for _, typeName := range c.Implementers(capability) {
		targets = append(targets, table.Methods(typeName, method)...)
	}
	targets = append(targets, table.Methods(baseTypeName(capability), method)...)
	return dedupInts(targets)
}

// baseTypeName strips references, pointers, paths and generic arguments:
// "&mut crate::models::Server<T>" -> "Server".
func baseTypeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimLeft(name, "&*")
	name = strings.TrimPrefix(name, "mut ")
	name = strings.TrimPrefix(name, "dyn ")
	name = strings.TrimPrefix(name, "impl ")
	name = stripGenerics(name)
	name = strings.ReplaceAll(name, ".", symtab.PathSep)
	if i := strings.LastIndex(name, symtab.PathSep); i >= 0 {
		name = name[i+len(symtab.PathSep):]
	}
	return strings.TrimSpace(name)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func dedupInts(in []int) []int {
	if len(in) < 2 {
		return in
	}
	seen := make(map[int]struct{}, len(in))
	out := in[:0]
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
