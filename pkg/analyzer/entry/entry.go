// Package entry decides which symbols are externally invoked and therefore
// roots of the reachability analysis.
package entry

import (
	"fmt"
	"log/slog"
	"path"

	"github.com/panbanda/reaper/pkg/callgraph"
	"github.com/panbanda/reaper/pkg/symtab"
)

// DefaultEntryName is used for languages without an entry name hint.
const DefaultEntryName = "main"

// Classifier selects roots from a symbol table.
type Classifier struct {
	mode         Mode
	includeTests bool
	names        []string
	patterns     []string
	ids          []string
	logger       *slog.Logger
}

// Option is a functional option for configuring Classifier.
type Option func(*Classifier)

// WithMode sets binary or library mode.
func WithMode(m Mode) Option {
	return func(c *Classifier) {
		if m != "" {
			c.mode = m
		}
	}
}

// WithIncludeTests roots test cases instead of excluding test-only symbols.
func WithIncludeTests(include bool) Option {
	return func(c *Classifier) {
		c.includeTests = include
	}
}

// WithNames adds entry names matched against short and qualified names.
func WithNames(names ...string) Option {
	return func(c *Classifier) {
		c.names = append(c.names, names...)
	}
}

// WithPatterns adds glob patterns matched against names and identities.
func WithPatterns(patterns ...string) Option {
	return func(c *Classifier) {
		c.patterns = append(c.patterns, patterns...)
	}
}

// WithIDs adds explicit root identities.
func WithIDs(ids ...string) Option {
	return func(c *Classifier) {
		c.ids = append(c.ids, ids...)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Classifier) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a classifier. The default is binary mode without tests.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		mode:   ModeBinary,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify computes the root set. It fails with *NoEntryPointError when no
// symbol qualifies and with *callgraph.GraphIntegrityError when a configured
// identity or initializer hint names an unknown symbol.
func (c *Classifier) Classify(table *symtab.Table, hints symtab.Hints) (*RootSet, error) {
	for _, p := range c.patterns {
		if _, err := path.Match(p, ""); err != nil {
			return nil, fmt.Errorf("entry pattern %q: %w", p, err)
		}
	}
	for _, id := range c.ids {
		if _, ok := table.Index(id); !ok {
			return nil, &callgraph.GraphIntegrityError{Symbol: id}
		}
	}

	rs := &RootSet{
		Reasons:      make(map[string]Reason),
		Mode:         c.mode,
		IncludeTests: c.includeTests,
	}
	explicit := make(map[string]struct{}, len(c.ids))
	for _, id := range c.ids {
		explicit[id] = struct{}{}
	}

	for _, sym := range table.All() {
		if sym.TestOnly {
			rs.TestOnly = append(rs.TestOnly, sym.ID)
			if !c.includeTests {
				rs.Excluded = append(rs.Excluded, sym.ID)
				continue
			}
			if sym.TestCase {
				rs.TestRoots = append(rs.TestRoots, sym.ID)
				c.addRoot(rs, sym.ID, ReasonTestCase)
			}
			continue
		}

		if _, ok := explicit[sym.ID]; ok {
			c.addRoot(rs, sym.ID, ReasonConfigured)
			continue
		}
		if reason, ok := c.classify(&sym, hints); ok {
			c.addRoot(rs, sym.ID, reason)
		}
	}

	excluded := make(map[string]struct{}, len(rs.Excluded))
	for _, id := range rs.Excluded {
		excluded[id] = struct{}{}
	}
	seen := make(map[Conditional]struct{}, len(hints.Initializers))
	for _, b := range hints.Initializers {
		cond := Conditional{Global: b.Global, Initializer: b.Initializer}
		if _, dup := seen[cond]; dup {
			continue
		}
		seen[cond] = struct{}{}
		for _, id := range []string{b.Global, b.Initializer} {
			if _, ok := table.Index(id); !ok {
				return nil, &callgraph.GraphIntegrityError{Symbol: id}
			}
		}
		if _, skip := excluded[b.Global]; skip {
			continue
		}
		if _, skip := excluded[b.Initializer]; skip {
			continue
		}
		rs.Conditional = append(rs.Conditional, cond)
	}

	if len(rs.Roots) == 0 {
		return nil, &NoEntryPointError{Mode: c.mode, Symbols: table.Len()}
	}

	c.logger.Debug("roots classified",
		"mode", c.mode,
		"roots", len(rs.Roots),
		"conditional", len(rs.Conditional),
		"excluded", len(rs.Excluded),
		"test_roots", len(rs.TestRoots))
	return rs, nil
}

// classify applies the root rules to a non-test symbol.
func (c *Classifier) classify(sym *symtab.Symbol, hints symtab.Hints) (Reason, bool) {
	if sym.Owner == "" && sym.Kind == symtab.KindFunction && isEntryName(sym, hints) {
		return ReasonEntryName, true
	}
	if c.matchesConfigured(sym) {
		return ReasonConfigured, true
	}
	if sym.HasAttribute(symtab.AttrFFIExport) {
		return ReasonFFIExport, true
	}
	if c.mode == ModeLibrary {
		if sym.EntryCandidate {
			return ReasonCandidate, true
		}
		if sym.Visibility.IsPublic() {
			return ReasonPublicAPI, true
		}
	}
	return "", false
}

func (c *Classifier) matchesConfigured(sym *symtab.Symbol) bool {
	qualified := sym.QualifiedName()
	for _, n := range c.names {
		if n == sym.Name || n == qualified {
			return true
		}
	}
	for _, p := range c.patterns {
		for _, candidate := range []string{sym.Name, qualified, sym.ID} {
			if ok, _ := path.Match(p, candidate); ok {
				return true
			}
		}
	}
	return false
}

func (c *Classifier) addRoot(rs *RootSet, id string, reason Reason) {
	if _, ok := rs.Reasons[id]; ok {
		return
	}
	rs.Reasons[id] = reason
	rs.Roots = append(rs.Roots, id)
}

func isEntryName(sym *symtab.Symbol, hints symtab.Hints) bool {
	names, ok := hints.EntryNames[sym.Language]
	if !ok {
		return sym.Name == DefaultEntryName
	}
	for _, n := range names {
		if n == sym.Name {
			return true
		}
	}
	return false
}
