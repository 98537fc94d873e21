// Package symtab holds the declared units of an analysis run and their
// unresolved call sites. The table is append-only: once every front-end unit
// has been loaded it is only read.
package symtab

import (
	"fmt"
	"sort"
	"strings"
)

// PathSep separates segments in qualified names (module::Type::method).
const PathSep = "::"

// Table stores symbols in insertion order, indexed by identity.
type Table struct {
	symbols       []Symbol
	index         map[string]int
	byName        map[string][]int
	byPath        map[string][]int
	methods       map[string][]int // owner::name -> methods
	methodsByName map[string][]int
}

// New creates an empty symbol table.
func New() *Table {
	return &Table{
		symbols:       make([]Symbol, 0, 256),
		index:         make(map[string]int),
		byName:        make(map[string][]int),
		byPath:        make(map[string][]int),
		methods:       make(map[string][]int),
		methodsByName: make(map[string][]int),
	}
}

// Register adds a symbol. Registering an identity twice fails with
// *DuplicateSymbolError and leaves the table unchanged.
func (t *Table) Register(sym Symbol) error {
	if sym.ID == "" {
		return fmt.Errorf("register symbol %q: empty identity", sym.Name)
	}
	if i, ok := t.index[sym.ID]; ok {
		return &DuplicateSymbolError{ID: sym.ID, First: t.symbols[i].Location, Second: sym.Location}
	}
	if sym.Name == "" {
		sym.Name = lastSegment(sym.ID)
	}

	calls := make([]CallSite, len(sym.Calls))
	for i, c := range sym.Calls {
		c.Source = sym.ID
		calls[i] = c
	}
	sym.Calls = calls

	idx := len(t.symbols)
	t.symbols = append(t.symbols, sym)
	t.index[sym.ID] = idx
	t.byName[sym.Name] = append(t.byName[sym.Name], idx)

	for _, key := range pathKeys(&sym) {
		t.byPath[key] = append(t.byPath[key], idx)
	}
	if sym.Owner != "" {
		key := sym.Owner + PathSep + sym.Name
		t.methods[key] = append(t.methods[key], idx)
		t.methodsByName[sym.Name] = append(t.methodsByName[sym.Name], idx)
	}
	return nil
}

// Attach appends a separately recorded call site to its source symbol.
func (t *Table) Attach(site CallSite) error {
	i, ok := t.index[site.Source]
	if !ok {
		return fmt.Errorf("attach call site %q: source %q: %w", site.Name, site.Source, ErrNotFound)
	}
	t.symbols[i].Calls = append(t.symbols[i].Calls, site)
	return nil
}

// Lookup returns the symbol registered under id.
func (t *Table) Lookup(id string) (Symbol, error) {
	i, ok := t.index[id]
	if !ok {
		return Symbol{}, fmt.Errorf("lookup %q: %w", id, ErrNotFound)
	}
	return t.symbols[i], nil
}

// Index returns the dense insertion index of id.
func (t *Table) Index(id string) (int, bool) {
	i, ok := t.index[id]
	return i, ok
}

// At returns the symbol at insertion index i.
func (t *Table) At(i int) *Symbol {
	return &t.symbols[i]
}

// Len returns the number of registered symbols.
func (t *Table) Len() int {
	return len(t.symbols)
}

// All returns the symbols in insertion order.
func (t *Table) All() []Symbol {
	out := make([]Symbol, len(t.symbols))
	copy(out, t.symbols)
	return out
}

// ByName returns the indices of symbols with the given short name.
func (t *Table) ByName(name string) []int {
	return t.byName[name]
}

// ByPath returns the indices of symbols whose qualified path ends with path
// (at least two segments, e.g. "Config::new" or "models::Config::new").
func (t *Table) ByPath(path string) []int {
	return t.byPath[path]
}

// Methods returns the methods called name declared on owner.
func (t *Table) Methods(owner, name string) []int {
	return t.methods[owner+PathSep+name]
}

// MethodsNamed returns every method called name regardless of owner.
func (t *Table) MethodsNamed(name string) []int {
	return t.methodsByName[name]
}

// Load builds a table from front-end units. Units are loaded in path order so
// that the insertion order does not depend on parse scheduling.
func Load(units ...Unit) (*Table, Hints, error) {
	sorted := make([]Unit, len(units))
	copy(sorted, units)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Path < sorted[j].Path
	})

	t := New()
	var hints Hints
	for _, u := range sorted {
		for _, sym := range u.Symbols {
			if sym.Language == "" {
				sym.Language = u.Language
			}
			if err := t.Register(sym); err != nil {
				return nil, Hints{}, fmt.Errorf("load %s: %w", u.Path, err)
			}
		}
		hints.Merge(u.Hints)
	}
	// Separately emitted call sites may reference symbols from other units.
	for _, u := range sorted {
		for _, site := range u.CallSites {
			if err := t.Attach(site); err != nil {
				return nil, Hints{}, fmt.Errorf("load %s: %w", u.Path, err)
			}
		}
	}
	return t, hints, nil
}

// pathKeys returns every qualified suffix of at least two segments.
func pathKeys(sym *Symbol) []string {
	var segs []string
	if sym.Scope != "" {
		segs = append(segs, strings.Split(sym.Scope, PathSep)...)
	}
	if sym.Owner != "" {
		segs = append(segs, sym.Owner)
	}
	segs = append(segs, sym.Name)

	var keys []string
	for i := 0; i <= len(segs)-2; i++ {
		keys = append(keys, strings.Join(segs[i:], PathSep))
	}
	return keys
}

func lastSegment(id string) string {
	if i := strings.LastIndex(id, PathSep); i >= 0 {
		return id[i+len(PathSep):]
	}
	return id
}
