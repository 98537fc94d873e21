package treesitter

import (
	"fmt"
	"path"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/panbanda/reaper/pkg/parser"
	"github.com/panbanda/reaper/pkg/symtab"
)

// nodeKey identifies a node within one tree.
type nodeKey struct {
	start, end uint32
	typ        string
}

func keyOf(n *sitter.Node) nodeKey {
	return nodeKey{start: n.StartByte(), end: n.EndByte(), typ: n.Type()}
}

// isField reports whether child is the named field of parent.
func isField(parent *sitter.Node, field string, child *sitter.Node) bool {
	if parent == nil || child == nil {
		return false
	}
	f := parent.ChildByFieldName(field)
	return f != nil && keyOf(f) == keyOf(child)
}

// unitBuilder accumulates the symbols of one file and keeps identities unique.
type unitBuilder struct {
	unit symtab.Unit
	ids  map[string]int
}

func newUnitBuilder(filePath string, lang parser.Language) *unitBuilder {
	return &unitBuilder{
		unit: symtab.Unit{
			Path:     filePath,
			Language: string(lang),
		},
		ids: make(map[string]int),
	}
}

// id joins the file path and non-empty segments. A repeated identity (two
// cfg-gated variants, several Go init functions) gets a #n suffix.
func (b *unitBuilder) id(segments ...string) string {
	parts := []string{b.unit.Path}
	for _, s := range segments {
		if s != "" {
			parts = append(parts, s)
		}
	}
	id := strings.Join(parts, symtab.PathSep)
	b.ids[id]++
	if n := b.ids[id]; n > 1 {
		return fmt.Sprintf("%s#%d", id, n)
	}
	return id
}

func (b *unitBuilder) add(sym symtab.Symbol) {
	sym.Language = b.unit.Language
	sym.Location.File = b.unit.Path
	b.unit.Symbols = append(b.unit.Symbols, sym)
}

// function returns the free function called name declared in scope.
func (b *unitBuilder) function(scope, name string) (string, bool) {
	for _, s := range b.unit.Symbols {
		if s.Owner == "" && s.Kind == symtab.KindFunction && s.Name == name && s.Scope == scope {
			return s.ID, true
		}
	}
	return "", false
}

// refs collects the call sites of one symbol body. Value and type
// references are recorded once per name.
type refs struct {
	file   string
	sites  []symtab.CallSite
	values map[string]struct{}
	typed  map[string]struct{}
	// consumed marks name nodes already recorded as a call target.
	consumed map[nodeKey]struct{}
	// types maps local bindings to their declared or constructed type.
	types map[string]binding
}

type binding struct {
	typeName   string
	capability bool
}

func newRefs(file string) *refs {
	return &refs{
		file:     file,
		values:   make(map[string]struct{}),
		typed:    make(map[string]struct{}),
		consumed: make(map[nodeKey]struct{}),
		types:    make(map[string]binding),
	}
}

func (r *refs) add(ref symtab.RefKind, name string, n *sitter.Node) *symtab.CallSite {
	r.sites = append(r.sites, symtab.CallSite{
		Ref:      ref,
		Name:     name,
		Location: symtab.Location{File: r.file, Line: parser.StartLine(n)},
	})
	return &r.sites[len(r.sites)-1]
}

func (r *refs) value(name string, n *sitter.Node) {
	if name == "" || name == "_" {
		return
	}
	if _, ok := r.values[name]; ok {
		return
	}
	r.values[name] = struct{}{}
	r.add(symtab.RefValue, name, n)
}

// typeUse records a type named in a literal, annotation or receiver.
func (r *refs) typeUse(name string, n *sitter.Node) {
	if name == "" || name == "_" {
		return
	}
	if _, ok := r.typed[name]; ok {
		return
	}
	r.typed[name] = struct{}{}
	r.add(symtab.RefType, name, n)
}

// dispatch records a method call, using the binding of the receiver
// expression when it is a known local.
func (r *refs) dispatch(method, operand string, n *sitter.Node) {
	site := r.add(symtab.RefDispatch, method, n)
	if b, ok := r.types[operand]; ok {
		if b.capability {
			site.Capability = b.typeName
		} else {
			site.Receiver = b.typeName
		}
	}
}

func (r *refs) consume(n *sitter.Node) {
	r.consumed[keyOf(n)] = struct{}{}
}

func (r *refs) isConsumed(n *sitter.Node) bool {
	_, ok := r.consumed[keyOf(n)]
	return ok
}

// typeName reduces a type expression to its base name: "&mut Vec<T>" -> "Vec",
// "*pkg.Server" -> "Server".
func typeName(text string) string {
	text = strings.TrimSpace(text)
	for _, p := range []string{"&", "*", "mut ", "dyn ", "impl ", "[]"} {
		for strings.HasPrefix(text, p) {
			text = strings.TrimSpace(strings.TrimPrefix(text, p))
		}
	}
	if i := strings.IndexAny(text, "<[("); i >= 0 {
		text = text[:i]
	}
	if i := strings.IndexAny(text, " +"); i >= 0 {
		text = text[:i]
	}
	text = strings.ReplaceAll(text, ".", symtab.PathSep)
	if i := strings.LastIndex(text, symtab.PathSep); i >= 0 {
		text = text[i+len(symtab.PathSep):]
	}
	return text
}

// IsTestFile reports whether the path holds test-only code by convention.
func IsTestFile(filePath string) bool {
	p := path.Clean(strings.ReplaceAll(filePath, "\\", "/"))
	if strings.HasSuffix(p, "_test.go") {
		return true
	}
	for _, dir := range []string{"tests/", "benches/"} {
		if strings.HasPrefix(p, dir) || strings.Contains(p, "/"+dir) {
			return strings.HasSuffix(p, ".rs")
		}
	}
	return false
}
