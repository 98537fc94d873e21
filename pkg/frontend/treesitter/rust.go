package treesitter

import (
	"path"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/panbanda/reaper/pkg/parser"
	"github.com/panbanda/reaper/pkg/symtab"
)

var (
	rustTestAttr = regexp.MustCompile(`^#\[(?:[\w:]+::)?(?:test|bench|rstest|quickcheck)\b`)
	rustCfgTest  = regexp.MustCompile(`^#\[cfg\(.*\btest\b.*\)\]`)
	// lazy_static! { [pub] static ref NAME: Type = ctor(...); }
	rustLazyStatic = regexp.MustCompile(`((?:pub(?:\([^)]*\))?\s+)?)static\s+ref\s+(\w+)\s*:[^=]*=\s*([^;]*);`)
	rustCallInText = regexp.MustCompile(`([A-Za-z_][\w:]*)\s*\(`)
)

// rustLazyCtors are wrapper constructors whose argument runs on first access.
var rustLazyCtors = []string{"Lazy::new", "LazyLock::new", "LazyCell::new"}

func isLazyCtor(name string) bool {
	for _, c := range rustLazyCtors {
		if name == c || strings.HasSuffix(name, symtab.PathSep+c) {
			return true
		}
	}
	return false
}

type rustItemCtx struct {
	scope    []string
	testOnly bool
	owner    string
	trait    string // trait being implemented by the enclosing impl
	inTrait  bool
	traitVis symtab.Visibility
}

func (c rustItemCtx) scopePath() string {
	return strings.Join(c.scope, symtab.PathSep)
}

type rustExtractor struct {
	b       *unitBuilder
	src     []byte
	pending []pendingInit
}

type pendingInit struct {
	global, scope, ctor string
}

func extractRust(res *parser.ParseResult) symtab.Unit {
	x := &rustExtractor{
		b:   newUnitBuilder(res.Path, parser.LangRust),
		src: res.Source,
	}
	x.b.unit.Hints.EntryNames = map[string][]string{string(parser.LangRust): {"main"}}

	ctx := rustItemCtx{
		scope:    rustModuleScope(res.Path),
		testOnly: IsTestFile(res.Path),
	}
	x.items(res.Root(), ctx)

	for _, p := range x.pending {
		if initID, ok := x.b.function(p.scope, p.ctor); ok {
			x.b.unit.Hints.Initializers = append(x.b.unit.Hints.Initializers,
				symtab.InitBinding{Global: p.global, Initializer: initID})
		}
	}
	return x.b.unit
}

// rustModuleScope derives the module path of a file: src/models.rs -> models,
// src/net/mod.rs -> net, src/main.rs and src/lib.rs -> crate root.
func rustModuleScope(filePath string) []string {
	p := strings.TrimSuffix(path.Clean(strings.ReplaceAll(filePath, "\\", "/")), ".rs")
	segs := strings.Split(p, "/")
	if len(segs) > 0 && segs[0] == "src" {
		segs = segs[1:]
	} else if i := indexOf(segs, "src"); i >= 0 {
		segs = segs[i+1:]
	}
	if n := len(segs); n > 0 {
		switch segs[n-1] {
		case "main", "lib", "mod":
			segs = segs[:n-1]
		}
	}
	var out []string
	for _, s := range segs {
		if s != "" && s != "." {
			out = append(out, s)
		}
	}
	return out
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func (x *rustExtractor) items(container *sitter.Node, ctx rustItemCtx) {
	for _, node := range parser.NamedChildren(container) {
		switch node.Type() {
		case "function_item":
			x.function(node, ctx)
		case "mod_item":
			body := node.ChildByFieldName("body")
			if body == nil {
				continue
			}
			inner := ctx
			inner.scope = append(append([]string(nil), ctx.scope...), parser.FieldText(node, "name", x.src))
			inner.testOnly = ctx.testOnly || hasAttr(x.attributes(node), rustCfgTest)
			x.items(body, inner)
		case "impl_item":
			x.impl(node, ctx)
		case "trait_item":
			x.trait(node, ctx)
		case "struct_item", "enum_item", "union_item", "type_item":
			x.typeItem(node, ctx)
		case "const_item", "static_item":
			x.constant(node, ctx)
		case "macro_invocation":
			x.macroItem(node, ctx)
		case "expression_statement":
			if inner := node.NamedChild(0); inner != nil && inner.Type() == "macro_invocation" {
				x.macroItem(inner, ctx)
			}
		}
	}
}

// attributes returns the attribute items directly preceding node.
func (x *rustExtractor) attributes(node *sitter.Node) []string {
	var attrs []string
	for prev := node.PrevSibling(); prev != nil; prev = prev.PrevSibling() {
		switch prev.Type() {
		case "attribute_item":
			attrs = append(attrs, parser.GetNodeText(prev, x.src))
		case "line_comment", "block_comment":
		default:
			return attrs
		}
	}
	return attrs
}

func hasAttr(attrs []string, re *regexp.Regexp) bool {
	for _, a := range attrs {
		if re.MatchString(a) {
			return true
		}
	}
	return false
}

func (x *rustExtractor) visibility(node *sitter.Node) symtab.Visibility {
	for _, child := range parser.NamedChildren(node) {
		if child.Type() != "visibility_modifier" {
			continue
		}
		if parser.GetNodeText(child, x.src) == "pub" {
			return symtab.VisibilityPublic
		}
		return symtab.VisibilityModule
	}
	return symtab.VisibilityPrivate
}

func (x *rustExtractor) function(node *sitter.Node, ctx rustItemCtx) {
	name := parser.FieldText(node, "name", x.src)
	if name == "" {
		return
	}
	attrs := x.attributes(node)
	isTest := hasAttr(attrs, rustTestAttr)

	sym := symtab.Symbol{
		ID:         x.b.id(ctx.scopePath(), ctx.owner, name),
		Name:       name,
		Scope:      ctx.scopePath(),
		Owner:      ctx.owner,
		Kind:       symtab.KindFunction,
		Visibility: x.visibility(node),
		Location:   symtab.Location{Line: parser.StartLine(node), EndLine: parser.EndLine(node)},
		TestOnly:   ctx.testOnly || isTest || hasAttr(attrs, rustCfgTest),
		TestCase:   isTest,
	}
	if ctx.owner != "" {
		sym.Kind = symtab.KindMethod
	}
	if ctx.inTrait {
		sym.Visibility = ctx.traitVis
	}
	// Trait impl methods are reached through the trait from code outside the
	// analysed sources (Display, Drop, serde).
	if ctx.trait != "" {
		sym.EntryCandidate = true
	}
	for _, a := range attrs {
		if strings.Contains(a, "no_mangle") || strings.Contains(a, "export_name") {
			sym.Attributes = append(sym.Attributes, symtab.AttrFFIExport)
			break
		}
	}
	if mods := findChild(node, "function_modifiers"); mods != nil {
		text := parser.GetNodeText(mods, x.src)
		if strings.Contains(text, "async") {
			sym.Attributes = append(sym.Attributes, symtab.AttrAsync)
		}
		if strings.Contains(text, `extern "C"`) && !sym.HasAttribute(symtab.AttrFFIExport) {
			sym.Attributes = append(sym.Attributes, symtab.AttrFFIExport)
		}
	}
	if node.ChildByFieldName("type_parameters") != nil {
		sym.Attributes = append(sym.Attributes, symtab.AttrGeneric)
	}

	r := newRefs(x.b.unit.Path)
	if ctx.owner != "" {
		r.types["self"] = binding{typeName: "Self"}
		r.typeUse(ctx.owner, node)
	}
	x.params(node.ChildByFieldName("parameters"), r)
	if rt := node.ChildByFieldName("return_type"); rt != nil {
		x.body(rt, r)
	}
	x.body(node.ChildByFieldName("body"), r)
	sym.Calls = r.sites
	x.b.add(sym)
}

func findChild(node *sitter.Node, nodeType string) *sitter.Node {
	for i := range int(node.ChildCount()) {
		if c := node.Child(i); c.Type() == nodeType {
			return c
		}
	}
	return nil
}

func (x *rustExtractor) params(params *sitter.Node, r *refs) {
	for _, p := range parser.NamedChildren(params) {
		if p.Type() != "parameter" {
			continue
		}
		typ := p.ChildByFieldName("type")
		pat := p.ChildByFieldName("pattern")
		if typ != nil && pat != nil && pat.Type() == "identifier" {
			text := parser.GetNodeText(typ, x.src)
			r.types[parser.GetNodeText(pat, x.src)] = binding{
				typeName:   typeName(text),
				capability: strings.Contains(text, "dyn ") || strings.Contains(text, "impl "),
			}
		}
		x.body(typ, r)
	}
}

func (x *rustExtractor) impl(node *sitter.Node, ctx rustItemCtx) {
	owner := typeName(parser.FieldText(node, "type", x.src))
	if owner == "" {
		return
	}
	trait := typeName(parser.FieldText(node, "trait", x.src))
	if trait != "" {
		x.b.unit.Hints.Implementations = append(x.b.unit.Hints.Implementations,
			symtab.Implementation{Type: owner, Capability: trait})
	}
	inner := ctx
	inner.owner = owner
	inner.trait = trait
	inner.testOnly = ctx.testOnly || hasAttr(x.attributes(node), rustCfgTest)

	for _, item := range parser.NamedChildren(node.ChildByFieldName("body")) {
		switch item.Type() {
		case "function_item":
			x.function(item, inner)
		case "const_item":
			x.constant(item, inner)
		}
	}
}

func (x *rustExtractor) trait(node *sitter.Node, ctx rustItemCtx) {
	name := parser.FieldText(node, "name", x.src)
	if name == "" {
		return
	}
	x.typeItem(node, ctx)

	inner := ctx
	inner.owner = name
	inner.inTrait = true
	inner.traitVis = x.visibility(node)
	decl := symtab.CapabilityDecl{Name: name}
	for _, item := range parser.NamedChildren(node.ChildByFieldName("body")) {
		switch item.Type() {
		case "function_item":
			decl.Methods = append(decl.Methods, parser.FieldText(item, "name", x.src))
			x.function(item, inner)
		case "function_signature_item":
			decl.Methods = append(decl.Methods, parser.FieldText(item, "name", x.src))
		}
	}
	x.b.unit.Hints.Capabilities = append(x.b.unit.Hints.Capabilities, decl)
}

func (x *rustExtractor) typeItem(node *sitter.Node, ctx rustItemCtx) {
	name := parser.FieldText(node, "name", x.src)
	if name == "" {
		return
	}
	attrs := x.attributes(node)
	sym := symtab.Symbol{
		ID:         x.b.id(ctx.scopePath(), name),
		Name:       name,
		Scope:      ctx.scopePath(),
		Kind:       symtab.KindType,
		Visibility: x.visibility(node),
		Location:   symtab.Location{Line: parser.StartLine(node), EndLine: parser.EndLine(node)},
		TestOnly:   ctx.testOnly || hasAttr(attrs, rustCfgTest),
	}
	if node.ChildByFieldName("type_parameters") != nil {
		sym.Attributes = append(sym.Attributes, symtab.AttrGeneric)
	}
	// Field and variant types keep their declarations alive.
	if node.Type() != "trait_item" {
		r := newRefs(x.b.unit.Path)
		x.body(node.ChildByFieldName("body"), r)
		x.body(node.ChildByFieldName("type"), r)
		sym.Calls = r.sites
	}
	x.b.add(sym)
}

func (x *rustExtractor) constant(node *sitter.Node, ctx rustItemCtx) {
	name := parser.FieldText(node, "name", x.src)
	if name == "" {
		return
	}
	sym := symtab.Symbol{
		ID:         x.b.id(ctx.scopePath(), ctx.owner, name),
		Name:       name,
		Scope:      ctx.scopePath(),
		Owner:      ctx.owner,
		Kind:       symtab.KindConstant,
		Visibility: x.visibility(node),
		Location:   symtab.Location{Line: parser.StartLine(node), EndLine: parser.EndLine(node)},
		TestOnly:   ctx.testOnly || hasAttr(x.attributes(node), rustCfgTest),
	}

	r := newRefs(x.b.unit.Path)
	x.body(node.ChildByFieldName("type"), r)
	value := node.ChildByFieldName("value")
	if ctor, arg := x.lazyCtor(value); ctor != "" && node.Type() == "static_item" {
		sym.Kind = symtab.KindStaticInitializer
		x.lazyInitializer(&sym, ctx, arg, r)
	} else {
		x.body(value, r)
	}
	sym.Calls = r.sites
	x.b.add(sym)
}

// lazyCtor matches `Lazy::new(arg)` style initializers.
func (x *rustExtractor) lazyCtor(value *sitter.Node) (string, *sitter.Node) {
	if value == nil || value.Type() != "call_expression" {
		return "", nil
	}
	fn := value.ChildByFieldName("function")
	if fn != nil && fn.Type() == "generic_function" {
		fn = fn.ChildByFieldName("function")
	}
	name := stripTurbofish(parser.GetNodeText(fn, x.src))
	if !isLazyCtor(name) {
		return "", nil
	}
	args := parser.NamedChildren(value.ChildByFieldName("arguments"))
	if len(args) == 0 {
		return "", nil
	}
	return name, args[0]
}

// lazyInitializer records the initializer of a lazily constructed static as
// macro call sites owned by the static itself.
func (x *rustExtractor) lazyInitializer(sym *symtab.Symbol, ctx rustItemCtx, arg *sitter.Node, r *refs) {
	switch arg.Type() {
	case "identifier", "scoped_identifier":
		name := parser.GetNodeText(arg, x.src)
		r.add(symtab.RefMacro, name, arg)
		x.pending = append(x.pending, pendingInit{global: sym.ID, scope: ctx.scopePath(), ctor: name})
	case "closure_expression":
		start := len(r.sites)
		x.body(arg.ChildByFieldName("body"), r)
		first := true
		for i := start; i < len(r.sites); i++ {
			if r.sites[i].Ref != symtab.RefDirect {
				continue
			}
			r.sites[i].Ref = symtab.RefMacro
			if first {
				x.pending = append(x.pending, pendingInit{global: sym.ID, scope: ctx.scopePath(), ctor: r.sites[i].Name})
				first = false
			}
		}
	default:
		x.body(arg, r)
	}
}

// macroItem handles item-level macros. Only lazy_static! declares symbols.
func (x *rustExtractor) macroItem(node *sitter.Node, ctx rustItemCtx) {
	macro := parser.FieldText(node, "macro", x.src)
	if macro != "lazy_static" && !strings.HasSuffix(macro, "::lazy_static") {
		return
	}
	tt := findChild(node, "token_tree")
	if tt == nil {
		return
	}
	text := parser.GetNodeText(tt, x.src)
	base := parser.StartLine(tt)
	testOnly := ctx.testOnly || hasAttr(x.attributes(node), rustCfgTest)

	for _, m := range rustLazyStatic.FindAllStringSubmatchIndex(text, -1) {
		vis := symtab.VisibilityPrivate
		if pub := strings.TrimSpace(text[m[2]:m[3]]); pub == "pub" {
			vis = symtab.VisibilityPublic
		} else if pub != "" {
			vis = symtab.VisibilityModule
		}
		name := text[m[4]:m[5]]
		line := base + uint32(strings.Count(text[:m[0]], "\n"))
		sym := symtab.Symbol{
			ID:         x.b.id(ctx.scopePath(), name),
			Name:       name,
			Scope:      ctx.scopePath(),
			Kind:       symtab.KindStaticInitializer,
			Visibility: vis,
			Location:   symtab.Location{Line: line, EndLine: base + uint32(strings.Count(text[:m[1]], "\n"))},
			TestOnly:   testOnly,
		}
		for i, call := range rustCallInText.FindAllStringSubmatch(text[m[6]:m[7]], -1) {
			ctor := stripTurbofish(call[1])
			sym.Calls = append(sym.Calls, symtab.CallSite{
				Ref:      symtab.RefMacro,
				Name:     ctor,
				Location: symtab.Location{File: x.b.unit.Path, Line: line},
			})
			if i == 0 {
				x.pending = append(x.pending, pendingInit{global: sym.ID, scope: ctx.scopePath(), ctor: ctor})
			}
		}
		x.b.add(sym)
	}
}

func stripTurbofish(name string) string {
	if i := strings.Index(name, "::<"); i >= 0 {
		if j := strings.LastIndex(name, ">"); j > i {
			return name[:i] + name[j+1:]
		}
	}
	return name
}

// body records the references made inside node.
func (x *rustExtractor) body(node *sitter.Node, r *refs) {
	parser.WalkTyped(node, x.src, func(n *sitter.Node, nodeType string, src []byte) bool {
		switch nodeType {
		case "call_expression":
			x.call(n, r)
		case "macro_invocation":
			if tt := findChild(n, "token_tree"); tt != nil {
				x.tokenTree(tt, r)
			}
			return false
		case "let_declaration":
			x.let(n, r)
		case "closure_parameters":
			return false
		case "identifier":
			if !r.isConsumed(n) && rustValuePosition(n) {
				r.value(parser.GetNodeText(n, src), n)
			}
		case "scoped_identifier":
			if r.isConsumed(n) {
				return false
			}
			if p := n.Parent(); p != nil && p.Type() != "scoped_identifier" && !strings.HasPrefix(p.Type(), "use_") && p.Type() != "scoped_use_list" {
				r.value(parser.GetNodeText(n, src), n)
			}
			return false
		case "type_identifier":
			if text := parser.GetNodeText(n, src); text != "Self" {
				r.typeUse(text, n)
			}
		case "function_item", "mod_item", "impl_item", "trait_item", "use_declaration":
			return nodeType == "function_item"
		}
		return true
	})
}

func (x *rustExtractor) call(n *sitter.Node, r *refs) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return
	}
	if fn.Type() == "generic_function" {
		r.consume(fn)
		fn = fn.ChildByFieldName("function")
		if fn == nil {
			return
		}
	}
	switch fn.Type() {
	case "identifier", "scoped_identifier":
		r.consume(fn)
		r.add(symtab.RefDirect, parser.GetNodeText(fn, x.src), fn)
	case "field_expression":
		method := parser.FieldText(fn, "field", x.src)
		operand := parser.FieldText(fn, "value", x.src)
		r.dispatch(method, operand, fn)
	}
}

// let records the type of a local binding from its annotation or constructor.
func (x *rustExtractor) let(n *sitter.Node, r *refs) {
	pat := n.ChildByFieldName("pattern")
	if pat == nil || pat.Type() != "identifier" {
		return
	}
	name := parser.GetNodeText(pat, x.src)
	if t := n.ChildByFieldName("type"); t != nil {
		text := parser.GetNodeText(t, x.src)
		r.types[name] = binding{typeName: typeName(text), capability: strings.Contains(text, "dyn ")}
		return
	}
	v := n.ChildByFieldName("value")
	if v == nil {
		return
	}
	switch v.Type() {
	case "struct_expression":
		r.types[name] = binding{typeName: typeName(parser.FieldText(v, "name", x.src))}
	case "call_expression":
		fn := v.ChildByFieldName("function")
		if fn != nil && fn.Type() == "scoped_identifier" {
			if owner := typeName(parser.FieldText(fn, "path", x.src)); isTypeLike(owner) {
				r.types[name] = binding{typeName: owner}
			}
		}
	default:
		delete(r.types, name)
	}
}

func isTypeLike(name string) bool {
	return name != "" && name[0] >= 'A' && name[0] <= 'Z' && name != "Self"
}

// tokenTree scans macro arguments, which tree-sitter leaves unparsed, for
// calls (`name(`, `a::b(`, `.m(`) and identifiers used as values.
func (x *rustExtractor) tokenTree(tt *sitter.Node, r *refs) {
	var path []string
	var method bool
	flush := func(n *sitter.Node) {
		if len(path) > 0 && !method {
			r.value(strings.Join(path, symtab.PathSep), n)
		}
		path, method = nil, false
	}
	for i := range int(tt.ChildCount()) {
		c := tt.Child(i)
		switch c.Type() {
		case "identifier":
			if len(path) > 0 && !strings.HasSuffix(parser.GetNodeText(tt.Child(i-1), x.src), "::") {
				flush(c)
			}
			path = append(path, parser.GetNodeText(c, x.src))
		case "::":
		case ".":
			flush(c)
			method = true
		case "token_tree":
			if len(path) > 0 && strings.HasPrefix(parser.GetNodeText(c, x.src), "(") {
				name := strings.Join(path, symtab.PathSep)
				if method {
					r.dispatch(path[len(path)-1], "", c)
				} else {
					r.add(symtab.RefDirect, name, c)
				}
				path, method = nil, false
			} else {
				flush(c)
			}
			x.tokenTree(c, r)
		default:
			flush(c)
		}
	}
	flush(tt)
}

// rustValuePosition reports whether an identifier is read as a value rather
// than declared as a binding or name.
func rustValuePosition(n *sitter.Node) bool {
	p := n.Parent()
	if p == nil {
		return false
	}
	switch p.Type() {
	case "let_declaration", "parameter", "for_expression", "let_condition":
		return !isField(p, "pattern", n)
	case "closure_parameters", "tuple_pattern", "struct_pattern", "field_pattern",
		"ref_pattern", "mut_pattern", "or_pattern", "slice_pattern", "captured_pattern",
		"match_pattern", "function_item", "const_item", "static_item", "mod_item",
		"enum_variant", "macro_invocation", "lifetime", "label", "loop_label",
		"type_parameters", "constrained_type_parameter":
		return false
	case "tuple_struct_pattern":
		return isField(p, "type", n)
	}
	return true
}
