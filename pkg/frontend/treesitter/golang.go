package treesitter

import (
	"strings"
	"unicode"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/panbanda/reaper/pkg/parser"
	"github.com/panbanda/reaper/pkg/symtab"
)

// goTestPrefixes name the functions `go test` invokes.
var goTestPrefixes = []string{"Test", "Benchmark", "Example", "Fuzz"}

// goVarInit is the name of the synthesized symbol holding the calls made by
// package-level variable initializers, which run at package initialization.
const goVarInit = "init"

type goExtractor struct {
	b       *unitBuilder
	src     []byte
	pkg     string
	test    bool
	imports map[string]string // local name -> import path
	varInit *refs
}

func extractGo(res *parser.ParseResult) symtab.Unit {
	x := &goExtractor{
		b:       newUnitBuilder(res.Path, parser.LangGo),
		src:     res.Source,
		test:    IsTestFile(res.Path),
		imports: make(map[string]string),
	}
	x.b.unit.Hints.EntryNames = map[string][]string{string(parser.LangGo): {"main", "init"}}
	x.varInit = newRefs(res.Path)

	root := res.Root()
	for _, node := range parser.NamedChildren(root) {
		switch node.Type() {
		case "package_clause":
			if id := findChild(node, "package_identifier"); id != nil {
				x.pkg = parser.GetNodeText(id, x.src)
			}
		case "import_declaration":
			x.importDecl(node)
		}
	}
	for _, node := range parser.NamedChildren(root) {
		switch node.Type() {
		case "function_declaration":
			x.function(node, "")
		case "method_declaration":
			x.method(node)
		case "type_declaration":
			x.typeDecl(node)
		case "const_declaration", "var_declaration":
			x.valueDecl(node)
		}
	}

	if len(x.varInit.sites) > 0 {
		x.b.add(symtab.Symbol{
			ID:         x.b.id(x.pkg, goVarInit),
			Name:       goVarInit,
			Scope:      x.pkg,
			Kind:       symtab.KindFunction,
			Visibility: symtab.VisibilityModule,
			Location:   symtab.Location{Line: 1},
			TestOnly:   x.test,
			Calls:      x.varInit.sites,
		})
	}
	return x.b.unit
}

func (x *goExtractor) importDecl(node *sitter.Node) {
	for _, spec := range parser.FindNodesByType(node, x.src, "import_spec") {
		importPath := strings.Trim(parser.FieldText(spec, "path", x.src), "\"`")
		name := parser.FieldText(spec, "name", x.src)
		if name == "_" || name == "." {
			continue
		}
		if name == "" {
			name = goPackageName(importPath)
		}
		x.imports[name] = importPath
	}
}

// goPackageName guesses the package name of an import path: the last
// element, skipping a major version suffix.
func goPackageName(importPath string) string {
	segs := strings.Split(importPath, "/")
	name := segs[len(segs)-1]
	if len(segs) > 1 && len(name) > 1 && name[0] == 'v' && strings.Trim(name[1:], "0123456789") == "" {
		name = segs[len(segs)-2]
	}
	return strings.TrimPrefix(name, "go-")
}

// isStdImport reports whether an import path belongs to the standard library,
// whose first element never contains a dot.
func isStdImport(importPath string) bool {
	first, _, _ := strings.Cut(importPath, "/")
	return !strings.Contains(first, ".")
}

func goVisibility(name string) symtab.Visibility {
	r, _ := utf8.DecodeRuneInString(name)
	if unicode.IsUpper(r) {
		return symtab.VisibilityPublic
	}
	return symtab.VisibilityModule
}

func isGoTestCase(name string) bool {
	if name == "TestMain" {
		return true
	}
	for _, p := range goTestPrefixes {
		if !strings.HasPrefix(name, p) {
			continue
		}
		rest := name[len(p):]
		if rest == "" {
			return true
		}
		r, _ := utf8.DecodeRuneInString(rest)
		return !unicode.IsLower(r)
	}
	return false
}

// hasExportComment reports whether a cgo //export or //go:linkname directive
// precedes the declaration.
func (x *goExtractor) hasExportComment(node *sitter.Node) bool {
	for prev := node.PrevSibling(); prev != nil && prev.Type() == "comment"; prev = prev.PrevSibling() {
		text := parser.GetNodeText(prev, x.src)
		if strings.HasPrefix(text, "//export ") || strings.HasPrefix(text, "//go:linkname ") {
			return true
		}
	}
	return false
}

func (x *goExtractor) function(node *sitter.Node, owner string) {
	name := parser.FieldText(node, "name", x.src)
	if name == "" || name == "_" {
		return
	}
	sym := symtab.Symbol{
		ID:         x.b.id(x.pkg, owner, name),
		Name:       name,
		Scope:      x.pkg,
		Owner:      owner,
		Kind:       symtab.KindFunction,
		Visibility: goVisibility(name),
		Location:   symtab.Location{Line: parser.StartLine(node), EndLine: parser.EndLine(node)},
		TestOnly:   x.test,
	}
	if owner != "" {
		sym.Kind = symtab.KindMethod
	} else if x.test {
		sym.TestCase = isGoTestCase(name)
	}
	if x.hasExportComment(node) {
		sym.Attributes = append(sym.Attributes, symtab.AttrFFIExport)
	}
	if node.ChildByFieldName("type_parameters") != nil {
		sym.Attributes = append(sym.Attributes, symtab.AttrGeneric)
	}

	r := newRefs(x.b.unit.Path)
	if owner != "" {
		r.typeUse(owner, node)
		x.params(node.ChildByFieldName("receiver"), r)
	}
	x.params(node.ChildByFieldName("parameters"), r)
	x.body(node.ChildByFieldName("result"), r)
	x.body(node.ChildByFieldName("body"), r)
	sym.Calls = r.sites
	x.b.add(sym)
}

func (x *goExtractor) method(node *sitter.Node) {
	recv := node.ChildByFieldName("receiver")
	var owner string
	for _, p := range parser.NamedChildren(recv) {
		if p.Type() == "parameter_declaration" {
			owner = typeName(parser.FieldText(p, "type", x.src))
			break
		}
	}
	if owner == "" {
		return
	}
	x.function(node, owner)
}

// params binds parameter names to their types for receiver resolution.
func (x *goExtractor) params(list *sitter.Node, r *refs) {
	for _, p := range parser.NamedChildren(list) {
		if p.Type() != "parameter_declaration" && p.Type() != "variadic_parameter_declaration" {
			continue
		}
		typ := p.ChildByFieldName("type")
		t := typeName(parser.GetNodeText(typ, x.src))
		for _, c := range parser.NamedChildren(p) {
			if c.Type() == "identifier" && isGoTypeName(t) {
				r.types[parser.GetNodeText(c, x.src)] = binding{typeName: t}
			}
		}
		x.body(typ, r)
	}
}

func isGoTypeName(t string) bool {
	return t != "" && !strings.ContainsAny(t, "()[]{} ")
}

func (x *goExtractor) typeDecl(node *sitter.Node) {
	for _, spec := range parser.NamedChildren(node) {
		if spec.Type() != "type_spec" && spec.Type() != "type_alias" {
			continue
		}
		name := parser.FieldText(spec, "name", x.src)
		if name == "" {
			continue
		}
		sym := symtab.Symbol{
			ID:         x.b.id(x.pkg, name),
			Name:       name,
			Scope:      x.pkg,
			Kind:       symtab.KindType,
			Visibility: goVisibility(name),
			Location:   symtab.Location{Line: parser.StartLine(spec), EndLine: parser.EndLine(spec)},
			TestOnly:   x.test,
		}
		if spec.ChildByFieldName("type_parameters") != nil {
			sym.Attributes = append(sym.Attributes, symtab.AttrGeneric)
		}
		typ := spec.ChildByFieldName("type")
		if typ != nil && typ.Type() == "interface_type" {
			x.interfaceDecl(name, typ)
		}
		r := newRefs(x.b.unit.Path)
		x.body(typ, r)
		sym.Calls = r.sites
		x.b.add(sym)
	}
}

// interfaceDecl records the method set of an interface. Go types implement
// interfaces implicitly, so the capability is structural.
func (x *goExtractor) interfaceDecl(name string, iface *sitter.Node) {
	decl := symtab.CapabilityDecl{Name: name, Structural: true}
	for _, m := range parser.NamedChildren(iface) {
		switch m.Type() {
		case "method_elem", "method_spec":
			decl.Methods = append(decl.Methods, parser.FieldText(m, "name", x.src))
		}
	}
	if len(decl.Methods) > 0 {
		x.b.unit.Hints.Capabilities = append(x.b.unit.Hints.Capabilities, decl)
	}
}

func (x *goExtractor) valueDecl(node *sitter.Node) {
	kindIsVar := node.Type() == "var_declaration"
	specs := parser.FindNodesByType(node, x.src, "const_spec")
	if kindIsVar {
		specs = parser.FindNodesByType(node, x.src, "var_spec")
	}
	for _, spec := range specs {
		r := newRefs(x.b.unit.Path)
		x.body(spec.ChildByFieldName("type"), r)
		value := spec.ChildByFieldName("value")
		if kindIsVar {
			// Initializer calls run whether or not the variable is read.
			x.body(value, x.varInit)
		} else {
			x.body(value, r)
		}
		for _, c := range parser.NamedChildren(spec) {
			if c.Type() != "identifier" || !isNameChild(spec, c) {
				continue
			}
			name := parser.GetNodeText(c, x.src)
			if name == "_" {
				continue
			}
			x.b.add(symtab.Symbol{
				ID:         x.b.id(x.pkg, name),
				Name:       name,
				Scope:      x.pkg,
				Kind:       symtab.KindConstant,
				Visibility: goVisibility(name),
				Location:   symtab.Location{Line: parser.StartLine(spec), EndLine: parser.EndLine(spec)},
				TestOnly:   x.test,
				Calls:      r.sites,
			})
		}
	}
}

// isNameChild reports whether an identifier precedes the type and value of a
// spec; multi-name specs expose only the first through the name field.
func isNameChild(spec, c *sitter.Node) bool {
	if t := spec.ChildByFieldName("type"); t != nil && c.StartByte() >= t.StartByte() {
		return false
	}
	if v := spec.ChildByFieldName("value"); v != nil && c.StartByte() >= v.StartByte() {
		return false
	}
	return true
}

// body records the references made inside node.
func (x *goExtractor) body(node *sitter.Node, r *refs) {
	parser.WalkTyped(node, x.src, func(n *sitter.Node, nodeType string, src []byte) bool {
		switch nodeType {
		case "call_expression":
			x.call(n, r)
		case "short_var_declaration":
			x.shortVar(n, r)
		case "var_spec":
			if t := typeName(parser.FieldText(n, "type", src)); isGoTypeName(t) {
				for _, c := range parser.NamedChildren(n) {
					if c.Type() == "identifier" && isNameChild(n, c) {
						r.types[parser.GetNodeText(c, src)] = binding{typeName: t}
					}
				}
			}
		case "identifier":
			if !r.isConsumed(n) && goValuePosition(n) {
				r.value(parser.GetNodeText(n, src), n)
			}
		case "selector_expression":
			if r.isConsumed(n) {
				return true
			}
			operand := n.ChildByFieldName("operand")
			if operand == nil || operand.Type() != "identifier" {
				return true
			}
			pkg := parser.GetNodeText(operand, src)
			if importPath, ok := x.imports[pkg]; ok {
				r.consume(operand)
				if !isStdImport(importPath) {
					r.value(pkg+symtab.PathSep+parser.FieldText(n, "field", src), n)
				}
				return false
			}
		case "qualified_type":
			pkg := parser.FieldText(n, "package", src)
			if importPath, ok := x.imports[pkg]; ok && !isStdImport(importPath) {
				r.typeUse(pkg+symtab.PathSep+parser.FieldText(n, "name", src), n)
			}
			return false
		case "type_identifier":
			r.typeUse(parser.GetNodeText(n, src), n)
		}
		return true
	})
}

func (x *goExtractor) call(n *sitter.Node, r *refs) {
	fn := n.ChildByFieldName("function")
	for fn != nil && (fn.Type() == "index_expression" || fn.Type() == "generic_type" || fn.Type() == "parenthesized_expression") {
		switch fn.Type() {
		case "index_expression":
			fn = fn.ChildByFieldName("operand")
		case "generic_type":
			fn = fn.ChildByFieldName("type")
		default:
			fn = fn.NamedChild(0)
		}
	}
	if fn == nil {
		return
	}
	switch fn.Type() {
	case "identifier":
		r.consume(fn)
		r.add(symtab.RefDirect, parser.GetNodeText(fn, x.src), fn)
	case "selector_expression":
		r.consume(fn)
		field := parser.FieldText(fn, "field", x.src)
		operand := fn.ChildByFieldName("operand")
		if operand != nil && operand.Type() == "identifier" {
			name := parser.GetNodeText(operand, x.src)
			if importPath, ok := x.imports[name]; ok {
				r.consume(operand)
				if !isStdImport(importPath) {
					r.add(symtab.RefDirect, name+symtab.PathSep+field, fn)
				}
				return
			}
			r.consume(operand)
			if _, local := r.types[name]; !local {
				r.value(name, operand)
			}
		}
		r.dispatch(field, parser.GetNodeText(operand, x.src), fn)
	}
}

// shortVar records `v := T{...}`, `v := &T{...}` and `v := NewT(...)`.
func (x *goExtractor) shortVar(n *sitter.Node, r *refs) {
	left := parser.NamedChildren(n.ChildByFieldName("left"))
	right := parser.NamedChildren(n.ChildByFieldName("right"))
	for i, l := range left {
		if l.Type() != "identifier" || i >= len(right) {
			continue
		}
		name := parser.GetNodeText(l, x.src)
		v := right[i]
		if v.Type() == "unary_expression" {
			v = v.ChildByFieldName("operand")
		}
		if v == nil {
			continue
		}
		switch v.Type() {
		case "composite_literal":
			if t := typeName(parser.FieldText(v, "type", x.src)); isGoTypeName(t) {
				r.types[name] = binding{typeName: t}
			}
		case "call_expression":
			callee := typeName(parser.FieldText(v, "function", x.src))
			if t, ok := strings.CutPrefix(callee, "New"); ok && isGoTypeName(t) {
				r.types[name] = binding{typeName: t}
			}
		default:
			delete(r.types, name)
		}
	}
}

// goValuePosition reports whether an identifier is read as a value.
func goValuePosition(n *sitter.Node) bool {
	p := n.Parent()
	if p == nil {
		return false
	}
	switch p.Type() {
	case "argument_list", "literal_element", "binary_expression", "unary_expression",
		"parenthesized_expression", "send_statement", "return_statement", "index_expression",
		"slice_expression", "type_conversion_expression", "go_statement", "defer_statement":
		return true
	case "expression_list":
		gp := p.Parent()
		if gp == nil {
			return false
		}
		switch gp.Type() {
		case "return_statement":
			return true
		case "assignment_statement", "short_var_declaration", "var_spec", "const_spec", "range_clause":
			return isField(gp, "right", p) || isField(gp, "value", p)
		}
	case "keyed_element":
		last := p.NamedChild(int(p.NamedChildCount()) - 1)
		return last != nil && keyOf(last) == keyOf(n)
	case "var_spec", "const_spec":
		return isField(p, "value", n)
	}
	return false
}
