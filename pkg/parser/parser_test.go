package parser

import (
	"context"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
)

func parse(t *testing.T, p *Parser, source string, lang Language) *ParseResult {
	t.Helper()
	res, err := p.Parse(context.Background(), []byte(source), lang, "test."+string(lang))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	t.Cleanup(res.Close)
	return res
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path string
		want Language
	}{
		{"main.go", LangGo},
		{"cmd/reaper/main_test.go", LangGo},
		{"src/lib.rs", LangRust},
		{"SRC/LIB.RS", LangRust},
		{"build.rs.bak", LangUnknown},
		{"plugin.facts.yaml", LangUnknown},
		{"Makefile", LangUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := DetectLanguage(tt.path); got != tt.want {
				t.Errorf("DetectLanguage(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestGrammar(t *testing.T) {
	for _, lang := range []Language{LangGo, LangRust} {
		g, err := lang.Grammar()
		if err != nil || g == nil {
			t.Errorf("%s.Grammar() = %v, %v", lang, g, err)
		}
	}
	if _, err := LangUnknown.Grammar(); err == nil {
		t.Error("LangUnknown.Grammar() should return an error")
	}
}

func TestParseSwitchesLanguage(t *testing.T) {
	p := New()
	defer p.Close()

	rs := parse(t, p, "fn main() {\n    run();\n}\n", LangRust)
	if got := rs.Root().Type(); got != "source_file" {
		t.Errorf("rust root = %q", got)
	}
	if p.lang != LangRust {
		t.Errorf("parser language = %v, want rust", p.lang)
	}

	goRes := parse(t, p, "package main\n\nfunc main() {}\n", LangGo)
	if len(FindNodesByType(goRes.Root(), goRes.Source, "function_declaration")) != 1 {
		t.Error("go source was not parsed with the go grammar")
	}

	rs2 := parse(t, p, "fn a() {}\nfn b() {}\n", LangRust)
	if n := len(FindNodesByType(rs2.Root(), rs2.Source, "function_item")); n != 2 {
		t.Errorf("function_item count = %d, want 2", n)
	}
}

func TestParseUnknownLanguage(t *testing.T) {
	p := New()
	defer p.Close()
	if _, err := p.Parse(context.Background(), []byte("x"), LangUnknown, "x.txt"); err == nil {
		t.Error("Parse() should fail for an unknown language")
	}
}

func TestParseKeepsSyntaxErrors(t *testing.T) {
	p := New()
	defer p.Close()
	res := parse(t, p, "fn broken( {\nfn ok() {}\n", LangRust)
	if !res.Root().HasError() {
		t.Error("tree should contain an error node")
	}
}

func TestWalkTyped(t *testing.T) {
	p := New()
	defer p.Close()
	res := parse(t, p, "package main\n\nfunc main() {\n\tx := 1\n\t_ = x\n}\n", LangGo)

	found := make(map[string]bool)
	WalkTyped(res.Root(), res.Source, func(_ *sitter.Node, nodeType string, _ []byte) bool {
		found[nodeType] = true
		return true
	})
	for _, want := range []string{"source_file", "package_clause", "function_declaration", "short_var_declaration"} {
		if !found[want] {
			t.Errorf("node type %q not visited", want)
		}
	}

	var inside bool
	WalkTyped(res.Root(), res.Source, func(_ *sitter.Node, nodeType string, _ []byte) bool {
		if nodeType == "short_var_declaration" {
			inside = true
		}
		return nodeType != "function_declaration"
	})
	if inside {
		t.Error("WalkTyped() descended into a skipped node")
	}

	WalkTyped(nil, nil, func(*sitter.Node, string, []byte) bool {
		t.Error("visitor called for nil node")
		return true
	})
}

func TestNodeHelpers(t *testing.T) {
	p := New()
	defer p.Close()
	res := parse(t, p, "fn one() {}\nfn two() {}\nfn three() {}\n", LangRust)

	nodes := FindNodesByType(res.Root(), res.Source, "function_item")
	if len(nodes) != 3 {
		t.Fatalf("found %d function_item nodes, want 3", len(nodes))
	}
	if got := FieldText(nodes[1], "name", res.Source); got != "two" {
		t.Errorf("FieldText(name) = %q, want two", got)
	}
	if got := GetNodeText(nodes[0], res.Source); got != "fn one() {}" {
		t.Errorf("GetNodeText() = %q", got)
	}
	if StartLine(nodes[2]) != 3 || EndLine(nodes[2]) != 3 {
		t.Errorf("lines = %d-%d, want 3-3", StartLine(nodes[2]), EndLine(nodes[2]))
	}
	if n := len(NamedChildren(res.Root())); n != 3 {
		t.Errorf("NamedChildren() = %d, want 3", n)
	}
	if GetNodeText(nil, res.Source) != "" || FieldText(nil, "name", res.Source) != "" || NamedChildren(nil) != nil {
		t.Error("nil node helpers should return zero values")
	}
}
