// Package treesitter extracts symbols and call sites from Rust and Go
// sources using tree-sitter grammars.
//
// Extraction is syntactic: receivers are resolved only when a local binding
// names its type, and calls through unknown receivers are recorded as
// dispatch sites for the edge builder to over-approximate.
package treesitter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/panbanda/reaper/pkg/parser"
	"github.com/panbanda/reaper/pkg/symtab"
)

// Frontend turns source files into symbol table units.
type Frontend struct {
	root string
}

// Option is a functional option for configuring Frontend.
type Option func(*Frontend)

// WithRoot makes unit paths, and therefore symbol identities, relative to root.
func WithRoot(root string) Option {
	return func(f *Frontend) {
		f.root = root
	}
}

// New creates a front-end.
func New(opts ...Option) *Frontend {
	f := &Frontend{}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Supports reports whether the front-end handles the file.
func (f *Frontend) Supports(path string) bool {
	return parser.DetectLanguage(path) != parser.LangUnknown
}

// ParseFile reads and extracts one file with the given parser.
func (f *Frontend) ParseFile(ctx context.Context, psr *parser.Parser, path string) (symtab.Unit, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return symtab.Unit{}, fmt.Errorf("read %s: %w", path, err)
	}
	return f.ParseSource(ctx, psr, f.RelPath(path), source)
}

// ParseSource extracts a unit from in-memory source. path is used verbatim
// as the unit path.
func (f *Frontend) ParseSource(ctx context.Context, psr *parser.Parser, path string, source []byte) (symtab.Unit, error) {
	lang := parser.DetectLanguage(path)
	if lang == parser.LangUnknown {
		return symtab.Unit{}, fmt.Errorf("unsupported language for file: %s", path)
	}
	res, err := psr.Parse(ctx, source, lang, path)
	if err != nil {
		return symtab.Unit{}, err
	}
	defer res.Close()
	return Extract(res)
}

// Extract builds a unit from a parse result.
func Extract(res *parser.ParseResult) (symtab.Unit, error) {
	switch res.Language {
	case parser.LangRust:
		return extractRust(res), nil
	case parser.LangGo:
		return extractGo(res), nil
	default:
		return symtab.Unit{}, fmt.Errorf("unsupported language: %s", res.Language)
	}
}

// RelPath returns path relative to the front-end root, with forward slashes.
func (f *Frontend) RelPath(path string) string {
	if f.root == "" {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(f.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
