// Package parser wraps tree-sitter for the languages reaper has front-ends for.
package parser

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/rust"
)

// Language identifies a source language.
type Language string

const (
	LangGo      Language = "go"
	LangRust    Language = "rust"
	LangUnknown Language = "unknown"
)

var extensions = map[string]Language{
	".go": LangGo,
	".rs": LangRust,
}

// String returns the string representation.
func (l Language) String() string {
	return string(l)
}

// Grammar returns the tree-sitter grammar for l.
func (l Language) Grammar() (*sitter.Language, error) {
	switch l {
	case LangGo:
		return golang.GetLanguage(), nil
	case LangRust:
		return rust.GetLanguage(), nil
	default:
		return nil, fmt.Errorf("unsupported language: %s", l)
	}
}

// DetectLanguage determines the language from a file extension.
func DetectLanguage(path string) Language {
	if lang, ok := extensions[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return LangUnknown
}

// Parser wraps a tree-sitter parser. It is not safe for concurrent use;
// create one per worker.
type Parser struct {
	parser *sitter.Parser
	lang   Language
}

// ParseResult is a parsed file. Close releases the tree.
type ParseResult struct {
	Tree     *sitter.Tree
	Language Language
	Source   []byte
	Path     string
}

// Root returns the root node of the tree.
func (r *ParseResult) Root() *sitter.Node {
	return r.Tree.RootNode()
}

// Close releases the tree.
func (r *ParseResult) Close() {
	if r.Tree != nil {
		r.Tree.Close()
	}
}

// New creates a new parser instance.
func New() *Parser {
	return &Parser{parser: sitter.NewParser(), lang: LangUnknown}
}

// Parse parses source as lang. Syntax errors do not fail the parse; they
// appear as ERROR nodes in the tree.
func (p *Parser) Parse(ctx context.Context, source []byte, lang Language, path string) (*ParseResult, error) {
	if lang != p.lang {
		grammar, err := lang.Grammar()
		if err != nil {
			return nil, err
		}
		p.parser.SetLanguage(grammar)
		p.lang = lang
	}

	tree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &ParseResult{Tree: tree, Language: lang, Source: source, Path: path}, nil
}

// Close releases parser resources.
func (p *Parser) Close() {
	p.parser.Close()
}

// TypedNodeVisitor visits a node with its type already read, which saves a
// cgo call per check. Returning false skips the node's children.
type TypedNodeVisitor func(node *sitter.Node, nodeType string, source []byte) bool

// WalkTyped traverses the tree below node in pre-order.
func WalkTyped(node *sitter.Node, source []byte, visitor TypedNodeVisitor) {
	if node == nil {
		return
	}
	if !visitor(node, node.Type(), source) {
		return
	}
	for i := range int(node.ChildCount()) {
		WalkTyped(node.Child(i), source, visitor)
	}
}

// FindNodesByType returns every node of nodeType below root, in source order.
func FindNodesByType(root *sitter.Node, source []byte, nodeType string) []*sitter.Node {
	var out []*sitter.Node
	WalkTyped(root, source, func(n *sitter.Node, t string, _ []byte) bool {
		if t == nodeType {
			out = append(out, n)
		}
		return true
	})
	return out
}

// NamedChildren returns the named children of node.
func NamedChildren(node *sitter.Node) []*sitter.Node {
	if node == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, node.NamedChildCount())
	for i := range int(node.NamedChildCount()) {
		out = append(out, node.NamedChild(i))
	}
	return out
}

// GetNodeText returns the source text of node, or "" when node is nil or
// its byte range is outside source.
func GetNodeText(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	start, end := node.StartByte(), node.EndByte()
	if start > end || end > uint32(len(source)) {
		return ""
	}
	return string(source[start:end])
}

// FieldText returns the text of the named field of node.
func FieldText(node *sitter.Node, field string, source []byte) string {
	if node == nil {
		return ""
	}
	return GetNodeText(node.ChildByFieldName(field), source)
}

// StartLine returns the 1-based first line of node.
func StartLine(node *sitter.Node) uint32 {
	return node.StartPoint().Row + 1
}

// EndLine returns the 1-based last line of node.
func EndLine(node *sitter.Node) uint32 {
	return node.EndPoint().Row + 1
}
