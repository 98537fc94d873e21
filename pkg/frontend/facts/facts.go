// Package facts loads pre-extracted symbol facts for languages without a
// built-in front-end. A facts file holds one unit as JSON or YAML and is
// validated against an embedded JSON Schema before it is decoded.
package facts

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/panbanda/reaper/pkg/symtab"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "https://github.com/panbanda/reaper/facts.schema.json"

// Suffixes recognised as facts files.
var suffixes = []string{".facts.json", ".facts.yaml", ".facts.yml"}

// SchemaError reports a facts document that does not match the schema.
type SchemaError struct {
	Path string
	Err  error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("invalid facts file %s: %v", e.Path, e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// Loader validates and decodes facts files.
type Loader struct {
	schema *jsonschema.Schema
}

// NewLoader compiles the embedded schema.
func NewLoader() (*Loader, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("decode facts schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("add facts schema: %w", err)
	}
	sch, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile facts schema: %w", err)
	}
	return &Loader{schema: sch}, nil
}

// IsFactsFile reports whether path names a facts file.
func IsFactsFile(path string) bool {
	return trimSuffix(path) != path
}

// Load reads a facts file from disk.
func (l *Loader) Load(path string) (symtab.Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return symtab.Unit{}, fmt.Errorf("read %s: %w", path, err)
	}
	return l.Decode(filepath.ToSlash(path), data)
}

// Decode validates data and converts it into a unit. YAML is accepted for
// .yaml and .yml names, JSON otherwise. A unit without a path takes the
// file name with the facts suffix removed.
func (l *Loader) Decode(path string, data []byte) (symtab.Unit, error) {
	raw, err := toJSON(path, data)
	if err != nil {
		return symtab.Unit{}, &SchemaError{Path: path, Err: err}
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return symtab.Unit{}, &SchemaError{Path: path, Err: err}
	}
	if err := l.schema.Validate(inst); err != nil {
		return symtab.Unit{}, &SchemaError{Path: path, Err: err}
	}

	var unit symtab.Unit
	if err := json.Unmarshal(raw, &unit); err != nil {
		return symtab.Unit{}, &SchemaError{Path: path, Err: err}
	}
	normalize(&unit, path)
	return unit, nil
}

func toJSON(path string, data []byte) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		if !json.Valid(data) {
			return nil, errors.New("malformed JSON")
		}
		return data, nil
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.New("empty document")
	}
	return json.Marshal(doc)
}

// normalize fills the defaults a hand-written facts file may omit.
func normalize(unit *symtab.Unit, path string) {
	if unit.Path == "" {
		unit.Path = trimSuffix(path)
	}
	for i := range unit.Symbols {
		sym := &unit.Symbols[i]
		if sym.Name == "" {
			sym.Name = lastSegment(sym.ID)
		}
		if sym.Visibility == "" {
			sym.Visibility = symtab.VisibilityPrivate
		}
		if sym.Language == "" {
			sym.Language = unit.Language
		}
		if sym.Location.File == "" {
			sym.Location.File = unit.Path
		}
		for j := range sym.Calls {
			if sym.Calls[j].Location.File == "" {
				sym.Calls[j].Location.File = sym.Location.File
			}
		}
	}
}

func trimSuffix(path string) string {
	lower := strings.ToLower(path)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s) {
			return path[:len(path)-len(s)]
		}
	}
	return path
}

func lastSegment(id string) string {
	if i := strings.LastIndex(id, symtab.PathSep); i >= 0 {
		return id[i+len(symtab.PathSep):]
	}
	return id
}
