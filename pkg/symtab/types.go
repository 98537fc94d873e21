package symtab

import "fmt"

// Kind classifies a declared unit.
type Kind string

const (
	KindFunction          Kind = "function"
	KindMethod            Kind = "method"
	KindStaticInitializer Kind = "static-initializer"
	KindType              Kind = "type"
	KindConstant          Kind = "constant"
)

// String returns the string representation.
func (k Kind) String() string {
	return string(k)
}

// Callable reports whether symbols of this kind have bodies that can call others.
func (k Kind) Callable() bool {
	return k == KindFunction || k == KindMethod || k == KindStaticInitializer
}

// Visibility is the declared visibility of a symbol.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
	VisibilityModule  Visibility = "module" // crate/package local
)

// String returns the string representation.
func (v Visibility) String() string {
	return string(v)
}

// IsPublic reports whether removing the symbol changes an external contract.
func (v Visibility) IsPublic() bool {
	return v == VisibilityPublic
}

// RefKind describes how a call site references its target.
type RefKind string

const (
	// RefDirect is a call or reference by name.
	RefDirect RefKind = "direct"
	// RefDispatch is a method call through a capability set (interface/trait).
	RefDispatch RefKind = "dispatch"
	// RefValue is a function taken as a value (closure, function pointer).
	RefValue RefKind = "value"
	// RefType is a use of a type by name (literal, annotation, receiver).
	RefType RefKind = "type"
	// RefMacro is a call site synthesized by a macro expansion.
	RefMacro RefKind = "macro"
)

// String returns the string representation.
func (r RefKind) String() string {
	return string(r)
}

// Attribute values set by front-ends.
const (
	// AttrFFIExport marks symbols callable from foreign code (no_mangle, //export).
	AttrFFIExport = "ffi-export"
	// AttrAsync marks async functions.
	AttrAsync = "async"
	// AttrGeneric marks generic declarations. All instantiations share the symbol.
	AttrGeneric = "generic"
)

// Location is where a symbol or call site was declared.
type Location struct {
	File    string `json:"file" yaml:"file" toon:"file"`
	Line    uint32 `json:"line" yaml:"line" toon:"line"`
	EndLine uint32 `json:"end_line,omitempty" yaml:"end_line,omitempty" toon:"end_line,omitempty"`
}

// String formats the location as file:line.
func (l Location) String() string {
	if l.File == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// CallSite is an unresolved outgoing reference recorded by a front-end.
type CallSite struct {
	Source     string   `json:"source" yaml:"source"`
	Ref        RefKind  `json:"ref" yaml:"ref"`
	Name       string   `json:"name" yaml:"name"`
	Capability string   `json:"capability,omitempty" yaml:"capability,omitempty"`
	Receiver   string   `json:"receiver,omitempty" yaml:"receiver,omitempty"`
	Location   Location `json:"location,omitempty" yaml:"location,omitempty"`
}

// Symbol is a declared unit: function, method, static initializer, type or constant.
type Symbol struct {
	ID             string     `json:"id" yaml:"id"`
	Name           string     `json:"name" yaml:"name"`
	Scope          string     `json:"scope,omitempty" yaml:"scope,omitempty"`
	Owner          string     `json:"owner,omitempty" yaml:"owner,omitempty"`
	Kind           Kind       `json:"kind" yaml:"kind"`
	Visibility     Visibility `json:"visibility" yaml:"visibility"`
	Language       string     `json:"language,omitempty" yaml:"language,omitempty"`
	Location       Location   `json:"location" yaml:"location"`
	TestOnly       bool       `json:"test_only,omitempty" yaml:"test_only,omitempty"`
	TestCase       bool       `json:"test_case,omitempty" yaml:"test_case,omitempty"`
	EntryCandidate bool       `json:"entry_candidate,omitempty" yaml:"entry_candidate,omitempty"`
	Attributes     []string   `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Calls          []CallSite `json:"calls,omitempty" yaml:"calls,omitempty"`
}

// HasAttribute reports whether the front-end attached attr to the symbol.
func (s *Symbol) HasAttribute(attr string) bool {
	for _, a := range s.Attributes {
		if a == attr {
			return true
		}
	}
	return false
}

// QualifiedName returns Owner::Name for methods and Name otherwise.
func (s *Symbol) QualifiedName() string {
	if s.Owner != "" {
		return s.Owner + "::" + s.Name
	}
	return s.Name
}

// Implementation records that Type implements Capability.
type Implementation struct {
	Type       string `json:"type" yaml:"type"`
	Capability string `json:"capability" yaml:"capability"`
}

// CapabilityDecl declares a capability set and the methods it requires.
type CapabilityDecl struct {
	Name    string   `json:"name" yaml:"name"`
	Methods []string `json:"methods,omitempty" yaml:"methods,omitempty"`
	// Structural capabilities are implemented by every type that declares
	// all of Methods (Go interfaces), without an explicit Implementation.
	Structural bool `json:"structural,omitempty" yaml:"structural,omitempty"`
}

// InitBinding ties a lazily initialised global to an initializer that must
// run whenever the global is touched.
type InitBinding struct {
	Global      string `json:"global" yaml:"global"`
	Initializer string `json:"initializer" yaml:"initializer"`
}

// Hints are language-specific classification facts supplied by a front-end.
type Hints struct {
	// EntryNames maps a language to its program-entry convention names.
	EntryNames      map[string][]string `json:"entry_names,omitempty" yaml:"entry_names,omitempty"`
	Implementations []Implementation    `json:"implementations,omitempty" yaml:"implementations,omitempty"`
	Initializers    []InitBinding       `json:"initializers,omitempty" yaml:"initializers,omitempty"`
	Capabilities    []CapabilityDecl    `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
}

// Merge appends other's hints into h.
func (h *Hints) Merge(other Hints) {
	if len(other.EntryNames) > 0 && h.EntryNames == nil {
		h.EntryNames = make(map[string][]string)
	}
	for lang, names := range other.EntryNames {
		for _, n := range names {
			if !containsString(h.EntryNames[lang], n) {
				h.EntryNames[lang] = append(h.EntryNames[lang], n)
			}
		}
	}
	h.Implementations = append(h.Implementations, other.Implementations...)
	h.Initializers = append(h.Initializers, other.Initializers...)
	h.Capabilities = append(h.Capabilities, other.Capabilities...)
}

// Unit is the output of a front-end for one source unit.
type Unit struct {
	Path      string     `json:"path" yaml:"path"`
	Language  string     `json:"language,omitempty" yaml:"language,omitempty"`
	Symbols   []Symbol   `json:"symbols" yaml:"symbols"`
	CallSites []CallSite `json:"call_sites,omitempty" yaml:"call_sites,omitempty"`
	Hints     Hints      `json:"hints,omitempty" yaml:"hints,omitempty"`
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
