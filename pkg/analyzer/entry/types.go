package entry

import "fmt"

// Mode selects which symbols count as externally callable.
type Mode string

const (
	// ModeBinary roots only program entry points.
	ModeBinary Mode = "binary"
	// ModeLibrary also roots every public symbol and entry candidate.
	ModeLibrary Mode = "library"
)

// String returns the string representation.
func (m Mode) String() string {
	return string(m)
}

// ParseMode parses a mode name. The empty string selects ModeBinary.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeBinary:
		return ModeBinary, nil
	case ModeLibrary:
		return ModeLibrary, nil
	default:
		return "", fmt.Errorf("unknown analysis mode %q (want %s or %s)", s, ModeBinary, ModeLibrary)
	}
}

// Reason records why a symbol is a root.
type Reason string

const (
	ReasonEntryName  Reason = "entry-name"
	ReasonConfigured Reason = "configured"
	ReasonPublicAPI  Reason = "public-api"
	ReasonCandidate  Reason = "entry-candidate"
	ReasonFFIExport  Reason = "ffi-export"
	ReasonTestCase   Reason = "test-case"
)

// String returns the string representation.
func (r Reason) String() string {
	return string(r)
}

// Conditional is a root that only applies once Global is reachable.
type Conditional struct {
	Global      string `json:"global" toon:"global"`
	Initializer string `json:"initializer" toon:"initializer"`
}

// RootSet is the classifier output consumed by the reachability engine.
type RootSet struct {
	// Roots are unconditional roots in symbol insertion order.
	Roots []string
	// Reasons maps each root to the first rule that selected it.
	Reasons map[string]Reason
	// Conditional roots in hint order.
	Conditional []Conditional
	// Excluded symbols are never entered by traversal.
	Excluded []string
	// TestOnly lists every test-only symbol; they are never production findings.
	TestOnly []string
	// TestRoots are test cases rooted in include-tests mode.
	TestRoots    []string
	Mode         Mode
	IncludeTests bool
}

// IsRoot reports whether id is an unconditional root.
func (r *RootSet) IsRoot(id string) bool {
	_, ok := r.Reasons[id]
	return ok
}

// Reason returns why id is a root.
func (r *RootSet) Reason(id string) (Reason, bool) {
	reason, ok := r.Reasons[id]
	return reason, ok
}

// NoEntryPointError is returned when classification yields no roots. It is
// fatal: without roots every symbol would be reported dead.
type NoEntryPointError struct {
	Mode    Mode
	Symbols int
}

func (e *NoEntryPointError) Error() string {
	return fmt.Sprintf("no entry points found among %d symbols in %s mode; configure entry names or use library mode", e.Symbols, e.Mode)
}
