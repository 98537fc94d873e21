package deadcode

import (
	"github.com/panbanda/reaper/pkg/analyzer/edges"
	"github.com/panbanda/reaper/pkg/symtab"
)

// ConfidenceLevel indicates how certain we are about dead code detection.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "High"
	ConfidenceMedium ConfidenceLevel = "Medium"
	ConfidenceLow    ConfidenceLevel = "Low"
)

// String returns the string representation.
func (c ConfidenceLevel) String() string {
	return string(c)
}

// ConfidenceThresholds defines the thresholds for confidence level classification.
// - High (>=0.8): private symbols with no live caller
// - Medium (>=0.5): public symbols or methods that external code may dispatch to
// - Low (<0.5): provisional findings or names that suggest dynamic registration
type ConfidenceThresholds struct {
	HighThreshold   float64 `json:"high" toml:"high" koanf:"high"`
	MediumThreshold float64 `json:"medium" toml:"medium" koanf:"medium"`
}

// DefaultConfidenceThresholds returns the default confidence thresholds.
func DefaultConfidenceThresholds() ConfidenceThresholds {
	return ConfidenceThresholds{
		HighThreshold:   0.8,
		MediumThreshold: 0.5,
	}
}

// Level maps a confidence score to its level.
func (t ConfidenceThresholds) Level(confidence float64) ConfidenceLevel {
	switch {
	case confidence >= t.HighThreshold:
		return ConfidenceHigh
	case confidence >= t.MediumThreshold:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Classification distinguishes chain roots from their dependents.
type Classification string

const (
	// UnreachableRoot has no caller in live code nor in other dead chains.
	UnreachableRoot Classification = "unreachable-root"
	// TransitivelyDead is only referenced from other dead symbols.
	TransitivelyDead Classification = "transitively-dead"
)

// String returns the string representation.
func (c Classification) String() string {
	return string(c)
}

// Finding is one dead symbol.
type Finding struct {
	ID              string          `json:"id" toon:"id"`
	Name            string          `json:"name" toon:"name"`
	Kind            symtab.Kind     `json:"kind" toon:"kind"`
	File            string          `json:"file" toon:"file"`
	Line            uint32          `json:"line" toon:"line"`
	EndLine         uint32          `json:"end_line,omitempty" toon:"end_line,omitempty"`
	Visibility      string          `json:"visibility" toon:"visibility"`
	Classification  Classification  `json:"classification" toon:"classification"`
	GroupRoot       string          `json:"group_root" toon:"group_root"`
	Depth           int             `json:"depth" toon:"depth"`
	Via             string          `json:"via,omitempty" toon:"via,omitempty"`
	Provisional     bool            `json:"provisional,omitempty" toon:"provisional,omitempty"`
	Confidence      float64         `json:"confidence" toon:"confidence"`
	ConfidenceLevel ConfidenceLevel `json:"confidence_level" toon:"confidence_level"`
	Reason          string          `json:"reason" toon:"reason"`
	Fingerprint     string          `json:"fingerprint" toon:"fingerprint"`
}

// IsPublic reports whether the finding is part of an external contract.
func (f *Finding) IsPublic() bool {
	return symtab.Visibility(f.Visibility).IsPublic()
}

// Group is a chain of dead code: a root strongly connected component and
// every dead symbol first reached from it.
type Group struct {
	Root string `json:"root" toon:"root"`
	// Cycle lists the members of the root component when it has more than one.
	Cycle    []string  `json:"cycle,omitempty" toon:"cycle,omitempty"`
	Findings []Finding `json:"findings" toon:"findings"`
}

// Size returns the number of dead symbols in the group.
func (g *Group) Size() int {
	return len(g.Findings)
}

// LiveProvisional is a reachable symbol whose every path from a root crosses
// an approximate dispatch edge.
type LiveProvisional struct {
	ID   string `json:"id" toon:"id"`
	Name string `json:"name" toon:"name"`
	File string `json:"file" toon:"file"`
	Line uint32 `json:"line" toon:"line"`
}

// TestHelper is an unreachable test-only symbol.
type TestHelper struct {
	ID   string `json:"id" toon:"id"`
	Name string `json:"name" toon:"name"`
	File string `json:"file" toon:"file"`
	Line uint32 `json:"line" toon:"line"`
}

// Summary provides aggregate statistics.
type Summary struct {
	TotalSymbols      int            `json:"total_symbols" toon:"total_symbols"`
	AnalyzedSymbols   int            `json:"analyzed_symbols" toon:"analyzed_symbols"`
	ReachableSymbols  int            `json:"reachable_symbols" toon:"reachable_symbols"`
	DeadSymbols       int            `json:"dead_symbols" toon:"dead_symbols"`
	DeadPercentage    float64        `json:"dead_percentage" toon:"dead_percentage"`
	Roots             int            `json:"roots" toon:"roots"`
	PromotedRoots     int            `json:"promoted_roots" toon:"promoted_roots"`
	Passes            int            `json:"passes" toon:"passes"`
	Groups            int            `json:"groups" toon:"groups"`
	LargestGroup      int            `json:"largest_group" toon:"largest_group"`
	UnreachableRoots  int            `json:"unreachable_roots" toon:"unreachable_roots"`
	TransitivelyDead  int            `json:"transitively_dead" toon:"transitively_dead"`
	PrivateDead       int            `json:"private_dead" toon:"private_dead"`
	PublicDead        int            `json:"public_dead" toon:"public_dead"`
	ProvisionalDead   int            `json:"provisional_dead" toon:"provisional_dead"`
	ProvisionalLive   int            `json:"provisional_live" toon:"provisional_live"`
	UnresolvedRefs    int            `json:"unresolved_references" toon:"unresolved_references"`
	AmbiguousRefs     int            `json:"ambiguous_references" toon:"ambiguous_references"`
	ApproximateEdges  int            `json:"approximate_edges" toon:"approximate_edges"`
	EdgesByKind       map[string]int `json:"edges_by_kind" toon:"edges_by_kind"`
	ExcludedTests     int            `json:"excluded_test_symbols" toon:"excluded_test_symbols"`
	UnusedTestHelpers int            `json:"unused_test_helpers" toon:"unused_test_helpers"`
	ByFile            map[string]int `json:"by_file" toon:"by_file"`
	ByKind            map[string]int `json:"by_kind" toon:"by_kind"`
	ByConfidenceLevel map[string]int `json:"by_confidence_level" toon:"by_confidence_level"`
}

// NewSummary creates an initialized summary.
func NewSummary() Summary {
	return Summary{
		EdgesByKind:       make(map[string]int),
		ByFile:            make(map[string]int),
		ByKind:            make(map[string]int),
		ByConfidenceLevel: make(map[string]int),
	}
}

// AddFinding updates the summary with a dead symbol.
func (s *Summary) AddFinding(f *Finding) {
	s.DeadSymbols++
	s.ByFile[f.File]++
	s.ByKind[string(f.Kind)]++
	s.ByConfidenceLevel[string(f.ConfidenceLevel)]++
	if f.Classification == UnreachableRoot {
		s.UnreachableRoots++
	} else {
		s.TransitivelyDead++
	}
	if f.IsPublic() {
		s.PublicDead++
	} else {
		s.PrivateDead++
	}
	if f.Provisional {
		s.ProvisionalDead++
	}
}

// CalculatePercentage computes the dead share of analyzed symbols.
func (s *Summary) CalculatePercentage() {
	if s.AnalyzedSymbols > 0 {
		s.DeadPercentage = float64(s.DeadSymbols) / float64(s.AnalyzedSymbols) * 100
	}
}

// PolicyNotice states how ambiguous dispatch is treated.
const PolicyNotice = "Dynamic dispatch without a known receiver is over-approximated: every candidate " +
	"implementation is treated as reachable and marked provisional. Provisional findings and live " +
	"symbols deserve manual review before removal."

// Report is the output of the dead code reporter.
type Report struct {
	Groups []Group `json:"groups" toon:"groups"`
	// Private holds non-public findings in group order.
	Private []Finding `json:"private" toon:"private"`
	// Public holds findings whose removal changes an external contract.
	Public            []Finding          `json:"public" toon:"public"`
	LiveProvisional   []LiveProvisional  `json:"live_provisional,omitempty" toon:"live_provisional,omitempty"`
	UnusedTestHelpers []TestHelper       `json:"unused_test_helpers,omitempty" toon:"unused_test_helpers,omitempty"`
	Diagnostics       []edges.Diagnostic `json:"diagnostics,omitempty" toon:"diagnostics,omitempty"`
	Summary           Summary            `json:"summary" toon:"summary"`
	Policy            string             `json:"policy" toon:"policy"`
	// Filter is set on reports narrowed by Apply. Shown counts the findings
	// left in Private and Public.
	Filter *Filter `json:"filter,omitempty" toon:"filter,omitempty"`
	Shown  int     `json:"shown,omitempty" toon:"shown,omitempty"`
}

// Findings returns every finding in group order.
func (r *Report) Findings() []Finding {
	var out []Finding
	for _, g := range r.Groups {
		out = append(out, g.Findings...)
	}
	return out
}

// Lookup returns the finding for id.
func (r *Report) Lookup(id string) (Finding, bool) {
	for _, g := range r.Groups {
		for _, f := range g.Findings {
			if f.ID == id {
				return f, true
			}
		}
	}
	return Finding{}, false
}
