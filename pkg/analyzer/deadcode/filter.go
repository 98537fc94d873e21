package deadcode

import (
	"fmt"
	"sort"

	"github.com/panbanda/reaper/pkg/symtab"
)

// FindingKind selects findings by the kind of symbol.
type FindingKind string

const (
	// FindingsAll keeps every finding.
	FindingsAll FindingKind = ""
	// FindingsFunctions keeps functions and methods.
	FindingsFunctions FindingKind = "functions"
	// FindingsTypes keeps type declarations.
	FindingsTypes FindingKind = "types"
)

// ParseFindingKind parses a --type value. Empty and "all" select everything.
func ParseFindingKind(s string) (FindingKind, error) {
	switch s {
	case "", "all":
		return FindingsAll, nil
	case "functions", "function", "fn":
		return FindingsFunctions, nil
	case "types", "type":
		return FindingsTypes, nil
	default:
		return "", fmt.Errorf("unknown finding type %q (want functions or types)", s)
	}
}

// Matches reports whether a symbol kind belongs to the selection.
func (k FindingKind) Matches(kind symtab.Kind) bool {
	switch k {
	case FindingsFunctions:
		return kind == symtab.KindFunction || kind == symtab.KindMethod
	case FindingsTypes:
		return kind == symtab.KindType
	default:
		return true
	}
}

// SortOrder orders the findings of a filtered report.
type SortOrder string

const (
	// SortGroup keeps chain order: each root followed by its dependents.
	SortGroup SortOrder = "group"
	// SortConfidence puts the most certain findings first.
	SortConfidence SortOrder = "confidence"
)

// ParseSortOrder parses a --sort value.
func ParseSortOrder(s string) (SortOrder, error) {
	switch s {
	case "", "group":
		return SortGroup, nil
	case "confidence":
		return SortConfidence, nil
	default:
		return "", fmt.Errorf("unknown sort order %q (want group or confidence)", s)
	}
}

// Filter narrows the findings shown from a report. The zero value keeps
// everything in group order.
type Filter struct {
	Kind          FindingKind `json:"kind,omitempty" toon:"kind,omitempty"`
	MinConfidence float64     `json:"min_confidence,omitempty" toon:"min_confidence,omitempty"`
	Sort          SortOrder   `json:"sort,omitempty" toon:"sort,omitempty"`
	// Limit caps the number of findings after sorting. Zero means no cap.
	Limit int `json:"limit,omitempty" toon:"limit,omitempty"`
}

// IsZero reports whether the filter keeps the report unchanged.
func (f Filter) IsZero() bool {
	return f.Kind == FindingsAll && f.MinConfidence <= 0 && f.Limit <= 0 &&
		(f.Sort == "" || f.Sort == SortGroup)
}

// Validate checks the ranges of the numeric fields.
func (f Filter) Validate() error {
	if f.MinConfidence < 0 || f.MinConfidence > 1 {
		return fmt.Errorf("min confidence %.2f out of range [0, 1]", f.MinConfidence)
	}
	if f.Limit < 0 {
		return fmt.Errorf("limit %d must not be negative", f.Limit)
	}
	return nil
}

func (f Filter) keep(fd *Finding) bool {
	return f.Kind.Matches(fd.Kind) && fd.Confidence >= f.MinConfidence
}

// Apply returns a report holding only the findings the filter keeps. Groups
// that lose every finding are dropped. The summary still describes the whole
// analysis; Shown counts what survived.
func (r *Report) Apply(f Filter) *Report {
	if f.IsZero() {
		return r
	}

	var kept []Finding
	for _, g := range r.Groups {
		for _, fd := range g.Findings {
			if f.keep(&fd) {
				kept = append(kept, fd)
			}
		}
	}
	if f.Sort == SortConfidence {
		sort.SliceStable(kept, func(i, j int) bool {
			return kept[i].Confidence > kept[j].Confidence
		})
	}
	if f.Limit > 0 && len(kept) > f.Limit {
		kept = kept[:f.Limit]
	}

	ids := make(map[string]bool, len(kept))
	for _, fd := range kept {
		ids[fd.ID] = true
	}

	out := *r
	filter := f
	out.Filter = &filter
	out.Shown = len(kept)
	out.Groups = nil
	out.Private = nil
	out.Public = nil
	for _, g := range r.Groups {
		var findings []Finding
		for _, fd := range g.Findings {
			if ids[fd.ID] {
				findings = append(findings, fd)
			}
		}
		if len(findings) > 0 {
			out.Groups = append(out.Groups, Group{Root: g.Root, Cycle: g.Cycle, Findings: findings})
		}
	}
	for _, fd := range kept {
		if fd.IsPublic() {
			out.Public = append(out.Public, fd)
		} else {
			out.Private = append(out.Private, fd)
		}
	}
	return &out
}
