package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/panbanda/reaper/pkg/analyzer/deadcode"
	"github.com/panbanda/reaper/pkg/callgraph"
)

// DeadCode renders a dead code report. JSON and TOON output carry the full
// report; text and markdown show the tables a reviewer acts on.
type DeadCode struct {
	Report *deadcode.Report
	// Verbose adds resolution diagnostics.
	Verbose bool
	// Filter narrows the findings shown. The summary is never filtered.
	Filter deadcode.Filter
}

// NewDeadCode wraps a report for rendering.
func NewDeadCode(rep *deadcode.Report, verbose bool) *DeadCode {
	return &DeadCode{Report: rep, Verbose: verbose}
}

// WithFilter sets the finding filter and returns d.
func (d *DeadCode) WithFilter(f deadcode.Filter) *DeadCode {
	d.Filter = f
	return d
}

func (d *DeadCode) RenderData() any {
	return d.Report.Apply(d.Filter)
}

func (d *DeadCode) RenderText(w io.Writer, colored bool) error {
	return d.view(colored).RenderText(w, colored)
}

func (d *DeadCode) RenderMarkdown(w io.Writer) error {
	return d.view(false).RenderMarkdown(w)
}

func (d *DeadCode) view(colored bool) *Report {
	rep := d.Report.Apply(d.Filter)
	s := rep.Summary
	view := &Report{Title: "Dead Code Analysis"}

	summary := []string{
		fmt.Sprintf("Symbols: %d analyzed, %d reachable, %d dead (%.1f%%)",
			s.AnalyzedSymbols, s.ReachableSymbols, s.DeadSymbols, s.DeadPercentage),
		fmt.Sprintf("Roots: %d, promoted initializers: %d, passes: %d", s.Roots, s.PromotedRoots, s.Passes),
		fmt.Sprintf("Dead groups: %d (%d unreachable roots, %d transitively dead, largest %d)",
			s.Groups, s.UnreachableRoots, s.TransitivelyDead, s.LargestGroup),
		fmt.Sprintf("Unresolved references: %d, ambiguous: %d, approximate dispatch edges: %d",
			s.UnresolvedRefs, s.AmbiguousRefs, s.ApproximateEdges),
	}
	var kinds []string
	for _, k := range callgraph.Resolutions {
		kinds = append(kinds, fmt.Sprintf("%s %d", k, s.EdgesByKind[k.String()]))
	}
	summary = append(summary, "Edges: "+strings.Join(kinds, ", "))
	if s.ExcludedTests > 0 {
		summary = append(summary, fmt.Sprintf("Test-only symbols excluded: %d", s.ExcludedTests))
	}
	if rep.Filter != nil {
		summary = append(summary, fmt.Sprintf("Showing %d of %d dead symbols (%s)", rep.Shown, s.DeadSymbols, describeFilter(*rep.Filter)))
	}
	view.Sections = append(view.Sections, &Section{Title: "Summary", Content: strings.Join(summary, "\n")})

	if s.DeadSymbols == 0 {
		view.Sections = append(view.Sections, &Section{Content: "No dead code found."})
	}
	if len(rep.Private) > 0 {
		view.Sections = append(view.Sections, findingTable("Dead Code", rep.Private, colored))
	}
	if len(rep.Public) > 0 {
		view.Sections = append(view.Sections, findingTable("Dead Public API", rep.Public, colored))
	}
	if len(rep.LiveProvisional) > 0 {
		rows := make([][]string, 0, len(rep.LiveProvisional))
		for _, lp := range rep.LiveProvisional {
			rows = append(rows, []string{lp.ID, fmt.Sprintf("%s:%d", lp.File, lp.Line)})
		}
		view.Sections = append(view.Sections,
			NewTable("Live Only Through Approximate Dispatch", []string{"Symbol", "Location"}, rows, nil))
	}
	if len(rep.UnusedTestHelpers) > 0 {
		rows := make([][]string, 0, len(rep.UnusedTestHelpers))
		for _, h := range rep.UnusedTestHelpers {
			rows = append(rows, []string{h.ID, fmt.Sprintf("%s:%d", h.File, h.Line)})
		}
		view.Sections = append(view.Sections,
			NewTable("Unused Test Helpers", []string{"Symbol", "Location"}, rows, nil))
	}
	if d.Verbose && len(rep.Diagnostics) > 0 {
		rows := make([][]string, 0, len(rep.Diagnostics))
		for _, diag := range rep.Diagnostics {
			rows = append(rows, []string{string(diag.Kind), diag.Source, diag.Name, diag.Location.String(), diag.Message})
		}
		view.Sections = append(view.Sections,
			NewTable("Diagnostics", []string{"Kind", "Source", "Reference", "Location", "Message"}, rows, nil))
	}
	if s.ApproximateEdges > 0 {
		view.Sections = append(view.Sections, &Section{Title: "Dispatch Policy", Content: rep.Policy})
	}
	return view
}

func findingTable(title string, findings []deadcode.Finding, colored bool) *Table {
	rows := make([][]string, 0, len(findings))
	for _, f := range findings {
		id := f.ID
		if f.Depth > 0 {
			id = strings.Repeat("  ", f.Depth-1) + "└ " + id
		}
		if f.Provisional {
			id += " *"
		}
		level := string(f.ConfidenceLevel)
		if colored {
			level = SeverityColor(level, level)
		}
		rows = append(rows, []string{
			id,
			string(f.Kind),
			fmt.Sprintf("%s:%d", f.File, f.Line),
			string(f.Classification),
			fmt.Sprintf("%.2f %s", f.Confidence, level),
			f.Reason,
		})
	}
	return NewTable(title, []string{"Symbol", "Kind", "Location", "Class", "Confidence", "Reason"}, rows, nil)
}

func describeFilter(f deadcode.Filter) string {
	var parts []string
	if f.Kind != deadcode.FindingsAll {
		parts = append(parts, "type "+string(f.Kind))
	}
	if f.MinConfidence > 0 {
		parts = append(parts, fmt.Sprintf("confidence >= %.2f", f.MinConfidence))
	}
	if f.Sort == deadcode.SortConfidence {
		parts = append(parts, "by confidence")
	}
	if f.Limit > 0 {
		parts = append(parts, fmt.Sprintf("limit %d", f.Limit))
	}
	return strings.Join(parts, ", ")
}
