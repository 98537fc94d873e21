package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/panbanda/reaper/internal/service/analysis"
)

// Explanation renders why one symbol is live or dead.
type Explanation struct {
	Exp *analysis.Explanation
}

// NewExplanation wraps an explanation for rendering.
func NewExplanation(exp *analysis.Explanation) *Explanation {
	return &Explanation{Exp: exp}
}

func (e *Explanation) RenderData() any {
	return e.Exp
}

func (e *Explanation) RenderText(w io.Writer, colored bool) error {
	return e.view(colored).RenderText(w, colored)
}

func (e *Explanation) RenderMarkdown(w io.Writer) error {
	return e.view(false).RenderMarkdown(w)
}

func (e *Explanation) view(colored bool) *Report {
	exp := e.Exp
	view := &Report{Title: exp.ID}

	status := string(exp.Status)
	if colored {
		status = SeverityColor(statusSeverity(exp.Status), status)
	}
	lines := []string{
		fmt.Sprintf("Kind: %s (%s)", exp.Kind, exp.Visibility),
		"Location: " + exp.Location,
		"Status: " + status,
	}
	if exp.RootReason != "" {
		lines = append(lines, "Root reason: "+exp.RootReason)
	}
	if f := exp.Finding; f != nil {
		lines = append(lines,
			fmt.Sprintf("Classification: %s in group %s (depth %d)", f.Classification, f.GroupRoot, f.Depth),
			fmt.Sprintf("Confidence: %.2f %s, %s", f.Confidence, f.ConfidenceLevel, f.Reason))
	}
	view.Sections = append(view.Sections, &Section{Title: "Symbol", Content: strings.Join(lines, "\n")})

	if len(exp.Path) > 0 {
		view.Sections = append(view.Sections, &Section{Title: "Path From Root", Content: strings.Join(exp.Path, "\n  -> ")})
	}
	if len(exp.Callers) > 0 {
		view.Sections = append(view.Sections, referenceTable("Callers", exp.Callers))
	}
	if len(exp.Callees) > 0 {
		view.Sections = append(view.Sections, referenceTable("Callees", exp.Callees))
	}
	if len(exp.Unresolved) > 0 {
		view.Sections = append(view.Sections, &Section{Title: "Unresolved References", Content: strings.Join(exp.Unresolved, "\n")})
	}
	return view
}

func referenceTable(title string, refs []analysis.Reference) *Table {
	rows := make([][]string, 0, len(refs))
	for _, r := range refs {
		rows = append(rows, []string{r.ID, r.Kind, r.Site})
	}
	return NewTable(title, []string{"Symbol", "Edge", "Site"}, rows, nil)
}

func statusSeverity(s analysis.Status) string {
	switch s {
	case analysis.StatusDead:
		return "high"
	case analysis.StatusProvisional, analysis.StatusTestOnly:
		return "medium"
	default:
		return "low"
	}
}
