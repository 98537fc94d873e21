package callgraph

import (
	"fmt"

	"github.com/panbanda/reaper/pkg/symtab"
)

// Resolution records how an edge's target was determined.
type Resolution string

const (
	ResolutionDirect              Resolution = "direct"
	ResolutionDispatchExact       Resolution = "dispatch-exact"
	ResolutionDispatchApproximate Resolution = "dispatch-approximate"
	ResolutionClosureCapture      Resolution = "closure-capture"
	ResolutionMacroSynthesized    Resolution = "macro-synthesized"
)

// Resolutions lists every resolution kind in reporting order.
var Resolutions = []Resolution{
	ResolutionDirect,
	ResolutionDispatchExact,
	ResolutionDispatchApproximate,
	ResolutionClosureCapture,
	ResolutionMacroSynthesized,
}

// String returns the string representation.
func (r Resolution) String() string {
	return string(r)
}

// Approximate reports whether the edge is an over-approximation.
func (r Resolution) Approximate() bool {
	return r == ResolutionDispatchApproximate
}

// Edge is a resolved reference from one symbol to another.
type Edge struct {
	From string          `json:"from" toon:"from"`
	To   string          `json:"to" toon:"to"`
	Kind Resolution      `json:"kind" toon:"kind"`
	Site symtab.Location `json:"site,omitempty" toon:"site,omitempty"`
}

// GraphIntegrityError reports an edge or root that references a symbol absent
// from the table. It indicates a defect upstream of the engine and is fatal.
type GraphIntegrityError struct {
	Edge   *Edge
	Symbol string
}

func (e *GraphIntegrityError) Error() string {
	if e.Edge != nil {
		return fmt.Sprintf("graph integrity: edge %s -> %s (%s) references unknown symbol %q",
			e.Edge.From, e.Edge.To, e.Edge.Kind, e.Symbol)
	}
	return fmt.Sprintf("graph integrity: unknown symbol %q", e.Symbol)
}
