// Package deadcode turns a reachability result into a dead code report:
// unreachable symbols grouped into chains, each with a confidence score.
package deadcode

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/panbanda/reaper/pkg/analyzer/edges"
	"github.com/panbanda/reaper/pkg/analyzer/entry"
	"github.com/panbanda/reaper/pkg/analyzer/reachability"
	"github.com/panbanda/reaper/pkg/callgraph"
	"github.com/panbanda/reaper/pkg/symtab"
)

// Input bundles the results of the earlier pipeline stages.
type Input struct {
	Graph        *callgraph.Graph
	Roots        *entry.RootSet
	Reachability *reachability.Result
	// Edges is optional; it contributes diagnostics and resolution counts.
	Edges *edges.Result
	Hints symtab.Hints
}

// Reporter builds dead code reports.
type Reporter struct {
	thresholds ConfidenceThresholds
	logger     *slog.Logger
}

// Option is a functional option for configuring Reporter.
type Option func(*Reporter)

// WithThresholds sets the confidence level thresholds. Values outside (0, 1]
// keep the default.
func WithThresholds(t ConfidenceThresholds) Option {
	return func(r *Reporter) {
		if t.HighThreshold > 0 && t.HighThreshold <= 1 {
			r.thresholds.HighThreshold = t.HighThreshold
		}
		if t.MediumThreshold > 0 && t.MediumThreshold <= 1 {
			r.thresholds.MediumThreshold = t.MediumThreshold
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reporter) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a new dead code reporter.
func New(opts ...Option) *Reporter {
	r := &Reporter{
		thresholds: DefaultConfidenceThresholds(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Report classifies every analyzed symbol outside the reachable set. Test-only
// symbols are never findings.
func (r *Reporter) Report(in Input) (*Report, error) {
	if in.Graph == nil || in.Roots == nil || in.Reachability == nil {
		return nil, errors.New("dead code report: graph, roots and reachability result are required")
	}
	g := in.Graph
	table := g.Table()
	res := in.Reachability
	n := g.NumNodes()

	report := &Report{Summary: NewSummary(), Policy: PolicyNotice}
	s := &report.Summary
	s.TotalSymbols = n

	testOnly := make([]bool, n)
	for _, id := range in.Roots.TestOnly {
		if i, ok := table.Index(id); ok {
			testOnly[i] = true
		}
	}

	dead := make([]bool, n)
	var deadNodes []int
	for i := 0; i < n; i++ {
		sym := table.At(i)
		if testOnly[i] {
			if in.Roots.IncludeTests && !res.IsReachable(i) {
				report.UnusedTestHelpers = append(report.UnusedTestHelpers, TestHelper{
					ID: sym.ID, Name: sym.Name, File: sym.Location.File, Line: sym.Location.Line,
				})
			}
			continue
		}
		s.AnalyzedSymbols++
		if res.IsReachable(i) {
			s.ReachableSymbols++
			if res.IsProvisional(i) {
				report.LiveProvisional = append(report.LiveProvisional, LiveProvisional{
					ID: sym.ID, Name: sym.Name, File: sym.Location.File, Line: sym.Location.Line,
				})
			}
			continue
		}
		dead[i] = true
		deadNodes = append(deadNodes, i)
	}

	caps := edges.NewCapabilityIndex(in.Hints.Implementations)
	for _, grp := range r.group(g, dead, deadNodes) {
		group := Group{Root: table.At(grp.nominal).ID}
		if len(grp.members) > 1 {
			for _, m := range grp.members {
				group.Cycle = append(group.Cycle, table.At(m).ID)
			}
		}
		for _, m := range grp.order {
			f := r.finding(g, dead, caps, grp, m, group.Root)
			s.AddFinding(&f)
			group.Findings = append(group.Findings, f)
			if f.IsPublic() {
				report.Public = append(report.Public, f)
			} else {
				report.Private = append(report.Private, f)
			}
		}
		report.Groups = append(report.Groups, group)
		s.LargestGroup = max(s.LargestGroup, group.Size())
	}

	s.Roots = len(in.Roots.Roots)
	s.PromotedRoots = len(res.Promoted)
	s.Passes = res.Passes
	s.Groups = len(report.Groups)
	s.ProvisionalLive = len(report.LiveProvisional)
	s.ExcludedTests = len(in.Roots.Excluded)
	s.UnusedTestHelpers = len(report.UnusedTestHelpers)
	counts := g.CountByKind()
	for _, kind := range callgraph.Resolutions {
		s.EdgesByKind[kind.String()] = counts[kind]
	}
	s.ApproximateEdges = counts[callgraph.ResolutionDispatchApproximate]
	if in.Edges != nil {
		s.UnresolvedRefs = in.Edges.Unresolved
		s.AmbiguousRefs = in.Edges.Ambiguous
		report.Diagnostics = in.Edges.Diagnostics
	}
	s.CalculatePercentage()

	r.logger.Debug("dead code report built",
		"analyzed", s.AnalyzedSymbols,
		"dead", s.DeadSymbols,
		"groups", s.Groups,
		"provisional_live", s.ProvisionalLive)
	return report, nil
}

// chain is a root component of the dead subgraph and the dead symbols it
// claims, in breadth-first order.
type chain struct {
	nominal int
	members []int
	order   []int
	depth   map[int]int
	via     map[int]int
}

// group collapses cycles among dead symbols and assigns every dead symbol to
// the first root component (by nominal root insertion order) reaching it.
func (r *Reporter) group(g *callgraph.Graph, dead []bool, deadNodes []int) []*chain {
	if len(deadNodes) == 0 {
		return nil
	}
	table := g.Table()

	dg := simple.NewDirectedGraph()
	for _, v := range deadNodes {
		dg.AddNode(simple.Node(v))
	}
	for _, v := range deadNodes {
		for _, ei := range g.Outgoing(v) {
			_, to := g.Endpoints(ei)
			if to == v || !dead[to] {
				continue
			}
			dg.SetEdge(simple.Edge{F: simple.Node(v), T: simple.Node(to)})
		}
	}

	sccs := topo.TarjanSCC(dg)
	comp := make(map[int]int, len(deadNodes))
	for ci, c := range sccs {
		for _, node := range c {
			comp[int(node.ID())] = ci
		}
	}
	incoming := make([]bool, len(sccs))
	for _, v := range deadNodes {
		for _, ei := range g.Incoming(v) {
			from, _ := g.Endpoints(ei)
			if dead[from] && comp[from] != comp[v] {
				incoming[comp[v]] = true
			}
		}
	}

	var chains []*chain
	for ci, c := range sccs {
		if incoming[ci] {
			continue
		}
		members := make([]int, len(c))
		for i, node := range c {
			members[i] = int(node.ID())
		}
		sort.Ints(members)
		nominal := members[0]
		for _, m := range members[1:] {
			if table.At(m).ID < table.At(nominal).ID {
				nominal = m
			}
		}
		chains = append(chains, &chain{nominal: nominal, members: members})
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i].nominal < chains[j].nominal })

	claimed := make([]bool, len(dead))
	for _, ch := range chains {
		ch.depth = map[int]int{ch.nominal: 0}
		ch.via = map[int]int{ch.nominal: -1}
		claimed[ch.nominal] = true
		queue := []int{ch.nominal}
		for head := 0; head < len(queue); head++ {
			cur := queue[head]
			ch.order = append(ch.order, cur)
			for _, ei := range g.Outgoing(cur) {
				_, to := g.Endpoints(ei)
				if !dead[to] || claimed[to] {
					continue
				}
				claimed[to] = true
				ch.depth[to] = ch.depth[cur] + 1
				ch.via[to] = cur
				queue = append(queue, to)
			}
		}
	}
	return chains
}

// finding builds the report entry for a dead node claimed by ch.
func (r *Reporter) finding(g *callgraph.Graph, dead []bool, caps *edges.CapabilityIndex, ch *chain, node int, groupRoot string) Finding {
	table := g.Table()
	sym := table.At(node)
	f := Finding{
		ID:         sym.ID,
		Name:       sym.Name,
		Kind:       sym.Kind,
		File:       sym.Location.File,
		Line:       sym.Location.Line,
		EndLine:    sym.Location.EndLine,
		Visibility: string(sym.Visibility),
		GroupRoot:  groupRoot,
		Depth:      ch.depth[node],
	}
	if f.Visibility == "" {
		f.Visibility = string(symtab.VisibilityPrivate)
	}
	if via := ch.via[node]; via >= 0 {
		f.Via = table.At(via).ID
	}

	for _, ei := range g.Incoming(node) {
		from, _ := g.Endpoints(ei)
		if dead[from] && g.Edge(ei).Kind.Approximate() {
			f.Provisional = true
			break
		}
	}

	switch {
	case node == ch.nominal && len(ch.members) > 1:
		f.Classification = UnreachableRoot
		f.Reason = fmt.Sprintf("unreachable cycle of %d symbols with no caller in reachable code", len(ch.members))
	case node == ch.nominal:
		f.Classification = UnreachableRoot
		f.Reason = "no caller in reachable code"
	default:
		f.Classification = TransitivelyDead
		f.Reason = "only referenced from dead code via " + f.Via
	}
	if f.Provisional {
		f.Reason += "; an incoming edge is approximate dispatch"
	}

	f.Confidence = r.confidence(sym, &f, caps)
	f.ConfidenceLevel = r.thresholds.Level(f.Confidence)
	f.Fingerprint = fingerprint(sym)
	return f
}

// confidence scores how certain we are that a dead symbol is removable.
func (r *Reporter) confidence(sym *symtab.Symbol, f *Finding, caps *edges.CapabilityIndex) float64 {
	confidence := 0.95

	// Public symbols may be used by code outside the analyzed set
	if sym.Visibility.IsPublic() {
		confidence -= 0.25
	} else if sym.Visibility == symtab.VisibilityPrivate {
		confidence += 0.03
	}

	if f.Provisional {
		confidence -= 0.30
	}

	// Methods of capability sets may be invoked by external dispatch (Display, Drop, io.Writer).
	if sym.Owner != "" && (len(caps.Capabilities(sym.Owner)) > 0 || len(caps.Implementers(sym.Owner)) > 0) {
		confidence -= 0.20
	}

	if isConstructor(sym.Name) {
		confidence -= 0.15
	}
	if isHandler(sym.Name) {
		confidence -= 0.15
	}

	// Every caller is itself dead
	if f.Classification == TransitivelyDead {
		confidence += 0.05
	}

	if confidence > 1.0 {
		confidence = 1.0
	}
	if confidence < 0.0 {
		confidence = 0.0
	}
	return confidence
}

// isConstructor checks if a name follows constructor conventions.
func isConstructor(name string) bool {
	if name == "new" || name == "default" {
		return true
	}
	for _, prefix := range []string{"New", "new_", "Create", "create_", "Make", "make_", "with_"} {
		if strings.HasPrefix(name, prefix) && len(name) > len(prefix) {
			return true
		}
	}
	return false
}

// isHandler checks if a name matches handler and callback patterns that are
// often registered dynamically.
func isHandler(name string) bool {
	for _, suffix := range []string{"Handler", "_handler", "Callback", "_callback", "Listener", "_listener", "Observer"} {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	for _, prefix := range []string{"Handle", "handle_", "On", "on_"} {
		if strings.HasPrefix(name, prefix) && len(name) > len(prefix) {
			rest := name[len(prefix):]
			if prefix == "Handle" || prefix == "On" {
				// HandleRequest, OnClick but not Online
				if rest[0] < 'A' || rest[0] > 'Z' {
					continue
				}
			}
			return true
		}
	}
	return name == "ServeHTTP"
}

// fingerprint is a stable identifier for a finding across runs.
func fingerprint(sym *symtab.Symbol) string {
	data := sym.ID + ":" + sym.Location.File + ":" + strconv.FormatUint(uint64(sym.Location.Line), 10) + ":" + string(sym.Kind)
	hash := blake3.Sum256([]byte(data))
	return hex.EncodeToString(hash[:8])
}
