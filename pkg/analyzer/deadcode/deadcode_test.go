package deadcode

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/reaper/pkg/analyzer/edges"
	"github.com/panbanda/reaper/pkg/analyzer/entry"
	"github.com/panbanda/reaper/pkg/analyzer/reachability"
	"github.com/panbanda/reaper/pkg/symtab"
)

func sym(id string, calls ...string) symtab.Symbol {
	s := symtab.Symbol{
		ID:         id,
		Kind:       symtab.KindFunction,
		Visibility: symtab.VisibilityPrivate,
		Location:   symtab.Location{File: "src/main.rs", Line: 1},
	}
	for _, c := range calls {
		s.Calls = append(s.Calls, symtab.CallSite{Ref: symtab.RefDirect, Name: c})
	}
	return s
}

func analyze(t *testing.T, opts []entry.Option, hints symtab.Hints, syms ...symtab.Symbol) *Report {
	t.Helper()
	ctx := context.Background()
	tab := symtab.New()
	for _, s := range syms {
		require.NoError(t, tab.Register(s))
	}
	built, err := edges.New(edges.WithWorkers(2)).Build(ctx, tab, hints)
	require.NoError(t, err)
	roots, err := entry.New(opts...).Classify(tab, hints)
	require.NoError(t, err)
	res, err := reachability.New().Run(ctx, built.Graph, roots)
	require.NoError(t, err)
	report, err := New().Report(Input{Graph: built.Graph, Roots: roots, Reachability: res, Edges: built, Hints: hints})
	require.NoError(t, err)
	return report
}

func findingIDs(fs []Finding) []string {
	var out []string
	for _, f := range fs {
		out = append(out, f.ID)
	}
	return out
}

func TestDeadLeaf(t *testing.T) {
	report := analyze(t, nil, symtab.Hints{},
		sym("main", "B"),
		sym("B", "C"),
		sym("C"),
		sym("D"),
	)

	require.Len(t, report.Groups, 1)
	g := report.Groups[0]
	assert.Equal(t, "D", g.Root)
	assert.Empty(t, g.Cycle)
	require.Len(t, g.Findings, 1)

	f := g.Findings[0]
	assert.Equal(t, UnreachableRoot, f.Classification)
	assert.Equal(t, 0, f.Depth)
	assert.Empty(t, f.Via)
	assert.False(t, f.Provisional)
	assert.Equal(t, ConfidenceHigh, f.ConfidenceLevel)
	assert.InDelta(t, 0.98, f.Confidence, 0.001)
	assert.Len(t, f.Fingerprint, 16)

	s := report.Summary
	assert.Equal(t, 4, s.TotalSymbols)
	assert.Equal(t, 3, s.ReachableSymbols)
	assert.Equal(t, 1, s.DeadSymbols)
	assert.Equal(t, 1, s.Roots)
	assert.Equal(t, 1, s.Passes)
	assert.Equal(t, 1, s.UnreachableRoots)
	assert.Equal(t, 2, s.EdgesByKind["direct"])
	assert.InDelta(t, 25.0, s.DeadPercentage, 0.001)
	assert.Equal(t, PolicyNotice, report.Policy)
}

func TestCycleIsOneGroup(t *testing.T) {
	report := analyze(t, nil, symtab.Hints{},
		sym("main"),
		sym("F", "E"),
		sym("E", "F", "G"),
		sym("G"),
	)

	require.Len(t, report.Groups, 1, "the cycle and its callee form one chain")
	g := report.Groups[0]
	assert.Equal(t, "E", g.Root, "lowest identity names the cycle")
	assert.Equal(t, []string{"F", "E"}, g.Cycle)
	assert.Equal(t, []string{"E", "F", "G"}, findingIDs(g.Findings))

	assert.Equal(t, UnreachableRoot, g.Findings[0].Classification)
	assert.Contains(t, g.Findings[0].Reason, "cycle of 2")
	for _, f := range g.Findings[1:] {
		assert.Equal(t, TransitivelyDead, f.Classification)
		assert.Equal(t, 1, f.Depth)
		assert.Equal(t, "E", f.Via)
		assert.Equal(t, "E", f.GroupRoot)
	}
	assert.Equal(t, 1, report.Summary.UnreachableRoots)
	assert.Equal(t, 2, report.Summary.TransitivelyDead)
}

func TestSharedDependentsGoToFirstGroup(t *testing.T) {
	report := analyze(t, nil, symtab.Hints{},
		sym("main"),
		sym("X", "Y"),
		sym("Y", "Z"),
		sym("W", "Z"),
		sym("Z"),
	)

	require.Len(t, report.Groups, 2)
	assert.Equal(t, "X", report.Groups[0].Root)
	assert.Equal(t, []string{"X", "Y", "Z"}, findingIDs(report.Groups[0].Findings))
	assert.Equal(t, "W", report.Groups[1].Root)
	assert.Equal(t, []string{"W"}, findingIDs(report.Groups[1].Findings))
	assert.Equal(t, 3, report.Summary.LargestGroup)

	z, ok := report.Lookup("Z")
	require.True(t, ok)
	assert.Equal(t, 2, z.Depth)
	assert.Equal(t, "Y", z.Via)
	assert.Equal(t, []string{"X", "Y", "Z", "W"}, findingIDs(report.Findings()))
}

func TestProvisionalDispatch(t *testing.T) {
	hints := symtab.Hints{Implementations: []symtab.Implementation{
		{Type: "H1", Capability: "Handler"},
		{Type: "H2", Capability: "Handler"},
		{Type: "W1", Capability: "Worker"},
		{Type: "W2", Capability: "Worker"},
	}}
	method := func(owner, name string) symtab.Symbol {
		s := sym(owner + "::" + name)
		s.Name, s.Owner, s.Kind = name, owner, symtab.KindMethod
		return s
	}
	dispatch := func(s symtab.Symbol, name, capability string) symtab.Symbol {
		s.Calls = append(s.Calls, symtab.CallSite{Ref: symtab.RefDispatch, Name: name, Capability: capability})
		return s
	}

	report := analyze(t, nil, hints,
		dispatch(sym("main"), "handle", "Handler"),
		method("H1", "handle"),
		method("H2", "handle"),
		dispatch(sym("orphan"), "process", "Worker"),
		method("W1", "process"),
		method("W2", "process"),
	)

	assert.Equal(t, []LiveProvisional{
		{ID: "H1::handle", Name: "handle", File: "src/main.rs", Line: 1},
		{ID: "H2::handle", Name: "handle", File: "src/main.rs", Line: 1},
	}, report.LiveProvisional)
	assert.Equal(t, 2, report.Summary.ProvisionalLive)

	require.Len(t, report.Groups, 1)
	assert.Equal(t, []string{"orphan", "W1::process", "W2::process"}, findingIDs(report.Groups[0].Findings))
	assert.False(t, report.Groups[0].Findings[0].Provisional)
	for _, f := range report.Groups[0].Findings[1:] {
		assert.True(t, f.Provisional)
		assert.Contains(t, f.Reason, "approximate")
		assert.InDelta(t, 0.53, f.Confidence, 0.001)
		assert.Equal(t, ConfidenceMedium, f.ConfidenceLevel)
	}
	assert.Equal(t, 4, report.Summary.ApproximateEdges)
	assert.Equal(t, 2, report.Summary.ProvisionalDead)
}

func TestPublicAndPrivateSeparated(t *testing.T) {
	public := sym("api")
	public.Visibility = symtab.VisibilityPublic
	crate := sym("crate_local")
	crate.Visibility = symtab.VisibilityModule

	report := analyze(t, nil, symtab.Hints{}, sym("main"), public, crate, sym("helper"))

	assert.Equal(t, []string{"api"}, findingIDs(report.Public))
	assert.Equal(t, []string{"crate_local", "helper"}, findingIDs(report.Private))
	assert.InDelta(t, 0.70, report.Public[0].Confidence, 0.001)
	assert.Equal(t, ConfidenceMedium, report.Public[0].ConfidenceLevel)
	assert.InDelta(t, 0.95, report.Private[0].Confidence, 0.001, "module visibility gets no private bonus")
	assert.Equal(t, 1, report.Summary.PublicDead)
	assert.Equal(t, 2, report.Summary.PrivateDead)
}

func TestTestSymbols(t *testing.T) {
	testCase := sym("test_parse", "only_tested", "fixture")
	testCase.TestOnly, testCase.TestCase = true, true
	fixture := sym("fixture")
	fixture.TestOnly = true
	unused := sym("unused_fixture")
	unused.TestOnly = true
	syms := []symtab.Symbol{sym("main"), sym("only_tested"), testCase, fixture, unused}

	t.Run("default mode", func(t *testing.T) {
		report := analyze(t, nil, symtab.Hints{}, syms...)
		assert.Equal(t, []string{"only_tested"}, findingIDs(report.Findings()))
		assert.Empty(t, report.UnusedTestHelpers)
		assert.Equal(t, 2, report.Summary.AnalyzedSymbols)
		assert.Equal(t, 3, report.Summary.ExcludedTests)
	})

	t.Run("include tests", func(t *testing.T) {
		report := analyze(t, []entry.Option{entry.WithIncludeTests(true)}, symtab.Hints{}, syms...)
		assert.Empty(t, report.Findings(), "production code used by tests is live")
		require.Len(t, report.UnusedTestHelpers, 1)
		assert.Equal(t, "unused_fixture", report.UnusedTestHelpers[0].ID)
		assert.Equal(t, 2, report.Summary.AnalyzedSymbols, "test symbols stay out of production figures")
		assert.Equal(t, 2, report.Summary.ReachableSymbols)
	})
}

func TestLazyGlobals(t *testing.T) {
	static := func(id string, macroCalls ...string) symtab.Symbol {
		s := sym(id)
		s.Kind = symtab.KindStaticInitializer
		for _, c := range macroCalls {
			s.Calls = append(s.Calls, symtab.CallSite{Ref: symtab.RefMacro, Name: c})
		}
		return s
	}
	hints := symtab.Hints{Initializers: []symtab.InitBinding{
		{Global: "G", Initializer: "init_G"},
		{Global: "H", Initializer: "init_H"},
	}}

	report := analyze(t, nil, hints,
		sym("main", "G"),
		static("G"),
		sym("init_G", "make_logger"),
		sym("make_logger"),
		static("H", "init_H"),
		sym("init_H"),
	)

	// init_G has no caller; it is live only because G is.
	assert.Equal(t, []string{"H", "init_H"}, findingIDs(report.Findings()))
	assert.Equal(t, TransitivelyDead, report.Groups[0].Findings[1].Classification)
	assert.Equal(t, 1, report.Summary.PromotedRoots)
	assert.Equal(t, 2, report.Summary.Passes)
	assert.Equal(t, 1, report.Summary.EdgesByKind["macro-synthesized"])
}

func TestReportIsDeterministic(t *testing.T) {
	syms := []symtab.Symbol{
		sym("main", "a"),
		sym("a"),
		sym("q", "r"), sym("r", "q", "s"), sym("s"),
		sym("t", "s"), sym("u"),
	}
	first := analyze(t, nil, symtab.Hints{}, syms...)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, analyze(t, nil, symtab.Hints{}, syms...))
	}
}

func TestReportRequiresInputs(t *testing.T) {
	_, err := New().Report(Input{})
	assert.Error(t, err)
}

func TestConfidenceThresholds(t *testing.T) {
	d := DefaultConfidenceThresholds()
	assert.Equal(t, ConfidenceHigh, d.Level(0.8))
	assert.Equal(t, ConfidenceMedium, d.Level(0.5))
	assert.Equal(t, ConfidenceLow, d.Level(0.49))

	r := New(WithThresholds(ConfidenceThresholds{HighThreshold: 0.99, MediumThreshold: 2}))
	assert.Equal(t, 0.99, r.thresholds.HighThreshold)
	assert.Equal(t, 0.5, r.thresholds.MediumThreshold, "out of range values are ignored")
}

func TestNameHeuristics(t *testing.T) {
	tests := []struct {
		name        string
		constructor bool
		handler     bool
	}{
		{"new", true, false},
		{"NewServer", true, false},
		{"new_client", true, false},
		{"News", true, false},
		{"with_capacity", true, false},
		{"handle_request", false, true},
		{"HandleRequest", false, true},
		{"Handler", false, true},
		{"request_handler", false, true},
		{"on_click", false, true},
		{"OnClick", false, true},
		{"Online", false, false},
		{"ServeHTTP", false, true},
		{"parse", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.constructor, isConstructor(tt.name))
			assert.Equal(t, tt.handler, isHandler(tt.name))
		})
	}
}
