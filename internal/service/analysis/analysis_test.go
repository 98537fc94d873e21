package analysis

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/reaper/internal/logging"
	"github.com/panbanda/reaper/internal/testutil"
	"github.com/panbanda/reaper/pkg/analyzer/deadcode"
	"github.com/panbanda/reaper/pkg/analyzer/entry"
	"github.com/panbanda/reaper/pkg/config"
	"github.com/panbanda/reaper/pkg/symtab"
)

func newService(cfg *config.Config, opts ...Option) *Service {
	base := []Option{WithConfig(cfg), WithLogger(logging.Discard())}
	return New(append(base, opts...)...)
}

func findingIDs(r *deadcode.Report) map[string]deadcode.Finding {
	out := make(map[string]deadcode.Finding)
	for _, f := range r.Findings() {
		out[f.ID] = f
	}
	return out
}

func reachable(t *testing.T, res *Result, id string) bool {
	t.Helper()
	idx, ok := res.Table.Index(id)
	require.True(t, ok, "symbol %s not in table", id)
	return res.Reachability.IsReachable(idx)
}

func TestAnalyzeRustProject(t *testing.T) {
	root := testutil.RustProject(t)
	res, err := newService(config.DefaultConfig(), WithoutCache()).Analyze(context.Background(), root)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, 3, res.Files)
	assert.Zero(t, res.CacheHits)
	assert.False(t, res.FileErrors.HasErrors())

	dead := findingIDs(res.Report)
	for _, id := range []string{
		"src/main.rs::fetch_remote",
		"src/main.rs::unused_entry",
		"src/main.rs::unused_dep",
		"src/main.rs::cycle_a",
		"src/main.rs::cycle_b",
		"src/main.rs::touch_registry",
		"src/main.rs::REGISTRY",
		"src/main.rs::build_registry",
		"src/shapes.rs::shapes::unit_area",
		"src/shapes.rs::shapes::Triangle",
		"src/shapes.rs::shapes::Shape::name",
	} {
		assert.Contains(t, dead, id)
	}

	for _, id := range []string{
		"src/main.rs::main",
		"src/main.rs::process",
		"src/main.rs::helper",
		"src/main.rs::report",
		"src/main.rs::apply",
		"src/main.rs::double",
		"src/main.rs::CONFIG",
		"src/main.rs::load_settings",
		"src/shapes.rs::shapes::Circle::new",
		"src/shapes.rs::shapes::Square::new",
	} {
		assert.True(t, reachable(t, res, id), "%s should be live", id)
		assert.NotContains(t, dead, id)
	}

	t.Run("chains are grouped under their root", func(t *testing.T) {
		assert.Equal(t, deadcode.UnreachableRoot, dead["src/main.rs::unused_entry"].Classification)
		assert.Equal(t, "src/main.rs::unused_entry", dead["src/main.rs::cycle_b"].GroupRoot)
		assert.Equal(t, "src/main.rs::touch_registry", dead["src/main.rs::build_registry"].GroupRoot)
	})

	t.Run("trait methods behind dyn dispatch are provisional", func(t *testing.T) {
		area, ok := res.Table.Index("src/shapes.rs::shapes::Circle::area")
		require.True(t, ok)
		assert.True(t, res.Reachability.IsReachable(area))
		assert.True(t, res.Reachability.IsProvisional(area))
		assert.Positive(t, res.Report.Summary.ApproximateEdges)
	})

	t.Run("test code is excluded", func(t *testing.T) {
		assert.NotContains(t, dead, "src/main.rs::tests::test_only_util")
		assert.NotContains(t, dead, "tests/integration.rs::tests::integration::unused_fixture")
		assert.Positive(t, res.Report.Summary.ExcludedTests)
	})

	t.Run("public and private findings are split", func(t *testing.T) {
		for _, f := range res.Report.Public {
			assert.True(t, f.IsPublic(), f.ID)
		}
		for _, f := range res.Report.Private {
			assert.False(t, f.IsPublic(), f.ID)
		}
		assert.Equal(t, len(res.Report.Public)+len(res.Report.Private), res.Report.Summary.DeadSymbols)
	})
}

func TestAnalyzeIncludeTests(t *testing.T) {
	root := testutil.RustProject(t)
	cfg := config.DefaultConfig()
	cfg.Analysis.IncludeTests = true

	res, err := newService(cfg, WithoutCache()).Analyze(context.Background(), root)
	require.NoError(t, err)

	assert.True(t, reachable(t, res, "src/main.rs::tests::test_only_util"))
	var helpers []string
	for _, h := range res.Report.UnusedTestHelpers {
		helpers = append(helpers, h.ID)
	}
	assert.Contains(t, helpers, "tests/integration.rs::tests::integration::unused_fixture")
	assert.NotContains(t, helpers, "src/main.rs::tests::test_only_util")
}

func TestAnalyzeGoProject(t *testing.T) {
	root := testutil.GoProject(t)
	res, err := newService(config.DefaultConfig(), WithoutCache()).Analyze(context.Background(), root)
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range res.Report.Findings() {
		names[f.Name] = true
	}
	assert.True(t, names["legacy"])
	assert.True(t, names["legacyHelper"])
	assert.False(t, names["serve"], "serve is referenced from a package-level var")
	assert.False(t, names["run"])
	assert.False(t, names["TestRun"], "tests are excluded by default")
	assert.NotEmpty(t, res.Report.LiveProvisional, "Store implementations are reached only through the interface")
}

func TestAnalyzeParallelTraversal(t *testing.T) {
	root := testutil.RustProject(t)
	seq, err := newService(config.DefaultConfig(), WithoutCache()).Analyze(context.Background(), root)
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Analysis.ParallelTraversal = true
	cfg.Analysis.Workers = 4
	par, err := newService(cfg, WithoutCache()).Analyze(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, seq.Report.Summary.DeadSymbols, par.Report.Summary.DeadSymbols)
	assert.Equal(t, seq.Reachability.Count(), par.Reachability.Count())
}

func TestAnalyzeCache(t *testing.T) {
	root := testutil.RustProject(t)
	cfg := config.DefaultConfig()
	cfg.Cache.Dir = filepath.Join(t.TempDir(), "cache")

	svc := newService(cfg)
	first, err := svc.Analyze(context.Background(), root)
	require.NoError(t, err)
	assert.Zero(t, first.CacheHits)

	second, err := svc.Analyze(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 3, second.CacheHits)
	assert.Equal(t, first.Report.Summary.DeadSymbols, second.Report.Summary.DeadSymbols)

	testutil.WriteFile(t, filepath.Join(root, "src/shapes.rs"), "pub fn only() {}\n")
	third, err := svc.Analyze(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 2, third.CacheHits)
}

func TestAnalyzeRelativeModulePaths(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFile(t, filepath.Join(root, "src", "main.rs"), `mod a {
    pub fn foo() {}
    pub mod b {
        pub fn foo() {}
        pub fn foo2() {}
        pub fn g() {
            super::foo();
            crate::foo2();
        }
    }
}

fn foo2() {}

fn main() {
    a::b::g();
}
`)

	res, err := newService(config.DefaultConfig(), WithoutCache()).Analyze(context.Background(), root)
	require.NoError(t, err)

	assert.True(t, reachable(t, res, "src/main.rs::a::foo"), "super:: names the parent module")
	assert.True(t, reachable(t, res, "src/main.rs::foo2"), "crate:: names the root module")
	assert.False(t, reachable(t, res, "src/main.rs::a::b::foo"))
	assert.False(t, reachable(t, res, "src/main.rs::a::b::foo2"))
}

func TestAnalyzeFactsFile(t *testing.T) {
	root := testutil.RustProject(t)
	testutil.WriteFile(t, filepath.Join(root, "plugin.facts.yaml"), `
language: python
symbols:
  - id: plugin::register
    kind: function
    calls:
      - ref: direct
        name: unit_area
  - id: plugin::orphan
    kind: function
`)
	cfg := config.DefaultConfig()
	cfg.Entry.IDs = []string{"plugin::register"}

	res, err := newService(cfg, WithoutCache()).Analyze(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Files)

	reason, ok := res.Roots.Reason("plugin::register")
	require.True(t, ok)
	assert.Equal(t, entry.ReasonConfigured, reason)
	assert.True(t, reachable(t, res, "src/shapes.rs::shapes::unit_area"))

	dead := findingIDs(res.Report)
	assert.Contains(t, dead, "plugin::orphan")
	assert.NotContains(t, dead, "src/shapes.rs::shapes::unit_area")
}

func TestAnalyzeInvalidFactsFileIsSkipped(t *testing.T) {
	root := testutil.RustProject(t)
	testutil.WriteFile(t, filepath.Join(root, "broken.facts.json"), `{"symbols": [{"id": "x"}]}`)

	res, err := newService(config.DefaultConfig(), WithoutCache()).Analyze(context.Background(), root)
	require.NoError(t, err)
	require.True(t, res.FileErrors.HasErrors())
	assert.Len(t, res.FileErrors.Errors, 1)
	assert.Equal(t, 3, res.Files)
}

func TestAnalyzeSkippedFilesLeftToCaller(t *testing.T) {
	root := testutil.RustProject(t)
	testutil.WriteFile(t, filepath.Join(root, "broken.facts.json"), `{"symbols": [{"id": "x"}]}`)

	var logs bytes.Buffer
	svc := New(WithConfig(config.DefaultConfig()), WithLogger(logging.New(&logs, false)), WithoutCache())
	res, err := svc.Analyze(context.Background(), root)
	require.NoError(t, err)
	require.True(t, res.FileErrors.HasErrors())
	assert.NotContains(t, logs.String(), "file skipped")

	logs.Reset()
	svc = New(WithConfig(config.DefaultConfig()), WithLogger(logging.New(&logs, true)), WithoutCache())
	_, err = svc.Analyze(context.Background(), root)
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "file skipped")
}

func TestAnalyzeCancelledFinishesProgressWithError(t *testing.T) {
	root := testutil.RustProject(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var bar bytes.Buffer
	_, err := newService(config.DefaultConfig(), WithoutCache(), WithProgress(&bar)).Analyze(ctx, root)
	require.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, bar.String(), "Parsing error: context canceled")
}

func TestAnalyzeNoSources(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFile(t, filepath.Join(root, "README.md"), "# nothing here\n")

	res, err := newService(config.DefaultConfig(), WithoutCache()).Analyze(context.Background(), root)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrNoSources)
}

func TestAnalyzeCancelled(t *testing.T) {
	root := testutil.RustProject(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := newService(config.DefaultConfig(), WithoutCache()).Analyze(ctx, root)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunNoEntryPoint(t *testing.T) {
	unit := symtab.Unit{
		Path:     "lib.rs",
		Language: "rust",
		Symbols: []symtab.Symbol{
			{ID: "lib.rs::helper", Name: "helper", Kind: symtab.KindFunction, Visibility: symtab.VisibilityPrivate},
		},
	}
	res, err := newService(config.DefaultConfig()).Run(context.Background(), unit)
	assert.Nil(t, res)
	var noEntry *entry.NoEntryPointError
	assert.True(t, errors.As(err, &noEntry))
}

func TestRunDuplicateSymbol(t *testing.T) {
	sym := symtab.Symbol{ID: "a::main", Name: "main", Kind: symtab.KindFunction}
	res, err := newService(config.DefaultConfig()).Run(context.Background(),
		symtab.Unit{Path: "a.rs", Symbols: []symtab.Symbol{sym}},
		symtab.Unit{Path: "b.rs", Symbols: []symtab.Symbol{sym}},
	)
	assert.Nil(t, res)
	var dup *symtab.DuplicateSymbolError
	assert.True(t, errors.As(err, &dup))
}

func TestRunLibraryMode(t *testing.T) {
	unit := symtab.Unit{
		Path:     "lib.rs",
		Language: "rust",
		Symbols: []symtab.Symbol{
			{ID: "lib.rs::api", Name: "api", Kind: symtab.KindFunction, Visibility: symtab.VisibilityPublic,
				Calls: []symtab.CallSite{{Ref: symtab.RefDirect, Name: "inner"}}},
			{ID: "lib.rs::inner", Name: "inner", Kind: symtab.KindFunction, Visibility: symtab.VisibilityPrivate},
			{ID: "lib.rs::stale", Name: "stale", Kind: symtab.KindFunction, Visibility: symtab.VisibilityPrivate},
		},
	}
	cfg := config.DefaultConfig()
	cfg.Analysis.Mode = "library"

	res, err := newService(cfg).Run(context.Background(), unit)
	require.NoError(t, err)

	reason, ok := res.Roots.Reason("lib.rs::api")
	require.True(t, ok)
	assert.Equal(t, entry.ReasonPublicAPI, reason)
	assert.True(t, reachable(t, res, "lib.rs::inner"))

	dead := findingIDs(res.Report)
	assert.Len(t, dead, 1)
	assert.Contains(t, dead, "lib.rs::stale")
}

func TestExplain(t *testing.T) {
	root := testutil.RustProject(t)
	res, err := newService(config.DefaultConfig(), WithoutCache()).Analyze(context.Background(), root)
	require.NoError(t, err)

	t.Run("root", func(t *testing.T) {
		exp, err := res.Explain("main")
		require.NoError(t, err)
		assert.Equal(t, "src/main.rs::main", exp.ID)
		assert.Equal(t, StatusRoot, exp.Status)
		assert.NotEmpty(t, exp.RootReason)
		assert.NotEmpty(t, exp.Callees)
	})

	t.Run("live with path", func(t *testing.T) {
		exp, err := res.Explain("src/main.rs::helper")
		require.NoError(t, err)
		assert.Equal(t, StatusLive, exp.Status)
		require.NotEmpty(t, exp.Path)
		assert.Equal(t, "src/main.rs::main", exp.Path[0])
		assert.Equal(t, "src/main.rs::helper", exp.Path[len(exp.Path)-1])
	})

	t.Run("dead", func(t *testing.T) {
		exp, err := res.Explain("cycle_b")
		require.NoError(t, err)
		assert.Equal(t, StatusDead, exp.Status)
		require.NotNil(t, exp.Finding)
		assert.Equal(t, "src/main.rs::unused_entry", exp.Finding.GroupRoot)
		assert.NotEmpty(t, exp.Callers)
	})

	t.Run("qualified path", func(t *testing.T) {
		exp, err := res.Explain("Circle::area")
		require.NoError(t, err)
		assert.Equal(t, StatusProvisional, exp.Status)
	})

	t.Run("test only", func(t *testing.T) {
		exp, err := res.Explain("test_only_util")
		require.NoError(t, err)
		assert.Equal(t, StatusTestOnly, exp.Status)
	})

	t.Run("ambiguous", func(t *testing.T) {
		_, err := res.Explain("new")
		var amb *AmbiguousSymbolError
		require.True(t, errors.As(err, &amb))
		assert.Len(t, amb.Candidates, 2)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := res.Explain("does_not_exist")
		assert.Error(t, err)
	})
}
