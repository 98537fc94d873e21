package symtab

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fn(id string) Symbol {
	return Symbol{ID: id, Kind: KindFunction, Visibility: VisibilityPrivate}
}

func TestRegisterAndLookup(t *testing.T) {
	tab := New()
	require.NoError(t, tab.Register(Symbol{
		ID:    "main.rs::load_config",
		Scope: "main",
		Kind:  KindFunction,
		Calls: []CallSite{{Ref: RefDirect, Name: "Config::new"}},
	}))

	sym, err := tab.Lookup("main.rs::load_config")
	require.NoError(t, err)
	assert.Equal(t, "load_config", sym.Name, "name defaults to last ID segment")
	require.Len(t, sym.Calls, 1)
	assert.Equal(t, "main.rs::load_config", sym.Calls[0].Source, "call sources are bound to the symbol")

	_, err = tab.Lookup("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegisterDuplicate(t *testing.T) {
	tab := New()
	first := fn("a")
	first.Location = Location{File: "a.rs", Line: 1}
	require.NoError(t, tab.Register(first))

	second := fn("a")
	second.Location = Location{File: "b.rs", Line: 7}
	err := tab.Register(second)

	var dup *DuplicateSymbolError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "a", dup.ID)
	assert.Equal(t, "a.rs", dup.First.File)
	assert.Equal(t, "b.rs", dup.Second.File)
	assert.Equal(t, 1, tab.Len(), "failed registration leaves the table unchanged")
}

func TestRegisterEmptyID(t *testing.T) {
	assert.Error(t, New().Register(Symbol{Name: "x"}))
}

func TestAllPreservesInsertionOrder(t *testing.T) {
	tab := New()
	for _, id := range []string{"z", "a", "m"} {
		require.NoError(t, tab.Register(fn(id)))
	}

	var ids []string
	for _, s := range tab.All() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"z", "a", "m"}, ids)

	i, ok := tab.Index("m")
	assert.True(t, ok)
	assert.Equal(t, 2, i)
}

func TestIndexes(t *testing.T) {
	tab := New()
	require.NoError(t, tab.Register(Symbol{ID: "models.rs::Config::new", Name: "new", Scope: "models", Owner: "Config", Kind: KindMethod}))
	require.NoError(t, tab.Register(Symbol{ID: "models.rs::Server::new", Name: "new", Scope: "models", Owner: "Server", Kind: KindMethod}))
	require.NoError(t, tab.Register(Symbol{ID: "main.rs::helper", Name: "helper", Scope: "main", Kind: KindFunction}))

	assert.Len(t, tab.ByName("new"), 2)
	assert.Equal(t, []int{0}, tab.ByPath("Config::new"))
	assert.Equal(t, []int{0}, tab.ByPath("models::Config::new"))
	assert.Equal(t, []int{2}, tab.ByPath("main::helper"))
	assert.Empty(t, tab.ByPath("helper"), "single segments are not path keys")
	assert.Equal(t, []int{1}, tab.Methods("Server", "new"))
	assert.Len(t, tab.MethodsNamed("new"), 2)
}

func TestAttach(t *testing.T) {
	tab := New()
	require.NoError(t, tab.Register(fn("a")))
	require.NoError(t, tab.Attach(CallSite{Source: "a", Ref: RefDirect, Name: "b"}))
	assert.Len(t, tab.At(0).Calls, 1)

	err := tab.Attach(CallSite{Source: "ghost", Ref: RefDirect, Name: "b"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadOrdersUnitsByPath(t *testing.T) {
	units := []Unit{
		{Path: "b.rs", Language: "rust", Symbols: []Symbol{fn("b.rs::b")}},
		{
			Path:      "a.rs",
			Language:  "rust",
			Symbols:   []Symbol{fn("a.rs::a")},
			CallSites: []CallSite{{Source: "b.rs::b", Ref: RefDirect, Name: "a"}},
			Hints: Hints{
				EntryNames:   map[string][]string{"rust": {"main"}},
				Initializers: []InitBinding{{Global: "G", Initializer: "init_G"}},
			},
		},
	}

	tab, hints, err := Load(units...)
	require.NoError(t, err)
	assert.Equal(t, "a.rs::a", tab.At(0).ID)
	assert.Equal(t, "rust", tab.At(0).Language, "language inherited from the unit")
	assert.Len(t, tab.At(1).Calls, 1, "cross-unit call site attached")
	assert.Equal(t, []string{"main"}, hints.EntryNames["rust"])
	assert.Len(t, hints.Initializers, 1)

	// Same input in another order yields the same table.
	tab2, _, err := Load(units[1], units[0])
	require.NoError(t, err)
	assert.Equal(t, tab.All(), tab2.All())
}

func TestLoadDuplicateAcrossUnits(t *testing.T) {
	_, _, err := Load(
		Unit{Path: "a", Symbols: []Symbol{fn("x")}},
		Unit{Path: "b", Symbols: []Symbol{fn("x")}},
	)
	var dup *DuplicateSymbolError
	assert.ErrorAs(t, err, &dup)
}

func TestHintsMergeDeduplicatesEntryNames(t *testing.T) {
	var h Hints
	h.Merge(Hints{EntryNames: map[string][]string{"go": {"main", "init"}}})
	h.Merge(Hints{EntryNames: map[string][]string{"go": {"main"}}})
	assert.Equal(t, []string{"main", "init"}, h.EntryNames["go"])
}

func TestKindAndVisibility(t *testing.T) {
	assert.True(t, KindMethod.Callable())
	assert.True(t, KindStaticInitializer.Callable())
	assert.False(t, KindType.Callable())
	assert.True(t, VisibilityPublic.IsPublic())
	assert.False(t, VisibilityModule.IsPublic())

	s := Symbol{Name: "start", Owner: "Server", Attributes: []string{AttrAsync}}
	assert.Equal(t, "Server::start", s.QualifiedName())
	assert.True(t, s.HasAttribute(AttrAsync))
	assert.False(t, s.HasAttribute(AttrFFIExport))
	assert.Equal(t, "a.rs:3", Location{File: "a.rs", Line: 3}.String())
}
