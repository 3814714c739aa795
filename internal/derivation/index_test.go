package derivation

import (
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/solatis/fieldflow/internal/reactive"
	"github.com/solatis/fieldflow/internal/types"
)

func entry(target, source string, dependsOn ...string) *types.DerivationEntry {
	return &types.DerivationEntry{
		ID:             types.EntryID(target + "<-" + source),
		TargetFieldKey: target,
		SourceFieldKey: source,
		DependsOn:      dependsOn,
		Trigger:        types.TriggerOnChange,
	}
}

func debounced(target string, ms int, dependsOn ...string) *types.DerivationEntry {
	e := entry(target, target, dependsOn...)
	e.Trigger = types.TriggerDebounced
	e.DebounceMs = ms
	return e
}

func targets(entries []*types.DerivationEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.TargetFieldKey
	}
	return out
}

func containsEntry(entries []*types.DerivationEntry, want *types.DerivationEntry) bool {
	for _, e := range entries {
		if e == want {
			return true
		}
	}
	return false
}

func TestCollection_SingleLevelArrayDerivation(t *testing.T) {
	total := entry("items.$.total", "items.$.qty", "items.$.qty", "items.$.price")
	c := NewCollection(StaticEntries([]*types.DerivationEntry{total}))

	if got := c.ByDependency("items.2.qty"); len(got) != 0 {
		t.Errorf("ByDependency(items.2.qty) = %v, want none", targets(got))
	}
	if got := c.ByArrayPath("items"); len(got) != 1 || got[0] != total {
		t.Errorf("ByArrayPath(items) = %v, want [items.$.total]", targets(got))
	}

	got := c.EntriesForChangedFields(NewFieldSet("items.2.qty"))
	if len(got) != 1 || got[0] != total {
		t.Fatalf("EntriesForChangedFields(items.2.qty) = %v, want [items.$.total]", targets(got))
	}

	got = c.EntriesForChangedFields(NewFieldSet("items.$.price"))
	if len(got) != 1 || got[0] != total {
		t.Errorf("EntriesForChangedFields(items.$.price) = %v, want [items.$.total]", targets(got))
	}
}

func TestCollection_DirectAndArrayDependents(t *testing.T) {
	subtotal := entry("subtotal", "subtotal", "items")
	lineTotal := entry("items.$.total", "items.$.qty", "items.$.qty")
	tax := entry("tax", "tax", "subtotal", "country")
	unrelated := entry("shipping", "shipping", "address.zip")
	c := NewCollection(StaticEntries([]*types.DerivationEntry{subtotal, lineTotal, tax, unrelated}))

	got := c.EntriesForChangedFields(NewFieldSet("items", "country"))
	want := []*types.DerivationEntry{tax, subtotal, lineTotal}
	if len(got) != len(want) {
		t.Fatalf("EntriesForChangedFields() = %v, want %v", targets(got), targets(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("EntriesForChangedFields()[%d] = %s, want %s", i, got[i].TargetFieldKey, want[i].TargetFieldKey)
		}
	}
}

func TestCollection_WildcardEntryAlwaysIncluded(t *testing.T) {
	summary := entry("summary", "summary", types.WildcardDependency)
	tax := entry("tax", "tax", "subtotal")
	c := NewCollection(StaticEntries([]*types.DerivationEntry{summary, tax}))

	for _, field := range []string{"subtotal", "customer.name", "items.4.qty"} {
		got := c.EntriesForChangedFields(NewFieldSet(field))
		if !containsEntry(got, summary) {
			t.Errorf("EntriesForChangedFields(%s) = %v, missing wildcard entry", field, targets(got))
		}
	}

	if got := c.ByDependency(types.WildcardDependency); len(got) != 0 {
		t.Errorf("ByDependency(*) = %v, want wildcard excluded", targets(got))
	}
}

func TestCollection_DeduplicatesByIdentity(t *testing.T) {
	// Both dependencies and the wildcard lead to the same entry
	both := entry("score", "score", "a", "b", types.WildcardDependency)
	twin := entry("score", "score", "a")
	c := NewCollection(StaticEntries([]*types.DerivationEntry{both, twin}))

	got := c.EntriesForChangedFields(NewFieldSet("a", "b"))
	if len(got) != 2 {
		t.Fatalf("EntriesForChangedFields() = %d entries, want 2 (value-equal twins are distinct)", len(got))
	}
}

func TestCollection_DebounceBucketing(t *testing.T) {
	fast := debounced("search", 300, "query")
	slow := debounced("suggest", 500, "query")
	defaulted := debounced("preview", 0, "body")
	immediate := entry("length", "body", "body")
	c := NewCollection(StaticEntries([]*types.DerivationEntry{fast, slow, defaulted, immediate}))

	periods := c.DebouncePeriods()
	if len(periods) != 2 || periods[0] != 300 || periods[1] != 500 {
		t.Errorf("DebouncePeriods() = %v, want [300 500]", periods)
	}
	if got := c.DebouncedEntries(500); len(got) != 2 {
		t.Errorf("len(DebouncedEntries(500)) = %d, want 2", len(got))
	}
	if got := c.DebouncedEntries(300); len(got) != 1 || got[0] != fast {
		t.Errorf("DebouncedEntries(300) = %v, want [search]", targets(got))
	}
	if got := c.OnChangeEntries(); len(got) != 1 || got[0] != immediate {
		t.Errorf("OnChangeEntries() = %v, want [length]", targets(got))
	}
	if got := c.DebouncedEntries(1000); got != nil {
		t.Errorf("DebouncedEntries(1000) = %v, want nil", targets(got))
	}
}

func TestCollection_TargetAndSourceLookups(t *testing.T) {
	a := entry("total", "qty", "qty")
	b := entry("total", "price", "price")
	c := NewCollection(StaticEntries([]*types.DerivationEntry{a, b}))

	if got := c.ByTarget("total"); len(got) != 2 {
		t.Errorf("len(ByTarget(total)) = %d, want 2", len(got))
	}
	if got := c.BySource("price"); len(got) != 1 || got[0] != b {
		t.Errorf("BySource(price) = %v, want [b]", got)
	}
	if got := c.BySource("missing"); len(got) != 0 {
		t.Errorf("BySource(missing) = %v, want empty", got)
	}
}

func TestCollection_ReturnedSlicesAreCopies(t *testing.T) {
	a := entry("x", "x", "y")
	c := NewCollection(StaticEntries([]*types.DerivationEntry{a}))

	got := c.ByDependency("y")
	got[0] = nil
	if again := c.ByDependency("y"); again[0] != a {
		t.Error("mutating a returned slice changed the cache")
	}
}

func touchAll(c *Collection) {
	c.ByTarget("x")
	c.BySource("x")
	c.EntriesForChangedFields(NewFieldSet("x"))
	c.OnChangeEntries()
	c.DebouncePeriods()
}

func TestCollection_CacheInvalidation(t *testing.T) {
	entries := []*types.DerivationEntry{
		entry("items.$.total", "items.$.qty", "items.$.qty"),
		debounced("search", 300, "query"),
		entry("summary", "summary", types.WildcardDependency),
	}
	sig := reactive.NewSignal(entries)
	c := NewCollection(SignalEntries(sig))

	if (c.Stats() != BuildStats{}) {
		t.Fatalf("Stats() before first query = %+v, want zero", c.Stats())
	}

	touchAll(c)
	once := BuildStats{1, 1, 1, 1, 1, 1, 1}
	if c.Stats() != once {
		t.Fatalf("Stats() after first pass = %+v, want %+v", c.Stats(), once)
	}

	// Same generation: no rebuilds
	touchAll(c)
	if c.Stats() != once {
		t.Errorf("Stats() after no-op pass = %+v, want %+v", c.Stats(), once)
	}

	// New generation with identical contents rebuilds every cache
	sig.Set(append([]*types.DerivationEntry(nil), entries...))
	touchAll(c)
	twice := BuildStats{2, 2, 2, 2, 2, 2, 2}
	if c.Stats() != twice {
		t.Errorf("Stats() after swap = %+v, want %+v", c.Stats(), twice)
	}

	c.InvalidateCache()
	touchAll(c)
	thrice := BuildStats{3, 3, 3, 3, 3, 3, 3}
	if c.Stats() != thrice {
		t.Errorf("Stats() after InvalidateCache = %+v, want %+v", c.Stats(), thrice)
	}
}

func TestCollection_LazyBuild(t *testing.T) {
	c := NewCollection(StaticEntries([]*types.DerivationEntry{entry("a", "a", "b")}))
	c.ByTarget("a")

	stats := c.Stats()
	if stats.ByTarget != 1 || stats.BySource != 0 || stats.ByDependency != 0 || stats.DebouncedByMs != 0 {
		t.Errorf("Stats() = %+v, want only ByTarget built", stats)
	}
}

// Property-based test: the changed-field query is exactly the union of the
// dependency bucket, the array-path bucket and the wildcard entries.
func TestCollection_PropertyIncrementality(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	fields := []string{"a", "b", "c", "items", "items.$.qty", "items.$.price", "orders", types.WildcardDependency}
	targetsPool := []string{"x", "y", "items.$.total", "orders.$.sum", "z"}

	properties.Property("query equals union of buckets", prop.ForAll(
		func(shape []int, changedIdx int) bool {
			var entries []*types.DerivationEntry
			for i, s := range shape {
				deps := []string{fields[s%len(fields)], fields[(s/7)%len(fields)]}
				e := entry(targetsPool[(s+i)%len(targetsPool)], "src", deps...)
				entries = append(entries, e)
			}
			c := NewCollection(StaticEntries(entries))
			field := fields[changedIdx%(len(fields)-1)]

			got := c.EntriesForChangedFields(NewFieldSet(field))

			want := make(map[*types.DerivationEntry]struct{})
			for _, e := range c.ByDependency(field) {
				want[e] = struct{}{}
			}
			for _, e := range c.ByArrayPath(field) {
				want[e] = struct{}{}
			}
			for _, e := range c.WildcardEntries() {
				want[e] = struct{}{}
			}
			if len(got) != len(want) {
				return false
			}
			for _, e := range got {
				if _, ok := want[e]; !ok {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 1000)),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}

func TestCollection_DebouncePeriodsSorted(t *testing.T) {
	c := NewCollection(StaticEntries([]*types.DerivationEntry{
		debounced("a", 900, "x"),
		debounced("b", 100, "x"),
		debounced("c", 400, "x"),
	}))
	periods := c.DebouncePeriods()
	if !sort.IntsAreSorted(periods) || len(periods) != 3 {
		t.Errorf("DebouncePeriods() = %v, want 3 ascending periods", periods)
	}
}
