package derivation

import (
	"slices"
	"sort"
	"sync"

	"github.com/solatis/fieldflow/internal/paths"
	"github.com/solatis/fieldflow/internal/types"
)

/*
 * Derivation lookup index.
 *
 * Seven lazily built caches over one generation of entries:
 *   - byTarget:      targetFieldKey -> entries
 *   - bySource:      sourceFieldKey -> entries
 *   - byDependency:  dependsOn path -> entries (the "*" token excluded)
 *   - byArrayPath:   ExtractArrayPath(targetFieldKey) -> entries, for
 *                    placeholder targets only
 *   - wildcard:      entries depending on "*"
 *   - onChange:      entries whose trigger is not debounced
 *   - debouncedByMs: debounced entries grouped by effective window
 *
 * Each cache is Uncomputed until first access, then Computed for the current
 * generation. Every query first compares the source generation with the one
 * last seen; any difference drops all seven caches at once. Diffing entry
 * sets is not attempted, a whole rebuild is cheap.
 *
 * The mutex makes refresh-then-read atomic, so a query observes either the
 * previous generation fully cached or the new one freshly built.
 *
 * Every slice handed out is a copy; callers cannot reach the caches.
 */

// BuildStats counts how many times each cache has been built.
type BuildStats struct {
	ByTarget      int
	BySource      int
	ByDependency  int
	ByArrayPath   int
	Wildcard      int
	OnChange      int
	DebouncedByMs int
}

// Collection is the cached lookup index over an EntrySource.
type Collection struct {
	source EntrySource

	mu         sync.Mutex
	entries    []*types.DerivationEntry
	generation uint64
	primed     bool

	byTarget      map[string][]*types.DerivationEntry
	bySource      map[string][]*types.DerivationEntry
	byDependency  map[string][]*types.DerivationEntry
	byArrayPath   map[string][]*types.DerivationEntry
	wildcard      []*types.DerivationEntry
	onChange      []*types.DerivationEntry
	debouncedByMs map[int][]*types.DerivationEntry

	wildcardBuilt bool
	onChangeBuilt bool

	builds BuildStats
}

// NewCollection wraps source. No cache is built until the first query.
func NewCollection(source EntrySource) *Collection {
	return &Collection{source: source}
}

// InvalidateCache drops every cache; the next query rebuilds on demand.
func (c *Collection) InvalidateCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked()
}

// Stats returns the per-cache build counters.
func (c *Collection) Stats() BuildStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.builds
}

// Entries returns the current generation's entries in source order.
func (c *Collection) Entries() []*types.DerivationEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshLocked()
	return slices.Clone(c.entries)
}

// Len returns the number of entries in the current generation.
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshLocked()
	return len(c.entries)
}

// EntriesForChangedFields returns the entries that must re-run when the
// given fields change: direct dependents, array-level dependents, and every
// wildcard entry. Entries are de-duplicated by identity.
//
// A concrete key such as items.2.qty is additionally matched against the
// array path of its placeholder form (items), so entries targeting
// items.$.total are found for a change to any element.
//
// Result order is deterministic: changed keys are visited in sorted order,
// each bucket in source order, wildcard entries last.
func (c *Collection) EntriesForChangedFields(changed FieldSet) []*types.DerivationEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshLocked()

	byDependency := c.byDependencyLocked()
	byArrayPath := c.byArrayPathLocked()

	keys := make([]string, 0, len(changed))
	for k := range changed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	seen := make(map[*types.DerivationEntry]struct{})
	var out []*types.DerivationEntry
	add := func(bucket []*types.DerivationEntry) {
		for _, e := range bucket {
			if _, ok := seen[e]; ok {
				continue
			}
			seen[e] = struct{}{}
			out = append(out, e)
		}
	}

	for _, key := range keys {
		add(byDependency[key])
		add(byArrayPath[key])
		if !paths.IsArrayPlaceholderPath(key) && paths.HasIndexSegment(key) {
			if arrayPath := paths.ExtractArrayPath(paths.ToPlaceholderPath(key)); arrayPath != "" && arrayPath != key {
				add(byArrayPath[arrayPath])
			}
		}
	}
	add(c.wildcardLocked())

	return out
}

// ByTarget returns the entries assigning key.
func (c *Collection) ByTarget(key string) []*types.DerivationEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshLocked()
	return slices.Clone(c.byTargetLocked()[key])
}

// BySource returns the entries declared on key.
func (c *Collection) BySource(key string) []*types.DerivationEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshLocked()
	return slices.Clone(c.bySourceLocked()[key])
}

// ByDependency returns the entries listing key in dependsOn.
func (c *Collection) ByDependency(key string) []*types.DerivationEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshLocked()
	return slices.Clone(c.byDependencyLocked()[key])
}

// ByArrayPath returns the entries whose target is a placeholder path under
// arrayPath.
func (c *Collection) ByArrayPath(arrayPath string) []*types.DerivationEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshLocked()
	return slices.Clone(c.byArrayPathLocked()[arrayPath])
}

// WildcardEntries returns the entries depending on the whole form value.
func (c *Collection) WildcardEntries() []*types.DerivationEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshLocked()
	return slices.Clone(c.wildcardLocked())
}

// OnChangeEntries returns the entries that run immediately.
func (c *Collection) OnChangeEntries() []*types.DerivationEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshLocked()
	return slices.Clone(c.onChangeLocked())
}

// DebouncedEntries returns the debounced entries whose effective window is ms.
func (c *Collection) DebouncedEntries(ms int) []*types.DerivationEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshLocked()
	return slices.Clone(c.debouncedByMsLocked()[ms])
}

// DebouncePeriods returns the distinct debounce windows, ascending.
func (c *Collection) DebouncePeriods() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshLocked()

	groups := c.debouncedByMsLocked()
	periods := make([]int, 0, len(groups))
	for ms := range groups {
		periods = append(periods, ms)
	}
	sort.Ints(periods)
	return periods
}

// refreshLocked adopts the source's current generation, dropping every
// cache if it moved. Caller holds c.mu.
func (c *Collection) refreshLocked() {
	entries, generation := c.source.Entries()
	if c.primed && generation == c.generation {
		return
	}
	c.dropLocked()
	c.entries = entries
	c.generation = generation
	c.primed = true
}

// dropLocked returns every cache to Uncomputed. Caller holds c.mu.
func (c *Collection) dropLocked() {
	c.byTarget = nil
	c.bySource = nil
	c.byDependency = nil
	c.byArrayPath = nil
	c.wildcard = nil
	c.onChange = nil
	c.debouncedByMs = nil
	c.wildcardBuilt = false
	c.onChangeBuilt = false
}

func (c *Collection) byTargetLocked() map[string][]*types.DerivationEntry {
	if c.byTarget == nil {
		c.byTarget = groupBy(c.entries, func(e *types.DerivationEntry) string { return e.TargetFieldKey })
		c.builds.ByTarget++
	}
	return c.byTarget
}

func (c *Collection) bySourceLocked() map[string][]*types.DerivationEntry {
	if c.bySource == nil {
		c.bySource = groupBy(c.entries, func(e *types.DerivationEntry) string { return e.SourceFieldKey })
		c.builds.BySource++
	}
	return c.bySource
}

func (c *Collection) byDependencyLocked() map[string][]*types.DerivationEntry {
	if c.byDependency == nil {
		m := make(map[string][]*types.DerivationEntry)
		for _, e := range c.entries {
			for _, dep := range e.DependsOn {
				if dep == types.WildcardDependency {
					continue
				}
				m[dep] = append(m[dep], e)
			}
		}
		c.byDependency = m
		c.builds.ByDependency++
	}
	return c.byDependency
}

func (c *Collection) byArrayPathLocked() map[string][]*types.DerivationEntry {
	if c.byArrayPath == nil {
		m := make(map[string][]*types.DerivationEntry)
		for _, e := range c.entries {
			info := paths.ParseArrayPath(e.TargetFieldKey)
			if !info.IsArrayPath {
				continue
			}
			m[info.ArrayPath] = append(m[info.ArrayPath], e)
		}
		c.byArrayPath = m
		c.builds.ByArrayPath++
	}
	return c.byArrayPath
}

func (c *Collection) wildcardLocked() []*types.DerivationEntry {
	if !c.wildcardBuilt {
		c.wildcard = filter(c.entries, (*types.DerivationEntry).DependsOnWildcard)
		c.wildcardBuilt = true
		c.builds.Wildcard++
	}
	return c.wildcard
}

func (c *Collection) onChangeLocked() []*types.DerivationEntry {
	if !c.onChangeBuilt {
		c.onChange = filter(c.entries, func(e *types.DerivationEntry) bool { return !e.IsDebounced() })
		c.onChangeBuilt = true
		c.builds.OnChange++
	}
	return c.onChange
}

func (c *Collection) debouncedByMsLocked() map[int][]*types.DerivationEntry {
	if c.debouncedByMs == nil {
		m := make(map[int][]*types.DerivationEntry)
		for _, e := range c.entries {
			if !e.IsDebounced() {
				continue
			}
			ms := e.EffectiveDebounceMs()
			m[ms] = append(m[ms], e)
		}
		c.debouncedByMs = m
		c.builds.DebouncedByMs++
	}
	return c.debouncedByMs
}

func groupBy(entries []*types.DerivationEntry, key func(*types.DerivationEntry) string) map[string][]*types.DerivationEntry {
	m := make(map[string][]*types.DerivationEntry)
	for _, e := range entries {
		k := key(e)
		m[k] = append(m[k], e)
	}
	return m
}

func filter(entries []*types.DerivationEntry, keep func(*types.DerivationEntry) bool) []*types.DerivationEntry {
	out := make([]*types.DerivationEntry, 0)
	for _, e := range entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
