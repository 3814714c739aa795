package derivation

import (
	"fmt"

	"github.com/solatis/fieldflow/internal/paths"
	"github.com/solatis/fieldflow/internal/types"
)

/*
 * Derivation compilation.
 *
 * Compiles authored types.EntryDefinition values into immutable
 * *types.DerivationEntry values and orders them producers-first.
 *
 * Compilation workflow:
 *   1. Validate each definition (keys, dependsOn, trigger, debounce, placeholders)
 *   2. Assign a UUIDv7 when the definition carries no id; authored ids
 *      must be unique within the form
 *   3. Order entries so that an entry whose target another entry depends on
 *      comes first (stable: unrelated entries keep authored order)
 *
 * The lookup index never re-sorts, so iteration order established here is
 * the order derivations run in within one tick.
 *
 * Wildcard dependencies do not create ordering edges: an entry depending on
 * the whole form value would otherwise depend on every other entry and make
 * any entry targeting a field it reads a cycle.
 */

// CompileOptions bounds what Compile accepts.
type CompileOptions struct {
	// MaxPlaceholders caps $ segments per path. Zero means types.MaxPlaceholders.
	MaxPlaceholders int

	// DefaultDebounceMs is stamped onto debounced entries that set no
	// window. Zero leaves them at 0, which reads as types.DefaultDebounceMs.
	DefaultDebounceMs int
}

// Compile validates defs and returns compiled entries in dependency order.
// Returns types.ErrDerivationCycle if targets and dependencies form a cycle.
func Compile(defs []types.EntryDefinition, opts CompileOptions) ([]*types.DerivationEntry, error) {
	if opts.MaxPlaceholders <= 0 {
		opts.MaxPlaceholders = types.MaxPlaceholders
	}

	entries := make([]*types.DerivationEntry, 0, len(defs))
	seen := make(map[types.EntryID]int, len(defs))
	for i, def := range defs {
		entry, err := compileEntry(def, opts)
		if err != nil {
			return nil, fmt.Errorf("derivation %d (target %q): %w", i, def.Target, err)
		}
		if first, ok := seen[entry.ID]; ok {
			return nil, fmt.Errorf("derivation %d (target %q): %w: %q already used by derivation %d",
				i, def.Target, types.ErrDuplicateEntryID, entry.ID, first)
		}
		seen[entry.ID] = i
		entries = append(entries, entry)
	}

	return orderByDependency(entries)
}

// compileEntry validates a single definition and builds its entry.
func compileEntry(def types.EntryDefinition, opts CompileOptions) (*types.DerivationEntry, error) {
	if def.Target == "" {
		return nil, types.ErrEmptyTarget
	}
	if def.Source == "" {
		return nil, types.ErrEmptySource
	}
	if len(def.DependsOn) == 0 {
		return nil, types.ErrNoDependencies
	}

	trigger, err := types.ParseTrigger(def.Trigger)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", err, def.Trigger)
	}
	if def.DebounceMs < 0 {
		return nil, types.ErrNegativeDebounce
	}

	for _, p := range append([]string{def.Target, def.Source}, def.DependsOn...) {
		if p == "" {
			return nil, types.ErrNoDependencies
		}
		if paths.CountArrayPlaceholders(p) > opts.MaxPlaceholders {
			return nil, fmt.Errorf("%w: %q", types.ErrTooManyPlaceholders, p)
		}
	}

	id := types.EntryID(def.ID)
	if id == "" {
		id = types.NewEntryID()
	}

	dependsOn := make([]string, len(def.DependsOn))
	copy(dependsOn, def.DependsOn)

	debounceMs := def.DebounceMs
	if trigger == types.TriggerDebounced && debounceMs == 0 {
		debounceMs = opts.DefaultDebounceMs
	}

	return &types.DerivationEntry{
		ID:             id,
		TargetFieldKey: def.Target,
		SourceFieldKey: def.Source,
		DependsOn:      dependsOn,
		Trigger:        trigger,
		DebounceMs:     debounceMs,
		Expression:     def.Expression,
	}, nil
}

// orderByDependency is Kahn's algorithm that always releases the
// lowest-positioned ready entry, so equal-rank entries keep authored order.
func orderByDependency(entries []*types.DerivationEntry) ([]*types.DerivationEntry, error) {
	producers := make(map[string][]int, len(entries))
	for i, e := range entries {
		producers[e.TargetFieldKey] = append(producers[e.TargetFieldKey], i)
	}

	indegree := make([]int, len(entries))
	consumers := make([][]int, len(entries))
	for j, e := range entries {
		for _, dep := range e.DependsOn {
			if dep == types.WildcardDependency {
				continue
			}
			for _, i := range producers[dep] {
				if i == j {
					continue
				}
				consumers[i] = append(consumers[i], j)
				indegree[j]++
			}
		}
	}

	ordered := make([]*types.DerivationEntry, 0, len(entries))
	done := make([]bool, len(entries))
	for len(ordered) < len(entries) {
		next := -1
		for i := range entries {
			if !done[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			return nil, types.ErrDerivationCycle
		}
		done[next] = true
		ordered = append(ordered, entries[next])
		for _, j := range consumers[next] {
			indegree[j]--
		}
	}
	return ordered, nil
}
