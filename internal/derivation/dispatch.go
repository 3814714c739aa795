package derivation

import (
	"context"
	"sync"
	"time"

	"github.com/solatis/fieldflow/internal/clock"
	"github.com/solatis/fieldflow/internal/reactive"
	"github.com/solatis/fieldflow/internal/types"
)

/*
 * Change dispatch.
 *
 * Notify asks the Collection for the entries affected by a change and splits
 * them by trigger:
 *   - onChange entries are handed to the Runner before Notify returns
 *   - debounced entries feed one debounce gate per distinct window
 *
 * A gate coalesces every changed-field set it sees during a burst. When the
 * window elapses the accumulated set is re-queried against the Collection's
 * current generation, so entries swapped in during the burst are honoured,
 * and only entries of that window run.
 */

// Runner evaluates the entries it is given, in the given order.
type Runner func(ctx context.Context, entries []*types.DerivationEntry)

// Dispatcher routes field changes to a Runner through the index.
type Dispatcher struct {
	ctx   context.Context
	index *Collection
	run   Runner
	clock clock.Clock

	mu       sync.Mutex
	gates    map[int]*debounceGate
	inflight int
	closed   bool
	stop     func() bool
}

// debounceGate accumulates changed fields for one debounce window.
type debounceGate struct {
	ms       int
	revision *reactive.Signal[uint64]
	effect   *reactive.DebouncedEffect[uint64]
	pending  FieldSet // guarded by Dispatcher.mu
}

// NewDispatcher creates a dispatcher over index. Debounced runs happen on
// clk's timer goroutine and stop when ctx is done or Close is called.
func NewDispatcher(ctx context.Context, index *Collection, run Runner, clk clock.Clock) *Dispatcher {
	if clk == nil {
		clk = clock.Real()
	}
	d := &Dispatcher{
		ctx:   ctx,
		index: index,
		run:   run,
		clock: clk,
		gates: make(map[int]*debounceGate),
	}
	d.mu.Lock()
	d.stop = context.AfterFunc(ctx, d.Close)
	d.mu.Unlock()
	return d
}

// doneLocked reports whether the dispatcher accepts no further work.
// Caller holds d.mu.
func (d *Dispatcher) doneLocked() bool {
	return d.closed || d.ctx.Err() != nil
}

// Notify schedules every entry affected by changed and returns the
// onChange entries that were run immediately.
func (d *Dispatcher) Notify(changed FieldSet) []*types.DerivationEntry {
	if len(changed) == 0 || d.ctx.Err() != nil {
		return nil
	}
	affected := d.index.EntriesForChangedFields(changed)

	var immediate []*types.DerivationEntry
	windows := make(map[int]struct{})
	for _, e := range affected {
		if e.IsDebounced() {
			windows[e.EffectiveDebounceMs()] = struct{}{}
			continue
		}
		immediate = append(immediate, e)
	}

	var toArm []*debounceGate
	d.mu.Lock()
	if d.doneLocked() {
		d.mu.Unlock()
		return nil
	}
	for ms := range windows {
		gate := d.gateLocked(ms)
		gate.pending.Merge(changed)
		toArm = append(toArm, gate)
	}
	d.mu.Unlock()

	// Bumping the revision restarts the gate's countdown.
	for _, gate := range toArm {
		gate.revision.Update(func(v uint64) uint64 { return v + 1 })
	}

	if len(immediate) > 0 {
		d.run(d.ctx, immediate)
	}
	return immediate
}

// PendingWindows returns the debounce windows that currently hold
// unprocessed changes.
func (d *Dispatcher) PendingWindows() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doneLocked() {
		return nil
	}
	var out []int
	for ms, gate := range d.gates {
		if len(gate.pending) > 0 {
			out = append(out, ms)
		}
	}
	return out
}

// Idle reports whether no debounced change is waiting or running.
func (d *Dispatcher) Idle() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doneLocked() {
		return true
	}
	if d.inflight > 0 {
		return false
	}
	for _, gate := range d.gates {
		if len(gate.pending) > 0 {
			return false
		}
	}
	return true
}

// Close cancels every pending debounced run. It is called automatically
// when the dispatcher's context is done.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.stop()
	gates := d.gates
	d.gates = nil
	d.mu.Unlock()

	for _, gate := range gates {
		gate.effect.Close()
	}
}

// gateLocked returns the gate for ms, creating it on first use.
// Caller holds d.mu.
func (d *Dispatcher) gateLocked(ms int) *debounceGate {
	if gate, ok := d.gates[ms]; ok {
		return gate
	}
	gate := &debounceGate{
		ms:       ms,
		revision: reactive.NewSignal[uint64](0),
		pending:  make(FieldSet),
	}
	gate.effect = reactive.NewDebouncedEffect[uint64](d.ctx, gate.revision, func(uint64) {
		d.flush(gate)
	}, reactive.DebounceOptions{
		Delay: time.Duration(ms) * time.Millisecond,
		Clock: d.clock,
	})
	d.gates[ms] = gate
	return gate
}

// flush runs the debounced entries of gate's window affected by the
// accumulated changes.
func (d *Dispatcher) flush(gate *debounceGate) {
	d.mu.Lock()
	if d.doneLocked() {
		d.mu.Unlock()
		return
	}
	changed := gate.pending
	gate.pending = make(FieldSet)
	d.inflight++
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.inflight--
		d.mu.Unlock()
	}()

	if len(changed) == 0 {
		return
	}

	var due []*types.DerivationEntry
	for _, e := range d.index.EntriesForChangedFields(changed) {
		if e.IsDebounced() && e.EffectiveDebounceMs() == gate.ms {
			due = append(due, e)
		}
	}
	if len(due) > 0 && d.ctx.Err() == nil {
		d.run(d.ctx, due)
	}
}
