package reactive

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/solatis/fieldflow/internal/clock"
	"github.com/solatis/fieldflow/internal/types"
)

/*
 * Trailing-edge debounce gates.
 *
 * A gate holds the most recent source value and restarts its countdown on
 * every change. Only the value present when the countdown expires is
 * emitted; intermediate values are dropped, not queued. Consecutive equal
 * emissions are suppressed (reflect.DeepEqual).
 *
 * There is no per-gate goroutine: timers are scheduled on the injected
 * Clock, so any number of gates multiplex on the same timer machinery.
 * Closing the gate, or cancelling the context it was created with, stops
 * the pending timer and drops the source subscription. A value that never
 * stabilises never emits.
 */

// DebounceOptions configures a debounce gate.
type DebounceOptions struct {
	// Delay is the quiet window. Zero or negative means types.DefaultDebounce.
	Delay time.Duration

	// Clock schedules the countdown. Nil means clock.Real().
	Clock clock.Clock
}

func (o DebounceOptions) withDefaults() DebounceOptions {
	if o.Delay <= 0 {
		o.Delay = types.DefaultDebounce
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	return o
}

// Debounced mirrors a source value, updating only once the source has been
// stable for the configured delay.
type Debounced[T any] struct {
	out   *Signal[T]
	clock clock.Clock
	delay time.Duration

	mu         sync.Mutex
	pending    T
	generation uint64
	timer      clock.Timer
	closed     bool

	unsubscribe func()
	stopCtx     func() bool
}

// NewDebounced creates a gate over source. The gated value starts at the
// source's current value. The gate is closed when ctx is done.
func NewDebounced[T any](ctx context.Context, source Readable[T], opts DebounceOptions) *Debounced[T] {
	opts = opts.withDefaults()
	d := &Debounced[T]{
		out: NewSignal(source.Get(), WithEqual(func(a, b T) bool {
			return reflect.DeepEqual(a, b)
		})),
		clock: opts.Clock,
		delay: opts.Delay,
	}
	d.unsubscribe = source.Subscribe(d.schedule)
	d.stopCtx = context.AfterFunc(ctx, d.Close)
	return d
}

// Get returns the last emitted value.
func (d *Debounced[T]) Get() T {
	return d.out.Get()
}

// Subscribe registers fn for every debounced emission.
func (d *Debounced[T]) Subscribe(fn func(T)) func() {
	return d.out.Subscribe(fn)
}

// Delay returns the gate's quiet window.
func (d *Debounced[T]) Delay() time.Duration {
	return d.delay
}

// Close cancels any pending emission and releases the source subscription.
// Safe to call more than once.
func (d *Debounced[T]) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	d.unsubscribe()
	d.stopCtx()
}

// schedule records v and restarts the countdown.
func (d *Debounced[T]) schedule(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.pending = v
	d.generation++
	if d.timer != nil {
		d.timer.Stop()
	}
	gen := d.generation
	d.timer = d.clock.AfterFunc(d.delay, func() { d.fire(gen) })
}

// fire emits the pending value unless a newer change restarted the
// countdown after this timer was armed.
func (d *Debounced[T]) fire(gen uint64) {
	d.mu.Lock()
	if d.closed || gen != d.generation {
		d.mu.Unlock()
		return
	}
	v := d.pending
	d.timer = nil
	d.mu.Unlock()

	d.out.Set(v)
}

// DebouncedEffect is a debounce gate that additionally calls a callback
// once per debounced emission.
type DebouncedEffect[T any] struct {
	*Debounced[T]
	unsubscribeEffect func()
}

// NewDebouncedEffect creates a gate over source and invokes callback with
// each emitted value. The callback runs on the clock's timer goroutine.
func NewDebouncedEffect[T any](ctx context.Context, source Readable[T], callback func(T), opts DebounceOptions) *DebouncedEffect[T] {
	d := NewDebounced(ctx, source, opts)
	return &DebouncedEffect[T]{
		Debounced:         d,
		unsubscribeEffect: d.Subscribe(callback),
	}
}

// Close cancels the gate and the callback subscription.
func (e *DebouncedEffect[T]) Close() {
	e.unsubscribeEffect()
	e.Debounced.Close()
}
