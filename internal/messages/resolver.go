package messages

import (
	"log/slog"
	"sync"

	"github.com/solatis/fieldflow/internal/reactive"
	"github.com/solatis/fieldflow/internal/types"
)

/*
 * Reactive message resolution for one field.
 *
 * Three upstream sources drive a recompute: the field's raw errors, the
 * field-level message map and the form-level default map. A recompute picks
 * a message per error, then subscribes to every picked message that is
 * reactive. Those subscriptions re-render without re-picking. Every
 * recompute cancels the previous generation of message subscriptions, so
 * rapid error-list churn does not accumulate them.
 *
 * An empty error list short-circuits to an empty result without touching
 * the message maps' entries.
 *
 * Subscribers of the resolver are called with the resolver's lock held and
 * must not call Close from the callback.
 */

// Config wires a Resolver to its sources.
type Config struct {
	// Field names the field in warnings.
	Field string

	Errors          reactive.Readable[[]types.RawError]
	FieldMessages   reactive.Readable[Map]
	DefaultMessages reactive.Readable[Map]

	// Interpolator renders {{param}} placeholders. Nil creates a default one.
	Interpolator *Interpolator

	// Logger receives missing-message warnings. Nil means slog.Default().
	Logger *slog.Logger
}

// choice is the message picked for one raw error.
type choice struct {
	err types.RawError
	msg Message
}

// Resolver produces the resolved errors of one field.
type Resolver struct {
	field  string
	cfg    Config
	interp *Interpolator
	logger *slog.Logger
	out    *reactive.Signal[[]types.ResolvedError]

	mu          sync.Mutex
	choices     []choice
	messageSubs []func()
	sourceSubs  []func()
	closed      bool
}

// NewResolver creates a resolver and computes its initial value.
func NewResolver(cfg Config) (*Resolver, error) {
	interp := cfg.Interpolator
	if interp == nil {
		var err error
		interp, err = NewInterpolator(0)
		if err != nil {
			return nil, err
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FieldMessages == nil {
		cfg.FieldMessages = reactive.NewSignal(Map{})
	}
	if cfg.DefaultMessages == nil {
		cfg.DefaultMessages = reactive.NewSignal(Map{})
	}

	r := &Resolver{
		field:  cfg.Field,
		cfg:    cfg,
		interp: interp,
		logger: logger.With("field", cfg.Field),
		out:    reactive.NewSignal[[]types.ResolvedError](nil),
	}

	r.mu.Lock()
	r.recomputeLocked()
	r.mu.Unlock()

	r.sourceSubs = []func(){
		cfg.Errors.Subscribe(func([]types.RawError) { r.recompute() }),
		cfg.FieldMessages.Subscribe(func(Map) { r.recompute() }),
		cfg.DefaultMessages.Subscribe(func(Map) { r.recompute() }),
	}
	return r, nil
}

// Get returns the current resolved errors.
func (r *Resolver) Get() []types.ResolvedError {
	return r.out.Get()
}

// Subscribe registers fn for every new resolved list.
func (r *Resolver) Subscribe(fn func([]types.ResolvedError)) func() {
	return r.out.Subscribe(fn)
}

// Close releases every upstream subscription.
func (r *Resolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for _, unsubscribe := range r.sourceSubs {
		unsubscribe()
	}
	r.cancelMessageSubsLocked()
}

func (r *Resolver) recompute() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.recomputeLocked()
}

// recomputeLocked re-picks messages and resubscribes. Caller holds r.mu.
func (r *Resolver) recomputeLocked() {
	r.cancelMessageSubsLocked()

	raw := r.cfg.Errors.Get()
	if len(raw) == 0 {
		r.choices = nil
		r.out.Set([]types.ResolvedError{})
		return
	}

	r.choices = pick(raw, r.cfg.FieldMessages.Get(), r.cfg.DefaultMessages.Get(), r.logger)
	for _, c := range r.choices {
		if c.msg.IsReactive() {
			r.messageSubs = append(r.messageSubs, c.msg.source.Subscribe(func(string) { r.rerender() }))
		}
	}
	r.emitLocked()
}

// rerender renders the current choices again after a reactive message changed.
func (r *Resolver) rerender() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.emitLocked()
}

func (r *Resolver) emitLocked() {
	resolved := make([]types.ResolvedError, 0, len(r.choices))
	for _, c := range r.choices {
		resolved = append(resolved, types.ResolvedError{
			Kind:    c.err.Kind,
			Message: r.interp.Interpolate(c.msg.Text(), c.err.TemplateParams()),
		})
	}
	r.out.Set(resolved)
}

func (r *Resolver) cancelMessageSubsLocked() {
	for _, unsubscribe := range r.messageSubs {
		unsubscribe()
	}
	r.messageSubs = nil
}

// pick chooses a message per error by priority, dropping and logging errors
// that have none.
func pick(raw []types.RawError, fieldMessages, defaultMessages Map, logger *slog.Logger) []choice {
	choices := make([]choice, 0, len(raw))
	for _, e := range raw {
		msg, ok := fieldMessages[e.Kind]
		if !ok {
			msg, ok = defaultMessages[e.Kind]
		}
		if !ok && e.Message != "" {
			msg, ok = Static(e.Message), true
		}
		if !ok {
			logger.Warn("no message configured for validation error; omitting it from display",
				"kind", e.Kind)
			continue
		}
		choices = append(choices, choice{err: e, msg: msg})
	}
	return choices
}

// Resolve resolves raw once against fixed message maps. It is the
// non-reactive form of Resolver for request/response callers.
func Resolve(raw []types.RawError, fieldMessages, defaultMessages Map, interp *Interpolator, logger *slog.Logger) []types.ResolvedError {
	if len(raw) == 0 {
		return []types.ResolvedError{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	choices := pick(raw, fieldMessages, defaultMessages, logger)
	resolved := make([]types.ResolvedError, 0, len(choices))
	for _, c := range choices {
		resolved = append(resolved, types.ResolvedError{
			Kind:    c.err.Kind,
			Message: interp.Interpolate(c.msg.Text(), c.err.TemplateParams()),
		})
	}
	return resolved
}
