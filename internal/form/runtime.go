package form

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/solatis/fieldflow/internal/clock"
	"github.com/solatis/fieldflow/internal/derivation"
	"github.com/solatis/fieldflow/internal/messages"
	"github.com/solatis/fieldflow/internal/reactive"
	"github.com/solatis/fieldflow/internal/types"
)

// Options configures a Runtime. Zero values pick the defaults.
type Options struct {
	// Runner evaluates due entries. Nil logs each due entry at debug level.
	Runner derivation.Runner

	Clock        clock.Clock
	Logger       *slog.Logger
	Interpolator *messages.Interpolator
	Compile      derivation.CompileOptions
}

// fieldState is the per-field message wiring.
type fieldState struct {
	errors    *reactive.Signal[[]types.RawError]
	messages  *reactive.Signal[messages.Map]
	overrides messages.Map // guarded by Runtime.msgMu
	resolver  *messages.Resolver
}

// Runtime is the live engine for one form.
type Runtime struct {
	opts     Options
	logger   *slog.Logger
	entries  *reactive.Signal[[]*types.DerivationEntry]
	index    *derivation.Collection
	dispatch *derivation.Dispatcher
	defaults *reactive.Signal[messages.Map]

	// msgMu orders message map updates from Replace and SetFieldMessage.
	msgMu sync.Mutex

	mu     sync.Mutex
	def    *types.FormDefinition
	fields map[string]*fieldState
	closed bool
}

// New compiles def and starts a runtime for it. Debounced runs stop when
// ctx is done or Close is called.
func New(ctx context.Context, def *types.FormDefinition, opts Options) (*Runtime, error) {
	entries, err := CompileDefinition(def, opts.Compile)
	if err != nil {
		return nil, err
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Interpolator == nil {
		ip, err := messages.NewInterpolator(0)
		if err != nil {
			return nil, err
		}
		opts.Interpolator = ip
	}

	logger := opts.Logger.With("form", def.Name)
	if opts.Runner == nil {
		opts.Runner = logRunner(logger)
	}

	r := &Runtime{
		opts:     opts,
		logger:   logger,
		entries:  reactive.NewSignal(entries),
		defaults: reactive.NewSignal(messages.StaticMap(def.DefaultMessages)),
		def:      def,
		fields:   make(map[string]*fieldState),
	}
	r.index = derivation.NewCollection(derivation.SignalEntries(r.entries))
	r.dispatch = derivation.NewDispatcher(ctx, r.index, opts.Runner, opts.Clock)

	logger.Debug("form runtime started", "entries", len(entries))
	return r, nil
}

// Definition returns the definition currently in effect.
func (r *Runtime) Definition() *types.FormDefinition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.def
}

// Index returns the runtime's derivation index.
func (r *Runtime) Index() *derivation.Collection {
	return r.index
}

// Replace swaps in a new definition. On a compile error the current
// definition stays in effect. Messages set with SetFieldMessage survive
// and keep precedence over the new catalog.
func (r *Runtime) Replace(def *types.FormDefinition) error {
	entries, err := CompileDefinition(def, r.opts.Compile)
	if err != nil {
		return err
	}

	r.msgMu.Lock()
	defer r.msgMu.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return fmt.Errorf("form %q: runtime closed", def.Name)
	}
	r.def = def
	fields := make(map[string]*fieldState, len(r.fields))
	for name, st := range r.fields {
		fields[name] = st
	}
	r.mu.Unlock()

	r.entries.Set(entries)
	r.defaults.Set(messages.StaticMap(def.DefaultMessages))
	for name, st := range fields {
		st.messages.Set(fieldMessages(def, name, st.overrides))
	}

	r.logger.Info("form definition replaced", "entries", len(entries))
	return nil
}

// Affected returns the entries a change to fields would schedule, without
// scheduling them.
func (r *Runtime) Affected(fields ...string) []*types.DerivationEntry {
	return r.index.EntriesForChangedFields(derivation.NewFieldSet(fields...))
}

// Changed reports changed fields. OnChange entries run before Changed
// returns and are returned; debounced entries are scheduled.
func (r *Runtime) Changed(fields ...string) []*types.DerivationEntry {
	return r.dispatch.Notify(derivation.NewFieldSet(fields...))
}

// PendingWindows returns the debounce windows holding unprocessed changes.
func (r *Runtime) PendingWindows() []int {
	windows := r.dispatch.PendingWindows()
	sort.Ints(windows)
	return windows
}

// Idle reports whether every debounced change has been run.
func (r *Runtime) Idle() bool {
	return r.dispatch.Idle()
}

// SetErrors replaces the raw validation errors of field.
func (r *Runtime) SetErrors(field string, raw []types.RawError) error {
	st, err := r.field(field)
	if err != nil {
		return err
	}
	st.errors.Set(raw)
	return nil
}

// Errors returns the resolved errors of field.
func (r *Runtime) Errors(field string) ([]types.ResolvedError, error) {
	st, err := r.field(field)
	if err != nil {
		return nil, err
	}
	return st.resolver.Get(), nil
}

// SubscribeErrors registers fn for every new resolved list of field.
func (r *Runtime) SubscribeErrors(field string, fn func([]types.ResolvedError)) (func(), error) {
	st, err := r.field(field)
	if err != nil {
		return nil, err
	}
	return st.resolver.Subscribe(fn), nil
}

// SetFieldMessage overrides one message of field with a reactive source.
func (r *Runtime) SetFieldMessage(field, kind string, source reactive.Readable[string]) error {
	st, err := r.field(field)
	if err != nil {
		return err
	}

	r.msgMu.Lock()
	defer r.msgMu.Unlock()

	if st.overrides == nil {
		st.overrides = make(messages.Map)
	}
	st.overrides[kind] = messages.Reactive(source)

	r.mu.Lock()
	def := r.def
	r.mu.Unlock()
	st.messages.Set(fieldMessages(def, field, st.overrides))
	return nil
}

// fieldMessages merges a field's catalog messages with its overrides.
func fieldMessages(def *types.FormDefinition, field string, overrides messages.Map) messages.Map {
	m := messages.StaticMap(def.Fields[field].Messages)
	if len(overrides) == 0 {
		return m
	}
	for kind, msg := range overrides {
		m[kind] = msg
	}
	return m
}

// Close stops pending debounced runs and releases every resolver.
func (r *Runtime) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	fields := r.fields
	r.fields = nil
	r.mu.Unlock()

	r.dispatch.Close()
	for _, st := range fields {
		st.resolver.Close()
	}
	r.logger.Debug("form runtime closed")
}

// field returns the state of name, creating its resolver on first use.
func (r *Runtime) field(name string) (*fieldState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("form %q: runtime closed", r.def.Name)
	}
	if st, ok := r.fields[name]; ok {
		return st, nil
	}

	st := &fieldState{
		errors:   reactive.NewSignal[[]types.RawError](nil),
		messages: reactive.NewSignal(messages.StaticMap(r.def.Fields[name].Messages)),
	}
	resolver, err := messages.NewResolver(messages.Config{
		Field:           name,
		Errors:          st.errors,
		FieldMessages:   st.messages,
		DefaultMessages: r.defaults,
		Interpolator:    r.opts.Interpolator,
		Logger:          r.logger,
	})
	if err != nil {
		return nil, err
	}
	st.resolver = resolver
	r.fields[name] = st
	return st, nil
}

func logRunner(logger *slog.Logger) derivation.Runner {
	return func(_ context.Context, entries []*types.DerivationEntry) {
		for _, e := range entries {
			logger.Debug("derivation due",
				"id", e.ID,
				"target", e.TargetFieldKey,
				"trigger", e.Trigger)
		}
	}
}
