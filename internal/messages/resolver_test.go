package messages

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/fieldflow/internal/reactive"
	"github.com/solatis/fieldflow/internal/types"
)

type fixture struct {
	errors   *reactive.Signal[[]types.RawError]
	field    *reactive.Signal[Map]
	defaults *reactive.Signal[Map]
	logs     *bytes.Buffer
	resolver *Resolver
}

func newFixture(t *testing.T, field, defaults Map, raw ...types.RawError) *fixture {
	t.Helper()
	f := &fixture{
		errors:   reactive.NewSignal(raw),
		field:    reactive.NewSignal(field),
		defaults: reactive.NewSignal(defaults),
		logs:     &bytes.Buffer{},
	}
	logger := slog.New(slog.NewTextHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	r, err := NewResolver(Config{
		Field:           "amount",
		Errors:          f.errors,
		FieldMessages:   f.field,
		DefaultMessages: f.defaults,
		Logger:          logger,
	})
	require.NoError(t, err)
	t.Cleanup(r.Close)
	f.resolver = r
	return f
}

func TestResolverPriorityChain(t *testing.T) {
	f := newFixture(t,
		StaticMap(map[string]string{"required": "Amount is required"}),
		StaticMap(map[string]string{"required": "Required", "min": "Too small"}),
		types.RawError{Kind: "required"},
		types.RawError{Kind: "min"},
		types.RawError{Kind: "custom", Message: "Custom text"},
	)

	assert.Equal(t, []types.ResolvedError{
		{Kind: "required", Message: "Amount is required"},
		{Kind: "min", Message: "Too small"},
		{Kind: "custom", Message: "Custom text"},
	}, f.resolver.Get())
}

func TestResolverDefaultMessage(t *testing.T) {
	f := newFixture(t, Map{},
		StaticMap(map[string]string{"required": "Required"}),
		types.RawError{Kind: "required"},
	)
	assert.Equal(t, []types.ResolvedError{{Kind: "required", Message: "Required"}}, f.resolver.Get())
}

func TestResolverInterpolatesParams(t *testing.T) {
	f := newFixture(t,
		StaticMap(map[string]string{"min": "Must be at least {{min}}"}),
		Map{},
		types.RawError{Kind: "min", Params: map[string]any{"min": float64(5)}},
	)
	assert.Equal(t, []types.ResolvedError{{Kind: "min", Message: "Must be at least 5"}}, f.resolver.Get())
}

func TestResolverUnknownPlaceholderKeptLiteral(t *testing.T) {
	f := newFixture(t,
		StaticMap(map[string]string{"x": "Hello {{name}}"}),
		Map{},
		types.RawError{Kind: "x", Params: map[string]any{}},
	)
	assert.Equal(t, "Hello {{name}}", f.resolver.Get()[0].Message)
}

func TestResolverDropsAndWarnsOnMissingMessage(t *testing.T) {
	f := newFixture(t, Map{}, Map{},
		types.RawError{Kind: "unknown"},
		types.RawError{Kind: "other", Message: "Kept"},
	)

	assert.Equal(t, []types.ResolvedError{{Kind: "other", Message: "Kept"}}, f.resolver.Get())
	out := f.logs.String()
	assert.Equal(t, 1, strings.Count(out, "level=WARN"))
	assert.Contains(t, out, "kind=unknown")
	assert.Contains(t, out, "field=amount")
}

func TestResolverEmptyErrors(t *testing.T) {
	f := newFixture(t, Map{}, Map{})
	got := f.resolver.Get()
	require.NotNil(t, got)
	assert.Empty(t, got)
	assert.Empty(t, f.logs.String())
}

func TestResolverFollowsErrorChanges(t *testing.T) {
	f := newFixture(t, StaticMap(map[string]string{"required": "Required"}), Map{})

	var emitted [][]types.ResolvedError
	f.resolver.Subscribe(func(v []types.ResolvedError) { emitted = append(emitted, v) })

	f.errors.Set([]types.RawError{{Kind: "required"}})
	f.errors.Set(nil)

	require.Len(t, emitted, 2)
	assert.Equal(t, []types.ResolvedError{{Kind: "required", Message: "Required"}}, emitted[0])
	assert.Empty(t, emitted[1])
}

func TestResolverFollowsMessageMapChanges(t *testing.T) {
	f := newFixture(t, Map{}, StaticMap(map[string]string{"required": "Required"}),
		types.RawError{Kind: "required"})

	f.field.Set(StaticMap(map[string]string{"required": "Amount please"}))
	assert.Equal(t, "Amount please", f.resolver.Get()[0].Message)

	f.field.Set(Map{})
	assert.Equal(t, "Required", f.resolver.Get()[0].Message)
}

func TestResolverReactiveMessage(t *testing.T) {
	text := reactive.NewSignal("Minimum is {{min}}")
	f := newFixture(t, Map{"min": Reactive(text)}, Map{},
		types.RawError{Kind: "min", Params: map[string]any{"min": 3}})

	assert.Equal(t, "Minimum is 3", f.resolver.Get()[0].Message)

	text.Set("Mínimo {{min}}")
	assert.Equal(t, "Mínimo 3", f.resolver.Get()[0].Message)
}

func TestResolverReleasesStaleMessageSubscriptions(t *testing.T) {
	text := reactive.NewSignal("A")
	f := newFixture(t, Map{"x": Reactive(text)}, Map{}, types.RawError{Kind: "x"})
	require.Equal(t, 1, text.Subscribers())

	for i := 0; i < 10; i++ {
		f.errors.Set([]types.RawError{{Kind: "x"}})
	}
	assert.Equal(t, 1, text.Subscribers())

	f.errors.Set(nil)
	assert.Equal(t, 0, text.Subscribers())
}

func TestResolverClose(t *testing.T) {
	text := reactive.NewSignal("A")
	f := newFixture(t, Map{"x": Reactive(text)}, Map{}, types.RawError{Kind: "x"})

	f.resolver.Close()
	f.resolver.Close()

	assert.Equal(t, 0, text.Subscribers())
	assert.Equal(t, 0, f.errors.Subscribers())
	assert.Equal(t, 0, f.field.Subscribers())
	assert.Equal(t, 0, f.defaults.Subscribers())

	f.errors.Set([]types.RawError{{Kind: "y", Message: "ignored"}})
	assert.Equal(t, "A", f.resolver.Get()[0].Message)
}

func TestResolve(t *testing.T) {
	ip, err := NewInterpolator(0)
	require.NoError(t, err)

	got := Resolve(
		[]types.RawError{{Kind: "max", Params: map[string]any{"max": 9}}, {Kind: "none"}},
		Map{},
		StaticMap(map[string]string{"max": "At most {{max}}"}),
		ip,
		slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
	)
	assert.Equal(t, []types.ResolvedError{{Kind: "max", Message: "At most 9"}}, got)
	assert.Empty(t, Resolve(nil, nil, nil, ip, nil))
}

func TestResolveInterpolatesValidatorMessage(t *testing.T) {
	ip, err := NewInterpolator(0)
	require.NoError(t, err)
	defaults := StaticMap(map[string]string{"pattern": "Invalid: {{message}}"})

	got := Resolve(
		[]types.RawError{
			{Kind: "pattern", Message: "digits only"},
			{Kind: "pattern", Message: "digits only", Params: map[string]any{"message": "explicit"}},
			{Kind: "pattern"},
		},
		Map{}, defaults, ip, nil,
	)
	assert.Equal(t, []types.ResolvedError{
		{Kind: "pattern", Message: "Invalid: digits only"},
		{Kind: "pattern", Message: "Invalid: explicit"},
		{Kind: "pattern", Message: "Invalid: {{message}}"},
	}, got)
}
