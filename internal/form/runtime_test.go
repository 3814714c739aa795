package form

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/fieldflow/internal/clock"
	"github.com/solatis/fieldflow/internal/reactive"
	"github.com/solatis/fieldflow/internal/types"
)

type runLog struct {
	mu   sync.Mutex
	runs [][]string
}

func (l *runLog) run(_ context.Context, entries []*types.DerivationEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var targets []string
	for _, e := range entries {
		targets = append(targets, e.TargetFieldKey)
	}
	l.runs = append(l.runs, targets)
}

func (l *runLog) all() [][]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]string(nil), l.runs...)
}

func newRuntime(t *testing.T) (*Runtime, *runLog, *clock.FakeClock, *bytes.Buffer) {
	t.Helper()
	def, err := ParseDefinition([]byte(orderYAML))
	require.NoError(t, err)

	log := &runLog{}
	clk := clock.Fake(time.Unix(0, 0))
	buf := &bytes.Buffer{}

	rt, err := New(context.Background(), def, Options{
		Runner: log.run,
		Clock:  clk,
		Logger: slog.New(slog.NewTextHandler(buf, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(rt.Close)
	return rt, log, clk, buf
}

func targetsOf(entries []*types.DerivationEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.TargetFieldKey)
	}
	return out
}

func TestRuntimeAffected(t *testing.T) {
	rt, log, _, _ := newRuntime(t)

	got := targetsOf(rt.Affected("items.2.qty"))
	assert.ElementsMatch(t, []string{"items.$.total", "summary"}, got)
	assert.Empty(t, log.all())
}

func TestRuntimeChangedRunsOnChangeAndDebounces(t *testing.T) {
	rt, log, clk, _ := newRuntime(t)

	ran := rt.Changed("items.$.total")
	assert.Equal(t, []string{"total"}, targetsOf(ran))
	assert.Equal(t, []int{300}, rt.PendingWindows())

	rt.Changed("items.$.qty")
	clk.Advance(299 * time.Millisecond)
	assert.Len(t, log.all(), 2)

	clk.Advance(time.Millisecond)
	runs := log.all()
	require.Len(t, runs, 3)
	assert.Equal(t, []string{"summary"}, runs[2])
	assert.Empty(t, rt.PendingWindows())
}

func TestRuntimeReplace(t *testing.T) {
	rt, _, _, _ := newRuntime(t)
	require.NoError(t, rt.SetErrors("total", []types.RawError{{Kind: "required"}}))

	next := &types.FormDefinition{
		Name:            "order",
		DefaultMessages: map[string]string{"required": "Needed"},
		Derivations: []types.EntryDefinition{
			{Target: "tax", Source: "total", DependsOn: []string{"total"}},
		},
	}
	require.NoError(t, rt.Replace(next))

	assert.Equal(t, []string{"tax"}, targetsOf(rt.Affected("total")))
	assert.Empty(t, rt.Affected("items.$.qty"))
	assert.Same(t, next, rt.Definition())

	errs, err := rt.Errors("total")
	require.NoError(t, err)
	assert.Equal(t, []types.ResolvedError{{Kind: "required", Message: "Needed"}}, errs)
}

func TestRuntimeReplaceRejectsInvalid(t *testing.T) {
	rt, _, _, _ := newRuntime(t)
	before := rt.Definition()

	err := rt.Replace(&types.FormDefinition{
		Name:        "order",
		Derivations: []types.EntryDefinition{{Target: "a", Source: "b"}},
	})
	assert.ErrorIs(t, err, types.ErrNoDependencies)
	assert.Same(t, before, rt.Definition())
	assert.Equal(t, 3, rt.Index().Len())
}

func TestRuntimeErrors(t *testing.T) {
	rt, _, _, logs := newRuntime(t)

	require.NoError(t, rt.SetErrors("total", []types.RawError{
		{Kind: "min", Params: map[string]any{"min": 10}},
		{Kind: "required"},
		{Kind: "unknown"},
	}))

	errs, err := rt.Errors("total")
	require.NoError(t, err)
	assert.Equal(t, []types.ResolvedError{
		{Kind: "min", Message: "Total must be at least 10"},
		{Kind: "required", Message: "This field is required"},
	}, errs)
	assert.Contains(t, logs.String(), "kind=unknown")

	other, err := rt.Errors("name")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestRuntimeSubscribeAndReactiveMessage(t *testing.T) {
	rt, _, _, _ := newRuntime(t)

	var seen []string
	unsubscribe, err := rt.SubscribeErrors("qty", func(v []types.ResolvedError) {
		if len(v) > 0 {
			seen = append(seen, v[0].Message)
		}
	})
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, rt.SetErrors("qty", []types.RawError{{Kind: "required"}}))

	text := reactive.NewSignal("Quantity needed")
	require.NoError(t, rt.SetFieldMessage("qty", "required", text))
	text.Set("Quantity is needed")

	assert.Equal(t, []string{"This field is required", "Quantity needed", "Quantity is needed"}, seen)
}

func TestRuntimeClose(t *testing.T) {
	rt, log, clk, _ := newRuntime(t)

	rt.Changed("total")
	rt.Close()
	rt.Close()
	clk.Advance(time.Second)

	assert.Empty(t, log.all())
	_, err := rt.Errors("total")
	assert.Error(t, err)
	assert.Error(t, rt.Replace(rt.Definition()))
}

func TestRuntimeReplaceKeepsFieldMessageOverrides(t *testing.T) {
	rt, _, _, _ := newRuntime(t)
	require.NoError(t, rt.SetErrors("total", []types.RawError{
		{Kind: "required"},
		{Kind: "min", Params: map[string]any{"min": 2}},
	}))
	require.NoError(t, rt.SetFieldMessage("total", "required", reactive.NewSignal("Enter a total")))

	next := &types.FormDefinition{
		Name:            "order",
		DefaultMessages: map[string]string{"required": "Needed"},
		Fields: map[string]types.FieldDefinition{
			"total": {Messages: map[string]string{"min": "Minimum {{min}}"}},
		},
		Derivations: []types.EntryDefinition{
			{Target: "tax", Source: "total", DependsOn: []string{"total"}},
		},
	}
	require.NoError(t, rt.Replace(next))

	errs, err := rt.Errors("total")
	require.NoError(t, err)
	assert.Equal(t, []types.ResolvedError{
		{Kind: "required", Message: "Enter a total"},
		{Kind: "min", Message: "Minimum 2"},
	}, errs)
}
