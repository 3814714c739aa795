package api

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/fieldflow/internal/core/auth"
	"github.com/solatis/fieldflow/internal/core/config"
	"github.com/solatis/fieldflow/internal/core/db"
	"github.com/solatis/fieldflow/internal/types"
)

const orderYAML = `
form: order
defaultMessages:
  required: This field is required
  min: Must be at least {{min}}
fields:
  total:
    messages:
      min: Total must be at least {{min}}
derivations:
  - target: items.$.total
    source: items.$.qty
    dependsOn: [items.$.qty, items.$.price]
  - target: total
    source: items
    dependsOn: [items.$.total]
  - target: summary
    source: total
    dependsOn: ["*"]
    trigger: debounced
  - target: shipping
    source: country
    dependsOn: [country]
    trigger: debounced
    debounceMs: 300
`

func newTestService(t *testing.T) (*Service, *db.Store) {
	t.Helper()
	ctx := context.Background()

	database, err := db.Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.MigrateUp(ctx, database, nil))

	q, err := db.LoadQueries(database)
	require.NoError(t, err)
	store := db.NewStore(database, q)

	cfg := config.DefaultServiceConfig()
	cfg.FormCacheSize = 2
	svc, err := NewService(store, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc, store
}

func call[Req, Resp any](t *testing.T, method func(context.Context, *structpb.Struct) (*structpb.Struct, error), ctx context.Context, req Req) (Resp, error) {
	t.Helper()
	var resp Resp
	in, err := Encode(req)
	require.NoError(t, err)
	out, err := method(ctx, in)
	if err != nil {
		return resp, err
	}
	require.NoError(t, Decode(out, &resp))
	return resp, nil
}

func syncForm(t *testing.T, svc *Service, yaml string) SyncDefinitionResponse {
	t.Helper()
	ctx := auth.WithPrincipal(context.Background(), auth.Principal{KeyID: "k", Name: "ci"})
	resp, err := call[SyncDefinitionRequest, SyncDefinitionResponse](t, svc.SyncDefinition, ctx, SyncDefinitionRequest{Definition: yaml})
	require.NoError(t, err)
	return resp
}

func targets(views []EntryView) []string {
	out := make([]string, 0, len(views))
	for _, v := range views {
		out = append(out, v.Target)
	}
	return out
}

func TestSyncDefinition(t *testing.T) {
	svc, store := newTestService(t)

	first := syncForm(t, svc, orderYAML)
	assert.Equal(t, "order", first.Form)
	assert.True(t, first.Changed)
	assert.Equal(t, 4, first.EntryCount)
	assert.NotEmpty(t, first.ETag)

	again := syncForm(t, svc, orderYAML)
	assert.False(t, again.Changed)
	assert.Equal(t, first.ETag, again.ETag)

	_, rec, err := store.LoadDefinition(context.Background(), "order")
	require.NoError(t, err)
	assert.Equal(t, "ci", rec.UpdatedBy)
}

func TestSyncDefinitionRejectsInvalid(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for name, yaml := range map[string]string{
		"malformed yaml": "form: [",
		"unknown key":    "form: x\nextra: 1\n",
		"cycle":          "form: x\nderivations:\n  - {target: a, source: b, dependsOn: [b]}\n  - {target: b, source: a, dependsOn: [a]}\n",
		"no deps":        "form: x\nderivations:\n  - {target: a, source: b}\n",
		"duplicate id":   "form: x\nderivations:\n  - {id: t, target: a, source: b, dependsOn: [b]}\n  - {id: t, target: c, source: b, dependsOn: [b]}\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := call[SyncDefinitionRequest, SyncDefinitionResponse](t, svc.SyncDefinition, ctx, SyncDefinitionRequest{Definition: yaml})
			assert.Equal(t, codes.InvalidArgument, status.Code(err))
		})
	}
}

func TestAffectedEntries(t *testing.T) {
	svc, _ := newTestService(t)
	syncForm(t, svc, orderYAML)
	ctx := context.Background()

	resp, err := call[AffectedEntriesRequest, AffectedEntriesResponse](t, svc.AffectedEntries, ctx,
		AffectedEntriesRequest{Form: "order", Changed: []string{"items.1.qty", "country"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"items.$.total"}, targets(resp.Immediate))
	assert.ElementsMatch(t, []string{"shipping", "summary"}, targets(resp.Debounced))
	assert.Equal(t, []int{300, types.DefaultDebounceMs}, resp.DebouncePeriods)
	assert.NotEmpty(t, resp.ETag)
}

func TestAffectedEntriesErrors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := call[AffectedEntriesRequest, AffectedEntriesResponse](t, svc.AffectedEntries, ctx, AffectedEntriesRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = call[AffectedEntriesRequest, AffectedEntriesResponse](t, svc.AffectedEntries, ctx, AffectedEntriesRequest{Form: "missing"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestSyncDefinitionUpdatesCachedRuntime(t *testing.T) {
	svc, _ := newTestService(t)
	syncForm(t, svc, orderYAML)
	ctx := context.Background()

	before, err := call[AffectedEntriesRequest, AffectedEntriesResponse](t, svc.AffectedEntries, ctx,
		AffectedEntriesRequest{Form: "order", Changed: []string{"country"}})
	require.NoError(t, err)
	require.Equal(t, []string{"shipping", "summary"}, targets(before.Debounced))

	updated := syncForm(t, svc, "form: order\nderivations:\n  - {target: tax, source: country, dependsOn: [country]}\n")
	require.True(t, updated.Changed)

	after, err := call[AffectedEntriesRequest, AffectedEntriesResponse](t, svc.AffectedEntries, ctx,
		AffectedEntriesRequest{Form: "order", Changed: []string{"country"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"tax"}, targets(after.Immediate))
	assert.Empty(t, after.Debounced)
	assert.Equal(t, updated.ETag, after.ETag)
}

func TestResolveErrors(t *testing.T) {
	svc, _ := newTestService(t)
	syncForm(t, svc, orderYAML)
	ctx := context.Background()

	resp, err := call[ResolveErrorsRequest, ResolveErrorsResponse](t, svc.ResolveErrors, ctx, ResolveErrorsRequest{
		Form:  "order",
		Field: "total",
		Errors: []types.RawError{
			{Kind: "min", Params: map[string]any{"min": 5}},
			{Kind: "required"},
			{Kind: "pattern", Message: "Digits only"},
			{Kind: "unknown"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []types.ResolvedError{
		{Kind: "min", Message: "Total must be at least 5"},
		{Kind: "required", Message: "This field is required"},
		{Kind: "pattern", Message: "Digits only"},
	}, resp.Errors)

	_, err = call[ResolveErrorsRequest, ResolveErrorsResponse](t, svc.ResolveErrors, ctx, ResolveErrorsRequest{Form: "order"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestFormCacheEviction(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		syncForm(t, svc, "form: "+name+"\nderivations:\n  - {target: y, source: x, dependsOn: [x]}\n")
		_, err := call[AffectedEntriesRequest, AffectedEntriesResponse](t, svc.AffectedEntries, ctx,
			AffectedEntriesRequest{Form: name, Changed: []string{"x"}})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, svc.forms.Len())
	assert.False(t, svc.forms.Contains("a"))
}
