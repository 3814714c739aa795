package server

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/solatis/fieldflow/internal/core/api"
	"github.com/solatis/fieldflow/internal/core/auth"
	"github.com/solatis/fieldflow/internal/core/config"
	"github.com/solatis/fieldflow/internal/core/db"
)

const secretID = "0123456789abcdef0123456789abcdef"

var secret = []byte("an hmac secret that is at least 32 bytes long")

type harness struct {
	client *api.DerivationClient
	conn   *grpc.ClientConn
	store  *db.Store
	key    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	database, err := db.Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.MigrateUp(ctx, database, nil))

	queries, err := db.LoadQueries(database)
	require.NoError(t, err)
	store := db.NewStore(database, queries)

	key, hash, err := auth.GenerateAPIKey(secretID, secret)
	require.NoError(t, err)
	_, err = store.CreateAPIKey(ctx, "ci", hash)
	require.NoError(t, err)

	cfg := config.DefaultServiceConfig()
	service, err := api.NewService(store, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(service.Close)

	authenticator := auth.NewAuthenticator(map[string][]byte{secretID: secret}, queries, nil)
	srv, err := NewGRPCServer(cfg, service, authenticator, nil)
	require.NoError(t, err)

	listener := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(listener) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &harness{client: api.NewDerivationClient(conn), conn: conn, store: store, key: key}
}

func (h *harness) authed() context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), auth.MetadataKey, h.key)
}

func TestNewGRPCServerValidatesArguments(t *testing.T) {
	cfg := config.DefaultServiceConfig()
	authenticator := auth.NewAuthenticator(nil, nil, nil)

	_, err := NewGRPCServer(nil, nil, authenticator, nil)
	assert.Error(t, err)
	_, err = NewGRPCServer(cfg, nil, authenticator, nil)
	assert.Error(t, err)
}

func TestEndToEnd(t *testing.T) {
	h := newHarness(t)

	in, err := api.Encode(api.SyncDefinitionRequest{Definition: `
form: order
derivations:
  - target: items.$.total
    source: items.$.qty
    dependsOn: [items.$.qty]
`})
	require.NoError(t, err)
	out, err := h.client.SyncDefinition(h.authed(), in)
	require.NoError(t, err)

	var synced api.SyncDefinitionResponse
	require.NoError(t, api.Decode(out, &synced))
	assert.True(t, synced.Changed)

	_, rec, err := h.store.LoadDefinition(context.Background(), "order")
	require.NoError(t, err)
	assert.Equal(t, "ci", rec.UpdatedBy)

	in, err = api.Encode(api.AffectedEntriesRequest{Form: "order", Changed: []string{"items.0.qty"}})
	require.NoError(t, err)
	out, err = h.client.AffectedEntries(h.authed(), in)
	require.NoError(t, err)

	var affected api.AffectedEntriesResponse
	require.NoError(t, api.Decode(out, &affected))
	require.Len(t, affected.Immediate, 1)
	assert.Equal(t, "items.$.total", affected.Immediate[0].Target)
}

func TestRequiresAPIKey(t *testing.T) {
	h := newHarness(t)
	in, err := api.Encode(api.AffectedEntriesRequest{Form: "order"})
	require.NoError(t, err)

	_, err = h.client.AffectedEntries(context.Background(), in)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	bad := metadata.AppendToOutgoingContext(context.Background(), auth.MetadataKey,
		auth.FormatAPIKey(secretID, "00000000000000000000000000000000000000000000000000000000000000ff"))
	_, err = h.client.AffectedEntries(bad, in)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestRevokedKey(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	keys, err := h.store.ListAPIKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.NoError(t, h.store.RevokeAPIKey(ctx, keys[0].APIKeyID))

	in, err := api.Encode(api.AffectedEntriesRequest{Form: "order"})
	require.NoError(t, err)
	_, err = h.client.AffectedEntries(h.authed(), in)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestHealthRequiresAPIKeyToo(t *testing.T) {
	h := newHarness(t)
	health := grpc_health_v1.NewHealthClient(h.conn)

	_, err := health.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	resp, err := health.Check(h.authed(), &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.Status)
}
