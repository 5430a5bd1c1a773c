package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"sqlgate/cli/internal/gate"
	"sqlgate/cli/internal/sqlexec"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

func customers() gate.Runner {
	return gate.RunnerFunc(func(ctx context.Context, stmt string, write bool, maxRows int) (*sqlexec.Result, error) {
		return &sqlexec.Result{
			Columns: []string{"id", "name"},
			Rows:    [][]any{{int64(1), "Alice"}, {int64(2), nil}},
		}, nil
	})
}

func startServer(t *testing.T, runner gate.Runner, token string) *Client {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	cfg := gate.DefaultConfig()
	cfg.QueryTimeout = time.Second
	srv := NewServer(gate.New(runner, cfg, nil), token, nil)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.GracefulStop)

	c, err := Dial("passthrough:///bufnet", token,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCheckDoesNotExecute(t *testing.T) {
	calls := 0
	runner := gate.RunnerFunc(func(ctx context.Context, stmt string, write bool, maxRows int) (*sqlexec.Result, error) {
		calls++
		return &sqlexec.Result{}, nil
	})
	c := startServer(t, runner, "")

	resp, err := c.Check(context.Background(), "```sql\nSELECT * FROM customers\n```")
	require.NoError(t, err)
	assert.True(t, resp.Allowed)
	assert.Equal(t, "SELECT * FROM customers;", resp.Sanitized)
	assert.Equal(t, "SELECT * FROM customers LIMIT 100;", resp.Statement)
	assert.Empty(t, resp.State)
	assert.Zero(t, calls)
}

func TestCheckRejection(t *testing.T) {
	c := startServer(t, customers(), "")

	resp, err := c.Check(context.Background(), "SELECT name FROM users; DROP TABLE users;")
	require.NoError(t, err, "rejections are normal responses")
	assert.False(t, resp.Allowed)
	assert.Equal(t, string(gate.CheckDestructive), resp.Check)
	assert.Equal(t, "DROP operations are not allowed", resp.Reason)
}

func TestRun(t *testing.T) {
	c := startServer(t, customers(), "")

	resp, err := c.Run(context.Background(), "SELECT id, name FROM customers")
	require.NoError(t, err)
	assert.True(t, resp.Allowed)
	assert.Equal(t, "completed", resp.State)
	assert.Equal(t, []string{"id", "name"}, resp.Columns)
	require.Len(t, resp.Rows, 2)
	assert.Equal(t, []any{float64(1), "Alice"}, resp.Rows[0])
	assert.Equal(t, []any{float64(2), nil}, resp.Rows[1])
	assert.Positive(t, resp.Bytes)
	assert.False(t, resp.Oversized)
	assert.JSONEq(t, `{"columns":["id","name"],"rows":[[1,"Alice"],[2,null]]}`, resp.Message)
}

func TestRunRejectedIsNotExecuted(t *testing.T) {
	c := startServer(t, customers(), "")

	resp, err := c.Run(context.Background(), "SELECT * FROM orders LIMIT 500;")
	require.NoError(t, err)
	assert.False(t, resp.Allowed)
	assert.Equal(t, string(gate.CheckBoundCeiling), resp.Check)
	assert.Equal(t, "idle", resp.State)
	assert.Equal(t, "❌ LIMIT 500 exceeds maximum allowed (100)", resp.Message)
	assert.Empty(t, resp.Rows)
}

func TestMalformedRequest(t *testing.T) {
	c := startServer(t, customers(), "")

	in, err := structpb.NewStruct(map[string]interface{}{"sql": 42.0})
	require.NoError(t, err)
	err = c.Conn().Invoke(context.Background(), methodRun, in, new(structpb.Struct))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	err = c.Conn().Invoke(context.Background(), methodCheck, &structpb.Struct{}, new(structpb.Struct))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestToken(t *testing.T) {
	c := startServer(t, customers(), "s3cret")

	_, err := c.Check(context.Background(), "SELECT 1;")
	require.NoError(t, err)

	anon := &Client{conn: c.Conn()}
	_, err = anon.Check(context.Background(), "SELECT 1;")
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestHealth(t *testing.T) {
	c := startServer(t, customers(), "")

	resp, err := healthpb.NewHealthClient(c.Conn()).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestDialTLS(t *testing.T) {
	c, err := Dial("gate.example.com:443", "", TLSOption("gate.example.com:443"))
	require.NoError(t, err)
	assert.NoError(t, c.Close())
}
