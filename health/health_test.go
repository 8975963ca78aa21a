package health

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcreliability/engine/provider"
	"github.com/arcreliability/engine/types"
)

type fakeBackend struct {
	name       string
	err        error
	downgraded bool
}

func (b *fakeBackend) Name() string { return b.name }

func (b *fakeBackend) Complete(ctx context.Context, req provider.Request, opts ...provider.Option) (*provider.Response, error) {
	if b.err != nil {
		return nil, b.err
	}
	body, _ := json.Marshal(map[string]any{"ok": true})
	return &provider.Response{Content: string(body), ModelID: "ping-model", Downgraded: b.downgraded}, nil
}

func (b *fakeBackend) CostPerToken(model string) float64  { return 0 }
func (b *fakeBackend) DowngradeModel(model string) string { return "" }

func TestProviderCheck_NilAdapterIsUnhealthy(t *testing.T) {
	status := ProviderCheck(context.Background(), nil, "anthropic")
	assert.True(t, status.IsUnhealthy())
}

func TestProviderCheck_HealthyBackendIsHealthy(t *testing.T) {
	backend := &fakeBackend{name: "anthropic"}
	adapter := provider.New(provider.Config{}, nil, backend)

	status := ProviderCheck(context.Background(), adapter, "anthropic")
	assert.True(t, status.IsHealthy())
}

func TestProviderCheck_FailedCallIsUnhealthy(t *testing.T) {
	backend := &fakeBackend{name: "anthropic", err: errors.New("connection refused")}
	adapter := provider.New(provider.Config{}, nil, backend)

	status := ProviderCheck(context.Background(), adapter, "anthropic")
	assert.True(t, status.IsUnhealthy())
}

func TestProviderCheck_DowngradedResponseIsDegraded(t *testing.T) {
	backend := &fakeBackend{name: "anthropic", downgraded: true}
	adapter := provider.New(provider.Config{}, nil, backend)

	status := ProviderCheck(context.Background(), adapter, "anthropic")
	assert.True(t, status.IsDegraded())
}

func TestRedisCheck_NilClientIsUnhealthy(t *testing.T) {
	status := RedisCheck(context.Background(), nil)
	assert.True(t, status.IsUnhealthy())
}

func TestRedisCheck_LiveServerIsHealthy(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	status := RedisCheck(context.Background(), client)
	assert.True(t, status.IsHealthy())
}

func TestRedisCheck_UnreachableServerIsUnhealthy(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	status := RedisCheck(ctx, client)
	assert.True(t, status.IsUnhealthy())
}

func TestEtcdCheck_NilClientIsUnhealthy(t *testing.T) {
	status := EtcdCheck(context.Background(), nil)
	assert.True(t, status.IsUnhealthy())
}

func TestNetworkCheck(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	addr := listener.Addr().(*net.TCPAddr)
	testPort := addr.Port

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	tests := []struct {
		name          string
		host          string
		port          int
		expectHealthy bool
	}{
		{name: "successful connection", host: "127.0.0.1", port: testPort, expectHealthy: true},
		{name: "unreachable port", host: "127.0.0.1", port: 65000, expectHealthy: false},
		{name: "invalid negative port", host: "127.0.0.1", port: -1, expectHealthy: false},
		{name: "invalid large port", host: "127.0.0.1", port: 70000, expectHealthy: false},
		{name: "empty host", host: "", port: 80, expectHealthy: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			status := NetworkCheck(ctx, tt.host, tt.port)
			assert.Equal(t, tt.expectHealthy, status.IsHealthy())
			assert.NotEmpty(t, status.Message)
		})
	}
}

func TestNetworkCheckWithNilContext(t *testing.T) {
	status := NetworkCheck(nil, "127.0.0.1", 65000)
	assert.True(t, status.IsUnhealthy())
}

func TestFileCheck(t *testing.T) {
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "test.txt")
	require.NoError(t, os.WriteFile(tmpFile, []byte("test"), 0644))

	tests := []struct {
		name          string
		path          string
		expectHealthy bool
	}{
		{name: "existing file", path: tmpFile, expectHealthy: true},
		{name: "existing directory", path: tmpDir, expectHealthy: true},
		{name: "non-existent path", path: "/this/path/definitely/does/not/exist/12345", expectHealthy: false},
		{name: "empty path", path: "", expectHealthy: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := FileCheck(tt.path)
			assert.Equal(t, tt.expectHealthy, status.IsHealthy())
			assert.NotEmpty(t, status.Message)
		})
	}
}

func TestCombine(t *testing.T) {
	tests := []struct {
		name         string
		checks       []types.HealthStatus
		expectStatus string
	}{
		{
			name: "all healthy",
			checks: []types.HealthStatus{
				types.NewHealthyStatus("check 1"),
				types.NewHealthyStatus("check 2"),
			},
			expectStatus: types.StatusHealthy,
		},
		{
			name: "one unhealthy",
			checks: []types.HealthStatus{
				types.NewHealthyStatus("check 1"),
				types.NewUnhealthyStatus("check 2 failed", nil),
			},
			expectStatus: types.StatusUnhealthy,
		},
		{
			name: "one degraded",
			checks: []types.HealthStatus{
				types.NewHealthyStatus("check 1"),
				types.NewDegradedStatus("check 2 degraded", nil),
			},
			expectStatus: types.StatusDegraded,
		},
		{
			name: "unhealthy takes precedence over degraded",
			checks: []types.HealthStatus{
				types.NewDegradedStatus("check 1 degraded", nil),
				types.NewUnhealthyStatus("check 2 failed", nil),
			},
			expectStatus: types.StatusUnhealthy,
		},
		{name: "no checks", checks: []types.HealthStatus{}, expectStatus: types.StatusHealthy},
		{name: "nil checks", checks: nil, expectStatus: types.StatusHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := Combine(tt.checks...)
			assert.Equal(t, tt.expectStatus, status.Status)
			assert.NotEmpty(t, status.Message)
		})
	}
}

func BenchmarkCombine(b *testing.B) {
	checks := []types.HealthStatus{
		types.NewHealthyStatus("check 1"),
		types.NewHealthyStatus("check 2"),
		types.NewDegradedStatus("check 3", nil),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Combine(checks...)
	}
}
