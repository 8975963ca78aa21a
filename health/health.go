// Package health provides reusable health check functions for preflight
// checks against the engine's external dependencies: LLM providers, the
// Redis rate limiter, and the etcd checkpoint store.
package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"github.com/redis/go-redis/v9"

	"github.com/arcreliability/engine/provider"
	"github.com/arcreliability/engine/types"
)

// ProviderCheck issues a minimal call through the adapter to verify a
// backend is reachable and authenticated. A downgraded response is
// reported as degraded rather than healthy, since it signals the
// primary model was unavailable even though the call itself succeeded.
func ProviderCheck(ctx context.Context, adapter *provider.Adapter, backendName string) types.HealthStatus {
	if adapter == nil {
		return types.NewUnhealthyStatus("provider adapter is nil", nil)
	}

	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}

	resp, err := adapter.Call(ctx, backendName, provider.Request{
		Messages: []provider.Message{{Role: provider.RoleUser, Content: "ping"}},
	})
	if err != nil {
		return types.NewUnhealthyStatus(
			fmt.Sprintf("backend '%s' is unreachable", backendName),
			map[string]any{"backend": backendName, "error": err.Error()},
		)
	}

	if resp.Downgraded {
		return types.NewDegradedStatus(
			fmt.Sprintf("backend '%s' served the call from a downgraded model", backendName),
			map[string]any{"backend": backendName, "model_id": resp.ModelID},
		)
	}

	return types.NewHealthyStatus(fmt.Sprintf("backend '%s' reachable via model '%s'", backendName, resp.ModelID))
}

// RedisCheck verifies connectivity to the Redis instance backing the
// rate limiter.
func RedisCheck(ctx context.Context, client *redis.Client) types.HealthStatus {
	if client == nil {
		return types.NewUnhealthyStatus("redis client is nil", nil)
	}

	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}

	if err := client.Ping(ctx).Err(); err != nil {
		return types.NewUnhealthyStatus(
			"failed to ping redis",
			map[string]any{"error": err.Error()},
		)
	}

	return types.NewHealthyStatus("redis reachable")
}

// EtcdCheck verifies connectivity to the etcd cluster backing the
// keyed curriculum checkpoint store.
func EtcdCheck(ctx context.Context, client *clientv3.Client) types.HealthStatus {
	if client == nil {
		return types.NewUnhealthyStatus("etcd client is nil", nil)
	}

	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}

	if _, err := client.Get(ctx, "health-check"); err != nil {
		return types.NewUnhealthyStatus(
			"failed to reach etcd",
			map[string]any{"error": err.Error()},
		)
	}

	return types.NewHealthyStatus("etcd reachable")
}

// NetworkCheck verifies TCP connectivity to a host and port, useful for
// checking a provider endpoint before wiring an adapter to it.
func NetworkCheck(ctx context.Context, host string, port int) types.HealthStatus {
	if host == "" {
		return types.NewUnhealthyStatus("host cannot be empty", nil)
	}

	if port <= 0 || port > 65535 {
		return types.NewUnhealthyStatus(
			fmt.Sprintf("invalid port number: %d", port),
			map[string]any{"port": port},
		)
	}

	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}

	address := net.JoinHostPort(host, strconv.Itoa(port))
	var dialer net.Dialer

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return types.NewUnhealthyStatus(
			fmt.Sprintf("failed to connect to %s", address),
			map[string]any{"host": host, "port": port, "error": err.Error()},
		)
	}
	conn.Close()

	return types.NewHealthyStatus(fmt.Sprintf("successfully connected to %s", address))
}

// FileCheck verifies that a file or directory exists at the specified
// path. It checks existence only; it does not check that the path is
// readable or writable.
func FileCheck(path string) types.HealthStatus {
	if path == "" {
		return types.NewUnhealthyStatus("path cannot be empty", nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return types.NewUnhealthyStatus(
				fmt.Sprintf("path '%s' does not exist", path),
				map[string]any{"path": path},
			)
		}
		return types.NewUnhealthyStatus(
			fmt.Sprintf("failed to stat path '%s'", path),
			map[string]any{"path": path, "error": err.Error()},
		)
	}

	fileType := "file"
	if info.IsDir() {
		fileType = "directory"
	}

	return types.NewHealthyStatus(fmt.Sprintf("%s '%s' exists", fileType, path))
}

// Combine aggregates multiple health checks into a single status.
// The result follows this priority:
//   - If any check is unhealthy, the result is unhealthy
//   - If any check is degraded (and none unhealthy), the result is degraded
//   - If all checks are healthy, the result is healthy
func Combine(checks ...types.HealthStatus) types.HealthStatus {
	if len(checks) == 0 {
		return types.NewHealthyStatus("no checks provided")
	}

	var unhealthyChecks []string
	var degradedChecks []string
	var healthyCount int

	for _, check := range checks {
		switch check.Status {
		case types.StatusUnhealthy:
			msg := check.Message
			if msg == "" {
				msg = "unnamed check"
			}
			unhealthyChecks = append(unhealthyChecks, msg)
		case types.StatusDegraded:
			msg := check.Message
			if msg == "" {
				msg = "unnamed check"
			}
			degradedChecks = append(degradedChecks, msg)
		case types.StatusHealthy:
			healthyCount++
		}
	}

	if len(unhealthyChecks) > 0 {
		return types.NewUnhealthyStatus(
			fmt.Sprintf("%d check(s) failed", len(unhealthyChecks)),
			map[string]any{
				"total":         len(checks),
				"unhealthy":     len(unhealthyChecks),
				"degraded":      len(degradedChecks),
				"healthy":       healthyCount,
				"failed_checks": unhealthyChecks,
			},
		)
	}

	if len(degradedChecks) > 0 {
		return types.NewDegradedStatus(
			fmt.Sprintf("%d check(s) degraded", len(degradedChecks)),
			map[string]any{
				"total":           len(checks),
				"degraded":        len(degradedChecks),
				"healthy":         healthyCount,
				"degraded_checks": degradedChecks,
			},
		)
	}

	return types.NewHealthyStatus(fmt.Sprintf("all %d check(s) passed", len(checks)))
}
