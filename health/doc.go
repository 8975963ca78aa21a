// Package health provides reusable health check functions for preflight
// checks against the engine's external dependencies.
//
// # Health Check Functions
//
// The package provides six health check functions:
//
//   - ProviderCheck: Issue a minimal call through a provider.Adapter to a named backend
//   - RedisCheck: Ping the Redis instance backing the rate limiter
//   - EtcdCheck: Read a key from the etcd cluster backing the checkpoint store
//   - NetworkCheck: Verify TCP connectivity to a host:port
//   - FileCheck: Verify a file or directory exists
//   - Combine: Aggregate multiple health checks into a single status
//
// # Usage Example
//
//	import (
//	    "context"
//	    "time"
//	    "github.com/arcreliability/engine/health"
//	)
//
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	defer cancel()
//
//	// Combine multiple checks
//	overall := health.Combine(
//	    health.ProviderCheck(ctx, adapter, "anthropic"),
//	    health.RedisCheck(ctx, redisClient),
//	    health.FileCheck("/var/lib/engine/checkpoints"),
//	    health.NetworkCheck(ctx, "api.example.com", 443),
//	)
//
//	if overall.IsUnhealthy() {
//	    log.Printf("Health check failed: %s", overall.Message)
//	    log.Printf("Details: %+v", overall.Details)
//	}
//
// # Health Status Priority
//
// When combining health checks with Combine(), the result follows this priority:
//
//   - Unhealthy: If any check is unhealthy, the combined result is unhealthy
//   - Degraded: If any check is degraded (and none unhealthy), the result is degraded
//   - Healthy: If all checks are healthy, the result is healthy
//
// # Context and Timeouts
//
// ProviderCheck, RedisCheck, EtcdCheck and NetworkCheck accept a context
// for timeout and cancellation control. If nil is passed, ProviderCheck
// uses a default 10-second timeout and the other three a default
// 5-second timeout.
//
// ProviderCheck reports a call served by a downgraded model as degraded.
package health
