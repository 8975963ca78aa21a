// Package types holds shared value types with no natural owning package.
// Today that is only HealthStatus, consumed by the health package's
// probes and by anything that aggregates them with Combine.
package types
