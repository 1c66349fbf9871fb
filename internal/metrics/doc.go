// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - push feed connection state and message rates
//   - reconcile outcomes, latencies and failures
//   - listing and sale row churn
//   - event bus drops and connected subscribers
//   - recency gaps and full sweep progress
package metrics
