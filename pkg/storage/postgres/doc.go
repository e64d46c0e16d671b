// Package postgres owns database and Redis connectivity: the pooled
// connection manager with optional read replicas, the forward-only schema
// migrations and the Redis client factory used by the distributed rate
// limiter.
package postgres
