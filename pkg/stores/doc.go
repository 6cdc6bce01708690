// Package stores persists synthesis reports across orchestration runs.
// Component instances themselves are never persisted; only the report
// is. The SQLite implementation keeps history queryable long after the
// run-scoped state is gone.
package stores
