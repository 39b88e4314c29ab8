// Package store persists users, group membership edges, permission grants
// and hashed API keys behind narrow per-concern interfaces.
//
// The single SQLStore implementation covers all of them over database/sql,
// running against PostgreSQL (lib/pq) in production and in-memory SQLite in
// tests. Permission rows are idempotent sets: inserts use ON CONFLICT DO
// NOTHING so granting the same permission twice is a no-op.
//
// The user_groups table stores raw directed edges and makes no acyclicity
// guarantee; cycle safety belongs to the traversal code in pkg/authz.
package store
