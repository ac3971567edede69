// Package store persists groups, members and bucket-list items.
//
// The websocket hub never reads from here: REST handlers mutate the store
// first and only then hand the resulting event to the hub for fan-out.
// Two implementations exist, an in-memory one used by default and in tests
// and a PostgreSQL one backed by pgxpool.
package store
