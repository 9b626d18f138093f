// Package store persists opportunity lifecycles and spread snapshots
// to PostgreSQL.
//
// Opportunity opens and closes are written synchronously as they
// happen. Snapshots flow through a batching writer that flushes on
// size or interval, whichever comes first.
package store
