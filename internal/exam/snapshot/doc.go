// Package snapshot builds the read-side dashboard projection: per-status
// attendance counts, a per-room breakdown, and the simulated time remaining.
//
// Snapshots are computed on demand from the attendance records and the cached
// student rollups. They are not authoritative; the event ledger is.
//
// Room scoping is resolved in exactly one place (ResolveScope) so the
// supervisor/lecturer/admin visibility defaults cannot diverge between the
// dashboard and any other query consumer.
package snapshot
