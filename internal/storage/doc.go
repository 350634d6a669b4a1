// Package storage defines the persistence boundaries for exam state: the
// append-only event ledger, attendance and transfer records, derived student
// rollups, and staff messages. Implementations live in subpackages.
package storage
