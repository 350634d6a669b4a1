// Package domain defines the exam aggregate: the exam root with its rooms and
// staffing, per-student attendance records and their state machine, and the
// cross-room transfer workflow. All state transitions are pure functions over
// value types; persistence and locking live in outer layers.
package domain
