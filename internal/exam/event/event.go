package event

import (
	"strings"
	"time"

	apperrors "github.com/hallwatch/hallwatch/internal/platform/errors"
)

// Type identifies the type of a ledger event.
type Type string

// Exam lifecycle events.
const (
	// TypeExamStatusChanged records an exam lifecycle transition.
	TypeExamStatusChanged Type = "exam.status_changed"
)

// Attendance events.
const (
	// TypeStudentArrived records a verified arrival at the student's seat.
	TypeStudentArrived Type = "attendance.arrived"
	// TypeStudentAbsent records a student confirmed as absent.
	TypeStudentAbsent Type = "attendance.absent"
	// TypeStudentFinished records a student handing in and leaving.
	TypeStudentFinished Type = "attendance.finished"
)

// Break events.
const (
	// TypeBreakStarted records a supervised break beginning.
	TypeBreakStarted Type = "break.started"
	// TypeBreakEnded records a break ending with its measured duration.
	TypeBreakEnded Type = "break.ended"
	// TypeBreakOverrun records a break that exceeded the long-break threshold.
	TypeBreakOverrun Type = "break.overrun"
)

// Transfer events. Events record facts after resolution, not requests in
// flight; the pending request itself lives in the transfer store.
const (
	// TypeTransferRequested records a cross-room transfer being opened.
	TypeTransferRequested Type = "transfer.requested"
	// TypeTransferApproved records a transfer approval and relocation.
	TypeTransferApproved Type = "transfer.approved"
	// TypeTransferRejected records a transfer rejection.
	TypeTransferRejected Type = "transfer.rejected"
	// TypeTransferCancelled records a transfer cancelled by its requester.
	TypeTransferCancelled Type = "transfer.cancelled"
)

// Incident events.
const (
	// TypeIncidentReported records an explicit incident report.
	TypeIncidentReported Type = "incident.reported"
	// TypeViolationRecorded records a rule violation against a student.
	TypeViolationRecorded Type = "incident.violation_recorded"
)

// Message events.
const (
	// TypeMessagePosted records a broadcast or direct staff message.
	TypeMessagePosted Type = "message.posted"
)

// Severity grades how serious an incident is.
type Severity string

const (
	// SeverityUnspecified represents an invalid severity value.
	SeverityUnspecified Severity = ""
	SeverityLow         Severity = "low"
	SeverityMedium      Severity = "medium"
	SeverityHigh        Severity = "high"
	SeverityCritical    Severity = "critical"
)

// ParseSeverity maps a persisted severity label back to a Severity.
// The enumeration is closed; anything outside it is a data-integrity error.
func ParseSeverity(value string) (Severity, bool) {
	switch Severity(strings.ToLower(strings.TrimSpace(value))) {
	case SeverityLow:
		return SeverityLow, true
	case SeverityMedium:
		return SeverityMedium, true
	case SeverityHigh:
		return SeverityHigh, true
	case SeverityCritical:
		return SeverityCritical, true
	default:
		return SeverityUnspecified, false
	}
}

// IsValid reports whether the severity is one of the closed enumeration values.
func (s Severity) IsValid() bool {
	_, ok := ParseSeverity(string(s))
	return ok
}

// Event represents an immutable fact in the append-only exam ledger.
// Events are never mutated or deleted after creation.
type Event struct {
	// ExamID is the exam this event belongs to.
	ExamID string
	// Seq is the event sequence number within the exam (starts at 1).
	// Assigned by storage on append.
	Seq uint64
	// Timestamp is the simulated exam time when the event occurred.
	Timestamp time.Time
	// Type identifies the kind of event.
	Type Type
	// Severity grades incident events; empty for non-incident facts.
	Severity Severity
	// RoomID is the room where the event occurred, when room-scoped.
	RoomID string
	// Seat is the seat label involved, when seat-scoped.
	Seat string
	// StudentID references the affected student, when student-scoped.
	StudentID string
	// ActorID is the acting user who caused the event.
	ActorID string
	// ActorRole is the acting user's role at the time of the event.
	ActorRole string
	// Description is the free-text account of what happened.
	Description string
	// PayloadJSON holds event-specific data as JSON.
	PayloadJSON []byte
}

// IsValid reports whether the event type is usable.
func (t Type) IsValid() bool {
	return strings.TrimSpace(string(t)) != ""
}

// Domain returns the domain prefix of the event type (e.g., "break",
// "transfer").
func (t Type) Domain() string {
	for i, c := range t {
		if c == '.' {
			return string(t[:i])
		}
	}
	return string(t)
}

// IsIncident reports whether the event counts toward a student's incident
// rollup.
func (t Type) IsIncident() bool {
	return t.Domain() == "incident" || t == TypeBreakOverrun
}

// Validate checks the structural invariants that hold for every appended
// event: a non-empty type, and a closed-enum severity on incident events.
func (e Event) Validate() error {
	if !e.Type.IsValid() {
		return apperrors.New(apperrors.CodeEventInvalidType, "event type is required")
	}
	if e.Type.IsIncident() && !e.Severity.IsValid() {
		return apperrors.WithMetadata(apperrors.CodeEventInvalidSeverity,
			"incident severity must be low, medium, high, or critical",
			map[string]string{"severity": string(e.Severity)})
	}
	if e.Severity != SeverityUnspecified && !e.Severity.IsValid() {
		return apperrors.WithMetadata(apperrors.CodeEventInvalidSeverity,
			"event severity is outside the closed enumeration",
			map[string]string{"severity": string(e.Severity)})
	}
	return nil
}
