package domain

import (
	"strings"
	"time"

	apperrors "github.com/hallwatch/hallwatch/internal/platform/errors"
)

// AttendanceStatus describes where a student currently is in an exam.
type AttendanceStatus string

const (
	AttendanceUnspecified AttendanceStatus = ""
	// AttendanceNotArrived is the initial roster state.
	AttendanceNotArrived AttendanceStatus = "not_arrived"
	// AttendancePresent means the student is seated and working.
	AttendancePresent AttendanceStatus = "present"
	// AttendanceTempOut means the student is on a bathroom break.
	AttendanceTempOut AttendanceStatus = "temp_out"
	// AttendanceMoving pins the record while a transfer request is pending.
	AttendanceMoving AttendanceStatus = "moving"
	// AttendanceAbsent is terminal: the student never sat the exam.
	AttendanceAbsent AttendanceStatus = "absent"
	// AttendanceFinished is terminal: the student handed in.
	AttendanceFinished AttendanceStatus = "finished"
)

// ParseAttendanceStatus maps a persisted label back to an AttendanceStatus.
// Unknown labels are a data-integrity error, never a new state.
func ParseAttendanceStatus(value string) (AttendanceStatus, bool) {
	switch AttendanceStatus(strings.ToLower(strings.TrimSpace(value))) {
	case AttendanceNotArrived:
		return AttendanceNotArrived, true
	case AttendancePresent:
		return AttendancePresent, true
	case AttendanceTempOut:
		return AttendanceTempOut, true
	case AttendanceMoving:
		return AttendanceMoving, true
	case AttendanceAbsent:
		return AttendanceAbsent, true
	case AttendanceFinished:
		return AttendanceFinished, true
	default:
		return AttendanceUnspecified, false
	}
}

// AttendanceStatuses lists the closed enumeration in snapshot order.
func AttendanceStatuses() []AttendanceStatus {
	return []AttendanceStatus{
		AttendanceNotArrived,
		AttendancePresent,
		AttendanceTempOut,
		AttendanceMoving,
		AttendanceAbsent,
		AttendanceFinished,
	}
}

// IsTerminal reports whether no further attendance transition is legal.
// Absent is treated as terminal; a very late arrival needs an admin
// correction, not an automatic transition.
func (s AttendanceStatus) IsTerminal() bool {
	return s == AttendanceAbsent || s == AttendanceFinished
}

// AttendanceRecord tracks one registered student through one exam.
// Records are created when the roster is built and never deleted; every
// mutation goes through the transition functions below.
type AttendanceRecord struct {
	ExamID    string
	StudentID string
	RoomID    string
	Seat      string
	Status    AttendanceStatus
	ArrivedAt *time.Time
	// OutStartedAt is set while a break is active.
	OutStartedAt *time.Time
	FinishedAt   *time.Time
	LastStatusAt time.Time
	// Violations counts recorded violations; it never resets.
	Violations int
	// PendingTransferID binds the record to its single pending transfer.
	PendingTransferID string
}

// IsLateArrival reports whether the student arrived after the grace window.
func (r AttendanceRecord) IsLateArrival(windowStart time.Time, grace time.Duration) bool {
	if r.ArrivedAt == nil {
		return false
	}
	return r.ArrivedAt.After(windowStart.Add(grace))
}

func invalidTransition(r AttendanceRecord, attempted string) *apperrors.Error {
	return apperrors.WithMetadata(apperrors.CodeInvalidTransition,
		"attendance transition is not legal from the current status", map[string]string{
			"student_id":     r.StudentID,
			"current_status": string(r.Status),
			"attempted":      attempted,
		})
}

// MarkArrived transitions not_arrived → present and stamps the arrival.
func MarkArrived(r AttendanceRecord, now time.Time) (AttendanceRecord, error) {
	if r.Status != AttendanceNotArrived {
		return AttendanceRecord{}, invalidTransition(r, "mark_arrived")
	}
	arrived := now.UTC()
	r.Status = AttendancePresent
	r.ArrivedAt = &arrived
	r.LastStatusAt = arrived
	return r, nil
}

// StartBreak transitions present → temp_out. Starting a second break while
// one is active fails: there is exactly one active break per student.
func StartBreak(r AttendanceRecord, now time.Time) (AttendanceRecord, error) {
	if r.Status != AttendancePresent {
		return AttendanceRecord{}, invalidTransition(r, "start_break")
	}
	started := now.UTC()
	r.Status = AttendanceTempOut
	r.OutStartedAt = &started
	r.LastStatusAt = started
	return r, nil
}

// EndBreak transitions temp_out → present and returns the break duration
// measured on the simulated clock.
func EndBreak(r AttendanceRecord, now time.Time) (AttendanceRecord, time.Duration, error) {
	if r.Status != AttendanceTempOut || r.OutStartedAt == nil {
		return AttendanceRecord{}, 0, invalidTransition(r, "end_break")
	}
	ended := now.UTC()
	duration := ended.Sub(*r.OutStartedAt)
	if duration < 0 {
		duration = 0
	}
	r.Status = AttendancePresent
	r.OutStartedAt = nil
	r.LastStatusAt = ended
	return r, duration, nil
}

// MarkAbsent transitions any non-terminal, non-pinned status to absent.
func MarkAbsent(r AttendanceRecord, now time.Time) (AttendanceRecord, error) {
	if r.Status.IsTerminal() || r.Status == AttendanceMoving {
		return AttendanceRecord{}, invalidTransition(r, "mark_absent")
	}
	at := now.UTC()
	r.Status = AttendanceAbsent
	r.OutStartedAt = nil
	r.LastStatusAt = at
	return r, nil
}

// MarkFinished transitions any non-terminal, non-pinned status to finished.
// A pending transfer must be resolved or cancelled first.
func MarkFinished(r AttendanceRecord, now time.Time) (AttendanceRecord, error) {
	if r.Status.IsTerminal() || r.Status == AttendanceMoving {
		return AttendanceRecord{}, invalidTransition(r, "mark_finished")
	}
	at := now.UTC()
	r.Status = AttendanceFinished
	r.FinishedAt = &at
	r.OutStartedAt = nil
	r.LastStatusAt = at
	return r, nil
}

// RecordViolation increments the violation counter. It is always legal, even
// after finish or on an ended exam, because misconduct may surface later; it
// never changes the attendance status.
func RecordViolation(r AttendanceRecord) AttendanceRecord {
	r.Violations++
	return r
}

// PinMoving binds the record to a pending transfer request.
func PinMoving(r AttendanceRecord, requestID string, now time.Time) (AttendanceRecord, error) {
	if r.Status != AttendancePresent && r.Status != AttendanceTempOut {
		return AttendanceRecord{}, invalidTransition(r, "request_transfer")
	}
	if r.PendingTransferID != "" {
		return AttendanceRecord{}, apperrors.WithMetadata(apperrors.CodeTransferAlreadyPending,
			"student already has a pending transfer", map[string]string{
				"student_id": r.StudentID,
				"request_id": r.PendingTransferID,
			})
	}
	r.Status = AttendanceMoving
	r.PendingTransferID = requestID
	r.LastStatusAt = now.UTC()
	return r, nil
}

// UnpinMoving releases the transfer pin, optionally relocating the student,
// and reverts the record to present.
func UnpinMoving(r AttendanceRecord, requestID, toRoomID, toSeat string, now time.Time) (AttendanceRecord, error) {
	if r.Status != AttendanceMoving || r.PendingTransferID != requestID {
		return AttendanceRecord{}, invalidTransition(r, "resolve_transfer")
	}
	if toRoomID != "" {
		r.RoomID = toRoomID
		r.Seat = toSeat
	}
	r.Status = AttendancePresent
	r.PendingTransferID = ""
	r.LastStatusAt = now.UTC()
	return r, nil
}
