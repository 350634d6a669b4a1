package domain

import (
	"errors"
	"testing"
	"time"

	apperrors "github.com/hallwatch/hallwatch/internal/platform/errors"
)

var attendanceNow = time.Date(2026, 3, 2, 9, 5, 0, 0, time.UTC)

func rosterRecord(status AttendanceStatus) AttendanceRecord {
	return AttendanceRecord{
		ExamID:    "exam1",
		StudentID: "stud1",
		RoomID:    "roomA",
		Seat:      "A1",
		Status:    status,
	}
}

func TestMarkArrived(t *testing.T) {
	rec, err := MarkArrived(rosterRecord(AttendanceNotArrived), attendanceNow)
	if err != nil {
		t.Fatalf("mark arrived: %v", err)
	}
	if rec.Status != AttendancePresent {
		t.Fatalf("expected present, got %s", rec.Status)
	}
	if rec.ArrivedAt == nil || !rec.ArrivedAt.Equal(attendanceNow) {
		t.Fatalf("expected arrival stamp %v, got %v", attendanceNow, rec.ArrivedAt)
	}

	_, err = MarkArrived(rec, attendanceNow)
	if !apperrors.IsCode(err, apperrors.CodeInvalidTransition) {
		t.Fatalf("expected invalid transition on double arrival, got %v", err)
	}
}

func TestStartBreakGuardsActiveBreak(t *testing.T) {
	rec, err := MarkArrived(rosterRecord(AttendanceNotArrived), attendanceNow)
	if err != nil {
		t.Fatalf("mark arrived: %v", err)
	}

	rec, err = StartBreak(rec, attendanceNow.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("start break: %v", err)
	}
	if rec.Status != AttendanceTempOut {
		t.Fatalf("expected temp_out, got %s", rec.Status)
	}

	// A second start with no intervening end must fail.
	_, err = StartBreak(rec, attendanceNow.Add(11*time.Minute))
	if !apperrors.IsCode(err, apperrors.CodeInvalidTransition) {
		t.Fatalf("expected invalid transition for double break, got %v", err)
	}
}

func TestEndBreakComputesDuration(t *testing.T) {
	rec, _ := MarkArrived(rosterRecord(AttendanceNotArrived), attendanceNow)
	rec, _ = StartBreak(rec, attendanceNow.Add(10*time.Minute))

	rec, duration, err := EndBreak(rec, attendanceNow.Add(26*time.Minute))
	if err != nil {
		t.Fatalf("end break: %v", err)
	}
	if duration != 16*time.Minute {
		t.Fatalf("expected 16m break, got %v", duration)
	}
	if rec.Status != AttendancePresent {
		t.Fatalf("expected present after break, got %s", rec.Status)
	}
	if rec.OutStartedAt != nil {
		t.Fatal("expected cleared break start")
	}

	_, _, err = EndBreak(rec, attendanceNow.Add(27*time.Minute))
	if !apperrors.IsCode(err, apperrors.CodeInvalidTransition) {
		t.Fatalf("expected invalid transition ending inactive break, got %v", err)
	}
}

func TestTerminalTransitions(t *testing.T) {
	tests := []struct {
		name string
		from AttendanceStatus
		call func(AttendanceRecord) (AttendanceRecord, error)
		ok   bool
	}{
		{name: "absent from present", from: AttendancePresent, call: func(r AttendanceRecord) (AttendanceRecord, error) { return MarkAbsent(r, attendanceNow) }, ok: true},
		{name: "absent from not_arrived", from: AttendanceNotArrived, call: func(r AttendanceRecord) (AttendanceRecord, error) { return MarkAbsent(r, attendanceNow) }, ok: true},
		{name: "absent is terminal", from: AttendanceAbsent, call: func(r AttendanceRecord) (AttendanceRecord, error) { return MarkArrived(r, attendanceNow) }, ok: false},
		{name: "finish from temp_out", from: AttendanceTempOut, call: func(r AttendanceRecord) (AttendanceRecord, error) { return MarkFinished(r, attendanceNow) }, ok: true},
		{name: "finish while moving", from: AttendanceMoving, call: func(r AttendanceRecord) (AttendanceRecord, error) { return MarkFinished(r, attendanceNow) }, ok: false},
		{name: "absent while moving", from: AttendanceMoving, call: func(r AttendanceRecord) (AttendanceRecord, error) { return MarkAbsent(r, attendanceNow) }, ok: false},
		{name: "finish after finish", from: AttendanceFinished, call: func(r AttendanceRecord) (AttendanceRecord, error) { return MarkFinished(r, attendanceNow) }, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.call(rosterRecord(tt.from))
			if tt.ok && err != nil {
				t.Fatalf("expected legal transition, got %v", err)
			}
			if !tt.ok && !apperrors.IsCode(err, apperrors.CodeInvalidTransition) {
				t.Fatalf("expected invalid transition, got %v", err)
			}
		})
	}
}

func TestMarkFinishedStampsFinishedAt(t *testing.T) {
	rec, err := MarkFinished(rosterRecord(AttendancePresent), attendanceNow)
	if err != nil {
		t.Fatalf("mark finished: %v", err)
	}
	if rec.FinishedAt == nil || !rec.FinishedAt.Equal(attendanceNow) {
		t.Fatalf("expected finished stamp, got %v", rec.FinishedAt)
	}
}

func TestRecordViolationAlwaysLegal(t *testing.T) {
	for _, status := range AttendanceStatuses() {
		rec := RecordViolation(rosterRecord(status))
		if rec.Violations != 1 {
			t.Fatalf("status %s: expected violation counter 1, got %d", status, rec.Violations)
		}
		if rec.Status != status {
			t.Fatalf("status %s: expected unchanged status, got %s", status, rec.Status)
		}
	}
}

func TestPinMoving(t *testing.T) {
	rec, err := PinMoving(rosterRecord(AttendancePresent), "req1", attendanceNow)
	if err != nil {
		t.Fatalf("pin moving: %v", err)
	}
	if rec.Status != AttendanceMoving || rec.PendingTransferID != "req1" {
		t.Fatalf("expected moving pin, got %s/%q", rec.Status, rec.PendingTransferID)
	}

	_, err = PinMoving(rec, "req2", attendanceNow)
	if !apperrors.IsCode(err, apperrors.CodeInvalidTransition) {
		t.Fatalf("expected invalid transition on pinned record, got %v", err)
	}

	_, err = PinMoving(rosterRecord(AttendanceNotArrived), "req1", attendanceNow)
	if !apperrors.IsCode(err, apperrors.CodeInvalidTransition) {
		t.Fatalf("expected invalid transition from not_arrived, got %v", err)
	}
}

func TestUnpinMoving(t *testing.T) {
	pinned, _ := PinMoving(rosterRecord(AttendancePresent), "req1", attendanceNow)

	moved, err := UnpinMoving(pinned, "req1", "roomB", "B7", attendanceNow.Add(time.Minute))
	if err != nil {
		t.Fatalf("unpin moving: %v", err)
	}
	if moved.RoomID != "roomB" || moved.Seat != "B7" {
		t.Fatalf("expected relocation to roomB/B7, got %s/%s", moved.RoomID, moved.Seat)
	}
	if moved.Status != AttendancePresent || moved.PendingTransferID != "" {
		t.Fatalf("expected present unpinned record, got %s/%q", moved.Status, moved.PendingTransferID)
	}

	stayed, err := UnpinMoving(pinned, "req1", "", "", attendanceNow.Add(time.Minute))
	if err != nil {
		t.Fatalf("unpin without move: %v", err)
	}
	if stayed.RoomID != "roomA" || stayed.Seat != "A1" {
		t.Fatalf("expected student kept in source room, got %s/%s", stayed.RoomID, stayed.Seat)
	}

	_, err = UnpinMoving(pinned, "other-req", "", "", attendanceNow)
	if !apperrors.IsCode(err, apperrors.CodeInvalidTransition) {
		t.Fatalf("expected invalid transition for mismatched request, got %v", err)
	}
}

func TestIsLateArrival(t *testing.T) {
	windowStart := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	grace := 15 * time.Minute

	onTime, _ := MarkArrived(rosterRecord(AttendanceNotArrived), windowStart.Add(14*time.Minute))
	if onTime.IsLateArrival(windowStart, grace) {
		t.Fatal("expected arrival inside grace to not be late")
	}

	late, _ := MarkArrived(rosterRecord(AttendanceNotArrived), windowStart.Add(16*time.Minute))
	if !late.IsLateArrival(windowStart, grace) {
		t.Fatal("expected arrival after grace to be late")
	}

	if rosterRecord(AttendanceNotArrived).IsLateArrival(windowStart, grace) {
		t.Fatal("expected no late flag before arrival")
	}
}

func TestParseAttendanceStatusClosedEnum(t *testing.T) {
	for _, status := range AttendanceStatuses() {
		parsed, ok := ParseAttendanceStatus(string(status))
		if !ok || parsed != status {
			t.Fatalf("expected %s to round-trip, got %s/%v", status, parsed, ok)
		}
	}
	if _, ok := ParseAttendanceStatus("sleeping"); ok {
		t.Fatal("expected unknown status to be rejected")
	}
}

func TestParseRoleAndTransferStatus(t *testing.T) {
	if role, ok := ParseRole(" Supervisor "); !ok || role != RoleSupervisor {
		t.Fatalf("expected supervisor role, got %s/%v", role, ok)
	}
	if _, ok := ParseRole("janitor"); ok {
		t.Fatal("expected unknown role to be rejected")
	}
	if status, ok := ParseTransferStatus("APPROVED"); !ok || status != TransferApproved {
		t.Fatalf("expected approved, got %s/%v", status, ok)
	}
	if _, ok := ParseTransferStatus("stalled"); ok {
		t.Fatal("expected unknown transfer status to be rejected")
	}
}

func TestNewIDShape(t *testing.T) {
	id, err := NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	if len(id) != 26 {
		t.Fatalf("expected 26-char id, got %d (%q)", len(id), id)
	}
	other, err := NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	if id == other {
		t.Fatal("expected distinct ids")
	}
}

func TestInvalidTransitionMetadata(t *testing.T) {
	_, err := StartBreak(rosterRecord(AttendanceTempOut), attendanceNow)
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("expected domain error, got %v", err)
	}
	if appErr.Metadata["current_status"] != "temp_out" || appErr.Metadata["attempted"] != "start_break" {
		t.Fatalf("expected transition context metadata, got %v", appErr.Metadata)
	}
}
