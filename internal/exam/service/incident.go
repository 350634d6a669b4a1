package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hallwatch/hallwatch/internal/exam/domain"
	"github.com/hallwatch/hallwatch/internal/exam/event"
	apperrors "github.com/hallwatch/hallwatch/internal/platform/errors"
)

// incidentFieldLimit bounds the free-form key/value pairs on a reported
// incident so the ledger never carries unbounded payloads.
const incidentFieldLimit = 16

// ReportIncidentParams describes one reported incident. StudentID is
// optional: a global incident (broken projector, fire alarm) names only the
// room it concerns.
type ReportIncidentParams struct {
	StudentID   string
	RoomID      string
	Severity    event.Severity
	Description string
	Fields      map[string]string
}

// loadForIncident is loadForMutation minus the running-only gate: incident
// logging is also legal on an ended exam, because misconduct may surface
// during grading. Scheduled exams stay closed.
func (s *Service) loadForIncident(ctx context.Context, examID string) (domain.Exam, error) {
	exam, err := s.stores.Exams.Get(ctx, examID)
	if err != nil {
		return domain.Exam{}, err
	}
	if exam.Status != domain.ExamStatusRunning && exam.Status != domain.ExamStatusEnded {
		return domain.Exam{}, errExamNotActive(exam)
	}
	return exam, nil
}

// ReportIncident appends an incident fact to the ledger. Student incidents
// route by the student's current room; global incidents must name a room so
// that its supervisor sees them.
func (s *Service) ReportIncident(ctx context.Context, actor domain.Actor, examID string, params ReportIncidentParams) (event.Event, error) {
	lock := s.lockFor(examID)
	lock.Lock()
	defer lock.Unlock()

	exam, err := s.loadForIncident(ctx, examID)
	if err != nil {
		return event.Event{}, err
	}
	if len(params.Fields) > incidentFieldLimit {
		return event.Event{}, apperrors.WithMetadata(apperrors.CodeEventInvalidType,
			"incident carries too many detail fields", map[string]string{
				"fields": fmt.Sprintf("%d", len(params.Fields)),
				"limit":  fmt.Sprintf("%d", incidentFieldLimit),
			})
	}

	roomID, seat := params.RoomID, ""
	if params.StudentID != "" {
		record, err := s.stores.Attendance.GetAttendance(ctx, examID, params.StudentID)
		if err != nil {
			return event.Event{}, err
		}
		roomID, seat = record.RoomID, record.Seat
	} else if _, ok := exam.RoomByID(roomID); !ok {
		return event.Event{}, apperrors.WithMetadata(apperrors.CodeNotFound,
			"global incidents must name a room of this exam", map[string]string{
				"exam_id": examID,
				"room_id": roomID,
			})
	}
	if !domain.CanActInRoom(exam, actor, roomID) {
		return event.Event{}, domain.ErrNotAuthorizedForRoom(actor, roomID)
	}

	payload, err := json.Marshal(event.IncidentReportedPayload{Fields: params.Fields})
	if err != nil {
		return event.Event{}, fmt.Errorf("marshal incident payload: %w", err)
	}
	return s.appendEvent(ctx, event.Event{
		ExamID:      examID,
		Timestamp:   exam.SimNow(s.realNow()),
		Type:        event.TypeIncidentReported,
		Severity:    params.Severity,
		RoomID:      roomID,
		Seat:        seat,
		StudentID:   params.StudentID,
		ActorID:     actor.ID,
		ActorRole:   string(actor.Role),
		Description: params.Description,
		PayloadJSON: payload,
	})
}

// RecordViolation increments a student's violation counter and appends the
// corresponding incident. It never changes the attendance status and stays
// legal after the student finished or the exam ended.
func (s *Service) RecordViolation(ctx context.Context, actor domain.Actor, examID, studentID string, severity event.Severity, description string) (domain.AttendanceRecord, error) {
	lock := s.lockFor(examID)
	lock.Lock()
	defer lock.Unlock()

	exam, err := s.loadForIncident(ctx, examID)
	if err != nil {
		return domain.AttendanceRecord{}, err
	}
	record, err := s.stores.Attendance.GetAttendance(ctx, examID, studentID)
	if err != nil {
		return domain.AttendanceRecord{}, err
	}
	if !domain.CanActInRoom(exam, actor, record.RoomID) {
		return domain.AttendanceRecord{}, domain.ErrNotAuthorizedForRoom(actor, record.RoomID)
	}

	updated := domain.RecordViolation(record)
	payload, err := json.Marshal(event.ViolationRecordedPayload{
		ViolationCount: updated.Violations,
		PostFinish:     updated.Status == domain.AttendanceFinished,
	})
	if err != nil {
		return domain.AttendanceRecord{}, fmt.Errorf("marshal violation payload: %w", err)
	}
	if err := s.persistWithEvent(ctx, updated, event.Event{
		ExamID:      examID,
		Timestamp:   exam.SimNow(s.realNow()),
		Type:        event.TypeViolationRecorded,
		Severity:    severity,
		RoomID:      updated.RoomID,
		Seat:        updated.Seat,
		StudentID:   studentID,
		ActorID:     actor.ID,
		ActorRole:   string(actor.Role),
		Description: description,
		PayloadJSON: payload,
	}); err != nil {
		return domain.AttendanceRecord{}, err
	}
	return updated, nil
}
