package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hallwatch/hallwatch/internal/exam/domain"
	"github.com/hallwatch/hallwatch/internal/exam/event"
	apperrors "github.com/hallwatch/hallwatch/internal/platform/errors"
)

func errExamNotActive(exam domain.Exam) *apperrors.Error {
	return apperrors.WithMetadata(apperrors.CodeExamNotActive,
		"exam is not running", map[string]string{
			"exam_id": exam.ID,
			"status":  string(exam.Status),
		})
}

// loadForMutation fetches the exam and one roster record, enforces that the
// exam is running and that the actor may act in the student's room, and
// returns the simulated now. Callers must hold the exam lock.
func (s *Service) loadForMutation(ctx context.Context, actor domain.Actor, examID, studentID string) (domain.Exam, domain.AttendanceRecord, time.Time, error) {
	exam, err := s.stores.Exams.Get(ctx, examID)
	if err != nil {
		return domain.Exam{}, domain.AttendanceRecord{}, time.Time{}, err
	}
	if exam.Status != domain.ExamStatusRunning {
		return domain.Exam{}, domain.AttendanceRecord{}, time.Time{}, errExamNotActive(exam)
	}
	record, err := s.stores.Attendance.GetAttendance(ctx, examID, studentID)
	if err != nil {
		return domain.Exam{}, domain.AttendanceRecord{}, time.Time{}, err
	}
	if !domain.CanActInRoom(exam, actor, record.RoomID) {
		return domain.Exam{}, domain.AttendanceRecord{}, time.Time{}, domain.ErrNotAuthorizedForRoom(actor, record.RoomID)
	}
	return exam, record, exam.SimNow(s.realNow()), nil
}

// persistWithEvent appends the fact and then stores the updated record. The
// ledger is written first: it is the source of truth, and a record that lags
// one event behind is recoverable by replay.
func (s *Service) persistWithEvent(ctx context.Context, record domain.AttendanceRecord, evt event.Event) error {
	if _, err := s.appendEvent(ctx, evt); err != nil {
		return err
	}
	if err := s.stores.Attendance.PutAttendance(ctx, record); err != nil {
		return fmt.Errorf("persist attendance: %w", err)
	}
	return nil
}

// MarkArrived verifies a student at their seat and transitions them to
// present. Arrivals past the grace window are flagged late on the event.
func (s *Service) MarkArrived(ctx context.Context, actor domain.Actor, examID, studentID string) (domain.AttendanceRecord, error) {
	lock := s.lockFor(examID)
	lock.Lock()
	defer lock.Unlock()

	exam, record, simNow, err := s.loadForMutation(ctx, actor, examID, studentID)
	if err != nil {
		return domain.AttendanceRecord{}, err
	}

	updated, err := domain.MarkArrived(record, simNow)
	if err != nil {
		return domain.AttendanceRecord{}, err
	}

	payload, err := json.Marshal(event.StudentArrivedPayload{
		Seat: updated.Seat,
		Late: updated.IsLateArrival(exam.WindowStart, exam.LateGrace),
	})
	if err != nil {
		return domain.AttendanceRecord{}, fmt.Errorf("marshal arrival payload: %w", err)
	}
	if err := s.persistWithEvent(ctx, updated, event.Event{
		ExamID:      examID,
		Timestamp:   simNow,
		Type:        event.TypeStudentArrived,
		RoomID:      updated.RoomID,
		Seat:        updated.Seat,
		StudentID:   studentID,
		ActorID:     actor.ID,
		ActorRole:   string(actor.Role),
		PayloadJSON: payload,
	}); err != nil {
		return domain.AttendanceRecord{}, err
	}
	return updated, nil
}

// StartBreak sends a present student on a supervised break.
func (s *Service) StartBreak(ctx context.Context, actor domain.Actor, examID, studentID string) (domain.AttendanceRecord, error) {
	lock := s.lockFor(examID)
	lock.Lock()
	defer lock.Unlock()

	_, record, simNow, err := s.loadForMutation(ctx, actor, examID, studentID)
	if err != nil {
		return domain.AttendanceRecord{}, err
	}

	updated, err := domain.StartBreak(record, simNow)
	if err != nil {
		return domain.AttendanceRecord{}, err
	}

	payload, err := json.Marshal(event.BreakStartedPayload{Seat: updated.Seat})
	if err != nil {
		return domain.AttendanceRecord{}, fmt.Errorf("marshal break payload: %w", err)
	}
	if err := s.persistWithEvent(ctx, updated, event.Event{
		ExamID:      examID,
		Timestamp:   simNow,
		Type:        event.TypeBreakStarted,
		RoomID:      updated.RoomID,
		Seat:        updated.Seat,
		StudentID:   studentID,
		ActorID:     actor.ID,
		ActorRole:   string(actor.Role),
		PayloadJSON: payload,
	}); err != nil {
		return domain.AttendanceRecord{}, err
	}
	return updated, nil
}

// EndBreak returns a student from a break, accumulating the measured break
// time. A break past the exam's long-break threshold additionally appends a
// medium-severity overrun incident.
func (s *Service) EndBreak(ctx context.Context, actor domain.Actor, examID, studentID string) (domain.AttendanceRecord, error) {
	lock := s.lockFor(examID)
	lock.Lock()
	defer lock.Unlock()

	exam, record, simNow, err := s.loadForMutation(ctx, actor, examID, studentID)
	if err != nil {
		return domain.AttendanceRecord{}, err
	}

	updated, err := s.endBreakLocked(ctx, exam, record, actor, simNow)
	if err != nil {
		return domain.AttendanceRecord{}, err
	}
	return updated, nil
}

// endBreakLocked runs the break-end transition and its event emission.
// Callers must hold the exam lock.
func (s *Service) endBreakLocked(ctx context.Context, exam domain.Exam, record domain.AttendanceRecord, actor domain.Actor, simNow time.Time) (domain.AttendanceRecord, error) {
	updated, duration, err := domain.EndBreak(record, simNow)
	if err != nil {
		return domain.AttendanceRecord{}, err
	}

	payload, err := json.Marshal(event.BreakEndedPayload{
		Seat:           updated.Seat,
		DurationMillis: duration.Milliseconds(),
	})
	if err != nil {
		return domain.AttendanceRecord{}, fmt.Errorf("marshal break payload: %w", err)
	}
	if err := s.persistWithEvent(ctx, updated, event.Event{
		ExamID:      exam.ID,
		Timestamp:   simNow,
		Type:        event.TypeBreakEnded,
		RoomID:      updated.RoomID,
		Seat:        updated.Seat,
		StudentID:   updated.StudentID,
		ActorID:     actor.ID,
		ActorRole:   string(actor.Role),
		PayloadJSON: payload,
	}); err != nil {
		return domain.AttendanceRecord{}, err
	}

	if duration > exam.LongBreak {
		overrun, err := json.Marshal(event.BreakOverrunPayload{
			Seat:            updated.Seat,
			DurationMillis:  duration.Milliseconds(),
			ThresholdMillis: exam.LongBreak.Milliseconds(),
		})
		if err != nil {
			return domain.AttendanceRecord{}, fmt.Errorf("marshal overrun payload: %w", err)
		}
		if _, err := s.appendEvent(ctx, event.Event{
			ExamID:      exam.ID,
			Timestamp:   simNow,
			Type:        event.TypeBreakOverrun,
			Severity:    event.SeverityMedium,
			RoomID:      updated.RoomID,
			Seat:        updated.Seat,
			StudentID:   updated.StudentID,
			ActorID:     actor.ID,
			ActorRole:   string(actor.Role),
			Description: fmt.Sprintf("break ran %s, threshold is %s", duration, exam.LongBreak),
			PayloadJSON: overrun,
		}); err != nil {
			return domain.AttendanceRecord{}, err
		}
	}
	return updated, nil
}

// MarkAbsent confirms a student as absent. Absent is terminal.
func (s *Service) MarkAbsent(ctx context.Context, actor domain.Actor, examID, studentID string) (domain.AttendanceRecord, error) {
	lock := s.lockFor(examID)
	lock.Lock()
	defer lock.Unlock()

	_, record, simNow, err := s.loadForMutation(ctx, actor, examID, studentID)
	if err != nil {
		return domain.AttendanceRecord{}, err
	}

	updated, err := domain.MarkAbsent(record, simNow)
	if err != nil {
		return domain.AttendanceRecord{}, err
	}

	payload, err := json.Marshal(event.StudentAbsentPayload{})
	if err != nil {
		return domain.AttendanceRecord{}, fmt.Errorf("marshal absent payload: %w", err)
	}
	if err := s.persistWithEvent(ctx, updated, event.Event{
		ExamID:      examID,
		Timestamp:   simNow,
		Type:        event.TypeStudentAbsent,
		RoomID:      updated.RoomID,
		Seat:        updated.Seat,
		StudentID:   studentID,
		ActorID:     actor.ID,
		ActorRole:   string(actor.Role),
		PayloadJSON: payload,
	}); err != nil {
		return domain.AttendanceRecord{}, err
	}
	return updated, nil
}

// MarkFinished records a student handing in and leaving. Finished is terminal.
func (s *Service) MarkFinished(ctx context.Context, actor domain.Actor, examID, studentID string) (domain.AttendanceRecord, error) {
	lock := s.lockFor(examID)
	lock.Lock()
	defer lock.Unlock()

	_, record, simNow, err := s.loadForMutation(ctx, actor, examID, studentID)
	if err != nil {
		return domain.AttendanceRecord{}, err
	}

	updated, err := domain.MarkFinished(record, simNow)
	if err != nil {
		return domain.AttendanceRecord{}, err
	}

	payload, err := json.Marshal(event.StudentFinishedPayload{Seat: updated.Seat})
	if err != nil {
		return domain.AttendanceRecord{}, fmt.Errorf("marshal finish payload: %w", err)
	}
	if err := s.persistWithEvent(ctx, updated, event.Event{
		ExamID:      examID,
		Timestamp:   simNow,
		Type:        event.TypeStudentFinished,
		RoomID:      updated.RoomID,
		Seat:        updated.Seat,
		StudentID:   studentID,
		ActorID:     actor.ID,
		ActorRole:   string(actor.Role),
		PayloadJSON: payload,
	}); err != nil {
		return domain.AttendanceRecord{}, err
	}
	return updated, nil
}
