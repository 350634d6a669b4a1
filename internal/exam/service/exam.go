package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hallwatch/hallwatch/internal/exam/domain"
	"github.com/hallwatch/hallwatch/internal/exam/event"
	apperrors "github.com/hallwatch/hallwatch/internal/platform/errors"
)

// RosterEntry seats one registered student when the exam is created.
type RosterEntry struct {
	StudentID string
	RoomLabel string
	Seat      string
}

// CreateExamParams describes a new exam plus its registered roster.
type CreateExamParams struct {
	domain.CreateExamInput
	Roster []RosterEntry
}

// CreateExam schedules a new exam and seats its roster. Only admins and
// lecturers may create exams; a lecturer who leaves MainLecturerID empty
// becomes the main lecturer.
func (s *Service) CreateExam(ctx context.Context, actor domain.Actor, params CreateExamParams) (domain.Exam, error) {
	switch actor.Role {
	case domain.RoleAdmin:
	case domain.RoleLecturer:
		if strings.TrimSpace(params.MainLecturerID) == "" {
			params.MainLecturerID = actor.ID
		}
	default:
		return domain.Exam{}, apperrors.New(apperrors.CodeNotAuthorized, "only admins and lecturers may create exams")
	}

	exam, err := domain.CreateExam(params.CreateExamInput, s.realNow, s.idGenerator)
	if err != nil {
		return domain.Exam{}, err
	}

	records, err := buildRoster(exam, params.Roster)
	if err != nil {
		return domain.Exam{}, err
	}

	if err := s.stores.Exams.Put(ctx, exam); err != nil {
		return domain.Exam{}, fmt.Errorf("persist exam: %w", err)
	}
	for _, record := range records {
		if err := s.stores.Attendance.PutAttendance(ctx, record); err != nil {
			return domain.Exam{}, fmt.Errorf("persist roster record %s: %w", record.StudentID, err)
		}
	}
	return exam, nil
}

// StartExam moves a scheduled exam to running.
func (s *Service) StartExam(ctx context.Context, actor domain.Actor, examID string) (domain.Exam, error) {
	return s.transitionExam(ctx, actor, examID, domain.ExamStatusRunning)
}

// EndExam moves a running exam to ended. Attendance mutations are rejected
// afterwards; late-discovered incidents may still be recorded.
func (s *Service) EndExam(ctx context.Context, actor domain.Actor, examID string) (domain.Exam, error) {
	return s.transitionExam(ctx, actor, examID, domain.ExamStatusEnded)
}

func (s *Service) transitionExam(ctx context.Context, actor domain.Actor, examID string, to domain.ExamStatus) (domain.Exam, error) {
	lock := s.lockFor(examID)
	lock.Lock()
	defer lock.Unlock()

	exam, err := s.stores.Exams.Get(ctx, examID)
	if err != nil {
		return domain.Exam{}, err
	}
	if !domain.CanManageLifecycle(exam, actor) {
		return domain.Exam{}, apperrors.New(apperrors.CodeNotAuthorized, "only the main lecturer or an admin may change the exam lifecycle")
	}

	from := exam.Status
	simNow := exam.SimNow(s.realNow())
	updated, err := domain.TransitionStatus(exam, to, simNow)
	if err != nil {
		return domain.Exam{}, err
	}

	payload, err := json.Marshal(event.ExamStatusChangedPayload{
		FromStatus: string(from),
		ToStatus:   string(to),
	})
	if err != nil {
		return domain.Exam{}, fmt.Errorf("marshal status payload: %w", err)
	}
	if _, err := s.appendEvent(ctx, event.Event{
		ExamID:      exam.ID,
		Timestamp:   simNow,
		Type:        event.TypeExamStatusChanged,
		ActorID:     actor.ID,
		ActorRole:   string(actor.Role),
		Description: fmt.Sprintf("exam moved from %s to %s", from, to),
		PayloadJSON: payload,
	}); err != nil {
		return domain.Exam{}, err
	}

	if err := s.stores.Exams.Put(ctx, updated); err != nil {
		return domain.Exam{}, fmt.Errorf("persist exam: %w", err)
	}
	return updated, nil
}

// GetExam returns one exam's metadata. All staff roles may read it.
func (s *Service) GetExam(ctx context.Context, actor domain.Actor, examID string) (domain.Exam, error) {
	if !actor.IsStaff() {
		return domain.Exam{}, apperrors.New(apperrors.CodeNotAuthorized, "actor role cannot read exam metadata")
	}
	return s.stores.Exams.Get(ctx, examID)
}

// ListExams returns every exam, newest first.
func (s *Service) ListExams(ctx context.Context, actor domain.Actor) ([]domain.Exam, error) {
	if !actor.IsStaff() {
		return nil, apperrors.New(apperrors.CodeNotAuthorized, "actor role cannot list exams")
	}
	return s.stores.Exams.List(ctx)
}

func buildRoster(exam domain.Exam, roster []RosterEntry) ([]domain.AttendanceRecord, error) {
	seen := map[string]bool{}
	records := make([]domain.AttendanceRecord, 0, len(roster))
	for _, entry := range roster {
		studentID := strings.TrimSpace(entry.StudentID)
		if studentID == "" {
			return nil, apperrors.New(apperrors.CodeRosterDuplicateStudent, "roster student id is required")
		}
		if seen[studentID] {
			return nil, apperrors.WithMetadata(apperrors.CodeRosterDuplicateStudent,
				"student is already on the roster", map[string]string{"student_id": studentID})
		}
		seen[studentID] = true

		room, ok := exam.RoomByLabel(strings.TrimSpace(entry.RoomLabel))
		if !ok {
			return nil, apperrors.WithMetadata(apperrors.CodeRosterUnknownRoom,
				"roster entry references an unknown room", map[string]string{
					"student_id": studentID,
					"room_label": entry.RoomLabel,
				})
		}

		records = append(records, domain.AttendanceRecord{
			ExamID:       exam.ID,
			StudentID:    studentID,
			RoomID:       room.ID,
			Seat:         strings.TrimSpace(entry.Seat),
			Status:       domain.AttendanceNotArrived,
			LastStatusAt: exam.CreatedAt,
		})
	}
	return records, nil
}
