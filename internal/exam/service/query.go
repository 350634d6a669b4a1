package service

import (
	"context"
	"log"

	"github.com/hallwatch/hallwatch/internal/exam/domain"
	"github.com/hallwatch/hallwatch/internal/exam/event"
	"github.com/hallwatch/hallwatch/internal/exam/snapshot"
	apperrors "github.com/hallwatch/hallwatch/internal/platform/errors"
	"github.com/hallwatch/hallwatch/internal/storage"
)

// GetSnapshot projects the live state of an exam for one actor. The room
// scope is resolved from the actor's role; a failed rollup read degrades the
// incident figures to unknown instead of failing the whole snapshot.
func (s *Service) GetSnapshot(ctx context.Context, actor domain.Actor, examID, requestedRoomID string) (snapshot.Snapshot, error) {
	exam, err := s.stores.Exams.Get(ctx, examID)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	scope, err := snapshot.ResolveScope(exam, actor, requestedRoomID)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	records, err := s.stores.Attendance.ListAttendance(ctx, examID)
	if err != nil {
		return snapshot.Snapshot{}, err
	}

	var stats map[string]storage.StudentStat
	list, err := s.stores.Stats.ListStats(ctx, examID)
	if err != nil {
		log.Printf("event=snapshot_stats_degraded exam_id=%s error=%q", examID, err)
	} else {
		stats = make(map[string]storage.StudentStat, len(list))
		for _, stat := range list {
			stats[stat.StudentID] = stat
		}
	}
	return snapshot.Build(exam, records, stats, scope, s.realNow()), nil
}

// EventLogQuery narrows a ledger read.
type EventLogQuery struct {
	// RoomID narrows to one room; empty keeps the actor's full scope.
	RoomID string
	// AfterSeq resumes a paged read; zero starts from the beginning.
	AfterSeq uint64
	// Limit caps the page size; zero lets storage pick its default.
	Limit int
}

// GetEventLog reads the ledger in sequence order, filtered to the rooms the
// actor may see. Events without a room (lifecycle changes, broadcasts) are
// visible to every staff member of the exam.
func (s *Service) GetEventLog(ctx context.Context, actor domain.Actor, examID string, query EventLogQuery) ([]event.Event, error) {
	exam, err := s.stores.Exams.Get(ctx, examID)
	if err != nil {
		return nil, err
	}
	scope, err := snapshot.ResolveScope(exam, actor, query.RoomID)
	if err != nil {
		return nil, err
	}

	events, err := s.stores.Events.ListEvents(ctx, examID, query.AfterSeq, query.Limit)
	if err != nil {
		return nil, err
	}
	visible := make([]event.Event, 0, len(events))
	for _, evt := range events {
		if evt.RoomID == "" || scope.Covers(evt.RoomID) {
			visible = append(visible, evt)
		}
	}
	return visible, nil
}

// StudentFile is the per-student dossier: the live attendance record, the
// cached rollups, and the student's slice of the ledger.
type StudentFile struct {
	Record   domain.AttendanceRecord
	Stat     storage.StudentStat
	Timeline []event.Event
}

// studentTimelinePageSize bounds one ledger page while assembling a file.
const studentTimelinePageSize = 200

// GetStudentFile assembles the dossier for one student. Staff see any
// student; a student sees only their own file.
func (s *Service) GetStudentFile(ctx context.Context, actor domain.Actor, examID, studentID string) (StudentFile, error) {
	if !domain.CanReadStudentFile(actor, studentID) {
		return StudentFile{}, apperrors.WithMetadata(apperrors.CodeNotAuthorized,
			"actor may not read this student file", map[string]string{
				"actor_id":   actor.ID,
				"student_id": studentID,
			})
	}
	if _, err := s.stores.Exams.Get(ctx, examID); err != nil {
		return StudentFile{}, err
	}
	record, err := s.stores.Attendance.GetAttendance(ctx, examID, studentID)
	if err != nil {
		return StudentFile{}, err
	}

	stat, err := s.stores.Stats.GetStat(ctx, examID, studentID)
	if err != nil {
		if !apperrors.IsCode(err, apperrors.CodeNotFound) {
			return StudentFile{}, err
		}
		stat = storage.StudentStat{ExamID: examID, StudentID: studentID}
	}

	var timeline []event.Event
	afterSeq := uint64(0)
	for {
		page, err := s.stores.Events.ListEvents(ctx, examID, afterSeq, studentTimelinePageSize)
		if err != nil {
			return StudentFile{}, err
		}
		if len(page) == 0 {
			break
		}
		for _, evt := range page {
			if evt.StudentID == studentID {
				timeline = append(timeline, evt)
			}
		}
		afterSeq = page[len(page)-1].Seq
		if len(page) < studentTimelinePageSize {
			break
		}
	}
	return StudentFile{Record: record, Stat: stat, Timeline: timeline}, nil
}

// ListTransfers returns an exam's transfer requests for staff review.
func (s *Service) ListTransfers(ctx context.Context, actor domain.Actor, examID string) ([]domain.TransferRequest, error) {
	if !actor.IsStaff() {
		return nil, apperrors.WithMetadata(apperrors.CodeNotAuthorized,
			"only staff may list transfers", map[string]string{"actor_id": actor.ID})
	}
	if _, err := s.stores.Exams.Get(ctx, examID); err != nil {
		return nil, err
	}
	return s.stores.Transfers.ListTransfers(ctx, examID)
}

// RebuildRollups drops and replays the cached per-student rollups from the
// ledger. Admin only; meant for recovery after a degraded fold.
func (s *Service) RebuildRollups(ctx context.Context, actor domain.Actor, examID string) (uint64, error) {
	if actor.Role != domain.RoleAdmin {
		return 0, apperrors.WithMetadata(apperrors.CodeNotAuthorized,
			"only admins may rebuild rollups", map[string]string{"actor_id": actor.ID})
	}
	lock := s.lockFor(examID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.stores.Exams.Get(ctx, examID); err != nil {
		return 0, err
	}
	return s.rebuildStats(ctx, examID)
}
