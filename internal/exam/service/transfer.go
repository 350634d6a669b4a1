package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hallwatch/hallwatch/internal/exam/domain"
	"github.com/hallwatch/hallwatch/internal/exam/event"
	apperrors "github.com/hallwatch/hallwatch/internal/platform/errors"
	"github.com/hallwatch/hallwatch/internal/storage"
)

// RequestTransfer opens a pending cross-room move for a student and pins the
// attendance record to moving. A student who is on a break is returned from
// it first, so the break time is accounted before the pin.
func (s *Service) RequestTransfer(ctx context.Context, actor domain.Actor, examID, studentID, toRoomID, toSeat string) (domain.TransferRequest, error) {
	lock := s.lockFor(examID)
	lock.Lock()
	defer lock.Unlock()

	exam, record, simNow, err := s.loadForMutation(ctx, actor, examID, studentID)
	if err != nil {
		return domain.TransferRequest{}, err
	}
	if _, ok := exam.RoomByID(toRoomID); !ok {
		return domain.TransferRequest{}, apperrors.WithMetadata(apperrors.CodeNotFound,
			"target room is not part of this exam", map[string]string{
				"exam_id": examID,
				"room_id": toRoomID,
			})
	}

	if record.Status == domain.AttendanceTempOut {
		record, err = s.endBreakLocked(ctx, exam, record, actor, simNow)
		if err != nil {
			return domain.TransferRequest{}, err
		}
	}

	request, err := domain.NewTransferRequest(domain.NewTransferRequestInput{
		ExamID:      examID,
		StudentID:   studentID,
		FromRoomID:  record.RoomID,
		FromSeat:    record.Seat,
		ToRoomID:    toRoomID,
		ToSeat:      toSeat,
		RequestedBy: actor.ID,
	}, simNow, s.idGenerator)
	if err != nil {
		return domain.TransferRequest{}, err
	}

	pinned, err := domain.PinMoving(record, request.ID, simNow)
	if err != nil {
		return domain.TransferRequest{}, err
	}

	payload, err := json.Marshal(event.TransferRequestedPayload{
		RequestID:  request.ID,
		FromRoomID: request.FromRoomID,
		FromSeat:   request.FromSeat,
		ToRoomID:   request.ToRoomID,
		ToSeat:     request.ToSeat,
	})
	if err != nil {
		return domain.TransferRequest{}, fmt.Errorf("marshal transfer payload: %w", err)
	}

	// The append is the commit point. Until it succeeds nothing else is
	// written, so a failed request leaves the student free to be moved again.
	if _, err := s.appendEvent(ctx, event.Event{
		ExamID:      examID,
		Timestamp:   simNow,
		Type:        event.TypeTransferRequested,
		RoomID:      request.FromRoomID,
		Seat:        request.FromSeat,
		StudentID:   studentID,
		ActorID:     actor.ID,
		ActorRole:   string(actor.Role),
		PayloadJSON: payload,
	}); err != nil {
		return domain.TransferRequest{}, err
	}

	// Post-commit writes run on a detached context so a caller hanging up
	// mid-request cannot strand a pending transfer without its record pin.
	persistCtx := context.WithoutCancel(ctx)
	if err := s.stores.Transfers.PutTransfer(persistCtx, request); err != nil {
		return domain.TransferRequest{}, fmt.Errorf("persist transfer request: %w", err)
	}
	if err := s.stores.Attendance.PutAttendance(persistCtx, pinned); err != nil {
		if _, cancelErr := s.stores.Transfers.ResolveTransfer(persistCtx, examID, request.ID, domain.TransferCancelled, actor.ID, simNow); cancelErr != nil {
			log.Printf("event=transfer_compensation_failed exam_id=%s request_id=%s error=%q",
				examID, request.ID, cancelErr)
		}
		return domain.TransferRequest{}, fmt.Errorf("persist attendance: %w", err)
	}
	return request, nil
}

// ApproveTransfer resolves a pending transfer in favor of the move and
// relocates the student to the target room and seat. Only one resolver wins:
// every later attempt gets CodeTransferAlreadyResolved regardless of
// interleaving.
func (s *Service) ApproveTransfer(ctx context.Context, actor domain.Actor, examID, requestID string) (domain.TransferRequest, error) {
	return s.resolveTransfer(ctx, actor, examID, requestID, domain.TransferApproved, "",
		func(exam domain.Exam, request domain.TransferRequest) bool {
			return domain.CanApproveTransfer(exam, actor, request.ToRoomID)
		})
}

// RejectTransfer resolves a pending transfer against the move. The student
// stays pinned to their original room and seat and returns to present.
func (s *Service) RejectTransfer(ctx context.Context, actor domain.Actor, examID, requestID, reason string) (domain.TransferRequest, error) {
	return s.resolveTransfer(ctx, actor, examID, requestID, domain.TransferRejected, reason,
		func(exam domain.Exam, request domain.TransferRequest) bool {
			return domain.CanRejectTransfer(exam, actor, request.ToRoomID)
		})
}

// CancelTransfer withdraws a pending transfer. Only the requester or an
// admin may cancel.
func (s *Service) CancelTransfer(ctx context.Context, actor domain.Actor, examID, requestID string) (domain.TransferRequest, error) {
	return s.resolveTransfer(ctx, actor, examID, requestID, domain.TransferCancelled, "",
		func(_ domain.Exam, request domain.TransferRequest) bool {
			return domain.CanCancelTransfer(request, actor)
		})
}

func (s *Service) resolveTransfer(ctx context.Context, actor domain.Actor, examID, requestID string, to domain.TransferStatus, reason string, allowed func(domain.Exam, domain.TransferRequest) bool) (domain.TransferRequest, error) {
	lock := s.lockFor(examID)
	lock.Lock()
	defer lock.Unlock()

	exam, err := s.stores.Exams.Get(ctx, examID)
	if err != nil {
		return domain.TransferRequest{}, err
	}
	if exam.Status != domain.ExamStatusRunning {
		return domain.TransferRequest{}, errExamNotActive(exam)
	}
	request, err := s.stores.Transfers.GetTransfer(ctx, examID, requestID)
	if err != nil {
		return domain.TransferRequest{}, err
	}
	if !allowed(exam, request) {
		return domain.TransferRequest{}, apperrors.WithMetadata(apperrors.CodeNotAuthorized,
			"actor may not resolve this transfer", map[string]string{
				"actor_id":   actor.ID,
				"request_id": requestID,
			})
	}

	if request.Status != domain.TransferPending {
		return domain.TransferRequest{}, storage.ErrTransferResolved
	}

	simNow := exam.SimNow(s.realNow())
	record, err := s.stores.Attendance.GetAttendance(ctx, examID, request.StudentID)
	if err != nil {
		return domain.TransferRequest{}, err
	}
	toRoomID, toSeat := "", ""
	if to == domain.TransferApproved {
		toRoomID, toSeat = request.ToRoomID, request.ToSeat
	}
	unpinned, err := domain.UnpinMoving(record, requestID, toRoomID, toSeat, simNow)
	if err != nil {
		return domain.TransferRequest{}, err
	}

	payload, err := json.Marshal(event.TransferResolvedPayload{
		RequestID:  request.ID,
		FromRoomID: request.FromRoomID,
		ToRoomID:   request.ToRoomID,
		ToSeat:     request.ToSeat,
		Reason:     reason,
	})
	if err != nil {
		return domain.TransferRequest{}, fmt.Errorf("marshal transfer payload: %w", err)
	}

	// The append is the commit point. A failed append changes nothing, so
	// the request stays pending and the resolution can be retried. The
	// check-and-set and the unpin run after it on a detached context; the
	// check-and-set stays as the backstop against writers that bypass the
	// exam lock.
	if _, err := s.appendEvent(ctx, event.Event{
		ExamID:      examID,
		Timestamp:   simNow,
		Type:        resolutionEventType(to),
		RoomID:      request.ToRoomID,
		Seat:        request.ToSeat,
		StudentID:   request.StudentID,
		ActorID:     actor.ID,
		ActorRole:   string(actor.Role),
		Description: reason,
		PayloadJSON: payload,
	}); err != nil {
		return domain.TransferRequest{}, err
	}

	persistCtx := context.WithoutCancel(ctx)
	resolved, err := s.stores.Transfers.ResolveTransfer(persistCtx, examID, requestID, to, actor.ID, simNow)
	if err != nil {
		return domain.TransferRequest{}, err
	}
	if err := s.stores.Attendance.PutAttendance(persistCtx, unpinned); err != nil {
		return domain.TransferRequest{}, fmt.Errorf("persist attendance: %w", err)
	}
	return resolved, nil
}

func resolutionEventType(to domain.TransferStatus) event.Type {
	switch to {
	case domain.TransferApproved:
		return event.TypeTransferApproved
	case domain.TransferRejected:
		return event.TypeTransferRejected
	default:
		return event.TypeTransferCancelled
	}
}
