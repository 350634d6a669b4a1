package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hallwatch/hallwatch/internal/exam/domain"
	"github.com/hallwatch/hallwatch/internal/exam/event"
	apperrors "github.com/hallwatch/hallwatch/internal/platform/errors"
	"github.com/hallwatch/hallwatch/internal/storage"
)

// PostMessageParams describes one staff message. A broadcast reaches all
// staff of the exam; a direct message names staff members, staff roles, or
// both.
type PostMessageParams struct {
	Body           string
	Broadcast      bool
	RecipientIDs   []string
	RecipientRoles []string
}

// PostMessage appends a staff coordination message and its ledger fact.
func (s *Service) PostMessage(ctx context.Context, actor domain.Actor, examID string, params PostMessageParams) (storage.Message, error) {
	lock := s.lockFor(examID)
	lock.Lock()
	defer lock.Unlock()

	exam, err := s.stores.Exams.Get(ctx, examID)
	if err != nil {
		return storage.Message{}, err
	}
	if exam.Status != domain.ExamStatusRunning {
		return storage.Message{}, errExamNotActive(exam)
	}
	if !actor.IsStaff() {
		return storage.Message{}, apperrors.WithMetadata(apperrors.CodeNotAuthorized,
			"only staff may post messages", map[string]string{"actor_id": actor.ID})
	}

	body := strings.TrimSpace(params.Body)
	if body == "" {
		return storage.Message{}, apperrors.New(apperrors.CodeMessageEmptyBody,
			"message body must not be empty")
	}
	if !params.Broadcast && len(params.RecipientIDs) == 0 && len(params.RecipientRoles) == 0 {
		return storage.Message{}, apperrors.New(apperrors.CodeMessageNoRecipients,
			"direct messages need at least one recipient or role")
	}
	roles := make([]string, 0, len(params.RecipientRoles))
	for _, label := range params.RecipientRoles {
		role, ok := domain.ParseRole(label)
		if !ok || role == domain.RoleStudent {
			return storage.Message{}, apperrors.WithMetadata(apperrors.CodeMessageInvalidRole,
				"recipient roles must name staff roles", map[string]string{"role": label})
		}
		roles = append(roles, string(role))
	}
	if len(roles) == 0 {
		roles = nil
	}

	messageID, err := s.idGenerator()
	if err != nil {
		return storage.Message{}, fmt.Errorf("generate message id: %w", err)
	}
	simNow := exam.SimNow(s.realNow())
	message := storage.Message{
		ID:             messageID,
		ExamID:         examID,
		SenderID:       actor.ID,
		SenderRole:     string(actor.Role),
		Body:           body,
		Broadcast:      params.Broadcast,
		RecipientIDs:   params.RecipientIDs,
		RecipientRoles: roles,
		PostedAt:       simNow,
	}
	payload, err := json.Marshal(event.MessagePostedPayload{
		MessageID:      messageID,
		Broadcast:      params.Broadcast,
		RecipientIDs:   params.RecipientIDs,
		RecipientRoles: roles,
	})
	if err != nil {
		return storage.Message{}, fmt.Errorf("marshal message payload: %w", err)
	}

	// The append is the commit point; the message row follows it on a
	// detached context.
	if _, err := s.appendEvent(ctx, event.Event{
		ExamID:      examID,
		Timestamp:   simNow,
		Type:        event.TypeMessagePosted,
		ActorID:     actor.ID,
		ActorRole:   string(actor.Role),
		PayloadJSON: payload,
	}); err != nil {
		return storage.Message{}, err
	}
	if err := s.stores.Messages.PutMessage(context.WithoutCancel(ctx), message); err != nil {
		return storage.Message{}, fmt.Errorf("persist message: %w", err)
	}
	return message, nil
}

// ListMessages returns the broadcasts plus the messages addressed to the
// acting staff member directly or through their role, oldest first.
func (s *Service) ListMessages(ctx context.Context, actor domain.Actor, examID string) ([]storage.Message, error) {
	if !actor.IsStaff() {
		return nil, apperrors.WithMetadata(apperrors.CodeNotAuthorized,
			"only staff may read messages", map[string]string{"actor_id": actor.ID})
	}
	if _, err := s.stores.Exams.Get(ctx, examID); err != nil {
		return nil, err
	}
	return s.stores.Messages.ListMessagesForRecipient(ctx, examID, actor.ID, string(actor.Role))
}

// MarkMessageRead stamps a read receipt for the acting staff member. Reads
// are idempotent: the first stamp wins, later calls are no-ops.
func (s *Service) MarkMessageRead(ctx context.Context, actor domain.Actor, examID, messageID string) error {
	if !actor.IsStaff() {
		return apperrors.WithMetadata(apperrors.CodeNotAuthorized,
			"only staff may read messages", map[string]string{"actor_id": actor.ID})
	}
	exam, err := s.stores.Exams.Get(ctx, examID)
	if err != nil {
		return err
	}
	return s.stores.Messages.MarkMessageRead(ctx, examID, messageID, actor.ID, exam.SimNow(s.realNow()))
}
