package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hallwatch/hallwatch/internal/storage"
)

// PutMessage upserts one staff message.
func (s *Store) PutMessage(ctx context.Context, message storage.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(message.ExamID) == "" || strings.TrimSpace(message.ID) == "" {
		return fmt.Errorf("exam id and message id are required")
	}

	recipients, err := json.Marshal(message.RecipientIDs)
	if err != nil {
		return fmt.Errorf("marshal recipient ids: %w", err)
	}
	roles, err := json.Marshal(message.RecipientRoles)
	if err != nil {
		return fmt.Errorf("marshal recipient roles: %w", err)
	}

	broadcast := 0
	if message.Broadcast {
		broadcast = 1
	}
	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO messages (exam_id, id, sender_id, sender_role, body, broadcast,
		   recipient_ids, recipient_roles, posted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(exam_id, id) DO UPDATE SET
		   body = excluded.body`,
		message.ExamID,
		message.ID,
		message.SenderID,
		message.SenderRole,
		message.Body,
		broadcast,
		string(recipients),
		string(roles),
		toMillis(message.PostedAt),
	)
	if err != nil {
		return fmt.Errorf("put message: %w", err)
	}
	return nil
}

// GetMessage retrieves one staff message.
func (s *Store) GetMessage(ctx context.Context, examID, messageID string) (storage.Message, error) {
	if err := ctx.Err(); err != nil {
		return storage.Message{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Message{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT exam_id, id, sender_id, sender_role, body, broadcast, recipient_ids,
		   recipient_roles, posted_at
		 FROM messages WHERE exam_id = ? AND id = ?`,
		examID,
		messageID,
	)
	message, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Message{}, storage.ErrNotFound
		}
		return storage.Message{}, fmt.Errorf("get message: %w", err)
	}
	return message, nil
}

// ListMessagesForRecipient returns broadcasts plus messages addressed to the
// reader by id or by role, in post order. Recipient filtering happens in Go;
// recipient lists are small and stored as JSON.
func (s *Store) ListMessagesForRecipient(ctx context.Context, examID, recipientID, recipientRole string) ([]storage.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT exam_id, id, sender_id, sender_role, body, broadcast, recipient_ids,
		   recipient_roles, posted_at
		 FROM messages WHERE exam_id = ? ORDER BY posted_at ASC, id ASC`,
		examID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []storage.Message
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if message.AddressedTo(recipientID, recipientRole) {
			out = append(out, message)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

// MarkMessageRead records a read receipt; repeat marks keep the first stamp.
func (s *Store) MarkMessageRead(ctx context.Context, examID, messageID, readerID string, readAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	if _, err := s.GetMessage(ctx, examID, messageID); err != nil {
		return err
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO message_receipts (exam_id, message_id, reader_id, read_at)
		 VALUES (?, ?, ?, ?)`,
		examID,
		messageID,
		readerID,
		toMillis(readAt),
	)
	if err != nil {
		return fmt.Errorf("mark message read: %w", err)
	}
	return nil
}

// ListReceipts returns the read receipts for a message.
func (s *Store) ListReceipts(ctx context.Context, examID, messageID string) ([]storage.MessageReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT message_id, reader_id, read_at
		 FROM message_receipts WHERE exam_id = ? AND message_id = ? ORDER BY reader_id ASC`,
		examID,
		messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	defer rows.Close()

	var out []storage.MessageReceipt
	for rows.Next() {
		var receipt storage.MessageReceipt
		var readAt int64
		if err := rows.Scan(&receipt.MessageID, &receipt.ReaderID, &readAt); err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		receipt.ReadAt = fromMillis(readAt)
		out = append(out, receipt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate receipts: %w", err)
	}
	return out, nil
}

func scanMessage(row rowScanner) (storage.Message, error) {
	var message storage.Message
	var broadcast int
	var recipients string
	var roles string
	var postedAt int64
	err := row.Scan(
		&message.ExamID,
		&message.ID,
		&message.SenderID,
		&message.SenderRole,
		&message.Body,
		&broadcast,
		&recipients,
		&roles,
		&postedAt,
	)
	if err != nil {
		return storage.Message{}, err
	}
	message.Broadcast = broadcast != 0
	message.PostedAt = fromMillis(postedAt)
	if err := json.Unmarshal([]byte(recipients), &message.RecipientIDs); err != nil {
		return storage.Message{}, fmt.Errorf("decode recipient ids: %w", err)
	}
	if err := json.Unmarshal([]byte(roles), &message.RecipientRoles); err != nil {
		return storage.Message{}, fmt.Errorf("decode recipient roles: %w", err)
	}
	return message, nil
}
