package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hallwatch/hallwatch/internal/exam/event"
	"github.com/hallwatch/hallwatch/internal/storage"
)

// AppendEvent atomically appends an event to the exam ledger and returns it
// with its sequence number set. Sequence assignment happens inside the append
// transaction so concurrent appends can never collide or leave gaps.
func (s *Store) AppendEvent(ctx context.Context, evt event.Event) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if s == nil || s.sqlDB == nil {
		return event.Event{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(evt.ExamID) == "" {
		return event.Event{}, fmt.Errorf("exam id is required")
	}
	if err := evt.Validate(); err != nil {
		return event.Event{}, err
	}

	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	evt.Timestamp = evt.Timestamp.UTC().Truncate(time.Millisecond)

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return event.Event{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var nextSeq uint64
	row := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM events WHERE exam_id = ?`, evt.ExamID)
	if err := row.Scan(&nextSeq); err != nil {
		return event.Event{}, fmt.Errorf("next event seq: %w", err)
	}
	evt.Seq = nextSeq

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO events (exam_id, seq, timestamp, type, severity, room_id, seat,
		   student_id, actor_id, actor_role, description, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		evt.ExamID,
		evt.Seq,
		toMillis(evt.Timestamp),
		string(evt.Type),
		string(evt.Severity),
		evt.RoomID,
		evt.Seat,
		evt.StudentID,
		evt.ActorID,
		evt.ActorRole,
		evt.Description,
		evt.PayloadJSON,
	)
	if err != nil {
		return event.Event{}, fmt.Errorf("append event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return event.Event{}, fmt.Errorf("commit event: %w", err)
	}
	return evt, nil
}

// GetEventBySeq retrieves a specific ledger event.
func (s *Store) GetEventBySeq(ctx context.Context, examID string, seq uint64) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if s == nil || s.sqlDB == nil {
		return event.Event{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT exam_id, seq, timestamp, type, severity, room_id, seat, student_id,
		   actor_id, actor_role, description, payload
		 FROM events WHERE exam_id = ? AND seq = ?`,
		examID,
		seq,
	)
	evt, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return event.Event{}, storage.ErrNotFound
		}
		return event.Event{}, fmt.Errorf("get event: %w", err)
	}
	return evt, nil
}

// ListEvents returns ledger events ordered by sequence ascending.
func (s *Store) ListEvents(ctx context.Context, examID string, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT exam_id, seq, timestamp, type, severity, room_id, seat, student_id,
		   actor_id, actor_role, description, payload
		 FROM events WHERE exam_id = ? AND seq > ? ORDER BY seq ASC LIMIT ?`,
		examID,
		afterSeq,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// GetLatestEventSeq returns the last assigned sequence for an exam.
func (s *Store) GetLatestEventSeq(ctx context.Context, examID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	var latest uint64
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM events WHERE exam_id = ?`, examID)
	if err := row.Scan(&latest); err != nil {
		return 0, fmt.Errorf("latest event seq: %w", err)
	}
	return latest, nil
}

func scanEvent(row rowScanner) (event.Event, error) {
	var evt event.Event
	var timestamp int64
	var eventType, severity string
	err := row.Scan(
		&evt.ExamID,
		&evt.Seq,
		&timestamp,
		&eventType,
		&severity,
		&evt.RoomID,
		&evt.Seat,
		&evt.StudentID,
		&evt.ActorID,
		&evt.ActorRole,
		&evt.Description,
		&evt.PayloadJSON,
	)
	if err != nil {
		return event.Event{}, err
	}
	evt.Type = event.Type(eventType)
	evt.Severity = event.Severity(severity)
	evt.Timestamp = fromMillis(timestamp)
	return evt, nil
}
