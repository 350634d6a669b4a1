package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/hallwatch/hallwatch/internal/exam/domain"
	"github.com/hallwatch/hallwatch/internal/storage"
)

// PutAttendance upserts one roster record.
func (s *Store) PutAttendance(ctx context.Context, record domain.AttendanceRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.ExamID) == "" || strings.TrimSpace(record.StudentID) == "" {
		return fmt.Errorf("exam id and student id are required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO attendance (exam_id, student_id, room_id, seat, status, arrived_at,
		   out_started_at, finished_at, last_status_at, violations, pending_transfer_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(exam_id, student_id) DO UPDATE SET
		   room_id = excluded.room_id,
		   seat = excluded.seat,
		   status = excluded.status,
		   arrived_at = excluded.arrived_at,
		   out_started_at = excluded.out_started_at,
		   finished_at = excluded.finished_at,
		   last_status_at = excluded.last_status_at,
		   violations = excluded.violations,
		   pending_transfer_id = excluded.pending_transfer_id`,
		record.ExamID,
		record.StudentID,
		record.RoomID,
		record.Seat,
		string(record.Status),
		toMillisPtr(record.ArrivedAt),
		toMillisPtr(record.OutStartedAt),
		toMillisPtr(record.FinishedAt),
		toMillis(record.LastStatusAt),
		record.Violations,
		record.PendingTransferID,
	)
	if err != nil {
		return fmt.Errorf("put attendance: %w", err)
	}
	return nil
}

// GetAttendance retrieves one roster record.
func (s *Store) GetAttendance(ctx context.Context, examID, studentID string) (domain.AttendanceRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.AttendanceRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.AttendanceRecord{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT exam_id, student_id, room_id, seat, status, arrived_at, out_started_at,
		   finished_at, last_status_at, violations, pending_transfer_id
		 FROM attendance WHERE exam_id = ? AND student_id = ?`,
		examID,
		studentID,
	)
	record, err := scanAttendance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.AttendanceRecord{}, storage.ErrNotFound
		}
		return domain.AttendanceRecord{}, fmt.Errorf("get attendance: %w", err)
	}
	return record, nil
}

// ListAttendance returns the full roster for an exam.
func (s *Store) ListAttendance(ctx context.Context, examID string) ([]domain.AttendanceRecord, error) {
	return s.listAttendance(ctx,
		`SELECT exam_id, student_id, room_id, seat, status, arrived_at, out_started_at,
		   finished_at, last_status_at, violations, pending_transfer_id
		 FROM attendance WHERE exam_id = ? ORDER BY student_id ASC`,
		examID)
}

// ListAttendanceByRoom returns the roster records seated in one room.
func (s *Store) ListAttendanceByRoom(ctx context.Context, examID, roomID string) ([]domain.AttendanceRecord, error) {
	return s.listAttendance(ctx,
		`SELECT exam_id, student_id, room_id, seat, status, arrived_at, out_started_at,
		   finished_at, last_status_at, violations, pending_transfer_id
		 FROM attendance WHERE exam_id = ? AND room_id = ? ORDER BY student_id ASC`,
		examID, roomID)
}

func (s *Store) listAttendance(ctx context.Context, query string, args ...any) ([]domain.AttendanceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	defer rows.Close()

	var out []domain.AttendanceRecord
	for rows.Next() {
		record, err := scanAttendance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance: %w", err)
	}
	return out, nil
}

func scanAttendance(row rowScanner) (domain.AttendanceRecord, error) {
	var record domain.AttendanceRecord
	var statusLabel string
	var arrivedAt, outStartedAt, finishedAt sql.NullInt64
	var lastStatusAt int64
	err := row.Scan(
		&record.ExamID,
		&record.StudentID,
		&record.RoomID,
		&record.Seat,
		&statusLabel,
		&arrivedAt,
		&outStartedAt,
		&finishedAt,
		&lastStatusAt,
		&record.Violations,
		&record.PendingTransferID,
	)
	if err != nil {
		return domain.AttendanceRecord{}, err
	}

	status, ok := domain.ParseAttendanceStatus(statusLabel)
	if !ok {
		return domain.AttendanceRecord{}, fmt.Errorf("attendance record %s/%s has invalid status %q",
			record.ExamID, record.StudentID, statusLabel)
	}
	record.Status = status
	record.ArrivedAt = fromMillisPtr(arrivedAt)
	record.OutStartedAt = fromMillisPtr(outStartedAt)
	record.FinishedAt = fromMillisPtr(finishedAt)
	record.LastStatusAt = fromMillis(lastStatusAt)
	return record, nil
}
