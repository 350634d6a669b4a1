package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hallwatch/hallwatch/internal/storage"
)

// PutStat upserts one student rollup.
func (s *Store) PutStat(ctx context.Context, stat storage.StudentStat) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(stat.ExamID) == "" || strings.TrimSpace(stat.StudentID) == "" {
		return fmt.Errorf("exam id and student id are required")
	}

	notes, err := json.Marshal(stat.Notes)
	if err != nil {
		return fmt.Errorf("marshal stat notes: %w", err)
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO student_stats (exam_id, student_id, break_count, break_total_ms,
		   incident_count, violation_count, notes, last_seq, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(exam_id, student_id) DO UPDATE SET
		   break_count = excluded.break_count,
		   break_total_ms = excluded.break_total_ms,
		   incident_count = excluded.incident_count,
		   violation_count = excluded.violation_count,
		   notes = excluded.notes,
		   last_seq = excluded.last_seq,
		   updated_at = excluded.updated_at`,
		stat.ExamID,
		stat.StudentID,
		stat.BreakCount,
		stat.BreakTotalMillis,
		stat.IncidentCount,
		stat.ViolationCount,
		string(notes),
		stat.LastSeq,
		toMillis(stat.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put stat: %w", err)
	}
	return nil
}

// GetStat retrieves one student rollup.
func (s *Store) GetStat(ctx context.Context, examID, studentID string) (storage.StudentStat, error) {
	if err := ctx.Err(); err != nil {
		return storage.StudentStat{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.StudentStat{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT exam_id, student_id, break_count, break_total_ms, incident_count,
		   violation_count, notes, last_seq, updated_at
		 FROM student_stats WHERE exam_id = ? AND student_id = ?`,
		examID,
		studentID,
	)
	stat, err := scanStat(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.StudentStat{}, storage.ErrNotFound
		}
		return storage.StudentStat{}, fmt.Errorf("get stat: %w", err)
	}
	return stat, nil
}

// ListStats returns all rollups for an exam.
func (s *Store) ListStats(ctx context.Context, examID string) ([]storage.StudentStat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT exam_id, student_id, break_count, break_total_ms, incident_count,
		   violation_count, notes, last_seq, updated_at
		 FROM student_stats WHERE exam_id = ? ORDER BY student_id ASC`,
		examID,
	)
	if err != nil {
		return nil, fmt.Errorf("list stats: %w", err)
	}
	defer rows.Close()

	var out []storage.StudentStat
	for rows.Next() {
		stat, err := scanStat(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stat: %w", err)
		}
		out = append(out, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats: %w", err)
	}
	return out, nil
}

// ResetStats discards every rollup for an exam ahead of a ledger replay.
func (s *Store) ResetStats(ctx context.Context, examID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM student_stats WHERE exam_id = ?`, examID); err != nil {
		return fmt.Errorf("reset stats: %w", err)
	}
	return nil
}

func scanStat(row rowScanner) (storage.StudentStat, error) {
	var stat storage.StudentStat
	var notes string
	var updatedAt int64
	err := row.Scan(
		&stat.ExamID,
		&stat.StudentID,
		&stat.BreakCount,
		&stat.BreakTotalMillis,
		&stat.IncidentCount,
		&stat.ViolationCount,
		&notes,
		&stat.LastSeq,
		&updatedAt,
	)
	if err != nil {
		return storage.StudentStat{}, err
	}
	if err := json.Unmarshal([]byte(notes), &stat.Notes); err != nil {
		return storage.StudentStat{}, fmt.Errorf("decode stat notes: %w", err)
	}
	stat.UpdatedAt = fromMillis(updatedAt)
	return stat, nil
}
