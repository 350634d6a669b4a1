package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hallwatch/hallwatch/internal/exam/domain"
	"github.com/hallwatch/hallwatch/internal/exam/simclock"
	"github.com/hallwatch/hallwatch/internal/storage"
)

// Put upserts an exam and replaces its room list.
func (s *Store) Put(ctx context.Context, exam domain.Exam) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(exam.ID) == "" {
		return fmt.Errorf("exam id is required")
	}

	coLecturers, err := json.Marshal(exam.CoLecturerIDs)
	if err != nil {
		return fmt.Errorf("marshal co-lecturer ids: %w", err)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	speed := exam.Clock.Speed
	if speed == 0 {
		speed = 1
	}
	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO exams (id, course_name, window_start, window_end, status, main_lecturer_id,
		   co_lecturer_ids, sim_anchor, real_anchor, clock_speed, late_grace_ms, long_break_ms,
		   created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   course_name = excluded.course_name,
		   window_start = excluded.window_start,
		   window_end = excluded.window_end,
		   status = excluded.status,
		   main_lecturer_id = excluded.main_lecturer_id,
		   co_lecturer_ids = excluded.co_lecturer_ids,
		   sim_anchor = excluded.sim_anchor,
		   real_anchor = excluded.real_anchor,
		   clock_speed = excluded.clock_speed,
		   late_grace_ms = excluded.late_grace_ms,
		   long_break_ms = excluded.long_break_ms,
		   updated_at = excluded.updated_at`,
		exam.ID,
		exam.CourseName,
		toMillis(exam.WindowStart),
		toMillis(exam.WindowEnd),
		string(exam.Status),
		exam.MainLecturerID,
		string(coLecturers),
		toMillis(exam.Clock.SimAnchor),
		toMillis(exam.Clock.RealAnchor),
		speed,
		exam.LateGrace.Milliseconds(),
		exam.LongBreak.Milliseconds(),
		toMillis(exam.CreatedAt),
		toMillis(exam.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put exam: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM rooms WHERE exam_id = ?`, exam.ID); err != nil {
		return fmt.Errorf("clear rooms: %w", err)
	}
	for i, room := range exam.Rooms {
		_, err := tx.ExecContext(
			ctx,
			`INSERT INTO rooms (exam_id, id, label, rows, cols, supervisor_id, lecturer_id, position)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			exam.ID, room.ID, room.Label, room.Rows, room.Cols, room.SupervisorID, room.LecturerID, i,
		)
		if err != nil {
			return fmt.Errorf("put room %s: %w", room.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit exam: %w", err)
	}
	return nil
}

// Get retrieves an exam with its rooms.
func (s *Store) Get(ctx context.Context, id string) (domain.Exam, error) {
	if err := ctx.Err(); err != nil {
		return domain.Exam{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Exam{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, course_name, window_start, window_end, status, main_lecturer_id,
		   co_lecturer_ids, sim_anchor, real_anchor, clock_speed, late_grace_ms, long_break_ms,
		   created_at, updated_at
		 FROM exams WHERE id = ?`,
		id,
	)
	exam, err := scanExam(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Exam{}, storage.ErrNotFound
		}
		return domain.Exam{}, fmt.Errorf("get exam: %w", err)
	}

	rooms, err := s.listRooms(ctx, exam.ID)
	if err != nil {
		return domain.Exam{}, err
	}
	exam.Rooms = rooms
	return exam, nil
}

// List returns all exams newest first, rooms included.
func (s *Store) List(ctx context.Context) ([]domain.Exam, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, course_name, window_start, window_end, status, main_lecturer_id,
		   co_lecturer_ids, sim_anchor, real_anchor, clock_speed, late_grace_ms, long_break_ms,
		   created_at, updated_at
		 FROM exams ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	defer rows.Close()

	var exams []domain.Exam
	for rows.Next() {
		exam, err := scanExam(rows)
		if err != nil {
			return nil, fmt.Errorf("scan exam: %w", err)
		}
		exams = append(exams, exam)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exams: %w", err)
	}

	for i := range exams {
		rooms, err := s.listRooms(ctx, exams[i].ID)
		if err != nil {
			return nil, err
		}
		exams[i].Rooms = rooms
	}
	return exams, nil
}

func (s *Store) listRooms(ctx context.Context, examID string) ([]domain.Room, error) {
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, label, rows, cols, supervisor_id, lecturer_id
		 FROM rooms WHERE exam_id = ? ORDER BY position ASC`,
		examID,
	)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var out []domain.Room
	for rows.Next() {
		var room domain.Room
		if err := rows.Scan(&room.ID, &room.Label, &room.Rows, &room.Cols, &room.SupervisorID, &room.LecturerID); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		out = append(out, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExam(row rowScanner) (domain.Exam, error) {
	var exam domain.Exam
	var windowStart, windowEnd, simAnchor, realAnchor, lateGrace, longBreak, createdAt, updatedAt int64
	var statusLabel, coLecturers string
	var speed float64
	err := row.Scan(
		&exam.ID,
		&exam.CourseName,
		&windowStart,
		&windowEnd,
		&statusLabel,
		&exam.MainLecturerID,
		&coLecturers,
		&simAnchor,
		&realAnchor,
		&speed,
		&lateGrace,
		&longBreak,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return domain.Exam{}, err
	}

	status, ok := domain.ParseExamStatus(statusLabel)
	if !ok {
		return domain.Exam{}, fmt.Errorf("exam %s has invalid status %q", exam.ID, statusLabel)
	}
	exam.Status = status
	exam.WindowStart = fromMillis(windowStart)
	exam.WindowEnd = fromMillis(windowEnd)
	exam.Clock = simclock.Anchored(fromMillis(simAnchor), fromMillis(realAnchor), speed)
	exam.LateGrace = time.Duration(lateGrace) * time.Millisecond
	exam.LongBreak = time.Duration(longBreak) * time.Millisecond
	exam.CreatedAt = fromMillis(createdAt)
	exam.UpdatedAt = fromMillis(updatedAt)
	if err := json.Unmarshal([]byte(coLecturers), &exam.CoLecturerIDs); err != nil {
		return domain.Exam{}, fmt.Errorf("decode co-lecturer ids: %w", err)
	}
	return exam, nil
}
