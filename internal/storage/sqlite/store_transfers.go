package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hallwatch/hallwatch/internal/exam/domain"
	"github.com/hallwatch/hallwatch/internal/storage"
)

// PutTransfer upserts one transfer request.
func (s *Store) PutTransfer(ctx context.Context, request domain.TransferRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(request.ExamID) == "" || strings.TrimSpace(request.ID) == "" {
		return fmt.Errorf("exam id and request id are required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO transfers (exam_id, id, student_id, from_room_id, from_seat, to_room_id,
		   to_seat, status, requested_by, resolved_by, requested_at, resolved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(exam_id, id) DO UPDATE SET
		   status = excluded.status,
		   resolved_by = excluded.resolved_by,
		   resolved_at = excluded.resolved_at`,
		request.ExamID,
		request.ID,
		request.StudentID,
		request.FromRoomID,
		request.FromSeat,
		request.ToRoomID,
		request.ToSeat,
		string(request.Status),
		request.RequestedBy,
		request.ResolvedBy,
		toMillis(request.RequestedAt),
		toMillisPtr(request.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("put transfer: %w", err)
	}
	return nil
}

// GetTransfer retrieves one transfer request.
func (s *Store) GetTransfer(ctx context.Context, examID, requestID string) (domain.TransferRequest, error) {
	if err := ctx.Err(); err != nil {
		return domain.TransferRequest{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.TransferRequest{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT exam_id, id, student_id, from_room_id, from_seat, to_room_id, to_seat, status,
		   requested_by, resolved_by, requested_at, resolved_at
		 FROM transfers WHERE exam_id = ? AND id = ?`,
		examID,
		requestID,
	)
	request, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.TransferRequest{}, storage.ErrNotFound
		}
		return domain.TransferRequest{}, fmt.Errorf("get transfer: %w", err)
	}
	return request, nil
}

// ListTransfers returns transfer requests ordered by request time.
func (s *Store) ListTransfers(ctx context.Context, examID string) ([]domain.TransferRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT exam_id, id, student_id, from_room_id, from_seat, to_room_id, to_seat, status,
		   requested_by, resolved_by, requested_at, resolved_at
		 FROM transfers WHERE exam_id = ? ORDER BY requested_at ASC, id ASC`,
		examID,
	)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()

	var out []domain.TransferRequest
	for rows.Next() {
		request, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		out = append(out, request)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfers: %w", err)
	}
	return out, nil
}

// ResolveTransfer atomically moves a pending request to a terminal status.
// The conditional UPDATE on status = pending is the conflict detector: a
// racing resolution finds zero affected rows and reports ErrTransferResolved.
func (s *Store) ResolveTransfer(ctx context.Context, examID, requestID string, to domain.TransferStatus, resolvedBy string, resolvedAt time.Time) (domain.TransferRequest, error) {
	if err := ctx.Err(); err != nil {
		return domain.TransferRequest{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.TransferRequest{}, fmt.Errorf("storage is not configured")
	}
	if !to.IsTerminal() {
		return domain.TransferRequest{}, fmt.Errorf("resolution status %q is not terminal", to)
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE transfers SET status = ?, resolved_by = ?, resolved_at = ?
		 WHERE exam_id = ? AND id = ? AND status = ?`,
		string(to),
		resolvedBy,
		toMillis(resolvedAt),
		examID,
		requestID,
		string(domain.TransferPending),
	)
	if err != nil {
		return domain.TransferRequest{}, fmt.Errorf("resolve transfer: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return domain.TransferRequest{}, fmt.Errorf("resolve transfer rows: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetTransfer(ctx, examID, requestID); err != nil {
			return domain.TransferRequest{}, err
		}
		return domain.TransferRequest{}, storage.ErrTransferResolved
	}
	return s.GetTransfer(ctx, examID, requestID)
}

func scanTransfer(row rowScanner) (domain.TransferRequest, error) {
	var request domain.TransferRequest
	var statusLabel string
	var requestedAt int64
	var resolvedAt sql.NullInt64
	err := row.Scan(
		&request.ExamID,
		&request.ID,
		&request.StudentID,
		&request.FromRoomID,
		&request.FromSeat,
		&request.ToRoomID,
		&request.ToSeat,
		&statusLabel,
		&request.RequestedBy,
		&request.ResolvedBy,
		&requestedAt,
		&resolvedAt,
	)
	if err != nil {
		return domain.TransferRequest{}, err
	}

	status, ok := domain.ParseTransferStatus(statusLabel)
	if !ok {
		return domain.TransferRequest{}, fmt.Errorf("transfer %s/%s has invalid status %q",
			request.ExamID, request.ID, statusLabel)
	}
	request.Status = status
	request.RequestedAt = fromMillis(requestedAt)
	request.ResolvedAt = fromMillisPtr(resolvedAt)
	return request, nil
}
