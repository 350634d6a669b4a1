package domain

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/hallwatch/hallwatch/internal/platform/errors"
)

// TransferStatus describes the lifecycle of a cross-room move request.
type TransferStatus string

const (
	TransferUnspecified TransferStatus = ""
	// TransferPending awaits resolution by the target room.
	TransferPending TransferStatus = "pending"
	// TransferApproved relocated the student to the target room.
	TransferApproved TransferStatus = "approved"
	// TransferRejected kept the student in the source room.
	TransferRejected TransferStatus = "rejected"
	// TransferCancelled was withdrawn by the requester.
	TransferCancelled TransferStatus = "cancelled"
)

// ParseTransferStatus maps a persisted label back to a TransferStatus.
func ParseTransferStatus(value string) (TransferStatus, bool) {
	switch TransferStatus(strings.ToLower(strings.TrimSpace(value))) {
	case TransferPending:
		return TransferPending, true
	case TransferApproved:
		return TransferApproved, true
	case TransferRejected:
		return TransferRejected, true
	case TransferCancelled:
		return TransferCancelled, true
	default:
		return TransferUnspecified, false
	}
}

// IsTerminal reports whether the request can no longer be resolved.
func (s TransferStatus) IsTerminal() bool {
	return s == TransferApproved || s == TransferRejected || s == TransferCancelled
}

// TransferRequest is a pending or resolved move of one student between rooms.
// Terminal requests are immutable; resolution happens through a storage-level
// check-and-set, never a read-then-write pair.
type TransferRequest struct {
	ID          string
	ExamID      string
	StudentID   string
	FromRoomID  string
	FromSeat    string
	ToRoomID    string
	ToSeat      string
	Status      TransferStatus
	RequestedBy string
	ResolvedBy  string
	RequestedAt time.Time
	ResolvedAt  *time.Time
}

// NewTransferRequestInput describes a requested cross-room move.
type NewTransferRequestInput struct {
	ExamID      string
	StudentID   string
	FromRoomID  string
	FromSeat    string
	ToRoomID    string
	ToSeat      string
	RequestedBy string
}

// NewTransferRequest creates a pending transfer request.
func NewTransferRequest(input NewTransferRequestInput, now time.Time, idGenerator func() (string, error)) (TransferRequest, error) {
	if idGenerator == nil {
		idGenerator = NewID
	}
	if input.FromRoomID == input.ToRoomID {
		return TransferRequest{}, apperrors.WithMetadata(apperrors.CodeTransferSameRoom,
			"transfer target room must differ from the source room", map[string]string{
				"room_id": input.FromRoomID,
			})
	}

	requestID, err := idGenerator()
	if err != nil {
		return TransferRequest{}, fmt.Errorf("generate transfer request id: %w", err)
	}
	return TransferRequest{
		ID:          requestID,
		ExamID:      input.ExamID,
		StudentID:   input.StudentID,
		FromRoomID:  input.FromRoomID,
		FromSeat:    input.FromSeat,
		ToRoomID:    input.ToRoomID,
		ToSeat:      input.ToSeat,
		Status:      TransferPending,
		RequestedBy: input.RequestedBy,
		RequestedAt: now.UTC(),
	}, nil
}
