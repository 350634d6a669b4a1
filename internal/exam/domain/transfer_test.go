package domain

import (
	"testing"
	"time"

	apperrors "github.com/hallwatch/hallwatch/internal/platform/errors"
)

func TestNewTransferRequest(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	request, err := NewTransferRequest(NewTransferRequestInput{
		ExamID:      "exam1",
		StudentID:   "stud1",
		FromRoomID:  "roomA",
		FromSeat:    "A1",
		ToRoomID:    "roomB",
		ToSeat:      "B7",
		RequestedBy: "sup-a",
	}, now, fixedIDGen("req1"))
	if err != nil {
		t.Fatalf("new transfer request: %v", err)
	}

	if request.ID != "req1" {
		t.Fatalf("expected id req1, got %q", request.ID)
	}
	if request.Status != TransferPending {
		t.Fatalf("expected pending, got %s", request.Status)
	}
	if !request.RequestedAt.Equal(now) {
		t.Fatalf("expected requested stamp %v, got %v", now, request.RequestedAt)
	}
	if request.ResolvedAt != nil || request.ResolvedBy != "" {
		t.Fatal("expected unresolved request")
	}
}

func TestNewTransferRequestRejectsSameRoom(t *testing.T) {
	_, err := NewTransferRequest(NewTransferRequestInput{
		ExamID:     "exam1",
		StudentID:  "stud1",
		FromRoomID: "roomA",
		ToRoomID:   "roomA",
	}, time.Now(), nil)
	if !apperrors.IsCode(err, apperrors.CodeTransferSameRoom) {
		t.Fatalf("expected same-room rejection, got %v", err)
	}
}

func TestTransferStatusTerminal(t *testing.T) {
	tests := []struct {
		status   TransferStatus
		terminal bool
	}{
		{TransferPending, false},
		{TransferApproved, true},
		{TransferRejected, true},
		{TransferCancelled, true},
	}
	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.terminal {
			t.Fatalf("status %s: expected terminal=%v, got %v", tt.status, tt.terminal, got)
		}
	}
}
