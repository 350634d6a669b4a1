package storage

import (
	"context"
	"time"

	"github.com/hallwatch/hallwatch/internal/exam/domain"
	"github.com/hallwatch/hallwatch/internal/exam/event"
	apperrors "github.com/hallwatch/hallwatch/internal/platform/errors"
)

// ErrNotFound indicates a requested persistence record is missing.
// Callers use this to differentiate between legitimate "no such entity" states
// and transport or data corruption failures.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ErrTransferResolved indicates a transfer resolution lost the race: the
// request was already approved, rejected, or cancelled by another actor.
var ErrTransferResolved = apperrors.New(apperrors.CodeTransferAlreadyResolved, "transfer request is already resolved")

// StudentStat is the incrementally maintained per-student rollup. It is a
// cache over the event ledger and must always be reconstructible by replaying
// the ledger in order.
type StudentStat struct {
	ExamID    string
	StudentID string
	// BreakCount is how many completed breaks the student has taken.
	BreakCount int
	// BreakTotalMillis is cumulative completed break time in simulated
	// milliseconds.
	BreakTotalMillis int64
	IncidentCount    int
	ViolationCount   int
	// Notes collects free-text incident descriptions in ledger order.
	Notes []string
	// LastSeq is the ledger sequence this rollup has been folded up to.
	LastSeq   uint64
	UpdatedAt time.Time
}

// Message is a staff message scoped to one exam, either broadcast to every
// room or addressed to specific staff members and/or whole roles.
type Message struct {
	ID         string
	ExamID     string
	SenderID   string
	SenderRole string
	Body       string
	Broadcast  bool
	// RecipientIDs lists directly addressed staff members.
	RecipientIDs []string
	// RecipientRoles addresses every staff member holding one of the roles.
	// Both recipient sets are empty when Broadcast is set.
	RecipientRoles []string
	PostedAt       time.Time
}

// AddressedTo reports whether the message reaches a reader with the given id
// and role. Broadcasts reach everyone.
func (m Message) AddressedTo(recipientID, recipientRole string) bool {
	if m.Broadcast {
		return true
	}
	for _, recipient := range m.RecipientIDs {
		if recipient == recipientID {
			return true
		}
	}
	for _, role := range m.RecipientRoles {
		if role == recipientRole {
			return true
		}
	}
	return false
}

// MessageReceipt records one reader acknowledging a message.
type MessageReceipt struct {
	MessageID string
	ReaderID  string
	ReadAt    time.Time
}

// ExamStore owns exam metadata records, including rooms and clock settings.
type ExamStore interface {
	Put(ctx context.Context, exam domain.Exam) error
	Get(ctx context.Context, id string) (domain.Exam, error)
	// List returns all exams ordered by creation time descending.
	List(ctx context.Context) ([]domain.Exam, error)
}

// AttendanceStore owns the per-student attendance records for an exam.
type AttendanceStore interface {
	PutAttendance(ctx context.Context, record domain.AttendanceRecord) error
	GetAttendance(ctx context.Context, examID, studentID string) (domain.AttendanceRecord, error)
	// ListAttendance returns every roster record for an exam.
	ListAttendance(ctx context.Context, examID string) ([]domain.AttendanceRecord, error)
	// ListAttendanceByRoom returns the roster records seated in one room.
	ListAttendanceByRoom(ctx context.Context, examID, roomID string) ([]domain.AttendanceRecord, error)
}

// TransferStore owns cross-room transfer requests. Resolution is a
// compare-and-set on the pending status so concurrent approve/reject races
// settle to exactly one winner.
type TransferStore interface {
	PutTransfer(ctx context.Context, request domain.TransferRequest) error
	GetTransfer(ctx context.Context, examID, requestID string) (domain.TransferRequest, error)
	// ListTransfers returns transfer requests for an exam ordered by request time.
	ListTransfers(ctx context.Context, examID string) ([]domain.TransferRequest, error)
	// ResolveTransfer atomically moves a pending request to a terminal
	// status and returns the resolved request. Returns ErrTransferResolved
	// if the request is no longer pending.
	ResolveTransfer(ctx context.Context, examID, requestID string, to domain.TransferStatus, resolvedBy string, resolvedAt time.Time) (domain.TransferRequest, error)
}

// EventStore owns the append-only exam ledger; this is the source of truth
// for rollup reconstruction. Events are immutable once appended.
type EventStore interface {
	// AppendEvent atomically appends an event and returns it with its
	// per-exam sequence number set.
	AppendEvent(ctx context.Context, evt event.Event) (event.Event, error)
	// GetEventBySeq retrieves a specific event by sequence number.
	GetEventBySeq(ctx context.Context, examID string, seq uint64) (event.Event, error)
	// ListEvents returns events ordered by sequence ascending.
	ListEvents(ctx context.Context, examID string, afterSeq uint64, limit int) ([]event.Event, error)
	// GetLatestEventSeq returns the latest sequence number for an exam,
	// zero when no events exist.
	GetLatestEventSeq(ctx context.Context, examID string) (uint64, error)
}

// StatStore owns the derived per-student rollups.
type StatStore interface {
	PutStat(ctx context.Context, stat StudentStat) error
	GetStat(ctx context.Context, examID, studentID string) (StudentStat, error)
	// ListStats returns every rollup for an exam.
	ListStats(ctx context.Context, examID string) ([]StudentStat, error)
	// ResetStats discards all rollups for an exam ahead of a ledger replay.
	ResetStats(ctx context.Context, examID string) error
}

// MessageStore owns staff messages and their read receipts.
type MessageStore interface {
	PutMessage(ctx context.Context, message Message) error
	GetMessage(ctx context.Context, examID, messageID string) (Message, error)
	// ListMessagesForRecipient returns broadcasts plus messages addressed
	// to the recipient by id or by role, ordered by post time.
	ListMessagesForRecipient(ctx context.Context, examID, recipientID, recipientRole string) ([]Message, error)
	// MarkMessageRead records a read receipt; marking twice is a no-op.
	MarkMessageRead(ctx context.Context, examID, messageID, readerID string, readAt time.Time) error
	// ListReceipts returns the read receipts for a message.
	ListReceipts(ctx context.Context, examID, messageID string) ([]MessageReceipt, error)
}
