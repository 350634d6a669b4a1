// Package memory provides an in-process storage implementation used by tests
// and single-node demo runs. All stores share one mutex; the dataset is small
// enough that finer locking buys nothing.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hallwatch/hallwatch/internal/exam/domain"
	"github.com/hallwatch/hallwatch/internal/exam/event"
	"github.com/hallwatch/hallwatch/internal/storage"
)

// Store keeps every record in process memory.
type Store struct {
	mu          sync.Mutex
	exams       map[string]domain.Exam
	attendance  map[string]map[string]domain.AttendanceRecord
	transfers   map[string]map[string]domain.TransferRequest
	events      map[string][]event.Event
	stats       map[string]map[string]storage.StudentStat
	messages    map[string]map[string]storage.Message
	receipts    map[string]map[string]map[string]time.Time
	examOrder   []string
	transferSeq map[string][]string
	messageSeq  map[string][]string
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		exams:       map[string]domain.Exam{},
		attendance:  map[string]map[string]domain.AttendanceRecord{},
		transfers:   map[string]map[string]domain.TransferRequest{},
		events:      map[string][]event.Event{},
		stats:       map[string]map[string]storage.StudentStat{},
		messages:    map[string]map[string]storage.Message{},
		receipts:    map[string]map[string]map[string]time.Time{},
		transferSeq: map[string][]string{},
		messageSeq:  map[string][]string{},
	}
}

// Put stores an exam record.
func (s *Store) Put(ctx context.Context, exam domain.Exam) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.exams[exam.ID]; !ok {
		s.examOrder = append(s.examOrder, exam.ID)
	}
	s.exams[exam.ID] = cloneExam(exam)
	return nil
}

// Get retrieves an exam record.
func (s *Store) Get(ctx context.Context, id string) (domain.Exam, error) {
	if err := ctx.Err(); err != nil {
		return domain.Exam{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	exam, ok := s.exams[id]
	if !ok {
		return domain.Exam{}, storage.ErrNotFound
	}
	return cloneExam(exam), nil
}

// List returns exams newest first.
func (s *Store) List(ctx context.Context) ([]domain.Exam, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Exam, 0, len(s.examOrder))
	for i := len(s.examOrder) - 1; i >= 0; i-- {
		out = append(out, cloneExam(s.exams[s.examOrder[i]]))
	}
	return out, nil
}

// PutAttendance stores an attendance record.
func (s *Store) PutAttendance(ctx context.Context, record domain.AttendanceRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byStudent, ok := s.attendance[record.ExamID]
	if !ok {
		byStudent = map[string]domain.AttendanceRecord{}
		s.attendance[record.ExamID] = byStudent
	}
	byStudent[record.StudentID] = record
	return nil
}

// GetAttendance retrieves one attendance record.
func (s *Store) GetAttendance(ctx context.Context, examID, studentID string) (domain.AttendanceRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.AttendanceRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.attendance[examID][studentID]
	if !ok {
		return domain.AttendanceRecord{}, storage.ErrNotFound
	}
	return record, nil
}

// ListAttendance returns the full roster for an exam.
func (s *Store) ListAttendance(ctx context.Context, examID string) ([]domain.AttendanceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AttendanceRecord, 0, len(s.attendance[examID]))
	for _, record := range s.attendance[examID] {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

// ListAttendanceByRoom returns the roster records seated in one room.
func (s *Store) ListAttendanceByRoom(ctx context.Context, examID, roomID string) ([]domain.AttendanceRecord, error) {
	records, err := s.ListAttendance(ctx, examID)
	if err != nil {
		return nil, err
	}
	out := records[:0]
	for _, record := range records {
		if record.RoomID == roomID {
			out = append(out, record)
		}
	}
	return out, nil
}

// PutTransfer stores a transfer request.
func (s *Store) PutTransfer(ctx context.Context, request domain.TransferRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.transfers[request.ExamID]
	if !ok {
		byID = map[string]domain.TransferRequest{}
		s.transfers[request.ExamID] = byID
	}
	if _, ok := byID[request.ID]; !ok {
		s.transferSeq[request.ExamID] = append(s.transferSeq[request.ExamID], request.ID)
	}
	byID[request.ID] = request
	return nil
}

// GetTransfer retrieves one transfer request.
func (s *Store) GetTransfer(ctx context.Context, examID, requestID string) (domain.TransferRequest, error) {
	if err := ctx.Err(); err != nil {
		return domain.TransferRequest{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	request, ok := s.transfers[examID][requestID]
	if !ok {
		return domain.TransferRequest{}, storage.ErrNotFound
	}
	return request, nil
}

// ListTransfers returns transfer requests in request order.
func (s *Store) ListTransfers(ctx context.Context, examID string) ([]domain.TransferRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.transferSeq[examID]
	out := make([]domain.TransferRequest, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.transfers[examID][id])
	}
	return out, nil
}

// ResolveTransfer atomically moves a pending request to a terminal status.
func (s *Store) ResolveTransfer(ctx context.Context, examID, requestID string, to domain.TransferStatus, resolvedBy string, resolvedAt time.Time) (domain.TransferRequest, error) {
	if err := ctx.Err(); err != nil {
		return domain.TransferRequest{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	request, ok := s.transfers[examID][requestID]
	if !ok {
		return domain.TransferRequest{}, storage.ErrNotFound
	}
	if request.Status != domain.TransferPending {
		return domain.TransferRequest{}, storage.ErrTransferResolved
	}
	resolvedAt = resolvedAt.UTC()
	request.Status = to
	request.ResolvedBy = resolvedBy
	request.ResolvedAt = &resolvedAt
	s.transfers[examID][requestID] = request
	return request, nil
}

// AppendEvent appends to the exam ledger, assigning the next sequence.
func (s *Store) AppendEvent(ctx context.Context, evt event.Event) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if err := evt.Validate(); err != nil {
		return event.Event{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	evt.Timestamp = evt.Timestamp.UTC().Truncate(time.Millisecond)
	evt.Seq = uint64(len(s.events[evt.ExamID]) + 1)
	s.events[evt.ExamID] = append(s.events[evt.ExamID], evt)
	return evt, nil
}

// GetEventBySeq retrieves one ledger event.
func (s *Store) GetEventBySeq(ctx context.Context, examID string, seq uint64) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.events[examID]
	if seq == 0 || seq > uint64(len(events)) {
		return event.Event{}, storage.ErrNotFound
	}
	return events[seq-1], nil
}

// ListEvents returns ledger events ordered by sequence ascending.
func (s *Store) ListEvents(ctx context.Context, examID string, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []event.Event
	for _, evt := range s.events[examID] {
		if evt.Seq <= afterSeq {
			continue
		}
		out = append(out, evt)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// GetLatestEventSeq returns the last assigned sequence for an exam.
func (s *Store) GetLatestEventSeq(ctx context.Context, examID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(len(s.events[examID])), nil
}

// PutStat stores a student rollup.
func (s *Store) PutStat(ctx context.Context, stat storage.StudentStat) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byStudent, ok := s.stats[stat.ExamID]
	if !ok {
		byStudent = map[string]storage.StudentStat{}
		s.stats[stat.ExamID] = byStudent
	}
	stat.Notes = append([]string(nil), stat.Notes...)
	byStudent[stat.StudentID] = stat
	return nil
}

// GetStat retrieves one student rollup.
func (s *Store) GetStat(ctx context.Context, examID, studentID string) (storage.StudentStat, error) {
	if err := ctx.Err(); err != nil {
		return storage.StudentStat{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stat, ok := s.stats[examID][studentID]
	if !ok {
		return storage.StudentStat{}, storage.ErrNotFound
	}
	stat.Notes = append([]string(nil), stat.Notes...)
	return stat, nil
}

// ListStats returns all rollups for an exam.
func (s *Store) ListStats(ctx context.Context, examID string) ([]storage.StudentStat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storage.StudentStat, 0, len(s.stats[examID]))
	for _, stat := range s.stats[examID] {
		stat.Notes = append([]string(nil), stat.Notes...)
		out = append(out, stat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

// ResetStats discards every rollup for an exam.
func (s *Store) ResetStats(ctx context.Context, examID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stats, examID)
	return nil
}

// PutMessage stores a staff message.
func (s *Store) PutMessage(ctx context.Context, message storage.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.messages[message.ExamID]
	if !ok {
		byID = map[string]storage.Message{}
		s.messages[message.ExamID] = byID
	}
	if _, ok := byID[message.ID]; !ok {
		s.messageSeq[message.ExamID] = append(s.messageSeq[message.ExamID], message.ID)
	}
	message.RecipientIDs = append([]string(nil), message.RecipientIDs...)
	message.RecipientRoles = append([]string(nil), message.RecipientRoles...)
	byID[message.ID] = message
	return nil
}

// GetMessage retrieves one staff message.
func (s *Store) GetMessage(ctx context.Context, examID, messageID string) (storage.Message, error) {
	if err := ctx.Err(); err != nil {
		return storage.Message{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	message, ok := s.messages[examID][messageID]
	if !ok {
		return storage.Message{}, storage.ErrNotFound
	}
	return message, nil
}

// ListMessagesForRecipient returns broadcasts plus messages addressed to the
// reader by id or by role, in post order.
func (s *Store) ListMessagesForRecipient(ctx context.Context, examID, recipientID, recipientRole string) ([]storage.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.Message
	for _, id := range s.messageSeq[examID] {
		message := s.messages[examID][id]
		if message.AddressedTo(recipientID, recipientRole) {
			out = append(out, message)
		}
	}
	return out, nil
}

// MarkMessageRead records a read receipt; repeat marks keep the first stamp.
func (s *Store) MarkMessageRead(ctx context.Context, examID, messageID, readerID string, readAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[examID][messageID]; !ok {
		return storage.ErrNotFound
	}
	byMessage, ok := s.receipts[examID]
	if !ok {
		byMessage = map[string]map[string]time.Time{}
		s.receipts[examID] = byMessage
	}
	byReader, ok := byMessage[messageID]
	if !ok {
		byReader = map[string]time.Time{}
		byMessage[messageID] = byReader
	}
	if _, ok := byReader[readerID]; !ok {
		byReader[readerID] = readAt.UTC()
	}
	return nil
}

// ListReceipts returns the read receipts for a message.
func (s *Store) ListReceipts(ctx context.Context, examID, messageID string) ([]storage.MessageReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byReader := s.receipts[examID][messageID]
	out := make([]storage.MessageReceipt, 0, len(byReader))
	for readerID, readAt := range byReader {
		out = append(out, storage.MessageReceipt{MessageID: messageID, ReaderID: readerID, ReadAt: readAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReaderID < out[j].ReaderID })
	return out, nil
}

func cloneExam(exam domain.Exam) domain.Exam {
	exam.Rooms = append([]domain.Room(nil), exam.Rooms...)
	exam.CoLecturerIDs = append([]string(nil), exam.CoLecturerIDs...)
	return exam
}
