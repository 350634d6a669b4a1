package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hallwatch/hallwatch/internal/exam/domain"
	"github.com/hallwatch/hallwatch/internal/exam/event"
	"github.com/hallwatch/hallwatch/internal/exam/simclock"
	apperrors "github.com/hallwatch/hallwatch/internal/platform/errors"
	"github.com/hallwatch/hallwatch/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir() + "/hallwatch.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestExamRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	anchor := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

	exam := domain.Exam{
		ID:             "exam1",
		CourseName:     "Distributed Systems",
		WindowStart:    anchor,
		WindowEnd:      anchor.Add(3 * time.Hour),
		Status:         domain.ExamStatusScheduled,
		MainLecturerID: "lect-main",
		CoLecturerIDs:  []string{"lect-b"},
		Clock:          simclock.Anchored(anchor, anchor, 60),
		LateGrace:      domain.DefaultLateGrace,
		LongBreak:      domain.DefaultLongBreak,
		CreatedAt:      anchor,
		UpdatedAt:      anchor,
		Rooms: []domain.Room{
			{ID: "roomA", Label: "A101", Rows: 10, Cols: 8, SupervisorID: "sup-a"},
			{ID: "roomB", Label: "B203", Rows: 6, Cols: 6, SupervisorID: "sup-b", LecturerID: "lect-b"},
		},
	}
	if err := store.Put(ctx, exam); err != nil {
		t.Fatalf("put exam: %v", err)
	}

	got, err := store.Get(ctx, "exam1")
	if err != nil {
		t.Fatalf("get exam: %v", err)
	}
	if got.CourseName != exam.CourseName || got.Status != exam.Status {
		t.Fatalf("exam round trip = %+v", got)
	}
	if len(got.Rooms) != 2 || got.Rooms[0].ID != "roomA" || got.Rooms[1].LecturerID != "lect-b" {
		t.Fatalf("rooms round trip = %+v", got.Rooms)
	}
	if got.Clock.Speed != 60 || !got.Clock.SimAnchor.Equal(anchor) {
		t.Fatalf("clock round trip = %+v", got.Clock)
	}
	if got.LateGrace != domain.DefaultLateGrace {
		t.Fatalf("late grace = %v", got.LateGrace)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAttendanceRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	arrived := time.Date(2026, time.March, 2, 9, 5, 0, 0, time.UTC)

	record := domain.AttendanceRecord{
		ExamID:       "exam1",
		StudentID:    "stud1",
		RoomID:       "roomA",
		Seat:         "A1",
		Status:       domain.AttendancePresent,
		ArrivedAt:    &arrived,
		LastStatusAt: arrived,
		Violations:   1,
	}
	if err := store.PutAttendance(ctx, record); err != nil {
		t.Fatalf("put attendance: %v", err)
	}

	got, err := store.GetAttendance(ctx, "exam1", "stud1")
	if err != nil {
		t.Fatalf("get attendance: %v", err)
	}
	if got.Status != domain.AttendancePresent || got.ArrivedAt == nil || !got.ArrivedAt.Equal(arrived) {
		t.Fatalf("attendance round trip = %+v", got)
	}
	if got.OutStartedAt != nil || got.FinishedAt != nil {
		t.Fatalf("expected nil break/finish stamps, got %+v", got)
	}

	other := record
	other.StudentID = "stud2"
	other.RoomID = "roomB"
	if err := store.PutAttendance(ctx, other); err != nil {
		t.Fatalf("put second attendance: %v", err)
	}

	roomA, err := store.ListAttendanceByRoom(ctx, "exam1", "roomA")
	if err != nil {
		t.Fatalf("list by room: %v", err)
	}
	if len(roomA) != 1 || roomA[0].StudentID != "stud1" {
		t.Fatalf("room filter = %+v", roomA)
	}
}

func TestResolveTransfer_CompareAndSet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	requested := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)

	request := domain.TransferRequest{
		ID:          "req1",
		ExamID:      "exam1",
		StudentID:   "stud1",
		FromRoomID:  "roomA",
		ToRoomID:    "roomB",
		Status:      domain.TransferPending,
		RequestedBy: "sup-a",
		RequestedAt: requested,
	}
	if err := store.PutTransfer(ctx, request); err != nil {
		t.Fatalf("put transfer: %v", err)
	}

	resolved, err := store.ResolveTransfer(ctx, "exam1", "req1", domain.TransferApproved, "sup-b", requested.Add(time.Minute))
	if err != nil {
		t.Fatalf("resolve transfer: %v", err)
	}
	if resolved.Status != domain.TransferApproved || resolved.ResolvedBy != "sup-b" || resolved.ResolvedAt == nil {
		t.Fatalf("resolved = %+v", resolved)
	}

	_, err = store.ResolveTransfer(ctx, "exam1", "req1", domain.TransferRejected, "sup-b", requested.Add(2*time.Minute))
	if !apperrors.IsCode(err, apperrors.CodeTransferAlreadyResolved) {
		t.Fatalf("expected already-resolved error, got %v", err)
	}

	_, err = store.ResolveTransfer(ctx, "exam1", "missing", domain.TransferApproved, "adm", requested)
	if !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAppendEvent_AssignsSequencePerExam(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, err := store.AppendEvent(ctx, event.Event{ExamID: "exam1", Type: event.TypeBreakStarted, StudentID: "stud1"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	second, err := store.AppendEvent(ctx, event.Event{ExamID: "exam1", Type: event.TypeBreakEnded, StudentID: "stud1"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	other, err := store.AppendEvent(ctx, event.Event{ExamID: "exam2", Type: event.TypeBreakStarted})
	if err != nil {
		t.Fatalf("append to second exam: %v", err)
	}
	if first.Seq != 1 || second.Seq != 2 || other.Seq != 1 {
		t.Fatalf("seqs = %d, %d, %d", first.Seq, second.Seq, other.Seq)
	}

	events, err := store.ListEvents(ctx, "exam1", 0, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 || events[0].Type != event.TypeBreakStarted {
		t.Fatalf("events = %+v", events)
	}

	latest, err := store.GetLatestEventSeq(ctx, "exam1")
	if err != nil {
		t.Fatalf("latest seq: %v", err)
	}
	if latest != 2 {
		t.Fatalf("latest = %d, want 2", latest)
	}
}

func TestAppendEvent_RejectsInvalidSeverity(t *testing.T) {
	store := openTestStore(t)
	_, err := store.AppendEvent(context.Background(), event.Event{
		ExamID:   "exam1",
		Type:     event.TypeIncidentReported,
		Severity: event.Severity("urgent"),
	})
	if !apperrors.IsCode(err, apperrors.CodeEventInvalidSeverity) {
		t.Fatalf("expected severity rejection, got %v", err)
	}
}

func TestStatRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	updated := time.Date(2026, time.March, 2, 11, 0, 0, 0, time.UTC)

	stat := storage.StudentStat{
		ExamID:           "exam1",
		StudentID:        "stud1",
		BreakCount:       2,
		BreakTotalMillis: (13 * time.Minute).Milliseconds(),
		IncidentCount:    1,
		ViolationCount:   1,
		Notes:            []string{"phone on desk"},
		LastSeq:          7,
		UpdatedAt:        updated,
	}
	if err := store.PutStat(ctx, stat); err != nil {
		t.Fatalf("put stat: %v", err)
	}

	got, err := store.GetStat(ctx, "exam1", "stud1")
	if err != nil {
		t.Fatalf("get stat: %v", err)
	}
	if got.BreakCount != 2 || got.BreakTotalMillis != stat.BreakTotalMillis || got.LastSeq != 7 {
		t.Fatalf("stat round trip = %+v", got)
	}
	if len(got.Notes) != 1 || got.Notes[0] != "phone on desk" {
		t.Fatalf("notes round trip = %v", got.Notes)
	}

	if err := store.ResetStats(ctx, "exam1"); err != nil {
		t.Fatalf("reset stats: %v", err)
	}
	if _, err := store.GetStat(ctx, "exam1", "stud1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found after reset, got %v", err)
	}
}

func TestMessagesAndReceipts(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	posted := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)

	broadcast := storage.Message{
		ID: "m1", ExamID: "exam1", SenderID: "lect-main", SenderRole: "lecturer",
		Body: "30 minutes remaining", Broadcast: true, PostedAt: posted,
	}
	direct := storage.Message{
		ID: "m2", ExamID: "exam1", SenderID: "lect-main", SenderRole: "lecturer",
		Body: "check seat B7", RecipientIDs: []string{"sup-b"}, PostedAt: posted.Add(time.Minute),
	}
	roleAddressed := storage.Message{
		ID: "m3", ExamID: "exam1", SenderID: "adm-1", SenderRole: "admin",
		Body: "collect scripts at the door", RecipientRoles: []string{"supervisor"}, PostedAt: posted.Add(2 * time.Minute),
	}
	for _, message := range []storage.Message{broadcast, direct, roleAddressed} {
		if err := store.PutMessage(ctx, message); err != nil {
			t.Fatalf("put message %s: %v", message.ID, err)
		}
	}

	inbox, err := store.ListMessagesForRecipient(ctx, "exam1", "sup-b", "supervisor")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(inbox) != 3 || inbox[0].ID != "m1" || inbox[1].ID != "m2" || inbox[2].ID != "m3" {
		t.Fatalf("inbox = %+v", inbox)
	}

	other, err := store.ListMessagesForRecipient(ctx, "exam1", "sup-a", "supervisor")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(other) != 2 || other[0].ID != "m1" || other[1].ID != "m3" {
		t.Fatalf("other inbox = %+v", other)
	}

	lecturerInbox, err := store.ListMessagesForRecipient(ctx, "exam1", "lect-main", "lecturer")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(lecturerInbox) != 1 || lecturerInbox[0].ID != "m1" {
		t.Fatalf("lecturer inbox = %+v", lecturerInbox)
	}

	if err := store.MarkMessageRead(ctx, "exam1", "m2", "sup-b", posted.Add(2*time.Minute)); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if err := store.MarkMessageRead(ctx, "exam1", "m2", "sup-b", posted.Add(time.Hour)); err != nil {
		t.Fatalf("second mark read: %v", err)
	}
	receipts, err := store.ListReceipts(ctx, "exam1", "m2")
	if err != nil {
		t.Fatalf("list receipts: %v", err)
	}
	if len(receipts) != 1 || !receipts[0].ReadAt.Equal(posted.Add(2*time.Minute)) {
		t.Fatalf("receipts = %+v", receipts)
	}

	if err := store.MarkMessageRead(ctx, "exam1", "missing", "sup-b", posted); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
