package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/hallwatch/hallwatch/internal/exam/simclock"
	apperrors "github.com/hallwatch/hallwatch/internal/platform/errors"
)

func fixedIDGen(ids ...string) func() (string, error) {
	i := 0
	return func() (string, error) {
		id := ids[i%len(ids)]
		i++
		return id, nil
	}
}

func validCreateExamInput() CreateExamInput {
	return CreateExamInput{
		CourseName:     "  Distributed Systems  ",
		WindowStart:    time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		WindowEnd:      time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
		MainLecturerID: "lect-main",
		CoLecturerIDs:  []string{"lect-co", "lect-co", " "},
		Rooms: []RoomInput{
			{Label: "A101", Rows: 6, Cols: 8, SupervisorID: "sup-a"},
			{Label: "B203", Rows: 5, Cols: 6, SupervisorID: "sup-b", LecturerID: "lect-co"},
		},
	}
}

func TestCreateExamNormalizesInput(t *testing.T) {
	fixedTime := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	exam, err := CreateExam(validCreateExamInput(), func() time.Time { return fixedTime }, fixedIDGen("exam1", "roomA", "roomB"))
	if err != nil {
		t.Fatalf("create exam: %v", err)
	}

	if exam.ID != "exam1" {
		t.Fatalf("expected id exam1, got %q", exam.ID)
	}
	if exam.CourseName != "Distributed Systems" {
		t.Fatalf("expected trimmed course name, got %q", exam.CourseName)
	}
	if exam.Status != ExamStatusScheduled {
		t.Fatalf("expected scheduled status, got %v", exam.Status)
	}
	if len(exam.CoLecturerIDs) != 1 || exam.CoLecturerIDs[0] != "lect-co" {
		t.Fatalf("expected deduplicated co-lecturers, got %v", exam.CoLecturerIDs)
	}
	if len(exam.Rooms) != 2 {
		t.Fatalf("expected 2 rooms, got %d", len(exam.Rooms))
	}
	if exam.Rooms[0].ID != "roomA" || exam.Rooms[1].ID != "roomB" {
		t.Fatalf("expected generated room ids, got %v", exam.Rooms)
	}
	if exam.LateGrace != DefaultLateGrace || exam.LongBreak != DefaultLongBreak {
		t.Fatalf("expected default thresholds, got %v / %v", exam.LateGrace, exam.LongBreak)
	}
	if exam.Clock.IsZero() {
		t.Fatal("expected a default clock anchor")
	}
	if !exam.CreatedAt.Equal(fixedTime) || !exam.UpdatedAt.Equal(fixedTime) {
		t.Fatal("expected timestamps to match fixed time")
	}
}

func TestNormalizeCreateExamInputValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateExamInput)
		code   apperrors.Code
	}{
		{
			name:   "empty course",
			mutate: func(in *CreateExamInput) { in.CourseName = "   " },
			code:   apperrors.CodeExamEmptyCourse,
		},
		{
			name:   "window end before start",
			mutate: func(in *CreateExamInput) { in.WindowEnd = in.WindowStart.Add(-time.Hour) },
			code:   apperrors.CodeExamInvalidWindow,
		},
		{
			name:   "missing main lecturer",
			mutate: func(in *CreateExamInput) { in.MainLecturerID = "" },
			code:   apperrors.CodeExamRoomWithoutCoverage,
		},
		{
			name:   "no rooms",
			mutate: func(in *CreateExamInput) { in.Rooms = nil },
			code:   apperrors.CodeExamDuplicateRoom,
		},
		{
			name: "duplicate room label",
			mutate: func(in *CreateExamInput) {
				in.Rooms = append(in.Rooms, RoomInput{Label: "A101", SupervisorID: "sup-c"})
			},
			code: apperrors.CodeExamDuplicateRoom,
		},
		{
			name: "supervisor owns two rooms",
			mutate: func(in *CreateExamInput) {
				in.Rooms[1].SupervisorID = "sup-a"
			},
			code: apperrors.CodeExamDuplicateRoom,
		},
		{
			name: "room lecturer outside staff",
			mutate: func(in *CreateExamInput) {
				in.Rooms[1].LecturerID = "lect-stranger"
			},
			code: apperrors.CodeExamRoomWithoutCoverage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validCreateExamInput()
			tt.mutate(&input)
			_, err := NormalizeCreateExamInput(input)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if got := apperrors.GetCode(err); got != tt.code {
				t.Fatalf("expected code %s, got %s", tt.code, got)
			}
		})
	}
}

func TestExamStatusTransitions(t *testing.T) {
	tests := []struct {
		from    ExamStatus
		to      ExamStatus
		allowed bool
	}{
		{ExamStatusScheduled, ExamStatusRunning, true},
		{ExamStatusRunning, ExamStatusEnded, true},
		{ExamStatusScheduled, ExamStatusEnded, false},
		{ExamStatusEnded, ExamStatusRunning, false},
		{ExamStatusRunning, ExamStatusScheduled, false},
		{ExamStatusEnded, ExamStatusScheduled, false},
	}

	for _, tt := range tests {
		if got := IsExamStatusTransitionAllowed(tt.from, tt.to); got != tt.allowed {
			t.Fatalf("transition %s -> %s: expected %v, got %v", tt.from, tt.to, tt.allowed, got)
		}
	}
}

func TestTransitionStatusRejectsIllegalMove(t *testing.T) {
	exam := Exam{Status: ExamStatusEnded}
	_, err := TransitionStatus(exam, ExamStatusRunning, time.Now())
	if !errors.Is(err, apperrors.New(apperrors.CodeExamInvalidTransition, "")) {
		t.Fatalf("expected invalid status transition, got %v", err)
	}
}

func TestLecturerForFallsBackToMainLecturer(t *testing.T) {
	exam := Exam{
		MainLecturerID: "lect-main",
		Rooms: []Room{
			{ID: "roomA", Label: "A101"},
			{ID: "roomB", Label: "B203", LecturerID: "lect-co"},
		},
	}

	if got := exam.LecturerFor("roomA"); got != "lect-main" {
		t.Fatalf("expected main lecturer coverage, got %q", got)
	}
	if got := exam.LecturerFor("roomB"); got != "lect-co" {
		t.Fatalf("expected co-lecturer coverage, got %q", got)
	}
	if got := exam.LecturerFor("missing"); got != "" {
		t.Fatalf("expected empty coverage for unknown room, got %q", got)
	}
}

func TestTimeRemainingUsesSimulatedClock(t *testing.T) {
	windowEnd := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	realAnchor := time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC)
	exam := Exam{
		WindowStart: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		WindowEnd:   windowEnd,
		// 60x demo clock: one real minute is one simulated hour.
		Clock: simclock.Anchored(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), realAnchor, 60),
	}

	if got := exam.TimeRemaining(realAnchor); got != 2*time.Hour {
		t.Fatalf("expected 2h remaining at anchor, got %v", got)
	}
	if got := exam.TimeRemaining(realAnchor.Add(time.Minute)); got != time.Hour {
		t.Fatalf("expected 1h remaining after one real minute, got %v", got)
	}
	if got := exam.TimeRemaining(realAnchor.Add(10 * time.Minute)); got != 0 {
		t.Fatalf("expected remaining floored at zero, got %v", got)
	}
}
