package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/hallwatch/hallwatch/internal/exam/simclock"
	apperrors "github.com/hallwatch/hallwatch/internal/platform/errors"
)

// ExamStatus describes the exam lifecycle label used by domain decisions.
type ExamStatus string

const (
	ExamStatusUnspecified ExamStatus = ""
	ExamStatusScheduled   ExamStatus = "scheduled"
	ExamStatusRunning     ExamStatus = "running"
	ExamStatusEnded       ExamStatus = "ended"
)

// ParseExamStatus maps a persisted lifecycle label back to an ExamStatus.
func ParseExamStatus(value string) (ExamStatus, bool) {
	switch ExamStatus(strings.ToLower(strings.TrimSpace(value))) {
	case ExamStatusScheduled:
		return ExamStatusScheduled, true
	case ExamStatusRunning:
		return ExamStatusRunning, true
	case ExamStatusEnded:
		return ExamStatusEnded, true
	default:
		return ExamStatusUnspecified, false
	}
}

// IsExamStatusTransitionAllowed enforces the one-way exam lifecycle.
func IsExamStatusTransitionAllowed(from, to ExamStatus) bool {
	switch from {
	case ExamStatusScheduled:
		return to == ExamStatusRunning
	case ExamStatusRunning:
		return to == ExamStatusEnded
	default:
		return false
	}
}

// Default pacing thresholds, overridable per exam.
const (
	DefaultLateGrace     = 15 * time.Minute
	DefaultLongBreak     = 15 * time.Minute
	DefaultMetadataLimit = 16
)

// Room is one exam room with its seating grid and assigned staff.
type Room struct {
	ID    string
	Label string
	Rows  int
	Cols  int
	// SupervisorID is the single supervisor owning this room.
	SupervisorID string
	// LecturerID is the co-lecturer covering this room; empty means the
	// exam's main lecturer covers it.
	LecturerID string
}

// Exam is the aggregate root for one exam's live state.
type Exam struct {
	ID             string
	CourseName     string
	WindowStart    time.Time
	WindowEnd      time.Time
	Status         ExamStatus
	Rooms          []Room
	MainLecturerID string
	CoLecturerIDs  []string
	Clock          simclock.Clock
	// LateGrace is how long after WindowStart an arrival is still on time.
	LateGrace time.Duration
	// LongBreak is the break duration above which a long-break event is emitted.
	LongBreak time.Duration
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RoomInput describes one room when creating an exam.
type RoomInput struct {
	Label        string
	Rows         int
	Cols         int
	SupervisorID string
	LecturerID   string
}

// CreateExamInput describes the metadata needed to schedule an exam.
type CreateExamInput struct {
	CourseName     string
	WindowStart    time.Time
	WindowEnd      time.Time
	Rooms          []RoomInput
	MainLecturerID string
	CoLecturerIDs  []string
	Clock          simclock.Clock
	LateGrace      time.Duration
	LongBreak      time.Duration
}

// CreateExam creates a scheduled exam with generated ids and timestamps.
func CreateExam(input CreateExamInput, now func() time.Time, idGenerator func() (string, error)) (Exam, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = NewID
	}

	normalized, err := NormalizeCreateExamInput(input)
	if err != nil {
		return Exam{}, err
	}

	examID, err := idGenerator()
	if err != nil {
		return Exam{}, fmt.Errorf("generate exam id: %w", err)
	}

	createdAt := now().UTC()
	exam := Exam{
		ID:             examID,
		CourseName:     normalized.CourseName,
		WindowStart:    normalized.WindowStart.UTC(),
		WindowEnd:      normalized.WindowEnd.UTC(),
		Status:         ExamStatusScheduled,
		MainLecturerID: normalized.MainLecturerID,
		CoLecturerIDs:  normalized.CoLecturerIDs,
		Clock:          normalized.Clock,
		LateGrace:      normalized.LateGrace,
		LongBreak:      normalized.LongBreak,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
	if exam.Clock.IsZero() {
		exam.Clock = simclock.RealTime(createdAt)
	}

	exam.Rooms = make([]Room, 0, len(normalized.Rooms))
	for _, room := range normalized.Rooms {
		roomID, err := idGenerator()
		if err != nil {
			return Exam{}, fmt.Errorf("generate room id: %w", err)
		}
		exam.Rooms = append(exam.Rooms, Room{
			ID:           roomID,
			Label:        room.Label,
			Rows:         room.Rows,
			Cols:         room.Cols,
			SupervisorID: room.SupervisorID,
			LecturerID:   room.LecturerID,
		})
	}

	return exam, nil
}

// NormalizeCreateExamInput trims and validates exam creation metadata,
// enforcing the staffing invariants: unique room labels, at most one room per
// supervisor, and every room covered by exactly one lecturer.
func NormalizeCreateExamInput(input CreateExamInput) (CreateExamInput, error) {
	input.CourseName = strings.TrimSpace(input.CourseName)
	if input.CourseName == "" {
		return CreateExamInput{}, apperrors.New(apperrors.CodeExamEmptyCourse, "exam course name is required")
	}
	if input.WindowStart.IsZero() || input.WindowEnd.IsZero() || !input.WindowEnd.After(input.WindowStart) {
		return CreateExamInput{}, apperrors.New(apperrors.CodeExamInvalidWindow, "exam window end must be after start")
	}
	input.MainLecturerID = strings.TrimSpace(input.MainLecturerID)
	if input.MainLecturerID == "" {
		return CreateExamInput{}, apperrors.New(apperrors.CodeExamRoomWithoutCoverage, "main lecturer is required")
	}
	if len(input.Rooms) == 0 {
		return CreateExamInput{}, apperrors.New(apperrors.CodeExamDuplicateRoom, "at least one room is required")
	}
	if input.LateGrace <= 0 {
		input.LateGrace = DefaultLateGrace
	}
	if input.LongBreak <= 0 {
		input.LongBreak = DefaultLongBreak
	}

	coLecturers := map[string]bool{}
	normalizedCo := make([]string, 0, len(input.CoLecturerIDs))
	for _, id := range input.CoLecturerIDs {
		id = strings.TrimSpace(id)
		if id == "" || coLecturers[id] {
			continue
		}
		coLecturers[id] = true
		normalizedCo = append(normalizedCo, id)
	}
	input.CoLecturerIDs = normalizedCo

	labels := map[string]bool{}
	supervisors := map[string]string{}
	for i := range input.Rooms {
		room := &input.Rooms[i]
		room.Label = strings.TrimSpace(room.Label)
		room.SupervisorID = strings.TrimSpace(room.SupervisorID)
		room.LecturerID = strings.TrimSpace(room.LecturerID)
		if room.Label == "" {
			return CreateExamInput{}, apperrors.New(apperrors.CodeExamDuplicateRoom, "room label is required")
		}
		if labels[room.Label] {
			return CreateExamInput{}, apperrors.WithMetadata(apperrors.CodeExamDuplicateRoom,
				"room label is duplicated", map[string]string{"label": room.Label})
		}
		labels[room.Label] = true
		if room.SupervisorID != "" {
			if prior, ok := supervisors[room.SupervisorID]; ok {
				return CreateExamInput{}, apperrors.WithMetadata(apperrors.CodeExamDuplicateRoom,
					"supervisor already owns a room", map[string]string{
						"supervisor_id": room.SupervisorID,
						"room":          prior,
					})
			}
			supervisors[room.SupervisorID] = room.Label
		}
		if room.LecturerID != "" && room.LecturerID != input.MainLecturerID && !coLecturers[room.LecturerID] {
			return CreateExamInput{}, apperrors.WithMetadata(apperrors.CodeExamRoomWithoutCoverage,
				"room lecturer is not part of the exam staff", map[string]string{
					"label":       room.Label,
					"lecturer_id": room.LecturerID,
				})
		}
	}

	return input, nil
}

// TransitionStatus moves the exam through its one-way lifecycle.
func TransitionStatus(exam Exam, to ExamStatus, now time.Time) (Exam, error) {
	if !IsExamStatusTransitionAllowed(exam.Status, to) {
		return Exam{}, apperrors.WithMetadata(apperrors.CodeExamInvalidTransition,
			"exam status transition is not allowed", map[string]string{
				"from": string(exam.Status),
				"to":   string(to),
			})
	}
	exam.Status = to
	exam.UpdatedAt = now.UTC()
	return exam, nil
}

// RoomByID returns the room with the given id.
func (e Exam) RoomByID(roomID string) (Room, bool) {
	for _, room := range e.Rooms {
		if room.ID == roomID {
			return room, true
		}
	}
	return Room{}, false
}

// RoomByLabel returns the room with the given label.
func (e Exam) RoomByLabel(label string) (Room, bool) {
	for _, room := range e.Rooms {
		if room.Label == label {
			return room, true
		}
	}
	return Room{}, false
}

// LecturerFor returns the lecturer covering a room: the room's co-lecturer if
// assigned, otherwise the main lecturer.
func (e Exam) LecturerFor(roomID string) string {
	room, ok := e.RoomByID(roomID)
	if !ok {
		return ""
	}
	if room.LecturerID != "" {
		return room.LecturerID
	}
	return e.MainLecturerID
}

// SupervisedRoom returns the room the given supervisor owns, if any.
func (e Exam) SupervisedRoom(supervisorID string) (Room, bool) {
	for _, room := range e.Rooms {
		if room.SupervisorID == supervisorID {
			return room, true
		}
	}
	return Room{}, false
}

// SimNow converts a wall-clock reading into this exam's simulated time.
func (e Exam) SimNow(realNow time.Time) time.Time {
	return e.Clock.Now(realNow)
}

// TimeRemaining reports how much simulated exam time is left, floored at zero.
func (e Exam) TimeRemaining(realNow time.Time) time.Duration {
	remaining := e.WindowEnd.Sub(e.SimNow(realNow))
	if remaining < 0 {
		return 0
	}
	return remaining
}
