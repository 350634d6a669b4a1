package snapshot

import (
	"time"

	"github.com/hallwatch/hallwatch/internal/exam/domain"
	"github.com/hallwatch/hallwatch/internal/storage"
)

// StatusCounts tallies attendance records by status.
type StatusCounts struct {
	NotArrived int `json:"not_arrived"`
	Present    int `json:"present"`
	TempOut    int `json:"temp_out"`
	Moving     int `json:"moving"`
	Absent     int `json:"absent"`
	Finished   int `json:"finished"`
}

// Add counts one record.
func (c *StatusCounts) Add(status domain.AttendanceStatus) {
	switch status {
	case domain.AttendanceNotArrived:
		c.NotArrived++
	case domain.AttendancePresent:
		c.Present++
	case domain.AttendanceTempOut:
		c.TempOut++
	case domain.AttendanceMoving:
		c.Moving++
	case domain.AttendanceAbsent:
		c.Absent++
	case domain.AttendanceFinished:
		c.Finished++
	}
}

// Total returns the number of counted records.
func (c StatusCounts) Total() int {
	return c.NotArrived + c.Present + c.TempOut + c.Moving + c.Absent + c.Finished
}

// RoomBreakdown is one row of the per-room dashboard table.
type RoomBreakdown struct {
	RoomID string       `json:"room_id"`
	Label  string       `json:"label"`
	Total  int          `json:"total"`
	Counts StatusCounts `json:"counts"`
	// AttendanceRate is (total - not_arrived) / total, zero for empty rooms.
	AttendanceRate float64 `json:"attendance_rate"`
	// IncidentCount and ViolationCount are nil when the rollup cache is
	// unavailable; the dashboard renders them as unknown rather than zero.
	IncidentCount  *int `json:"incident_count,omitempty"`
	ViolationCount *int `json:"violation_count,omitempty"`
}

// Snapshot is the point-in-time dashboard view for one exam, filtered to the
// resolved scope.
type Snapshot struct {
	ExamID     string            `json:"exam_id"`
	ExamStatus domain.ExamStatus `json:"exam_status"`
	// SimulatedNow is the exam-clock reading the snapshot was taken at.
	SimulatedNow  time.Time       `json:"simulated_now"`
	TimeRemaining time.Duration   `json:"time_remaining"`
	Counts        StatusCounts    `json:"counts"`
	Rooms         []RoomBreakdown `json:"rooms"`
}

// Build computes a snapshot from the exam, its attendance records, and the
// cached rollups. Pass nil stats when the rollup cache could not be read; the
// per-room incident figures then degrade to unknown instead of failing the
// whole snapshot.
func Build(exam domain.Exam, records []domain.AttendanceRecord, stats map[string]storage.StudentStat, scope Scope, realNow time.Time) Snapshot {
	snap := Snapshot{
		ExamID:        exam.ID,
		ExamStatus:    exam.Status,
		SimulatedNow:  exam.SimNow(realNow),
		TimeRemaining: exam.TimeRemaining(realNow),
	}

	byRoom := map[string][]domain.AttendanceRecord{}
	for _, record := range records {
		if !scope.Covers(record.RoomID) {
			continue
		}
		snap.Counts.Add(record.Status)
		byRoom[record.RoomID] = append(byRoom[record.RoomID], record)
	}

	for _, room := range exam.Rooms {
		if !scope.Covers(room.ID) {
			continue
		}
		breakdown := RoomBreakdown{RoomID: room.ID, Label: room.Label}
		roomRecords := byRoom[room.ID]
		breakdown.Total = len(roomRecords)
		for _, record := range roomRecords {
			breakdown.Counts.Add(record.Status)
		}
		if breakdown.Total > 0 {
			breakdown.AttendanceRate = float64(breakdown.Total-breakdown.Counts.NotArrived) / float64(breakdown.Total)
		}
		if stats != nil {
			incidents, violations := 0, 0
			for _, record := range roomRecords {
				if stat, ok := stats[record.StudentID]; ok {
					incidents += stat.IncidentCount
					violations += stat.ViolationCount
				}
			}
			breakdown.IncidentCount = &incidents
			breakdown.ViolationCount = &violations
		}
		snap.Rooms = append(snap.Rooms, breakdown)
	}

	return snap
}
