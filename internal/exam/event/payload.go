package event

// ExamStatusChangedPayload captures the payload for exam.status_changed events.
type ExamStatusChangedPayload struct {
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
}

// StudentArrivedPayload captures the payload for attendance.arrived events.
type StudentArrivedPayload struct {
	Seat string `json:"seat"`
	// Late indicates the arrival was past the window start plus grace.
	Late bool `json:"late,omitempty"`
}

// StudentAbsentPayload captures the payload for attendance.absent events.
type StudentAbsentPayload struct {
	Reason string `json:"reason,omitempty"`
}

// StudentFinishedPayload captures the payload for attendance.finished events.
type StudentFinishedPayload struct {
	Seat string `json:"seat"`
}

// BreakStartedPayload captures the payload for break.started events.
type BreakStartedPayload struct {
	Seat string `json:"seat"`
}

// BreakEndedPayload captures the payload for break.ended events.
type BreakEndedPayload struct {
	Seat string `json:"seat"`
	// DurationMillis is the measured break length in simulated milliseconds.
	DurationMillis int64 `json:"duration_millis"`
}

// BreakOverrunPayload captures the payload for break.overrun events.
type BreakOverrunPayload struct {
	Seat            string `json:"seat"`
	DurationMillis  int64  `json:"duration_millis"`
	ThresholdMillis int64  `json:"threshold_millis"`
}

// TransferRequestedPayload captures the payload for transfer.requested events.
type TransferRequestedPayload struct {
	RequestID  string `json:"request_id"`
	FromRoomID string `json:"from_room_id"`
	FromSeat   string `json:"from_seat"`
	ToRoomID   string `json:"to_room_id"`
	ToSeat     string `json:"to_seat"`
}

// TransferResolvedPayload captures the payload for transfer.approved,
// transfer.rejected, and transfer.cancelled events.
type TransferResolvedPayload struct {
	RequestID  string `json:"request_id"`
	FromRoomID string `json:"from_room_id"`
	ToRoomID   string `json:"to_room_id"`
	ToSeat     string `json:"to_seat,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// IncidentReportedPayload captures the payload for incident.reported events.
type IncidentReportedPayload struct {
	// Fields holds bounded incident metadata supplied by the reporter.
	Fields map[string]string `json:"fields,omitempty"`
}

// ViolationRecordedPayload captures the payload for
// incident.violation_recorded events.
type ViolationRecordedPayload struct {
	// ViolationCount is the student's counter after this violation.
	ViolationCount int `json:"violation_count"`
	// PostFinish indicates the violation was recorded after the student
	// finished or the exam ended.
	PostFinish bool `json:"post_finish,omitempty"`
}

// MessagePostedPayload captures the payload for message.posted events.
type MessagePostedPayload struct {
	MessageID string `json:"message_id"`
	// Broadcast indicates the message went to every room.
	Broadcast bool `json:"broadcast,omitempty"`
	// RecipientIDs lists direct recipients for non-broadcast messages.
	RecipientIDs []string `json:"recipient_ids,omitempty"`
	// RecipientRoles lists role-addressed recipients for non-broadcast messages.
	RecipientRoles []string `json:"recipient_roles,omitempty"`
}
