package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/hallwatch/hallwatch/internal/exam/domain"
	"github.com/hallwatch/hallwatch/internal/exam/event"
	"github.com/hallwatch/hallwatch/internal/exam/service"
	"github.com/hallwatch/hallwatch/internal/exam/simclock"
	apperrors "github.com/hallwatch/hallwatch/internal/platform/errors"
	"github.com/hallwatch/hallwatch/internal/storage"
)

type handlers struct {
	svc      *service.Service
	verifier tokenVerifier
}

// withActor authenticates the request and hands the resolved actor to next.
func (h *handlers) withActor(next func(http.ResponseWriter, *http.Request, domain.Actor)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.verifier.configured() {
			writeError(w, apperrors.New(apperrors.CodeInternal, "auth secret is not configured"))
			return
		}
		token := bearerToken(r)
		if token == "" {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeJSON(w, http.StatusUnauthorized, errorResponse{
				Code:    string(apperrors.CodeNotAuthorized),
				Message: "bearer token is required",
			})
			return
		}
		actor, err := h.verifier.Verify(token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeJSON(w, http.StatusUnauthorized, errorResponse{
				Code:    string(apperrors.GetCode(err)),
				Message: err.Error(),
			})
			return
		}
		next(w, r, actor)
	}
}

type errorResponse struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	writeJSON(w, code.HTTPStatus(), errorResponse{
		Code:     string(code),
		Message:  err.Error(),
		Metadata: apperrors.GetMetadata(err),
	})
}

func decodeBody(r *http.Request, target any) error {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return apperrors.Wrap(apperrors.CodeUnknown, "request body is not valid JSON", err)
	}
	return nil
}

// splitAction splits a "{id}:{verb}" path segment.
func splitAction(segment string) (id, verb string, ok bool) {
	for i := len(segment) - 1; i >= 0; i-- {
		if segment[i] == ':' {
			return segment[:i], segment[i+1:], segment[:i] != "" && segment[i+1:] != ""
		}
	}
	return "", "", false
}

// Request payloads.

type roomRequest struct {
	Label        string `json:"label"`
	Rows         int    `json:"rows"`
	Cols         int    `json:"cols"`
	SupervisorID string `json:"supervisor_id"`
	LecturerID   string `json:"lecturer_id,omitempty"`
}

type rosterEntryRequest struct {
	StudentID string `json:"student_id"`
	RoomLabel string `json:"room_label"`
	Seat      string `json:"seat"`
}

type clockRequest struct {
	SimAnchor  time.Time `json:"sim_anchor"`
	RealAnchor time.Time `json:"real_anchor"`
	Speed      float64   `json:"speed"`
}

type createExamRequest struct {
	CourseName     string               `json:"course_name"`
	WindowStart    time.Time            `json:"window_start"`
	WindowEnd      time.Time            `json:"window_end"`
	Rooms          []roomRequest        `json:"rooms"`
	MainLecturerID string               `json:"main_lecturer_id,omitempty"`
	CoLecturerIDs  []string             `json:"co_lecturer_ids,omitempty"`
	Clock          *clockRequest        `json:"clock,omitempty"`
	LateGraceMs    int64                `json:"late_grace_ms,omitempty"`
	LongBreakMs    int64                `json:"long_break_ms,omitempty"`
	Roster         []rosterEntryRequest `json:"roster"`
}

type requestTransferRequest struct {
	StudentID string `json:"student_id"`
	ToRoomID  string `json:"to_room_id"`
	ToSeat    string `json:"to_seat"`
}

type resolveTransferRequest struct {
	Reason string `json:"reason,omitempty"`
}

type violationRequest struct {
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

type incidentRequest struct {
	StudentID   string            `json:"student_id,omitempty"`
	RoomID      string            `json:"room_id,omitempty"`
	Severity    string            `json:"severity"`
	Description string            `json:"description"`
	Fields      map[string]string `json:"fields,omitempty"`
}

type postMessageRequest struct {
	Body           string   `json:"body"`
	Broadcast      bool     `json:"broadcast,omitempty"`
	RecipientIDs   []string `json:"recipient_ids,omitempty"`
	RecipientRoles []string `json:"recipient_roles,omitempty"`
}

// Response payloads.

type roomResponse struct {
	ID           string `json:"id"`
	Label        string `json:"label"`
	Rows         int    `json:"rows"`
	Cols         int    `json:"cols"`
	SupervisorID string `json:"supervisor_id"`
	LecturerID   string `json:"lecturer_id,omitempty"`
}

type examResponse struct {
	ID             string         `json:"id"`
	CourseName     string         `json:"course_name"`
	WindowStart    time.Time      `json:"window_start"`
	WindowEnd      time.Time      `json:"window_end"`
	Status         string         `json:"status"`
	Rooms          []roomResponse `json:"rooms"`
	MainLecturerID string         `json:"main_lecturer_id"`
	CoLecturerIDs  []string       `json:"co_lecturer_ids,omitempty"`
	LateGraceMs    int64          `json:"late_grace_ms"`
	LongBreakMs    int64          `json:"long_break_ms"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func toExamResponse(exam domain.Exam) examResponse {
	resp := examResponse{
		ID:             exam.ID,
		CourseName:     exam.CourseName,
		WindowStart:    exam.WindowStart,
		WindowEnd:      exam.WindowEnd,
		Status:         string(exam.Status),
		MainLecturerID: exam.MainLecturerID,
		CoLecturerIDs:  exam.CoLecturerIDs,
		LateGraceMs:    exam.LateGrace.Milliseconds(),
		LongBreakMs:    exam.LongBreak.Milliseconds(),
		CreatedAt:      exam.CreatedAt,
		UpdatedAt:      exam.UpdatedAt,
	}
	for _, room := range exam.Rooms {
		resp.Rooms = append(resp.Rooms, roomResponse{
			ID:           room.ID,
			Label:        room.Label,
			Rows:         room.Rows,
			Cols:         room.Cols,
			SupervisorID: room.SupervisorID,
			LecturerID:   room.LecturerID,
		})
	}
	return resp
}

type attendanceResponse struct {
	StudentID         string     `json:"student_id"`
	RoomID            string     `json:"room_id"`
	Seat              string     `json:"seat"`
	Status            string     `json:"status"`
	ArrivedAt         *time.Time `json:"arrived_at,omitempty"`
	OutStartedAt      *time.Time `json:"out_started_at,omitempty"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
	LastStatusAt      time.Time  `json:"last_status_at"`
	Violations        int        `json:"violations"`
	PendingTransferID string     `json:"pending_transfer_id,omitempty"`
}

func toAttendanceResponse(record domain.AttendanceRecord) attendanceResponse {
	return attendanceResponse{
		StudentID:         record.StudentID,
		RoomID:            record.RoomID,
		Seat:              record.Seat,
		Status:            string(record.Status),
		ArrivedAt:         record.ArrivedAt,
		OutStartedAt:      record.OutStartedAt,
		FinishedAt:        record.FinishedAt,
		LastStatusAt:      record.LastStatusAt,
		Violations:        record.Violations,
		PendingTransferID: record.PendingTransferID,
	}
}

type transferResponse struct {
	ID          string     `json:"id"`
	StudentID   string     `json:"student_id"`
	FromRoomID  string     `json:"from_room_id"`
	FromSeat    string     `json:"from_seat"`
	ToRoomID    string     `json:"to_room_id"`
	ToSeat      string     `json:"to_seat"`
	Status      string     `json:"status"`
	RequestedBy string     `json:"requested_by"`
	ResolvedBy  string     `json:"resolved_by,omitempty"`
	RequestedAt time.Time  `json:"requested_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

func toTransferResponse(request domain.TransferRequest) transferResponse {
	return transferResponse{
		ID:          request.ID,
		StudentID:   request.StudentID,
		FromRoomID:  request.FromRoomID,
		FromSeat:    request.FromSeat,
		ToRoomID:    request.ToRoomID,
		ToSeat:      request.ToSeat,
		Status:      string(request.Status),
		RequestedBy: request.RequestedBy,
		ResolvedBy:  request.ResolvedBy,
		RequestedAt: request.RequestedAt,
		ResolvedAt:  request.ResolvedAt,
	}
}

type eventResponse struct {
	Seq         uint64          `json:"seq"`
	Timestamp   time.Time       `json:"timestamp"`
	Type        string          `json:"type"`
	Severity    string          `json:"severity,omitempty"`
	RoomID      string          `json:"room_id,omitempty"`
	Seat        string          `json:"seat,omitempty"`
	StudentID   string          `json:"student_id,omitempty"`
	ActorID     string          `json:"actor_id"`
	ActorRole   string          `json:"actor_role"`
	Description string          `json:"description,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

func toEventResponse(evt event.Event) eventResponse {
	return eventResponse{
		Seq:         evt.Seq,
		Timestamp:   evt.Timestamp,
		Type:        string(evt.Type),
		Severity:    string(evt.Severity),
		RoomID:      evt.RoomID,
		Seat:        evt.Seat,
		StudentID:   evt.StudentID,
		ActorID:     evt.ActorID,
		ActorRole:   evt.ActorRole,
		Description: evt.Description,
		Payload:     json.RawMessage(evt.PayloadJSON),
	}
}

func toEventResponses(events []event.Event) []eventResponse {
	out := make([]eventResponse, 0, len(events))
	for _, evt := range events {
		out = append(out, toEventResponse(evt))
	}
	return out
}

type statResponse struct {
	BreakCount     int      `json:"break_count"`
	BreakTotalMs   int64    `json:"break_total_ms"`
	IncidentCount  int      `json:"incident_count"`
	ViolationCount int      `json:"violation_count"`
	Notes          []string `json:"notes,omitempty"`
	LastSeq        uint64   `json:"last_seq"`
}

func toStatResponse(stat storage.StudentStat) statResponse {
	return statResponse{
		BreakCount:     stat.BreakCount,
		BreakTotalMs:   stat.BreakTotalMillis,
		IncidentCount:  stat.IncidentCount,
		ViolationCount: stat.ViolationCount,
		Notes:          stat.Notes,
		LastSeq:        stat.LastSeq,
	}
}

type messageResponse struct {
	ID             string    `json:"id"`
	SenderID       string    `json:"sender_id"`
	SenderRole     string    `json:"sender_role"`
	Body           string    `json:"body"`
	Broadcast      bool      `json:"broadcast"`
	RecipientIDs   []string  `json:"recipient_ids,omitempty"`
	RecipientRoles []string  `json:"recipient_roles,omitempty"`
	PostedAt       time.Time `json:"posted_at"`
}

func toMessageResponse(message storage.Message) messageResponse {
	return messageResponse{
		ID:             message.ID,
		SenderID:       message.SenderID,
		SenderRole:     message.SenderRole,
		Body:           message.Body,
		Broadcast:      message.Broadcast,
		RecipientIDs:   message.RecipientIDs,
		RecipientRoles: message.RecipientRoles,
		PostedAt:       message.PostedAt,
	}
}

type studentFileResponse struct {
	Record   attendanceResponse `json:"record"`
	Stat     statResponse       `json:"stat"`
	Timeline []eventResponse    `json:"timeline"`
}

// Exam handlers.

func (h *handlers) handleCreateExam(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	var req createExamRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	input := domain.CreateExamInput{
		CourseName:     req.CourseName,
		WindowStart:    req.WindowStart,
		WindowEnd:      req.WindowEnd,
		MainLecturerID: req.MainLecturerID,
		CoLecturerIDs:  req.CoLecturerIDs,
		LateGrace:      time.Duration(req.LateGraceMs) * time.Millisecond,
		LongBreak:      time.Duration(req.LongBreakMs) * time.Millisecond,
	}
	if req.Clock != nil {
		input.Clock = simclock.Anchored(req.Clock.SimAnchor, req.Clock.RealAnchor, req.Clock.Speed)
	}
	for _, room := range req.Rooms {
		input.Rooms = append(input.Rooms, domain.RoomInput{
			Label:        room.Label,
			Rows:         room.Rows,
			Cols:         room.Cols,
			SupervisorID: room.SupervisorID,
			LecturerID:   room.LecturerID,
		})
	}
	params := service.CreateExamParams{CreateExamInput: input}
	for _, entry := range req.Roster {
		params.Roster = append(params.Roster, service.RosterEntry{
			StudentID: entry.StudentID,
			RoomLabel: entry.RoomLabel,
			Seat:      entry.Seat,
		})
	}

	exam, err := h.svc.CreateExam(r.Context(), actor, params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toExamResponse(exam))
}

func (h *handlers) handleExamLifecycle(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	examID, verb, ok := splitAction(r.PathValue("examAction"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	var exam domain.Exam
	var err error
	switch verb {
	case "start":
		exam, err = h.svc.StartExam(r.Context(), actor, examID)
	case "end":
		exam, err = h.svc.EndExam(r.Context(), actor, examID)
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toExamResponse(exam))
}

func (h *handlers) handleGetExam(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	exam, err := h.svc.GetExam(r.Context(), actor, r.PathValue("examID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toExamResponse(exam))
}

func (h *handlers) handleListExams(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	exams, err := h.svc.ListExams(r.Context(), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]examResponse, 0, len(exams))
	for _, exam := range exams {
		out = append(out, toExamResponse(exam))
	}
	writeJSON(w, http.StatusOK, out)
}

// Attendance handlers.

func (h *handlers) handleStudentAction(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	examID := r.PathValue("examID")
	studentID, verb, ok := splitAction(r.PathValue("studentAction"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	var record domain.AttendanceRecord
	var err error
	switch verb {
	case "arrive":
		record, err = h.svc.MarkArrived(r.Context(), actor, examID, studentID)
	case "startBreak":
		record, err = h.svc.StartBreak(r.Context(), actor, examID, studentID)
	case "endBreak":
		record, err = h.svc.EndBreak(r.Context(), actor, examID, studentID)
	case "absent":
		record, err = h.svc.MarkAbsent(r.Context(), actor, examID, studentID)
	case "finish":
		record, err = h.svc.MarkFinished(r.Context(), actor, examID, studentID)
	case "violation":
		var req violationRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
		record, err = h.svc.RecordViolation(r.Context(), actor, examID, studentID, event.Severity(req.Severity), req.Description)
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAttendanceResponse(record))
}

// Transfer handlers.

func (h *handlers) handleRequestTransfer(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	var req requestTransferRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	request, err := h.svc.RequestTransfer(r.Context(), actor, r.PathValue("examID"), req.StudentID, req.ToRoomID, req.ToSeat)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransferResponse(request))
}

func (h *handlers) handleTransferAction(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	examID := r.PathValue("examID")
	requestID, verb, ok := splitAction(r.PathValue("transferAction"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	var request domain.TransferRequest
	var err error
	switch verb {
	case "approve":
		request, err = h.svc.ApproveTransfer(r.Context(), actor, examID, requestID)
	case "reject":
		var req resolveTransferRequest
		if r.ContentLength != 0 {
			if err := decodeBody(r, &req); err != nil {
				writeError(w, err)
				return
			}
		}
		request, err = h.svc.RejectTransfer(r.Context(), actor, examID, requestID, req.Reason)
	case "cancel":
		request, err = h.svc.CancelTransfer(r.Context(), actor, examID, requestID)
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransferResponse(request))
}

func (h *handlers) handleListTransfers(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	requests, err := h.svc.ListTransfers(r.Context(), actor, r.PathValue("examID"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]transferResponse, 0, len(requests))
	for _, request := range requests {
		out = append(out, toTransferResponse(request))
	}
	writeJSON(w, http.StatusOK, out)
}

// Incident handlers.

func (h *handlers) handleReportIncident(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	var req incidentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	evt, err := h.svc.ReportIncident(r.Context(), actor, r.PathValue("examID"), service.ReportIncidentParams{
		StudentID:   req.StudentID,
		RoomID:      req.RoomID,
		Severity:    event.Severity(req.Severity),
		Description: req.Description,
		Fields:      req.Fields,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventResponse(evt))
}

// Message handlers.

func (h *handlers) handlePostMessage(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	var req postMessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	message, err := h.svc.PostMessage(r.Context(), actor, r.PathValue("examID"), service.PostMessageParams{
		Body:           req.Body,
		Broadcast:      req.Broadcast,
		RecipientIDs:   req.RecipientIDs,
		RecipientRoles: req.RecipientRoles,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMessageResponse(message))
}

func (h *handlers) handleMessageAction(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	examID := r.PathValue("examID")
	messageID, verb, ok := splitAction(r.PathValue("messageAction"))
	if !ok || verb != "read" {
		http.NotFound(w, r)
		return
	}
	if err := h.svc.MarkMessageRead(r.Context(), actor, examID, messageID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) handleListMessages(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	messages, err := h.svc.ListMessages(r.Context(), actor, r.PathValue("examID"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]messageResponse, 0, len(messages))
	for _, message := range messages {
		out = append(out, toMessageResponse(message))
	}
	writeJSON(w, http.StatusOK, out)
}

// Query handlers.

func (h *handlers) handleSnapshot(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	snap, err := h.svc.GetSnapshot(r.Context(), actor, r.PathValue("examID"), r.URL.Query().Get("room"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *handlers) handleEventLog(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	query := service.EventLogQuery{RoomID: r.URL.Query().Get("room")}
	if after := r.URL.Query().Get("after"); after != "" {
		parsed, err := strconv.ParseUint(after, 10, 64)
		if err != nil {
			writeError(w, apperrors.Wrap(apperrors.CodeUnknown, "after must be an unsigned integer", err))
			return
		}
		query.AfterSeq = parsed
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		parsed, err := strconv.Atoi(limit)
		if err != nil {
			writeError(w, apperrors.Wrap(apperrors.CodeUnknown, "limit must be an integer", err))
			return
		}
		query.Limit = parsed
	}

	events, err := h.svc.GetEventLog(r.Context(), actor, r.PathValue("examID"), query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponses(events))
}

func (h *handlers) handleStudentFile(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	file, err := h.svc.GetStudentFile(r.Context(), actor, r.PathValue("examID"), r.PathValue("studentID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, studentFileResponse{
		Record:   toAttendanceResponse(file.Record),
		Stat:     toStatResponse(file.Stat),
		Timeline: toEventResponses(file.Timeline),
	})
}

func (h *handlers) handleRebuildRollups(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	lastSeq, err := h.svc.RebuildRollups(r.Context(), actor, r.PathValue("examID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"last_seq": lastSeq})
}
