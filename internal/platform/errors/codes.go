// Package errors provides structured error handling for the exam coordinator.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Exam lifecycle errors
	CodeExamNotActive           Code = "EXAM_NOT_ACTIVE"
	CodeExamEmptyCourse         Code = "EXAM_EMPTY_COURSE"
	CodeExamInvalidWindow       Code = "EXAM_INVALID_WINDOW"
	CodeExamInvalidTransition   Code = "EXAM_INVALID_STATUS_TRANSITION"
	CodeExamRoomWithoutCoverage Code = "EXAM_ROOM_WITHOUT_COVERAGE"
	CodeExamDuplicateRoom       Code = "EXAM_DUPLICATE_ROOM"

	// Attendance errors
	CodeInvalidTransition      Code = "INVALID_TRANSITION"
	CodeRosterDuplicateStudent Code = "ROSTER_DUPLICATE_STUDENT"
	CodeRosterUnknownRoom      Code = "ROSTER_UNKNOWN_ROOM"

	// Transfer errors
	CodeTransferAlreadyPending  Code = "TRANSFER_ALREADY_PENDING"
	CodeTransferAlreadyResolved Code = "TRANSFER_ALREADY_RESOLVED"
	CodeTransferSameRoom        Code = "TRANSFER_SAME_ROOM"

	// Authorization errors
	CodeNotAuthorizedForRoom Code = "NOT_AUTHORIZED_FOR_ROOM"
	CodeNotAuthorized        Code = "NOT_AUTHORIZED"

	// Event/message errors
	CodeEventInvalidType     Code = "EVENT_INVALID_TYPE"
	CodeEventInvalidSeverity Code = "EVENT_INVALID_SEVERITY"
	CodeMessageEmptyBody     Code = "MESSAGE_EMPTY_BODY"
	CodeMessageNoRecipients  Code = "MESSAGE_NO_RECIPIENTS"
	CodeMessageInvalidRole   Code = "MESSAGE_INVALID_ROLE"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
	CodeInternal Code = "INTERNAL"
)

// HTTPStatus maps an error code to the HTTP status used by the JSON surface.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeNotAuthorizedForRoom, CodeNotAuthorized:
		return http.StatusForbidden
	case CodeExamNotActive, CodeInvalidTransition, CodeExamInvalidTransition,
		CodeTransferAlreadyPending, CodeTransferAlreadyResolved:
		return http.StatusConflict
	case CodeUnknown, CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
