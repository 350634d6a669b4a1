package snapshot

import (
	"strings"

	"github.com/hallwatch/hallwatch/internal/exam/domain"
	apperrors "github.com/hallwatch/hallwatch/internal/platform/errors"
)

// ScopeAll is the explicit directive requesting every room.
const ScopeAll = "all"

// Scope is the resolved set of rooms a query may see.
type Scope struct {
	ExamID string
	// All marks an unrestricted scope covering every room.
	All bool
	// RoomIDs lists the visible rooms when All is unset.
	RoomIDs []string
}

// Covers reports whether the scope includes the given room.
func (s Scope) Covers(roomID string) bool {
	if s.All {
		return true
	}
	for _, id := range s.RoomIDs {
		if id == roomID {
			return true
		}
	}
	return false
}

// ResolveScope maps an actor plus a room directive to the rooms the query may
// see. The directive is ScopeAll, a room id, or empty for the actor's
// default: supervisors default to their assigned room, lecturers and admins
// to all rooms. A supervisor can never widen past their own room.
func ResolveScope(exam domain.Exam, actor domain.Actor, requested string) (Scope, error) {
	requested = strings.TrimSpace(requested)

	switch actor.Role {
	case domain.RoleSupervisor:
		room, ok := exam.SupervisedRoom(actor.ID)
		if !ok {
			return Scope{}, domain.ErrNotAuthorizedForRoom(actor, requested)
		}
		if requested != "" && requested != room.ID {
			return Scope{}, domain.ErrNotAuthorizedForRoom(actor, requested)
		}
		return Scope{ExamID: exam.ID, RoomIDs: []string{room.ID}}, nil

	case domain.RoleAdmin, domain.RoleLecturer:
		if requested == "" || requested == ScopeAll {
			return Scope{ExamID: exam.ID, All: true}, nil
		}
		room, ok := exam.RoomByID(requested)
		if !ok {
			return Scope{}, apperrors.WithMetadata(apperrors.CodeNotFound,
				"room does not exist", map[string]string{"room_id": requested})
		}
		return Scope{ExamID: exam.ID, RoomIDs: []string{room.ID}}, nil

	default:
		return Scope{}, apperrors.New(apperrors.CodeNotAuthorized, "actor role cannot query snapshots")
	}
}
