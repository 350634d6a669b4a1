package domain

import apperrors "github.com/hallwatch/hallwatch/internal/platform/errors"

// Room-scoped authorization. Admins act anywhere; lecturers act in the rooms
// they cover; supervisors act only in their own room. These checks are the
// core's own authorization layer, applied on top of whatever the auth
// collaborator already verified.

// CanActInRoom reports whether the actor may issue attendance mutations for
// students seated in the given room.
func CanActInRoom(exam Exam, actor Actor, roomID string) bool {
	switch actor.Role {
	case RoleAdmin:
		return true
	case RoleLecturer:
		return exam.LecturerFor(roomID) == actor.ID
	case RoleSupervisor:
		room, ok := exam.SupervisedRoom(actor.ID)
		return ok && room.ID == roomID
	default:
		return false
	}
}

// CanApproveTransfer reports whether the actor may approve a transfer into
// the target room: the target room's supervisor, the lecturer covering the
// target room, or an admin.
func CanApproveTransfer(exam Exam, actor Actor, toRoomID string) bool {
	return CanActInRoom(exam, actor, toRoomID)
}

// CanRejectTransfer reports whether the actor may reject a transfer into the
// target room: the target room's supervisor or an admin.
func CanRejectTransfer(exam Exam, actor Actor, toRoomID string) bool {
	if actor.Role == RoleAdmin {
		return true
	}
	if actor.Role != RoleSupervisor {
		return false
	}
	room, ok := exam.SupervisedRoom(actor.ID)
	return ok && room.ID == toRoomID
}

// CanCancelTransfer reports whether the actor may cancel a pending transfer:
// the original requester or an admin.
func CanCancelTransfer(request TransferRequest, actor Actor) bool {
	return actor.Role == RoleAdmin || request.RequestedBy == actor.ID
}

// CanManageLifecycle reports whether the actor may start or end the exam.
func CanManageLifecycle(exam Exam, actor Actor) bool {
	return actor.Role == RoleAdmin || (actor.Role == RoleLecturer && actor.ID == exam.MainLecturerID)
}

// CanReadStudentFile reports whether the actor may read a student's file:
// the owning student, a lecturer, or an admin.
func CanReadStudentFile(actor Actor, studentID string) bool {
	switch actor.Role {
	case RoleAdmin, RoleLecturer:
		return true
	case RoleStudent:
		return actor.ID == studentID
	default:
		return false
	}
}

// ErrNotAuthorizedForRoom builds the standard room-authorization error.
func ErrNotAuthorizedForRoom(actor Actor, roomID string) *apperrors.Error {
	return apperrors.WithMetadata(apperrors.CodeNotAuthorizedForRoom,
		"actor is not authorized for this room", map[string]string{
			"actor_id": actor.ID,
			"role":     string(actor.Role),
			"room_id":  roomID,
		})
}
