package domain

import "testing"

func policyExam() Exam {
	return Exam{
		ID:             "exam1",
		MainLecturerID: "lect-main",
		CoLecturerIDs:  []string{"lect-b"},
		Rooms: []Room{
			{ID: "roomA", Label: "A", SupervisorID: "sup-a"},
			{ID: "roomB", Label: "B", SupervisorID: "sup-b", LecturerID: "lect-b"},
		},
	}
}

func TestCanActInRoom(t *testing.T) {
	exam := policyExam()

	tests := []struct {
		name   string
		actor  Actor
		roomID string
		want   bool
	}{
		{"admin anywhere", Actor{ID: "adm", Role: RoleAdmin}, "roomB", true},
		{"main lecturer covers uncovered room", Actor{ID: "lect-main", Role: RoleLecturer}, "roomA", true},
		{"main lecturer does not cover delegated room", Actor{ID: "lect-main", Role: RoleLecturer}, "roomB", false},
		{"co-lecturer covers own room", Actor{ID: "lect-b", Role: RoleLecturer}, "roomB", true},
		{"co-lecturer outside own room", Actor{ID: "lect-b", Role: RoleLecturer}, "roomA", false},
		{"supervisor own room", Actor{ID: "sup-a", Role: RoleSupervisor}, "roomA", true},
		{"supervisor other room", Actor{ID: "sup-a", Role: RoleSupervisor}, "roomB", false},
		{"student never", Actor{ID: "stud1", Role: RoleStudent}, "roomA", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanActInRoom(exam, tt.actor, tt.roomID); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestCanRejectTransfer(t *testing.T) {
	exam := policyExam()

	if !CanRejectTransfer(exam, Actor{ID: "adm", Role: RoleAdmin}, "roomB") {
		t.Fatal("admin should reject")
	}
	if !CanRejectTransfer(exam, Actor{ID: "sup-b", Role: RoleSupervisor}, "roomB") {
		t.Fatal("target supervisor should reject")
	}
	if CanRejectTransfer(exam, Actor{ID: "lect-b", Role: RoleLecturer}, "roomB") {
		t.Fatal("lecturer must not reject")
	}
	if CanRejectTransfer(exam, Actor{ID: "sup-a", Role: RoleSupervisor}, "roomB") {
		t.Fatal("source supervisor must not reject into target room")
	}
}

func TestCanApproveTransfer(t *testing.T) {
	exam := policyExam()

	if !CanApproveTransfer(exam, Actor{ID: "sup-b", Role: RoleSupervisor}, "roomB") {
		t.Fatal("target supervisor should approve")
	}
	if !CanApproveTransfer(exam, Actor{ID: "lect-b", Role: RoleLecturer}, "roomB") {
		t.Fatal("covering lecturer should approve")
	}
	if CanApproveTransfer(exam, Actor{ID: "sup-a", Role: RoleSupervisor}, "roomB") {
		t.Fatal("source supervisor must not approve")
	}
}

func TestCanCancelTransfer(t *testing.T) {
	request := TransferRequest{RequestedBy: "sup-a"}

	if !CanCancelTransfer(request, Actor{ID: "sup-a", Role: RoleSupervisor}) {
		t.Fatal("requester should cancel")
	}
	if !CanCancelTransfer(request, Actor{ID: "adm", Role: RoleAdmin}) {
		t.Fatal("admin should cancel")
	}
	if CanCancelTransfer(request, Actor{ID: "sup-b", Role: RoleSupervisor}) {
		t.Fatal("unrelated supervisor must not cancel")
	}
}

func TestCanManageLifecycle(t *testing.T) {
	exam := policyExam()

	if !CanManageLifecycle(exam, Actor{ID: "lect-main", Role: RoleLecturer}) {
		t.Fatal("main lecturer should manage lifecycle")
	}
	if CanManageLifecycle(exam, Actor{ID: "lect-b", Role: RoleLecturer}) {
		t.Fatal("co-lecturer must not manage lifecycle")
	}
	if !CanManageLifecycle(exam, Actor{ID: "adm", Role: RoleAdmin}) {
		t.Fatal("admin should manage lifecycle")
	}
}

func TestCanReadStudentFile(t *testing.T) {
	if !CanReadStudentFile(Actor{ID: "stud1", Role: RoleStudent}, "stud1") {
		t.Fatal("student should read own file")
	}
	if CanReadStudentFile(Actor{ID: "stud1", Role: RoleStudent}, "stud2") {
		t.Fatal("student must not read another file")
	}
	if !CanReadStudentFile(Actor{ID: "lect-main", Role: RoleLecturer}, "stud1") {
		t.Fatal("lecturer should read any file")
	}
	if CanReadStudentFile(Actor{ID: "sup-a", Role: RoleSupervisor}, "stud1") {
		t.Fatal("supervisor has no file access")
	}
}
