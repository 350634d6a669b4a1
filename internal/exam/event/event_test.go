package event

import (
	"testing"

	apperrors "github.com/hallwatch/hallwatch/internal/platform/errors"
)

func TestType_Domain(t *testing.T) {
	tests := []struct {
		eventType Type
		want      string
	}{
		{TypeExamStatusChanged, "exam"},
		{TypeStudentArrived, "attendance"},
		{TypeBreakStarted, "break"},
		{TypeBreakOverrun, "break"},
		{TypeTransferApproved, "transfer"},
		{TypeIncidentReported, "incident"},
		{TypeViolationRecorded, "incident"},
		{TypeMessagePosted, "message"},
		{Type("nodot"), "nodot"},
		{Type(""), ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			if got := tt.eventType.Domain(); got != tt.want {
				t.Errorf("Type(%q).Domain() = %q, want %q", tt.eventType, got, tt.want)
			}
		})
	}
}

func TestType_IsIncident(t *testing.T) {
	tests := []struct {
		eventType Type
		want      bool
	}{
		{TypeIncidentReported, true},
		{TypeViolationRecorded, true},
		{TypeBreakOverrun, true},
		{TypeBreakEnded, false},
		{TypeStudentArrived, false},
		{TypeTransferApproved, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			if got := tt.eventType.IsIncident(); got != tt.want {
				t.Errorf("Type(%q).IsIncident() = %v, want %v", tt.eventType, got, tt.want)
			}
		})
	}
}

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		value string
		want  Severity
		ok    bool
	}{
		{"low", SeverityLow, true},
		{"MEDIUM", SeverityMedium, true},
		{" high ", SeverityHigh, true},
		{"critical", SeverityCritical, true},
		{"urgent", SeverityUnspecified, false},
		{"", SeverityUnspecified, false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, ok := ParseSeverity(tt.value)
			if got != tt.want || ok != tt.ok {
				t.Errorf("ParseSeverity(%q) = (%v, %v), want (%v, %v)", tt.value, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestEvent_Validate(t *testing.T) {
	if err := (Event{Type: TypeBreakEnded}).Validate(); err != nil {
		t.Fatalf("non-incident without severity should validate: %v", err)
	}
	if err := (Event{Type: TypeIncidentReported, Severity: SeverityHigh}).Validate(); err != nil {
		t.Fatalf("incident with valid severity should validate: %v", err)
	}

	err := (Event{Type: TypeIncidentReported}).Validate()
	if !apperrors.IsCode(err, apperrors.CodeEventInvalidSeverity) {
		t.Fatalf("expected invalid-severity error, got %v", err)
	}

	err = (Event{Type: TypeBreakEnded, Severity: Severity("urgent")}).Validate()
	if !apperrors.IsCode(err, apperrors.CodeEventInvalidSeverity) {
		t.Fatalf("expected invalid-severity error for out-of-enum value, got %v", err)
	}

	err = (Event{}).Validate()
	if !apperrors.IsCode(err, apperrors.CodeEventInvalidType) {
		t.Fatalf("expected invalid-type error, got %v", err)
	}
}
