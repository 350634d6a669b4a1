package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	base := New(CodeTransferAlreadyResolved, "request already resolved")
	other := WithMetadata(CodeTransferAlreadyResolved, "different message", map[string]string{"request_id": "req1"})

	if !errors.Is(other, base) {
		t.Fatal("expected errors with the same code to match")
	}
	if errors.Is(base, New(CodeNotFound, "missing")) {
		t.Fatal("expected different codes not to match")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := Wrap(CodeInternal, "persist attendance", cause)

	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause to be reachable, got %v", err)
	}
	if err.Error() != "persist attendance" {
		t.Fatalf("expected internal message, got %q", err.Error())
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{name: "domain error", err: New(CodeExamNotActive, "exam ended"), want: CodeExamNotActive},
		{name: "wrapped domain error", err: fmt.Errorf("handler: %w", New(CodeNotFound, "no exam")), want: CodeNotFound},
		{name: "plain error", err: fmt.Errorf("boom"), want: CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.want {
				t.Fatalf("expected code %s, got %s", tt.want, got)
			}
		})
	}
}

func TestGetMetadata(t *testing.T) {
	err := WithMetadata(CodeInvalidTransition, "break already active", map[string]string{
		"current_status": "temp_out",
		"attempted":      "start_break",
	})

	meta := GetMetadata(err)
	if meta["current_status"] != "temp_out" {
		t.Fatalf("expected metadata current_status, got %v", meta)
	}
	if GetMetadata(fmt.Errorf("plain")) != nil {
		t.Fatal("expected nil metadata for plain error")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeNotFound, http.StatusNotFound},
		{CodeNotAuthorizedForRoom, http.StatusForbidden},
		{CodeExamNotActive, http.StatusConflict},
		{CodeTransferAlreadyResolved, http.StatusConflict},
		{CodeInvalidTransition, http.StatusConflict},
		{CodeMessageEmptyBody, http.StatusBadRequest},
		{CodeUnknown, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.want {
				t.Fatalf("expected status %d, got %d", tt.want, got)
			}
		})
	}
}
