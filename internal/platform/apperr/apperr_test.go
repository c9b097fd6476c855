package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestError_IsMatchesKindSentinel(t *testing.T) {
	err := Conflict("admit", "bed g1 is occupied")
	if !errors.Is(err, ErrConflict) {
		t.Error("expected conflict error to match ErrConflict")
	}
	if errors.Is(err, ErrTransient) {
		t.Error("conflict must not match ErrTransient")
	}
}

func TestError_WrappedStillClassified(t *testing.T) {
	err := fmt.Errorf("pay invoice: %w", Transient("gateway", errors.New("connection reset")))
	if KindOf(err) != KindTransient {
		t.Errorf("expected transient, got %s", KindOf(err))
	}
	if !IsRetryable(err) {
		t.Error("expected transient error to be retryable")
	}
}

func TestError_Message(t *testing.T) {
	err := Validation("admit", "patient_id is required")
	if err.Error() != "admit: patient_id is required" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestKindOf_PlainError(t *testing.T) {
	if KindOf(errors.New("boom")) != KindInternal {
		t.Error("expected plain errors to be internal")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{Validation("op", "x"), http.StatusBadRequest},
		{Conflict("op", "x"), http.StatusConflict},
		{InvalidState("op", "x"), http.StatusConflict},
		{NotFound("op", "x"), http.StatusNotFound},
		{InFlight("op", "a1"), http.StatusTooManyRequests},
		{Transient("op", errors.New("timeout")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestHTTPError_CarriesKind(t *testing.T) {
	he := HTTPError(Conflict("admission.Admit", "bed g1 is busy"))
	if he.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", he.Code)
	}
	body, ok := he.Message.(map[string]string)
	if !ok {
		t.Fatalf("unexpected message type %T", he.Message)
	}
	if body["kind"] != "conflict" {
		t.Errorf("expected kind conflict, got %q", body["kind"])
	}
}
