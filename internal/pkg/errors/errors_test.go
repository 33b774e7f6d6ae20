package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"tenant not found", New(KindTenantNotFound, "x"), http.StatusNotFound},
		{"not configured", New(KindNotConfigured, "x"), http.StatusNotFound},
		{"unauthorized", New(KindUnauthorized, "x"), http.StatusUnauthorized},
		{"timeout", New(KindTimeout, "x"), http.StatusGatewayTimeout},
		{"transport", New(KindTransport, "x"), http.StatusBadGateway},
		{"upstream passthrough", Upstream(http.StatusTeapot), http.StatusTeapot},
		{"wrapped", fmt.Errorf("ctx: %w", New(KindConflict, "x")), http.StatusConflict},
		{"untyped", stderrors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWrite_HidesUntypedMessages(t *testing.T) {
	rr := httptest.NewRecorder()
	Write(rr, stderrors.New("sql: connection refused at 10.0.0.3"))

	var body ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Message != "internal error" {
		t.Errorf("Expected generic message, got %q", body.Message)
	}
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", rr.Code)
	}
}

func TestWrite_TypedEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()
	Write(rr, New(KindTimeout, "function did not respond within 2000ms"))

	var body ErrorResponse
	json.NewDecoder(rr.Body).Decode(&body)

	if rr.Code != http.StatusGatewayTimeout {
		t.Errorf("Expected 504, got %d", rr.Code)
	}
	if body.Error != "Timeout" || body.Code != ErrCodeTimeout {
		t.Errorf("Unexpected envelope: %+v", body)
	}
}
