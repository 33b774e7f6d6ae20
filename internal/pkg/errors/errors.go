package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
)

type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

const (
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeBadGateway        = "BAD_GATEWAY"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// Kind classifies failures across the routing and proxy paths.
type Kind string

const (
	KindTenantNotFound        Kind = "TenantNotFound"
	KindNotConfigured         Kind = "NotConfigured"
	KindProviderNotConfigured Kind = "ProviderNotConfigured"
	KindUnauthorized          Kind = "Unauthorized"
	KindTimeout               Kind = "Timeout"
	KindUpstream              Kind = "UpstreamError"
	KindTransport             Kind = "TransportError"
	KindIntegrity             Kind = "IntegrityError"
	KindKey                   Kind = "KeyError"
	KindConflict              Kind = "ConflictError"
	KindInvalidInput          Kind = "InvalidInput"
	KindNotFound              Kind = "NotFound"
	KindInternal              Kind = "Internal"
)

type Error struct {
	Kind    Kind
	Message string
	// Status carries the downstream status for KindUpstream.
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Upstream(status int) *Error {
	return &Error{Kind: KindUpstream, Message: "downstream returned non-2xx status", Status: status}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func HTTPStatus(err error) int {
	var e *Error
	if !stderrors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindTenantNotFound, KindNotConfigured, KindProviderNotConfigured, KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindTransport:
		return http.StatusBadGateway
	case KindUpstream:
		if e.Status > 0 {
			return e.Status
		}
		return http.StatusBadGateway
	case KindConflict:
		return http.StatusConflict
	case KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func code(status int) string {
	switch status {
	case http.StatusBadRequest:
		return ErrCodeInvalidInput
	case http.StatusUnauthorized:
		return ErrCodeUnauthorized
	case http.StatusForbidden:
		return ErrCodeForbidden
	case http.StatusNotFound:
		return ErrCodeNotFound
	case http.StatusConflict:
		return ErrCodeConflict
	case http.StatusGatewayTimeout:
		return ErrCodeTimeout
	case http.StatusBadGateway:
		return ErrCodeBadGateway
	default:
		return ErrCodeInternal
	}
}

// Write renders err as the {error, message, code} envelope. Messages of
// non-typed errors are replaced so internal details do not leak.
func Write(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)

	var e *Error
	if !stderrors.As(err, &e) {
		writeJSON(w, status, ErrorResponse{
			Error:   string(KindInternal),
			Message: "internal error",
			Code:    ErrCodeInternal,
		})
		return
	}

	writeJSON(w, status, ErrorResponse{
		Error:   string(e.Kind),
		Message: e.Message,
		Code:    code(status),
	})
}

func WriteError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	writeJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    code,
		Details: details,
	})
}

func writeJSON(w http.ResponseWriter, status int, body ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
