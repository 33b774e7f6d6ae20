package models

import "encoding/json"

// CallRecord is the append-only evidence of one completed invocation.
type CallRecord struct {
	ID             string           `json:"id"`
	RegistrationID string           `json:"registration_id"`
	TenantID       string           `json:"tenant_id"`
	Direction      RegistrationKind `json:"direction"`
	RequestPayload json.RawMessage  `json:"request_payload,omitempty"`
	ResponseBody   string           `json:"response_body,omitempty"`
	StatusCode     int              `json:"status_code"`
	DurationMs     int64            `json:"duration_ms"`
	Success        bool             `json:"success"`
	ErrorMessage   string           `json:"error_message,omitempty"`
	Attempts       int              `json:"attempts"`
	CreatedAt      int64            `json:"created_at"` // unix millis
}

type CallSummary struct {
	TotalCalls            int64   `json:"total_calls"`
	SuccessfulCalls       int64   `json:"successful_calls"`
	FailedCalls           int64   `json:"failed_calls"`
	AverageResponseTimeMs float64 `json:"average_response_time_ms"`
	SuccessRate           float64 `json:"success_rate"`
}

type DailyCallStat struct {
	RegistrationID        string  `json:"registration_id"`
	Date                  string  `json:"date"`
	TotalCalls            int64   `json:"total_calls"`
	SuccessfulCalls       int64   `json:"successful_calls"`
	FailedCalls           int64   `json:"failed_calls"`
	AverageResponseTimeMs float64 `json:"average_response_time_ms"`
}
