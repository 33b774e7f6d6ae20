package models

import "switchboard/internal/engine/vault"

type RegistrationKind string

const (
	KindEventListener RegistrationKind = "event_listener"
	KindFunctionCall  RegistrationKind = "function_call"
)

// WildcardEvent matches every event type for the registration's tenant.
const WildcardEvent = "*"

const (
	MinResponseTimeoutMs     = 1000
	MaxResponseTimeoutMs     = 30000
	DefaultResponseTimeoutMs = 10000
)

type Registration struct {
	ID                string           `json:"id"`
	TenantID          string           `json:"tenant_id"`
	Name              string           `json:"name"`
	Kind              RegistrationKind `json:"kind"`
	EventType         string           `json:"event_type,omitempty"`
	FunctionName      string           `json:"function_name,omitempty"`
	TargetURL         string           `json:"target_url"`
	AuthToken         *vault.Sealed    `json:"-"`
	Active            bool             `json:"active"`
	ResponseTimeoutMs int              `json:"response_timeout_ms,omitempty"`
	RetryOnFailure    bool             `json:"retry_on_failure"`
	TotalCalls        int64            `json:"total_calls"`
	SuccessfulCalls   int64            `json:"successful_calls"`
	FailedCalls       int64            `json:"failed_calls"`
	LastCalledAt      *int64           `json:"last_called_at,omitempty"`
	CreatedAt         int64            `json:"created_at"`
	UpdatedAt         int64            `json:"updated_at"`
}

func (r *Registration) HasAuthToken() bool {
	return r.AuthToken != nil && len(r.AuthToken.Tag) > 0
}
