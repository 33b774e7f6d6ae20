package webhooks

import (
	"encoding/json"
	"time"

	"switchboard/internal/platform/models"
)

type TenantRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type CallRef struct {
	ID string `json:"id"`
}

// Envelope is the body POSTed to downstream workflows. Exactly one of
// Function and Event is set.
type Envelope struct {
	Function        string          `json:"function,omitempty"`
	Event           string          `json:"event,omitempty"`
	Tenant          TenantRef       `json:"tenant"`
	Call            *CallRef        `json:"call,omitempty"`
	Args            json.RawMessage `json:"args,omitempty"`
	Timestamp       string          `json:"timestamp"`
	OriginalPayload json.RawMessage `json:"originalPayload"`
}

func FunctionEnvelope(tenant *models.Tenant, functionName, callID string, args, original json.RawMessage, at time.Time) *Envelope {
	env := &Envelope{
		Function:        functionName,
		Tenant:          TenantRef{ID: tenant.ID, Name: tenant.Name},
		Args:            args,
		Timestamp:       at.UTC().Format(time.RFC3339Nano),
		OriginalPayload: orNull(original),
	}
	if callID != "" {
		env.Call = &CallRef{ID: callID}
	}
	if len(env.Args) == 0 {
		env.Args = json.RawMessage(`{}`)
	}
	return env
}

func EventEnvelope(tenant *models.Tenant, eventType string, payload json.RawMessage, at time.Time) *Envelope {
	env := &Envelope{
		Event:           eventType,
		Tenant:          TenantRef{ID: tenant.ID, Name: tenant.Name},
		Timestamp:       at.UTC().Format(time.RFC3339Nano),
		OriginalPayload: orNull(payload),
	}
	if callID := eventCallID(payload); callID != "" {
		env.Call = &CallRef{ID: callID}
	}
	return env
}

// eventCallID reads call_id, then call.call_id, from an event payload.
func eventCallID(payload json.RawMessage) string {
	var ids struct {
		CallID string `json:"call_id"`
		Call   struct {
			CallID string `json:"call_id"`
		} `json:"call"`
	}
	if len(payload) == 0 || json.Unmarshal(payload, &ids) != nil {
		return ""
	}
	if ids.CallID != "" {
		return ids.CallID
	}
	return ids.Call.CallID
}

func orNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`null`)
	}
	return raw
}
