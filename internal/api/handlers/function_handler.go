package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"switchboard/internal/engine/webhooks"
	"switchboard/internal/pkg/errors"
)

type FunctionHandler struct {
	invoker *webhooks.Invoker
}

func NewFunctionHandler(invoker *webhooks.Invoker) *FunctionHandler {
	return &FunctionHandler{invoker: invoker}
}

type functionRequest struct {
	AgentID string          `json:"agent_id"`
	CallID  string          `json:"call_id"`
	Args    json.RawMessage `json:"args"`
	Call    *struct {
		AgentID string `json:"agent_id"`
		CallID  string `json:"call_id"`
	} `json:"call"`
}

// Invoke handles POST /functions/:function_name. The workflow's reply is
// returned as-is, whatever its status.
func (h *FunctionHandler) Invoke(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		errors.Write(w, errors.Wrap(errors.KindInvalidInput, "could not read request body", err))
		return
	}

	var req functionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		errors.Write(w, errors.New(errors.KindInvalidInput, "request body must be a JSON object"))
		return
	}
	if req.Call != nil {
		if req.AgentID == "" {
			req.AgentID = req.Call.AgentID
		}
		if req.CallID == "" {
			req.CallID = req.Call.CallID
		}
	}
	if req.AgentID == "" {
		errors.Write(w, errors.New(errors.KindInvalidInput, "agent_id is required"))
		return
	}

	resp, err := h.invoker.Invoke(r.Context(), webhooks.FunctionCall{
		AgentID:      req.AgentID,
		FunctionName: param(r, "function_name"),
		CallID:       req.CallID,
		Args:         req.Args,
		Payload:      body,
	})
	if resp != nil {
		relay(w, resp)
		return
	}
	errors.Write(w, err)
}
