package handlers

import (
	"io"
	"net/http"

	"switchboard/internal/engine/proxy"
	"switchboard/internal/pkg/errors"
)

type ProxyHandler struct {
	proxy *proxy.Proxy
}

func NewProxyHandler(p *proxy.Proxy) *ProxyHandler {
	return &ProxyHandler{proxy: p}
}

// Forward handles POST /proxy/:tenant_id/:provider/:action.
func (h *ProxyHandler) Forward(w http.ResponseWriter, r *http.Request) {
	if err := h.proxy.Authorize(r.Header.Get("Authorization")); err != nil {
		errors.Write(w, err)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		errors.Write(w, errors.Wrap(errors.KindInvalidInput, "could not read request body", err))
		return
	}

	resp, err := h.proxy.Forward(r.Context(), proxy.Request{
		TenantID:    param(r, "tenant_id"),
		Provider:    param(r, "provider"),
		Action:      param(r, "action"),
		Body:        body,
		Query:       r.URL.Query(),
		ContentType: r.Header.Get("Content-Type"),
	})
	if err != nil {
		errors.Write(w, err)
		return
	}
	relay(w, resp)
}
