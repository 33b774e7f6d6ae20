package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"switchboard/internal/api/handlers"
	"switchboard/internal/api/middleware"
	"switchboard/internal/engine/proxy"
	"switchboard/internal/engine/registry"
	"switchboard/internal/engine/stats"
	"switchboard/internal/engine/tenants"
	"switchboard/internal/engine/vault"
	"switchboard/internal/engine/webhooks"
	"switchboard/internal/platform/audit"
	"switchboard/internal/platform/auth"
	"switchboard/internal/platform/config"
	"switchboard/internal/platform/database"
	"switchboard/internal/platform/metrics"
	"switchboard/internal/platform/models"
	"switchboard/internal/platform/repositories"
)

const (
	functionSecret = "fn-secret"
	proxySecret    = "proxy-secret"
)

type testServer struct {
	handler     http.Handler
	tokens      *auth.TokenService
	broadcaster *webhooks.Broadcaster
}

func newTestServer(t *testing.T, providers map[string]config.ProviderConfig) *testServer {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "api.db"), MaxConnections: 4})
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	ctx := context.Background()
	tenantRepo := repositories.NewTenantRepository(db)
	tenantRepo.UpsertTenant(ctx, &models.Tenant{ID: "t1", Name: "Acme Dental"})
	tenantRepo.UpsertTenant(ctx, &models.Tenant{ID: "t2", Name: "Other Co"})
	tenantRepo.UpsertAgent(ctx, &models.Agent{AgentID: "agent_1", TenantID: "t1"})

	v, _ := vault.New("0123456789abcdef0123456789abcdef")
	m := metrics.New()
	callRepo := repositories.NewCallRecordRepository(db)
	auditLogger := audit.NewLogger(db)

	resolver := tenants.NewResolver(tenantRepo, time.Minute, m)
	registrySvc := registry.NewService(repositories.NewRegistrationRepository(db), v)
	statsSvc := stats.NewService(callRepo)
	recorder := stats.NewRecorder(callRepo, m, 64*1024)

	router := webhooks.NewRouter(resolver, registrySvc)
	poster := webhooks.NewPoster(nil, "")
	policy := webhooks.DeadlinePolicy{EventTimeout: 2 * time.Second}
	broadcaster := webhooks.NewBroadcaster(router, v, recorder, poster, policy, m, webhooks.BroadcasterConfig{RetryBackoff: 10 * time.Millisecond})

	catalog, err := proxy.NewCatalog(providers)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	credentials := proxy.NewCredentials(repositories.NewCredentialRepository(db), v, catalog)

	tokens := auth.NewTokenService(config.JWTConfig{Secret: "jwt-secret", Issuer: "switchboard", AccessTokenTTL: time.Hour})
	limiter := middleware.NewRateLimiter(6000, 100)
	t.Cleanup(limiter.Stop)

	handler := NewRouter(&Dependencies{
		FunctionHandler:     handlers.NewFunctionHandler(webhooks.NewInvoker(router, v, recorder, poster, policy)),
		EventHandler:        handlers.NewEventHandler(broadcaster),
		ProxyHandler:        handlers.NewProxyHandler(proxy.New(resolver, credentials, catalog, nil, proxy.Config{SharedSecret: proxySecret, Timeout: time.Second}, m)),
		RegistrationHandler: handlers.NewRegistrationHandler(registrySvc, statsSvc, auditLogger),
		CredentialHandler:   handlers.NewCredentialHandler(credentials, auditLogger),
		StatsHandler:        handlers.NewStatsHandler(statsSvc),
		AuditHandler:        handlers.NewAuditHandler(auditLogger),
		HealthHandler:       handlers.NewHealthHandler(db),
		MetricsHandler:      handlers.NewMetricsHandler(m),
		AuthMiddleware:      middleware.NewAuthMiddleware(tokens),
		TenantMiddleware:    middleware.NewTenantMiddleware(resolver),
		EventRateLimiter:    limiter,
		FunctionSecret:      functionSecret,
		MaxBodyBytes:        1 << 20,
		Logger:              zerolog.Nop(),
	})

	return &testServer{handler: handler, tokens: tokens, broadcaster: broadcaster}
}

func (s *testServer) do(t *testing.T, method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, _ := json.Marshal(b)
		r = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, r)
	req.RemoteAddr = "192.0.2.1:4000"
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func (s *testServer) adminToken(t *testing.T, tenantID, role string) string {
	t.Helper()
	token, err := s.tokens.GenerateAccessToken("user_1", tenantID, role)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	return token
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
}

func TestFunctionCallEndToEnd(t *testing.T) {
	workflow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"available":true}`))
	}))
	defer workflow.Close()

	s := newTestServer(t, nil)
	admin := s.adminToken(t, "t1", "admin")

	rr := s.do(t, "POST", "/api/v1/registrations", admin, map[string]interface{}{
		"name":          "availability",
		"kind":          "function_call",
		"function_name": "check_availability",
		"target_url":    workflow.URL,
		"auth_token":    "whk_secret_token",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Create registration: %d %s", rr.Code, rr.Body.String())
	}
	var created map[string]interface{}
	decode(t, rr, &created)
	if created["has_auth_token"] != true {
		t.Errorf("Expected has_auth_token true, got %v", created["has_auth_token"])
	}
	if strings.Contains(rr.Body.String(), "whk_secret_token") {
		t.Error("Auth token must never be returned")
	}

	body := `{"call":{"agent_id":"agent_1","call_id":"call_1"},"args":{"date":"2026-03-14"}}`
	rr = s.do(t, "POST", "/functions/check_availability", "", body)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without shared secret, got %d", rr.Code)
	}

	rr = s.do(t, "POST", "/functions/check_availability", functionSecret, body)
	if rr.Code != http.StatusOK || rr.Body.String() != `{"available":true}` {
		t.Fatalf("Expected workflow reply verbatim, got %d %q", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("Expected request id header")
	}

	rr = s.do(t, "POST", "/functions/unknown_fn", functionSecret, body)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unconfigured function, got %d", rr.Code)
	}
	var envelope struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	decode(t, rr, &envelope)
	if envelope.Error != "NotConfigured" {
		t.Errorf("Expected NotConfigured envelope, got %+v", envelope)
	}

	rr = s.do(t, "POST", "/functions/check_availability", functionSecret, `{"args":{}}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without agent_id, got %d", rr.Code)
	}

	rr = s.do(t, "GET", "/api/v1/stats/summary", admin, nil)
	var summary models.CallSummary
	decode(t, rr, &summary)
	if summary.TotalCalls != 1 || summary.SuccessfulCalls != 1 || summary.SuccessRate != 1 {
		t.Errorf("Unexpected summary: %+v", summary)
	}

	rr = s.do(t, "GET", "/api/v1/registrations/"+created["id"].(string)+"/calls", admin, nil)
	var calls []models.CallRecord
	decode(t, rr, &calls)
	if len(calls) != 1 || !calls[0].Success || calls[0].Direction != models.KindFunctionCall {
		t.Errorf("Unexpected call records: %+v", calls)
	}
}

func TestEventEndpoint(t *testing.T) {
	hits := make(chan struct{}, 4)
	workflow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits <- struct{}{}
	}))
	defer workflow.Close()

	s := newTestServer(t, nil)
	admin := s.adminToken(t, "t1", "owner")
	rr := s.do(t, "POST", "/api/v1/registrations", admin, map[string]interface{}{
		"name":       "all-events",
		"kind":       "event_listener",
		"event_type": "*",
		"target_url": workflow.URL,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Create registration: %d %s", rr.Code, rr.Body.String())
	}

	rr = s.do(t, "POST", "/events/call_ended", "", `{"callId":"c1","metadata":{"tenant_id":"t1"}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	var resp struct {
		Success    bool `json:"success"`
		Dispatched int  `json:"dispatched"`
	}
	decode(t, rr, &resp)
	if !resp.Success || resp.Dispatched != 1 {
		t.Errorf("Unexpected ack: %+v", resp)
	}
	s.broadcaster.Wait()
	if len(hits) != 1 {
		t.Errorf("Expected one delivery, got %d", len(hits))
	}

	rr = s.do(t, "POST", "/events/call_ended", "", `{"metadata":{"tenant_id":"ghost"}}`)
	decode(t, rr, &resp)
	if rr.Code != http.StatusOK || resp.Dispatched != 0 {
		t.Errorf("Expected 200 with nothing dispatched for unknown tenant, got %d %+v", rr.Code, resp)
	}

	rr = s.do(t, "POST", "/events/call_ended", "", `{not json`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unparseable body, got %d", rr.Code)
	}
}

func TestRegistrationAdmin(t *testing.T) {
	s := newTestServer(t, nil)
	admin := s.adminToken(t, "t1", "admin")

	create := func(name, fn string) *httptest.ResponseRecorder {
		return s.do(t, "POST", "/api/v1/registrations", admin, map[string]interface{}{
			"name": name, "kind": "function_call", "function_name": fn, "target_url": "https://hooks.example.com/" + name,
		})
	}

	rr := create("booking", "book")
	if rr.Code != http.StatusCreated {
		t.Fatalf("Create: %d %s", rr.Code, rr.Body.String())
	}
	var reg map[string]interface{}
	decode(t, rr, &reg)
	id := reg["id"].(string)

	if rr := create("booking-v2", "book"); rr.Code != http.StatusConflict {
		t.Errorf("Expected 409 for second active function, got %d", rr.Code)
	}
	if rr := s.do(t, "POST", "/api/v1/registrations", admin, map[string]interface{}{
		"name": "bad", "kind": "function_call", "function_name": "x", "target_url": "ftp://nope",
	}); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad url, got %d", rr.Code)
	}

	rr = s.do(t, "GET", "/api/v1/registrations?fields=id,name", admin, nil)
	var list []map[string]interface{}
	decode(t, rr, &list)
	if len(list) != 1 || len(list[0]) != 2 || list[0]["name"] != "booking" {
		t.Errorf("Expected projected list, got %v", list)
	}
	if rr := s.do(t, "GET", "/api/v1/registrations?fields=id,secret", admin, nil); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown field, got %d", rr.Code)
	}

	rr = s.do(t, "PATCH", "/api/v1/registrations/"+id, admin, map[string]interface{}{"active": false})
	decode(t, rr, &reg)
	if rr.Code != http.StatusOK || reg["active"] != false {
		t.Errorf("Expected deactivated registration, got %d %v", rr.Code, reg)
	}

	other := s.adminToken(t, "t2", "admin")
	if rr := s.do(t, "GET", "/api/v1/registrations/"+id, other, nil); rr.Code != http.StatusNotFound {
		t.Errorf("Expected other tenant to get 404, got %d", rr.Code)
	}

	viewer := s.adminToken(t, "t1", "member")
	if rr := s.do(t, "GET", "/api/v1/registrations", viewer, nil); rr.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for non-admin role, got %d", rr.Code)
	}
	if rr := s.do(t, "GET", "/api/v1/registrations", "", nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", rr.Code)
	}

	if rr := s.do(t, "DELETE", "/api/v1/registrations/"+id, admin, nil); rr.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rr.Code)
	}
	if rr := s.do(t, "DELETE", "/api/v1/registrations/"+id, admin, nil); rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 on second delete, got %d", rr.Code)
	}

	rr = s.do(t, "GET", "/api/v1/audit-logs", admin, nil)
	var logs []audit.AuditLog
	decode(t, rr, &logs)
	if len(logs) != 3 {
		t.Errorf("Expected create, update and delete audit entries, got %d", len(logs))
	}
}

func TestProxyAndCredentials(t *testing.T) {
	var gotAuth string
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"queued":true}`))
	}))
	defer provider.Close()

	s := newTestServer(t, map[string]config.ProviderConfig{
		"crm": {
			BaseURL: provider.URL,
			Auth:    config.ProviderAuthConfig{Scheme: "bearer"},
			Actions: map[string]config.ActionConfig{"upsert_contact": {Method: "POST", Path: "/contacts"}},
		},
	})
	admin := s.adminToken(t, "t1", "admin")

	rr := s.do(t, "PUT", "/api/v1/credentials/crm", admin, map[string]interface{}{
		"fields": map[string]string{"api_key": "sk_live_abcdef123456"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("Put credential: %d %s", rr.Code, rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "sk_live_abcdef123456") {
		t.Error("Credential must be masked")
	}

	rr = s.do(t, "GET", "/api/v1/credentials", admin, nil)
	var creds []proxy.MaskedCredential
	decode(t, rr, &creds)
	if len(creds) != 1 || creds[0].Fields["api_key"] != "sk_l***3456" {
		t.Errorf("Unexpected credentials: %+v", creds)
	}

	if rr := s.do(t, "POST", "/proxy/t1/crm/upsert_contact", "wrong", `{}`); rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for bad proxy secret, got %d", rr.Code)
	}

	rr = s.do(t, "POST", "/proxy/t1/crm/upsert_contact", proxySecret, `{"name":"Ada"}`)
	if rr.Code != http.StatusAccepted || rr.Body.String() != `{"queued":true}` {
		t.Errorf("Expected provider reply relayed, got %d %q", rr.Code, rr.Body.String())
	}
	if gotAuth != "Bearer sk_live_abcdef123456" {
		t.Errorf("Expected credential attached, got %q", gotAuth)
	}

	if rr := s.do(t, "POST", "/proxy/t2/crm/upsert_contact", proxySecret, `{}`); rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 ProviderNotConfigured, got %d", rr.Code)
	}
	if rr := s.do(t, "POST", "/proxy/ghost/crm/upsert_contact", proxySecret, `{}`); rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 TenantNotFound, got %d", rr.Code)
	}

	if rr := s.do(t, "DELETE", "/api/v1/credentials/crm", admin, nil); rr.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rr.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)

	if rr := s.do(t, "GET", "/health", "", nil); rr.Code != http.StatusOK {
		t.Errorf("Expected healthy, got %d", rr.Code)
	}

	rr := s.do(t, "GET", "/metrics", "", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Errorf("Expected prometheus exposition, got %d", rr.Code)
	}
}
