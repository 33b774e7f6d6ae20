package webhooks

import (
	"context"
	"net/http"
	"testing"
	"time"

	"switchboard/internal/engine/registry"
	"switchboard/internal/engine/stats"
	"switchboard/internal/engine/tenants"
	"switchboard/internal/engine/vault"
	"switchboard/internal/platform/models"
	"switchboard/internal/platform/repositories/memory"
)

const (
	testMasterKey     = "0123456789abcdef0123456789abcdef"
	testSigningSecret = "whsec_test"
)

type backend struct {
	dir   tenants.Directory
	regs  registry.Store
	calls stats.Store
}

type fixture struct {
	registry    *registry.Service
	regs        registry.Store
	vault       *vault.Vault
	invoker     *Invoker
	broadcaster *Broadcaster

	router   *Router
	recorder *stats.Recorder
	poster   *Poster
	policy   DeadlinePolicy
}

func memoryBackend() (backend, *memory.Store) {
	store := memory.New()
	store.AddTenant(&models.Tenant{ID: "t1", Name: "Acme Dental"}, "agent_1")
	store.AddTenant(&models.Tenant{ID: "t2", Name: "Other Co"}, "agent_2")
	return backend{dir: store, regs: store, calls: store}, store
}

func newFixture(t *testing.T, b backend) *fixture {
	t.Helper()

	v, err := vault.New(testMasterKey)
	if err != nil {
		t.Fatalf("vault.New: %v", err)
	}

	regSvc := registry.NewService(b.regs, v)
	resolver := tenants.NewResolver(b.dir, time.Minute, nil)
	router := NewRouter(resolver, regSvc)
	recorder := stats.NewRecorder(b.calls, nil, 64*1024)
	poster := NewPoster(&http.Client{}, testSigningSecret)
	policy := DeadlinePolicy{EventTimeout: 2 * time.Second}

	f := &fixture{
		registry: regSvc,
		regs:     b.regs,
		vault:    v,
		invoker:  NewInvoker(router, v, recorder, poster, policy),
		router:   router,
		recorder: recorder,
		poster:   poster,
		policy:   policy,
	}
	f.broadcaster = f.newBroadcaster(BroadcasterConfig{
		MaxRetries:   2,
		RetryBackoff: 10 * time.Millisecond,
		MaxInFlight:  16,
	})
	return f
}

func (f *fixture) newBroadcaster(cfg BroadcasterConfig) *Broadcaster {
	return NewBroadcaster(f.router, f.vault, f.recorder, f.poster, f.policy, nil, cfg)
}

func ptr[T any](v T) *T { return &v }

func (f *fixture) addFunction(t *testing.T, tenantID, name, fn, url string, timeoutMs int, token string) *models.Registration {
	t.Helper()
	kind := models.KindFunctionCall
	in := &registry.Input{
		Name:              ptr(name),
		Kind:              &kind,
		FunctionName:      ptr(fn),
		TargetURL:         ptr(url),
		ResponseTimeoutMs: ptr(timeoutMs),
	}
	if token != "" {
		in.AuthToken = ptr(token)
	}
	reg, err := f.registry.Create(context.Background(), tenantID, in)
	if err != nil {
		t.Fatalf("Create function registration: %v", err)
	}
	return reg
}

func (f *fixture) addListener(t *testing.T, tenantID, name, eventType, url string, retry bool) *models.Registration {
	t.Helper()
	kind := models.KindEventListener
	reg, err := f.registry.Create(context.Background(), tenantID, &registry.Input{
		Name:           ptr(name),
		Kind:           &kind,
		EventType:      ptr(eventType),
		TargetURL:      ptr(url),
		RetryOnFailure: ptr(retry),
	})
	if err != nil {
		t.Fatalf("Create listener registration: %v", err)
	}
	return reg
}

func (f *fixture) reload(t *testing.T, reg *models.Registration) *models.Registration {
	t.Helper()
	got, err := f.regs.GetRegistration(context.Background(), reg.TenantID, reg.ID)
	if err != nil || got == nil {
		t.Fatalf("GetRegistration: %v %v", got, err)
	}
	return got
}
