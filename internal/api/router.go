package api

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	apiContext "switchboard/internal/api/context"
	"switchboard/internal/api/handlers"
	"switchboard/internal/api/middleware"
	"switchboard/internal/pkg/errors"
)

type Dependencies struct {
	FunctionHandler     *handlers.FunctionHandler
	EventHandler        *handlers.EventHandler
	ProxyHandler        *handlers.ProxyHandler
	RegistrationHandler *handlers.RegistrationHandler
	CredentialHandler   *handlers.CredentialHandler
	StatsHandler        *handlers.StatsHandler
	AuditHandler        *handlers.AuditHandler
	HealthHandler       *handlers.HealthHandler
	MetricsHandler      *handlers.MetricsHandler
	AuthMiddleware      *middleware.AuthMiddleware
	TenantMiddleware    *middleware.TenantMiddleware
	EventRateLimiter    *middleware.RateLimiter

	// FunctionSecret, when set, guards /functions with a shared bearer.
	FunctionSecret string
	MaxBodyBytes   int64
	Logger         zerolog.Logger
}

func NewRouter(deps *Dependencies) http.Handler {
	router := httprouter.New()
	limitBody := middleware.MaxBytes(deps.MaxBodyBytes)

	router.GET("/health", wrap(deps.HealthHandler.Check))
	router.GET("/metrics", wrap(deps.MetricsHandler.Export))

	// Agent and provider ingress
	router.POST("/functions/:function_name",
		chain(deps.FunctionHandler.Invoke, limitBody, middleware.SharedSecret(deps.FunctionSecret)))

	events := []func(http.HandlerFunc) http.HandlerFunc{limitBody}
	if deps.EventRateLimiter != nil {
		events = append([]func(http.HandlerFunc) http.HandlerFunc{deps.EventRateLimiter.Handle}, events...)
	}
	router.POST("/events/:event_type", chain(deps.EventHandler.Receive, events...))

	// Workflow egress
	router.POST("/proxy/:tenant_id/:provider/:action", chain(deps.ProxyHandler.Forward, limitBody))

	// Middleware references
	authMid := deps.AuthMiddleware
	tenantMid := deps.TenantMiddleware
	admin := requireRole("admin", "owner")

	// Registrations
	router.POST("/api/v1/registrations",
		chain(deps.RegistrationHandler.Create, limitBody, authMid.Handle, tenantMid.Handle, admin))
	router.GET("/api/v1/registrations",
		chain(deps.RegistrationHandler.List, authMid.Handle, tenantMid.Handle, admin))
	router.GET("/api/v1/registrations/:registration_id",
		chain(deps.RegistrationHandler.Get, authMid.Handle, tenantMid.Handle, admin))
	router.PATCH("/api/v1/registrations/:registration_id",
		chain(deps.RegistrationHandler.Update, limitBody, authMid.Handle, tenantMid.Handle, admin))
	router.DELETE("/api/v1/registrations/:registration_id",
		chain(deps.RegistrationHandler.Delete, authMid.Handle, tenantMid.Handle, admin))
	router.GET("/api/v1/registrations/:registration_id/calls",
		chain(deps.RegistrationHandler.Calls, authMid.Handle, tenantMid.Handle, admin))
	router.GET("/api/v1/registrations/:registration_id/stats/daily",
		chain(deps.RegistrationHandler.Daily, authMid.Handle, tenantMid.Handle, admin))

	// Provider credentials
	router.GET("/api/v1/credentials",
		chain(deps.CredentialHandler.List, authMid.Handle, tenantMid.Handle, admin))
	router.PUT("/api/v1/credentials/:provider",
		chain(deps.CredentialHandler.Put, limitBody, authMid.Handle, tenantMid.Handle, admin))
	router.DELETE("/api/v1/credentials/:provider",
		chain(deps.CredentialHandler.Delete, authMid.Handle, tenantMid.Handle, admin))

	// Stats and audit
	router.GET("/api/v1/stats/summary",
		chain(deps.StatsHandler.Summary, authMid.Handle, tenantMid.Handle, admin))
	router.GET("/api/v1/audit-logs",
		chain(deps.AuditHandler.List, authMid.Handle, tenantMid.Handle, admin))

	return withRequestLogging(router, deps.Logger)
}

// withRequestLogging attaches the logger and a request id to every request
// and writes one access log line per response.
func withRequestLogging(next http.Handler, logger zerolog.Logger) http.Handler {
	h := hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	})(next)
	h = hlog.RemoteAddrHandler("ip")(h)
	h = hlog.RequestIDHandler("request_id", "X-Request-ID")(h)
	return hlog.NewHandler(logger)(h)
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		// Inject params into context
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}

func requireRole(roles ...string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims := apiContext.ClaimsFrom(r.Context())

			allowed := false
			for _, role := range roles {
				if claims != nil && claims.Role == role {
					allowed = true
					break
				}
			}

			if !allowed {
				errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Insufficient permissions", nil)
				return
			}

			next(w, r)
		}
	}
}
