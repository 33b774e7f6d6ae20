// Package proxy forwards workflow requests to external providers with the
// tenant's stored credential attached.
package proxy

import (
	"bytes"
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"switchboard/internal/engine/webhooks"
	apperrors "switchboard/internal/pkg/errors"
	"switchboard/internal/platform/metrics"
	"switchboard/internal/platform/models"
)

const DefaultTimeout = 30 * time.Second

type TenantResolver interface {
	ResolveTenant(ctx context.Context, tenantID string) (*models.Tenant, error)
}

type Config struct {
	SharedSecret string
	Timeout      time.Duration
}

// Request is one inbound proxy call.
type Request struct {
	TenantID    string
	Provider    string
	Action      string
	Body        []byte
	Query       url.Values
	ContentType string
}

type Proxy struct {
	tenants     TenantResolver
	credentials *Credentials
	catalog     *Catalog
	client      *http.Client
	cfg         Config
	metrics     *metrics.Metrics
}

func New(tenants TenantResolver, credentials *Credentials, catalog *Catalog, client *http.Client, cfg Config, m *metrics.Metrics) *Proxy {
	if client == nil {
		client = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Proxy{
		tenants:     tenants,
		credentials: credentials,
		catalog:     catalog,
		client:      client,
		cfg:         cfg,
		metrics:     m,
	}
}

// Authorize checks the platform bearer secret in constant time. An empty
// configured secret rejects every caller.
func (p *Proxy) Authorize(header string) error {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || p.cfg.SharedSecret == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(p.cfg.SharedSecret)) != 1 {
		return apperrors.New(apperrors.KindUnauthorized, "invalid proxy credentials")
	}
	return nil
}

// Forward relays the provider's reply unmodified. Any provider status is
// returned with a nil error.
func (p *Proxy) Forward(ctx context.Context, r Request) (*webhooks.Response, error) {
	resp, err := p.forward(ctx, r)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	} else if err != nil {
		status = apperrors.HTTPStatus(err)
	}
	p.metrics.ObserveProxy(r.Provider, status)
	return resp, err
}

func (p *Proxy) forward(ctx context.Context, r Request) (*webhooks.Response, error) {
	tenant, err := p.tenants.ResolveTenant(ctx, r.TenantID)
	if err != nil {
		return nil, err
	}

	provider, action, err := p.catalog.Lookup(r.Provider, r.Action)
	if err != nil {
		return nil, err
	}

	logger := log.Ctx(ctx).With().
		Str("component", "proxy").
		Str("tenant_id", tenant.ID).
		Str("provider", provider.Name).
		Str("action", r.Action).
		Logger()

	fields, err := p.credentials.open(ctx, tenant.ID, provider.Name)
	if err != nil {
		logger.Warn().Str("error_kind", string(apperrors.KindOf(err))).Msg("credential unavailable")
		return nil, err
	}

	ctx, cancel := webhooks.WithDeadline(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := p.build(ctx, provider, action, fields, r)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		err = p.classify(ctx, err)
		logger.Warn().Err(err).Dur("duration", time.Since(start)).Msg("provider request failed")
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, webhooks.MaxResponseBytes+1))
	if err != nil {
		return nil, p.classify(ctx, err)
	}
	if len(body) > webhooks.MaxResponseBytes {
		return nil, apperrors.New(apperrors.KindTransport,
			fmt.Sprintf("provider response exceeds %d bytes", webhooks.MaxResponseBytes))
	}

	logger.Info().Int("status", resp.StatusCode).Dur("duration", time.Since(start)).Msg("provider request completed")
	return &webhooks.Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func (p *Proxy) build(ctx context.Context, provider *Provider, action Action, fields map[string]string, r Request) (*http.Request, error) {
	path, rawPath, err := expandPath(action.Path, fields)
	if err != nil {
		return nil, err
	}

	secret := func(name string) (string, error) {
		v, ok := fields[name]
		if !ok {
			return "", apperrors.New(apperrors.KindProviderNotConfigured, "credential is missing field "+name)
		}
		return v, nil
	}

	target := *provider.BaseURL
	basePath := strings.TrimRight(target.EscapedPath(), "/")
	target.Path = strings.TrimRight(target.Path, "/") + path
	target.RawPath = basePath + rawPath

	query := url.Values{}
	for k, vs := range r.Query {
		query[k] = append([]string(nil), vs...)
	}
	if provider.Auth.Scheme == SchemeQuery {
		v, err := secret(provider.Auth.Field)
		if err != nil {
			return nil, err
		}
		query.Set(provider.Auth.Param, v)
	}
	target.RawQuery = query.Encode()

	var body io.Reader
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, action.Method, target.String(), body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindTransport, "invalid provider url", err)
	}
	if len(r.Body) > 0 {
		ct := r.ContentType
		if ct == "" {
			ct = "application/json"
		}
		req.Header.Set("Content-Type", ct)
	}
	req.Header.Set("User-Agent", "Switchboard-Proxy/1.0")

	switch provider.Auth.Scheme {
	case SchemeBearer, SchemeHeader:
		v, err := secret(provider.Auth.Field)
		if err != nil {
			return nil, err
		}
		if provider.Auth.Scheme == SchemeBearer {
			req.Header.Set("Authorization", "Bearer "+v)
		} else {
			req.Header.Set(provider.Auth.Header, v)
		}
	case SchemeBasic:
		user, err := secret(provider.Auth.UsernameField)
		if err != nil {
			return nil, err
		}
		pass, err := secret(provider.Auth.PasswordField)
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(user, pass)
	}
	return req, nil
}

func (p *Proxy) classify(ctx context.Context, err error) error {
	if webhooks.Exceeded(ctx) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(apperrors.KindTimeout,
			fmt.Sprintf("provider did not respond within %dms", p.cfg.Timeout.Milliseconds()), err)
	}
	return apperrors.Wrap(apperrors.KindTransport, "provider request failed", err)
}
