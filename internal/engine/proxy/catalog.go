package proxy

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	apperrors "switchboard/internal/pkg/errors"
	"switchboard/internal/platform/config"
)

// Auth schemes a provider may use for the tenant credential.
const (
	SchemeBearer = "bearer"
	SchemeHeader = "header"
	SchemeBasic  = "basic"
	SchemeQuery  = "query"
)

const defaultCredentialField = "api_key"

var placeholder = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

type Action struct {
	Method string
	Path   string
}

type Provider struct {
	Name    string
	BaseURL *url.URL
	Auth    config.ProviderAuthConfig
	Actions map[string]Action
}

// Catalog is the static set of providers the proxy can reach.
type Catalog struct {
	providers map[string]*Provider
}

func NewCatalog(providers map[string]config.ProviderConfig) (*Catalog, error) {
	c := &Catalog{providers: make(map[string]*Provider, len(providers))}

	for name, pc := range providers {
		base, err := url.Parse(strings.TrimRight(pc.BaseURL, "/"))
		if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
			return nil, fmt.Errorf("provider %s: invalid base_url %q", name, pc.BaseURL)
		}

		auth := pc.Auth
		auth.Scheme = strings.ToLower(auth.Scheme)
		if auth.Scheme == "" {
			auth.Scheme = SchemeBearer
		}
		switch auth.Scheme {
		case SchemeBearer, SchemeQuery:
		case SchemeHeader:
			if auth.Header == "" {
				return nil, fmt.Errorf("provider %s: header scheme requires auth.header", name)
			}
		case SchemeBasic:
			if auth.UsernameField == "" {
				auth.UsernameField = "username"
			}
			if auth.PasswordField == "" {
				auth.PasswordField = "password"
			}
		default:
			return nil, fmt.Errorf("provider %s: unsupported auth scheme %q", name, pc.Auth.Scheme)
		}
		if auth.Field == "" {
			auth.Field = defaultCredentialField
		}
		if auth.Scheme == SchemeQuery && auth.Param == "" {
			auth.Param = auth.Field
		}

		p := &Provider{Name: name, BaseURL: base, Auth: auth, Actions: make(map[string]Action, len(pc.Actions))}
		for actionName, ac := range pc.Actions {
			method := strings.ToUpper(ac.Method)
			if method == "" {
				method = http.MethodPost
			}
			p.Actions[actionName] = Action{Method: method, Path: "/" + strings.TrimLeft(ac.Path, "/")}
		}
		c.providers[name] = p
	}

	return c, nil
}

func (c *Catalog) Lookup(provider, action string) (*Provider, Action, error) {
	p, ok := c.providers[provider]
	if !ok {
		return nil, Action{}, apperrors.New(apperrors.KindNotConfigured, "unknown provider "+provider)
	}
	a, ok := p.Actions[action]
	if !ok {
		return nil, Action{}, apperrors.New(apperrors.KindNotConfigured, "unknown action "+action+" for provider "+provider)
	}
	return p, a, nil
}

// Providers lists the configured provider names.
func (c *Catalog) Providers() []string {
	names := make([]string, 0, len(c.providers))
	for n := range c.providers {
		names = append(names, n)
	}
	return names
}

// expandPath fills {field} placeholders from the decrypted credential. It
// returns both the decoded path and its escaped form.
func expandPath(path string, fields map[string]string) (string, string, error) {
	var missing string
	fill := func(escape func(string) string) string {
		return placeholder.ReplaceAllStringFunc(path, func(m string) string {
			name := m[1 : len(m)-1]
			v, ok := fields[name]
			if !ok {
				missing = name
				return m
			}
			return escape(v)
		})
	}

	decoded := fill(func(s string) string { return s })
	if missing != "" {
		return "", "", apperrors.New(apperrors.KindProviderNotConfigured, "credential is missing field "+missing)
	}
	return decoded, fill(url.PathEscape), nil
}
