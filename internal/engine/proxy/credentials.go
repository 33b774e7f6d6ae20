package proxy

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"switchboard/internal/engine/vault"
	apperrors "switchboard/internal/pkg/errors"
	"switchboard/internal/platform/models"
)

// CredentialStore persists sealed provider credentials. Lookups return
// nil, nil when nothing is stored.
type CredentialStore interface {
	PutCredential(ctx context.Context, c *models.CredentialRecord) error
	GetCredential(ctx context.Context, tenantID, provider string) (*models.CredentialRecord, error)
	ListCredentials(ctx context.Context, tenantID string) ([]*models.CredentialRecord, error)
	DeleteCredential(ctx context.Context, tenantID, provider string) (bool, error)
}

type Cipher interface {
	Encrypt(plaintext string) (vault.Sealed, error)
	Decrypt(s vault.Sealed) (string, error)
}

// MaskedCredential is the admin view of a record. Values are masked.
type MaskedCredential struct {
	Provider  string            `json:"provider"`
	Fields    map[string]string `json:"fields"`
	CreatedAt int64             `json:"created_at"`
	UpdatedAt int64             `json:"updated_at"`
}

// Credentials manages tenant credentials for catalog providers.
type Credentials struct {
	store   CredentialStore
	cipher  Cipher
	catalog *Catalog
}

func NewCredentials(store CredentialStore, cipher Cipher, catalog *Catalog) *Credentials {
	return &Credentials{store: store, cipher: cipher, catalog: catalog}
}

// Put seals every field and replaces the stored record for provider.
func (c *Credentials) Put(ctx context.Context, tenantID, provider string, fields map[string]string) (*MaskedCredential, error) {
	if _, ok := c.catalog.providers[provider]; !ok {
		return nil, apperrors.New(apperrors.KindNotConfigured, "unknown provider "+provider)
	}
	if len(fields) == 0 {
		return nil, apperrors.New(apperrors.KindInvalidInput, "at least one credential field is required")
	}

	secrets := make(map[string]vault.Sealed, len(fields))
	for name, value := range fields {
		if strings.TrimSpace(name) == "" {
			return nil, apperrors.New(apperrors.KindInvalidInput, "credential field names cannot be empty")
		}
		sealed, err := c.cipher.Encrypt(value)
		if err != nil {
			return nil, err
		}
		secrets[name] = sealed
	}

	now := time.Now().Unix()
	rec := &models.CredentialRecord{
		ID:        "cred_" + uuid.New().String(),
		TenantID:  tenantID,
		Provider:  provider,
		Secrets:   secrets,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing, err := c.store.GetCredential(ctx, tenantID, provider); err != nil {
		return nil, err
	} else if existing != nil {
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
	}

	if err := c.store.PutCredential(ctx, rec); err != nil {
		return nil, err
	}
	return c.mask(rec)
}

func (c *Credentials) List(ctx context.Context, tenantID string) ([]*MaskedCredential, error) {
	recs, err := c.store.ListCredentials(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	out := make([]*MaskedCredential, 0, len(recs))
	for _, rec := range recs {
		m, err := c.mask(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}

func (c *Credentials) Delete(ctx context.Context, tenantID, provider string) error {
	ok, err := c.store.DeleteCredential(ctx, tenantID, provider)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.New(apperrors.KindProviderNotConfigured, "no credential stored for provider "+provider)
	}
	return nil
}

// open decrypts every field of the tenant's credential for provider.
func (c *Credentials) open(ctx context.Context, tenantID, provider string) (map[string]string, error) {
	rec, err := c.store.GetCredential(ctx, tenantID, provider)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "credential lookup failed", err)
	}
	if rec == nil {
		return nil, apperrors.New(apperrors.KindProviderNotConfigured, "no credential stored for provider "+provider)
	}

	fields := make(map[string]string, len(rec.Secrets))
	for name, sealed := range rec.Secrets {
		plain, err := c.cipher.Decrypt(sealed)
		if err != nil {
			return nil, err
		}
		fields[name] = plain
	}
	return fields, nil
}

func (c *Credentials) mask(rec *models.CredentialRecord) (*MaskedCredential, error) {
	m := &MaskedCredential{
		Provider:  rec.Provider,
		Fields:    make(map[string]string, len(rec.Secrets)),
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	for name, sealed := range rec.Secrets {
		plain, err := c.cipher.Decrypt(sealed)
		if err != nil {
			return nil, err
		}
		m.Fields[name] = vault.Mask(plain)
	}
	return m, nil
}
