package repositories

import (
	"context"
	"database/sql"

	"switchboard/internal/engine/vault"
	"switchboard/internal/platform/models"
)

const registrationColumns = `id, tenant_id, name, kind, event_type, function_name, target_url,
	auth_token_ciphertext, auth_token_nonce, auth_token_tag, active, response_timeout_ms, retry_on_failure,
	total_calls, successful_calls, failed_calls, last_called_at, created_at, updated_at`

type RegistrationRepository struct {
	db *sql.DB
}

func NewRegistrationRepository(db *sql.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

func (r *RegistrationRepository) CreateRegistration(ctx context.Context, reg *models.Registration) error {
	ct, nonce, tag := sealedColumns(reg.AuthToken)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_registrations (id, tenant_id, name, kind, event_type, function_name, target_url,
			auth_token_ciphertext, auth_token_nonce, auth_token_tag, active, response_timeout_ms, retry_on_failure,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, reg.ID, reg.TenantID, reg.Name, string(reg.Kind), nullString(reg.EventType), nullString(reg.FunctionName), reg.TargetURL,
		ct, nonce, tag, boolToInt(reg.Active), reg.ResponseTimeoutMs, boolToInt(reg.RetryOnFailure),
		reg.CreatedAt, reg.UpdatedAt)
	return conflict(err, "registration conflicts with an existing registration")
}

// UpdateRegistration rewrites the configurable columns. Counters are only
// ever changed by RecordCall.
func (r *RegistrationRepository) UpdateRegistration(ctx context.Context, reg *models.Registration) error {
	ct, nonce, tag := sealedColumns(reg.AuthToken)
	_, err := r.db.ExecContext(ctx, `
		UPDATE webhook_registrations
		SET name = ?, event_type = ?, function_name = ?, target_url = ?,
			auth_token_ciphertext = ?, auth_token_nonce = ?, auth_token_tag = ?,
			active = ?, response_timeout_ms = ?, retry_on_failure = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ?
	`, reg.Name, nullString(reg.EventType), nullString(reg.FunctionName), reg.TargetURL,
		ct, nonce, tag,
		boolToInt(reg.Active), reg.ResponseTimeoutMs, boolToInt(reg.RetryOnFailure), reg.UpdatedAt,
		reg.ID, reg.TenantID)
	return conflict(err, "registration conflicts with an existing registration")
}

// DeleteRegistration removes the registration together with its call
// records and daily rollups.
func (r *RegistrationRepository) DeleteRegistration(ctx context.Context, tenantID, id string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM call_records WHERE registration_id = ? AND tenant_id = ?`, id, tenantID); err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM daily_call_stats WHERE registration_id = ? AND tenant_id = ?`, id, tenantID); err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM webhook_registrations WHERE id = ? AND tenant_id = ?`, id, tenantID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n > 0, tx.Commit()
}

func (r *RegistrationRepository) GetRegistration(ctx context.Context, tenantID, id string) (*models.Registration, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+registrationColumns+`
		FROM webhook_registrations WHERE id = ? AND tenant_id = ?`, id, tenantID)
	return scanOptionalRegistration(row)
}

func (r *RegistrationRepository) ListRegistrations(ctx context.Context, tenantID string) ([]*models.Registration, error) {
	return r.query(ctx, `SELECT `+registrationColumns+`
		FROM webhook_registrations WHERE tenant_id = ? ORDER BY created_at DESC, id`, tenantID)
}

func (r *RegistrationRepository) FindActiveFunction(ctx context.Context, tenantID, functionName string) (*models.Registration, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+registrationColumns+`
		FROM webhook_registrations
		WHERE tenant_id = ? AND kind = 'function_call' AND function_name = ? AND active = 1`, tenantID, functionName)
	return scanOptionalRegistration(row)
}

// FindActiveEvent returns exact and wildcard listeners for eventType.
func (r *RegistrationRepository) FindActiveEvent(ctx context.Context, tenantID, eventType string) ([]*models.Registration, error) {
	return r.query(ctx, `SELECT `+registrationColumns+`
		FROM webhook_registrations
		WHERE tenant_id = ? AND kind = 'event_listener' AND active = 1 AND event_type IN (?, ?)
		ORDER BY created_at, id`, tenantID, eventType, models.WildcardEvent)
}

func (r *RegistrationRepository) query(ctx context.Context, query string, args ...any) ([]*models.Registration, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regs []*models.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

func scanOptionalRegistration(row *sql.Row) (*models.Registration, error) {
	reg, err := scanRegistration(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return reg, err
}

func scanRegistration(s scanner) (*models.Registration, error) {
	var reg models.Registration
	var kind string
	var eventType, functionName sql.NullString
	var ct, nonce, tag []byte
	var active, retry int
	var lastCalledAt sql.NullInt64

	err := s.Scan(&reg.ID, &reg.TenantID, &reg.Name, &kind, &eventType, &functionName, &reg.TargetURL,
		&ct, &nonce, &tag, &active, &reg.ResponseTimeoutMs, &retry,
		&reg.TotalCalls, &reg.SuccessfulCalls, &reg.FailedCalls, &lastCalledAt, &reg.CreatedAt, &reg.UpdatedAt)
	if err != nil {
		return nil, err
	}

	reg.Kind = models.RegistrationKind(kind)
	reg.EventType = eventType.String
	reg.FunctionName = functionName.String
	reg.Active = active == 1
	reg.RetryOnFailure = retry == 1
	if len(ct) > 0 || len(tag) > 0 {
		reg.AuthToken = &vault.Sealed{Ciphertext: ct, Nonce: nonce, Tag: tag}
	}
	if lastCalledAt.Valid {
		reg.LastCalledAt = &lastCalledAt.Int64
	}
	return &reg, nil
}

func sealedColumns(s *vault.Sealed) (ct, nonce, tag []byte) {
	if s == nil {
		return nil, nil, nil
	}
	return s.Ciphertext, s.Nonce, s.Tag
}
