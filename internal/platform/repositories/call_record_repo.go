package repositories

import (
	"context"
	"database/sql"
	"time"

	apperrors "switchboard/internal/pkg/errors"
	"switchboard/internal/platform/models"
)

type CallRecordRepository struct {
	db *sql.DB
}

func NewCallRecordRepository(db *sql.DB) *CallRecordRepository {
	return &CallRecordRepository{db: db}
}

// RecordCall bumps the registration counters with a single atomic UPDATE
// and appends the call record in the same transaction.
func (r *CallRecordRepository) RecordCall(ctx context.Context, rec *models.CallRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	success, failed := 0, 1
	if rec.Success {
		success, failed = 1, 0
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE webhook_registrations
		SET total_calls = total_calls + 1,
			successful_calls = successful_calls + ?,
			failed_calls = failed_calls + ?,
			last_called_at = ?
		WHERE id = ? AND tenant_id = ?
	`, success, failed, rec.CreatedAt, rec.RegistrationID, rec.TenantID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		// Registration deleted while the call was in flight.
		return apperrors.New(apperrors.KindNotFound, "registration not found")
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO call_records (id, registration_id, tenant_id, direction, request_payload, response_body,
			status_code, duration_ms, success, error_message, attempts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.RegistrationID, rec.TenantID, string(rec.Direction), nullString(string(rec.RequestPayload)), nullString(rec.ResponseBody),
		rec.StatusCode, rec.DurationMs, boolToInt(rec.Success), nullString(rec.ErrorMessage), rec.Attempts, rec.CreatedAt)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Summarize aggregates call records for a tenant over [from, to) in unix millis.
func (r *CallRecordRepository) Summarize(ctx context.Context, tenantID string, from, to int64) (*models.CallSummary, error) {
	summary := &models.CallSummary{}
	var avg sql.NullFloat64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0),
			AVG(duration_ms)
		FROM call_records
		WHERE tenant_id = ? AND created_at >= ? AND created_at < ?
	`, tenantID, from, to).Scan(&summary.TotalCalls, &summary.SuccessfulCalls, &summary.FailedCalls, &avg)
	if err != nil {
		return nil, err
	}
	summary.AverageResponseTimeMs = avg.Float64
	return summary, nil
}

func (r *CallRecordRepository) ListCalls(ctx context.Context, tenantID, registrationID string, limit int) ([]*models.CallRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, registration_id, tenant_id, direction, request_payload, response_body,
			status_code, duration_ms, success, error_message, attempts, created_at
		FROM call_records
		WHERE tenant_id = ? AND registration_id = ?
		ORDER BY created_at DESC, id
		LIMIT ?
	`, tenantID, registrationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.CallRecord
	for rows.Next() {
		var rec models.CallRecord
		var direction string
		var payload, body, errMsg sql.NullString
		var success int
		if err := rows.Scan(&rec.ID, &rec.RegistrationID, &rec.TenantID, &direction, &payload, &body,
			&rec.StatusCode, &rec.DurationMs, &success, &errMsg, &rec.Attempts, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Direction = models.RegistrationKind(direction)
		if payload.Valid {
			rec.RequestPayload = []byte(payload.String)
		}
		rec.ResponseBody = body.String
		rec.Success = success == 1
		rec.ErrorMessage = errMsg.String
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// RollupDaily recomputes the daily_call_stats rows for the UTC day.
func (r *CallRecordRepository) RollupDaily(ctx context.Context, day time.Time) (int64, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO daily_call_stats (registration_id, tenant_id, date, total_calls, successful_calls, failed_calls, avg_duration_ms)
		SELECT registration_id, tenant_id, ?, COUNT(*),
			SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END),
			SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END),
			AVG(duration_ms)
		FROM call_records
		WHERE created_at >= ? AND created_at < ?
		GROUP BY registration_id, tenant_id
		ON CONFLICT (registration_id, date) DO UPDATE SET
			total_calls = excluded.total_calls,
			successful_calls = excluded.successful_calls,
			failed_calls = excluded.failed_calls,
			avg_duration_ms = excluded.avg_duration_ms
	`, start.Format("2006-01-02"), start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *CallRecordRepository) ListDaily(ctx context.Context, tenantID, registrationID, fromDate, toDate string) ([]*models.DailyCallStat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT registration_id, date, total_calls, successful_calls, failed_calls, avg_duration_ms
		FROM daily_call_stats
		WHERE tenant_id = ? AND registration_id = ? AND date >= ? AND date <= ?
		ORDER BY date
	`, tenantID, registrationID, fromDate, toDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []*models.DailyCallStat
	for rows.Next() {
		var s models.DailyCallStat
		if err := rows.Scan(&s.RegistrationID, &s.Date, &s.TotalCalls, &s.SuccessfulCalls, &s.FailedCalls, &s.AverageResponseTimeMs); err != nil {
			return nil, err
		}
		stats = append(stats, &s)
	}
	return stats, rows.Err()
}
