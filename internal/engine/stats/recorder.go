package stats

import (
	"context"
	"encoding/json"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"switchboard/internal/platform/metrics"
	"switchboard/internal/platform/models"
)

// Store records call outcomes. RecordCall must bump the registration
// counters with an atomic increment and insert the record in one
// transaction.
type Store interface {
	RecordCall(ctx context.Context, rec *models.CallRecord) error
	Summarize(ctx context.Context, tenantID string, from, to int64) (*models.CallSummary, error)
	ListCalls(ctx context.Context, tenantID, registrationID string, limit int) ([]*models.CallRecord, error)
	RollupDaily(ctx context.Context, day time.Time) (int64, error)
	ListDaily(ctx context.Context, tenantID, registrationID, fromDate, toDate string) ([]*models.DailyCallStat, error)
}

// Outcome is the result of one sync invocation or one event dispatch.
type Outcome struct {
	Registration   *models.Registration
	Success        bool
	StatusCode     int
	Duration       time.Duration
	RequestPayload []byte
	Response       []byte
	Error          string
	Attempts       int
}

const truncatedSuffix = "...[truncated]"

type Recorder struct {
	store        Store
	metrics      *metrics.Metrics
	maxBodyBytes int
	now          func() time.Time
}

func NewRecorder(store Store, m *metrics.Metrics, maxBodyBytes int) *Recorder {
	return &Recorder{store: store, metrics: m, maxBodyBytes: maxBodyBytes, now: time.Now}
}

// RecordOutcome persists o as an immutable call record.
func (r *Recorder) RecordOutcome(ctx context.Context, o Outcome) error {
	reg := o.Registration
	attempts := o.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	rec := &models.CallRecord{
		ID:             "call_" + uuid.New().String(),
		RegistrationID: reg.ID,
		TenantID:       reg.TenantID,
		Direction:      reg.Kind,
		RequestPayload: r.payload(o.RequestPayload),
		ResponseBody:   r.truncate(o.Response),
		StatusCode:     o.StatusCode,
		DurationMs:     o.Duration.Milliseconds(),
		Success:        o.Success,
		ErrorMessage:   o.Error,
		Attempts:       attempts,
		CreatedAt:      r.now().UnixMilli(),
	}

	r.metrics.ObserveCall(string(reg.Kind), o.Success, o.Duration)

	if err := r.store.RecordCall(ctx, rec); err != nil {
		log.Ctx(ctx).Error().Err(err).
			Str("component", "stats").
			Str("registration_id", reg.ID).
			Msg("failed to record call outcome")
		return err
	}
	return nil
}

// payload stores the request as JSON when it fits, otherwise as a
// truncated JSON string.
func (r *Recorder) payload(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	if r.maxBodyBytes <= 0 || len(b) <= r.maxBodyBytes {
		return json.RawMessage(b)
	}
	quoted, _ := json.Marshal(r.truncate(b))
	return json.RawMessage(quoted)
}

func (r *Recorder) truncate(b []byte) string {
	if r.maxBodyBytes <= 0 || len(b) <= r.maxBodyBytes {
		return string(b)
	}
	// Back off to a rune start so the cut never splits a multi-byte
	// rune. Invalid bytes before the boundary are kept as they are.
	n := r.maxBodyBytes
	for back := 0; back < utf8.UTFMax-1 && n > 0 && !utf8.RuneStart(b[n]); back++ {
		n--
	}
	return string(b[:n]) + truncatedSuffix
}
