package stats

import (
	"context"
	"time"

	apperrors "switchboard/internal/pkg/errors"
	"switchboard/internal/platform/models"
)

const (
	DefaultCallLimit = 50
	MaxCallLimit     = 500
)

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Summarize aggregates the tenant's calls over [from, to).
func (s *Service) Summarize(ctx context.Context, tenantID string, from, to time.Time) (*models.CallSummary, error) {
	if !to.After(from) {
		return nil, apperrors.New(apperrors.KindInvalidInput, "end_date must be after start_date")
	}

	summary, err := s.store.Summarize(ctx, tenantID, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, err
	}
	if summary.TotalCalls > 0 {
		summary.SuccessRate = float64(summary.SuccessfulCalls) / float64(summary.TotalCalls)
	}
	return summary, nil
}

func (s *Service) ListCalls(ctx context.Context, tenantID, registrationID string, limit int) ([]*models.CallRecord, error) {
	switch {
	case limit <= 0:
		limit = DefaultCallLimit
	case limit > MaxCallLimit:
		limit = MaxCallLimit
	}
	return s.store.ListCalls(ctx, tenantID, registrationID, limit)
}

func (s *Service) ListDaily(ctx context.Context, tenantID, registrationID, fromDate, toDate string) ([]*models.DailyCallStat, error) {
	for _, d := range []string{fromDate, toDate} {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return nil, apperrors.New(apperrors.KindInvalidInput, "dates must be formatted YYYY-MM-DD")
		}
	}
	return s.store.ListDaily(ctx, tenantID, registrationID, fromDate, toDate)
}

// RollupDaily recomputes the per-registration aggregates for day (UTC).
func (s *Service) RollupDaily(ctx context.Context, day time.Time) (int64, error) {
	return s.store.RollupDaily(ctx, day.UTC())
}
