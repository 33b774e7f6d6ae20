package registry

import (
	"context"
	"time"

	"github.com/google/uuid"

	apperrors "switchboard/internal/pkg/errors"
	"switchboard/internal/platform/models"
)

// Input carries the operator-supplied fields of a registration. Nil
// pointers leave the current value unchanged on Update.
type Input struct {
	Name              *string                  `json:"name"`
	Kind              *models.RegistrationKind `json:"kind"`
	EventType         *string                  `json:"event_type"`
	FunctionName      *string                  `json:"function_name"`
	TargetURL         *string                  `json:"target_url"`
	AuthToken         *string                  `json:"auth_token"`
	Active            *bool                    `json:"active"`
	ResponseTimeoutMs *int                     `json:"response_timeout_ms"`
	RetryOnFailure    *bool                    `json:"retry_on_failure"`
}

type Service struct {
	store  Store
	sealer Sealer
}

func NewService(store Store, sealer Sealer) *Service {
	return &Service{store: store, sealer: sealer}
}

func (s *Service) Create(ctx context.Context, tenantID string, in *Input) (*models.Registration, error) {
	now := time.Now().Unix()
	reg := &models.Registration{
		ID:        "reg_" + uuid.New().String(),
		TenantID:  tenantID,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.apply(reg, in); err != nil {
		return nil, err
	}
	if err := Validate(reg); err != nil {
		return nil, err
	}
	if err := s.checkFunctionUnique(ctx, reg); err != nil {
		return nil, err
	}

	if err := s.store.CreateRegistration(ctx, reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// Update applies in to the stored registration. Kind is immutable.
func (s *Service) Update(ctx context.Context, tenantID, id string, in *Input) (*models.Registration, error) {
	reg, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if in.Kind != nil && *in.Kind != reg.Kind {
		return nil, invalid("kind cannot be changed")
	}
	if err := s.apply(reg, in); err != nil {
		return nil, err
	}
	if err := Validate(reg); err != nil {
		return nil, err
	}
	if err := s.checkFunctionUnique(ctx, reg); err != nil {
		return nil, err
	}

	reg.UpdatedAt = time.Now().Unix()
	if err := s.store.UpdateRegistration(ctx, reg); err != nil {
		return nil, err
	}
	return reg, nil
}

func (s *Service) Delete(ctx context.Context, tenantID, id string) error {
	deleted, err := s.store.DeleteRegistration(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if !deleted {
		return apperrors.New(apperrors.KindNotFound, "registration not found")
	}
	return nil
}

func (s *Service) Get(ctx context.Context, tenantID, id string) (*models.Registration, error) {
	reg, err := s.store.GetRegistration(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, apperrors.New(apperrors.KindNotFound, "registration not found")
	}
	return reg, nil
}

func (s *Service) List(ctx context.Context, tenantID string) ([]*models.Registration, error) {
	return s.store.ListRegistrations(ctx, tenantID)
}

// GetByFunction returns the active function-call registration or nil.
func (s *Service) GetByFunction(ctx context.Context, tenantID, functionName string) (*models.Registration, error) {
	return s.store.FindActiveFunction(ctx, tenantID, functionName)
}

// GetByEvent returns active listeners for eventType plus wildcard listeners.
func (s *Service) GetByEvent(ctx context.Context, tenantID, eventType string) ([]*models.Registration, error) {
	return s.store.FindActiveEvent(ctx, tenantID, eventType)
}

func (s *Service) checkFunctionUnique(ctx context.Context, reg *models.Registration) error {
	if reg.Kind != models.KindFunctionCall || !reg.Active {
		return nil
	}
	existing, err := s.store.FindActiveFunction(ctx, reg.TenantID, reg.FunctionName)
	if err != nil {
		return err
	}
	if existing != nil && existing.ID != reg.ID {
		return apperrors.New(apperrors.KindConflict, "an active registration already handles function "+reg.FunctionName)
	}
	return nil
}

func (s *Service) apply(reg *models.Registration, in *Input) error {
	if in == nil {
		return nil
	}
	if in.Name != nil {
		reg.Name = *in.Name
	}
	if in.Kind != nil {
		reg.Kind = *in.Kind
	}
	if in.EventType != nil {
		reg.EventType = *in.EventType
	}
	if in.FunctionName != nil {
		reg.FunctionName = *in.FunctionName
	}
	if in.TargetURL != nil {
		reg.TargetURL = *in.TargetURL
	}
	if in.Active != nil {
		reg.Active = *in.Active
	}
	if in.ResponseTimeoutMs != nil {
		reg.ResponseTimeoutMs = *in.ResponseTimeoutMs
	}
	if in.RetryOnFailure != nil {
		reg.RetryOnFailure = *in.RetryOnFailure
	}
	if in.AuthToken != nil {
		if *in.AuthToken == "" {
			reg.AuthToken = nil
			return nil
		}
		sealed, err := s.sealer.Encrypt(*in.AuthToken)
		if err != nil {
			return err
		}
		reg.AuthToken = &sealed
	}
	return nil
}
