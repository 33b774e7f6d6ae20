// Package memory is an in-process implementation of the repository
// interfaces for tests and local runs without SQLite.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"switchboard/internal/engine/vault"
	apperrors "switchboard/internal/pkg/errors"
	"switchboard/internal/platform/models"
)

type Store struct {
	mu            sync.RWMutex
	tenants       map[string]*models.Tenant
	agents        map[string]string
	registrations map[string]*models.Registration
	calls         []*models.CallRecord
	daily         map[string]*models.DailyCallStat
	dailyTenant   map[string]string
	credentials   map[string]*models.CredentialRecord
}

func New() *Store {
	return &Store{
		tenants:       map[string]*models.Tenant{},
		agents:        map[string]string{},
		registrations: map[string]*models.Registration{},
		daily:         map[string]*models.DailyCallStat{},
		dailyTenant:   map[string]string{},
		credentials:   map[string]*models.CredentialRecord{},
	}
}

func (s *Store) AddTenant(t *models.Tenant, agentIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.tenants[t.ID] = &cp
	for _, id := range agentIDs {
		s.agents[id] = t.ID
	}
}

func (s *Store) GetTenant(_ context.Context, id string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (s *Store) GetTenantByAgent(ctx context.Context, agentID string) (*models.Tenant, error) {
	s.mu.RLock()
	tenantID, ok := s.agents[agentID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return s.GetTenant(ctx, tenantID)
}

func (s *Store) CreateRegistration(_ context.Context, reg *models.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.registrations[reg.ID]; exists {
		return apperrors.New(apperrors.KindConflict, "registration already exists")
	}
	if err := s.checkUniqueLocked(reg); err != nil {
		return err
	}
	s.registrations[reg.ID] = cloneRegistration(reg)
	return nil
}

func (s *Store) UpdateRegistration(_ context.Context, reg *models.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.registrations[reg.ID]
	if !ok || current.TenantID != reg.TenantID {
		return nil
	}
	if err := s.checkUniqueLocked(reg); err != nil {
		return err
	}
	next := cloneRegistration(reg)
	next.TotalCalls = current.TotalCalls
	next.SuccessfulCalls = current.SuccessfulCalls
	next.FailedCalls = current.FailedCalls
	next.LastCalledAt = current.LastCalledAt
	s.registrations[reg.ID] = next
	return nil
}

func (s *Store) checkUniqueLocked(reg *models.Registration) error {
	for _, other := range s.registrations {
		if other.ID == reg.ID || other.TenantID != reg.TenantID {
			continue
		}
		if other.Name == reg.Name {
			return apperrors.New(apperrors.KindConflict, "registration name already in use")
		}
		if reg.Kind == models.KindFunctionCall && reg.Active &&
			other.Kind == models.KindFunctionCall && other.Active && other.FunctionName == reg.FunctionName {
			return apperrors.New(apperrors.KindConflict, "an active registration already handles function "+reg.FunctionName)
		}
	}
	return nil
}

func (s *Store) DeleteRegistration(_ context.Context, tenantID, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.registrations[id]
	if !ok || reg.TenantID != tenantID {
		return false, nil
	}
	delete(s.registrations, id)

	kept := s.calls[:0]
	for _, c := range s.calls {
		if c.RegistrationID != id {
			kept = append(kept, c)
		}
	}
	s.calls = kept
	for key, d := range s.daily {
		if d.RegistrationID == id {
			delete(s.daily, key)
			delete(s.dailyTenant, key)
		}
	}
	return true, nil
}

func (s *Store) GetRegistration(_ context.Context, tenantID, id string) (*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.registrations[id]
	if !ok || reg.TenantID != tenantID {
		return nil, nil
	}
	return cloneRegistration(reg), nil
}

func (s *Store) ListRegistrations(_ context.Context, tenantID string) ([]*models.Registration, error) {
	return s.filter(func(r *models.Registration) bool { return r.TenantID == tenantID }), nil
}

func (s *Store) FindActiveFunction(_ context.Context, tenantID, functionName string) (*models.Registration, error) {
	regs := s.filter(func(r *models.Registration) bool {
		return r.TenantID == tenantID && r.Active && r.Kind == models.KindFunctionCall && r.FunctionName == functionName
	})
	if len(regs) == 0 {
		return nil, nil
	}
	return regs[0], nil
}

func (s *Store) FindActiveEvent(_ context.Context, tenantID, eventType string) ([]*models.Registration, error) {
	return s.filter(func(r *models.Registration) bool {
		return r.TenantID == tenantID && r.Active && r.Kind == models.KindEventListener &&
			(r.EventType == eventType || r.EventType == models.WildcardEvent)
	}), nil
}

func (s *Store) filter(keep func(*models.Registration) bool) []*models.Registration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Registration
	for _, r := range s.registrations {
		if keep(r) {
			out = append(out, cloneRegistration(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) RecordCall(_ context.Context, rec *models.CallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.registrations[rec.RegistrationID]
	if !ok || reg.TenantID != rec.TenantID {
		return apperrors.New(apperrors.KindNotFound, "registration not found")
	}
	reg.TotalCalls++
	if rec.Success {
		reg.SuccessfulCalls++
	} else {
		reg.FailedCalls++
	}
	at := rec.CreatedAt
	reg.LastCalledAt = &at

	cp := *rec
	s.calls = append(s.calls, &cp)
	return nil
}

func (s *Store) Summarize(_ context.Context, tenantID string, from, to int64) (*models.CallSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	summary := &models.CallSummary{}
	var duration int64
	for _, c := range s.calls {
		if c.TenantID != tenantID || c.CreatedAt < from || c.CreatedAt >= to {
			continue
		}
		summary.TotalCalls++
		duration += c.DurationMs
		if c.Success {
			summary.SuccessfulCalls++
		} else {
			summary.FailedCalls++
		}
	}
	if summary.TotalCalls > 0 {
		summary.AverageResponseTimeMs = float64(duration) / float64(summary.TotalCalls)
	}
	return summary, nil
}

func (s *Store) ListCalls(_ context.Context, tenantID, registrationID string, limit int) ([]*models.CallRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.CallRecord
	for i := len(s.calls) - 1; i >= 0 && len(out) < limit; i-- {
		c := s.calls[i]
		if c.TenantID == tenantID && c.RegistrationID == registrationID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) RollupDaily(_ context.Context, day time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	from, to := start.UnixMilli(), start.AddDate(0, 0, 1).UnixMilli()
	date := start.Format("2006-01-02")

	durations := map[string]int64{}
	fresh := map[string]*models.DailyCallStat{}
	for _, c := range s.calls {
		if c.CreatedAt < from || c.CreatedAt >= to {
			continue
		}
		key := c.RegistrationID + "|" + date
		stat, ok := fresh[key]
		if !ok {
			stat = &models.DailyCallStat{RegistrationID: c.RegistrationID, Date: date}
			fresh[key] = stat
			s.dailyTenant[key] = c.TenantID
		}
		stat.TotalCalls++
		durations[key] += c.DurationMs
		if c.Success {
			stat.SuccessfulCalls++
		} else {
			stat.FailedCalls++
		}
	}
	for key, stat := range fresh {
		stat.AverageResponseTimeMs = float64(durations[key]) / float64(stat.TotalCalls)
		s.daily[key] = stat
	}
	return int64(len(fresh)), nil
}

func (s *Store) ListDaily(_ context.Context, tenantID, registrationID, fromDate, toDate string) ([]*models.DailyCallStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.DailyCallStat
	for key, d := range s.daily {
		if s.dailyTenant[key] != tenantID || d.RegistrationID != registrationID || d.Date < fromDate || d.Date > toDate {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (s *Store) PutCredential(_ context.Context, c *models.CredentialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := c.TenantID + "|" + c.Provider
	cp := cloneCredential(c)
	if existing, ok := s.credentials[key]; ok {
		cp.ID = existing.ID
		cp.CreatedAt = existing.CreatedAt
	}
	s.credentials[key] = cp
	return nil
}

func (s *Store) GetCredential(_ context.Context, tenantID, provider string) (*models.CredentialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.credentials[tenantID+"|"+provider]
	if !ok {
		return nil, nil
	}
	return cloneCredential(c), nil
}

func (s *Store) ListCredentials(_ context.Context, tenantID string) ([]*models.CredentialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.CredentialRecord
	for _, c := range s.credentials {
		if c.TenantID == tenantID {
			out = append(out, cloneCredential(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}

func (s *Store) DeleteCredential(_ context.Context, tenantID, provider string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := tenantID + "|" + provider
	if _, ok := s.credentials[key]; !ok {
		return false, nil
	}
	delete(s.credentials, key)
	return true, nil
}

// Calls returns a snapshot of every recorded call.
func (s *Store) Calls() []*models.CallRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.CallRecord, len(s.calls))
	for i, c := range s.calls {
		cp := *c
		out[i] = &cp
	}
	return out
}

func cloneRegistration(r *models.Registration) *models.Registration {
	cp := *r
	if r.AuthToken != nil {
		token := *r.AuthToken
		cp.AuthToken = &token
	}
	if r.LastCalledAt != nil {
		at := *r.LastCalledAt
		cp.LastCalledAt = &at
	}
	return &cp
}

func cloneCredential(c *models.CredentialRecord) *models.CredentialRecord {
	cp := *c
	cp.Secrets = make(map[string]vault.Sealed, len(c.Secrets))
	for k, v := range c.Secrets {
		cp.Secrets[k] = v
	}
	return &cp
}
