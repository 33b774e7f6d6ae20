package repositories

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"switchboard/internal/engine/vault"
	apperrors "switchboard/internal/pkg/errors"
	"switchboard/internal/platform/config"
	"switchboard/internal/platform/database"
	"switchboard/internal/platform/models"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Path:           filepath.Join(t.TempDir(), "test.db"),
		MaxConnections: 4,
		BusyTimeoutMs:  10000,
	})
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newRegistration(id, tenantID, name string, kind models.RegistrationKind) *models.Registration {
	now := time.Now().Unix()
	reg := &models.Registration{
		ID:                id,
		TenantID:          tenantID,
		Name:              name,
		Kind:              kind,
		TargetURL:         "https://hooks.example.com/" + name,
		Active:            true,
		ResponseTimeoutMs: models.DefaultResponseTimeoutMs,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	return reg
}

func TestRegistrationRepository_CreateAndGet(t *testing.T) {
	repo := NewRegistrationRepository(setupTestDB(t))
	ctx := context.Background()

	reg := newRegistration("reg_1", "t1", "booking", models.KindFunctionCall)
	reg.FunctionName = "book_appointment"
	reg.AuthToken = &vault.Sealed{Ciphertext: []byte{1, 2}, Nonce: []byte{3}, Tag: []byte{4, 5}}

	if err := repo.CreateRegistration(ctx, reg); err != nil {
		t.Fatalf("Failed to create registration: %v", err)
	}

	fetched, err := repo.GetRegistration(ctx, "t1", "reg_1")
	if err != nil {
		t.Fatalf("Failed to get registration: %v", err)
	}
	if fetched == nil || fetched.FunctionName != "book_appointment" {
		t.Fatalf("Expected function book_appointment, got %+v", fetched)
	}
	if !fetched.HasAuthToken() || string(fetched.AuthToken.Tag) != string([]byte{4, 5}) {
		t.Errorf("Expected sealed auth token to round-trip")
	}

	other, err := repo.GetRegistration(ctx, "t2", "reg_1")
	if err != nil {
		t.Fatalf("GetRegistration: %v", err)
	}
	if other != nil {
		t.Error("Expected registration to be invisible to another tenant")
	}
}

func TestRegistrationRepository_FunctionConflict(t *testing.T) {
	repo := NewRegistrationRepository(setupTestDB(t))
	ctx := context.Background()

	first := newRegistration("reg_1", "t1", "first", models.KindFunctionCall)
	first.FunctionName = "lookup"
	second := newRegistration("reg_2", "t1", "second", models.KindFunctionCall)
	second.FunctionName = "lookup"

	if err := repo.CreateRegistration(ctx, first); err != nil {
		t.Fatalf("Create first: %v", err)
	}
	err := repo.CreateRegistration(ctx, second)
	if !apperrors.Is(err, apperrors.KindConflict) {
		t.Fatalf("Expected ConflictError, got %v", err)
	}

	// Same name in another tenant is fine.
	otherTenant := newRegistration("reg_3", "t2", "first", models.KindFunctionCall)
	otherTenant.FunctionName = "lookup"
	if err := repo.CreateRegistration(ctx, otherTenant); err != nil {
		t.Errorf("Expected other tenant create to succeed, got %v", err)
	}
}

func TestRegistrationRepository_FindActiveEvent(t *testing.T) {
	repo := NewRegistrationRepository(setupTestDB(t))
	ctx := context.Background()

	exact := newRegistration("reg_exact", "t1", "exact", models.KindEventListener)
	exact.EventType = "chat_analyzed"
	wildcard := newRegistration("reg_wild", "t1", "wild", models.KindEventListener)
	wildcard.EventType = models.WildcardEvent
	inactive := newRegistration("reg_off", "t1", "off", models.KindEventListener)
	inactive.EventType = "chat_analyzed"
	inactive.Active = false
	otherEvent := newRegistration("reg_other", "t1", "other", models.KindEventListener)
	otherEvent.EventType = "call_ended"
	otherTenant := newRegistration("reg_t2", "t2", "exact", models.KindEventListener)
	otherTenant.EventType = "chat_analyzed"

	for _, reg := range []*models.Registration{exact, wildcard, inactive, otherEvent, otherTenant} {
		if err := repo.CreateRegistration(ctx, reg); err != nil {
			t.Fatalf("Create %s: %v", reg.ID, err)
		}
	}

	regs, err := repo.FindActiveEvent(ctx, "t1", "chat_analyzed")
	if err != nil {
		t.Fatalf("FindActiveEvent: %v", err)
	}

	got := map[string]bool{}
	for _, r := range regs {
		got[r.ID] = true
	}
	if len(regs) != 2 || !got["reg_exact"] || !got["reg_wild"] {
		t.Errorf("Expected exact and wildcard registrations, got %v", got)
	}
}

func TestCallRecordRepository_ConcurrentRecordCall(t *testing.T) {
	db := setupTestDB(t)
	regs := NewRegistrationRepository(db)
	calls := NewCallRecordRepository(db)
	ctx := context.Background()

	reg := newRegistration("reg_1", "t1", "hot", models.KindFunctionCall)
	reg.FunctionName = "hot"
	if err := regs.CreateRegistration(ctx, reg); err != nil {
		t.Fatalf("Create: %v", err)
	}

	const n = 25
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- calls.RecordCall(ctx, &models.CallRecord{
				ID:             "call_" + string(rune('a'+i)),
				RegistrationID: "reg_1",
				TenantID:       "t1",
				Direction:      models.KindFunctionCall,
				StatusCode:     200,
				DurationMs:     10,
				Success:        i%5 != 0,
				Attempts:       1,
				CreatedAt:      time.Now().UnixMilli(),
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("RecordCall: %v", err)
		}
	}

	fetched, _ := regs.GetRegistration(ctx, "t1", "reg_1")
	if fetched.TotalCalls != n {
		t.Errorf("Expected total_calls %d, got %d", n, fetched.TotalCalls)
	}
	if fetched.SuccessfulCalls != 20 || fetched.FailedCalls != 5 {
		t.Errorf("Expected 20/5 split, got %d/%d", fetched.SuccessfulCalls, fetched.FailedCalls)
	}
	if fetched.LastCalledAt == nil {
		t.Error("Expected last_called_at to be set")
	}

	summary, err := calls.Summarize(ctx, "t1", 0, time.Now().Add(time.Hour).UnixMilli())
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary.TotalCalls != n || summary.AverageResponseTimeMs != 10 {
		t.Errorf("Unexpected summary: %+v", summary)
	}
}

func TestCallRecordRepository_RollupAndCascade(t *testing.T) {
	db := setupTestDB(t)
	regs := NewRegistrationRepository(db)
	calls := NewCallRecordRepository(db)
	ctx := context.Background()

	reg := newRegistration("reg_1", "t1", "listener", models.KindEventListener)
	reg.EventType = "*"
	regs.CreateRegistration(ctx, reg)

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	for i, d := range []int64{100, 300} {
		err := calls.RecordCall(ctx, &models.CallRecord{
			ID: "call_" + string(rune('a'+i)), RegistrationID: "reg_1", TenantID: "t1",
			Direction: models.KindEventListener, DurationMs: d, Success: i == 0, Attempts: 1,
			CreatedAt: day.Add(time.Duration(i+1) * time.Hour).UnixMilli(),
		})
		if err != nil {
			t.Fatalf("RecordCall: %v", err)
		}
	}

	if _, err := calls.RollupDaily(ctx, day); err != nil {
		t.Fatalf("RollupDaily: %v", err)
	}
	// Idempotent.
	if _, err := calls.RollupDaily(ctx, day); err != nil {
		t.Fatalf("RollupDaily again: %v", err)
	}

	daily, err := calls.ListDaily(ctx, "t1", "reg_1", "2026-03-01", "2026-03-31")
	if err != nil {
		t.Fatalf("ListDaily: %v", err)
	}
	if len(daily) != 1 || daily[0].TotalCalls != 2 || daily[0].FailedCalls != 1 || daily[0].AverageResponseTimeMs != 200 {
		t.Fatalf("Unexpected daily stats: %+v", daily)
	}

	deleted, err := regs.DeleteRegistration(ctx, "t1", "reg_1")
	if err != nil || !deleted {
		t.Fatalf("DeleteRegistration: %v %v", deleted, err)
	}

	var remaining int
	db.QueryRow(`SELECT COUNT(*) FROM call_records`).Scan(&remaining)
	if remaining != 0 {
		t.Errorf("Expected call records to be deleted, %d remain", remaining)
	}
	db.QueryRow(`SELECT COUNT(*) FROM daily_call_stats`).Scan(&remaining)
	if remaining != 0 {
		t.Errorf("Expected daily stats to be deleted, %d remain", remaining)
	}
}

func TestCallRecordRepository_RecordCallSQL(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE webhook_registrations\s+SET total_calls = total_calls \+ 1,\s+successful_calls = successful_calls \+ \?,\s+failed_calls = failed_calls \+ \?`).
		WithArgs(0, 1, int64(42), "reg_1", "t1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO call_records").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err = NewCallRecordRepository(db).RecordCall(context.Background(), &models.CallRecord{
		ID: "call_1", RegistrationID: "reg_1", TenantID: "t1", Direction: models.KindFunctionCall,
		StatusCode: 504, Success: false, ErrorMessage: "timeout", Attempts: 1, CreatedAt: 42,
	})
	if err != nil {
		t.Fatalf("RecordCall: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestCredentialRepository_PutGetDelete(t *testing.T) {
	repo := NewCredentialRepository(setupTestDB(t))
	ctx := context.Background()

	cred := &models.CredentialRecord{
		ID:       "cred_1",
		TenantID: "t1",
		Provider: "stripe",
		Secrets: map[string]vault.Sealed{
			"api_key": {Ciphertext: []byte("c"), Nonce: []byte("n"), Tag: []byte("t")},
		},
		CreatedAt: 1,
		UpdatedAt: 1,
	}
	if err := repo.PutCredential(ctx, cred); err != nil {
		t.Fatalf("PutCredential: %v", err)
	}

	cred.ID = "cred_2"
	cred.Secrets["account"] = vault.Sealed{Ciphertext: []byte("x"), Nonce: []byte("y"), Tag: []byte("z")}
	cred.UpdatedAt = 2
	if err := repo.PutCredential(ctx, cred); err != nil {
		t.Fatalf("PutCredential upsert: %v", err)
	}

	fetched, err := repo.GetCredential(ctx, "t1", "stripe")
	if err != nil || fetched == nil {
		t.Fatalf("GetCredential: %v %v", fetched, err)
	}
	if fetched.ID != "cred_1" || len(fetched.Secrets) != 2 || string(fetched.Secrets["api_key"].Ciphertext) != "c" {
		t.Errorf("Unexpected credential: %+v", fetched)
	}

	if missing, _ := repo.GetCredential(ctx, "t2", "stripe"); missing != nil {
		t.Error("Expected credential to be invisible to another tenant")
	}

	list, _ := repo.ListCredentials(ctx, "t1")
	if len(list) != 1 {
		t.Errorf("Expected 1 credential, got %d", len(list))
	}

	deleted, err := repo.DeleteCredential(ctx, "t1", "stripe")
	if err != nil || !deleted {
		t.Errorf("DeleteCredential: %v %v", deleted, err)
	}
}

func TestTenantRepository_Lookup(t *testing.T) {
	repo := NewTenantRepository(setupTestDB(t))
	ctx := context.Background()

	repo.UpsertTenant(ctx, &models.Tenant{ID: "t1", Name: "Acme Dental"})
	repo.UpsertAgent(ctx, &models.Agent{AgentID: "agent_1", TenantID: "t1"})

	tenant, err := repo.GetTenantByAgent(ctx, "agent_1")
	if err != nil || tenant == nil || tenant.Name != "Acme Dental" {
		t.Fatalf("GetTenantByAgent: %+v %v", tenant, err)
	}

	missing, err := repo.GetTenantByAgent(ctx, "agent_unknown")
	if err != nil || missing != nil {
		t.Errorf("Expected nil, nil for unknown agent, got %+v %v", missing, err)
	}
}
