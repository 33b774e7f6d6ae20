package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID           string                 `json:"id"`
	TenantID     string                 `json:"tenant_id"`
	UserID       string                 `json:"user_id,omitempty"`
	Action       string                 `json:"action"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id,omitempty"`
	Changes      map[string]interface{} `json:"changes,omitempty"`
	IPAddress    string                 `json:"ip_address,omitempty"`
	UserAgent    string                 `json:"user_agent,omitempty"`
	CreatedAt    int64                  `json:"created_at"`
}

type Logger struct {
	db *sql.DB
}

func NewLogger(db *sql.DB) *Logger {
	return &Logger{db: db}
}

// Log appends an entry. Changes must never carry secret values.
func (l *Logger) Log(ctx context.Context, entry *AuditLog) error {
	if entry.ID == "" {
		entry.ID = "audit_" + uuid.New().String()
	}
	if entry.CreatedAt == 0 {
		entry.CreatedAt = time.Now().Unix()
	}

	var changes []byte
	if len(entry.Changes) > 0 {
		var err error
		if changes, err = json.Marshal(entry.Changes); err != nil {
			return err
		}
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, tenant_id, user_id, action, resource_type, resource_id, changes, ip_address, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.TenantID, entry.UserID, entry.Action, entry.ResourceType, entry.ResourceID,
		string(changes), entry.IPAddress, entry.UserAgent, entry.CreatedAt)
	return err
}

func (l *Logger) List(ctx context.Context, tenantID string, limit int) ([]*AuditLog, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, tenant_id, user_id, action, resource_type, resource_id, changes, ip_address, user_agent, created_at
		FROM audit_logs WHERE tenant_id = ? ORDER BY created_at DESC, id LIMIT ?
	`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*AuditLog
	for rows.Next() {
		var e AuditLog
		var userID, resourceID, changes, ip, ua sql.NullString
		if err := rows.Scan(&e.ID, &e.TenantID, &userID, &e.Action, &e.ResourceType, &resourceID, &changes, &ip, &ua, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.UserID = userID.String
		e.ResourceID = resourceID.String
		e.IPAddress = ip.String
		e.UserAgent = ua.String
		if changes.String != "" {
			json.Unmarshal([]byte(changes.String), &e.Changes)
		}
		logs = append(logs, &e)
	}
	return logs, rows.Err()
}
