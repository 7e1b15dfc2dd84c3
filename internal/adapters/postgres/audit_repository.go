package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kevin07696/commission-service/internal/domain/models"
	"github.com/kevin07696/commission-service/internal/domain/ports"
)

// AuditLogRepository implements ports.AuditLogRepository on pgx. Old
// and new values are stored as JSONB documents.
type AuditLogRepository struct {
	db ports.DBPort
}

// NewAuditLogRepository creates a new audit log repository
func NewAuditLogRepository(db ports.DBPort) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

func (r *AuditLogRepository) executor(tx ports.DBTX) ports.DBTX {
	if tx != nil {
		return tx
	}
	return r.db.GetDB()
}

// Append writes a new audit entry. The trail is append-only; there is
// no update or delete path.
func (r *AuditLogRepository) Append(ctx context.Context, tx ports.DBTX, entry *models.AuditLogEntry) error {
	oldJSON, err := marshalAuditValue(entry.OldValue)
	if err != nil {
		return err
	}
	newJSON, err := marshalAuditValue(entry.NewValue)
	if err != nil {
		return err
	}

	row := r.executor(tx).QueryRow(ctx,
		`INSERT INTO agent_audit_logs (agent_id, action_type, operator_id, old_value, new_value)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		entry.AgentID, string(entry.ActionType), entry.OperatorID, oldJSON, newJSON)

	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return fmt.Errorf("append audit log: %w", err)
	}
	return nil
}

// ListByAgent returns the newest audit entries for an agent. Old and
// new values come back as json.RawMessage.
func (r *AuditLogRepository) ListByAgent(ctx context.Context, db ports.DBTX, agentID int64, limit int) ([]*models.AuditLogEntry, error) {
	rows, err := r.executor(db).Query(ctx,
		`SELECT id, agent_id, action_type, operator_id, old_value, new_value, created_at
		 FROM agent_audit_logs
		 WHERE agent_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var entries []*models.AuditLogEntry
	for rows.Next() {
		entry, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func marshalAuditValue(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal audit value: %w", err)
	}
	return data, nil
}

func scanAuditEntry(row pgx.Row) (*models.AuditLogEntry, error) {
	var (
		entry            models.AuditLogEntry
		actionType       string
		oldJSON, newJSON []byte
	)

	err := row.Scan(&entry.ID, &entry.AgentID, &actionType, &entry.OperatorID,
		&oldJSON, &newJSON, &entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan audit log: %w", err)
	}

	entry.ActionType = models.AuditActionType(actionType)
	if oldJSON != nil {
		entry.OldValue = json.RawMessage(oldJSON)
	}
	if newJSON != nil {
		entry.NewValue = json.RawMessage(newJSON)
	}
	return &entry, nil
}
