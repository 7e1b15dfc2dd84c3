package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/kevin07696/commission-service/internal/domain"
	"github.com/kevin07696/commission-service/internal/domain/models"
	"github.com/kevin07696/commission-service/internal/domain/ports"
)

// AgentRepository implements ports.AgentRepository on pgx
type AgentRepository struct {
	db ports.DBPort
}

// NewAgentRepository creates a new agent repository
func NewAgentRepository(db ports.DBPort) *AgentRepository {
	return &AgentRepository{db: db}
}

func (r *AgentRepository) executor(tx ports.DBTX) ports.DBTX {
	if tx != nil {
		return tx
	}
	return r.db.GetDB()
}

const agentColumns = `id, owner_user_id, status, commission_rate, payout_identity, payout_linked,
	total_earnings, settled_earnings, pending_earnings, invited_users, paid_users, created_at, updated_at`

// Create inserts a new agent and fills in its assigned ID
func (r *AgentRepository) Create(ctx context.Context, tx ports.DBTX, agent *models.Agent) error {
	rate, err := toNumeric(agent.CommissionRate)
	if err != nil {
		return err
	}

	row := r.executor(tx).QueryRow(ctx,
		`INSERT INTO agents (owner_user_id, status, commission_rate, payout_identity, payout_linked)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		agent.OwnerUserID, string(agent.Status), rate, nullText(agent.PayoutIdentity), agent.PayoutLinked,
	)

	if err := row.Scan(&agent.ID, &agent.CreatedAt, &agent.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrorCodeValidationFailed, "user is already an agent", err)
		}
		return fmt.Errorf("create agent: %w", err)
	}
	return nil
}

// GetByID retrieves an agent by its ID
func (r *AgentRepository) GetByID(ctx context.Context, db ports.DBTX, id int64) (*models.Agent, error) {
	row := r.executor(db).QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = $1`, id)
	return scanAgent(row)
}

// GetByOwnerUserID retrieves the agent owned by a user
func (r *AgentRepository) GetByOwnerUserID(ctx context.Context, db ports.DBTX, ownerUserID int64) (*models.Agent, error) {
	row := r.executor(db).QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE owner_user_id = $1`, ownerUserID)
	return scanAgent(row)
}

// UpdateStatus moves the agent between active and suspended, conditional
// on the expected prior status. Zero rows affected returns false.
func (r *AgentRepository) UpdateStatus(ctx context.Context, tx ports.DBTX, id int64, from, to models.AgentStatus) (bool, error) {
	tag, err := r.executor(tx).Exec(ctx,
		`UPDATE agents SET status = $1, updated_at = now() WHERE id = $2 AND status = $3`,
		string(to), id, string(from))
	if err != nil {
		return false, fmt.Errorf("update agent status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateRate sets the agent's commission rate
func (r *AgentRepository) UpdateRate(ctx context.Context, tx ports.DBTX, id int64, rate decimal.Decimal) error {
	n, err := toNumeric(rate)
	if err != nil {
		return err
	}
	tag, err := r.executor(tx).Exec(ctx,
		`UPDATE agents SET commission_rate = $1, updated_at = now() WHERE id = $2`, n, id)
	if err != nil {
		return fmt.Errorf("update agent rate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAgentNotFound
	}
	return nil
}

// UpdatePayout sets or clears the agent's payout linkage
func (r *AgentRepository) UpdatePayout(ctx context.Context, tx ports.DBTX, id int64, payoutIdentity string, linked bool) error {
	tag, err := r.executor(tx).Exec(ctx,
		`UPDATE agents SET payout_identity = $1, payout_linked = $2, updated_at = now() WHERE id = $3`,
		nullText(payoutIdentity), linked, id)
	if err != nil {
		return fmt.Errorf("update agent payout: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAgentNotFound
	}
	return nil
}

// UpdateEarnings overwrites the recomputable earnings cache
func (r *AgentRepository) UpdateEarnings(ctx context.Context, tx ports.DBTX, id int64, total, settled, pending decimal.Decimal) error {
	totalN, err := toNumeric(total)
	if err != nil {
		return err
	}
	settledN, err := toNumeric(settled)
	if err != nil {
		return err
	}
	pendingN, err := toNumeric(pending)
	if err != nil {
		return err
	}

	_, err = r.executor(tx).Exec(ctx,
		`UPDATE agents SET total_earnings = $1, settled_earnings = $2, pending_earnings = $3, updated_at = now()
		 WHERE id = $4`,
		totalN, settledN, pendingN, id)
	if err != nil {
		return fmt.Errorf("update agent earnings: %w", err)
	}
	return nil
}

// ListConversionOutliers returns active agents whose referral
// conversion pattern trips the third anomaly heuristic.
func (r *AgentRepository) ListConversionOutliers(ctx context.Context, db ports.DBTX, minInvited, minPaid int, maxRatio float64) ([]*models.Agent, error) {
	rows, err := r.executor(db).Query(ctx,
		`SELECT `+agentColumns+`
		 FROM agents
		 WHERE status = 'active'
		   AND invited_users > $1
		   AND paid_users > $2
		   AND paid_users::float / invited_users > $3`,
		minInvited, minPaid, maxRatio)
	if err != nil {
		return nil, fmt.Errorf("list conversion outliers: %w", err)
	}
	defer rows.Close()

	var agents []*models.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

// scanAgent reads one agent row from a pgx.Row or pgx.Rows
func scanAgent(row pgx.Row) (*models.Agent, error) {
	var (
		a                             models.Agent
		status                        string
		payoutIdentity                pgtype.Text
		rate, total, settled, pending pgtype.Numeric
	)

	err := row.Scan(&a.ID, &a.OwnerUserID, &status, &rate, &payoutIdentity, &a.PayoutLinked,
		&total, &settled, &pending, &a.InvitedUsers, &a.PaidUsers, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAgentNotFound
		}
		return nil, fmt.Errorf("scan agent: %w", err)
	}

	a.Status = models.AgentStatus(status)
	a.PayoutIdentity = textValue(payoutIdentity)
	if a.CommissionRate, err = fromNumeric(rate); err != nil {
		return nil, err
	}
	if a.TotalEarnings, err = fromNumeric(total); err != nil {
		return nil, err
	}
	if a.SettledEarnings, err = fromNumeric(settled); err != nil {
		return nil, err
	}
	if a.PendingEarnings, err = fromNumeric(pending); err != nil {
		return nil, err
	}
	return &a, nil
}
