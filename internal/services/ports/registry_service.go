package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/kevin07696/commission-service/internal/domain/models"
)

// AgentStats is the registry's earnings-and-counts view of an agent
type AgentStats struct {
	Agent           *models.Agent
	TotalEarnings   decimal.Decimal
	SettledEarnings decimal.Decimal
	PendingEarnings decimal.Decimal
	InvitedUsers    int
	PaidUsers       int
}

// AnomalySweepResult summarizes one anomaly sweep
type AnomalySweepResult struct {
	Flagged   int
	Suspended int
}

// RegistryService owns agent identity, rates, payout binding, and the
// anomaly sweep
type RegistryService interface {
	// Enroll creates an active agent for the user at the configured
	// default rate
	Enroll(ctx context.Context, ownerUserID int64) (*models.Agent, error)

	// UpdateCommissionRate changes the rate for future commissions.
	// Existing records keep their snapshot.
	UpdateCommissionRate(ctx context.Context, agentID int64, rate decimal.Decimal, operatorID int64) error

	Suspend(ctx context.Context, agentID, operatorID int64) error
	Resume(ctx context.Context, agentID, operatorID int64) error

	// BindPayout stores the payout identity and registers it with the
	// provider
	BindPayout(ctx context.Context, agentID int64, payoutIdentity, displayName string) error

	// UnbindPayout clears the payout identity and deregisters it
	UnbindPayout(ctx context.Context, agentID int64) error

	GetAgent(ctx context.Context, agentID int64) (*models.Agent, error)
	GetAgentStats(ctx context.Context, agentID int64) (*AgentStats, error)

	// SuspendAnomalous applies the anomaly heuristics and suspends
	// every flagged active agent, with an audit entry per suspension.
	SuspendAnomalous(ctx context.Context) (*AnomalySweepResult, error)
}
