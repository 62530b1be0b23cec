package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-optimizer/internal/domain"
	"github.com/ignite/campaign-optimizer/internal/service/engine"
)

// EngineRepo implements engine.Repository against PostgreSQL.
type EngineRepo struct {
	db *sql.DB
	q  querier
}

// NewEngineRepo creates a Postgres-backed decision pipeline repository.
func NewEngineRepo(db *sql.DB) *EngineRepo { return &EngineRepo{db: db, q: db} }

func (r *EngineRepo) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE id = $1
	`, id)
	c, err := scanCampaign(row)
	if err == sql.ErrNoRows {
		return nil, engine.ErrCampaignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *EngineRepo) CountSnapshots(ctx context.Context, campaignID string) (int, error) {
	return countSnapshots(ctx, r.q, campaignID)
}

func (r *EngineRepo) ListSnapshots(ctx context.Context, campaignID string, windowStart, windowEnd *time.Time) ([]domain.ChannelSnapshot, error) {
	return listSnapshots(ctx, r.q, campaignID, windowStart, windowEnd)
}

func (r *EngineRepo) RecentProposalTimes(ctx context.Context, campaignID string, since time.Time) ([]time.Time, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT created_at
		FROM optimization_proposals
		WHERE campaign_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
	`, campaignID, since)
	if err != nil {
		return nil, fmt.Errorf("recent proposal times: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("scan proposal time: %w", err)
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

func (r *EngineRepo) LastProposalTime(ctx context.Context, campaignID, actionType string) (*time.Time, error) {
	var ts sql.NullTime
	err := r.q.QueryRowContext(ctx, `
		SELECT MAX(created_at)
		FROM optimization_proposals
		WHERE campaign_id = $1 AND action_type = $2
	`, campaignID, actionType).Scan(&ts)
	if err != nil {
		return nil, fmt.Errorf("last proposal time: %w", err)
	}
	if !ts.Valid {
		return nil, nil
	}
	return &ts.Time, nil
}

func (r *EngineRepo) GetMethodByName(ctx context.Context, name string) (*domain.OptimizationMethod, error) {
	return getMethodByName(ctx, r.q, name, engine.ErrMethodNotFound)
}

func (r *EngineRepo) CreateMethod(ctx context.Context, m *domain.OptimizationMethod) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return insertMethod(ctx, r.q, m)
}

func (r *EngineRepo) CreateProposal(ctx context.Context, p *domain.OptimizationProposal) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	payload, err := jsonArg(p.ActionPayload)
	if err != nil {
		return err
	}
	trigger, err := jsonArg(p.TriggerData)
	if err != nil {
		return err
	}
	guardrails, err := jsonArg(p.GuardrailChecks)
	if err != nil {
		return err
	}
	result, err := jsonNullArg(p.ExecutionResult)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO optimization_proposals
			(id, campaign_id, method_id, status, confidence, priority, action_type,
			 action_payload, reasoning, trigger_data, guardrail_checks, execution_result,
			 approved_by, approved_at, executed_at, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, p.ID, p.CampaignID, p.MethodID, p.Status, p.Confidence, p.Priority, p.ActionType,
		payload, p.Reasoning, trigger, guardrails, result,
		p.ApprovedBy, p.ApprovedAt, p.ExecutedAt, p.ExpiresAt, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("create proposal: %w", err)
	}
	return nil
}

func (r *EngineRepo) InTx(ctx context.Context, fn func(engine.Repository) error) error {
	if isTx(r.q) {
		return fn(r)
	}
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(&EngineRepo{db: r.db, q: tx})
	})
}
