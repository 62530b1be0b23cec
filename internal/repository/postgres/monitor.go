package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/campaign-optimizer/internal/domain"
)

// MonitorRepo implements monitor.Repository against PostgreSQL.
type MonitorRepo struct {
	db *sql.DB
	q  querier
}

// NewMonitorRepo creates a Postgres-backed monitor repository.
func NewMonitorRepo(db *sql.DB) *MonitorRepo { return &MonitorRepo{db: db, q: db} }

func (r *MonitorRepo) ListAutoApprovedUnexecuted(ctx context.Context, campaignID string) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id
		FROM optimization_proposals
		WHERE campaign_id = $1 AND status = $2 AND executed_at IS NULL
		ORDER BY priority DESC, created_at ASC
	`, campaignID, domain.ProposalAutoApproved)
	if err != nil {
		return nil, fmt.Errorf("list auto-approved proposals: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan proposal id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *MonitorRepo) CreateMonitorRun(ctx context.Context, run *domain.MonitorRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	engineSummary, err := jsonArg(run.EngineSummary)
	if err != nil {
		return err
	}
	executionSummary, err := jsonArg(run.ExecutionSummary)
	if err != nil {
		return err
	}
	verificationSummary, err := jsonArg(run.VerificationSummary)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO monitor_runs
			(id, campaign_id, status, engine_summary, execution_summary, verification_summary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, run.ID, run.CampaignID, run.Status, engineSummary, executionSummary, verificationSummary)
	if err != nil {
		return fmt.Errorf("create monitor run: %w", err)
	}
	return nil
}
