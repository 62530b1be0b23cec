package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/campaign-optimizer/internal/domain"
	"github.com/ignite/campaign-optimizer/internal/service/optimization"
)

// OptimizationRepo implements optimization.Repository against PostgreSQL.
// It backs the review/inspection API rather than the pipeline writers.
type OptimizationRepo struct {
	db *sql.DB
	q  querier
}

// NewOptimizationRepo creates a Postgres-backed optimization boundary repository.
func NewOptimizationRepo(db *sql.DB) *OptimizationRepo { return &OptimizationRepo{db: db, q: db} }

func (r *OptimizationRepo) CampaignExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM campaigns WHERE id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("campaign exists: %w", err)
	}
	return exists, nil
}

func (r *OptimizationRepo) ListProposals(ctx context.Context, campaignID, status string) ([]domain.OptimizationProposal, error) {
	query := `
		SELECT ` + proposalColumns + `
		FROM optimization_proposals
		WHERE campaign_id = $1`
	args := []interface{}{campaignID}

	if status != "" {
		query += " AND status = $2"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	var out []domain.OptimizationProposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *OptimizationRepo) GetProposal(ctx context.Context, id string) (*domain.OptimizationProposal, error) {
	return getProposal(ctx, r.q, id, optimization.ErrProposalNotFound)
}

func (r *OptimizationRepo) UpdateProposalReview(ctx context.Context, p *domain.OptimizationProposal) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE optimization_proposals
		SET status = $1, approved_by = $2, approved_at = $3
		WHERE id = $4
	`, p.Status, p.ApprovedBy, p.ApprovedAt, p.ID)
	if err != nil {
		return fmt.Errorf("update proposal review: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return optimization.ErrProposalNotFound
	}
	return nil
}

func (r *OptimizationRepo) ListMethods(ctx context.Context) ([]domain.OptimizationMethod, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+methodColumns+`
		FROM optimization_methods
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list methods: %w", err)
	}
	defer rows.Close()

	var out []domain.OptimizationMethod
	for rows.Next() {
		m, err := scanMethod(rows)
		if err != nil {
			return nil, fmt.Errorf("scan method: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (r *OptimizationRepo) GetMethod(ctx context.Context, id string) (*domain.OptimizationMethod, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+methodColumns+`
		FROM optimization_methods
		WHERE id = $1
	`, id)
	m, err := scanMethod(row)
	if err == sql.ErrNoRows {
		return nil, optimization.ErrMethodNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get method: %w", err)
	}
	return m, nil
}

func (r *OptimizationRepo) GetMethodByName(ctx context.Context, name string) (*domain.OptimizationMethod, error) {
	return getMethodByName(ctx, r.q, name, optimization.ErrMethodNotFound)
}

func (r *OptimizationRepo) CreateMethod(ctx context.Context, m *domain.OptimizationMethod) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return insertMethod(ctx, r.q, m)
}

func (r *OptimizationRepo) UpdateMethod(ctx context.Context, m *domain.OptimizationMethod) error {
	config, err := jsonArg(m.Config)
	if err != nil {
		return err
	}
	res, err := r.q.ExecContext(ctx, `
		UPDATE optimization_methods
		SET is_active = $1, cooldown_minutes = $2, config = $3, updated_at = NOW()
		WHERE id = $4
	`, m.IsActive, m.CooldownMinutes, config, m.ID)
	if err != nil {
		return fmt.Errorf("update method: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return optimization.ErrMethodNotFound
	}
	return nil
}

func (r *OptimizationRepo) ListLearnings(ctx context.Context, campaignID string) ([]domain.OptimizationLearning, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+learningColumns+`
		FROM optimization_learnings
		WHERE campaign_id = $1
		ORDER BY created_at DESC
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list learnings: %w", err)
	}
	defer rows.Close()

	var out []domain.OptimizationLearning
	for rows.Next() {
		l, err := scanLearning(rows)
		if err != nil {
			return nil, fmt.Errorf("scan learning: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (r *OptimizationRepo) ListMonitorRuns(ctx context.Context, campaignID string) ([]domain.MonitorRun, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, campaign_id, status, engine_summary, execution_summary, verification_summary, created_at
		FROM monitor_runs
		WHERE campaign_id = $1
		ORDER BY created_at DESC
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list monitor runs: %w", err)
	}
	defer rows.Close()

	var out []domain.MonitorRun
	for rows.Next() {
		var run domain.MonitorRun
		var engineSummary, executionSummary, verificationSummary []byte
		if err := rows.Scan(
			&run.ID, &run.CampaignID, &run.Status,
			&engineSummary, &executionSummary, &verificationSummary, &run.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan monitor run: %w", err)
		}
		if run.EngineSummary, err = scanJSONMap(engineSummary); err != nil {
			return nil, err
		}
		if run.ExecutionSummary, err = scanJSONMap(executionSummary); err != nil {
			return nil, err
		}
		if run.VerificationSummary, err = scanJSONMap(verificationSummary); err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (r *OptimizationRepo) CountRawMetrics(ctx context.Context, campaignID string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM raw_metrics WHERE campaign_id = $1`, campaignID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count raw metrics: %w", err)
	}
	return n, nil
}

func (r *OptimizationRepo) CountTrendIndicators(ctx context.Context, campaignID string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trend_indicators WHERE campaign_id = $1`, campaignID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count trend indicators: %w", err)
	}
	return n, nil
}

func (r *OptimizationRepo) ListDerivedKPIs(ctx context.Context, campaignID string) ([]domain.DerivedKPI, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, campaign_id, channel, kpi_name, kpi_value, window_start, window_end, input_metrics, computed_at
		FROM derived_kpis
		WHERE campaign_id = $1
		ORDER BY computed_at DESC
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list derived kpis: %w", err)
	}
	return collectKPIs(rows)
}
