package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ignite/campaign-optimizer/internal/domain"
	"github.com/ignite/campaign-optimizer/internal/service/executor"
)

// ExecutorRepo implements executor.Repository against PostgreSQL.
type ExecutorRepo struct {
	db *sql.DB
	q  querier
}

// NewExecutorRepo creates a Postgres-backed execution repository.
func NewExecutorRepo(db *sql.DB) *ExecutorRepo { return &ExecutorRepo{db: db, q: db} }

func (r *ExecutorRepo) GetProposal(ctx context.Context, id string) (*domain.OptimizationProposal, error) {
	return getProposal(ctx, r.q, id, executor.ErrProposalNotFound)
}

func (r *ExecutorRepo) UpdateProposal(ctx context.Context, p *domain.OptimizationProposal) error {
	result, err := jsonNullArg(p.ExecutionResult)
	if err != nil {
		return err
	}
	res, err := r.q.ExecContext(ctx, `
		UPDATE optimization_proposals
		SET status = $1, execution_result = $2, approved_by = $3, approved_at = $4, executed_at = $5
		WHERE id = $6
	`, p.Status, result, p.ApprovedBy, p.ApprovedAt, p.ExecutedAt, p.ID)
	if err != nil {
		return fmt.Errorf("update proposal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return executor.ErrProposalNotFound
	}
	return nil
}

const executionColumns = `id, campaign_id, platform, status, execution_plan, external_campaign_id,
	       external_ids, links, idempotency_key, error_message, created_at, updated_at`

func scanExecution(s rowScanner) (*domain.Execution, error) {
	e := &domain.Execution{}
	var plan, externalIDs, links []byte
	err := s.Scan(
		&e.ID, &e.CampaignID, &e.Platform, &e.Status, &plan, &e.ExternalCampaignID,
		&externalIDs, &links, &e.IdempotencyKey, &e.ErrorMessage, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if e.ExecutionPlan, err = scanJSONMap(plan); err != nil {
		return nil, err
	}
	if e.ExternalIDs, err = scanJSONMap(externalIDs); err != nil {
		return nil, err
	}
	if err := scanJSONInto(links, &e.Links); err != nil {
		return nil, err
	}
	return e, nil
}

func (r *ExecutorRepo) GetExecutionByIdempotencyKey(ctx context.Context, key string) (*domain.Execution, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+executionColumns+`
		FROM executions
		WHERE idempotency_key = $1
	`, key)
	e, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, executor.ErrExecutionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get execution by idempotency key: %w", err)
	}
	return e, nil
}

func (r *ExecutorRepo) CreateExecution(ctx context.Context, e *domain.Execution) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	plan, err := jsonArg(e.ExecutionPlan)
	if err != nil {
		return err
	}
	externalIDs, err := jsonArg(e.ExternalIDs)
	if err != nil {
		return err
	}
	links, err := jsonArg(e.Links)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO executions
			(id, campaign_id, platform, status, execution_plan, external_campaign_id,
			 external_ids, links, idempotency_key, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
	`, e.ID, e.CampaignID, e.Platform, e.Status, plan, e.ExternalCampaignID,
		externalIDs, links, e.IdempotencyKey, e.ErrorMessage)
	if err != nil {
		return fmt.Errorf("create execution: %w", err)
	}
	return nil
}

func (r *ExecutorRepo) UpdateExecution(ctx context.Context, e *domain.Execution) error {
	externalIDs, err := jsonArg(e.ExternalIDs)
	if err != nil {
		return err
	}
	links, err := jsonArg(e.Links)
	if err != nil {
		return err
	}
	res, err := r.q.ExecContext(ctx, `
		UPDATE executions
		SET status = $1, external_ids = $2, links = $3, error_message = $4, updated_at = NOW()
		WHERE id = $5
	`, e.Status, externalIDs, links, e.ErrorMessage, e.ID)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return executor.ErrExecutionNotFound
	}
	return nil
}

func (r *ExecutorRepo) CreateExecutionActions(ctx context.Context, actions []domain.ExecutionAction) error {
	if len(actions) == 0 {
		return nil
	}

	values := make([]string, 0, len(actions))
	args := make([]interface{}, 0, len(actions)*9)
	idx := 1

	for i := range actions {
		a := &actions[i]
		if a.ID == "" {
			a.ID = uuid.New().String()
		}
		request, err := jsonArg(a.Request)
		if err != nil {
			return err
		}
		response, err := jsonArg(a.Response)
		if err != nil {
			return err
		}
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, NOW())",
			idx, idx+1, idx+2, idx+3, idx+4, idx+5, idx+6, idx+7, idx+8,
		))
		args = append(args, a.ID, a.ExecutionID, a.ActionType, a.IdempotencyKey,
			request, response, a.Status, a.ErrorMessage, a.DurationMs)
		idx += 9
	}

	q := `
		INSERT INTO execution_actions
			(id, execution_id, action_type, idempotency_key, request, response, status, error_message, duration_ms, created_at)
		VALUES ` + strings.Join(values, ", ")

	if _, err := r.q.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("create execution actions: %w", err)
	}
	return nil
}

func (r *ExecutorRepo) InTx(ctx context.Context, fn func(executor.Repository) error) error {
	if isTx(r.q) {
		return fn(r)
	}
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(&ExecutorRepo{db: r.db, q: tx})
	})
}
