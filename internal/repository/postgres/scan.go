package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/campaign-optimizer/internal/domain"
)

// rowScanner covers *sql.Row and *sql.Rows so one scan helper serves
// both the single-row and list queries.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const proposalColumns = `id, campaign_id, method_id, status, confidence, priority, action_type,
	       action_payload, reasoning, trigger_data, guardrail_checks, execution_result,
	       approved_by, approved_at, executed_at, expires_at, created_at`

func scanProposal(s rowScanner) (*domain.OptimizationProposal, error) {
	p := &domain.OptimizationProposal{}
	var payload, trigger, guardrails, result []byte
	err := s.Scan(
		&p.ID, &p.CampaignID, &p.MethodID, &p.Status, &p.Confidence, &p.Priority, &p.ActionType,
		&payload, &p.Reasoning, &trigger, &guardrails, &result,
		&p.ApprovedBy, &p.ApprovedAt, &p.ExecutedAt, &p.ExpiresAt, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if p.ActionPayload, err = scanJSONMap(payload); err != nil {
		return nil, err
	}
	if p.TriggerData, err = scanJSONMap(trigger); err != nil {
		return nil, err
	}
	if p.GuardrailChecks, err = scanJSONMap(guardrails); err != nil {
		return nil, err
	}
	if p.ExecutionResult, err = scanJSONMap(result); err != nil {
		return nil, err
	}
	return p, nil
}

const methodColumns = `id, name, description, method_type, trigger_conditions, config,
	       is_active, cooldown_minutes, stats, created_at, updated_at`

func scanMethod(s rowScanner) (*domain.OptimizationMethod, error) {
	m := &domain.OptimizationMethod{}
	var triggers, config, stats []byte
	err := s.Scan(
		&m.ID, &m.Name, &m.Description, &m.MethodType, &triggers, &config,
		&m.IsActive, &m.CooldownMinutes, &stats, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if m.TriggerConditions, err = scanJSONMap(triggers); err != nil {
		return nil, err
	}
	if m.Config, err = scanJSONMap(config); err != nil {
		return nil, err
	}
	if err := scanJSONInto(stats, &m.Stats); err != nil {
		return nil, err
	}
	return m, nil
}

const learningColumns = `id, campaign_id, proposal_id, method_id, predicted_impact, actual_impact,
	       accuracy_score, verification_status, verified_at, details, created_at`

func scanLearning(s rowScanner) (*domain.OptimizationLearning, error) {
	l := &domain.OptimizationLearning{}
	var predicted, actual, details []byte
	err := s.Scan(
		&l.ID, &l.CampaignID, &l.ProposalID, &l.MethodID, &predicted, &actual,
		&l.AccuracyScore, &l.VerificationStatus, &l.VerifiedAt, &details, &l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if l.PredictedImpact, err = scanJSONMap(predicted); err != nil {
		return nil, err
	}
	if l.ActualImpact, err = scanJSONMap(actual); err != nil {
		return nil, err
	}
	if l.Details, err = scanJSONMap(details); err != nil {
		return nil, err
	}
	return l, nil
}

// getProposal is shared by the executor, verifier, and optimization repos.
func getProposal(ctx context.Context, q querier, id string, notFound error) (*domain.OptimizationProposal, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+proposalColumns+`
		FROM optimization_proposals
		WHERE id = $1
	`, id)
	p, err := scanProposal(row)
	if err == sql.ErrNoRows {
		return nil, notFound
	}
	if err != nil {
		return nil, fmt.Errorf("get proposal: %w", err)
	}
	return p, nil
}

// getMethodByName resolves a method registry row by its unique name.
func getMethodByName(ctx context.Context, q querier, name string, notFound error) (*domain.OptimizationMethod, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+methodColumns+`
		FROM optimization_methods
		WHERE name = $1
	`, name)
	m, err := scanMethod(row)
	if err == sql.ErrNoRows {
		return nil, notFound
	}
	if err != nil {
		return nil, fmt.Errorf("get method by name: %w", err)
	}
	return m, nil
}

func insertMethod(ctx context.Context, q querier, m *domain.OptimizationMethod) error {
	triggers, err := jsonArg(m.TriggerConditions)
	if err != nil {
		return err
	}
	config, err := jsonArg(m.Config)
	if err != nil {
		return err
	}
	stats, err := jsonArg(m.Stats)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO optimization_methods
			(id, name, description, method_type, trigger_conditions, config,
			 is_active, cooldown_minutes, stats, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
	`, m.ID, m.Name, m.Description, m.MethodType, triggers, config,
		m.IsActive, m.CooldownMinutes, stats)
	if err != nil {
		return fmt.Errorf("create method: %w", err)
	}
	return nil
}
