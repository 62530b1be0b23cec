package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/campaign-optimizer/internal/domain"
	"github.com/ignite/campaign-optimizer/internal/service/verifier"
)

// VerifierRepo implements verifier.Repository against PostgreSQL.
type VerifierRepo struct {
	db *sql.DB
	q  querier
}

// NewVerifierRepo creates a Postgres-backed verification repository.
func NewVerifierRepo(db *sql.DB) *VerifierRepo { return &VerifierRepo{db: db, q: db} }

func (r *VerifierRepo) GetProposal(ctx context.Context, id string) (*domain.OptimizationProposal, error) {
	return getProposal(ctx, r.q, id, verifier.ErrProposalNotFound)
}

func (r *VerifierRepo) ListExecutedProposals(ctx context.Context, campaignID string) ([]domain.OptimizationProposal, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+proposalColumns+`
		FROM optimization_proposals
		WHERE campaign_id = $1 AND status = $2
		ORDER BY executed_at ASC
	`, campaignID, domain.ProposalExecuted)
	if err != nil {
		return nil, fmt.Errorf("list executed proposals: %w", err)
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

func (r *VerifierRepo) GetVerifiedLearning(ctx context.Context, proposalID string) (*domain.OptimizationLearning, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+learningColumns+`
		FROM optimization_learnings
		WHERE proposal_id = $1 AND verification_status = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, proposalID, domain.VerificationVerified)
	l, err := scanLearning(row)
	if err == sql.ErrNoRows {
		return nil, verifier.ErrLearningNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get verified learning: %w", err)
	}
	return l, nil
}

func (r *VerifierRepo) CreateLearning(ctx context.Context, l *domain.OptimizationLearning) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	predicted, err := jsonArg(l.PredictedImpact)
	if err != nil {
		return err
	}
	actual, err := jsonArg(l.ActualImpact)
	if err != nil {
		return err
	}
	details, err := jsonArg(l.Details)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO optimization_learnings
			(id, campaign_id, proposal_id, method_id, predicted_impact, actual_impact,
			 accuracy_score, verification_status, verified_at, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
	`, l.ID, l.CampaignID, l.ProposalID, l.MethodID, predicted, actual,
		l.AccuracyScore, l.VerificationStatus, l.VerifiedAt, details)
	if err != nil {
		return fmt.Errorf("create learning: %w", err)
	}
	return nil
}

func (r *VerifierRepo) GetMethod(ctx context.Context, id string) (*domain.OptimizationMethod, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+methodColumns+`
		FROM optimization_methods
		WHERE id = $1
	`, id)
	m, err := scanMethod(row)
	if err == sql.ErrNoRows {
		return nil, verifier.ErrMethodNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get method: %w", err)
	}
	return m, nil
}

func (r *VerifierRepo) UpdateMethodStats(ctx context.Context, methodID string, stats domain.MethodStats) error {
	blob, err := jsonArg(stats)
	if err != nil {
		return err
	}
	res, err := r.q.ExecContext(ctx, `
		UPDATE optimization_methods
		SET stats = $1, updated_at = NOW()
		WHERE id = $2
	`, blob, methodID)
	if err != nil {
		return fmt.Errorf("update method stats: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return verifier.ErrMethodNotFound
	}
	return nil
}

func (r *VerifierRepo) CountSnapshots(ctx context.Context, campaignID string) (int, error) {
	return countSnapshots(ctx, r.q, campaignID)
}

func (r *VerifierRepo) InTx(ctx context.Context, fn func(verifier.Repository) error) error {
	if isTx(r.q) {
		return fn(r)
	}
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(&VerifierRepo{db: r.db, q: tx})
	})
}
