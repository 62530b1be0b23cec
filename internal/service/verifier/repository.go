package verifier

import (
	"context"

	"github.com/ignite/campaign-optimizer/internal/domain"
)

// Repository is the persistence surface for outcome verification. InTx
// hands the callback a transaction-bound copy so the learning row and
// the method stats update commit together.
type Repository interface {
	GetProposal(ctx context.Context, id string) (*domain.OptimizationProposal, error)

	// ListExecutedProposals returns executed proposals with a non-nil
	// executed_at for the campaign.
	ListExecutedProposals(ctx context.Context, campaignID string) ([]domain.OptimizationProposal, error)

	// GetVerifiedLearning returns the verified learning row for a
	// proposal, or ErrLearningNotFound.
	GetVerifiedLearning(ctx context.Context, proposalID string) (*domain.OptimizationLearning, error)
	CreateLearning(ctx context.Context, l *domain.OptimizationLearning) error

	GetMethod(ctx context.Context, id string) (*domain.OptimizationMethod, error)
	UpdateMethodStats(ctx context.Context, methodID string, stats domain.MethodStats) error

	CountSnapshots(ctx context.Context, campaignID string) (int, error)

	InTx(ctx context.Context, fn func(Repository) error) error
}
