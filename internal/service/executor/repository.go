package executor

import (
	"context"

	"github.com/ignite/campaign-optimizer/internal/domain"
)

// Repository is the persistence surface for proposal execution. InTx
// hands the callback a transaction-bound copy so the audit rows and the
// proposal status flip commit together.
type Repository interface {
	GetProposal(ctx context.Context, id string) (*domain.OptimizationProposal, error)
	UpdateProposal(ctx context.Context, p *domain.OptimizationProposal) error

	GetExecutionByIdempotencyKey(ctx context.Context, key string) (*domain.Execution, error)
	CreateExecution(ctx context.Context, e *domain.Execution) error
	UpdateExecution(ctx context.Context, e *domain.Execution) error
	CreateExecutionActions(ctx context.Context, actions []domain.ExecutionAction) error

	InTx(ctx context.Context, fn func(Repository) error) error
}
