package optimization

import (
	"context"

	"github.com/ignite/campaign-optimizer/internal/domain"
)

// Repository is the read/review surface over the optimization tables.
// The heavy writers (engine, executor, verifier) own their own
// repositories; this one backs the API.
type Repository interface {
	CampaignExists(ctx context.Context, id string) (bool, error)

	// ListProposals returns a campaign's proposals newest first,
	// optionally filtered by status.
	ListProposals(ctx context.Context, campaignID, status string) ([]domain.OptimizationProposal, error)
	GetProposal(ctx context.Context, id string) (*domain.OptimizationProposal, error)
	UpdateProposalReview(ctx context.Context, p *domain.OptimizationProposal) error

	// ListMethods returns all method rows, newest first.
	ListMethods(ctx context.Context) ([]domain.OptimizationMethod, error)
	GetMethod(ctx context.Context, id string) (*domain.OptimizationMethod, error)
	GetMethodByName(ctx context.Context, name string) (*domain.OptimizationMethod, error)
	CreateMethod(ctx context.Context, m *domain.OptimizationMethod) error
	UpdateMethod(ctx context.Context, m *domain.OptimizationMethod) error

	ListLearnings(ctx context.Context, campaignID string) ([]domain.OptimizationLearning, error)
	ListMonitorRuns(ctx context.Context, campaignID string) ([]domain.MonitorRun, error)

	// Metrics snapshot inputs.
	CountRawMetrics(ctx context.Context, campaignID string) (int, error)
	CountTrendIndicators(ctx context.Context, campaignID string) (int, error)
	ListDerivedKPIs(ctx context.Context, campaignID string) ([]domain.DerivedKPI, error)
}
