package engine

import (
	"context"
	"time"

	"github.com/ignite/campaign-optimizer/internal/domain"
)

// Repository is the persistence surface the decision pipeline needs.
// InTx hands the callback a transaction-bound copy so the proposal
// writes of one run commit together.
type Repository interface {
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)
	CountSnapshots(ctx context.Context, campaignID string) (int, error)
	ListSnapshots(ctx context.Context, campaignID string, windowStart, windowEnd *time.Time) ([]domain.ChannelSnapshot, error)

	// RecentProposalTimes returns created_at for every proposal of the
	// campaign created at or after since.
	RecentProposalTimes(ctx context.Context, campaignID string, since time.Time) ([]time.Time, error)

	// LastProposalTime returns the newest proposal created_at for the
	// campaign and action type, or nil when none exists.
	LastProposalTime(ctx context.Context, campaignID, actionType string) (*time.Time, error)

	GetMethodByName(ctx context.Context, name string) (*domain.OptimizationMethod, error)
	CreateMethod(ctx context.Context, m *domain.OptimizationMethod) error
	CreateProposal(ctx context.Context, p *domain.OptimizationProposal) error

	InTx(ctx context.Context, fn func(Repository) error) error
}
