package campaign

import (
	"context"
	"time"

	"github.com/ignite/campaign-optimizer/internal/domain"
)

// Repository defines the data access contract for campaigns and their
// snapshots. Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single campaign. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Campaign, error)

	// List returns campaigns matching the filter, ordered by created_at DESC,
	// plus the unfiltered total for pagination.
	List(ctx context.Context, filter ListFilter) ([]domain.Campaign, int, error)

	// ListActive returns all active campaigns, oldest first. The monitor
	// worker iterates this set every cycle.
	ListActive(ctx context.Context) ([]domain.Campaign, error)

	// Create inserts a new campaign.
	Create(ctx context.Context, c *domain.Campaign) error

	// Update modifies a campaign. Only non-nil fields are applied.
	Update(ctx context.Context, id string, u UpdateFields) error

	// Delete removes a campaign and its dependent rows.
	Delete(ctx context.Context, id string) error

	// CreateSnapshots bulk-inserts snapshot rows. The table is insert-only.
	CreateSnapshots(ctx context.Context, snapshots []domain.ChannelSnapshot) error

	// ListSnapshots returns snapshots for a campaign, optionally scoped to a
	// window, newest window first.
	ListSnapshots(ctx context.Context, campaignID string, windowStart, windowEnd *time.Time) ([]domain.ChannelSnapshot, error)
}

// ListFilter controls pagination and filtering for campaign lists.
type ListFilter struct {
	Status string
	Search string
	Limit  int
	Offset int
}

// UpdateFields holds the mutable fields for a campaign update.
// Nil fields are not applied.
type UpdateFields struct {
	Name      *string
	Status    *domain.CampaignStatus
	TargetCAC *float64
	EndDate   *time.Time
}
