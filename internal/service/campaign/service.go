package campaign

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-optimizer/internal/domain"
)

// Service implements campaign business logic. All public methods are safe
// for concurrent use if the underlying repository is concurrency-safe.
type Service struct {
	repo Repository
}

// NewService creates a campaign service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.repo.Get(ctx, id)
}

// List returns campaigns matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Campaign, int, error) {
	return s.repo.List(ctx, f)
}

// ListActive returns the campaigns the monitor worker should cycle over.
func (s *Service) ListActive(ctx context.Context) ([]domain.Campaign, error) {
	return s.repo.ListActive(ctx)
}

// Create validates and persists a new campaign in active status.
func (s *Service) Create(ctx context.Context, input CreateInput) (*domain.Campaign, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	objective := domain.CampaignObjective(input.Objective)
	if objective == "" {
		objective = domain.ObjectiveConversions
	}
	if !validObjective(objective) {
		return nil, fmt.Errorf("unknown objective %q", input.Objective)
	}
	if input.TargetCAC != nil && *input.TargetCAC <= 0 {
		return nil, fmt.Errorf("target_cac must be positive")
	}

	now := time.Now().UTC()
	c := &domain.Campaign{
		ID:        uuid.NewString(),
		Name:      input.Name,
		Objective: objective,
		TargetCAC: input.TargetCAC,
		StartDate: input.StartDate,
		EndDate:   input.EndDate,
		Status:    domain.CampaignActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Update modifies mutable campaign fields.
func (s *Service) Update(ctx context.Context, id string, u UpdateFields) error {
	if u.Status != nil && !validStatus(*u.Status) {
		return fmt.Errorf("unknown status %q", *u.Status)
	}
	if u.TargetCAC != nil && *u.TargetCAC <= 0 {
		return fmt.Errorf("target_cac must be positive")
	}
	return s.repo.Update(ctx, id, u)
}

// Delete removes a campaign and everything hanging off it.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// AddSnapshots validates and bulk-inserts observed channel windows for a
// campaign. Returns the number of rows inserted.
func (s *Service) AddSnapshots(ctx context.Context, campaignID string, inputs []SnapshotInput) (int, error) {
	if _, err := s.repo.Get(ctx, campaignID); err != nil {
		return 0, err
	}
	if len(inputs) == 0 {
		return 0, fmt.Errorf("no snapshots provided")
	}

	now := time.Now().UTC()
	rows := make([]domain.ChannelSnapshot, 0, len(inputs))
	for i, in := range inputs {
		if in.Channel == "" {
			return 0, fmt.Errorf("snapshot %d: channel is required", i)
		}
		if !in.WindowEnd.After(in.WindowStart) {
			return 0, fmt.Errorf("snapshot %d: window_end must be after window_start", i)
		}
		if in.Spend < 0 || in.Impressions < 0 || in.Clicks < 0 || in.Conversions < 0 || in.Revenue < 0 {
			return 0, fmt.Errorf("snapshot %d: negative values are not allowed", i)
		}
		rows = append(rows, domain.ChannelSnapshot{
			ID:          uuid.NewString(),
			CampaignID:  campaignID,
			Channel:     in.Channel,
			WindowStart: in.WindowStart.UTC(),
			WindowEnd:   in.WindowEnd.UTC(),
			Spend:       in.Spend,
			Impressions: in.Impressions,
			Clicks:      in.Clicks,
			Conversions: in.Conversions,
			Revenue:     in.Revenue,
			CreatedAt:   now,
		})
	}

	if err := s.repo.CreateSnapshots(ctx, rows); err != nil {
		return 0, err
	}
	log.Printf("[campaign.Service] Campaign %s: ingested %d snapshot(s)", campaignID, len(rows))
	return len(rows), nil
}

// ListSnapshots returns observed windows for a campaign.
func (s *Service) ListSnapshots(ctx context.Context, campaignID string, windowStart, windowEnd *time.Time) ([]domain.ChannelSnapshot, error) {
	if _, err := s.repo.Get(ctx, campaignID); err != nil {
		return nil, err
	}
	return s.repo.ListSnapshots(ctx, campaignID, windowStart, windowEnd)
}

// CreateInput holds the fields for creating a new campaign.
type CreateInput struct {
	Name      string     `json:"name"`
	Objective string     `json:"objective"`
	TargetCAC *float64   `json:"target_cac"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
}

// SnapshotInput is one observed channel window in an ingestion request.
type SnapshotInput struct {
	Channel     string    `json:"channel"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Spend       float64   `json:"spend"`
	Impressions int64     `json:"impressions"`
	Clicks      int64     `json:"clicks"`
	Conversions int64     `json:"conversions"`
	Revenue     float64   `json:"revenue"`
}

func validObjective(o domain.CampaignObjective) bool {
	switch o {
	case domain.ObjectiveConversions, domain.ObjectiveRevenue, domain.ObjectiveInstalls, domain.ObjectiveLeads:
		return true
	}
	return false
}

func validStatus(s domain.CampaignStatus) bool {
	switch s {
	case domain.CampaignActive, domain.CampaignPaused, domain.CampaignArchived:
		return true
	}
	return false
}
