// Package optimization is the review-and-inspection boundary over the
// optimizer's durable state: proposals, methods, learnings, monitor
// runs, and the current metrics snapshot. The engine, executor, and
// verifier write through their own repositories; this service backs the
// HTTP surface and the startup method seeding.
package optimization

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-optimizer/internal/domain"
	"github.com/ignite/campaign-optimizer/internal/service/method"
)

// ReviewAction is the human decision on a pending proposal.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// ChannelMetrics is one channel's entry in the metrics snapshot.
type ChannelMetrics struct {
	Channel string             `json:"channel"`
	KPIs    map[string]float64 `json:"kpis"`
}

// MetricsSnapshot is the current-state view served by the metrics endpoint.
type MetricsSnapshot struct {
	CampaignID      string             `json:"campaign_id"`
	KPIs            map[string]float64 `json:"kpis"`
	ChannelData     []ChannelMetrics   `json:"channel_data"`
	RawMetricsCount int                `json:"raw_metrics_count"`
	KPICount        int                `json:"kpi_count"`
	TrendCount      int                `json:"trend_count"`
}

// MethodUpdate holds the PATCHable method fields. Nil fields are left alone.
type MethodUpdate struct {
	IsActive        *bool                  `json:"is_active"`
	CooldownMinutes *int                   `json:"cooldown_minutes"`
	Config          map[string]interface{} `json:"config"`
}

// Service implements the optimization boundary operations.
type Service struct {
	repo Repository
}

// NewService creates the boundary service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ListProposals returns a campaign's proposals, optionally status-filtered.
func (s *Service) ListProposals(ctx context.Context, campaignID, status string) ([]domain.OptimizationProposal, error) {
	if err := s.requireCampaign(ctx, campaignID); err != nil {
		return nil, err
	}
	return s.repo.ListProposals(ctx, campaignID, status)
}

// GetProposal returns a single proposal.
func (s *Service) GetProposal(ctx context.Context, id string) (*domain.OptimizationProposal, error) {
	return s.repo.GetProposal(ctx, id)
}

// ReviewProposal applies a human approve/reject decision. Either way the
// reviewer and timestamp are recorded.
func (s *Service) ReviewProposal(ctx context.Context, proposalID, action, reviewedBy string) (*domain.OptimizationProposal, error) {
	proposal, err := s.repo.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}

	switch action {
	case ActionApprove:
		proposal.Status = domain.ProposalApproved
	case ActionReject:
		proposal.Status = domain.ProposalRejected
	default:
		return nil, ErrInvalidAction
	}

	now := time.Now().UTC()
	proposal.ApprovedBy = &reviewedBy
	proposal.ApprovedAt = &now

	if err := s.repo.UpdateProposalReview(ctx, proposal); err != nil {
		return nil, err
	}
	log.Printf("[optimization.Service] proposal %s %sd by %s", proposalID, action, reviewedBy)
	return proposal, nil
}

// ListMethods returns all registered method rows.
func (s *Service) ListMethods(ctx context.Context) ([]domain.OptimizationMethod, error) {
	return s.repo.ListMethods(ctx)
}

// UpdateMethod applies a partial method configuration update.
func (s *Service) UpdateMethod(ctx context.Context, id string, u MethodUpdate) (*domain.OptimizationMethod, error) {
	m, err := s.repo.GetMethod(ctx, id)
	if err != nil {
		return nil, err
	}

	if u.IsActive != nil {
		m.IsActive = *u.IsActive
	}
	if u.CooldownMinutes != nil {
		if *u.CooldownMinutes < 0 {
			return nil, fmt.Errorf("cooldown_minutes must not be negative")
		}
		m.CooldownMinutes = *u.CooldownMinutes
	}
	if u.Config != nil {
		m.Config = u.Config
	}
	m.UpdatedAt = time.Now().UTC()

	if err := s.repo.UpdateMethod(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// SeedMethods upserts a row for every method in the registry so the
// methods endpoint is populated before the first engine run. Existing
// rows keep their configuration. Returns the number of rows created.
func (s *Service) SeedMethods(ctx context.Context, registry *method.Registry, defaultCooldownMinutes int) (int, error) {
	created := 0
	now := time.Now().UTC()

	for _, m := range registry.List() {
		_, err := s.repo.GetMethodByName(ctx, m.Name())
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrMethodNotFound) {
			return created, err
		}

		row := &domain.OptimizationMethod{
			ID:                uuid.NewString(),
			Name:              m.Name(),
			Description:       m.Description(),
			MethodType:        m.Type(),
			TriggerConditions: map[string]interface{}{},
			Config:            map[string]interface{}{},
			IsActive:          true,
			CooldownMinutes:   defaultCooldownMinutes,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := s.repo.CreateMethod(ctx, row); err != nil {
			return created, err
		}
		created++
	}

	if created > 0 {
		log.Printf("[optimization.Service] seeded %d method row(s)", created)
	}
	return created, nil
}

// ListLearnings returns all learning records for a campaign.
func (s *Service) ListLearnings(ctx context.Context, campaignID string) ([]domain.OptimizationLearning, error) {
	if err := s.requireCampaign(ctx, campaignID); err != nil {
		return nil, err
	}
	return s.repo.ListLearnings(ctx, campaignID)
}

// ListMonitorRuns returns a campaign's cycle audit rows.
func (s *Service) ListMonitorRuns(ctx context.Context, campaignID string) ([]domain.MonitorRun, error) {
	if err := s.requireCampaign(ctx, campaignID); err != nil {
		return nil, err
	}
	return s.repo.ListMonitorRuns(ctx, campaignID)
}

// MetricsSnapshot assembles the current-state metrics view: the latest
// value per KPI name at campaign level and per channel, plus row counts.
func (s *Service) MetricsSnapshot(ctx context.Context, campaignID string) (*MetricsSnapshot, error) {
	if err := s.requireCampaign(ctx, campaignID); err != nil {
		return nil, err
	}

	kpis, err := s.repo.ListDerivedKPIs(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	rawCount, err := s.repo.CountRawMetrics(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	trendCount, err := s.repo.CountTrendIndicators(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	// Rows arrive newest first; first value per key wins.
	campaignKPIs := map[string]float64{}
	kpiCount := 0
	channelOrder := []string{}
	channelKPIs := map[string]map[string]float64{}

	for _, kpi := range kpis {
		if kpi.Channel == nil {
			kpiCount++
			if _, seen := campaignKPIs[kpi.KPIName]; !seen {
				campaignKPIs[kpi.KPIName] = kpi.KPIValue
			}
			continue
		}
		ch := *kpi.Channel
		bucket, ok := channelKPIs[ch]
		if !ok {
			bucket = map[string]float64{}
			channelKPIs[ch] = bucket
			channelOrder = append(channelOrder, ch)
		}
		if _, seen := bucket[kpi.KPIName]; !seen {
			bucket[kpi.KPIName] = kpi.KPIValue
		}
	}

	channelData := make([]ChannelMetrics, 0, len(channelOrder))
	for _, ch := range channelOrder {
		channelData = append(channelData, ChannelMetrics{Channel: ch, KPIs: channelKPIs[ch]})
	}

	return &MetricsSnapshot{
		CampaignID:      campaignID,
		KPIs:            campaignKPIs,
		ChannelData:     channelData,
		RawMetricsCount: rawCount,
		KPICount:        kpiCount,
		TrendCount:      trendCount,
	}, nil
}

func (s *Service) requireCampaign(ctx context.Context, id string) error {
	ok, err := s.repo.CampaignExists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCampaignNotFound
	}
	return nil
}
