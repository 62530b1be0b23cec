package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-optimizer/internal/config"
	"github.com/ignite/campaign-optimizer/internal/domain"
	"github.com/ignite/campaign-optimizer/internal/service/method"
	"github.com/ignite/campaign-optimizer/internal/service/metrics"
)

// fakeRepo implements Repository in memory.
type fakeRepo struct {
	campaign      *domain.Campaign
	snapshots     []domain.ChannelSnapshot
	proposalTimes []time.Time
	lastByAction  map[string]*time.Time
	methods       map[string]*domain.OptimizationMethod

	createdMethods []*domain.OptimizationMethod
	proposals      []*domain.OptimizationProposal
}

func (f *fakeRepo) GetCampaign(_ context.Context, id string) (*domain.Campaign, error) {
	if f.campaign == nil || f.campaign.ID != id {
		return nil, ErrCampaignNotFound
	}
	return f.campaign, nil
}

func (f *fakeRepo) CountSnapshots(_ context.Context, campaignID string) (int, error) {
	n := 0
	for _, s := range f.snapshots {
		if s.CampaignID == campaignID {
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) ListSnapshots(_ context.Context, campaignID string, _, _ *time.Time) ([]domain.ChannelSnapshot, error) {
	var out []domain.ChannelSnapshot
	for _, s := range f.snapshots {
		if s.CampaignID == campaignID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeRepo) RecentProposalTimes(_ context.Context, _ string, since time.Time) ([]time.Time, error) {
	var out []time.Time
	for _, t := range f.proposalTimes {
		if !t.Before(since) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeRepo) LastProposalTime(_ context.Context, _ string, actionType string) (*time.Time, error) {
	if f.lastByAction == nil {
		return nil, nil
	}
	return f.lastByAction[actionType], nil
}

func (f *fakeRepo) GetMethodByName(_ context.Context, name string) (*domain.OptimizationMethod, error) {
	if m, ok := f.methods[name]; ok {
		return m, nil
	}
	return nil, ErrMethodNotFound
}

func (f *fakeRepo) CreateMethod(_ context.Context, m *domain.OptimizationMethod) error {
	if f.methods == nil {
		f.methods = map[string]*domain.OptimizationMethod{}
	}
	f.methods[m.Name] = m
	f.createdMethods = append(f.createdMethods, m)
	return nil
}

func (f *fakeRepo) CreateProposal(_ context.Context, p *domain.OptimizationProposal) error {
	f.proposals = append(f.proposals, p)
	return nil
}

func (f *fakeRepo) InTx(_ context.Context, fn func(Repository) error) error {
	return fn(f)
}

// fakeMetricsRepo implements metrics.Repository in memory.
type fakeMetricsRepo struct {
	snapshots []domain.ChannelSnapshot
	kpis      []domain.DerivedKPI
	raws      []domain.RawMetric
}

func (f *fakeMetricsRepo) ListSnapshots(_ context.Context, campaignID string, _, _ *time.Time) ([]domain.ChannelSnapshot, error) {
	var out []domain.ChannelSnapshot
	for _, s := range f.snapshots {
		if s.CampaignID == campaignID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeMetricsRepo) CreateRawMetrics(_ context.Context, rows []domain.RawMetric) error {
	f.raws = append(f.raws, rows...)
	return nil
}

func (f *fakeMetricsRepo) ListRawMetrics(_ context.Context, campaignID string, _, _ *time.Time) ([]domain.RawMetric, error) {
	var out []domain.RawMetric
	for _, r := range f.raws {
		if r.CampaignID == campaignID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeMetricsRepo) CreateDerivedKPIs(_ context.Context, rows []domain.DerivedKPI) error {
	f.kpis = append(f.kpis, rows...)
	return nil
}

func (f *fakeMetricsRepo) ListKPIsInWindow(_ context.Context, campaignID string, start, end time.Time) ([]domain.DerivedKPI, error) {
	var out []domain.DerivedKPI
	for _, k := range f.kpis {
		if k.CampaignID != campaignID || k.WindowStart == nil || k.WindowEnd == nil {
			continue
		}
		if k.WindowStart.Before(start) || k.WindowEnd.After(end) {
			continue
		}
		out = append(out, k)
	}
	return out, nil
}

func (f *fakeMetricsRepo) ListDerivedKPIs(_ context.Context, campaignID string, limit int) ([]domain.DerivedKPI, error) {
	var out []domain.DerivedKPI
	for _, k := range f.kpis {
		if k.CampaignID == campaignID {
			out = append(out, k)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeMetricsRepo) CreateTrendIndicators(_ context.Context, _ []domain.TrendIndicator) error {
	return nil
}

func (f *fakeMetricsRepo) ListTrendIndicators(_ context.Context, _ string, _ int) ([]domain.TrendIndicator, error) {
	return nil, nil
}

func testConfig() config.OptimizationConfig {
	return config.OptimizationConfig{
		AutoApproveThreshold:   0.85,
		MaxProposalsPerHour:    3,
		MaxBudgetChangePct:     0.20,
		MinChannelFloorPct:     0.05,
		DefaultCooldownMinutes: 60,
		TrendPeriodDays:        7,
		ProposalExpiryHours:    24,
	}
}

func newTestEngine(repo *fakeRepo, mrepo *fakeMetricsRepo) *Engine {
	return New(
		repo,
		metrics.NewCollector(mrepo),
		metrics.NewCalculator(mrepo),
		metrics.NewTrendAnalyzer(mrepo),
		method.NewDefaultRegistry(),
		testConfig(),
	)
}

func testCampaign() *domain.Campaign {
	return &domain.Campaign{
		ID:        uuid.NewString(),
		Name:      "Q3 Launch",
		Objective: domain.ObjectiveConversions,
		Status:    domain.CampaignActive,
	}
}

func snap(campaignID, channel string, spend float64, impressions, clicks, conversions int64, revenue float64) domain.ChannelSnapshot {
	end := time.Now().UTC()
	return domain.ChannelSnapshot{
		ID:          uuid.NewString(),
		CampaignID:  campaignID,
		Channel:     channel,
		WindowStart: end.Add(-24 * time.Hour),
		WindowEnd:   end,
		Spend:       spend,
		Impressions: impressions,
		Clicks:      clicks,
		Conversions: conversions,
		Revenue:     revenue,
	}
}

// seedCPATrend plants KPI rows so the analyzer reports a prior CPA of 25
// for the channel against a current value.
func seedCPATrend(mrepo *fakeMetricsRepo, campaignID, channel string, previous, current float64) {
	day := time.Now().UTC().Truncate(24 * time.Hour)
	mrepo.kpis = append(mrepo.kpis,
		kpiWindowRow(campaignID, channel, domain.KPICPA, current, day.AddDate(0, 0, -2), day.AddDate(0, 0, -1)),
		kpiWindowRow(campaignID, channel, domain.KPICPA, previous, day.AddDate(0, 0, -9), day.AddDate(0, 0, -8)),
	)
}

func kpiWindowRow(campaignID, channel, name string, value float64, start, end time.Time) domain.DerivedKPI {
	row := domain.DerivedKPI{
		ID:          uuid.NewString(),
		CampaignID:  campaignID,
		KPIName:     name,
		KPIValue:    value,
		WindowStart: &start,
		WindowEnd:   &end,
	}
	if channel != "" {
		row.Channel = &channel
	}
	return row
}

func TestEngine_CampaignNotFound(t *testing.T) {
	repo := &fakeRepo{}
	eng := newTestEngine(repo, &fakeMetricsRepo{})

	result := eng.Run(context.Background(), "missing-id")

	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "Campaign missing-id not found", result.Errors[0])
}

func TestEngine_NoSnapshots(t *testing.T) {
	campaign := testCampaign()
	repo := &fakeRepo{campaign: campaign}
	eng := newTestEngine(repo, &fakeMetricsRepo{})

	result := eng.Run(context.Background(), campaign.ID)

	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "No channel snapshots available for this campaign", result.Errors[0])
}

func TestEngine_NoOptimizationsTriggered(t *testing.T) {
	campaign := testCampaign()
	snapshots := []domain.ChannelSnapshot{
		snap(campaign.ID, "meta", 1000, 100000, 1000, 20, 1000),
		snap(campaign.ID, "google", 1000, 100000, 1000, 20, 1000),
	}
	repo := &fakeRepo{campaign: campaign, snapshots: snapshots}
	mrepo := &fakeMetricsRepo{snapshots: snapshots}
	eng := newTestEngine(repo, mrepo)

	result := eng.Run(context.Background(), campaign.ID)

	assert.True(t, result.Success)
	assert.Zero(t, result.MethodEvaluations)
	assert.Zero(t, result.ProposalsCreated)
	assert.Equal(t, "No optimizations triggered", result.Details["message"])
}

func TestEngine_CPASpikeQueuedWithCalibratedConfidence(t *testing.T) {
	campaign := testCampaign()
	snapshots := []domain.ChannelSnapshot{
		snap(campaign.ID, "meta", 3000, 300000, 3000, 60, 3000),
		snap(campaign.ID, "google", 2000, 200000, 2000, 133, 6000),
	}
	repo := &fakeRepo{campaign: campaign, snapshots: snapshots}
	mrepo := &fakeMetricsRepo{snapshots: snapshots}
	seedCPATrend(mrepo, campaign.ID, "meta", 25, 50)
	eng := newTestEngine(repo, mrepo)

	result := eng.Run(context.Background(), campaign.ID)

	assert.True(t, result.Success)
	// cpa_spike and budget_reallocation both fire; the reallocation's
	// 25% swing on google trips the budget-change guardrail.
	assert.Equal(t, 2, result.MethodEvaluations)
	assert.Equal(t, 1, result.GuardrailRejections)
	assert.Equal(t, 1, result.ProposalsCreated)
	assert.Equal(t, 0, result.ProposalsAutoApproved)
	assert.Equal(t, 1, result.ProposalsQueued)
	assert.Equal(t, "Created 1 proposal(s): 0 auto-approved, 1 queued", result.Details["message"])

	require.Len(t, repo.proposals, 1)
	p := repo.proposals[0]
	assert.Equal(t, domain.ProposalPending, p.Status)
	assert.Equal(t, domain.ActionBudgetReallocation, p.ActionType)
	assert.Equal(t, 2, p.Priority)
	// 0.95 raw, two snapshots -> x0.8
	assert.Equal(t, 0.76, p.Confidence)

	reductions := p.ActionPayload["reductions"].(map[string]interface{})
	assert.Equal(t, 600.0, reductions["meta"])

	checks := p.GuardrailChecks["checks"].([]interface{})
	assert.Len(t, checks, 4)
	require.NotNil(t, p.ExpiresAt)
	assert.WithinDuration(t, time.Now().UTC().Add(24*time.Hour), *p.ExpiresAt, time.Minute)

	// Method row is lazily registered under the action type.
	require.Len(t, repo.createdMethods, 1)
	m := repo.createdMethods[0]
	assert.Equal(t, domain.ActionBudgetReallocation, m.Name)
	assert.Equal(t, "Auto-registered method for budget_reallocation", m.Description)
	assert.Equal(t, 60, m.CooldownMinutes)
}

func TestEngine_AutoApprovesWithDenseData(t *testing.T) {
	campaign := testCampaign()
	var snapshots []domain.ChannelSnapshot
	for i := 0; i < 5; i++ {
		snapshots = append(snapshots,
			snap(campaign.ID, "meta", 600, 60000, 600, 12, 600),
			snap(campaign.ID, "google", 400, 40000, 400, 27, 1200),
		)
	}
	existing := &domain.OptimizationMethod{
		ID:              uuid.NewString(),
		Name:            domain.ActionBudgetReallocation,
		CooldownMinutes: 60,
	}
	repo := &fakeRepo{
		campaign:  campaign,
		snapshots: snapshots,
		methods:   map[string]*domain.OptimizationMethod{existing.Name: existing},
	}
	mrepo := &fakeMetricsRepo{snapshots: snapshots}
	seedCPATrend(mrepo, campaign.ID, "meta", 25, 50)
	eng := newTestEngine(repo, mrepo)

	result := eng.Run(context.Background(), campaign.ID)

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.ProposalsAutoApproved)

	var found *domain.OptimizationProposal
	for _, p := range repo.proposals {
		if p.Priority == 2 {
			found = p
		}
	}
	require.NotNil(t, found)
	// Ten snapshots and fifty raw rows: no calibration applied.
	assert.Equal(t, 0.95, found.Confidence)
	assert.Equal(t, domain.ProposalAutoApproved, found.Status)
	require.NotNil(t, found.ApprovedBy)
	assert.Equal(t, "engine", *found.ApprovedBy)
	assert.NotNil(t, found.ApprovedAt)
	assert.Equal(t, existing.ID, found.MethodID)
	assert.Empty(t, repo.createdMethods)
}

func TestEngine_RateLimitRejectsEverything(t *testing.T) {
	campaign := testCampaign()
	snapshots := []domain.ChannelSnapshot{
		snap(campaign.ID, "meta", 3000, 300000, 3000, 60, 3000),
		snap(campaign.ID, "google", 2000, 200000, 2000, 133, 6000),
	}
	now := time.Now().UTC()
	repo := &fakeRepo{
		campaign:  campaign,
		snapshots: snapshots,
		proposalTimes: []time.Time{
			now.Add(-5 * time.Minute),
			now.Add(-15 * time.Minute),
			now.Add(-25 * time.Minute),
		},
	}
	mrepo := &fakeMetricsRepo{snapshots: snapshots}
	seedCPATrend(mrepo, campaign.ID, "meta", 25, 50)
	eng := newTestEngine(repo, mrepo)

	result := eng.Run(context.Background(), campaign.ID)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.MethodEvaluations)
	assert.Equal(t, 2, result.GuardrailRejections)
	assert.Zero(t, result.ProposalsCreated)
	assert.Empty(t, repo.proposals)
}

func TestEngine_CooldownRejectsRepeatActionType(t *testing.T) {
	campaign := testCampaign()
	snapshots := []domain.ChannelSnapshot{
		snap(campaign.ID, "meta", 3000, 300000, 3000, 60, 3000),
		snap(campaign.ID, "google", 2000, 200000, 2000, 133, 6000),
	}
	tenMinutesAgo := time.Now().UTC().Add(-10 * time.Minute)
	repo := &fakeRepo{
		campaign:  campaign,
		snapshots: snapshots,
		lastByAction: map[string]*time.Time{
			domain.ActionBudgetReallocation: &tenMinutesAgo,
		},
	}
	mrepo := &fakeMetricsRepo{snapshots: snapshots}
	seedCPATrend(mrepo, campaign.ID, "meta", 25, 50)
	eng := newTestEngine(repo, mrepo)

	result := eng.Run(context.Background(), campaign.ID)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.GuardrailRejections)
	assert.Zero(t, result.ProposalsCreated)
}

func TestCalibrateConfidence(t *testing.T) {
	// Sparse snapshots and sparse raw metrics stack multiplicatively.
	assert.Equal(t, 0.612, calibrateConfidence(0.9, 3, 5))
	// Mid-density snapshots only.
	assert.Equal(t, 0.81, calibrateConfidence(0.9, 8, 40))
	// Dense data passes through.
	assert.Equal(t, 0.9, calibrateConfidence(0.9, 12, 60))
	// Clamped to [0,1].
	assert.Equal(t, 1.0, calibrateConfidence(1.4, 12, 60))
}
