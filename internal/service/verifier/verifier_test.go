package verifier

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-optimizer/internal/config"
	"github.com/ignite/campaign-optimizer/internal/domain"
	"github.com/ignite/campaign-optimizer/internal/service/metrics"
)

type fakeRepo struct {
	proposals map[string]*domain.OptimizationProposal
	learnings []*domain.OptimizationLearning
	methods   map[string]*domain.OptimizationMethod
	snapshots int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		proposals: map[string]*domain.OptimizationProposal{},
		methods:   map[string]*domain.OptimizationMethod{},
	}
}

func (f *fakeRepo) GetProposal(_ context.Context, id string) (*domain.OptimizationProposal, error) {
	if p, ok := f.proposals[id]; ok {
		return p, nil
	}
	return nil, ErrProposalNotFound
}

func (f *fakeRepo) ListExecutedProposals(_ context.Context, campaignID string) ([]domain.OptimizationProposal, error) {
	var out []domain.OptimizationProposal
	for _, p := range f.proposals {
		if p.CampaignID == campaignID && p.Status == domain.ProposalExecuted && p.ExecutedAt != nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetVerifiedLearning(_ context.Context, proposalID string) (*domain.OptimizationLearning, error) {
	for _, l := range f.learnings {
		if l.ProposalID == proposalID && l.VerificationStatus == domain.VerificationVerified {
			return l, nil
		}
	}
	return nil, ErrLearningNotFound
}

func (f *fakeRepo) CreateLearning(_ context.Context, l *domain.OptimizationLearning) error {
	f.learnings = append(f.learnings, l)
	return nil
}

func (f *fakeRepo) GetMethod(_ context.Context, id string) (*domain.OptimizationMethod, error) {
	if m, ok := f.methods[id]; ok {
		return m, nil
	}
	return nil, ErrMethodNotFound
}

func (f *fakeRepo) UpdateMethodStats(_ context.Context, methodID string, stats domain.MethodStats) error {
	f.methods[methodID].Stats = stats
	return nil
}

func (f *fakeRepo) CountSnapshots(_ context.Context, _ string) (int, error) {
	return f.snapshots, nil
}

func (f *fakeRepo) InTx(_ context.Context, fn func(Repository) error) error {
	return fn(f)
}

type fakeMetricsRepo struct {
	snapshots []domain.ChannelSnapshot
	raws      []domain.RawMetric
	kpis      []domain.DerivedKPI
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
	for _, m := range f.raws {
		if m.CampaignID == campaignID {
			out = append(out, m)
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
	return nil, nil
}

func (f *fakeMetricsRepo) CreateTrendIndicators(_ context.Context, _ []domain.TrendIndicator) error {
	return nil
}

func (f *fakeMetricsRepo) ListTrendIndicators(_ context.Context, _ string, _ int) ([]domain.TrendIndicator, error) {
	return nil, nil
}

func testConfig() config.OptimizationConfig {
	return config.OptimizationConfig{
		VerificationDelayHours: 24,
		BatchVerifyMaxAgeHours: 48,
	}
}

func newTestVerifier(repo *fakeRepo, mrepo *fakeMetricsRepo) *Verifier {
	return New(repo, metrics.NewCollector(mrepo), metrics.NewCalculator(mrepo), testConfig())
}

func executedProposal(campaignID, actionType string, executedAgo time.Duration) *domain.OptimizationProposal {
	at := time.Now().UTC().Add(-executedAgo)
	return &domain.OptimizationProposal{
		ID:         uuid.NewString(),
		CampaignID: campaignID,
		MethodID:   uuid.NewString(),
		Status:     domain.ProposalExecuted,
		Confidence: 0.8,
		ActionType: actionType,
		ActionPayload: map[string]interface{}{
			"new_allocations": map[string]interface{}{"meta": 2500.0},
		},
		ExecutedAt: &at,
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

func TestVerifier_ProposalNotFound(t *testing.T) {
	v := newTestVerifier(newFakeRepo(), &fakeMetricsRepo{})

	result := v.VerifyProposal(context.Background(), "missing", 0)

	assert.False(t, result.Success)
	assert.Equal(t, "Proposal not found", result.Error)
}

func TestVerifier_RequiresExecutedStatus(t *testing.T) {
	repo := newFakeRepo()
	p := executedProposal("c-1", domain.ActionBudgetReallocation, 48*time.Hour)
	p.Status = domain.ProposalApproved
	repo.proposals[p.ID] = p
	v := newTestVerifier(repo, &fakeMetricsRepo{})

	result := v.VerifyProposal(context.Background(), p.ID, 0)

	assert.False(t, result.Success)
	assert.Equal(t, "Proposal must be executed to verify (status: approved)", result.Error)
}

func TestVerifier_WindowNotReached(t *testing.T) {
	repo := newFakeRepo()
	p := executedProposal("c-1", domain.ActionBudgetReallocation, 2*time.Hour)
	repo.proposals[p.ID] = p
	v := newTestVerifier(repo, &fakeMetricsRepo{})

	result := v.VerifyProposal(context.Background(), p.ID, 0)

	assert.False(t, result.Success)
	assert.Equal(t, "pending", result.Error)
	assert.True(t, result.Pending())
	assert.Equal(t, "pending", result.Details["status"])
	assert.Contains(t, result.Details["message"], "Verification window not reached.")
	assert.NotEmpty(t, result.Details["earliest_verification"])
	assert.Empty(t, repo.learnings)
}

func TestVerifier_IdempotentReplay(t *testing.T) {
	repo := newFakeRepo()
	p := executedProposal("c-1", domain.ActionBudgetReallocation, 48*time.Hour)
	repo.proposals[p.ID] = p
	score := 0.7
	repo.learnings = append(repo.learnings, &domain.OptimizationLearning{
		ID:                 "learning-1",
		ProposalID:         p.ID,
		AccuracyScore:      &score,
		VerificationStatus: domain.VerificationVerified,
	})
	v := newTestVerifier(repo, &fakeMetricsRepo{})

	result := v.VerifyProposal(context.Background(), p.ID, 0)

	assert.True(t, result.Success)
	assert.Equal(t, "learning-1", result.LearningID)
	require.NotNil(t, result.AccuracyScore)
	assert.Equal(t, 0.7, *result.AccuracyScore)
	assert.Equal(t, true, result.Details["idempotent"])
	assert.Equal(t, true, result.Details["already_verified"])
	assert.Len(t, repo.learnings, 1, "no second learning row")
}

func TestVerifier_BudgetAccuracyFromROAS(t *testing.T) {
	repo := newFakeRepo()
	p := executedProposal("c-1", domain.ActionBudgetReallocation, 48*time.Hour)
	repo.proposals[p.ID] = p
	repo.methods[p.MethodID] = &domain.OptimizationMethod{ID: p.MethodID, Name: "budget_reallocation"}
	repo.snapshots = 1

	mrepo := &fakeMetricsRepo{}
	// spend 1000, revenue 1500 → ROAS 1.5 → accuracy 0.5
	mrepo.snapshots = append(mrepo.snapshots, snap("c-1", "meta", 1000, 100000, 2000, 50, 1500))
	v := newTestVerifier(repo, mrepo)

	result := v.VerifyProposal(context.Background(), p.ID, 0)

	require.True(t, result.Success, result.Error)
	require.NotNil(t, result.AccuracyScore)
	assert.Equal(t, 0.5, *result.AccuracyScore)

	require.Len(t, repo.learnings, 1)
	learning := repo.learnings[0]
	assert.Equal(t, domain.VerificationVerified, learning.VerificationStatus)
	assert.Equal(t, domain.ActionBudgetReallocation, learning.Details["action_type"])
	assert.Equal(t, 24, learning.Details["verification_window_hours"])
	assert.Equal(t, domain.ActionBudgetReallocation, learning.PredictedImpact["action_type"])
	assert.Equal(t, 1, learning.ActualImpact["snapshot_count"])
	assert.Equal(t, 5, learning.ActualImpact["raw_metrics_count"])

	stats := repo.methods[p.MethodID].Stats
	assert.Equal(t, 1, stats.TotalExecutions)
	assert.Equal(t, 1, stats.SuccessfulExecutions)
	assert.Equal(t, 0.5, stats.AvgAccuracy)
	assert.NotNil(t, stats.LastVerifiedAt)
}

func TestVerifier_CreativeRefreshAccuracyFromCTR(t *testing.T) {
	repo := newFakeRepo()
	p := executedProposal("c-1", domain.ActionCreativeRefresh, 48*time.Hour)
	p.ActionPayload = map[string]interface{}{"channels": []interface{}{"meta"}}
	repo.proposals[p.ID] = p
	repo.snapshots = 1

	mrepo := &fakeMetricsRepo{}
	// 1500 clicks / 100000 impressions → CTR 0.015 → accuracy 0.75
	mrepo.snapshots = append(mrepo.snapshots, snap("c-1", "meta", 1000, 100000, 1500, 50, 0))
	v := newTestVerifier(repo, mrepo)

	result := v.VerifyProposal(context.Background(), p.ID, 0)

	require.True(t, result.Success, result.Error)
	require.NotNil(t, result.AccuracyScore)
	assert.Equal(t, 0.75, *result.AccuracyScore)
	assert.Equal(t, "ctr", repo.learnings[0].PredictedImpact["expected_improvement"])
}

func TestVerifier_NoSnapshotsScoresNeutral(t *testing.T) {
	repo := newFakeRepo()
	p := executedProposal("c-1", domain.ActionBudgetReallocation, 48*time.Hour)
	repo.proposals[p.ID] = p
	repo.snapshots = 0
	v := newTestVerifier(repo, &fakeMetricsRepo{})

	result := v.VerifyProposal(context.Background(), p.ID, 0)

	require.True(t, result.Success, result.Error)
	require.NotNil(t, result.AccuracyScore)
	assert.Equal(t, 0.5, *result.AccuracyScore)
	assert.Equal(t, "no_snapshots", repo.learnings[0].ActualImpact["error"])
}

func TestVerifier_MethodStatsRunningAverage(t *testing.T) {
	repo := newFakeRepo()
	methodID := uuid.NewString()
	repo.methods[methodID] = &domain.OptimizationMethod{
		ID:   methodID,
		Name: "budget_reallocation",
		Stats: domain.MethodStats{
			TotalExecutions:      2,
			SuccessfulExecutions: 1,
			AvgAccuracy:          0.6,
		},
	}
	repo.snapshots = 1

	mrepo := &fakeMetricsRepo{}
	// ROAS 3.0 → accuracy 1.0
	mrepo.snapshots = append(mrepo.snapshots, snap("c-1", "meta", 1000, 100000, 2000, 50, 3000))

	p := executedProposal("c-1", domain.ActionBudgetReallocation, 48*time.Hour)
	p.MethodID = methodID
	repo.proposals[p.ID] = p
	v := newTestVerifier(repo, mrepo)

	result := v.VerifyProposal(context.Background(), p.ID, 0)

	require.True(t, result.Success, result.Error)
	stats := repo.methods[methodID].Stats
	assert.Equal(t, 3, stats.TotalExecutions)
	assert.Equal(t, 2, stats.SuccessfulExecutions)
	// (0.6*2 + 1.0) / 3
	assert.Equal(t, 0.7333, stats.AvgAccuracy)
}

func TestVerifier_Batch(t *testing.T) {
	repo := newFakeRepo()
	repo.snapshots = 1
	mrepo := &fakeMetricsRepo{}
	mrepo.snapshots = append(mrepo.snapshots, snap("c-1", "meta", 1000, 100000, 2000, 50, 3000))

	ripe := executedProposal("c-1", domain.ActionBudgetReallocation, 30*time.Hour)
	young := executedProposal("c-1", domain.ActionBudgetReallocation, 2*time.Hour)
	stale := executedProposal("c-1", domain.ActionBudgetReallocation, 72*time.Hour)
	for _, p := range []*domain.OptimizationProposal{ripe, young, stale} {
		repo.proposals[p.ID] = p
	}
	v := newTestVerifier(repo, mrepo)

	result := v.VerifyBatch(context.Background(), "c-1", 0)

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 1, result.Verified)
	assert.Equal(t, 1, result.Pending)
	assert.Equal(t, 0, result.Failed)
	assert.Len(t, result.Records, 2, "stale proposal is skipped entirely")
}

func TestAccuracyScore_Fallbacks(t *testing.T) {
	cases := []struct {
		name      string
		predicted map[string]interface{}
		actual    map[string]interface{}
		want      float64
	}{
		{
			name:      "measurement error",
			predicted: map[string]interface{}{"action_type": domain.ActionBudgetReallocation},
			actual:    map[string]interface{}{"error": "no_snapshots"},
			want:      0.5,
		},
		{
			name:      "unknown action type",
			predicted: map[string]interface{}{"action_type": "pause_channel"},
			actual:    map[string]interface{}{"campaign_kpis": map[string]interface{}{"roas": 5.0}},
			want:      0.5,
		},
		{
			name:      "cpa path when no revenue",
			predicted: map[string]interface{}{"action_type": domain.ActionBudgetReallocation},
			actual:    map[string]interface{}{"campaign_kpis": map[string]interface{}{"cpa": 60.0}},
			want:      0.5,
		},
		{
			name:      "roas capped at one",
			predicted: map[string]interface{}{"action_type": domain.ActionBudgetReallocation},
			actual:    map[string]interface{}{"campaign_kpis": map[string]interface{}{"roas": 9.0}},
			want:      1.0,
		},
	}

	for i, tc := range cases {
		t.Run(fmt.Sprintf("%d_%s", i, tc.name), func(t *testing.T) {
			assert.Equal(t, tc.want, accuracyScore(tc.predicted, tc.actual))
		})
	}
}
