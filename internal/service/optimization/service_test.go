package optimization

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-optimizer/internal/domain"
	"github.com/ignite/campaign-optimizer/internal/service/method"
)

type fakeRepo struct {
	campaigns map[string]bool
	proposals map[string]*domain.OptimizationProposal
	methods   map[string]*domain.OptimizationMethod
	learnings []domain.OptimizationLearning
	runs      []domain.MonitorRun
	kpis      []domain.DerivedKPI
	rawCount  int
	trendCnt  int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		campaigns: map[string]bool{},
		proposals: map[string]*domain.OptimizationProposal{},
		methods:   map[string]*domain.OptimizationMethod{},
	}
}

func (f *fakeRepo) CampaignExists(_ context.Context, id string) (bool, error) {
	return f.campaigns[id], nil
}

func (f *fakeRepo) ListProposals(_ context.Context, campaignID, status string) ([]domain.OptimizationProposal, error) {
	var out []domain.OptimizationProposal
	for _, p := range f.proposals {
		if p.CampaignID != campaignID {
			continue
		}
		if status != "" && string(p.Status) != status {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeRepo) GetProposal(_ context.Context, id string) (*domain.OptimizationProposal, error) {
	if p, ok := f.proposals[id]; ok {
		return p, nil
	}
	return nil, ErrProposalNotFound
}

func (f *fakeRepo) UpdateProposalReview(_ context.Context, p *domain.OptimizationProposal) error {
	f.proposals[p.ID] = p
	return nil
}

func (f *fakeRepo) ListMethods(_ context.Context) ([]domain.OptimizationMethod, error) {
	var out []domain.OptimizationMethod
	for _, m := range f.methods {
		out = append(out, *m)
	}
	return out, nil
}

func (f *fakeRepo) GetMethod(_ context.Context, id string) (*domain.OptimizationMethod, error) {
	if m, ok := f.methods[id]; ok {
		return m, nil
	}
	return nil, ErrMethodNotFound
}

func (f *fakeRepo) GetMethodByName(_ context.Context, name string) (*domain.OptimizationMethod, error) {
	for _, m := range f.methods {
		if m.Name == name {
			return m, nil
		}
	}
	return nil, ErrMethodNotFound
}

func (f *fakeRepo) CreateMethod(_ context.Context, m *domain.OptimizationMethod) error {
	f.methods[m.ID] = m
	return nil
}

func (f *fakeRepo) UpdateMethod(_ context.Context, m *domain.OptimizationMethod) error {
	f.methods[m.ID] = m
	return nil
}

func (f *fakeRepo) ListLearnings(_ context.Context, campaignID string) ([]domain.OptimizationLearning, error) {
	var out []domain.OptimizationLearning
	for _, l := range f.learnings {
		if l.CampaignID == campaignID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListMonitorRuns(_ context.Context, campaignID string) ([]domain.MonitorRun, error) {
	var out []domain.MonitorRun
	for _, r := range f.runs {
		if r.CampaignID == campaignID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRepo) CountRawMetrics(_ context.Context, _ string) (int, error) {
	return f.rawCount, nil
}

func (f *fakeRepo) CountTrendIndicators(_ context.Context, _ string) (int, error) {
	return f.trendCnt, nil
}

func (f *fakeRepo) ListDerivedKPIs(_ context.Context, campaignID string) ([]domain.DerivedKPI, error) {
	var out []domain.DerivedKPI
	for _, k := range f.kpis {
		if k.CampaignID == campaignID {
			out = append(out, k)
		}
	}
	return out, nil
}

func pendingProposal(campaignID string) *domain.OptimizationProposal {
	return &domain.OptimizationProposal{
		ID:         uuid.NewString(),
		CampaignID: campaignID,
		MethodID:   uuid.NewString(),
		Status:     domain.ProposalPending,
		ActionType: domain.ActionBudgetReallocation,
	}
}

func TestReviewProposal(t *testing.T) {
	repo := newFakeRepo()
	p := pendingProposal("c-1")
	repo.proposals[p.ID] = p
	svc := NewService(repo)

	reviewed, err := svc.ReviewProposal(context.Background(), p.ID, "approve", "ops@example.com")

	require.NoError(t, err)
	assert.Equal(t, domain.ProposalApproved, reviewed.Status)
	require.NotNil(t, reviewed.ApprovedBy)
	assert.Equal(t, "ops@example.com", *reviewed.ApprovedBy)
	assert.NotNil(t, reviewed.ApprovedAt)
}

func TestReviewProposalReject(t *testing.T) {
	repo := newFakeRepo()
	p := pendingProposal("c-1")
	repo.proposals[p.ID] = p
	svc := NewService(repo)

	reviewed, err := svc.ReviewProposal(context.Background(), p.ID, "reject", "ops@example.com")

	require.NoError(t, err)
	assert.Equal(t, domain.ProposalRejected, reviewed.Status)
	assert.NotNil(t, reviewed.ApprovedAt, "rejections record the reviewer too")
}

func TestReviewProposalInvalidAction(t *testing.T) {
	repo := newFakeRepo()
	p := pendingProposal("c-1")
	repo.proposals[p.ID] = p
	svc := NewService(repo)

	_, err := svc.ReviewProposal(context.Background(), p.ID, "maybe", "ops@example.com")

	assert.ErrorIs(t, err, ErrInvalidAction)
	assert.Equal(t, domain.ProposalPending, repo.proposals[p.ID].Status)
}

func TestListProposalsRequiresCampaign(t *testing.T) {
	svc := NewService(newFakeRepo())

	_, err := svc.ListProposals(context.Background(), "nope", "")

	assert.ErrorIs(t, err, ErrCampaignNotFound)
}

func TestUpdateMethod(t *testing.T) {
	repo := newFakeRepo()
	m := &domain.OptimizationMethod{
		ID:              uuid.NewString(),
		Name:            "cpa_spike",
		IsActive:        true,
		CooldownMinutes: 60,
	}
	repo.methods[m.ID] = m
	svc := NewService(repo)

	inactive := false
	cooldown := 120
	updated, err := svc.UpdateMethod(context.Background(), m.ID, MethodUpdate{
		IsActive:        &inactive,
		CooldownMinutes: &cooldown,
		Config:          map[string]interface{}{"threshold": 0.3},
	})

	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.Equal(t, 120, updated.CooldownMinutes)
	assert.Equal(t, 0.3, updated.Config["threshold"])

	negative := -5
	_, err = svc.UpdateMethod(context.Background(), m.ID, MethodUpdate{CooldownMinutes: &negative})
	assert.EqualError(t, err, "cooldown_minutes must not be negative")
}

func TestSeedMethods(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	registry := method.NewDefaultRegistry()

	created, err := svc.SeedMethods(context.Background(), registry, 60)

	require.NoError(t, err)
	assert.Equal(t, 3, created)
	assert.Len(t, repo.methods, 3)

	seeded, err := repo.GetMethodByName(context.Background(), "cpa_spike")
	require.NoError(t, err)
	assert.True(t, seeded.IsActive)
	assert.Equal(t, 60, seeded.CooldownMinutes)
	assert.Equal(t, domain.MethodReactive, seeded.MethodType)
	assert.NotEmpty(t, seeded.Description)

	// Second run is a no-op.
	created, err = svc.SeedMethods(context.Background(), registry, 60)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Len(t, repo.methods, 3)
}

func TestMetricsSnapshot(t *testing.T) {
	repo := newFakeRepo()
	repo.campaigns["c-1"] = true
	repo.rawCount = 10
	repo.trendCnt = 2

	meta := "meta"
	older := time.Now().UTC().Add(-time.Hour)
	// Newest first, the way the repository returns them.
	repo.kpis = []domain.DerivedKPI{
		{CampaignID: "c-1", Channel: nil, KPIName: "roas", KPIValue: 2.5},
		{CampaignID: "c-1", Channel: nil, KPIName: "roas", KPIValue: 1.0, ComputedAt: older},
		{CampaignID: "c-1", Channel: nil, KPIName: "cpa", KPIValue: 20},
		{CampaignID: "c-1", Channel: &meta, KPIName: "ctr", KPIValue: 0.02},
		{CampaignID: "c-1", Channel: &meta, KPIName: "ctr", KPIValue: 0.01, ComputedAt: older},
	}
	svc := NewService(repo)

	snap, err := svc.MetricsSnapshot(context.Background(), "c-1")

	require.NoError(t, err)
	assert.Equal(t, 2.5, snap.KPIs["roas"], "latest value wins")
	assert.Equal(t, 20.0, snap.KPIs["cpa"])
	require.Len(t, snap.ChannelData, 1)
	assert.Equal(t, "meta", snap.ChannelData[0].Channel)
	assert.Equal(t, 0.02, snap.ChannelData[0].KPIs["ctr"])
	assert.Equal(t, 10, snap.RawMetricsCount)
	assert.Equal(t, 3, snap.KPICount)
	assert.Equal(t, 2, snap.TrendCount)
}
