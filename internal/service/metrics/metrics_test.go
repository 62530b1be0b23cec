package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/ignite/campaign-optimizer/internal/domain"
)

// fakeRepo is an in-memory Repository for service tests.
type fakeRepo struct {
	snapshots []domain.ChannelSnapshot
	raws      []domain.RawMetric
	kpis      []domain.DerivedKPI
	trends    []domain.TrendIndicator
}

func (f *fakeRepo) ListSnapshots(_ context.Context, campaignID string, windowStart, windowEnd *time.Time) ([]domain.ChannelSnapshot, error) {
	var out []domain.ChannelSnapshot
	for _, s := range f.snapshots {
		if s.CampaignID != campaignID {
			continue
		}
		if windowStart != nil && s.WindowStart.Before(*windowStart) {
			continue
		}
		if windowEnd != nil && s.WindowEnd.After(*windowEnd) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeRepo) CreateRawMetrics(_ context.Context, metrics []domain.RawMetric) error {
	f.raws = append(f.raws, metrics...)
	return nil
}

func (f *fakeRepo) ListRawMetrics(_ context.Context, campaignID string, _, _ *time.Time) ([]domain.RawMetric, error) {
	var out []domain.RawMetric
	for _, m := range f.raws {
		if m.CampaignID == campaignID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateDerivedKPIs(_ context.Context, kpis []domain.DerivedKPI) error {
	f.kpis = append(f.kpis, kpis...)
	return nil
}

func (f *fakeRepo) ListKPIsInWindow(_ context.Context, campaignID string, start, end time.Time) ([]domain.DerivedKPI, error) {
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

func (f *fakeRepo) ListDerivedKPIs(_ context.Context, campaignID string, limit int) ([]domain.DerivedKPI, error) {
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

func (f *fakeRepo) CreateTrendIndicators(_ context.Context, trends []domain.TrendIndicator) error {
	f.trends = append(f.trends, trends...)
	return nil
}

func (f *fakeRepo) ListTrendIndicators(_ context.Context, campaignID string, limit int) ([]domain.TrendIndicator, error) {
	var out []domain.TrendIndicator
	for _, t := range f.trends {
		if t.CampaignID == campaignID {
			out = append(out, t)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func snapshot(campaignID, channel string, spend float64, impressions, clicks, conversions int64, revenue float64) domain.ChannelSnapshot {
	now := time.Now().UTC()
	return domain.ChannelSnapshot{
		ID:          channel + "-snap",
		CampaignID:  campaignID,
		Channel:     channel,
		WindowStart: now.AddDate(0, 0, -7),
		WindowEnd:   now,
		Spend:       spend,
		Impressions: impressions,
		Clicks:      clicks,
		Conversions: conversions,
		Revenue:     revenue,
	}
}

// =============================================================================
// COLLECTOR TESTS
// =============================================================================

func TestCollector_EmitsFiveRowsPerSnapshot(t *testing.T) {
	repo := &fakeRepo{snapshots: []domain.ChannelSnapshot{
		snapshot("c1", "meta", 3000, 300000, 3000, 60, 3000),
		snapshot("c1", "google", 2000, 200000, 2000, 133, 6000),
	}}
	collector := NewCollector(repo)

	rows, err := collector.Collect(context.Background(), "c1", nil, nil)
	if err != nil {
		t.Fatalf("Collect() error: %v", err)
	}
	if len(rows) != 10 {
		t.Fatalf("Collect() = %d rows, want 10", len(rows))
	}
	if len(repo.raws) != 10 {
		t.Errorf("persisted %d rows, want 10", len(repo.raws))
	}

	for _, row := range rows {
		if row.Source != "snapshot" {
			t.Errorf("source = %q, want snapshot", row.Source)
		}
		if row.WindowStart == nil || row.WindowEnd == nil {
			t.Error("raw metric missing window bounds")
		}
	}
}

func TestCollector_PreservesZeroValues(t *testing.T) {
	repo := &fakeRepo{snapshots: []domain.ChannelSnapshot{
		snapshot("c1", "meta", 0, 0, 0, 0, 0),
	}}
	collector := NewCollector(repo)

	rows, err := collector.Collect(context.Background(), "c1", nil, nil)
	if err != nil {
		t.Fatalf("Collect() error: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("Collect() = %d rows, want 5 (zeros preserved)", len(rows))
	}
	for _, row := range rows {
		if row.MetricValue != 0 {
			t.Errorf("%s = %v, want 0", row.MetricName, row.MetricValue)
		}
	}
}

func TestCollector_NoSnapshots(t *testing.T) {
	collector := NewCollector(&fakeRepo{})

	rows, err := collector.Collect(context.Background(), "c1", nil, nil)
	if err != nil {
		t.Fatalf("Collect() error: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("Collect() = %d rows, want 0", len(rows))
	}
}

// =============================================================================
// KPI CALCULATOR TESTS
// =============================================================================

func TestCalculator_DerivesSixKPIs(t *testing.T) {
	repo := &fakeRepo{snapshots: []domain.ChannelSnapshot{
		snapshot("c1", "meta", 3000, 300000, 3000, 60, 3000),
	}}
	collector := NewCollector(repo)
	raws, err := collector.Collect(context.Background(), "c1", nil, nil)
	if err != nil {
		t.Fatalf("Collect() error: %v", err)
	}

	calc := NewCalculator(repo)
	rows, err := calc.Compute(context.Background(), "c1", raws, nil, nil)
	if err != nil {
		t.Fatalf("Compute() error: %v", err)
	}

	// One channel + campaign-level, six KPIs each.
	if len(rows) != 12 {
		t.Fatalf("Compute() = %d rows, want 12", len(rows))
	}

	want := map[string]float64{
		domain.KPICTR:  0.01,
		domain.KPICVR:  0.02,
		domain.KPICPC:  1.0,
		domain.KPICPM:  10.0,
		domain.KPICPA:  50.0,
		domain.KPIROAS: 1.0,
	}
	for _, row := range rows {
		if row.Channel != nil {
			continue
		}
		if got, ok := want[row.KPIName]; !ok || row.KPIValue != got {
			t.Errorf("campaign %s = %v, want %v", row.KPIName, row.KPIValue, want[row.KPIName])
		}
	}
}

func TestCalculator_SafeDivisionOmitsKPI(t *testing.T) {
	// Zero clicks: cvr and cpc must not be written.
	repo := &fakeRepo{snapshots: []domain.ChannelSnapshot{
		snapshot("c1", "meta", 100, 1000, 0, 0, 0),
	}}
	collector := NewCollector(repo)
	raws, _ := collector.Collect(context.Background(), "c1", nil, nil)

	calc := NewCalculator(repo)
	rows, err := calc.Compute(context.Background(), "c1", raws, nil, nil)
	if err != nil {
		t.Fatalf("Compute() error: %v", err)
	}

	for _, row := range rows {
		switch row.KPIName {
		case domain.KPICVR, domain.KPICPC, domain.KPICPA, domain.KPIROAS:
			t.Errorf("KPI %s written despite zero denominator", row.KPIName)
		}
		if row.KPIValue == 0 {
			t.Errorf("KPI %s has zero value; zero-denominator KPIs must be omitted, not zeroed", row.KPIName)
		}
	}
}

func TestCalculator_LoadsRawMetricsWhenNil(t *testing.T) {
	repo := &fakeRepo{snapshots: []domain.ChannelSnapshot{
		snapshot("c1", "meta", 500, 50000, 500, 10, 1500),
	}}
	collector := NewCollector(repo)
	if _, err := collector.Collect(context.Background(), "c1", nil, nil); err != nil {
		t.Fatalf("Collect() error: %v", err)
	}

	calc := NewCalculator(repo)
	rows, err := calc.Compute(context.Background(), "c1", nil, nil, nil)
	if err != nil {
		t.Fatalf("Compute() error: %v", err)
	}
	if len(rows) == 0 {
		t.Fatal("Compute() with nil raws returned no rows")
	}
}

// =============================================================================
// TREND ANALYZER TESTS
// =============================================================================

func kpiRow(campaignID, channel, name string, value float64, start, end time.Time) domain.DerivedKPI {
	row := domain.DerivedKPI{
		CampaignID:  campaignID,
		KPIName:     name,
		KPIValue:    value,
		WindowStart: &start,
		WindowEnd:   &end,
		ComputedAt:  time.Now().UTC(),
	}
	if channel != "" {
		row.Channel = &channel
	}
	return row
}

func TestTrendAnalyzer_ClassifiesDirections(t *testing.T) {
	now := time.Now().UTC().Truncate(24 * time.Hour)
	curStart := now.AddDate(0, 0, -3)
	curEnd := now.AddDate(0, 0, -1)
	prevStart := now.AddDate(0, 0, -10)
	prevEnd := now.AddDate(0, 0, -8)

	repo := &fakeRepo{kpis: []domain.DerivedKPI{
		// CPA doubled: improving in raw numeric terms.
		kpiRow("c1", "meta", domain.KPICPA, 50, curStart, curEnd),
		kpiRow("c1", "meta", domain.KPICPA, 25, prevStart, prevEnd),
		// CTR dropped 50%.
		kpiRow("c1", "meta", domain.KPICTR, 0.01, curStart, curEnd),
		kpiRow("c1", "meta", domain.KPICTR, 0.02, prevStart, prevEnd),
		// ROAS within the stable band.
		kpiRow("c1", "meta", domain.KPIROAS, 2.01, curStart, curEnd),
		kpiRow("c1", "meta", domain.KPIROAS, 2.0, prevStart, prevEnd),
	}}

	analyzer := NewTrendAnalyzer(repo)
	trends, err := analyzer.Analyze(context.Background(), "c1", 7)
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}
	if len(trends) != 3 {
		t.Fatalf("Analyze() = %d trends, want 3", len(trends))
	}

	byKPI := map[string]domain.TrendIndicator{}
	for _, tr := range trends {
		byKPI[tr.KPIName] = tr
	}

	if got := byKPI[domain.KPICPA]; got.Direction != domain.TrendImproving || got.Magnitude != 1.0 {
		t.Errorf("cpa trend = %s/%v, want improving/1.0", got.Direction, got.Magnitude)
	}
	if got := byKPI[domain.KPICTR]; got.Direction != domain.TrendDeclining || got.Magnitude != 0.5 {
		t.Errorf("ctr trend = %s/%v, want declining/0.5", got.Direction, got.Magnitude)
	}
	if got := byKPI[domain.KPIROAS]; got.Direction != domain.TrendStable {
		t.Errorf("roas trend = %s, want stable", got.Direction)
	}

	// Confidence caps at 0.9: both 0.5+1.0 and 0.5+0.5 hit the cap.
	if got := byKPI[domain.KPICPA]; got.Confidence != 0.9 {
		t.Errorf("cpa confidence = %v, want 0.9 (capped)", got.Confidence)
	}
	if got := byKPI[domain.KPICTR]; got.Confidence != 0.9 {
		t.Errorf("ctr confidence = %v, want 0.9 (capped)", got.Confidence)
	}
}

func TestTrendAnalyzer_SkipsZeroPrevious(t *testing.T) {
	now := time.Now().UTC().Truncate(24 * time.Hour)
	repo := &fakeRepo{kpis: []domain.DerivedKPI{
		kpiRow("c1", "meta", domain.KPIROAS, 3, now.AddDate(0, 0, -2), now.AddDate(0, 0, -1)),
		kpiRow("c1", "meta", domain.KPIROAS, 0, now.AddDate(0, 0, -10), now.AddDate(0, 0, -9)),
	}}

	analyzer := NewTrendAnalyzer(repo)
	trends, err := analyzer.Analyze(context.Background(), "c1", 7)
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}
	if len(trends) != 0 {
		t.Errorf("Analyze() = %d trends, want 0 for zero previous", len(trends))
	}
}

func TestTrendAnalyzer_RequiresKeyInBothBuckets(t *testing.T) {
	now := time.Now().UTC().Truncate(24 * time.Hour)
	repo := &fakeRepo{kpis: []domain.DerivedKPI{
		kpiRow("c1", "meta", domain.KPICTR, 0.01, now.AddDate(0, 0, -2), now.AddDate(0, 0, -1)),
	}}

	analyzer := NewTrendAnalyzer(repo)
	trends, err := analyzer.Analyze(context.Background(), "c1", 7)
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}
	if len(trends) != 0 {
		t.Errorf("Analyze() = %d trends, want 0 when previous bucket empty", len(trends))
	}
}

// =============================================================================
// MEASUREMENT TESTS
// =============================================================================

func TestBuildReport_SharesAndEfficiency(t *testing.T) {
	snapshots := []domain.ChannelSnapshot{
		snapshot("c1", "meta", 3000, 300000, 3000, 60, 3000),
		snapshot("c1", "google", 2000, 200000, 2000, 133, 6000),
	}

	report := BuildReport("c1", snapshots, nil, nil)

	if report.Totals.Spend != 5000 {
		t.Errorf("total spend = %v, want 5000", report.Totals.Spend)
	}
	if len(report.ByChannel) != 2 {
		t.Fatalf("by_channel has %d entries, want 2", len(report.ByChannel))
	}

	// Sorted alphabetically: google first.
	google := report.ByChannel[0]
	meta := report.ByChannel[1]
	if google.Channel != "google" || meta.Channel != "meta" {
		t.Fatalf("channel order = %s,%s; want google,meta", google.Channel, meta.Channel)
	}

	// google: 40% of spend, ~68.9% of conversions — efficiency > 1.
	if got := google.KPIs["spend_share"]; got != 0.4 {
		t.Errorf("google spend_share = %v, want 0.4", got)
	}
	if google.KPIs["efficiency_index"] <= 1 {
		t.Errorf("google efficiency_index = %v, want > 1", google.KPIs["efficiency_index"])
	}
	if meta.KPIs["efficiency_index"] >= 1 {
		t.Errorf("meta efficiency_index = %v, want < 1", meta.KPIs["efficiency_index"])
	}

	// cac mirrors cpa.
	if meta.KPIs["cac"] != meta.KPIs[domain.KPICPA] {
		t.Errorf("cac = %v, cpa = %v; want equal", meta.KPIs["cac"], meta.KPIs[domain.KPICPA])
	}
}

func TestBuildReport_EmptySnapshots(t *testing.T) {
	report := BuildReport("c1", nil, nil, nil)
	if len(report.KPIs) != 0 {
		t.Errorf("empty report has %d KPIs, want 0", len(report.KPIs))
	}
	if len(report.ByChannel) != 0 {
		t.Errorf("empty report has %d channels, want 0", len(report.ByChannel))
	}
}
