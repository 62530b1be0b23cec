package metrics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/campaign-optimizer/internal/domain"
)

// Calculator aggregates raw metrics per channel and campaign-wide and
// derives the six standard KPIs. The safe-division rule applies
// throughout: a KPI whose denominator is zero is simply not written.
type Calculator struct {
	repo Repository
}

// NewCalculator creates a KPI calculator backed by the given repository.
func NewCalculator(repo Repository) *Calculator {
	return &Calculator{repo: repo}
}

// Compute derives KPI rows from raw metrics. When raws is nil the rows are
// loaded from storage scoped by the optional window. Per-channel rows carry
// the channel name; the campaign-level aggregate has a nil channel.
func (c *Calculator) Compute(ctx context.Context, campaignID string, raws []domain.RawMetric, windowStart, windowEnd *time.Time) ([]domain.DerivedKPI, error) {
	if raws == nil {
		var err error
		raws, err = c.repo.ListRawMetrics(ctx, campaignID, windowStart, windowEnd)
		if err != nil {
			return nil, fmt.Errorf("list raw metrics: %w", err)
		}
	}

	channelTotals := map[string]map[string]float64{}
	for _, m := range raws {
		bucket, ok := channelTotals[m.Channel]
		if !ok {
			bucket = map[string]float64{}
			channelTotals[m.Channel] = bucket
		}
		bucket[m.MetricName] += m.MetricValue
	}

	campaignTotals := map[string]float64{}
	for _, bucket := range channelTotals {
		for _, dim := range metricDimensions {
			campaignTotals[dim] += bucket[dim]
		}
	}

	now := time.Now().UTC()
	var rows []domain.DerivedKPI

	channels := make([]string, 0, len(channelTotals))
	for ch := range channelTotals {
		channels = append(channels, ch)
	}
	sort.Strings(channels)

	for _, ch := range channels {
		ch := ch
		totals := channelTotals[ch]
		for _, kv := range calculateKPIs(totals) {
			rows = append(rows, domain.DerivedKPI{
				ID:           uuid.NewString(),
				CampaignID:   campaignID,
				Channel:      &ch,
				KPIName:      kv.name,
				KPIValue:     kv.value,
				WindowStart:  windowStart,
				WindowEnd:    windowEnd,
				InputMetrics: totalsToJSON(totals),
				ComputedAt:   now,
			})
		}
	}

	for _, kv := range calculateKPIs(campaignTotals) {
		rows = append(rows, domain.DerivedKPI{
			ID:           uuid.NewString(),
			CampaignID:   campaignID,
			Channel:      nil,
			KPIName:      kv.name,
			KPIValue:     kv.value,
			WindowStart:  windowStart,
			WindowEnd:    windowEnd,
			InputMetrics: totalsToJSON(campaignTotals),
			ComputedAt:   now,
		})
	}

	if len(rows) > 0 {
		if err := c.repo.CreateDerivedKPIs(ctx, rows); err != nil {
			return nil, fmt.Errorf("create derived kpis: %w", err)
		}
	}

	return rows, nil
}

type kpiValue struct {
	name  string
	value float64
}

// calculateKPIs derives the six ratios from aggregated totals, omitting any
// KPI whose denominator is zero. Values are rounded to 6 decimals.
func calculateKPIs(totals map[string]float64) []kpiValue {
	spend := totals[domain.MetricSpend]
	impressions := totals[domain.MetricImpressions]
	clicks := totals[domain.MetricClicks]
	conversions := totals[domain.MetricConversions]
	revenue := totals[domain.MetricRevenue]

	var out []kpiValue
	add := func(name string, numerator, denominator float64) {
		if denominator == 0 {
			return
		}
		out = append(out, kpiValue{name: name, value: round6(numerator / denominator)})
	}

	add(domain.KPICTR, clicks, impressions)
	add(domain.KPICVR, conversions, clicks)
	add(domain.KPICPC, spend, clicks)
	add(domain.KPICPM, spend*1000, impressions)
	add(domain.KPICPA, spend, conversions)
	add(domain.KPIROAS, revenue, spend)
	return out
}

func totalsToJSON(totals map[string]float64) map[string]interface{} {
	out := make(map[string]interface{}, len(totals))
	for _, dim := range metricDimensions {
		out[dim] = totals[dim]
	}
	return out
}

func round2(v float64) float64 { return math.Round(v*1e2) / 1e2 }
func round4(v float64) float64 { return math.Round(v*1e4) / 1e4 }
func round6(v float64) float64 { return math.Round(v*1e6) / 1e6 }
