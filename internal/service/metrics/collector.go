// Package metrics turns channel snapshots into raw metric rows, derives
// the standard KPI set from them, and classifies period-over-period trends.
// These three services feed the decision engine; the measurement report in
// this package is the same arithmetic exposed for reporting.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/campaign-optimizer/internal/domain"
)

// The five dimensions projected out of every snapshot, in emit order.
var metricDimensions = []string{
	domain.MetricSpend,
	domain.MetricImpressions,
	domain.MetricClicks,
	domain.MetricConversions,
	domain.MetricRevenue,
}

var metricUnits = map[string]domain.MetricUnit{
	domain.MetricSpend:       domain.UnitCurrency,
	domain.MetricImpressions: domain.UnitCount,
	domain.MetricClicks:      domain.UnitCount,
	domain.MetricConversions: domain.UnitCount,
	domain.MetricRevenue:     domain.UnitCurrency,
}

// Collector projects channel snapshots into typed raw metric rows.
// It never aggregates; repeated runs over the same snapshots produce
// duplicate rows on purpose (the raw table is append-only and timestamped).
type Collector struct {
	repo Repository
}

// NewCollector creates a collector backed by the given repository.
func NewCollector(repo Repository) *Collector {
	return &Collector{repo: repo}
}

// Collect loads snapshots for the campaign (optionally window-scoped) and
// emits one raw metric row per snapshot per dimension. Zero values are
// preserved. Returns the created rows.
func (c *Collector) Collect(ctx context.Context, campaignID string, windowStart, windowEnd *time.Time) ([]domain.RawMetric, error) {
	snapshots, err := c.repo.ListSnapshots(ctx, campaignID, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	now := time.Now().UTC()
	rows := make([]domain.RawMetric, 0, len(snapshots)*len(metricDimensions))

	for _, snap := range snapshots {
		values := map[string]float64{
			domain.MetricSpend:       snap.Spend,
			domain.MetricImpressions: float64(snap.Impressions),
			domain.MetricClicks:      float64(snap.Clicks),
			domain.MetricConversions: float64(snap.Conversions),
			domain.MetricRevenue:     snap.Revenue,
		}

		ws := snap.WindowStart
		we := snap.WindowEnd
		for _, dim := range metricDimensions {
			rows = append(rows, domain.RawMetric{
				ID:          uuid.NewString(),
				CampaignID:  campaignID,
				Channel:     snap.Channel,
				MetricName:  dim,
				MetricValue: values[dim],
				MetricUnit:  metricUnits[dim],
				Source:      "snapshot",
				CollectedAt: now,
				WindowStart: &ws,
				WindowEnd:   &we,
				Metadata:    map[string]interface{}{},
			})
		}
	}

	if len(rows) > 0 {
		if err := c.repo.CreateRawMetrics(ctx, rows); err != nil {
			return nil, fmt.Errorf("create raw metrics: %w", err)
		}
	}

	return rows, nil
}
