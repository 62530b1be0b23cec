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

// Stable band: a period-over-period change within ±2% is noise.
const stableBand = 0.02

// TrendAnalyzer compares the most recent period's KPI values to the period
// before it. The direction recorded is the raw numeric direction of the
// change; whether a rising CPA is bad is the consuming method's business.
type TrendAnalyzer struct {
	repo Repository
}

// NewTrendAnalyzer creates a trend analyzer backed by the given repository.
func NewTrendAnalyzer(repo Repository) *TrendAnalyzer {
	return &TrendAnalyzer{repo: repo}
}

// Analyze buckets KPI rows into [now-period, now] and
// [now-2*period, now-period], averages duplicates per (channel, kpi), and
// emits one trend row per key present in both buckets with a non-zero
// previous value.
func (a *TrendAnalyzer) Analyze(ctx context.Context, campaignID string, periodDays int) ([]domain.TrendIndicator, error) {
	now := time.Now().UTC().Truncate(24 * time.Hour)
	currentEnd := now
	currentStart := now.AddDate(0, 0, -periodDays)
	previousEnd := currentStart
	previousStart := previousEnd.AddDate(0, 0, -periodDays)

	current, err := a.loadAveraged(ctx, campaignID, currentStart, currentEnd)
	if err != nil {
		return nil, fmt.Errorf("load current kpis: %w", err)
	}
	previous, err := a.loadAveraged(ctx, campaignID, previousStart, previousEnd)
	if err != nil {
		return nil, fmt.Errorf("load previous kpis: %w", err)
	}

	keys := make([]kpiKey, 0, len(current))
	for key := range current {
		if _, ok := previous[key]; ok {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].channel != keys[j].channel {
			return keys[i].channel < keys[j].channel
		}
		return keys[i].kpiName < keys[j].kpiName
	})

	computedAt := time.Now().UTC()
	var trends []domain.TrendIndicator

	for _, key := range keys {
		currentVal := current[key]
		previousVal := previous[key]
		if previousVal == 0 {
			continue
		}

		change := (currentVal - previousVal) / math.Abs(previousVal)

		var direction domain.TrendDirection
		switch {
		case change > stableBand:
			direction = domain.TrendImproving
		case change < -stableBand:
			direction = domain.TrendDeclining
		default:
			direction = domain.TrendStable
		}

		confidence := math.Min(0.9, 0.5+math.Abs(change))

		var channel *string
		if key.channel != "" {
			ch := key.channel
			channel = &ch
		}

		trends = append(trends, domain.TrendIndicator{
			ID:            uuid.NewString(),
			CampaignID:    campaignID,
			Channel:       channel,
			KPIName:       key.kpiName,
			Direction:     direction,
			Magnitude:     round4(math.Abs(change)),
			PeriodDays:    periodDays,
			CurrentValue:  round6(currentVal),
			PreviousValue: round6(previousVal),
			Confidence:    round4(confidence),
			Analysis: map[string]interface{}{
				"change_pct":   round4(change),
				"period_start": currentStart.Format("2006-01-02"),
				"period_end":   currentEnd.Format("2006-01-02"),
				"prev_start":   previousStart.Format("2006-01-02"),
				"prev_end":     previousEnd.Format("2006-01-02"),
			},
			ComputedAt: computedAt,
		})
	}

	if len(trends) > 0 {
		if err := a.repo.CreateTrendIndicators(ctx, trends); err != nil {
			return nil, fmt.Errorf("create trend indicators: %w", err)
		}
	}

	return trends, nil
}

type kpiKey struct {
	channel string // empty means campaign-level
	kpiName string
}

// loadAveraged loads KPI rows for a window and averages values per
// (channel, kpi_name) when multiple rows exist.
func (a *TrendAnalyzer) loadAveraged(ctx context.Context, campaignID string, start, end time.Time) (map[kpiKey]float64, error) {
	rows, err := a.repo.ListKPIsInWindow(ctx, campaignID, start, end)
	if err != nil {
		return nil, err
	}

	sums := map[kpiKey]float64{}
	counts := map[kpiKey]int{}
	for _, row := range rows {
		key := kpiKey{kpiName: row.KPIName}
		if row.Channel != nil {
			key.channel = *row.Channel
		}
		sums[key] += row.KPIValue
		counts[key]++
	}

	out := make(map[kpiKey]float64, len(sums))
	for key, sum := range sums {
		out[key] = sum / float64(counts[key])
	}
	return out, nil
}
