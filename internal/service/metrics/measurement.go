package metrics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ignite/campaign-optimizer/internal/domain"
)

// ChannelTotals is the raw aggregate for one channel (or a whole campaign).
type ChannelTotals struct {
	Spend       float64 `json:"spend"`
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	Conversions int64   `json:"conversions"`
	Revenue     float64 `json:"revenue"`
}

// ChannelReport is the per-channel section of a measurement report. The
// KPI map omits any ratio whose denominator was zero.
type ChannelReport struct {
	Channel string             `json:"channel"`
	Totals  ChannelTotals      `json:"totals"`
	KPIs    map[string]float64 `json:"kpis"`
}

// ReportWindow echoes the window the report was scoped to.
type ReportWindow struct {
	Start *time.Time `json:"start"`
	End   *time.Time `json:"end"`
}

// Report is the full measurement view for one campaign: campaign totals and
// KPIs plus the per-channel breakdown with share and efficiency figures.
type Report struct {
	CampaignID string             `json:"campaign_id"`
	Window     ReportWindow       `json:"window"`
	Totals     ChannelTotals      `json:"totals"`
	KPIs       map[string]float64 `json:"kpis"`
	ByChannel  []ChannelReport    `json:"by_channel"`
}

// Measurement builds reports over channel snapshots. The decision engine
// uses the same computation for its channel data, so the numbers an
// operator sees match the numbers the engine decided on.
type Measurement struct {
	repo Repository
}

// NewMeasurement creates a measurement service backed by the given repository.
func NewMeasurement(repo Repository) *Measurement {
	return &Measurement{repo: repo}
}

// Report loads snapshots (optionally window-scoped) and computes the report.
func (m *Measurement) Report(ctx context.Context, campaignID string, windowStart, windowEnd *time.Time) (*Report, error) {
	snapshots, err := m.repo.ListSnapshots(ctx, campaignID, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return BuildReport(campaignID, snapshots, windowStart, windowEnd), nil
}

// BuildReport computes a measurement report from snapshot rows. Pure;
// callers that already hold the snapshots use this directly.
func BuildReport(campaignID string, snapshots []domain.ChannelSnapshot, windowStart, windowEnd *time.Time) *Report {
	var totals ChannelTotals
	channelTotals := map[string]*ChannelTotals{}

	for _, snap := range snapshots {
		totals.Spend += snap.Spend
		totals.Impressions += snap.Impressions
		totals.Clicks += snap.Clicks
		totals.Conversions += snap.Conversions
		totals.Revenue += snap.Revenue

		bucket, ok := channelTotals[snap.Channel]
		if !ok {
			bucket = &ChannelTotals{}
			channelTotals[snap.Channel] = bucket
		}
		bucket.Spend += snap.Spend
		bucket.Impressions += snap.Impressions
		bucket.Clicks += snap.Clicks
		bucket.Conversions += snap.Conversions
		bucket.Revenue += snap.Revenue
	}

	report := &Report{
		CampaignID: campaignID,
		Window:     ReportWindow{Start: windowStart, End: windowEnd},
		Totals:     totals,
		KPIs:       totalsKPIs(totals),
	}

	channels := make([]string, 0, len(channelTotals))
	for ch := range channelTotals {
		channels = append(channels, ch)
	}
	sort.Strings(channels)

	for _, ch := range channels {
		bucket := channelTotals[ch]
		kpis := totalsKPIs(*bucket)

		// Share and efficiency figures relative to campaign totals. A
		// channel converting above its spend share scores > 1.
		if totals.Spend != 0 {
			spendShare := bucket.Spend / totals.Spend
			kpis["spend_share"] = round6(spendShare)
			if totals.Conversions != 0 {
				convShare := float64(bucket.Conversions) / float64(totals.Conversions)
				kpis["conversion_share"] = round6(convShare)
				if spendShare != 0 {
					kpis["efficiency_index"] = round6(convShare / spendShare)
				}
			}
		} else if totals.Conversions != 0 {
			kpis["conversion_share"] = round6(float64(bucket.Conversions) / float64(totals.Conversions))
		}

		report.ByChannel = append(report.ByChannel, ChannelReport{
			Channel: ch,
			Totals:  *bucket,
			KPIs:    kpis,
		})
	}

	return report
}

// totalsKPIs derives the KPI map for one totals bucket. "cac" is an alias
// of cpa kept for reporting parity.
func totalsKPIs(t ChannelTotals) map[string]float64 {
	kpis := map[string]float64{}
	add := func(name string, numerator, denominator float64) {
		if denominator == 0 {
			return
		}
		kpis[name] = round6(numerator / denominator)
	}

	impressions := float64(t.Impressions)
	clicks := float64(t.Clicks)
	conversions := float64(t.Conversions)

	add(domain.KPICTR, clicks, impressions)
	add(domain.KPICVR, conversions, clicks)
	add(domain.KPICPC, t.Spend, clicks)
	add(domain.KPICPM, t.Spend*1000, impressions)
	add(domain.KPICPA, t.Spend, conversions)
	add("cac", t.Spend, conversions)
	add(domain.KPIROAS, t.Revenue, t.Spend)
	return kpis
}
