package method

import (
	"fmt"
	"math"
	"sort"

	"github.com/ignite/campaign-optimizer/internal/domain"
)

// CPASpike defaults.
const (
	DefaultCPASpikeThreshold  = 0.30  // 30% increase vs baseline
	DefaultMinChannelSpend    = 100.0 // $100 minimum spend to qualify
	DefaultBudgetReductionPct = 0.20  // keep 20% of the prior budget

	cpaSpikePriority = 2
)

// CPASpike is a reactive method: when a channel's CPA jumps past the spike
// threshold against its trend baseline (or the campaign CPA as fallback),
// it proposes cutting that channel's budget.
type CPASpike struct {
	SpikeThreshold     float64
	MinChannelSpend    float64
	BudgetReductionPct float64
}

// NewCPASpike creates the method with default thresholds.
func NewCPASpike() *CPASpike {
	return &CPASpike{
		SpikeThreshold:     DefaultCPASpikeThreshold,
		MinChannelSpend:    DefaultMinChannelSpend,
		BudgetReductionPct: DefaultBudgetReductionPct,
	}
}

func (m *CPASpike) Name() string { return "cpa_spike" }

func (m *CPASpike) Description() string {
	return "Detect CPA spikes and reduce budget on affected channels"
}

func (m *CPASpike) Type() domain.MethodType { return domain.MethodReactive }

func (m *CPASpike) CheckPreconditions(mctx *Context) (bool, string) {
	if len(mctx.ChannelData) == 0 {
		return false, "No channel data available"
	}
	if mctx.KPIs[domain.KPICPA] == 0 {
		return false, "Campaign-level CPA not available"
	}
	return true, ""
}

func (m *CPASpike) Evaluate(mctx *Context) (*Evaluation, error) {
	campaignCPA := mctx.KPIs[domain.KPICPA]
	if campaignCPA <= 0 {
		return nil, nil
	}

	type affected struct {
		Channel     string  `json:"channel"`
		CurrentCPA  float64 `json:"current_cpa"`
		PreviousCPA float64 `json:"previous_cpa"`
		PctChange   float64 `json:"pct_change"`
		Spend       float64 `json:"spend"`
	}

	var affectedChannels []affected
	for _, ch := range mctx.ChannelData {
		channelCPA, ok := ch.KPIs[domain.KPICPA]
		if !ok {
			channelCPA, ok = ch.KPIs["cac"]
		}
		if !ok || ch.Totals.Spend < m.MinChannelSpend {
			continue
		}

		previousCPA := m.previousCPA(mctx, ch.Channel)
		if previousCPA <= 0 {
			// Fall back to campaign-level comparison
			previousCPA = campaignCPA
		}

		pctChange := (channelCPA - previousCPA) / previousCPA
		if pctChange >= m.SpikeThreshold {
			affectedChannels = append(affectedChannels, affected{
				Channel:     ch.Channel,
				CurrentCPA:  channelCPA,
				PreviousCPA: previousCPA,
				PctChange:   math.Round(pctChange*1e4) / 1e4,
				Spend:       ch.Totals.Spend,
			})
		}
	}

	if len(affectedChannels) == 0 {
		return nil, nil
	}

	// Reduce budget on every affected channel with a positive allocation.
	reductions := map[string]float64{}
	for _, info := range affectedChannels {
		currentAlloc := mctx.CurrentAllocations[info.Channel]
		if currentAlloc > 0 {
			reductions[info.Channel] = math.Round(currentAlloc*m.BudgetReductionPct*1e2) / 1e2
		}
	}
	if len(reductions) == 0 {
		return nil, nil
	}

	maxChange := affectedChannels[0].PctChange
	for _, info := range affectedChannels[1:] {
		if info.PctChange > maxChange {
			maxChange = info.PctChange
		}
	}
	confidence := math.Min(0.95, 0.6+maxChange)

	affectedJSON := make([]interface{}, 0, len(affectedChannels))
	for _, info := range affectedChannels {
		affectedJSON = append(affectedJSON, map[string]interface{}{
			"channel":      info.Channel,
			"current_cpa":  info.CurrentCPA,
			"previous_cpa": info.PreviousCPA,
			"pct_change":   info.PctChange,
			"spend":        info.Spend,
		})
	}

	return &Evaluation{
		Confidence: math.Round(confidence*1e4) / 1e4,
		Priority:   cpaSpikePriority,
		ActionType: domain.ActionBudgetReallocation,
		ActionPayload: map[string]interface{}{
			"reductions":        roundedAllocations(reductions),
			"affected_channels": affectedJSON,
			"reduction_pct":     m.BudgetReductionPct,
		},
		Reasoning: fmt.Sprintf(
			"CPA spike detected on %d channel(s). Largest increase: %.0f%%. Proposing %.0f%% budget reduction.",
			len(affectedChannels), maxChange*100, m.BudgetReductionPct*100,
		),
		TriggerData: map[string]interface{}{
			"campaign_cpa":      campaignCPA,
			"affected_channels": affectedJSON,
		},
	}, nil
}

// previousCPA pulls the channel's prior CPA from trend data.
func (m *CPASpike) previousCPA(mctx *Context, channel string) float64 {
	for _, trend := range mctx.Trends {
		if trend.Channel == channel && (trend.KPIName == domain.KPICPA || trend.KPIName == "cac") {
			return trend.PreviousValue
		}
	}
	return 0
}

// roundedAllocations converts a float map to a JSON-friendly map with a
// stable key set.
func roundedAllocations(allocs map[string]float64) map[string]interface{} {
	keys := make([]string, 0, len(allocs))
	for k := range allocs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(map[string]interface{}, len(allocs))
	for _, k := range keys {
		out[k] = allocs[k]
	}
	return out
}
