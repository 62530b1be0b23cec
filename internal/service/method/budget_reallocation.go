package method

import (
	"fmt"
	"math"
	"sort"

	"github.com/ignite/campaign-optimizer/internal/domain"
)

// BudgetReallocation defaults.
const (
	DefaultEfficiencySpreadThreshold = 0.20 // 20% spread between best/worst
	DefaultMinChannels               = 2

	// Cap on how much of the total budget one proposal may move.
	maxMovePct = 0.10

	budgetReallocationPriority = 5
)

// BudgetReallocation is a proactive method: when the efficiency-index
// spread between the best and worst channel is large enough, it proposes
// shifting up to 10% of the total budget from the bottom tier to the top.
type BudgetReallocation struct {
	EfficiencySpreadThreshold float64
	MinChannels               int
}

// NewBudgetReallocation creates the method with default thresholds.
func NewBudgetReallocation() *BudgetReallocation {
	return &BudgetReallocation{
		EfficiencySpreadThreshold: DefaultEfficiencySpreadThreshold,
		MinChannels:               DefaultMinChannels,
	}
}

func (m *BudgetReallocation) Name() string { return "budget_reallocation" }

func (m *BudgetReallocation) Description() string {
	return "Shift budget from underperforming to top-performing channels"
}

func (m *BudgetReallocation) Type() domain.MethodType { return domain.MethodProactive }

func (m *BudgetReallocation) CheckPreconditions(mctx *Context) (bool, string) {
	if len(mctx.ChannelData) < m.MinChannels {
		return false, fmt.Sprintf("Need at least %d channels, got %d", m.MinChannels, len(mctx.ChannelData))
	}
	if len(mctx.CurrentAllocations) == 0 {
		return false, "No current budget allocations available"
	}
	return true, ""
}

func (m *BudgetReallocation) Evaluate(mctx *Context) (*Evaluation, error) {
	type scoredChannel struct {
		Channel         string
		EfficiencyIndex float64
		CAC             float64
		HasCAC          bool
		ROAS            float64
		HasROAS         bool
	}

	var scored []scoredChannel
	for _, ch := range mctx.ChannelData {
		efficiency, ok := ch.KPIs["efficiency_index"]
		if !ok {
			continue
		}
		sc := scoredChannel{Channel: ch.Channel, EfficiencyIndex: efficiency}
		if cac, ok := ch.KPIs["cac"]; ok {
			sc.CAC, sc.HasCAC = cac, true
		} else if cpa, ok := ch.KPIs[domain.KPICPA]; ok {
			sc.CAC, sc.HasCAC = cpa, true
		}
		if roas, ok := ch.KPIs[domain.KPIROAS]; ok {
			sc.ROAS, sc.HasROAS = roas, true
		}
		scored = append(scored, sc)
	}

	if len(scored) < m.MinChannels {
		return nil, nil
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].EfficiencyIndex > scored[j].EfficiencyIndex
	})
	best := scored[0]
	worst := scored[len(scored)-1]

	relativeSpread := 0.0
	if best.EfficiencyIndex > 0 {
		relativeSpread = (best.EfficiencyIndex - worst.EfficiencyIndex) / best.EfficiencyIndex
	}
	if relativeSpread < m.EfficiencySpreadThreshold {
		return nil, nil
	}

	// Quartile split, minimum one channel per tier.
	tierSize := len(scored) / 4
	if tierSize < 1 {
		tierSize = 1
	}
	topTier := make([]string, 0, tierSize)
	for _, sc := range scored[:tierSize] {
		topTier = append(topTier, sc.Channel)
	}
	bottomTier := make([]string, 0, tierSize)
	for _, sc := range scored[len(scored)-tierSize:] {
		bottomTier = append(bottomTier, sc.Channel)
	}

	totalBudget := 0.0
	for _, amount := range mctx.CurrentAllocations {
		totalBudget += amount
	}
	if totalBudget <= 0 {
		return nil, nil
	}

	moveAmount := math.Round(totalBudget*maxMovePct*1e2) / 1e2

	newAllocations := make(map[string]float64, len(mctx.CurrentAllocations))
	for ch, amount := range mctx.CurrentAllocations {
		newAllocations[ch] = amount
	}
	reductionPerChannel := math.Round(moveAmount/float64(len(bottomTier))*1e2) / 1e2
	increasePerChannel := math.Round(moveAmount/float64(len(topTier))*1e2) / 1e2

	for _, ch := range bottomTier {
		newAllocations[ch] = math.Round(math.Max(0, newAllocations[ch]-reductionPerChannel)*1e2) / 1e2
	}
	for _, ch := range topTier {
		newAllocations[ch] = math.Round((newAllocations[ch]+increasePerChannel)*1e2) / 1e2
	}

	confidence := math.Min(0.90, 0.5+relativeSpread)

	scoredJSON := make([]interface{}, 0, len(scored))
	for _, sc := range scored {
		entry := map[string]interface{}{
			"channel":          sc.Channel,
			"efficiency_index": sc.EfficiencyIndex,
		}
		if sc.HasCAC {
			entry["cac"] = sc.CAC
		}
		if sc.HasROAS {
			entry["roas"] = sc.ROAS
		}
		scoredJSON = append(scoredJSON, entry)
	}

	return &Evaluation{
		Confidence: math.Round(confidence*1e4) / 1e4,
		Priority:   budgetReallocationPriority,
		ActionType: domain.ActionBudgetReallocation,
		ActionPayload: map[string]interface{}{
			"new_allocations": roundedAllocations(newAllocations),
			"top_tier":        topTier,
			"bottom_tier":     bottomTier,
			"move_amount":     moveAmount,
		},
		Reasoning: fmt.Sprintf(
			"Efficiency spread of %.0f%% between best (%s) and worst (%s) channels exceeds %.0f%% threshold. Proposing to shift $%.2f from bottom to top tier.",
			relativeSpread*100, best.Channel, worst.Channel, m.EfficiencySpreadThreshold*100, moveAmount,
		),
		TriggerData: map[string]interface{}{
			"scored_channels": scoredJSON,
			"relative_spread": math.Round(relativeSpread*1e4) / 1e4,
			"best_channel":    best.Channel,
			"worst_channel":   worst.Channel,
		},
	}, nil
}
