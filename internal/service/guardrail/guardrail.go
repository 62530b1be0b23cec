// Package guardrail contains the four pure checks applied to method
// evaluations before they become proposals. Each check is a standalone
// function returning a CheckResult; the engine conjoins the applicable
// ones per evaluation.
package guardrail

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// CheckResult is the outcome of a single guardrail check.
type CheckResult struct {
	Passed   bool                   `json:"passed"`
	RuleName string                 `json:"rule_name"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

// CheckBudgetChangeLimit enforces that no single channel budget changes by
// more than maxChangePct. Channels with a zero current budget are skipped;
// an evaluation that proposes no allocations passes outright.
func CheckBudgetChangeLimit(current map[string]float64, proposed map[string]float64, maxChangePct float64) CheckResult {
	if proposed == nil {
		return CheckResult{
			Passed:   true,
			RuleName: "budget_change_limit",
			Message:  "No allocation changes proposed",
		}
	}

	var violations []interface{}
	for _, channel := range sortedKeys(current) {
		currentAmount := current[channel]
		proposedAmount, ok := proposed[channel]
		if !ok {
			proposedAmount = currentAmount
		}
		if currentAmount == 0 {
			continue
		}
		changePct := math.Abs(proposedAmount-currentAmount) / currentAmount
		if changePct > maxChangePct {
			violations = append(violations, map[string]interface{}{
				"channel":    channel,
				"current":    currentAmount,
				"proposed":   proposedAmount,
				"change_pct": math.Round(changePct*1e4) / 1e4,
			})
		}
	}

	if len(violations) > 0 {
		return CheckResult{
			Passed:   false,
			RuleName: "budget_change_limit",
			Message:  fmt.Sprintf("Budget change exceeds %.0f%% limit on %d channel(s)", maxChangePct*100, len(violations)),
			Details:  map[string]interface{}{"violations": violations, "max_change_pct": maxChangePct},
		}
	}

	return CheckResult{
		Passed:   true,
		RuleName: "budget_change_limit",
		Message:  "All budget changes within limit",
	}
}

// CheckMinimumChannelFloor enforces that every funded channel keeps at
// least minFloorPct of the total proposed budget. Channels at zero are
// assumed intentionally paused and do not violate.
func CheckMinimumChannelFloor(proposed map[string]float64, minFloorPct float64) CheckResult {
	if proposed == nil {
		return CheckResult{
			Passed:   true,
			RuleName: "minimum_channel_floor",
			Message:  "No allocation changes proposed",
		}
	}

	total := 0.0
	for _, amount := range proposed {
		total += amount
	}
	if total <= 0 {
		return CheckResult{
			Passed:   true,
			RuleName: "minimum_channel_floor",
			Message:  "Total budget is zero",
		}
	}

	var violations []interface{}
	for _, channel := range sortedKeys(proposed) {
		amount := proposed[channel]
		if amount <= 0 {
			continue
		}
		share := amount / total
		if share < minFloorPct {
			violations = append(violations, map[string]interface{}{
				"channel": channel,
				"amount":  amount,
				"share":   math.Round(share*1e4) / 1e4,
			})
		}
	}

	if len(violations) > 0 {
		return CheckResult{
			Passed:   false,
			RuleName: "minimum_channel_floor",
			Message:  fmt.Sprintf("%d channel(s) below %.0f%% floor", len(violations), minFloorPct*100),
			Details:  map[string]interface{}{"violations": violations, "min_floor_pct": minFloorPct},
		}
	}

	return CheckResult{
		Passed:   true,
		RuleName: "minimum_channel_floor",
		Message:  "All channels above minimum floor",
	}
}

// CheckRateLimit enforces at most maxPerHour proposals per campaign per
// hour. Callers pass every recent proposal timestamp; filtering to the
// sliding one-hour window happens here.
func CheckRateLimit(recentProposalTimes []time.Time, maxPerHour int) CheckResult {
	oneHourAgo := time.Now().UTC().Add(-time.Hour)

	recentCount := 0
	for _, t := range recentProposalTimes {
		if !t.Before(oneHourAgo) {
			recentCount++
		}
	}

	if recentCount >= maxPerHour {
		return CheckResult{
			Passed:   false,
			RuleName: "rate_limit",
			Message:  fmt.Sprintf("Rate limit reached: %d proposals in the last hour (max %d)", recentCount, maxPerHour),
			Details:  map[string]interface{}{"recent_count": recentCount, "max_per_hour": maxPerHour},
		}
	}

	return CheckResult{
		Passed:   true,
		RuleName: "rate_limit",
		Message:  fmt.Sprintf("%d/%d proposals in last hour", recentCount, maxPerHour),
		Details:  map[string]interface{}{"recent_count": recentCount, "max_per_hour": maxPerHour},
	}
}

// CheckCooldown enforces that a method does not fire again within its
// cooldown window. Timestamps without a zone are treated as UTC.
func CheckCooldown(methodName string, lastFiredAt *time.Time, cooldownMinutes int) CheckResult {
	if lastFiredAt == nil {
		return CheckResult{
			Passed:   true,
			RuleName: "cooldown",
			Message:  fmt.Sprintf("Method '%s' has not fired before", methodName),
		}
	}

	now := time.Now().UTC()
	elapsed := now.Sub(lastFiredAt.UTC())
	cooldown := time.Duration(cooldownMinutes) * time.Minute

	if elapsed < cooldown {
		remaining := cooldown - elapsed
		return CheckResult{
			Passed:   false,
			RuleName: "cooldown",
			Message:  fmt.Sprintf("Method '%s' is in cooldown. %.0f minutes remaining.", methodName, remaining.Minutes()),
			Details: map[string]interface{}{
				"method_name":       methodName,
				"last_fired_at":     lastFiredAt.UTC().Format(time.RFC3339),
				"cooldown_minutes":  cooldownMinutes,
				"remaining_seconds": remaining.Seconds(),
			},
		}
	}

	return CheckResult{
		Passed:   true,
		RuleName: "cooldown",
		Message:  fmt.Sprintf("Method '%s' cooldown has elapsed", methodName),
		Details: map[string]interface{}{
			"method_name":      methodName,
			"cooldown_minutes": cooldownMinutes,
			"elapsed_minutes":  math.Round(elapsed.Minutes()*10) / 10,
		},
	}
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
