package guardrail

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckBudgetChangeLimit_NoProposal(t *testing.T) {
	result := CheckBudgetChangeLimit(map[string]float64{"meta": 1000}, nil, 0.25)

	assert.True(t, result.Passed)
	assert.Equal(t, "budget_change_limit", result.RuleName)
	assert.Equal(t, "No allocation changes proposed", result.Message)
}

func TestCheckBudgetChangeLimit_ViolationOnOneChannel(t *testing.T) {
	current := map[string]float64{"google": 2000, "meta": 1000}
	proposed := map[string]float64{"google": 2100, "meta": 400}

	result := CheckBudgetChangeLimit(current, proposed, 0.25)

	require.False(t, result.Passed)
	assert.Equal(t, "Budget change exceeds 25% limit on 1 channel(s)", result.Message)

	violations := result.Details["violations"].([]interface{})
	require.Len(t, violations, 1)
	v := violations[0].(map[string]interface{})
	assert.Equal(t, "meta", v["channel"])
	assert.Equal(t, 0.6, v["change_pct"])
}

func TestCheckBudgetChangeLimit_WithinLimit(t *testing.T) {
	current := map[string]float64{"google": 2000, "meta": 1000}
	proposed := map[string]float64{"google": 2200, "meta": 900}

	result := CheckBudgetChangeLimit(current, proposed, 0.25)

	assert.True(t, result.Passed)
	assert.Equal(t, "All budget changes within limit", result.Message)
}

func TestCheckBudgetChangeLimit_SkipsZeroCurrentBudget(t *testing.T) {
	current := map[string]float64{"meta": 0}
	proposed := map[string]float64{"meta": 5000}

	result := CheckBudgetChangeLimit(current, proposed, 0.25)

	assert.True(t, result.Passed)
}

func TestCheckBudgetChangeLimit_MissingChannelTreatedAsUnchanged(t *testing.T) {
	current := map[string]float64{"google": 2000, "meta": 1000}
	proposed := map[string]float64{"meta": 1100}

	result := CheckBudgetChangeLimit(current, proposed, 0.25)

	assert.True(t, result.Passed)
}

func TestCheckMinimumChannelFloor_BelowFloor(t *testing.T) {
	proposed := map[string]float64{"google": 9800, "meta": 200}

	result := CheckMinimumChannelFloor(proposed, 0.05)

	require.False(t, result.Passed)
	assert.Equal(t, "minimum_channel_floor", result.RuleName)
	assert.Equal(t, "1 channel(s) below 5% floor", result.Message)

	violations := result.Details["violations"].([]interface{})
	require.Len(t, violations, 1)
	v := violations[0].(map[string]interface{})
	assert.Equal(t, "meta", v["channel"])
	assert.Equal(t, 0.02, v["share"])
}

func TestCheckMinimumChannelFloor_PausedChannelDoesNotViolate(t *testing.T) {
	proposed := map[string]float64{"google": 5000, "meta": 0}

	result := CheckMinimumChannelFloor(proposed, 0.05)

	assert.True(t, result.Passed)
	assert.Equal(t, "All channels above minimum floor", result.Message)
}

func TestCheckMinimumChannelFloor_ZeroTotal(t *testing.T) {
	result := CheckMinimumChannelFloor(map[string]float64{"meta": 0}, 0.05)

	assert.True(t, result.Passed)
	assert.Equal(t, "Total budget is zero", result.Message)
}

func TestCheckMinimumChannelFloor_NoProposal(t *testing.T) {
	result := CheckMinimumChannelFloor(nil, 0.05)

	assert.True(t, result.Passed)
	assert.Equal(t, "No allocation changes proposed", result.Message)
}

func TestCheckRateLimit_AtLimit(t *testing.T) {
	now := time.Now().UTC()
	times := []time.Time{
		now.Add(-5 * time.Minute),
		now.Add(-20 * time.Minute),
		now.Add(-40 * time.Minute),
	}

	result := CheckRateLimit(times, 3)

	require.False(t, result.Passed)
	assert.Equal(t, "rate_limit", result.RuleName)
	assert.Equal(t, "Rate limit reached: 3 proposals in the last hour (max 3)", result.Message)
	assert.Equal(t, 3, result.Details["recent_count"])
}

func TestCheckRateLimit_OldProposalsIgnored(t *testing.T) {
	now := time.Now().UTC()
	times := []time.Time{
		now.Add(-5 * time.Minute),
		now.Add(-90 * time.Minute),
		now.Add(-3 * time.Hour),
	}

	result := CheckRateLimit(times, 3)

	assert.True(t, result.Passed)
	assert.Equal(t, "1/3 proposals in last hour", result.Message)
}

func TestCheckRateLimit_Empty(t *testing.T) {
	result := CheckRateLimit(nil, 3)

	assert.True(t, result.Passed)
	assert.Equal(t, "0/3 proposals in last hour", result.Message)
}

func TestCheckCooldown_NeverFired(t *testing.T) {
	result := CheckCooldown("cpa_spike", nil, 240)

	assert.True(t, result.Passed)
	assert.Equal(t, "cooldown", result.RuleName)
	assert.Equal(t, "Method 'cpa_spike' has not fired before", result.Message)
}

func TestCheckCooldown_InCooldown(t *testing.T) {
	lastFired := time.Now().UTC().Add(-30 * time.Minute)

	result := CheckCooldown("cpa_spike", &lastFired, 240)

	require.False(t, result.Passed)
	assert.Contains(t, result.Message, "Method 'cpa_spike' is in cooldown.")
	assert.Contains(t, result.Message, "minutes remaining.")
	assert.Equal(t, 240, result.Details["cooldown_minutes"])
}

func TestCheckCooldown_Elapsed(t *testing.T) {
	lastFired := time.Now().UTC().Add(-5 * time.Hour)

	result := CheckCooldown("budget_reallocation", &lastFired, 240)

	assert.True(t, result.Passed)
	assert.Equal(t, "Method 'budget_reallocation' cooldown has elapsed", result.Message)
}
