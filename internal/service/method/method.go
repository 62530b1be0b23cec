// Package method holds the pluggable campaign analyzers the decision
// engine fans out to. A method inspects an immutable Context and either
// fires an Evaluation or abstains; it performs no I/O of its own.
package method

import (
	"github.com/ignite/campaign-optimizer/internal/domain"
)

// Trend is the flattened trend view handed to methods.
type Trend struct {
	Channel       string  `json:"channel"`
	KPIName       string  `json:"kpi_name"`
	Direction     string  `json:"direction"`
	Magnitude     float64 `json:"magnitude"`
	CurrentValue  float64 `json:"current_value"`
	PreviousValue float64 `json:"previous_value"`
	PeriodDays    int     `json:"period_days"`
	Confidence    float64 `json:"confidence"`
}

// Totals is the raw aggregate for one channel.
type Totals struct {
	Spend       float64 `json:"spend"`
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	Conversions int64   `json:"conversions"`
	Revenue     float64 `json:"revenue"`
}

// Channel pairs a channel's KPI map with its raw totals. The KPI map uses
// presence to signal validity: a missing key means the denominator was zero.
type Channel struct {
	Channel string             `json:"channel"`
	KPIs    map[string]float64 `json:"kpis"`
	Totals  Totals             `json:"totals"`
}

// CampaignConfig is the slice of campaign metadata methods may read.
type CampaignConfig struct {
	Objective string   `json:"objective"`
	TargetCAC *float64 `json:"target_cac"`
}

// Context is the immutable snapshot every method evaluates against.
// Built once per engine run.
type Context struct {
	CampaignID         string
	KPIs               map[string]float64 // campaign-level
	Trends             []Trend
	ChannelData        []Channel
	CurrentAllocations map[string]float64
	Campaign           CampaignConfig
}

// Evaluation is the output of a method that fires.
type Evaluation struct {
	Confidence    float64                `json:"confidence"`
	Priority      int                    `json:"priority"` // 1 = highest, 10 = lowest
	ActionType    string                 `json:"action_type"`
	ActionPayload map[string]interface{} `json:"action_payload"`
	Reasoning     string                 `json:"reasoning"`
	TriggerData   map[string]interface{} `json:"trigger_data"`
}

// Method is the capability set every analyzer implements. Evaluate returns
// nil when the method abstains.
type Method interface {
	Name() string
	Description() string
	Type() domain.MethodType
	// CheckPreconditions reports whether the method can run at all;
	// the reason is only used for logging.
	CheckPreconditions(mctx *Context) (bool, string)
	Evaluate(mctx *Context) (*Evaluation, error)
}
