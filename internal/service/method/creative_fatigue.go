package method

import (
	"fmt"
	"math"

	"github.com/ignite/campaign-optimizer/internal/domain"
)

// CreativeFatigue defaults.
const (
	DefaultCTRDeclineThreshold = 0.15 // 15% decline over the period
	DefaultMinImpressions      = 10000
	DefaultFatiguePeriodDays   = 7

	creativeFatiguePriority = 6
)

// CreativeFatigue is an advisory method: a steep CTR decline on a channel
// that still gets plenty of impressions means the audience is tiring of
// the creative. It flags the channels; no platform action is taken.
type CreativeFatigue struct {
	CTRDeclineThreshold float64
	MinImpressions      int64
	PeriodDays          int
}

// NewCreativeFatigue creates the method with default thresholds.
func NewCreativeFatigue() *CreativeFatigue {
	return &CreativeFatigue{
		CTRDeclineThreshold: DefaultCTRDeclineThreshold,
		MinImpressions:      DefaultMinImpressions,
		PeriodDays:          DefaultFatiguePeriodDays,
	}
}

func (m *CreativeFatigue) Name() string { return "creative_fatigue" }

func (m *CreativeFatigue) Description() string {
	return "Detect creative fatigue from declining CTR and flag for creative rotation"
}

func (m *CreativeFatigue) Type() domain.MethodType { return domain.MethodProactive }

func (m *CreativeFatigue) CheckPreconditions(mctx *Context) (bool, string) {
	if len(mctx.Trends) == 0 {
		return false, "No trend data available"
	}
	if len(mctx.ChannelData) == 0 {
		return false, "No channel data available"
	}
	return true, ""
}

func (m *CreativeFatigue) Evaluate(mctx *Context) (*Evaluation, error) {
	type fatigued struct {
		Channel     string
		CTRDecline  float64
		CurrentCTR  float64
		PreviousCTR float64
		Impressions int64
		PeriodDays  int
	}

	var fatiguedChannels []fatigued
	for _, trend := range mctx.Trends {
		if trend.KPIName != domain.KPICTR || trend.Direction != string(domain.TrendDeclining) {
			continue
		}

		magnitude := math.Abs(trend.Magnitude)
		if magnitude < m.CTRDeclineThreshold {
			continue
		}

		impressions := m.channelImpressions(mctx, trend.Channel)
		if impressions < m.MinImpressions {
			continue
		}

		periodDays := trend.PeriodDays
		if periodDays == 0 {
			periodDays = m.PeriodDays
		}
		fatiguedChannels = append(fatiguedChannels, fatigued{
			Channel:     trend.Channel,
			CTRDecline:  math.Round(magnitude*1e4) / 1e4,
			CurrentCTR:  trend.CurrentValue,
			PreviousCTR: trend.PreviousValue,
			Impressions: impressions,
			PeriodDays:  periodDays,
		})
	}

	if len(fatiguedChannels) == 0 {
		return nil, nil
	}

	maxDecline := fatiguedChannels[0].CTRDecline
	for _, ch := range fatiguedChannels[1:] {
		if ch.CTRDecline > maxDecline {
			maxDecline = ch.CTRDecline
		}
	}
	confidence := math.Min(0.85, 0.4+maxDecline)

	channelNames := make([]string, 0, len(fatiguedChannels))
	fatiguedJSON := make([]interface{}, 0, len(fatiguedChannels))
	for _, ch := range fatiguedChannels {
		channelNames = append(channelNames, ch.Channel)
		fatiguedJSON = append(fatiguedJSON, map[string]interface{}{
			"channel":      ch.Channel,
			"ctr_decline":  ch.CTRDecline,
			"current_ctr":  ch.CurrentCTR,
			"previous_ctr": ch.PreviousCTR,
			"impressions":  ch.Impressions,
			"period_days":  ch.PeriodDays,
		})
	}

	return &Evaluation{
		Confidence: math.Round(confidence*1e4) / 1e4,
		Priority:   creativeFatiguePriority,
		ActionType: domain.ActionCreativeRefresh,
		ActionPayload: map[string]interface{}{
			"channels":          channelNames,
			"fatigued_channels": fatiguedJSON,
		},
		Reasoning: fmt.Sprintf(
			"Creative fatigue detected on %d channel(s). CTR declining up to %.0f%% over %d days with sufficient impressions. Recommend creative rotation.",
			len(fatiguedChannels), maxDecline*100, fatiguedChannels[0].PeriodDays,
		),
		TriggerData: map[string]interface{}{
			"fatigued_channels": fatiguedJSON,
		},
	}, nil
}

func (m *CreativeFatigue) channelImpressions(mctx *Context, channel string) int64 {
	for _, ch := range mctx.ChannelData {
		if ch.Channel == channel {
			return ch.Totals.Impressions
		}
	}
	return 0
}
