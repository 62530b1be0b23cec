package domain

import "time"

// MetricUnit tags how a raw metric value should be read.
type MetricUnit string

const (
	UnitCount    MetricUnit = "count"
	UnitCurrency MetricUnit = "currency"
)

// Raw metric dimensions emitted by the collector, one per snapshot column.
const (
	MetricSpend       = "spend"
	MetricImpressions = "impressions"
	MetricClicks      = "clicks"
	MetricConversions = "conversions"
	MetricRevenue     = "revenue"
)

// Derived KPI names produced by the calculator.
const (
	KPICTR  = "ctr"
	KPICVR  = "cvr"
	KPICPC  = "cpc"
	KPICPM  = "cpm"
	KPICPA  = "cpa"
	KPIROAS = "roas"
)

// RawMetric is one typed observation projected out of a channel snapshot.
// Immutable; the raw table is append-only and timestamped, so repeated
// collection runs legitimately produce duplicate rows.
type RawMetric struct {
	ID          string                 `json:"id" db:"id"`
	CampaignID  string                 `json:"campaign_id" db:"campaign_id"`
	Channel     string                 `json:"channel" db:"channel"`
	MetricName  string                 `json:"metric_name" db:"metric_name"`
	MetricValue float64                `json:"metric_value" db:"metric_value"`
	MetricUnit  MetricUnit             `json:"metric_unit" db:"metric_unit"`
	Source      string                 `json:"source" db:"source"`
	CollectedAt time.Time              `json:"collected_at" db:"collected_at"`
	WindowStart *time.Time             `json:"window_start" db:"window_start"`
	WindowEnd   *time.Time             `json:"window_end" db:"window_end"`
	Metadata    map[string]interface{} `json:"metadata" db:"metadata"`
}

// DerivedKPI is a computed ratio over aggregated raw metrics.
// Channel nil means campaign-level. A row only exists when its
// denominator was non-zero.
type DerivedKPI struct {
	ID           string                 `json:"id" db:"id"`
	CampaignID   string                 `json:"campaign_id" db:"campaign_id"`
	Channel      *string                `json:"channel" db:"channel"`
	KPIName      string                 `json:"kpi_name" db:"kpi_name"`
	KPIValue     float64                `json:"kpi_value" db:"kpi_value"`
	WindowStart  *time.Time             `json:"window_start" db:"window_start"`
	WindowEnd    *time.Time             `json:"window_end" db:"window_end"`
	InputMetrics map[string]interface{} `json:"input_metrics" db:"input_metrics"`
	ComputedAt   time.Time              `json:"computed_at" db:"computed_at"`
}

// TrendDirection classifies period-over-period movement of a KPI value.
// The analyzer records the raw numeric direction; whether "improving"
// is good for a given KPI is the consuming method's call.
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendDeclining TrendDirection = "declining"
	TrendStable    TrendDirection = "stable"
)

// TrendIndicator compares the latest period to the one before it for a
// single (channel, kpi) key.
type TrendIndicator struct {
	ID            string                 `json:"id" db:"id"`
	CampaignID    string                 `json:"campaign_id" db:"campaign_id"`
	Channel       *string                `json:"channel" db:"channel"`
	KPIName       string                 `json:"kpi_name" db:"kpi_name"`
	Direction     TrendDirection         `json:"direction" db:"direction"`
	Magnitude     float64                `json:"magnitude" db:"magnitude"`
	PeriodDays    int                    `json:"period_days" db:"period_days"`
	CurrentValue  float64                `json:"current_value" db:"current_value"`
	PreviousValue float64                `json:"previous_value" db:"previous_value"`
	Confidence    float64                `json:"confidence" db:"confidence"`
	Analysis      map[string]interface{} `json:"analysis" db:"analysis"`
	ComputedAt    time.Time              `json:"computed_at" db:"computed_at"`
}
