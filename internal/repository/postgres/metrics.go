package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-optimizer/internal/domain"
)

// MetricsRepo implements metrics.Repository against PostgreSQL. The
// raw, KPI, and trend tables are all append-only.
type MetricsRepo struct {
	db *sql.DB
	q  querier
}

// NewMetricsRepo creates a Postgres-backed metrics repository.
func NewMetricsRepo(db *sql.DB) *MetricsRepo { return &MetricsRepo{db: db, q: db} }

func (r *MetricsRepo) ListSnapshots(ctx context.Context, campaignID string, windowStart, windowEnd *time.Time) ([]domain.ChannelSnapshot, error) {
	return listSnapshots(ctx, r.q, campaignID, windowStart, windowEnd)
}

func (r *MetricsRepo) CreateRawMetrics(ctx context.Context, metrics []domain.RawMetric) error {
	if len(metrics) == 0 {
		return nil
	}

	values := make([]string, 0, len(metrics))
	args := make([]interface{}, 0, len(metrics)*11)
	idx := 1

	for i := range metrics {
		m := &metrics[i]
		if m.ID == "" {
			m.ID = uuid.New().String()
		}
		metadata, err := jsonArg(m.Metadata)
		if err != nil {
			return err
		}
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			idx, idx+1, idx+2, idx+3, idx+4, idx+5, idx+6, idx+7, idx+8, idx+9, idx+10,
		))
		args = append(args, m.ID, m.CampaignID, m.Channel, m.MetricName, m.MetricValue,
			m.MetricUnit, m.Source, m.CollectedAt, m.WindowStart, m.WindowEnd, metadata)
		idx += 11
	}

	q := `
		INSERT INTO raw_metrics
			(id, campaign_id, channel, metric_name, metric_value, metric_unit,
			 source, collected_at, window_start, window_end, metadata)
		VALUES ` + strings.Join(values, ", ")

	if _, err := r.q.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("create raw metrics: %w", err)
	}
	return nil
}

func (r *MetricsRepo) ListRawMetrics(ctx context.Context, campaignID string, windowStart, windowEnd *time.Time) ([]domain.RawMetric, error) {
	query := `
		SELECT id, campaign_id, channel, metric_name, metric_value, metric_unit,
		       source, collected_at, window_start, window_end, metadata
		FROM raw_metrics
		WHERE campaign_id = $1`
	args := []interface{}{campaignID}
	idx := 2

	if windowStart != nil {
		query += fmt.Sprintf(" AND window_start >= $%d", idx)
		args = append(args, *windowStart)
		idx++
	}
	if windowEnd != nil {
		query += fmt.Sprintf(" AND window_end <= $%d", idx)
		args = append(args, *windowEnd)
		idx++
	}
	query += " ORDER BY collected_at DESC"

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list raw metrics: %w", err)
	}
	defer rows.Close()

	var out []domain.RawMetric
	for rows.Next() {
		var m domain.RawMetric
		var metadata []byte
		if err := rows.Scan(
			&m.ID, &m.CampaignID, &m.Channel, &m.MetricName, &m.MetricValue, &m.MetricUnit,
			&m.Source, &m.CollectedAt, &m.WindowStart, &m.WindowEnd, &metadata,
		); err != nil {
			return nil, fmt.Errorf("scan raw metric: %w", err)
		}
		if m.Metadata, err = scanJSONMap(metadata); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *MetricsRepo) CreateDerivedKPIs(ctx context.Context, kpis []domain.DerivedKPI) error {
	if len(kpis) == 0 {
		return nil
	}

	values := make([]string, 0, len(kpis))
	args := make([]interface{}, 0, len(kpis)*9)
	idx := 1

	for i := range kpis {
		k := &kpis[i]
		if k.ID == "" {
			k.ID = uuid.New().String()
		}
		inputs, err := jsonArg(k.InputMetrics)
		if err != nil {
			return err
		}
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			idx, idx+1, idx+2, idx+3, idx+4, idx+5, idx+6, idx+7, idx+8,
		))
		args = append(args, k.ID, k.CampaignID, k.Channel, k.KPIName, k.KPIValue,
			k.WindowStart, k.WindowEnd, inputs, k.ComputedAt)
		idx += 9
	}

	q := `
		INSERT INTO derived_kpis
			(id, campaign_id, channel, kpi_name, kpi_value, window_start, window_end, input_metrics, computed_at)
		VALUES ` + strings.Join(values, ", ")

	if _, err := r.q.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("create derived kpis: %w", err)
	}
	return nil
}

func (r *MetricsRepo) ListKPIsInWindow(ctx context.Context, campaignID string, start, end time.Time) ([]domain.DerivedKPI, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, campaign_id, channel, kpi_name, kpi_value, window_start, window_end, input_metrics, computed_at
		FROM derived_kpis
		WHERE campaign_id = $1 AND window_start >= $2 AND window_end <= $3
		ORDER BY computed_at DESC
	`, campaignID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list kpis in window: %w", err)
	}
	return collectKPIs(rows)
}

func (r *MetricsRepo) ListDerivedKPIs(ctx context.Context, campaignID string, limit int) ([]domain.DerivedKPI, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, campaign_id, channel, kpi_name, kpi_value, window_start, window_end, input_metrics, computed_at
		FROM derived_kpis
		WHERE campaign_id = $1
		ORDER BY computed_at DESC
		LIMIT $2
	`, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("list derived kpis: %w", err)
	}
	return collectKPIs(rows)
}

func collectKPIs(rows *sql.Rows) ([]domain.DerivedKPI, error) {
	defer rows.Close()

	var out []domain.DerivedKPI
	for rows.Next() {
		var k domain.DerivedKPI
		var inputs []byte
		if err := rows.Scan(
			&k.ID, &k.CampaignID, &k.Channel, &k.KPIName, &k.KPIValue,
			&k.WindowStart, &k.WindowEnd, &inputs, &k.ComputedAt,
		); err != nil {
			return nil, fmt.Errorf("scan derived kpi: %w", err)
		}
		var err error
		if k.InputMetrics, err = scanJSONMap(inputs); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (r *MetricsRepo) CreateTrendIndicators(ctx context.Context, trends []domain.TrendIndicator) error {
	if len(trends) == 0 {
		return nil
	}

	values := make([]string, 0, len(trends))
	args := make([]interface{}, 0, len(trends)*12)
	idx := 1

	for i := range trends {
		t := &trends[i]
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		analysis, err := jsonArg(t.Analysis)
		if err != nil {
			return err
		}
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			idx, idx+1, idx+2, idx+3, idx+4, idx+5, idx+6, idx+7, idx+8, idx+9, idx+10, idx+11,
		))
		args = append(args, t.ID, t.CampaignID, t.Channel, t.KPIName, t.Direction, t.Magnitude,
			t.PeriodDays, t.CurrentValue, t.PreviousValue, t.Confidence, analysis, t.ComputedAt)
		idx += 12
	}

	q := `
		INSERT INTO trend_indicators
			(id, campaign_id, channel, kpi_name, direction, magnitude,
			 period_days, current_value, previous_value, confidence, analysis, computed_at)
		VALUES ` + strings.Join(values, ", ")

	if _, err := r.q.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("create trend indicators: %w", err)
	}
	return nil
}

func (r *MetricsRepo) ListTrendIndicators(ctx context.Context, campaignID string, limit int) ([]domain.TrendIndicator, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, campaign_id, channel, kpi_name, direction, magnitude,
		       period_days, current_value, previous_value, confidence, analysis, computed_at
		FROM trend_indicators
		WHERE campaign_id = $1
		ORDER BY computed_at DESC
		LIMIT $2
	`, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("list trend indicators: %w", err)
	}
	defer rows.Close()

	var out []domain.TrendIndicator
	for rows.Next() {
		var t domain.TrendIndicator
		var analysis []byte
		if err := rows.Scan(
			&t.ID, &t.CampaignID, &t.Channel, &t.KPIName, &t.Direction, &t.Magnitude,
			&t.PeriodDays, &t.CurrentValue, &t.PreviousValue, &t.Confidence, &analysis, &t.ComputedAt,
		); err != nil {
			return nil, fmt.Errorf("scan trend indicator: %w", err)
		}
		if t.Analysis, err = scanJSONMap(analysis); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
