package metrics

import (
	"context"
	"time"

	"github.com/ignite/campaign-optimizer/internal/domain"
)

// Repository defines the storage operations the metrics services need.
// Implemented by repository/postgres.MetricsRepo.
type Repository interface {
	// ListSnapshots returns snapshots for a campaign, optionally scoped to a
	// window. Nil bounds mean unbounded.
	ListSnapshots(ctx context.Context, campaignID string, windowStart, windowEnd *time.Time) ([]domain.ChannelSnapshot, error)

	// CreateRawMetrics inserts raw metric rows. The raw table is
	// append-only; callers never update or delete.
	CreateRawMetrics(ctx context.Context, metrics []domain.RawMetric) error

	// ListRawMetrics returns raw metric rows, optionally scoped to a window.
	ListRawMetrics(ctx context.Context, campaignID string, windowStart, windowEnd *time.Time) ([]domain.RawMetric, error)

	// CreateDerivedKPIs inserts derived KPI rows.
	CreateDerivedKPIs(ctx context.Context, kpis []domain.DerivedKPI) error

	// ListKPIsInWindow returns KPI rows whose window falls entirely inside
	// [start, end].
	ListKPIsInWindow(ctx context.Context, campaignID string, start, end time.Time) ([]domain.DerivedKPI, error)

	// ListDerivedKPIs returns the most recent KPI rows, newest first.
	ListDerivedKPIs(ctx context.Context, campaignID string, limit int) ([]domain.DerivedKPI, error)

	// CreateTrendIndicators inserts trend rows.
	CreateTrendIndicators(ctx context.Context, trends []domain.TrendIndicator) error

	// ListTrendIndicators returns the most recent trend rows, newest first.
	ListTrendIndicators(ctx context.Context, campaignID string, limit int) ([]domain.TrendIndicator, error)
}
