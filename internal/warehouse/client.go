// Package warehouse pulls channel snapshots out of the Snowflake data
// lake into the local snapshot table, so campaigns wired to warehouse
// feeds do not need a separate ingestion path.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/snowflakedb/gosnowflake" // Snowflake driver

	"github.com/ignite/campaign-optimizer/internal/config"
	"github.com/ignite/campaign-optimizer/internal/domain"
)

// Client provides access to the Snowflake warehouse
type Client struct {
	config config.WarehouseConfig
	db     *sql.DB
}

// NewClient creates a new Snowflake client
func NewClient(cfg config.WarehouseConfig) (*Client, error) {
	// DSN format: user:password@account/database/schema?warehouse=xxx
	dsn := fmt.Sprintf("%s:%s@%s/%s/%s",
		cfg.User,
		cfg.Password,
		cfg.Account,
		cfg.Database,
		cfg.Schema,
	)
	if cfg.Warehouse != "" {
		dsn += "?warehouse=" + cfg.Warehouse
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open snowflake connection: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Client{
		config: cfg,
		db:     db,
	}, nil
}

// Close closes the database connection
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Ping tests the database connection
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// FetchSnapshots returns warehouse snapshot rows for a campaign with a
// window ending after the given cutoff.
func (c *Client) FetchSnapshots(ctx context.Context, campaignID string, after time.Time) ([]domain.ChannelSnapshot, error) {
	query := `
		SELECT CHANNEL, WINDOW_START, WINDOW_END, SPEND, IMPRESSIONS, CLICKS, CONVERSIONS, REVENUE
		FROM CHANNEL_SNAPSHOTS
		WHERE CAMPAIGN_ID = ? AND WINDOW_END > ?
		ORDER BY WINDOW_END ASC`

	rows, err := c.db.QueryContext(ctx, query, campaignID, after)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var out []domain.ChannelSnapshot
	for rows.Next() {
		s := domain.ChannelSnapshot{CampaignID: campaignID}
		if err := rows.Scan(
			&s.Channel, &s.WindowStart, &s.WindowEnd,
			&s.Spend, &s.Impressions, &s.Clicks, &s.Conversions, &s.Revenue,
		); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
