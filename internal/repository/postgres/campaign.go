package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-optimizer/internal/domain"
	"github.com/ignite/campaign-optimizer/internal/service/campaign"
)

// CampaignRepo implements campaign.Repository against PostgreSQL.
type CampaignRepo struct {
	db *sql.DB
	q  querier
}

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db, q: db} }

const campaignColumns = `id, name, objective, target_cac, start_date, end_date, status, created_at, updated_at`

func scanCampaign(s rowScanner) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	err := s.Scan(
		&c.ID, &c.Name, &c.Objective, &c.TargetCAC, &c.StartDate, &c.EndDate,
		&c.Status, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepo) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE id = $1
	`, id)
	c, err := scanCampaign(row)
	if err == sql.ErrNoRows {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) List(ctx context.Context, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	where := []string{}
	args := []interface{}{}
	idx := 1

	if f.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", idx))
		args = append(args, f.Status)
		idx++
	}
	if f.Search != "" {
		where = append(where, fmt.Sprintf("name ILIKE $%d", idx))
		args = append(args, "%"+f.Search+"%")
		idx++
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	listQ := `SELECT ` + campaignColumns + ` FROM campaigns` + clause +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.q.QueryContext(ctx, listQ, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

func (r *CampaignRepo) ListActive(ctx context.Context) ([]domain.Campaign, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE status = $1
		ORDER BY created_at ASC
	`, domain.CampaignActive)
	if err != nil {
		return nil, fmt.Errorf("list active campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO campaigns (id, name, objective, target_cac, start_date, end_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	`, c.ID, c.Name, c.Objective, c.TargetCAC, c.StartDate, c.EndDate, c.Status)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

func (r *CampaignRepo) Update(ctx context.Context, id string, u campaign.UpdateFields) error {
	sets := []string{"updated_at = NOW()"}
	args := []interface{}{}
	idx := 1

	add := func(col string, val interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, val)
		idx++
	}

	if u.Name != nil {
		add("name", *u.Name)
	}
	if u.Status != nil {
		add("status", *u.Status)
	}
	if u.TargetCAC != nil {
		add("target_cac", *u.TargetCAC)
	}
	if u.EndDate != nil {
		add("end_date", *u.EndDate)
	}

	args = append(args, id)
	q := fmt.Sprintf("UPDATE campaigns SET %s WHERE id = $%d", strings.Join(sets, ", "), idx)

	res, err := r.q.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

func (r *CampaignRepo) Delete(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM campaigns WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

func (r *CampaignRepo) CreateSnapshots(ctx context.Context, snapshots []domain.ChannelSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	values := make([]string, 0, len(snapshots))
	args := make([]interface{}, 0, len(snapshots)*10)
	idx := 1

	for i := range snapshots {
		s := &snapshots[i]
		if s.ID == "" {
			s.ID = uuid.New().String()
		}
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, NOW())",
			idx, idx+1, idx+2, idx+3, idx+4, idx+5, idx+6, idx+7, idx+8, idx+9,
		))
		args = append(args, s.ID, s.CampaignID, s.Channel, s.WindowStart, s.WindowEnd,
			s.Spend, s.Impressions, s.Clicks, s.Conversions, s.Revenue)
		idx += 10
	}

	q := `
		INSERT INTO channel_snapshots
			(id, campaign_id, channel, window_start, window_end, spend, impressions, clicks, conversions, revenue, created_at)
		VALUES ` + strings.Join(values, ", ")

	if _, err := r.q.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("create snapshots: %w", err)
	}
	return nil
}

func (r *CampaignRepo) ListSnapshots(ctx context.Context, campaignID string, windowStart, windowEnd *time.Time) ([]domain.ChannelSnapshot, error) {
	return listSnapshots(ctx, r.q, campaignID, windowStart, windowEnd)
}

// listSnapshots is shared by the campaign, metrics, and engine repos,
// which all read the same insert-only table the same way.
func listSnapshots(ctx context.Context, q querier, campaignID string, windowStart, windowEnd *time.Time) ([]domain.ChannelSnapshot, error) {
	query := `
		SELECT id, campaign_id, channel, window_start, window_end,
		       spend, impressions, clicks, conversions, revenue, created_at
		FROM channel_snapshots
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
	query += " ORDER BY window_end DESC, channel ASC"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []domain.ChannelSnapshot
	for rows.Next() {
		var s domain.ChannelSnapshot
		if err := rows.Scan(
			&s.ID, &s.CampaignID, &s.Channel, &s.WindowStart, &s.WindowEnd,
			&s.Spend, &s.Impressions, &s.Clicks, &s.Conversions, &s.Revenue, &s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func countSnapshots(ctx context.Context, q querier, campaignID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM channel_snapshots WHERE campaign_id = $1`, campaignID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count snapshots: %w", err)
	}
	return n, nil
}
