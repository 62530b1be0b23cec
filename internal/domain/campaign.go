package domain

import (
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignActive   CampaignStatus = "active"
	CampaignPaused   CampaignStatus = "paused"
	CampaignArchived CampaignStatus = "archived"
)

// CampaignObjective identifies what the campaign is optimizing toward.
type CampaignObjective string

const (
	ObjectiveConversions CampaignObjective = "paid_conversions"
	ObjectiveRevenue     CampaignObjective = "revenue"
	ObjectiveInstalls    CampaignObjective = "installs"
	ObjectiveLeads       CampaignObjective = "leads"
)

// Campaign is the unit every optimization artifact hangs off of. The
// controller reads it for objective and target CAC; it never mutates
// performance numbers here.
type Campaign struct {
	ID        string            `json:"id" db:"id"`
	Name      string            `json:"name" db:"name"`
	Objective CampaignObjective `json:"objective" db:"objective"`
	TargetCAC *float64          `json:"target_cac" db:"target_cac"`
	StartDate *time.Time        `json:"start_date" db:"start_date"`
	EndDate   *time.Time        `json:"end_date" db:"end_date"`
	Status    CampaignStatus    `json:"status" db:"status"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt time.Time         `json:"updated_at" db:"updated_at"`
}

// IsActive reports whether the monitor should include this campaign.
func (c *Campaign) IsActive() bool {
	return c.Status == CampaignActive
}

// ChannelSnapshot is one observed time window of performance for one channel.
// Rows are insert-only; the controller trusts nothing else as input.
type ChannelSnapshot struct {
	ID          string    `json:"id" db:"id"`
	CampaignID  string    `json:"campaign_id" db:"campaign_id"`
	Channel     string    `json:"channel" db:"channel"`
	WindowStart time.Time `json:"window_start" db:"window_start"`
	WindowEnd   time.Time `json:"window_end" db:"window_end"`
	Spend       float64   `json:"spend" db:"spend"`
	Impressions int64     `json:"impressions" db:"impressions"`
	Clicks      int64     `json:"clicks" db:"clicks"`
	Conversions int64     `json:"conversions" db:"conversions"`
	Revenue     float64   `json:"revenue" db:"revenue"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
