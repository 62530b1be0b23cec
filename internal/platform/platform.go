// Package platform contains the advertising platform adapters. Every
// adapter exposes the same capability set; callers never know which
// platform is behind it. Business failures (validation, rejected
// budgets, platform API errors) come back inside the ExecutionResult;
// the error return is reserved for programming mistakes.
package platform

import (
	"context"
)

// Platform identifiers.
const (
	PlatformMeta     = "meta"
	PlatformGoogle   = "google"
	PlatformLinkedIn = "linkedin"
	PlatformDryRun   = "dry_run"
	PlatformAdvisory = "advisory"
)

// ValidationIssue is one problem found in an execution plan.
// Severity is "error" or "warning"; only errors block execution.
type ValidationIssue struct {
	Field    string `json:"field"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// AdSetSpec describes a single ad set to create on a platform.
type AdSetSpec struct {
	Name        string                 `json:"name"`
	DailyBudget float64                `json:"daily_budget"`
	Targeting   map[string]interface{} `json:"targeting,omitempty"`
	Creative    map[string]interface{} `json:"creative,omitempty"`
	BidStrategy string                 `json:"bid_strategy,omitempty"`
}

// ExecutionPlan is the normalized payload sent to a platform adapter.
type ExecutionPlan struct {
	Platform     string                 `json:"platform"`
	CampaignName string                 `json:"campaign_name"`
	Objective    string                 `json:"objective"`
	TotalBudget  float64                `json:"total_budget"`
	Currency     string                 `json:"currency,omitempty"`
	AdSets       []AdSetSpec            `json:"ad_sets,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// ExecutionResult is the standardized outcome of any platform interaction.
type ExecutionResult struct {
	Success            bool                   `json:"success"`
	Platform           string                 `json:"platform"`
	ExternalCampaignID string                 `json:"external_campaign_id,omitempty"`
	ExternalIDs        map[string]string      `json:"external_ids,omitempty"`
	Links              map[string]string      `json:"links,omitempty"`
	ValidationIssues   []ValidationIssue      `json:"validation_issues,omitempty"`
	Error              string                 `json:"error,omitempty"`
	RawResponse        map[string]interface{} `json:"raw_response,omitempty"`
}

// Map flattens the result into the shape stored on execution action rows.
func (r *ExecutionResult) Map() map[string]interface{} {
	out := map[string]interface{}{
		"success":  r.Success,
		"platform": r.Platform,
	}
	if r.ExternalCampaignID != "" {
		out["external_campaign_id"] = r.ExternalCampaignID
	}
	if len(r.ExternalIDs) > 0 {
		ids := make(map[string]interface{}, len(r.ExternalIDs))
		for k, v := range r.ExternalIDs {
			ids[k] = v
		}
		out["external_ids"] = ids
	}
	if len(r.Links) > 0 {
		links := make(map[string]interface{}, len(r.Links))
		for k, v := range r.Links {
			links[k] = v
		}
		out["links"] = links
	}
	if len(r.ValidationIssues) > 0 {
		issues := make([]interface{}, 0, len(r.ValidationIssues))
		for _, issue := range r.ValidationIssues {
			issues = append(issues, map[string]interface{}{
				"field":    issue.Field,
				"message":  issue.Message,
				"severity": issue.Severity,
			})
		}
		out["validation_issues"] = issues
	}
	if r.Error != "" {
		out["error"] = r.Error
	}
	if len(r.RawResponse) > 0 {
		out["raw_response"] = r.RawResponse
	}
	return out
}

// Adapter is the capability set every platform integration implements.
// ValidatePlan is side-effect free; CreateCampaign runs it first and
// short-circuits on any error-severity issue.
type Adapter interface {
	ValidatePlan(ctx context.Context, plan *ExecutionPlan) []ValidationIssue
	CreateCampaign(ctx context.Context, plan *ExecutionPlan, idempotencyKey string) (*ExecutionResult, error)
	PauseCampaign(ctx context.Context, externalCampaignID, platformName string) (*ExecutionResult, error)
	ResumeCampaign(ctx context.Context, externalCampaignID, platformName string) (*ExecutionResult, error)
	UpdateBudget(ctx context.Context, externalCampaignID string, newBudget float64, platformName string) (*ExecutionResult, error)
}
