package platform

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// DryRun simulates platform API calls with realistic fake responses.
// Used in development and as the default executor until real platform
// credentials are wired up. Safe for concurrent use.
type DryRun struct {
	mu      sync.Mutex
	created map[string]*ExecutionPlan // idempotency cache
}

// NewDryRun creates a dry-run adapter with an empty idempotency cache.
func NewDryRun() *DryRun {
	return &DryRun{created: map[string]*ExecutionPlan{}}
}

func (d *DryRun) ValidatePlan(_ context.Context, plan *ExecutionPlan) []ValidationIssue {
	var issues []ValidationIssue

	if plan.TotalBudget <= 0 {
		issues = append(issues, ValidationIssue{
			Field:    "total_budget",
			Message:  "Budget must be positive",
			Severity: "error",
		})
	}
	if plan.CampaignName == "" {
		issues = append(issues, ValidationIssue{
			Field:    "campaign_name",
			Message:  "Campaign name is required",
			Severity: "error",
		})
	}
	if len(plan.AdSets) == 0 {
		issues = append(issues, ValidationIssue{
			Field:    "ad_sets",
			Message:  "At least one ad set is required",
			Severity: "warning",
		})
	}
	return issues
}

func (d *DryRun) CreateCampaign(ctx context.Context, plan *ExecutionPlan, idempotencyKey string) (*ExecutionResult, error) {
	d.mu.Lock()
	_, replay := d.created[idempotencyKey]
	d.mu.Unlock()

	if replay {
		extID := fmt.Sprintf("dry-run-%s", keyPrefix(idempotencyKey))
		return &ExecutionResult{
			Success:            true,
			Platform:           plan.Platform,
			ExternalCampaignID: extID,
			ExternalIDs:        map[string]string{"campaign": extID},
			RawResponse:        map[string]interface{}{"note": "idempotent_replay"},
		}, nil
	}

	issues := d.ValidatePlan(ctx, plan)
	if hasErrors(issues) {
		return &ExecutionResult{
			Success:          false,
			Platform:         plan.Platform,
			ValidationIssues: issues,
			Error:            "Validation failed",
		}, nil
	}

	extID := fmt.Sprintf("dry-run-%s", hex8())

	d.mu.Lock()
	d.created[idempotencyKey] = plan
	d.mu.Unlock()

	externalIDs := map[string]string{"campaign": extID}
	for _, adSet := range plan.AdSets {
		externalIDs[adSet.Name] = fmt.Sprintf("dry-run-adset-%s", hex8()[:6])
	}

	return &ExecutionResult{
		Success:            true,
		Platform:           plan.Platform,
		ExternalCampaignID: extID,
		ExternalIDs:        externalIDs,
		Links: map[string]string{
			"campaign_url": fmt.Sprintf("https://dry-run.example.com/campaigns/%s", extID),
		},
		RawResponse: map[string]interface{}{
			"dry_run": true,
			"plan_summary": map[string]interface{}{
				"name":    plan.CampaignName,
				"budget":  plan.TotalBudget,
				"ad_sets": len(plan.AdSets),
			},
		},
	}, nil
}

func (d *DryRun) PauseCampaign(_ context.Context, externalCampaignID, platformName string) (*ExecutionResult, error) {
	return &ExecutionResult{
		Success:            true,
		Platform:           platformName,
		ExternalCampaignID: externalCampaignID,
		RawResponse:        map[string]interface{}{"status": "paused", "dry_run": true},
	}, nil
}

func (d *DryRun) ResumeCampaign(_ context.Context, externalCampaignID, platformName string) (*ExecutionResult, error) {
	return &ExecutionResult{
		Success:            true,
		Platform:           platformName,
		ExternalCampaignID: externalCampaignID,
		RawResponse:        map[string]interface{}{"status": "active", "dry_run": true},
	}, nil
}

func (d *DryRun) UpdateBudget(_ context.Context, externalCampaignID string, newBudget float64, platformName string) (*ExecutionResult, error) {
	if newBudget <= 0 {
		return &ExecutionResult{
			Success:            false,
			Platform:           platformName,
			ExternalCampaignID: externalCampaignID,
			Error:              "Budget must be positive",
		}, nil
	}
	return &ExecutionResult{
		Success:            true,
		Platform:           platformName,
		ExternalCampaignID: externalCampaignID,
		RawResponse: map[string]interface{}{
			"new_budget": newBudget,
			"status":     "budget_updated",
			"dry_run":    true,
		},
	}, nil
}

func hasErrors(issues []ValidationIssue) bool {
	for _, issue := range issues {
		if issue.Severity == "error" {
			return true
		}
	}
	return false
}

func hex8() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func keyPrefix(key string) string {
	if len(key) > 8 {
		return key[:8]
	}
	return key
}
