// Package verifier closes the optimization loop: after a proposal has
// been executed and the verification window has passed, it compares the
// predicted impact against measured KPIs, writes a learning row, and
// folds the accuracy into the method's running stats.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-optimizer/internal/config"
	"github.com/ignite/campaign-optimizer/internal/domain"
	"github.com/ignite/campaign-optimizer/internal/service/metrics"
)

// VerificationResult is the outcome of verifying a single proposal.
// Error "pending" means the window has not elapsed yet; Details carries
// the earliest verification time in that case.
type VerificationResult struct {
	Success       bool                   `json:"success"`
	ProposalID    string                 `json:"proposal_id"`
	LearningID    string                 `json:"learning_id,omitempty"`
	AccuracyScore *float64               `json:"accuracy_score,omitempty"`
	Error         string                 `json:"error,omitempty"`
	Details       map[string]interface{} `json:"details,omitempty"`
}

// Pending reports whether the proposal is still inside its window.
func (r VerificationResult) Pending() bool { return r.Error == "pending" }

// BatchVerificationResult aggregates one campaign-wide verification pass.
type BatchVerificationResult struct {
	Total    int                  `json:"total"`
	Verified int                  `json:"verified"`
	Pending  int                  `json:"pending"`
	Failed   int                  `json:"failed"`
	Records  []VerificationResult `json:"records"`
}

// Verifier measures executed proposals against post-execution KPIs.
type Verifier struct {
	repo      Repository
	collector *metrics.Collector
	calc      *metrics.Calculator
	cfg       config.OptimizationConfig
}

// New creates a Verifier. The collector and calculator re-measure the
// campaign at verification time.
func New(repo Repository, collector *metrics.Collector, calc *metrics.Calculator, cfg config.OptimizationConfig) *Verifier {
	return &Verifier{repo: repo, collector: collector, calc: calc, cfg: cfg}
}

// VerifyProposal verifies one executed proposal. windowHours <= 0 falls
// back to the configured verification delay. Re-verifying an already
// verified proposal returns the existing learning without touching it.
func (v *Verifier) VerifyProposal(ctx context.Context, proposalID string, windowHours int) VerificationResult {
	if windowHours <= 0 {
		windowHours = v.cfg.VerificationDelayHours
	}

	proposal, err := v.repo.GetProposal(ctx, proposalID)
	if err != nil {
		if errors.Is(err, ErrProposalNotFound) {
			return VerificationResult{Success: false, ProposalID: proposalID, Error: "Proposal not found"}
		}
		return VerificationResult{Success: false, ProposalID: proposalID, Error: err.Error()}
	}

	if proposal.Status != domain.ProposalExecuted || proposal.ExecutedAt == nil {
		return VerificationResult{
			Success:    false,
			ProposalID: proposalID,
			Error:      fmt.Sprintf("Proposal must be executed to verify (status: %s)", proposal.Status),
		}
	}

	now := time.Now().UTC()
	executedAt := proposal.ExecutedAt.UTC()
	window := time.Duration(windowHours) * time.Hour

	if elapsed := now.Sub(executedAt); elapsed < window {
		remaining := (window - elapsed).Truncate(time.Second)
		return VerificationResult{
			Success:    false,
			ProposalID: proposalID,
			Error:      "pending",
			Details: map[string]interface{}{
				"status":                "pending",
				"message":               fmt.Sprintf("Verification window not reached. %s remaining.", remaining),
				"executed_at":           executedAt.Format(time.RFC3339),
				"earliest_verification": executedAt.Add(window).Format(time.RFC3339),
			},
		}
	}

	existing, err := v.repo.GetVerifiedLearning(ctx, proposal.ID)
	if err == nil {
		return VerificationResult{
			Success:       true,
			ProposalID:    proposalID,
			LearningID:    existing.ID,
			AccuracyScore: existing.AccuracyScore,
			Details:       map[string]interface{}{"idempotent": true, "already_verified": true},
		}
	}
	if !errors.Is(err, ErrLearningNotFound) {
		return VerificationResult{Success: false, ProposalID: proposalID, Error: err.Error()}
	}

	predicted := predictedImpact(proposal)
	actual := v.actualImpact(ctx, proposal)
	accuracy := accuracyScore(predicted, actual)

	learning := &domain.OptimizationLearning{
		ID:                 uuid.NewString(),
		CampaignID:         proposal.CampaignID,
		ProposalID:         proposal.ID,
		MethodID:           proposal.MethodID,
		PredictedImpact:    predicted,
		ActualImpact:       actual,
		AccuracyScore:      &accuracy,
		VerificationStatus: domain.VerificationVerified,
		VerifiedAt:         &now,
		Details: map[string]interface{}{
			"action_type":               proposal.ActionType,
			"confidence":                proposal.Confidence,
			"verification_window_hours": windowHours,
		},
		CreatedAt: now,
	}

	err = v.repo.InTx(ctx, func(tx Repository) error {
		if err := tx.CreateLearning(ctx, learning); err != nil {
			return err
		}
		return updateMethodStats(ctx, tx, proposal.MethodID, accuracy, now)
	})
	if err != nil {
		return VerificationResult{Success: false, ProposalID: proposalID, Error: err.Error()}
	}

	log.Printf("[verifier.Verifier] proposal %s verified, accuracy %.4f", proposal.ID, accuracy)

	return VerificationResult{
		Success:       true,
		ProposalID:    proposalID,
		LearningID:    learning.ID,
		AccuracyScore: &accuracy,
		Details: map[string]interface{}{
			"predicted_impact": predicted,
			"actual_impact":    actual,
		},
	}
}

// VerifyBatch verifies every executed proposal of a campaign that ran
// within the age window. maxAgeHours <= 0 falls back to the configured
// batch limit. Proposals older than the window are skipped entirely.
func (v *Verifier) VerifyBatch(ctx context.Context, campaignID string, maxAgeHours int) BatchVerificationResult {
	if maxAgeHours <= 0 {
		maxAgeHours = v.cfg.BatchVerifyMaxAgeHours
	}

	proposals, err := v.repo.ListExecutedProposals(ctx, campaignID)
	if err != nil {
		return BatchVerificationResult{Records: []VerificationResult{{
			Success: false, ProposalID: "", Error: err.Error(),
		}}, Failed: 1}
	}

	cutoff := time.Now().UTC().Add(-time.Duration(maxAgeHours) * time.Hour)
	result := BatchVerificationResult{Total: len(proposals)}

	for _, p := range proposals {
		if p.ExecutedAt == nil || p.ExecutedAt.UTC().Before(cutoff) {
			continue
		}
		record := v.VerifyProposal(ctx, p.ID, 0)
		result.Records = append(result.Records, record)
		switch {
		case record.Pending():
			result.Pending++
		case record.Success:
			result.Verified++
		default:
			result.Failed++
		}
	}

	return result
}

// predictedImpact pulls the expectation a method baked into its payload.
func predictedImpact(proposal *domain.OptimizationProposal) map[string]interface{} {
	payload := proposal.ActionPayload
	if payload == nil {
		payload = map[string]interface{}{}
	}

	predicted := map[string]interface{}{"action_type": proposal.ActionType}

	switch proposal.ActionType {
	case domain.ActionBudgetReallocation:
		predicted["new_allocations"] = valueOr(payload, "new_allocations", map[string]interface{}{})
		predicted["reductions"] = valueOr(payload, "reductions", map[string]interface{}{})
		predicted["expected_improvement"] = valueOr(payload, "expected_improvement", "efficiency")
	case domain.ActionCreativeRefresh:
		predicted["channels"] = valueOr(payload, "channels", []interface{}{})
		predicted["fatigued_channels"] = valueOr(payload, "fatigued_channels", []interface{}{})
		predicted["expected_improvement"] = "ctr"
	default:
		predicted["payload"] = payload
	}

	return predicted
}

// actualImpact re-measures the campaign: fresh raw metrics, fresh KPIs,
// split into campaign-level and per-channel maps.
func (v *Verifier) actualImpact(ctx context.Context, proposal *domain.OptimizationProposal) map[string]interface{} {
	count, err := v.repo.CountSnapshots(ctx, proposal.CampaignID)
	if err != nil {
		return map[string]interface{}{"error": "measurement_failed", "message": err.Error()}
	}
	if count == 0 {
		return map[string]interface{}{"error": "no_snapshots", "message": "No snapshot data available"}
	}

	raws, err := v.collector.Collect(ctx, proposal.CampaignID, nil, nil)
	if err != nil {
		return map[string]interface{}{"error": "measurement_failed", "message": err.Error()}
	}
	kpis, err := v.calc.Compute(ctx, proposal.CampaignID, raws, nil, nil)
	if err != nil {
		return map[string]interface{}{"error": "measurement_failed", "message": err.Error()}
	}

	campaignKPIs := map[string]interface{}{}
	channelKPIs := map[string]interface{}{}
	for _, kpi := range kpis {
		if kpi.Channel == nil {
			campaignKPIs[kpi.KPIName] = kpi.KPIValue
			continue
		}
		bucket, ok := channelKPIs[*kpi.Channel].(map[string]interface{})
		if !ok {
			bucket = map[string]interface{}{}
			channelKPIs[*kpi.Channel] = bucket
		}
		bucket[kpi.KPIName] = kpi.KPIValue
	}

	return map[string]interface{}{
		"snapshot_count":    count,
		"raw_metrics_count": len(raws),
		"campaign_kpis":     campaignKPIs,
		"channel_kpis":      channelKPIs,
	}
}

// accuracyScore grades the prediction against the measured state.
// Budget moves are graded on ROAS (or CPA when no revenue), creative
// refreshes on CTR; anything unmeasurable scores a neutral 0.5.
func accuracyScore(predicted, actual map[string]interface{}) float64 {
	if _, failed := actual["error"]; failed {
		return 0.5
	}

	campaignKPIs, _ := actual["campaign_kpis"].(map[string]interface{})
	actionType, _ := predicted["action_type"].(string)

	switch actionType {
	case domain.ActionBudgetReallocation:
		if roas, ok := kpiValue(campaignKPIs, domain.KPIROAS); ok && roas > 0 {
			// 3.0 ROAS scores perfect
			return clampRound(roas / 3.0)
		}
		if cpa, ok := kpiValue(campaignKPIs, domain.KPICPA); ok && cpa > 0 {
			// CPA of 30 or below scores perfect
			return clampRound(30.0 / math.Max(cpa, 1.0))
		}
	case domain.ActionCreativeRefresh:
		if ctr, ok := kpiValue(campaignKPIs, domain.KPICTR); ok && ctr > 0 {
			// 2% CTR scores perfect
			return clampRound(ctr / 0.02)
		}
	}

	return 0.5
}

// updateMethodStats folds one accuracy sample into the running average.
// Accuracy >= 0.5 counts as a successful execution.
func updateMethodStats(ctx context.Context, tx Repository, methodID string, accuracy float64, now time.Time) error {
	method, err := tx.GetMethod(ctx, methodID)
	if err != nil {
		if errors.Is(err, ErrMethodNotFound) {
			return nil
		}
		return err
	}

	stats := method.Stats
	total := stats.TotalExecutions + 1
	if accuracy >= 0.5 {
		stats.SuccessfulExecutions++
	}
	stats.AvgAccuracy = round4((stats.AvgAccuracy*float64(total-1) + accuracy) / float64(total))
	stats.TotalExecutions = total
	stats.LastVerifiedAt = &now

	return tx.UpdateMethodStats(ctx, methodID, stats)
}

func kpiValue(kpis map[string]interface{}, name string) (float64, bool) {
	v, ok := kpis[name].(float64)
	return v, ok
}

func valueOr(payload map[string]interface{}, key string, fallback interface{}) interface{} {
	if v, ok := payload[key]; ok {
		return v
	}
	return fallback
}

func clampRound(score float64) float64 {
	return round4(math.Max(0, math.Min(1, score)))
}

func round4(v float64) float64 { return math.Round(v*1e4) / 1e4 }
