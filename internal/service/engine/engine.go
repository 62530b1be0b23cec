// Package engine implements the decision pipeline: observe campaign
// performance, run the registered methods, filter their evaluations
// through the guardrails, and persist the survivors as proposals.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-optimizer/internal/config"
	"github.com/ignite/campaign-optimizer/internal/domain"
	"github.com/ignite/campaign-optimizer/internal/service/guardrail"
	"github.com/ignite/campaign-optimizer/internal/service/method"
	"github.com/ignite/campaign-optimizer/internal/service/metrics"
)

// Result is the outcome of a single engine run.
type Result struct {
	Success               bool                   `json:"success"`
	CampaignID            string                 `json:"campaign_id"`
	ProposalsCreated      int                    `json:"proposals_created"`
	ProposalsAutoApproved int                    `json:"proposals_auto_approved"`
	ProposalsQueued       int                    `json:"proposals_queued"`
	GuardrailRejections   int                    `json:"guardrail_rejections"`
	MethodEvaluations     int                    `json:"method_evaluations"`
	Errors                []string               `json:"errors,omitempty"`
	Details               map[string]interface{} `json:"details,omitempty"`
}

// Engine runs the eight-step pipeline for one campaign at a time.
type Engine struct {
	repo      Repository
	collector *metrics.Collector
	calc      *metrics.Calculator
	analyzer  *metrics.TrendAnalyzer
	registry  *method.Registry
	cfg       config.OptimizationConfig
}

// New creates an Engine on top of the shared metrics services.
func New(repo Repository, collector *metrics.Collector, calc *metrics.Calculator, analyzer *metrics.TrendAnalyzer, registry *method.Registry, cfg config.OptimizationConfig) *Engine {
	return &Engine{
		repo:      repo,
		collector: collector,
		calc:      calc,
		analyzer:  analyzer,
		registry:  registry,
		cfg:       cfg,
	}
}

type passingEvaluation struct {
	eval   *method.Evaluation
	checks []guardrail.CheckResult
}

// Run executes the full pipeline. Metric rows commit as they are
// written; proposal creation, calibration and routing commit together
// at the end.
func (e *Engine) Run(ctx context.Context, campaignID string) *Result {
	result := &Result{CampaignID: campaignID, Details: map[string]interface{}{}}

	// Step 1: preconditions
	campaign, err := e.repo.GetCampaign(ctx, campaignID)
	if err != nil {
		if errors.Is(err, ErrCampaignNotFound) {
			result.Errors = append(result.Errors, fmt.Sprintf("Campaign %s not found", campaignID))
		} else {
			result.Errors = append(result.Errors, err.Error())
		}
		return result
	}

	snapshotCount, err := e.repo.CountSnapshots(ctx, campaignID)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	if snapshotCount == 0 {
		result.Errors = append(result.Errors, "No channel snapshots available for this campaign")
		return result
	}

	// Step 2: collect and derive
	raws, err := e.collector.Collect(ctx, campaignID, nil, nil)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	kpiRows, err := e.calc.Compute(ctx, campaignID, raws, nil, nil)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	trendRows, err := e.analyzer.Analyze(ctx, campaignID, e.cfg.TrendPeriodDays)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	snapshots, err := e.repo.ListSnapshots(ctx, campaignID, nil, nil)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	mctx := buildContext(campaign, raws, kpiRows, trendRows, snapshots)

	// Step 3: method evaluation
	evaluations, evalErrs := e.registry.EvaluateAll(mctx)
	result.MethodEvaluations = len(evaluations)
	if len(evalErrs) > 0 {
		msgs := make([]string, 0, len(evalErrs))
		for _, ee := range evalErrs {
			msgs = append(msgs, fmt.Sprintf("%s: %v", ee.Method, ee.Err))
		}
		result.Details["method_errors"] = msgs
	}

	if len(evaluations) == 0 {
		result.Success = true
		result.Details["message"] = "No optimizations triggered"
		return result
	}

	// Step 4: guardrails
	recentTimes, err := e.repo.RecentProposalTimes(ctx, campaignID, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	var passing []passingEvaluation
	for _, evaluation := range evaluations {
		checks := []guardrail.CheckResult{
			guardrail.CheckRateLimit(recentTimes, e.cfg.MaxProposalsPerHour),
		}

		lastFired, err := e.repo.LastProposalTime(ctx, campaignID, evaluation.ActionType)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			return result
		}
		checks = append(checks, guardrail.CheckCooldown(evaluation.ActionType, lastFired, e.cfg.DefaultCooldownMinutes))

		if evaluation.ActionType == domain.ActionBudgetReallocation {
			proposed := allocationsFromPayload(evaluation.ActionPayload["new_allocations"])
			checks = append(checks,
				guardrail.CheckBudgetChangeLimit(mctx.CurrentAllocations, proposed, e.cfg.MaxBudgetChangePct),
				guardrail.CheckMinimumChannelFloor(proposed, e.cfg.MinChannelFloorPct),
			)
		}

		passed := true
		for _, c := range checks {
			if !c.Passed {
				passed = false
				log.Printf("[engine.Engine] campaign %s: %s rejected by %s: %s",
					campaignID, evaluation.ActionType, c.RuleName, c.Message)
				break
			}
		}
		if passed {
			passing = append(passing, passingEvaluation{eval: evaluation, checks: checks})
		} else {
			result.GuardrailRejections++
		}
	}

	// Steps 5-7: persist, calibrate, route. One transaction.
	now := time.Now().UTC()
	expiresAt := now.Add(time.Duration(e.cfg.ProposalExpiryHours) * time.Hour)
	created, autoApproved, queued := 0, 0, 0

	err = e.repo.InTx(ctx, func(tx Repository) error {
		for i, pe := range passing {
			methodRow, err := ensureMethodRow(ctx, tx, pe.eval.ActionType, e.cfg.DefaultCooldownMinutes)
			if err != nil {
				return err
			}

			confidence := calibrateConfidence(pe.eval.Confidence, snapshotCount, len(raws))

			proposal := &domain.OptimizationProposal{
				ID:              uuid.NewString(),
				CampaignID:      campaignID,
				MethodID:        methodRow.ID,
				Status:          domain.ProposalPending,
				Confidence:      confidence,
				Priority:        pe.eval.Priority,
				ActionType:      pe.eval.ActionType,
				ActionPayload:   pe.eval.ActionPayload,
				Reasoning:       pe.eval.Reasoning,
				TriggerData:     pe.eval.TriggerData,
				GuardrailChecks: guardrailChecksJSON(pe.checks),
				ExpiresAt:       &expiresAt,
				// Later proposals in the same run must sort after earlier ones.
				CreatedAt: now.Add(time.Duration(i) * time.Microsecond),
			}

			if confidence >= e.cfg.AutoApproveThreshold {
				approvedAt := now
				approvedBy := "engine"
				proposal.Status = domain.ProposalAutoApproved
				proposal.ApprovedBy = &approvedBy
				proposal.ApprovedAt = &approvedAt
				autoApproved++
			} else {
				queued++
			}

			if err := tx.CreateProposal(ctx, proposal); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	result.ProposalsCreated = created
	result.ProposalsAutoApproved = autoApproved
	result.ProposalsQueued = queued
	result.Success = true
	result.Details["message"] = fmt.Sprintf("Created %d proposal(s): %d auto-approved, %d queued",
		created, autoApproved, queued)
	return result
}

// buildContext assembles the immutable view methods evaluate against.
// Channel KPIs come from the calculator, topped up with the share and
// efficiency figures only the measurement report computes.
func buildContext(campaign *domain.Campaign, raws []domain.RawMetric, kpiRows []domain.DerivedKPI, trendRows []domain.TrendIndicator, snapshots []domain.ChannelSnapshot) *method.Context {
	campaignKPIs := map[string]float64{}
	channelKPIs := map[string]map[string]float64{}
	for _, kpi := range kpiRows {
		if kpi.Channel == nil {
			campaignKPIs[kpi.KPIName] = kpi.KPIValue
			continue
		}
		ch := *kpi.Channel
		if channelKPIs[ch] == nil {
			channelKPIs[ch] = map[string]float64{}
		}
		channelKPIs[ch][kpi.KPIName] = kpi.KPIValue
	}

	channelRaw := map[string]map[string]float64{}
	for _, rm := range raws {
		if channelRaw[rm.Channel] == nil {
			channelRaw[rm.Channel] = map[string]float64{}
		}
		channelRaw[rm.Channel][rm.MetricName] += rm.MetricValue
	}

	report := metrics.BuildReport(campaign.ID, snapshots, nil, nil)
	for _, cr := range report.ByChannel {
		if channelKPIs[cr.Channel] == nil {
			channelKPIs[cr.Channel] = map[string]float64{}
		}
		for name, value := range cr.KPIs {
			if _, ok := channelKPIs[cr.Channel][name]; !ok {
				channelKPIs[cr.Channel][name] = value
			}
		}
	}

	channels := make([]string, 0, len(channelKPIs))
	for ch := range channelKPIs {
		channels = append(channels, ch)
	}
	sort.Strings(channels)

	channelData := make([]method.Channel, 0, len(channels))
	currentAllocations := make(map[string]float64, len(channels))
	for _, ch := range channels {
		raw := channelRaw[ch]
		channelData = append(channelData, method.Channel{
			Channel: ch,
			KPIs:    channelKPIs[ch],
			Totals: method.Totals{
				Spend:       raw[domain.MetricSpend],
				Impressions: int64(raw[domain.MetricImpressions]),
				Clicks:      int64(raw[domain.MetricClicks]),
				Conversions: int64(raw[domain.MetricConversions]),
				Revenue:     raw[domain.MetricRevenue],
			},
		})
		// Spend is the allocation proxy until budgets are first-class.
		currentAllocations[ch] = raw[domain.MetricSpend]
	}

	trends := make([]method.Trend, 0, len(trendRows))
	for _, t := range trendRows {
		channel := ""
		if t.Channel != nil {
			channel = *t.Channel
		}
		trends = append(trends, method.Trend{
			Channel:       channel,
			KPIName:       t.KPIName,
			Direction:     string(t.Direction),
			Magnitude:     t.Magnitude,
			CurrentValue:  t.CurrentValue,
			PreviousValue: t.PreviousValue,
			PeriodDays:    t.PeriodDays,
			Confidence:    t.Confidence,
		})
	}

	return &method.Context{
		CampaignID:         campaign.ID,
		KPIs:               campaignKPIs,
		Trends:             trends,
		ChannelData:        channelData,
		CurrentAllocations: currentAllocations,
		Campaign: method.CampaignConfig{
			Objective: string(campaign.Objective),
			TargetCAC: campaign.TargetCAC,
		},
	}
}

// ensureMethodRow finds the method row keyed by action type, creating it
// on first use.
func ensureMethodRow(ctx context.Context, repo Repository, actionType string, cooldownMinutes int) (*domain.OptimizationMethod, error) {
	row, err := repo.GetMethodByName(ctx, actionType)
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, ErrMethodNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	row = &domain.OptimizationMethod{
		ID:                uuid.NewString(),
		Name:              actionType,
		Description:       fmt.Sprintf("Auto-registered method for %s", actionType),
		MethodType:        domain.MethodReactive,
		TriggerConditions: map[string]interface{}{},
		Config:            map[string]interface{}{},
		IsActive:          true,
		CooldownMinutes:   cooldownMinutes,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := repo.CreateMethod(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

// calibrateConfidence lowers confidence when the campaign has little data
// behind it.
func calibrateConfidence(confidence float64, snapshotCount, rawMetricCount int) float64 {
	if snapshotCount < 5 {
		confidence *= 0.8
	} else if snapshotCount < 10 {
		confidence *= 0.9
	}
	if rawMetricCount < 10 {
		confidence *= 0.85
	}
	return math.Round(math.Min(1, math.Max(0, confidence))*1e4) / 1e4
}

func guardrailChecksJSON(checks []guardrail.CheckResult) map[string]interface{} {
	out := make([]interface{}, 0, len(checks))
	for _, c := range checks {
		out = append(out, map[string]interface{}{
			"rule_name": c.RuleName,
			"passed":    c.Passed,
			"message":   c.Message,
		})
	}
	return map[string]interface{}{"checks": out}
}

// allocationsFromPayload tolerates both the in-process map and the shape
// that comes back from a JSONB round trip.
func allocationsFromPayload(v interface{}) map[string]float64 {
	switch m := v.(type) {
	case map[string]float64:
		return m
	case map[string]interface{}:
		out := make(map[string]float64, len(m))
		for k, val := range m {
			if f, ok := val.(float64); ok {
				out[k] = f
			}
		}
		return out
	}
	return nil
}
