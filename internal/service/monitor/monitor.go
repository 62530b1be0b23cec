// Package monitor orchestrates one full optimization cycle per call:
// observe and decide (engine), act (executor over the auto-approved
// backlog), verify (verifier over recent executions). Each cycle ends
// with a MonitorRun audit row summarizing all three phases.
package monitor

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-optimizer/internal/domain"
	"github.com/ignite/campaign-optimizer/internal/service/engine"
	"github.com/ignite/campaign-optimizer/internal/service/executor"
	"github.com/ignite/campaign-optimizer/internal/service/verifier"
)

// RunResult aggregates the outcome of one cycle. A phase failure never
// aborts the cycle; it lands in Errors and degrades the run status.
type RunResult struct {
	CampaignID   string                            `json:"campaign_id"`
	MonitorRunID string                            `json:"monitor_run_id,omitempty"`
	Engine       *engine.Result                    `json:"engine_result,omitempty"`
	Execution    *executor.BatchExecutionResult    `json:"execution_result,omitempty"`
	Verification *verifier.BatchVerificationResult `json:"verification_result,omitempty"`
	Success      bool                              `json:"success"`
	Errors       []string                          `json:"errors,omitempty"`
}

// Monitor runs the full observe-decide-act-verify loop for a campaign.
type Monitor struct {
	repo     Repository
	engine   *engine.Engine
	executor *executor.Executor
	verifier *verifier.Verifier
}

// New wires a Monitor from the three phase services.
func New(repo Repository, eng *engine.Engine, exec *executor.Executor, ver *verifier.Verifier) *Monitor {
	return &Monitor{repo: repo, engine: eng, executor: exec, verifier: ver}
}

// RunCycle executes the full cycle for one campaign and writes the
// MonitorRun audit row. The phases commit independently, so a later
// phase failure never rolls back an earlier one.
func (m *Monitor) RunCycle(ctx context.Context, campaignID string) RunResult {
	result := RunResult{CampaignID: campaignID, Success: true}

	// Phase 1: observe and decide.
	engineResult := m.engine.Run(ctx, campaignID)
	result.Engine = engineResult
	if !engineResult.Success {
		result.Errors = append(result.Errors,
			fmt.Sprintf("Engine phase failed: %s", strings.Join(engineResult.Errors, "; ")))
		result.Success = false
	}

	// Phase 2: act on the auto-approved backlog.
	ids, err := m.repo.ListAutoApprovedUnexecuted(ctx, campaignID)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Execution phase failed: %v", err))
	} else if len(ids) > 0 {
		batch := m.executor.ExecuteBatch(ctx, ids)
		result.Execution = &batch
		if batch.Failed > 0 {
			result.Errors = append(result.Errors,
				fmt.Sprintf("Execution phase: %d/%d failed", batch.Failed, batch.Total))
		}
	}

	// Phase 3: verify recent executions.
	verification := m.verifier.VerifyBatch(ctx, campaignID, 0)
	result.Verification = &verification

	run := &domain.MonitorRun{
		ID:                  uuid.NewString(),
		CampaignID:          campaignID,
		Status:              runStatus(result),
		EngineSummary:       engineSummary(result.Engine),
		ExecutionSummary:    executionSummary(result.Execution),
		VerificationSummary: verificationSummary(result.Verification),
		CreatedAt:           time.Now().UTC(),
	}
	if err := m.repo.CreateMonitorRun(ctx, run); err != nil {
		log.Printf("[monitor.Monitor] campaign %s: failed to record run: %v", campaignID, err)
		result.Errors = append(result.Errors, fmt.Sprintf("Failed to record monitor run: %v", err))
		return result
	}

	result.MonitorRunID = run.ID
	log.Printf("[monitor.Monitor] campaign %s: cycle %s finished with status %s",
		campaignID, run.ID, run.Status)
	return result
}

// runStatus degrades from completed to partial when a later phase had
// trouble, and to failed when the engine itself did.
func runStatus(result RunResult) domain.MonitorRunStatus {
	if len(result.Errors) == 0 {
		return domain.MonitorCompleted
	}
	if result.Engine != nil && result.Engine.Success {
		return domain.MonitorPartial
	}
	return domain.MonitorFailed
}

func engineSummary(r *engine.Result) map[string]interface{} {
	if r == nil {
		return map[string]interface{}{}
	}
	return map[string]interface{}{
		"success":                 r.Success,
		"proposals_created":       r.ProposalsCreated,
		"proposals_auto_approved": r.ProposalsAutoApproved,
		"proposals_queued":        r.ProposalsQueued,
		"guardrail_rejections":    r.GuardrailRejections,
		"method_evaluations":      r.MethodEvaluations,
	}
}

func executionSummary(r *executor.BatchExecutionResult) map[string]interface{} {
	if r == nil {
		return map[string]interface{}{}
	}
	return map[string]interface{}{
		"total":     r.Total,
		"succeeded": r.Succeeded,
		"failed":    r.Failed,
	}
}

func verificationSummary(r *verifier.BatchVerificationResult) map[string]interface{} {
	if r == nil {
		return map[string]interface{}{}
	}
	return map[string]interface{}{
		"total":    r.Total,
		"verified": r.Verified,
		"pending":  r.Pending,
		"failed":   r.Failed,
	}
}
