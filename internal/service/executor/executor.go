// Package executor bridges approved proposals to platform execution.
// It maps action types to adapter calls, writes the Execution and
// ExecutionAction audit trail, and flips proposal status.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-optimizer/internal/domain"
	"github.com/ignite/campaign-optimizer/internal/platform"
)

// ExecutionRecord is the outcome of executing a single proposal.
type ExecutionRecord struct {
	Success        bool                   `json:"success"`
	ProposalID     string                 `json:"proposal_id"`
	ExecutionID    string                 `json:"execution_id,omitempty"`
	Error          string                 `json:"error,omitempty"`
	PlatformResult map[string]interface{} `json:"platform_result,omitempty"`
}

// BatchExecutionResult aggregates the records of one batch.
type BatchExecutionResult struct {
	Total     int               `json:"total"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Records   []ExecutionRecord `json:"records"`
}

// Executor executes approved optimization proposals via platform adapters.
type Executor struct {
	repo    Repository
	factory *platform.Factory
}

// New creates an Executor on top of the platform factory.
func New(repo Repository, factory *platform.Factory) *Executor {
	return &Executor{repo: repo, factory: factory}
}

func isAdvisoryAction(actionType string) bool {
	return actionType == domain.ActionCreativeRefresh
}

func isPlatformAction(actionType string) bool {
	switch actionType {
	case domain.ActionBudgetReallocation, domain.ActionPauseChannel, domain.ActionResumeChannel:
		return true
	}
	return false
}

// ExecuteProposal executes a single approved or auto_approved proposal.
// force skips the status gate. Replays on an existing idempotency key
// succeed without touching the platform again.
func (e *Executor) ExecuteProposal(ctx context.Context, proposalID string, force bool) ExecutionRecord {
	proposal, err := e.repo.GetProposal(ctx, proposalID)
	if err != nil {
		if errors.Is(err, ErrProposalNotFound) {
			return ExecutionRecord{Success: false, ProposalID: proposalID, Error: "Proposal not found"}
		}
		return ExecutionRecord{Success: false, ProposalID: proposalID, Error: err.Error()}
	}

	if !force && !proposal.IsApproved() {
		return ExecutionRecord{
			Success:    false,
			ProposalID: proposalID,
			Error:      fmt.Sprintf("Proposal status must be approved or auto_approved, got '%s'", proposal.Status),
		}
	}

	idempotencyKey := fmt.Sprintf("opt-proposal-%s", proposal.ID)
	existing, err := e.repo.GetExecutionByIdempotencyKey(ctx, idempotencyKey)
	if err == nil {
		return ExecutionRecord{
			Success:        true,
			ProposalID:     proposalID,
			ExecutionID:    existing.ID,
			PlatformResult: existing.ExecutionPlan,
		}
	}
	if !errors.Is(err, ErrExecutionNotFound) {
		return ExecutionRecord{Success: false, ProposalID: proposalID, Error: err.Error()}
	}

	switch {
	case isAdvisoryAction(proposal.ActionType):
		return e.runTransactional(ctx, proposal, func(tx Repository) (ExecutionRecord, error) {
			return e.executeAdvisory(ctx, tx, proposal, idempotencyKey)
		})
	case isPlatformAction(proposal.ActionType):
		return e.runTransactional(ctx, proposal, func(tx Repository) (ExecutionRecord, error) {
			return e.executePlatformAction(ctx, tx, proposal, idempotencyKey)
		})
	default:
		record := ExecutionRecord{
			Success:    false,
			ProposalID: proposalID,
			Error:      fmt.Sprintf("Unknown action_type: %s", proposal.ActionType),
		}
		e.markFailed(ctx, proposalID, map[string]interface{}{"error": record.Error})
		return record
	}
}

// ExecuteBatch executes proposals sequentially; one failure never stops
// the rest.
func (e *Executor) ExecuteBatch(ctx context.Context, proposalIDs []string) BatchExecutionResult {
	result := BatchExecutionResult{Total: len(proposalIDs)}
	for _, id := range proposalIDs {
		record := e.ExecuteProposal(ctx, id, false)
		result.Records = append(result.Records, record)
		if record.Success {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}
	return result
}

// runTransactional runs fn in one transaction; on error it re-opens a
// fresh transaction to record the failure on the proposal.
func (e *Executor) runTransactional(ctx context.Context, proposal *domain.OptimizationProposal, fn func(Repository) (ExecutionRecord, error)) ExecutionRecord {
	var record ExecutionRecord
	err := e.repo.InTx(ctx, func(tx Repository) error {
		var err error
		record, err = fn(tx)
		return err
	})
	if err != nil {
		e.markFailed(ctx, proposal.ID, map[string]interface{}{
			"error":      err.Error(),
			"error_type": fmt.Sprintf("%T", err),
		})
		return ExecutionRecord{Success: false, ProposalID: proposal.ID, Error: err.Error()}
	}
	return record
}

// markFailed flips the proposal to failed in its own transaction.
func (e *Executor) markFailed(ctx context.Context, proposalID string, executionResult map[string]interface{}) {
	err := e.repo.InTx(ctx, func(tx Repository) error {
		proposal, err := tx.GetProposal(ctx, proposalID)
		if err != nil {
			return err
		}
		proposal.Status = domain.ProposalFailed
		proposal.ExecutionResult = executionResult
		return tx.UpdateProposal(ctx, proposal)
	})
	if err != nil {
		log.Printf("[executor.Executor] failed to record failure for proposal %s: %v", proposalID, err)
	}
}

func (e *Executor) executeAdvisory(ctx context.Context, tx Repository, proposal *domain.OptimizationProposal, idempotencyKey string) (ExecutionRecord, error) {
	now := time.Now().UTC()

	executionPlan := map[string]interface{}{
		"action_type": proposal.ActionType,
		"advisory":    true,
		"reasoning":   proposal.Reasoning,
		"payload":     proposal.ActionPayload,
	}

	execution := &domain.Execution{
		ID:             uuid.NewString(),
		CampaignID:     proposal.CampaignID,
		Platform:       platform.PlatformAdvisory,
		Status:         domain.ExecutionCompleted,
		ExecutionPlan:  executionPlan,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := tx.CreateExecution(ctx, execution); err != nil {
		return ExecutionRecord{}, err
	}

	action := domain.ExecutionAction{
		ID:             uuid.NewString(),
		ExecutionID:    execution.ID,
		ActionType:     proposal.ActionType,
		IdempotencyKey: idempotencyKey + "-advisory",
		Request:        map[string]interface{}{"advisory": true, "payload": proposal.ActionPayload},
		Response:       map[string]interface{}{"status": "noted", "message": "Advisory action recorded"},
		Status:         domain.ActionCompleted,
		DurationMs:     0,
		CreatedAt:      now,
	}
	if err := tx.CreateExecutionActions(ctx, []domain.ExecutionAction{action}); err != nil {
		return ExecutionRecord{}, err
	}

	proposal.Status = domain.ProposalExecuted
	proposal.ExecutedAt = &now
	proposal.ExecutionResult = map[string]interface{}{
		"advisory":     true,
		"execution_id": execution.ID,
		"message":      "Advisory action recorded — no platform changes made",
	}
	if err := tx.UpdateProposal(ctx, proposal); err != nil {
		return ExecutionRecord{}, err
	}

	return ExecutionRecord{
		Success:        true,
		ProposalID:     proposal.ID,
		ExecutionID:    execution.ID,
		PlatformResult: executionPlan,
	}, nil
}

func (e *Executor) executePlatformAction(ctx context.Context, tx Repository, proposal *domain.OptimizationProposal, idempotencyKey string) (ExecutionRecord, error) {
	now := time.Now().UTC()
	payload := proposal.ActionPayload
	if payload == nil {
		payload = map[string]interface{}{}
	}

	platformName, _ := payload["platform"].(string)
	if platformName == "" {
		platformName = platform.PlatformMeta
	}
	adapter, err := e.factory.Adapter(platformName)
	if err != nil {
		return ExecutionRecord{}, err
	}

	executionPlan := map[string]interface{}{
		"action_type": proposal.ActionType,
		"platform":    platformName,
		"payload":     payload,
	}

	execution := &domain.Execution{
		ID:             uuid.NewString(),
		CampaignID:     proposal.CampaignID,
		Platform:       platformName,
		Status:         domain.ExecutionRunning,
		ExecutionPlan:  executionPlan,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := tx.CreateExecution(ctx, execution); err != nil {
		return ExecutionRecord{}, err
	}

	var (
		results        []interface{}
		actions        []domain.ExecutionAction
		overallSuccess bool
	)
	switch proposal.ActionType {
	case domain.ActionBudgetReallocation:
		results, actions, overallSuccess = e.applyBudgets(ctx, adapter, platformName, execution, payload)
	case domain.ActionPauseChannel:
		results, actions, overallSuccess = e.toggleChannels(ctx, adapter, platformName, execution, payload, false)
	case domain.ActionResumeChannel:
		results, actions, overallSuccess = e.toggleChannels(ctx, adapter, platformName, execution, payload, true)
	}

	if len(actions) > 0 {
		if err := tx.CreateExecutionActions(ctx, actions); err != nil {
			return ExecutionRecord{}, err
		}
	}

	execution.Status = domain.ExecutionCompleted
	if !overallSuccess {
		execution.Status = domain.ExecutionFailed
	}
	execution.UpdatedAt = time.Now().UTC()
	if err := tx.UpdateExecution(ctx, execution); err != nil {
		return ExecutionRecord{}, err
	}

	proposal.Status = domain.ProposalExecuted
	if !overallSuccess {
		proposal.Status = domain.ProposalFailed
	}
	proposal.ExecutedAt = &now
	proposal.ExecutionResult = map[string]interface{}{
		"execution_id": execution.ID,
		"success":      overallSuccess,
		"results":      results,
	}
	if err := tx.UpdateProposal(ctx, proposal); err != nil {
		return ExecutionRecord{}, err
	}

	record := ExecutionRecord{
		Success:        overallSuccess,
		ProposalID:     proposal.ID,
		ExecutionID:    execution.ID,
		PlatformResult: map[string]interface{}{"results": results},
	}
	if !overallSuccess {
		record.Error = "One or more platform operations failed"
	}
	return record, nil
}

// applyBudgets issues one update_budget per channel in new_allocations.
func (e *Executor) applyBudgets(ctx context.Context, adapter platform.Adapter, platformName string, execution *domain.Execution, payload map[string]interface{}) ([]interface{}, []domain.ExecutionAction, bool) {
	allocations := payloadAllocations(payload["new_allocations"])
	channels := make([]string, 0, len(allocations))
	for ch := range allocations {
		channels = append(channels, ch)
	}
	sort.Strings(channels)

	var results []interface{}
	var actions []domain.ExecutionAction
	overallSuccess := true

	for _, channel := range channels {
		newBudget := allocations[channel]
		extID := externalCampaignID(payload, channel)
		request := map[string]interface{}{
			"channel":              channel,
			"external_campaign_id": extID,
			"new_budget":           newBudget,
		}

		started := time.Now()
		response, success := callResult(func() (*platform.ExecutionResult, error) {
			return adapter.UpdateBudget(ctx, extID, newBudget, platformName)
		})
		if !success {
			overallSuccess = false
		}

		results = append(results, mergedResult(channel, success, response))
		collectLinks(execution, response)
		actions = append(actions, buildAction(execution, domain.PlatformActionUpdateBudget,
			fmt.Sprintf("%s-budget-%s", execution.IdempotencyKey, channel), request, response, success, started))
	}

	return results, actions, overallSuccess
}

// toggleChannels pauses or resumes every channel in affected_channels.
func (e *Executor) toggleChannels(ctx context.Context, adapter platform.Adapter, platformName string, execution *domain.Execution, payload map[string]interface{}, resume bool) ([]interface{}, []domain.ExecutionAction, bool) {
	affected := channelNames(payload["affected_channels"])

	actionType := domain.PlatformActionPauseCampaign
	keyPart := "pause"
	if resume {
		actionType = domain.PlatformActionResumeCampaign
		keyPart = "resume"
	}

	var results []interface{}
	var actions []domain.ExecutionAction
	overallSuccess := true

	for _, channel := range affected {
		extID := externalCampaignID(payload, channel)
		request := map[string]interface{}{
			"channel":              channel,
			"external_campaign_id": extID,
		}

		started := time.Now()
		response, success := callResult(func() (*platform.ExecutionResult, error) {
			if resume {
				return adapter.ResumeCampaign(ctx, extID, platformName)
			}
			return adapter.PauseCampaign(ctx, extID, platformName)
		})
		if !success {
			overallSuccess = false
		}

		results = append(results, mergedResult(channel, success, response))
		collectLinks(execution, response)
		actions = append(actions, buildAction(execution, actionType,
			fmt.Sprintf("%s-%s-%s", execution.IdempotencyKey, keyPart, channel), request, response, success, started))
	}

	return results, actions, overallSuccess
}

// callResult normalizes an adapter call into a response map and success
// flag; transport errors become a failed response instead of aborting
// the whole proposal.
func callResult(call func() (*platform.ExecutionResult, error)) (map[string]interface{}, bool) {
	res, err := call()
	if err != nil {
		return map[string]interface{}{
			"error":      err.Error(),
			"error_type": fmt.Sprintf("%T", err),
		}, false
	}
	return res.Map(), res.Success
}

// collectLinks appends any platform-provided URLs (ads-manager pages and
// the like) to the execution row, keeping insertion order and skipping
// duplicates across sub-actions.
func collectLinks(execution *domain.Execution, response map[string]interface{}) {
	links, ok := response["links"].(map[string]interface{})
	if !ok || len(links) == 0 {
		return
	}

	keys := make([]string, 0, len(links))
	for k := range links {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	seen := make(map[string]bool, len(execution.Links))
	for _, l := range execution.Links {
		seen[l] = true
	}
	for _, k := range keys {
		if url, ok := links[k].(string); ok && url != "" && !seen[url] {
			execution.Links = append(execution.Links, url)
			seen[url] = true
		}
	}
}

func mergedResult(channel string, success bool, response map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{
		"channel": channel,
		"success": success,
	}
	for k, v := range response {
		if k == "channel" || k == "success" {
			continue
		}
		out[k] = v
	}
	return out
}

func buildAction(execution *domain.Execution, actionType, idempotencyKey string, request, response map[string]interface{}, success bool, started time.Time) domain.ExecutionAction {
	action := domain.ExecutionAction{
		ID:             uuid.NewString(),
		ExecutionID:    execution.ID,
		ActionType:     actionType,
		IdempotencyKey: idempotencyKey,
		Request:        request,
		Response:       response,
		Status:         domain.ActionCompleted,
		DurationMs:     time.Since(started).Milliseconds(),
		CreatedAt:      time.Now().UTC(),
	}
	if !success {
		action.Status = domain.ActionFailed
		if msg, ok := response["error"].(string); ok {
			action.ErrorMessage = &msg
		}
	}
	return action
}

// externalCampaignID resolves the platform-side ID for a channel, using
// the payload's mapping when present and a deterministic placeholder
// otherwise.
func externalCampaignID(payload map[string]interface{}, channel string) string {
	if ids, ok := payload["external_campaign_ids"].(map[string]interface{}); ok {
		if id, ok := ids[channel].(string); ok && id != "" {
			return id
		}
	}
	return fmt.Sprintf("campaign-%s", channel)
}

func payloadAllocations(v interface{}) map[string]float64 {
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

// channelNames tolerates both plain string lists and lists of objects
// carrying a "channel" field (the shape methods put in trigger data).
func channelNames(v interface{}) []string {
	var out []string
	switch list := v.(type) {
	case []string:
		out = append(out, list...)
	case []interface{}:
		for _, item := range list {
			switch entry := item.(type) {
			case string:
				out = append(out, entry)
			case map[string]interface{}:
				if ch, ok := entry["channel"].(string); ok {
					out = append(out, ch)
				}
			}
		}
	}
	return out
}
