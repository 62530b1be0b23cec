package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/campaign-optimizer/internal/domain"
	"github.com/ignite/campaign-optimizer/internal/service/campaign"
	"github.com/ignite/campaign-optimizer/internal/service/optimization"
)

// requireCampaign resolves the campaignID URL param and writes the 404
// response itself when the campaign does not exist.
func (h *Handlers) requireCampaign(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "campaignID")
	if _, err := h.campaigns.Get(r.Context(), id); err != nil {
		if errors.Is(err, campaign.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Campaign not found")
		} else {
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return "", false
	}
	return id, true
}

// RunOptimization handles POST /api/optimization/campaigns/{campaignID}/run.
func (h *Handlers) RunOptimization(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireCampaign(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, h.engine.Run(r.Context(), id))
}

// RunMonitorCycle handles POST /api/optimization/campaigns/{campaignID}/monitor.
func (h *Handlers) RunMonitorCycle(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireCampaign(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, h.monitor.RunCycle(r.Context(), id))
}

// ListMonitorRuns handles GET /api/optimization/campaigns/{campaignID}/monitor-runs.
func (h *Handlers) ListMonitorRuns(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireCampaign(w, r)
	if !ok {
		return
	}
	runs, err := h.optimization.ListMonitorRuns(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []domain.MonitorRun{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"runs": runs, "count": len(runs)})
}

// ListProposals handles GET /api/optimization/campaigns/{campaignID}/proposals.
func (h *Handlers) ListProposals(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireCampaign(w, r)
	if !ok {
		return
	}
	proposals, err := h.optimization.ListProposals(r.Context(), id, r.URL.Query().Get("status"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if proposals == nil {
		proposals = []domain.OptimizationProposal{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"proposals": proposals, "count": len(proposals)})
}

// GetProposal handles GET /api/optimization/proposals/{proposalID}.
func (h *Handlers) GetProposal(w http.ResponseWriter, r *http.Request) {
	p, err := h.optimization.GetProposal(r.Context(), chi.URLParam(r, "proposalID"))
	if err != nil {
		if errors.Is(err, optimization.ErrProposalNotFound) {
			respondError(w, http.StatusNotFound, "Proposal not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, p)
}

type reviewRequest struct {
	Action     string `json:"action"`
	ApprovedBy string `json:"approved_by"`
}

// ReviewProposal handles POST /api/optimization/proposals/{proposalID}/approve.
func (h *Handlers) ReviewProposal(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ApprovedBy == "" {
		req.ApprovedBy = "api"
	}

	p, err := h.optimization.ReviewProposal(r.Context(), chi.URLParam(r, "proposalID"), req.Action, req.ApprovedBy)
	if err != nil {
		switch {
		case errors.Is(err, optimization.ErrProposalNotFound):
			respondError(w, http.StatusNotFound, "Proposal not found")
		case errors.Is(err, optimization.ErrInvalidAction):
			respondError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	respondJSON(w, http.StatusOK, p)
}

type executeRequest struct {
	Force bool `json:"force"`
}

// ExecuteProposal handles POST /api/optimization/proposals/{proposalID}/execute.
// Unreviewed proposals are rejected here unless force is set, before the
// executor is involved at all.
func (h *Handlers) ExecuteProposal(w http.ResponseWriter, r *http.Request) {
	proposalID := chi.URLParam(r, "proposalID")

	var req executeRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	force := req.Force

	p, err := h.optimization.GetProposal(r.Context(), proposalID)
	if err != nil {
		if errors.Is(err, optimization.ErrProposalNotFound) {
			respondError(w, http.StatusNotFound, "Proposal not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !force && !p.IsApproved() {
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("Proposal must be approved to execute (current: %s)", p.Status))
		return
	}

	respondJSON(w, http.StatusOK, h.executor.ExecuteProposal(r.Context(), proposalID, force))
}

// VerifyProposal handles POST /api/optimization/proposals/{proposalID}/verify.
func (h *Handlers) VerifyProposal(w http.ResponseWriter, r *http.Request) {
	proposalID := chi.URLParam(r, "proposalID")
	if _, err := h.optimization.GetProposal(r.Context(), proposalID); err != nil {
		if errors.Is(err, optimization.ErrProposalNotFound) {
			respondError(w, http.StatusNotFound, "Proposal not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	windowHours := 0
	if v := r.URL.Query().Get("verification_window_hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusUnprocessableEntity, "verification_window_hours must be a non-negative integer")
			return
		}
		windowHours = n
	}

	respondJSON(w, http.StatusOK, h.verifier.VerifyProposal(r.Context(), proposalID, windowHours))
}

// ListLearnings handles GET /api/optimization/campaigns/{campaignID}/learnings.
func (h *Handlers) ListLearnings(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireCampaign(w, r)
	if !ok {
		return
	}
	learnings, err := h.optimization.ListLearnings(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if learnings == nil {
		learnings = []domain.OptimizationLearning{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"learnings": learnings, "count": len(learnings)})
}

// ListMethods handles GET /api/optimization/methods.
func (h *Handlers) ListMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := h.optimization.ListMethods(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if methods == nil {
		methods = []domain.OptimizationMethod{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"methods": methods, "count": len(methods)})
}

// UpdateMethod handles PATCH /api/optimization/methods/{methodID}.
func (h *Handlers) UpdateMethod(w http.ResponseWriter, r *http.Request) {
	var update optimization.MethodUpdate
	if err := decodeJSON(r, &update); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, err := h.optimization.UpdateMethod(r.Context(), chi.URLParam(r, "methodID"), update)
	if err != nil {
		switch {
		case errors.Is(err, optimization.ErrMethodNotFound):
			respondError(w, http.StatusNotFound, "Method not found")
		default:
			respondError(w, http.StatusUnprocessableEntity, err.Error())
		}
		return
	}
	respondJSON(w, http.StatusOK, m)
}
