package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/campaign-optimizer/internal/domain"
	"github.com/ignite/campaign-optimizer/internal/service/campaign"
)

// CreateCampaign handles POST /api/campaigns.
func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var input campaign.CreateInput
	if err := decodeJSON(r, &input); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.campaigns.Create(r.Context(), input)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

// ListCampaigns handles GET /api/campaigns.
func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	params := ParsePagination(r, 50, 200)
	filter := campaign.ListFilter{
		Status: r.URL.Query().Get("status"),
		Search: r.URL.Query().Get("search"),
		Limit:  params.Limit,
		Offset: params.Offset,
	}

	campaigns, total, err := h.campaigns.List(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if campaigns == nil {
		campaigns = []domain.Campaign{}
	}
	respondJSON(w, http.StatusOK, NewPaginatedResponse(campaigns, params, int64(total)))
}

// GetCampaign handles GET /api/campaigns/{campaignID}.
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Get(r.Context(), chi.URLParam(r, "campaignID"))
	if err != nil {
		if errors.Is(err, campaign.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Campaign not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, c)
}

type updateCampaignRequest struct {
	Name      *string  `json:"name"`
	Status    *string  `json:"status"`
	TargetCAC *float64 `json:"target_cac"`
	EndDate   *string  `json:"end_date"`
}

// UpdateCampaign handles PATCH /api/campaigns/{campaignID}.
func (h *Handlers) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var req updateCampaignRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	fields := campaign.UpdateFields{
		Name:      req.Name,
		TargetCAC: req.TargetCAC,
	}
	if req.Status != nil {
		status := domain.CampaignStatus(*req.Status)
		fields.Status = &status
	}
	if req.EndDate != nil {
		end, err := time.Parse(time.RFC3339, *req.EndDate)
		if err != nil {
			respondError(w, http.StatusUnprocessableEntity, "end_date must be RFC3339")
			return
		}
		fields.EndDate = &end
	}

	id := chi.URLParam(r, "campaignID")
	if err := h.campaigns.Update(r.Context(), id, fields); err != nil {
		switch {
		case errors.Is(err, campaign.ErrNotFound):
			respondError(w, http.StatusNotFound, "Campaign not found")
		default:
			respondError(w, http.StatusUnprocessableEntity, err.Error())
		}
		return
	}

	c, err := h.campaigns.Get(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// DeleteCampaign handles DELETE /api/campaigns/{campaignID}.
func (h *Handlers) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.campaigns.Delete(r.Context(), chi.URLParam(r, "campaignID")); err != nil {
		if errors.Is(err, campaign.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Campaign not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type snapshotBatchRequest struct {
	Snapshots []campaign.SnapshotInput `json:"snapshots"`
}

// AddSnapshots handles POST /api/campaigns/{campaignID}/snapshots.
func (h *Handlers) AddSnapshots(w http.ResponseWriter, r *http.Request) {
	var req snapshotBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	count, err := h.campaigns.AddSnapshots(r.Context(), chi.URLParam(r, "campaignID"), req.Snapshots)
	if err != nil {
		if errors.Is(err, campaign.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Campaign not found")
			return
		}
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{"ingested": count})
}

// ListSnapshots handles GET /api/campaigns/{campaignID}/snapshots.
func (h *Handlers) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseWindow(r)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	snapshots, err := h.campaigns.ListSnapshots(r.Context(), chi.URLParam(r, "campaignID"), start, end)
	if err != nil {
		if errors.Is(err, campaign.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Campaign not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if snapshots == nil {
		snapshots = []domain.ChannelSnapshot{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"campaign_id": chi.URLParam(r, "campaignID"),
		"snapshots":   snapshots,
		"count":       len(snapshots),
	})
}

// parseWindow reads optional window_start / window_end query params.
func parseWindow(r *http.Request) (*time.Time, *time.Time, error) {
	var start, end *time.Time
	if v := r.URL.Query().Get("window_start"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, nil, errors.New("window_start must be RFC3339")
		}
		start = &ts
	}
	if v := r.URL.Query().Get("window_end"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, nil, errors.New("window_end must be RFC3339")
		}
		end = &ts
	}
	return start, end, nil
}
