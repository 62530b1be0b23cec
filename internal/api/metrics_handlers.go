package api

import (
	"net/http"
	"strconv"

	"github.com/ignite/campaign-optimizer/internal/domain"
)

// GetMetricsSnapshot handles GET /api/optimization/campaigns/{campaignID}/metrics.
func (h *Handlers) GetMetricsSnapshot(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireCampaign(w, r)
	if !ok {
		return
	}
	snap, err := h.optimization.MetricsSnapshot(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// GetMeasurementReport handles GET /api/campaigns/{campaignID}/measurement.
func (h *Handlers) GetMeasurementReport(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireCampaign(w, r)
	if !ok {
		return
	}
	start, end, err := parseWindow(r)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	report, err := h.measurement.Report(r.Context(), id, start, end)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// CollectMetrics handles POST /api/optimization/campaigns/{campaignID}/collect.
// It runs the measurement pass the engine performs at the start of each
// cycle, without the decision phases: collect raws, derive KPIs, analyze
// trends.
func (h *Handlers) CollectMetrics(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireCampaign(w, r)
	if !ok {
		return
	}

	raws, err := h.collector.Collect(r.Context(), id, nil, nil)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	kpis, err := h.calculator.Compute(r.Context(), id, raws, nil, nil)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	periodDays, _ := strconv.Atoi(r.URL.Query().Get("period_days"))
	if periodDays <= 0 {
		periodDays = 7
	}
	trends, err := h.trends.Analyze(r.Context(), id, periodDays)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"campaign_id":     id,
		"raw_metrics":     len(raws),
		"derived_kpis":    len(kpis),
		"trend_indicators": len(trends),
	})
}

// ListKPIs handles GET /api/optimization/campaigns/{campaignID}/kpis.
func (h *Handlers) ListKPIs(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireCampaign(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	kpis, err := h.metricsRepo.ListDerivedKPIs(r.Context(), id, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if kpis == nil {
		kpis = []domain.DerivedKPI{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"kpis": kpis, "count": len(kpis)})
}

// ListTrends handles GET /api/optimization/campaigns/{campaignID}/trends.
func (h *Handlers) ListTrends(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireCampaign(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	trends, err := h.metricsRepo.ListTrendIndicators(r.Context(), id, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if trends == nil {
		trends = []domain.TrendIndicator{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"trends": trends, "count": len(trends)})
}

// BackfillSnapshots handles POST /api/campaigns/{campaignID}/snapshots/backfill.
func (h *Handlers) BackfillSnapshots(w http.ResponseWriter, r *http.Request) {
	if h.backfiller == nil {
		respondError(w, http.StatusServiceUnavailable, "warehouse backfill is not configured")
		return
	}
	id, ok := h.requireCampaign(w, r)
	if !ok {
		return
	}

	inserted, err := h.backfiller.BackfillCampaign(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"campaign_id": id,
		"inserted":    inserted,
	})
}
