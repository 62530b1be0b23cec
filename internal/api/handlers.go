// Package api is the HTTP boundary. Handlers parse and validate the
// request, call one service, and translate service sentinels to status
// codes; no optimization logic lives here.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/ignite/campaign-optimizer/internal/service/campaign"
	"github.com/ignite/campaign-optimizer/internal/service/engine"
	"github.com/ignite/campaign-optimizer/internal/service/executor"
	"github.com/ignite/campaign-optimizer/internal/service/metrics"
	"github.com/ignite/campaign-optimizer/internal/service/monitor"
	"github.com/ignite/campaign-optimizer/internal/service/optimization"
	"github.com/ignite/campaign-optimizer/internal/service/verifier"
	"github.com/ignite/campaign-optimizer/internal/warehouse"
)

// Handlers carries the wired services for all route groups.
type Handlers struct {
	campaigns    *campaign.Service
	optimization *optimization.Service
	engine       *engine.Engine
	executor     *executor.Executor
	verifier     *verifier.Verifier
	monitor      *monitor.Monitor
	collector    *metrics.Collector
	calculator   *metrics.Calculator
	trends       *metrics.TrendAnalyzer
	measurement  *metrics.Measurement
	metricsRepo  metrics.Repository
	backfiller   *warehouse.Backfiller // nil unless the warehouse is configured
}

// NewHandlers wires the handler set. backfiller may be nil.
func NewHandlers(
	campaigns *campaign.Service,
	opt *optimization.Service,
	eng *engine.Engine,
	exec *executor.Executor,
	ver *verifier.Verifier,
	mon *monitor.Monitor,
	collector *metrics.Collector,
	calculator *metrics.Calculator,
	trends *metrics.TrendAnalyzer,
	measurement *metrics.Measurement,
	metricsRepo metrics.Repository,
	backfiller *warehouse.Backfiller,
) *Handlers {
	return &Handlers{
		campaigns:    campaigns,
		optimization: opt,
		engine:       eng,
		executor:     exec,
		verifier:     ver,
		monitor:      mon,
		collector:    collector,
		calculator:   calculator,
		trends:       trends,
		measurement:  measurement,
		metricsRepo:  metricsRepo,
		backfiller:   backfiller,
	}
}

// Response helpers

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, dest interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dest)
}
