package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ignite/campaign-optimizer/internal/config"
	"github.com/ignite/campaign-optimizer/internal/platform"
	"github.com/ignite/campaign-optimizer/internal/repository/postgres"
	"github.com/ignite/campaign-optimizer/internal/service/campaign"
	"github.com/ignite/campaign-optimizer/internal/service/engine"
	"github.com/ignite/campaign-optimizer/internal/service/executor"
	"github.com/ignite/campaign-optimizer/internal/service/method"
	"github.com/ignite/campaign-optimizer/internal/service/metrics"
	"github.com/ignite/campaign-optimizer/internal/service/monitor"
	"github.com/ignite/campaign-optimizer/internal/service/optimization"
	"github.com/ignite/campaign-optimizer/internal/service/verifier"
)

// setupRouter wires a full handler stack over a sqlmock database.
func setupRouter(t *testing.T) (http.Handler, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	cfg := config.OptimizationConfig{
		AutoApproveThreshold:   0.85,
		MaxProposalsPerHour:    3,
		MaxBudgetChangePct:     0.20,
		MinChannelFloorPct:     0.05,
		DefaultCooldownMinutes: 60,
		VerificationDelayHours: 24,
		TrendPeriodDays:        7,
	}

	metricsRepo := postgres.NewMetricsRepo(db)
	collector := metrics.NewCollector(metricsRepo)
	calculator := metrics.NewCalculator(metricsRepo)
	trends := metrics.NewTrendAnalyzer(metricsRepo)
	measurement := metrics.NewMeasurement(metricsRepo)

	eng := engine.New(postgres.NewEngineRepo(db), collector, calculator, trends, method.NewDefaultRegistry(), cfg)
	factory := platform.NewFactory(config.PlatformsConfig{UseDryRun: true})
	exec := executor.New(postgres.NewExecutorRepo(db), factory)
	ver := verifier.New(postgres.NewVerifierRepo(db), collector, calculator, cfg)
	mon := monitor.New(postgres.NewMonitorRepo(db), eng, exec, ver)

	h := NewHandlers(
		campaign.NewService(postgres.NewCampaignRepo(db)),
		optimization.NewService(postgres.NewOptimizationRepo(db)),
		eng, exec, ver, mon,
		collector, calculator, trends, measurement, metricsRepo, nil,
	)
	router := SetupRoutes(h, NewHealthChecker(db, nil, "test"))
	return router, mock, func() { db.Close() }
}

func doRequest(router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func proposalRow(status string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "campaign_id", "method_id", "status", "confidence", "priority", "action_type",
		"action_payload", "reasoning", "trigger_data", "guardrail_checks", "execution_result",
		"approved_by", "approved_at", "executed_at", "expires_at", "created_at",
	}).AddRow(
		"p-1", "c-1", "m-1", status, 0.72, 60, "budget_reallocation",
		[]byte(`{}`), "Shift budget to efficient channels", []byte(`{}`), []byte(`{}`), []byte(`{}`),
		nil, nil, nil, now.Add(24*time.Hour), now,
	)
}

func TestGetCampaign_NotFound(t *testing.T) {
	router, mock, cleanup := setupRouter(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM campaigns").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	rec := doRequest(router, http.MethodGet, "/api/campaigns/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["error"] != "Campaign not found" {
		t.Errorf("error = %q, want %q", body["error"], "Campaign not found")
	}
}

func TestCreateCampaign_MissingName(t *testing.T) {
	router, _, cleanup := setupRouter(t)
	defer cleanup()

	rec := doRequest(router, http.MethodPost, "/api/campaigns", map[string]interface{}{
		"objective": "paid_conversions",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestCreateCampaign_Created(t *testing.T) {
	router, mock, cleanup := setupRouter(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO campaigns").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := doRequest(router, http.MethodPost, "/api/campaigns", map[string]interface{}{
		"name": "Q3 Prospecting",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["name"] != "Q3 Prospecting" {
		t.Errorf("name = %v, want Q3 Prospecting", body["name"])
	}
	if body["status"] != "active" {
		t.Errorf("status = %v, want active", body["status"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestReviewProposal_InvalidAction(t *testing.T) {
	router, mock, cleanup := setupRouter(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM optimization_proposals").
		WithArgs("p-1").
		WillReturnRows(proposalRow("pending"))

	rec := doRequest(router, http.MethodPost, "/api/optimization/proposals/p-1/approve",
		map[string]interface{}{"action": "defer"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422: %s", rec.Code, rec.Body.String())
	}

	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["error"] != "action must be 'approve' or 'reject'" {
		t.Errorf("error = %q", body["error"])
	}
}

func TestExecuteProposal_RequiresApproval(t *testing.T) {
	router, mock, cleanup := setupRouter(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM optimization_proposals").
		WithArgs("p-1").
		WillReturnRows(proposalRow("pending"))

	rec := doRequest(router, http.MethodPost, "/api/optimization/proposals/p-1/execute", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}

	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	want := "Proposal must be approved to execute (current: pending)"
	if body["error"] != want {
		t.Errorf("error = %q, want %q", body["error"], want)
	}
}

func TestVerifyProposal_BadWindowParam(t *testing.T) {
	router, mock, cleanup := setupRouter(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM optimization_proposals").
		WithArgs("p-1").
		WillReturnRows(proposalRow("executed"))

	rec := doRequest(router, http.MethodPost,
		"/api/optimization/proposals/p-1/verify?verification_window_hours=-3", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422: %s", rec.Code, rec.Body.String())
	}
}
