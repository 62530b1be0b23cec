package domain

import "time"

// MethodType splits methods into those reacting to damage already visible
// (reactive) and those hunting for upside (proactive).
type MethodType string

const (
	MethodReactive  MethodType = "reactive"
	MethodProactive MethodType = "proactive"
)

// Proposal action types emitted by the built-in methods.
const (
	ActionBudgetReallocation = "budget_reallocation"
	ActionPauseChannel       = "pause_channel"
	ActionResumeChannel      = "resume_channel"
	ActionCreativeRefresh    = "creative_refresh"
)

// MethodStats is the running accuracy record kept per method, stored as a
// JSON document on the method row and updated by the verifier.
type MethodStats struct {
	TotalExecutions      int        `json:"total_executions"`
	SuccessfulExecutions int        `json:"successful_executions"`
	AvgAccuracy          float64    `json:"avg_accuracy"`
	LastVerifiedAt       *time.Time `json:"last_verified_at"`
}

// OptimizationMethod is the registry row for one analyzer. Rows are created
// lazily the first time a method emits a proposal and are never deleted.
type OptimizationMethod struct {
	ID                string                 `json:"id" db:"id"`
	Name              string                 `json:"name" db:"name"`
	Description       string                 `json:"description" db:"description"`
	MethodType        MethodType             `json:"method_type" db:"method_type"`
	TriggerConditions map[string]interface{} `json:"trigger_conditions" db:"trigger_conditions"`
	Config            map[string]interface{} `json:"config" db:"config"`
	IsActive          bool                   `json:"is_active" db:"is_active"`
	CooldownMinutes   int                    `json:"cooldown_minutes" db:"cooldown_minutes"`
	Stats             MethodStats            `json:"stats" db:"stats"`
	CreatedAt         time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at" db:"updated_at"`
}

// ProposalStatus enumerates the proposal lifecycle.
type ProposalStatus string

const (
	ProposalPending      ProposalStatus = "pending"
	ProposalAutoApproved ProposalStatus = "auto_approved"
	ProposalApproved     ProposalStatus = "approved"
	ProposalRejected     ProposalStatus = "rejected"
	ProposalExecuted     ProposalStatus = "executed"
	ProposalFailed       ProposalStatus = "failed"
	ProposalExpired      ProposalStatus = "expired"
)

// OptimizationProposal is a durable, reviewable recommendation from one
// method run; the executor only ever acts on approved or auto_approved rows.
type OptimizationProposal struct {
	ID              string                 `json:"id" db:"id"`
	CampaignID      string                 `json:"campaign_id" db:"campaign_id"`
	MethodID        string                 `json:"method_id" db:"method_id"`
	Status          ProposalStatus         `json:"status" db:"status"`
	Confidence      float64                `json:"confidence" db:"confidence"`
	Priority        int                    `json:"priority" db:"priority"`
	ActionType      string                 `json:"action_type" db:"action_type"`
	ActionPayload   map[string]interface{} `json:"action_payload" db:"action_payload"`
	Reasoning       string                 `json:"reasoning" db:"reasoning"`
	TriggerData     map[string]interface{} `json:"trigger_data" db:"trigger_data"`
	GuardrailChecks map[string]interface{} `json:"guardrail_checks" db:"guardrail_checks"`
	ExecutionResult map[string]interface{} `json:"execution_result" db:"execution_result"`
	ApprovedBy      *string                `json:"approved_by" db:"approved_by"`
	ApprovedAt      *time.Time             `json:"approved_at" db:"approved_at"`
	ExecutedAt      *time.Time             `json:"executed_at" db:"executed_at"`
	ExpiresAt       *time.Time             `json:"expires_at" db:"expires_at"`
	CreatedAt       time.Time              `json:"created_at" db:"created_at"`
}

// IsApproved reports whether the proposal may be executed without force.
func (p *OptimizationProposal) IsApproved() bool {
	return p.Status == ProposalApproved || p.Status == ProposalAutoApproved
}

// VerificationStatus enumerates the learning lifecycle.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationFailed   VerificationStatus = "failed"
)

// OptimizationLearning records predicted vs actual impact for one executed
// proposal. At most one verified row exists per proposal.
type OptimizationLearning struct {
	ID                 string                 `json:"id" db:"id"`
	CampaignID         string                 `json:"campaign_id" db:"campaign_id"`
	ProposalID         string                 `json:"proposal_id" db:"proposal_id"`
	MethodID           string                 `json:"method_id" db:"method_id"`
	PredictedImpact    map[string]interface{} `json:"predicted_impact" db:"predicted_impact"`
	ActualImpact       map[string]interface{} `json:"actual_impact" db:"actual_impact"`
	AccuracyScore      *float64               `json:"accuracy_score" db:"accuracy_score"`
	VerificationStatus VerificationStatus     `json:"verification_status" db:"verification_status"`
	VerifiedAt         *time.Time             `json:"verified_at" db:"verified_at"`
	Details            map[string]interface{} `json:"details" db:"details"`
	CreatedAt          time.Time              `json:"created_at" db:"created_at"`
}

// MonitorRunStatus summarizes how one observe-decide-act-verify cycle ended.
type MonitorRunStatus string

const (
	MonitorCompleted MonitorRunStatus = "completed"
	MonitorPartial   MonitorRunStatus = "partial"
	MonitorFailed    MonitorRunStatus = "failed"
)

// MonitorRun is the audit row written once per cycle, after the phases have
// committed their own work.
type MonitorRun struct {
	ID                  string                 `json:"id" db:"id"`
	CampaignID          string                 `json:"campaign_id" db:"campaign_id"`
	Status              MonitorRunStatus       `json:"status" db:"status"`
	EngineSummary       map[string]interface{} `json:"engine_summary" db:"engine_summary"`
	ExecutionSummary    map[string]interface{} `json:"execution_summary" db:"execution_summary"`
	VerificationSummary map[string]interface{} `json:"verification_summary" db:"verification_summary"`
	CreatedAt           time.Time              `json:"created_at" db:"created_at"`
}
