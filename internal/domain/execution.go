package domain

import "time"

// ExecutionStatus enumerates the lifecycle of a platform execution.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionPaused    ExecutionStatus = "paused"
)

// Platform-level operation types, one per adapter capability.
const (
	PlatformActionCreateCampaign = "create_campaign"
	PlatformActionUpdateBudget   = "update_budget"
	PlatformActionPauseCampaign  = "pause_campaign"
	PlatformActionResumeCampaign = "resume_campaign"
)

// Execution is the durable record of one proposal (or direct request) being
// applied to an external platform. The idempotency key is globally unique;
// the database constraint on it is the authoritative dedup across processes.
type Execution struct {
	ID                 string                 `json:"id" db:"id"`
	CampaignID         string                 `json:"campaign_id" db:"campaign_id"`
	Platform           string                 `json:"platform" db:"platform"`
	Status             ExecutionStatus        `json:"status" db:"status"`
	ExecutionPlan      map[string]interface{} `json:"execution_plan" db:"execution_plan"`
	ExternalCampaignID *string                `json:"external_campaign_id" db:"external_campaign_id"`
	ExternalIDs        map[string]interface{} `json:"external_ids" db:"external_ids"`
	Links              []string               `json:"links" db:"links"`
	IdempotencyKey     string                 `json:"idempotency_key" db:"idempotency_key"`
	ErrorMessage       *string                `json:"error_message" db:"error_message"`
	CreatedAt          time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at" db:"updated_at"`
}

// ActionStatus enumerates the lifecycle of one sub-operation.
type ActionStatus string

const (
	ActionPending   ActionStatus = "pending"
	ActionCompleted ActionStatus = "completed"
	ActionFailed    ActionStatus = "failed"
)

// ExecutionAction is the audit row for a single platform call inside an
// execution. Its idempotency key is unique within the parent execution.
type ExecutionAction struct {
	ID             string                 `json:"id" db:"id"`
	ExecutionID    string                 `json:"execution_id" db:"execution_id"`
	ActionType     string                 `json:"action_type" db:"action_type"`
	IdempotencyKey string                 `json:"idempotency_key" db:"idempotency_key"`
	Request        map[string]interface{} `json:"request" db:"request"`
	Response       map[string]interface{} `json:"response" db:"response"`
	Status         ActionStatus           `json:"status" db:"status"`
	ErrorMessage   *string                `json:"error_message" db:"error_message"`
	DurationMs     int64                  `json:"duration_ms" db:"duration_ms"`
	CreatedAt      time.Time              `json:"created_at" db:"created_at"`
}
