package monitor

import (
	"context"

	"github.com/ignite/campaign-optimizer/internal/domain"
)

// Repository is the persistence surface for the cycle orchestrator.
// The phases commit their own work; the monitor only reads the
// execution backlog and appends the audit row afterwards.
type Repository interface {
	// ListAutoApprovedUnexecuted returns IDs of auto_approved proposals
	// that have never been executed, oldest first.
	ListAutoApprovedUnexecuted(ctx context.Context, campaignID string) ([]string, error)

	CreateMonitorRun(ctx context.Context, run *domain.MonitorRun) error
}
