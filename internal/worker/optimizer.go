// Package worker runs the background optimization loop: every interval
// it walks the active campaigns and runs one full monitor cycle per
// campaign, under a distributed lock so concurrent instances never
// optimize the same campaign twice.
package worker

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-optimizer/internal/archive"
	"github.com/ignite/campaign-optimizer/internal/config"
	"github.com/ignite/campaign-optimizer/internal/domain"
	"github.com/ignite/campaign-optimizer/internal/notify"
	"github.com/ignite/campaign-optimizer/internal/pkg/distlock"
	"github.com/ignite/campaign-optimizer/internal/service/campaign"
	"github.com/ignite/campaign-optimizer/internal/service/monitor"
	"github.com/ignite/campaign-optimizer/internal/service/optimization"
)

// CampaignLockTTL bounds how long one cycle may hold a campaign lock.
const CampaignLockTTL = 10 * time.Minute

// OptimizerWorker drives monitor cycles for all active campaigns.
type OptimizerWorker struct {
	db          *sql.DB
	redisClient *redis.Client // optional; nil falls back to PG advisory locks
	workerID    string
	interval    time.Duration

	campaigns    *campaign.Service
	monitor      *monitor.Monitor
	optimization *optimization.Service
	archiver     archive.Archiver
	notifier     *notify.Notifier // nil when notifications are disabled

	// Stats
	cyclesRun    int64
	cyclesFailed int64

	// Control
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewOptimizerWorker creates the worker. archiver and notifier may be nil.
func NewOptimizerWorker(
	db *sql.DB,
	campaigns *campaign.Service,
	mon *monitor.Monitor,
	opt *optimization.Service,
	archiver archive.Archiver,
	notifier *notify.Notifier,
	cfg config.MonitorConfig,
) *OptimizerWorker {
	hostname, _ := os.Hostname()
	return &OptimizerWorker{
		db:           db,
		workerID:     fmt.Sprintf("optimizer-%s-%d", hostname, time.Now().UnixNano()%10000),
		interval:     cfg.Interval(),
		campaigns:    campaigns,
		monitor:      mon,
		optimization: opt,
		archiver:     archiver,
		notifier:     notifier,
	}
}

// SetRedisClient sets the Redis client for distributed locking. If unset
// the worker falls back to PostgreSQL advisory locks.
func (w *OptimizerWorker) SetRedisClient(client *redis.Client) {
	w.redisClient = client
}

// Start launches the cycle loop.
func (w *OptimizerWorker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("optimizer worker already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.running = true

	w.wg.Add(1)
	go w.loop(ctx)

	log.Printf("[worker.OptimizerWorker] %s started (interval %s)", w.workerID, w.interval)
	return nil
}

// Stop halts the loop and waits for the in-flight pass to finish.
func (w *OptimizerWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()

	w.wg.Wait()
	log.Printf("[worker.OptimizerWorker] %s stopped", w.workerID)
}

// Running reports whether the loop is active.
func (w *OptimizerWorker) Running() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

func (w *OptimizerWorker) loop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunPass(ctx)
		}
	}
}

// RunPass runs one monitor cycle for every active campaign.
func (w *OptimizerWorker) RunPass(ctx context.Context) {
	campaigns, err := w.campaigns.ListActive(ctx)
	if err != nil {
		log.Printf("[worker.OptimizerWorker] list active campaigns: %v", err)
		return
	}

	for i := range campaigns {
		if ctx.Err() != nil {
			return
		}
		w.runCampaign(ctx, &campaigns[i])
	}
}

// runCampaign executes one locked cycle for a single campaign.
func (w *OptimizerWorker) runCampaign(ctx context.Context, c *domain.Campaign) {
	lock := distlock.NewLock(w.redisClient, w.db, fmt.Sprintf("optimizer:campaign:%s", c.ID), CampaignLockTTL)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		log.Printf("[worker.OptimizerWorker] campaign %s: acquire lock: %v", c.ID, err)
		return
	}
	if !acquired {
		// Another instance owns this campaign right now.
		return
	}
	defer lock.Release(ctx)

	result := w.monitor.RunCycle(ctx, c.ID)

	w.mu.Lock()
	w.cyclesRun++
	if !result.Success {
		w.cyclesFailed++
	}
	w.mu.Unlock()

	if w.archiver != nil && result.MonitorRunID != "" {
		if err := w.archiver.SaveRunReport(ctx, c.ID, result.MonitorRunID, result); err != nil {
			log.Printf("[worker.OptimizerWorker] campaign %s: archive run %s: %v", c.ID, result.MonitorRunID, err)
		}
	}

	w.notifyPending(ctx, c)
}

// notifyPending emails the review queue when the cycle left proposals
// waiting on a human.
func (w *OptimizerWorker) notifyPending(ctx context.Context, c *domain.Campaign) {
	if w.notifier == nil {
		return
	}

	pending, err := w.optimization.ListProposals(ctx, c.ID, string(domain.ProposalPending))
	if err != nil {
		log.Printf("[worker.OptimizerWorker] campaign %s: list pending proposals: %v", c.ID, err)
		return
	}
	if len(pending) == 0 {
		return
	}
	if err := w.notifier.NotifyPendingProposals(ctx, c, pending); err != nil {
		log.Printf("[worker.OptimizerWorker] campaign %s: notify: %v", c.ID, err)
	}
}

// Stats returns cycle counters.
func (w *OptimizerWorker) Stats() (run, failed int64) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cyclesRun, w.cyclesFailed
}
