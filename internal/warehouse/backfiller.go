package warehouse

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ignite/campaign-optimizer/internal/config"
	"github.com/ignite/campaign-optimizer/internal/domain"
)

// SnapshotStore is the slice of the campaign repository the backfiller
// needs. Satisfied by repository/postgres.CampaignRepo.
type SnapshotStore interface {
	ListActive(ctx context.Context) ([]domain.Campaign, error)
	ListSnapshots(ctx context.Context, campaignID string, windowStart, windowEnd *time.Time) ([]domain.ChannelSnapshot, error)
	CreateSnapshots(ctx context.Context, snapshots []domain.ChannelSnapshot) error
}

// Backfiller copies new warehouse snapshot rows into the local table on
// an interval, and on demand per campaign.
type Backfiller struct {
	client *Client
	store  SnapshotStore
	cfg    config.WarehouseConfig

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewBackfiller creates a Backfiller.
func NewBackfiller(client *Client, store SnapshotStore, cfg config.WarehouseConfig) *Backfiller {
	return &Backfiller{
		client: client,
		store:  store,
		cfg:    cfg,
	}
}

// Start launches the periodic backfill loop.
func (b *Backfiller) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return fmt.Errorf("backfiller already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.running = true

	b.wg.Add(1)
	go b.loop(ctx)

	log.Printf("[warehouse.Backfiller] started (interval %s)", b.cfg.Interval())
	return nil
}

// Stop halts the loop and waits for the current pass to finish.
func (b *Backfiller) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	b.cancel()
	b.mu.Unlock()

	b.wg.Wait()
	log.Printf("[warehouse.Backfiller] stopped")
}

func (b *Backfiller) loop(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.BackfillAll(ctx)
		}
	}
}

// BackfillAll runs one backfill pass over every active campaign.
func (b *Backfiller) BackfillAll(ctx context.Context) {
	campaigns, err := b.store.ListActive(ctx)
	if err != nil {
		log.Printf("[warehouse.Backfiller] list active campaigns: %v", err)
		return
	}

	for _, c := range campaigns {
		if ctx.Err() != nil {
			return
		}
		inserted, err := b.BackfillCampaign(ctx, c.ID)
		if err != nil {
			log.Printf("[warehouse.Backfiller] campaign %s: %v", c.ID, err)
			continue
		}
		if inserted > 0 {
			log.Printf("[warehouse.Backfiller] campaign %s: backfilled %d snapshot(s)", c.ID, inserted)
		}
	}
}

// BackfillCampaign pulls warehouse rows newer than the latest local
// snapshot window and inserts them. Returns the inserted row count.
func (b *Backfiller) BackfillCampaign(ctx context.Context, campaignID string) (int, error) {
	existing, err := b.store.ListSnapshots(ctx, campaignID, nil, nil)
	if err != nil {
		return 0, fmt.Errorf("list local snapshots: %w", err)
	}

	// Local rows come back newest window first.
	var cutoff time.Time
	if len(existing) > 0 {
		cutoff = existing[0].WindowEnd
	}

	rows, err := b.client.FetchSnapshots(ctx, campaignID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("fetch warehouse snapshots: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	if err := b.store.CreateSnapshots(ctx, rows); err != nil {
		return 0, fmt.Errorf("insert snapshots: %w", err)
	}
	return len(rows), nil
}
