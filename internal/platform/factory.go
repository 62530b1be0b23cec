package platform

import (
	"fmt"
	"sync"

	"github.com/ignite/campaign-optimizer/internal/config"
	"github.com/ignite/campaign-optimizer/internal/pkg/logger"
)

// Factory hands out platform adapters. The dry-run adapter is shared so
// its idempotency cache survives across calls; real adapters are built
// once per platform and reused.
type Factory struct {
	cfg config.PlatformsConfig

	mu     sync.Mutex
	dryRun *DryRun
	meta   *Meta
}

// NewFactory creates a factory for the configured platform stack.
func NewFactory(cfg config.PlatformsConfig) *Factory {
	return &Factory{cfg: cfg, dryRun: NewDryRun()}
}

// Adapter returns the adapter for the named platform. When dry-run mode
// is on, every platform routes to the shared simulator.
func (f *Factory) Adapter(platformName string) (Adapter, error) {
	if f.cfg.UseDryRun {
		return f.dryRun, nil
	}

	switch platformName {
	case PlatformMeta:
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.meta == nil {
			f.meta = NewMeta(f.cfg.Meta)
			logger.Info("platform adapter initialized",
				"platform", PlatformMeta,
				"api_version", f.cfg.Meta.APIVersion,
				"access_token", logger.RedactSecret(f.cfg.Meta.AccessToken))
		}
		return f.meta, nil
	case PlatformGoogle, PlatformLinkedIn:
		return nil, fmt.Errorf("real adapter for %s not yet implemented; enable dry-run", platformName)
	default:
		return nil, fmt.Errorf("unknown platform %q", platformName)
	}
}
