package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-optimizer/internal/api"
	"github.com/ignite/campaign-optimizer/internal/archive"
	"github.com/ignite/campaign-optimizer/internal/config"
	"github.com/ignite/campaign-optimizer/internal/notify"
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
	"github.com/ignite/campaign-optimizer/internal/warehouse"
	"github.com/ignite/campaign-optimizer/internal/worker"
)

const version = "1.0.0"

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	slash := strings.Index(rest, "/")
	if slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

func main() {
	log.Println("╔════════════════════════════════════════════════════════════╗")
	log.Println("║  Campaign Optimizer Server (cmd/server/main.go)            ║")
	log.Println("║  Decide → Execute → Verify → Learn                         ║")
	log.Println("╚════════════════════════════════════════════════════════════╝")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}

	// Pre-flight: verify the target port is available
	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}
	log.Printf("Pre-flight check passed: port %d is available", port)

	// Database pool
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime())

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		pingCancel()
		log.Fatalf("Failed to ping database at %s: %v", extractHost(cfg.Database.URL), err)
	}
	pingCancel()
	log.Printf("Connected to database at %s", extractHost(cfg.Database.URL))

	// Redis is optional; without it the worker uses PG advisory locks.
	var redisClient *redis.Client
	if cfg.Redis.Enabled && cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Printf("WARNING: invalid REDIS_URL, continuing without Redis: %v", err)
		} else {
			redisClient = redis.NewClient(opts)
			rctx, rcancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := redisClient.Ping(rctx).Err(); err != nil {
				log.Printf("WARNING: Redis unreachable, continuing without it: %v", err)
				redisClient.Close()
				redisClient = nil
			} else {
				log.Println("Connected to Redis")
			}
			rcancel()
		}
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Repositories
	campaignRepo := postgres.NewCampaignRepo(db)
	metricsRepo := postgres.NewMetricsRepo(db)
	engineRepo := postgres.NewEngineRepo(db)
	executorRepo := postgres.NewExecutorRepo(db)
	verifierRepo := postgres.NewVerifierRepo(db)
	monitorRepo := postgres.NewMonitorRepo(db)
	optimizationRepo := postgres.NewOptimizationRepo(db)

	// Measurement services
	collector := metrics.NewCollector(metricsRepo)
	calculator := metrics.NewCalculator(metricsRepo)
	trendAnalyzer := metrics.NewTrendAnalyzer(metricsRepo)
	measurement := metrics.NewMeasurement(metricsRepo)

	// Pipeline services
	registry := method.NewDefaultRegistry()
	eng := engine.New(engineRepo, collector, calculator, trendAnalyzer, registry, cfg.Optimization)
	factory := platform.NewFactory(cfg.Platforms)
	exec := executor.New(executorRepo, factory)
	ver := verifier.New(verifierRepo, collector, calculator, cfg.Optimization)
	mon := monitor.New(monitorRepo, eng, exec, ver)

	campaignSvc := campaign.NewService(campaignRepo)
	optimizationSvc := optimization.NewService(optimizationRepo)

	// Seed method rows so the registry is visible before the first run.
	seedCtx, seedCancel := context.WithTimeout(context.Background(), 15*time.Second)
	if _, err := optimizationSvc.SeedMethods(seedCtx, registry, cfg.Optimization.DefaultCooldownMinutes); err != nil {
		log.Printf("WARNING: method seeding failed: %v", err)
	}
	seedCancel()

	if cfg.Platforms.UseDryRun {
		log.Println("Platform adapters in DRY-RUN mode (no external writes)")
	}

	// Optional warehouse backfill
	var backfiller *warehouse.Backfiller
	if cfg.Warehouse.Enabled {
		whClient, err := warehouse.NewClient(cfg.Warehouse)
		if err != nil {
			log.Printf("WARNING: warehouse disabled: %v", err)
		} else {
			defer whClient.Close()
			backfiller = warehouse.NewBackfiller(whClient, campaignRepo, cfg.Warehouse)
			if err := backfiller.Start(); err != nil {
				log.Printf("WARNING: warehouse backfiller failed to start: %v", err)
			} else {
				defer backfiller.Stop()
			}
		}
	}

	// Optional review notifications
	notifier, err := notify.New(context.Background(), cfg.Notifications)
	if err != nil {
		log.Printf("WARNING: notifications disabled: %v", err)
	}

	// Run-report archive
	archiver, err := archive.New(context.Background(), cfg.Archive)
	if err != nil {
		log.Printf("WARNING: archive disabled: %v", err)
		archiver = nil
	}

	// Background optimizer
	if cfg.Monitor.Enabled {
		optimizerWorker := worker.NewOptimizerWorker(db, campaignSvc, mon, optimizationSvc, archiver, notifier, cfg.Monitor)
		if redisClient != nil {
			optimizerWorker.SetRedisClient(redisClient)
		}
		if err := optimizerWorker.Start(); err != nil {
			log.Fatalf("Failed to start optimizer worker: %v", err)
		}
		defer optimizerWorker.Stop()
	} else {
		log.Println("Background optimizer disabled (monitor.enabled=false)")
	}

	// HTTP server
	handlers := api.NewHandlers(
		campaignSvc, optimizationSvc, eng, exec, ver, mon,
		collector, calculator, trendAnalyzer, measurement, metricsRepo, backfiller,
	)
	health := api.NewHealthChecker(db, redisClient, version)
	server := api.NewServer(cfg.Server, handlers, health)

	addr := fmt.Sprintf("%s:%d", host, port)
	errCh := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on %s", addr)
		errCh <- server.ListenAndServe(addr)
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received %s, shutting down", sig)
	case err := <-errCh:
		log.Printf("Server error: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
