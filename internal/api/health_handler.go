package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// HealthStatus represents the overall health of the system.
type HealthStatus struct {
	Status  string                    `json:"status"` // "healthy", "degraded", "unhealthy"
	Version string                    `json:"version"`
	Uptime  string                    `json:"uptime"`
	Checks  map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck represents the health of a single component.
type ComponentCheck struct {
	Status  string `json:"status"` // "up", "down", "not_configured"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthChecker probes the optimizer's dependencies. Redis is optional;
// a nil client reports "not_configured" rather than failing the check.
type HealthChecker struct {
	db          *sql.DB
	redisClient *redis.Client
	version     string
	startTime   time.Time
}

// NewHealthChecker creates a HealthChecker. redisClient may be nil.
func NewHealthChecker(db *sql.DB, redisClient *redis.Client, version string) *HealthChecker {
	return &HealthChecker{
		db:          db,
		redisClient: redisClient,
		version:     version,
		startTime:   time.Now(),
	}
}

// Handle serves GET /health.
func (c *HealthChecker) Handle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]ComponentCheck{
		"database": c.checkDatabase(ctx),
		"redis":    c.checkRedis(ctx),
	}

	status := "healthy"
	code := http.StatusOK
	if checks["database"].Status == "down" {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	} else if checks["redis"].Status == "down" {
		status = "degraded"
	}

	respondJSON(w, code, HealthStatus{
		Status:  status,
		Version: c.version,
		Uptime:  time.Since(c.startTime).Truncate(time.Second).String(),
		Checks:  checks,
	})
}

func (c *HealthChecker) checkDatabase(ctx context.Context) ComponentCheck {
	if c.db == nil {
		return ComponentCheck{Status: "not_configured"}
	}
	start := time.Now()
	if err := c.db.PingContext(ctx); err != nil {
		return ComponentCheck{Status: "down", Message: err.Error()}
	}
	return ComponentCheck{Status: "up", Latency: fmt.Sprintf("%dms", time.Since(start).Milliseconds())}
}

func (c *HealthChecker) checkRedis(ctx context.Context) ComponentCheck {
	if c.redisClient == nil {
		return ComponentCheck{Status: "not_configured"}
	}
	start := time.Now()
	if err := c.redisClient.Ping(ctx).Err(); err != nil {
		return ComponentCheck{Status: "down", Message: err.Error()}
	}
	return ComponentCheck{Status: "up", Latency: fmt.Sprintf("%dms", time.Since(start).Milliseconds())}
}
