package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Optimization  OptimizationConfig  `yaml:"optimization"`
	Platforms     PlatformsConfig     `yaml:"platforms"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Warehouse     WarehouseConfig     `yaml:"warehouse"`
	Archive       ArchiveConfig       `yaml:"archive"`
	Monitor       MonitorConfig       `yaml:"monitor"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	// Allow override via environment
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifeMins int    `yaml:"conn_max_life_mins"`
}

// ConnMaxLifetime returns the connection lifetime as a duration
func (c DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifeMins) * time.Minute
}

// RedisConfig holds the optional Redis connection used for distributed locks
type RedisConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// OptimizationConfig holds the decision-pipeline knobs
type OptimizationConfig struct {
	AutoApproveThreshold     float64 `yaml:"auto_approve_threshold"`
	MaxProposalsPerHour      int     `yaml:"max_proposals_per_hour"`
	MaxBudgetChangePct       float64 `yaml:"max_budget_change_pct"`
	MinChannelFloorPct       float64 `yaml:"min_channel_floor_pct"`
	DefaultCooldownMinutes   int     `yaml:"default_cooldown_minutes"`
	VerificationDelayHours   int     `yaml:"verification_delay_hours"`
	TrendPeriodDays          int     `yaml:"trend_period_days"`
	BatchVerifyMaxAgeHours   int     `yaml:"batch_verify_max_age_hours"`
	ProposalExpiryHours      int     `yaml:"proposal_expiry_hours"`
}

// VerificationDelay returns the verification window as a duration
func (c OptimizationConfig) VerificationDelay() time.Duration {
	return time.Duration(c.VerificationDelayHours) * time.Hour
}

// PlatformsConfig holds advertising platform adapter configuration
type PlatformsConfig struct {
	UseDryRun       bool       `yaml:"use_dry_run"`
	DefaultPlatform string     `yaml:"default_platform"`
	Meta            MetaConfig `yaml:"meta"`
}

// MetaConfig holds Meta (Facebook) Graph API credentials
type MetaConfig struct {
	AccessToken    string `yaml:"access_token"`
	AdAccountID    string `yaml:"ad_account_id"`
	PageID         string `yaml:"page_id"`
	APIVersion     string `yaml:"api_version"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c MetaConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// NotificationsConfig holds SES review-queue notification settings
type NotificationsConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Region    string   `yaml:"region"`
	AccessKey string   `yaml:"access_key"`
	SecretKey string   `yaml:"secret_key"`
	FromEmail string   `yaml:"from_email"`
	ToEmails  []string `yaml:"to_emails"`
}

// WarehouseConfig holds Snowflake settings for snapshot backfill
type WarehouseConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Account         string `yaml:"account"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	Database        string `yaml:"database"`
	Schema          string `yaml:"schema"`
	Warehouse       string `yaml:"warehouse"`
	IntervalMinutes int    `yaml:"interval_minutes"`
}

// Interval returns the backfill interval as a duration
func (c WarehouseConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// ArchiveConfig holds monitor-run report archival settings
type ArchiveConfig struct {
	Type       string `yaml:"type"`
	LocalPath  string `yaml:"local_path"`
	S3Bucket   string `yaml:"s3_bucket"`
	AWSRegion  string `yaml:"aws_region"`
	AWSProfile string `yaml:"aws_profile"` // Empty string uses default credential chain (IAM role on ECS)
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c ArchiveConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return "" // Use default credential chain (IAM role)
		}
		return envProfile
	}
	// On ECS/Lambda, don't use a profile - use IAM role
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "" // Running on ECS or Lambda, use IAM role
	}
	return c.AWSProfile
}

// MonitorConfig holds background optimizer worker settings
type MonitorConfig struct {
	Enabled         bool `yaml:"enabled"`
	IntervalMinutes int  `yaml:"interval_minutes"`
}

// Interval returns the worker tick interval as a duration
func (c MonitorConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Dry-run stays on unless the file or environment turns it off.
	var cfg Config
	cfg.Platforms.UseDryRun = true
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 3
	}
	if cfg.Database.ConnMaxLifeMins == 0 {
		cfg.Database.ConnMaxLifeMins = 5
	}
	if cfg.Optimization.AutoApproveThreshold == 0 {
		cfg.Optimization.AutoApproveThreshold = 0.85
	}
	if cfg.Optimization.MaxProposalsPerHour == 0 {
		cfg.Optimization.MaxProposalsPerHour = 3
	}
	if cfg.Optimization.MaxBudgetChangePct == 0 {
		cfg.Optimization.MaxBudgetChangePct = 0.20
	}
	if cfg.Optimization.MinChannelFloorPct == 0 {
		cfg.Optimization.MinChannelFloorPct = 0.05
	}
	if cfg.Optimization.DefaultCooldownMinutes == 0 {
		cfg.Optimization.DefaultCooldownMinutes = 60
	}
	if cfg.Optimization.VerificationDelayHours == 0 {
		cfg.Optimization.VerificationDelayHours = 24
	}
	if cfg.Optimization.TrendPeriodDays == 0 {
		cfg.Optimization.TrendPeriodDays = 7
	}
	if cfg.Optimization.BatchVerifyMaxAgeHours == 0 {
		cfg.Optimization.BatchVerifyMaxAgeHours = 48
	}
	if cfg.Optimization.ProposalExpiryHours == 0 {
		cfg.Optimization.ProposalExpiryHours = 24
	}
	if cfg.Platforms.DefaultPlatform == "" {
		cfg.Platforms.DefaultPlatform = "meta"
	}
	if cfg.Platforms.Meta.APIVersion == "" {
		cfg.Platforms.Meta.APIVersion = "v21.0"
	}
	if cfg.Platforms.Meta.TimeoutSeconds == 0 {
		cfg.Platforms.Meta.TimeoutSeconds = 30
	}
	if cfg.Notifications.Region == "" {
		cfg.Notifications.Region = "us-west-2"
	}
	if cfg.Warehouse.Database == "" {
		cfg.Warehouse.Database = "IGNITE_DATA_LAKE"
	}
	if cfg.Warehouse.Schema == "" {
		cfg.Warehouse.Schema = "CHANNELMETRICS"
	}
	if cfg.Warehouse.IntervalMinutes == 0 {
		cfg.Warehouse.IntervalMinutes = 60
	}
	if cfg.Archive.Type == "" {
		cfg.Archive.Type = "local"
	}
	if cfg.Archive.LocalPath == "" {
		cfg.Archive.LocalPath = "data/archive"
	}
	if cfg.Monitor.IntervalMinutes == 0 {
		cfg.Monitor.IntervalMinutes = 15
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Database override (critical for ECS deployment where config.yaml has local defaults)
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.Redis.URL = redisURL
		cfg.Redis.Enabled = true
	}

	// Optimization pipeline overrides
	if v := os.Getenv("OPTIMIZATION_AUTO_APPROVE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Optimization.AutoApproveThreshold = f
		}
	}
	if v := os.Getenv("OPTIMIZATION_MAX_PROPOSALS_PER_HOUR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Optimization.MaxProposalsPerHour = n
		}
	}
	if v := os.Getenv("OPTIMIZATION_MAX_BUDGET_CHANGE_PCT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Optimization.MaxBudgetChangePct = f
		}
	}
	if v := os.Getenv("OPTIMIZATION_MIN_CHANNEL_FLOOR_PCT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Optimization.MinChannelFloorPct = f
		}
	}
	if v := os.Getenv("OPTIMIZATION_DEFAULT_COOLDOWN_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Optimization.DefaultCooldownMinutes = n
		}
	}
	if v := os.Getenv("OPTIMIZATION_VERIFICATION_DELAY_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Optimization.VerificationDelayHours = n
		}
	}

	// Platform overrides
	if v := os.Getenv("USE_DRY_RUN_EXECUTION"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Platforms.UseDryRun = b
		}
	}
	if v := os.Getenv("META_ACCESS_TOKEN"); v != "" {
		cfg.Platforms.Meta.AccessToken = v
	}
	if v := os.Getenv("META_AD_ACCOUNT_ID"); v != "" {
		cfg.Platforms.Meta.AdAccountID = v
	}
	if v := os.Getenv("META_PAGE_ID"); v != "" {
		cfg.Platforms.Meta.PageID = v
	}

	// Notification overrides
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.Notifications.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.Notifications.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.Notifications.Region = v
	}
	if v := os.Getenv("NOTIFY_FROM_EMAIL"); v != "" {
		cfg.Notifications.FromEmail = v
	}
	if v := os.Getenv("NOTIFY_TO_EMAILS"); v != "" {
		cfg.Notifications.ToEmails = splitCSV(v)
	}

	// Warehouse overrides
	if v := os.Getenv("SNOWFLAKE_ACCOUNT"); v != "" {
		cfg.Warehouse.Account = v
	}
	if v := os.Getenv("SNOWFLAKE_USER"); v != "" {
		cfg.Warehouse.User = v
	}
	if v := os.Getenv("SNOWFLAKE_PASSWORD"); v != "" {
		cfg.Warehouse.Password = v
	}

	// Archive overrides
	if v := os.Getenv("ARCHIVE_S3_BUCKET"); v != "" {
		cfg.Archive.S3Bucket = v
		cfg.Archive.Type = "s3"
	}

	return cfg, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
