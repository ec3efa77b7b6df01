package config

import (
	"fmt"
	"time"
)

// Default configuration values.
const (
	defaultServiceName  = "lead-capture"
	defaultServicePort  = 8094
	defaultVersion      = "0.1.0"
	defaultBufferSize   = 1000
	defaultFlushThresh  = 200
	defaultLoggingLevel = "info"
	defaultLoggingFmt   = "json"
	defaultDBHost       = "localhost"
	defaultDBPort       = 5432
	defaultDBName       = "lead_capture"
	defaultDBUser       = "postgres"
	defaultDBSSLMode    = "disable"

	defaultVisitHistoryCap      = 10
	defaultChatLeadTriggerCount = 3
	defaultTrackingIdleTTLMin   = 30
	defaultTrackingSweepMin     = 5

	defaultCRMSourceID = 1
	defaultCRMMediumID = 1

	defaultMaxSubmissionsPerMinute = 10
	defaultWindowSeconds           = 60

	defaultFlushIntervalS      = 1
	defaultRequestTimeoutS     = 10
	defaultSessionTTLMin       = 5
	defaultDispatchIntervalS   = 30
	defaultDispatchBatchSize   = 20
	defaultDispatchRPS         = 2
	defaultStaleAfterMin       = 5
	defaultCleanupRetentionDay = 30
)

// Config holds the application configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Database  DatabaseConfig  `yaml:"database"`
	CRM       CRMConfig       `yaml:"crm"`
	Webhooks  WebhooksConfig  `yaml:"webhooks"`
	Chatbot   ChatbotConfig   `yaml:"chatbot"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServiceConfig holds service-level configuration.
type ServiceConfig struct {
	Name           string        `yaml:"name"`
	Version        string        `yaml:"version"`
	Port           int           `env:"LEAD_CAPTURE_PORT"    yaml:"port"`
	Debug          bool          `env:"APP_DEBUG"            yaml:"debug"`
	OpsAPIKey      string        `env:"LEAD_CAPTURE_OPS_KEY" yaml:"ops_api_key"`
	BufferSize     int           `yaml:"buffer_size"`
	FlushInterval  time.Duration `yaml:"flush_interval"`
	FlushThreshold int           `yaml:"flush_threshold"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host     string `env:"POSTGRES_LEAD_CAPTURE_HOST"     yaml:"host"`
	Port     int    `env:"POSTGRES_LEAD_CAPTURE_PORT"     yaml:"port"`
	User     string `env:"POSTGRES_LEAD_CAPTURE_USER"     yaml:"user"`
	Password string `env:"POSTGRES_LEAD_CAPTURE_PASSWORD" yaml:"password"`
	Database string `env:"POSTGRES_LEAD_CAPTURE_DB"       yaml:"database"`
	SSLMode  string `env:"POSTGRES_LEAD_CAPTURE_SSLMODE"  yaml:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// CRMConfig holds the connection settings for the CRM backend.
// Credentials are expected to come from the environment, never from a
// config file checked into source control.
type CRMConfig struct {
	URL             string        `env:"CRM_URL"      yaml:"url"`
	Database        string        `env:"CRM_DB"       yaml:"database"`
	Username        string        `env:"CRM_USERNAME" yaml:"username"`
	Password        string        `env:"CRM_PASSWORD" yaml:"password"`
	Website         string        `yaml:"website"`
	DefaultSourceID int           `yaml:"default_source_id"`
	DefaultMediumID int           `yaml:"default_medium_id"`
	TagIDs          []int64       `yaml:"tag_ids"`
	Timeout         time.Duration `yaml:"timeout"`
	SessionTTL      time.Duration `yaml:"session_ttl"`
}

// WebhooksConfig holds the two webhook delivery targets. The primary and
// fallback endpoints accept different payload shapes and are configured
// independently.
type WebhooksConfig struct {
	PrimaryURL  string        `env:"WEBHOOK_PRIMARY_URL"  yaml:"primary_url"`
	FallbackURL string        `env:"WEBHOOK_FALLBACK_URL" yaml:"fallback_url"`
	Timeout     time.Duration `yaml:"timeout"`
}

// ChatbotConfig holds the chatbot vendor integration settings.
type ChatbotConfig struct {
	AgentID string `env:"CHATBOT_AGENT_ID" yaml:"agent_id"`
}

// TrackingConfig holds visit and chat tracking settings. IdleTTL bounds
// how long inactive visitors and chat sessions stay in memory.
type TrackingConfig struct {
	VisitHistoryCap      int           `yaml:"visit_history_cap"`
	ChatLeadTriggerCount int           `yaml:"chat_lead_trigger_count"`
	IdleTTL              time.Duration `yaml:"idle_ttl"`
	SweepInterval        time.Duration `yaml:"sweep_interval"`
}

// DeliveryConfig holds orchestrator and outbox dispatcher settings.
type DeliveryConfig struct {
	CRMFallback      bool          `yaml:"crm_fallback"`
	DispatchInterval time.Duration `yaml:"dispatch_interval"`
	DispatchBatch    int           `yaml:"dispatch_batch"`
	DispatchRPS      int           `yaml:"dispatch_rps"`
	StaleAfter       time.Duration `yaml:"stale_after"`
	Retention        time.Duration `yaml:"retention"`
}

// RateLimitConfig holds rate limiting configuration for submission routes.
type RateLimitConfig struct {
	MaxSubmissionsPerMinute int `yaml:"max_submissions_per_minute"`
	WindowSeconds           int `yaml:"window_seconds"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL"  yaml:"level"`
	Format string `env:"LOG_FORMAT" yaml:"format"`
}

// Load loads configuration from the specified path.
func Load(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}

	setDefaults(cfg)

	// Re-apply env overrides after defaults (env always wins)
	applyEnvOverrides(cfg)
	return cfg, nil
}

// setDefaults applies default values to the config.
func setDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	setDatabaseDefaults(&cfg.Database)
	setCRMDefaults(&cfg.CRM)
	setWebhooksDefaults(&cfg.Webhooks)
	setTrackingDefaults(&cfg.Tracking)
	setDeliveryDefaults(&cfg.Delivery)
	setRateLimitDefaults(&cfg.RateLimit)
	setLoggingDefaults(&cfg.Logging)
}

func setServiceDefaults(svc *ServiceConfig) {
	if svc.Name == "" {
		svc.Name = defaultServiceName
	}
	if svc.Version == "" {
		svc.Version = defaultVersion
	}
	if svc.Port == 0 {
		svc.Port = defaultServicePort
	}
	if svc.BufferSize == 0 {
		svc.BufferSize = defaultBufferSize
	}
	if svc.FlushInterval == 0 {
		svc.FlushInterval = defaultFlushIntervalS * time.Second
	}
	if svc.FlushThreshold == 0 {
		svc.FlushThreshold = defaultFlushThresh
	}
}

func setDatabaseDefaults(db *DatabaseConfig) {
	if db.Host == "" {
		db.Host = defaultDBHost
	}
	if db.Port == 0 {
		db.Port = defaultDBPort
	}
	if db.User == "" {
		db.User = defaultDBUser
	}
	if db.Database == "" {
		db.Database = defaultDBName
	}
	if db.SSLMode == "" {
		db.SSLMode = defaultDBSSLMode
	}
}

func setCRMDefaults(crm *CRMConfig) {
	if crm.DefaultSourceID == 0 {
		crm.DefaultSourceID = defaultCRMSourceID
	}
	if crm.DefaultMediumID == 0 {
		crm.DefaultMediumID = defaultCRMMediumID
	}
	if crm.Timeout == 0 {
		crm.Timeout = defaultRequestTimeoutS * time.Second
	}
	if crm.SessionTTL == 0 {
		crm.SessionTTL = defaultSessionTTLMin * time.Minute
	}
}

func setWebhooksDefaults(wh *WebhooksConfig) {
	if wh.Timeout == 0 {
		wh.Timeout = defaultRequestTimeoutS * time.Second
	}
}

func setTrackingDefaults(tr *TrackingConfig) {
	if tr.VisitHistoryCap == 0 {
		tr.VisitHistoryCap = defaultVisitHistoryCap
	}
	if tr.ChatLeadTriggerCount == 0 {
		tr.ChatLeadTriggerCount = defaultChatLeadTriggerCount
	}
	if tr.IdleTTL == 0 {
		tr.IdleTTL = defaultTrackingIdleTTLMin * time.Minute
	}
	if tr.SweepInterval == 0 {
		tr.SweepInterval = defaultTrackingSweepMin * time.Minute
	}
}

func setDeliveryDefaults(dl *DeliveryConfig) {
	if dl.DispatchInterval == 0 {
		dl.DispatchInterval = defaultDispatchIntervalS * time.Second
	}
	if dl.DispatchBatch == 0 {
		dl.DispatchBatch = defaultDispatchBatchSize
	}
	if dl.DispatchRPS == 0 {
		dl.DispatchRPS = defaultDispatchRPS
	}
	if dl.StaleAfter == 0 {
		dl.StaleAfter = defaultStaleAfterMin * time.Minute
	}
	if dl.Retention == 0 {
		dl.Retention = defaultCleanupRetentionDay * 24 * time.Hour
	}
}

func setRateLimitDefaults(rl *RateLimitConfig) {
	if rl.MaxSubmissionsPerMinute == 0 {
		rl.MaxSubmissionsPerMinute = defaultMaxSubmissionsPerMinute
	}
	if rl.WindowSeconds == 0 {
		rl.WindowSeconds = defaultWindowSeconds
	}
}

func setLoggingDefaults(log *LoggingConfig) {
	if log.Level == "" {
		log.Level = defaultLoggingLevel
	}
	if log.Format == "" {
		log.Format = defaultLoggingFmt
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validatePort("service.port", c.Service.Port); err != nil {
		return err
	}
	if err := validateRequired("webhooks.primary_url", c.Webhooks.PrimaryURL); err != nil {
		return err
	}
	if c.Delivery.CRMFallback {
		if err := validateRequired("crm.url", c.CRM.URL); err != nil {
			return err
		}
		if err := validateRequired("crm.database", c.CRM.Database); err != nil {
			return err
		}
		if err := validateRequired("crm.username", c.CRM.Username); err != nil {
			return err
		}
		if err := validateRequired("crm.password", c.CRM.Password); err != nil {
			return err
		}
	}
	return nil
}
