package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vantage-advisory/lead-capture/internal/api"
	"github.com/vantage-advisory/lead-capture/internal/assembly"
	"github.com/vantage-advisory/lead-capture/internal/config"
	"github.com/vantage-advisory/lead-capture/internal/crm"
	"github.com/vantage-advisory/lead-capture/internal/delivery"
	"github.com/vantage-advisory/lead-capture/internal/domain"
	"github.com/vantage-advisory/lead-capture/internal/handler"
	"github.com/vantage-advisory/lead-capture/internal/httpclient"
	"github.com/vantage-advisory/lead-capture/internal/logger"
	"github.com/vantage-advisory/lead-capture/internal/metrics"
	"github.com/vantage-advisory/lead-capture/internal/outbox"
	"github.com/vantage-advisory/lead-capture/internal/storage"
	"github.com/vantage-advisory/lead-capture/internal/tracker"
	"github.com/vantage-advisory/lead-capture/internal/webhook"

	_ "github.com/lib/pq"
)

// Database connection timeout.
const dbPingTimeout = 5 * time.Second

// chatSubmitTimeout bounds the delivery attempt fired from a chat
// trigger, which runs outside any HTTP request context.
const chatSubmitTimeout = 30 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log, err := createLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	db, err := connectDatabase(cfg, log)
	if err != nil {
		log.Error("Failed to connect to database", logger.Error(err))
		return 1
	}
	defer func() { _ = db.Close() }()

	return runServer(cfg, log, db)
}

// loadConfig loads and validates configuration.
func loadConfig() (*config.Config, error) {
	configPath := config.GetConfigPath("config.yml")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if validationErr := cfg.Validate(); validationErr != nil {
		return nil, fmt.Errorf("validate config: %w", validationErr)
	}
	return cfg, nil
}

// createLogger creates a logger instance from configuration.
func createLogger(cfg *config.Config) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Development: cfg.Service.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log.With(logger.String("service", cfg.Service.Name)), nil
}

// connectDatabase opens and verifies a database connection.
func connectDatabase(cfg *config.Config, log logger.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbPingTimeout)
	defer cancel()

	if pingErr := db.PingContext(ctx); pingErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", pingErr)
	}

	log.Info("Database connected",
		logger.String("host", cfg.Database.Host),
		logger.Int("port", cfg.Database.Port),
		logger.String("database", cfg.Database.Database),
	)

	return db, nil
}

// runServer wires all dependencies and runs the HTTP server plus the
// background dispatcher until shutdown.
func runServer(cfg *config.Config, log logger.Logger, db *sql.DB) int {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// Visit telemetry: bounded in-memory history plus buffered writes
	// to PostgreSQL.
	buf := storage.NewBuffer(cfg.Service.BufferSize)
	store := storage.NewStore(db, buf, log, cfg.Service.FlushInterval, cfg.Service.FlushThreshold)
	store.Start()
	defer store.Stop()

	visits := tracker.NewVisitLog(cfg.Tracking.VisitHistoryCap, buf, log)

	// Delivery chain.
	crmClient := crm.NewClient(crm.Config{
		URL:             cfg.CRM.URL,
		Database:        cfg.CRM.Database,
		Username:        cfg.CRM.Username,
		Password:        cfg.CRM.Password,
		Website:         cfg.CRM.Website,
		DefaultSourceID: cfg.CRM.DefaultSourceID,
		DefaultMediumID: cfg.CRM.DefaultMediumID,
		TagIDs:          cfg.CRM.TagIDs,
		SessionTTL:      cfg.CRM.SessionTTL,
	}, httpclient.New(cfg.CRM.Timeout), log)

	webhooks := webhookSubmitter(cfg, log)
	outboxRepo := outbox.NewRepository(db, log)
	orchestrator := delivery.NewOrchestrator(
		webhooks, crmClient, outboxRepo, cfg.Delivery.CRMFallback, m, log)

	assembler := assembly.New(visits, cfg.CRM.Website,
		cfg.CRM.DefaultSourceID, cfg.CRM.DefaultMediumID, cfg.CRM.TagIDs)

	// Chat sessions fire lead attempts outside any request context.
	chats := tracker.NewChatRegistry(cfg.Tracking.ChatLeadTriggerCount,
		chatLeadTrigger(assembler, orchestrator), log)

	// Background redelivery of queued leads.
	dispatcher := outbox.NewDispatcher(outboxRepo, orchestrator, outbox.DispatcherConfig{
		Interval:   cfg.Delivery.DispatchInterval,
		BatchSize:  cfg.Delivery.DispatchBatch,
		RPS:        cfg.Delivery.DispatchRPS,
		StaleAfter: cfg.Delivery.StaleAfter,
		Retention:  cfg.Delivery.Retention,
	}, m, log)

	dispatchCtx, stopDispatcher := context.WithCancel(context.Background())
	defer stopDispatcher()
	go dispatcher.Run(dispatchCtx)

	handlers := api.Handlers{
		Lead:    handler.NewLeadHandler(assembler, orchestrator, log),
		Visit:   handler.NewVisitHandler(visits, m, log),
		Chat:    handler.NewChatHandler(chats, cfg.Chatbot.AgentID, log),
		Options: handler.NewOptionsHandler(crmClient, log),
		Outbox:  handler.NewOutboxHandler(outboxRepo, dispatcher, log),
	}

	// done channel signals background goroutines (rate limiter, tracker
	// sweepers) on shutdown
	done := make(chan struct{})
	defer close(done)

	// Bound the in-memory trackers: both endpoints are public, so idle
	// visitor and session entries must be evicted.
	go visits.RunSweeper(cfg.Tracking.SweepInterval, cfg.Tracking.IdleTTL, done)
	go chats.RunSweeper(cfg.Tracking.SweepInterval, cfg.Tracking.IdleTTL, done)

	srv := api.NewServer(cfg, handlers, registry, db.Ping, log, done)

	log.Info("Lead-capture starting",
		logger.Int("port", cfg.Service.Port),
		logger.Bool("crm_fallback", cfg.Delivery.CRMFallback),
	)

	if err := srv.RunWithGracefulShutdown(context.Background()); err != nil {
		log.Error("Server error", logger.Error(err))
		return 1
	}

	log.Info("Lead-capture exited cleanly")
	return 0
}

// chatLeadTrigger builds the lead trigger fired when a chat session
// crosses the threshold. The submission runs in its own goroutine with
// a detached timeout so the vendor's event callback returns immediately
// instead of waiting out webhook and CRM timeouts.
func chatLeadTrigger(assembler *assembly.Assembler, submitter handler.LeadSubmitter) tracker.LeadTrigger {
	return func(sessionID string, interactions []domain.ChatInteraction) {
		lead := assembler.FromChatSession(sessionID, interactions)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), chatSubmitTimeout)
			defer cancel()
			submitter.Submit(ctx, lead, domain.SourceChatbot)
		}()
	}
}

// webhookSubmitter builds the webhook client from configuration.
func webhookSubmitter(cfg *config.Config, log logger.Logger) *webhook.Submitter {
	return webhook.NewSubmitter(
		cfg.Webhooks.PrimaryURL,
		cfg.Webhooks.FallbackURL,
		httpclient.New(cfg.Webhooks.Timeout),
		log,
	)
}
