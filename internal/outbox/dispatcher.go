package outbox

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/vantage-advisory/lead-capture/internal/domain"
	"github.com/vantage-advisory/lead-capture/internal/logger"
	"github.com/vantage-advisory/lead-capture/internal/metrics"
)

// Deliverer redelivers a lead through the live delivery chain without
// re-enqueueing on failure.
type Deliverer interface {
	Deliver(ctx context.Context, lead domain.LeadRecord, source string) error
}

// DispatcherConfig holds the background delivery loop settings.
type DispatcherConfig struct {
	Interval   time.Duration
	BatchSize  int
	RPS        int
	StaleAfter time.Duration
	Retention  time.Duration
}

// Dispatcher periodically claims due outbox entries and pushes them
// through the delivery chain, pacing outbound calls with a rate limiter.
type Dispatcher struct {
	repo    *Repository
	deliver Deliverer
	cfg     DispatcherConfig
	limiter *rate.Limiter
	metrics *metrics.Metrics
	log     logger.Logger
}

// NewDispatcher creates a dispatcher. metrics may be nil in tests.
func NewDispatcher(
	repo *Repository,
	deliver Deliverer,
	cfg DispatcherConfig,
	m *metrics.Metrics,
	log logger.Logger,
) *Dispatcher {
	return &Dispatcher{
		repo:    repo,
		deliver: deliver,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), 1),
		metrics: m,
		log:     log,
	}
}

// Run executes dispatch cycles until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	d.log.Info("Outbox dispatcher started",
		logger.Duration("interval", d.cfg.Interval),
		logger.Int("batch_size", d.cfg.BatchSize),
	)

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.log.Info("Outbox dispatcher stopped")
			return
		case <-ticker.C:
			if _, err := d.Dispatch(ctx); err != nil {
				d.log.Error("Dispatch cycle failed", logger.Error(err))
			}
		}
	}
}

// Dispatch runs one delivery cycle and returns how many entries were
// redelivered successfully.
func (d *Dispatcher) Dispatch(ctx context.Context) (int, error) {
	if _, err := d.repo.ResetStale(ctx, d.cfg.StaleAfter); err != nil {
		d.log.Error("Failed to reset stale entries", logger.Error(err))
	}

	entries, err := d.repo.ClaimDue(ctx, d.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, entry := range entries {
		if err := d.limiter.Wait(ctx); err != nil {
			return delivered, err
		}
		if d.redeliver(ctx, entry) {
			delivered++
		}
	}

	if _, err := d.repo.CleanupDelivered(ctx, d.cfg.Retention); err != nil {
		d.log.Error("Outbox cleanup failed", logger.Error(err))
	}

	d.updateDepth(ctx)
	return delivered, nil
}

// redeliver pushes one entry through the delivery chain and records the
// outcome. Returns true on success.
func (d *Dispatcher) redeliver(ctx context.Context, entry *domain.OutboxEntry) bool {
	lead, err := entry.Lead()
	if err != nil {
		// An unreadable payload can never succeed; fail it outright
		// instead of cycling through the remaining retries.
		d.log.Error("Dropping outbox entry with corrupt payload",
			logger.String("entry_id", entry.ID),
			logger.Error(err),
		)
		if markErr := d.repo.MarkExhausted(ctx, entry.ID, err.Error()); markErr != nil {
			d.log.Error("Failed to mark corrupt entry", logger.Error(markErr))
		}
		return false
	}

	if err := d.deliver.Deliver(ctx, lead, entry.Source); err != nil {
		d.log.Warn("Outbox redelivery failed",
			logger.String("entry_id", entry.ID),
			logger.Int("retry_count", entry.RetryCount),
			logger.Error(err),
		)
		if markErr := d.repo.MarkFailed(ctx, entry.ID, err.Error()); markErr != nil {
			d.log.Error("Failed to mark entry failed", logger.Error(markErr))
		}
		return false
	}

	if err := d.repo.MarkDelivered(ctx, entry.ID); err != nil {
		d.log.Error("Failed to mark entry delivered",
			logger.String("entry_id", entry.ID),
			logger.Error(err),
		)
		return false
	}

	d.log.Info("Outbox entry redelivered",
		logger.String("entry_id", entry.ID),
		logger.String("source", entry.Source),
	)
	return true
}

// updateDepth refreshes the pending-entries gauge.
func (d *Dispatcher) updateDepth(ctx context.Context) {
	if d.metrics == nil {
		return
	}
	stats, err := d.repo.Stats(ctx)
	if err != nil {
		return
	}
	d.metrics.OutboxDepth.Set(float64(stats.Pending + stats.FailedRetryable))
}
