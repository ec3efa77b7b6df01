// Package outbox persists leads whose inline delivery failed and
// redelivers them in the background.
package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/vantage-advisory/lead-capture/internal/domain"
	"github.com/vantage-advisory/lead-capture/internal/logger"
)

// Repository provides access to the lead_outbox table.
type Repository struct {
	db  *sql.DB
	log logger.Logger
}

// NewRepository creates an outbox repository.
func NewRepository(db *sql.DB, log logger.Logger) *Repository {
	return &Repository{db: db, log: log}
}

const outboxColumns = `id, source, payload, name, email_from, status, retry_count,
		max_retries, error_message, created_at, updated_at, delivered_at, next_retry_at`

// Enqueue inserts a new entry, assigning its ID.
func (r *Repository) Enqueue(ctx context.Context, entry *domain.OutboxEntry) error {
	entry.ID = uuid.New().String()

	query := `
		INSERT INTO lead_outbox (id, source, payload, name, email_from, status,
			retry_count, max_retries, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.Source, entry.Payload, entry.Name, entry.EmailFrom,
		entry.Status, entry.RetryCount, entry.MaxRetries,
	)
	if err != nil {
		return fmt.Errorf("enqueue outbox entry: %w", err)
	}

	r.log.Info("Lead enqueued for background delivery",
		logger.String("entry_id", entry.ID),
		logger.String("source", entry.Source),
		logger.String("email", entry.EmailFrom),
	)
	return nil
}

// ClaimDue atomically claims up to limit entries that are due for
// delivery and marks them delivering. Rows are locked with SKIP LOCKED
// so concurrent dispatchers never claim the same entry.
func (r *Repository) ClaimDue(ctx context.Context, limit int) ([]*domain.OutboxEntry, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		SELECT ` + outboxColumns + `
		FROM lead_outbox
		WHERE status = 'pending'
		  AND (next_retry_at IS NULL OR next_retry_at <= NOW())
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED`

	rows, err := tx.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("select due entries: %w", err)
	}

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, tx.Commit()
	}

	ids := make([]string, len(entries))
	for i, entry := range entries {
		ids[i] = entry.ID
		entry.Status = domain.OutboxStatusDelivering
	}

	update := `
		UPDATE lead_outbox
		SET status = 'delivering', updated_at = NOW()
		WHERE id = ANY($1)`

	if _, err := tx.ExecContext(ctx, update, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("mark entries delivering: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim transaction: %w", err)
	}
	return entries, nil
}

// MarkDelivered records a successful redelivery.
func (r *Repository) MarkDelivered(ctx context.Context, id string) error {
	query := `
		UPDATE lead_outbox
		SET status = 'delivered', delivered_at = NOW(), updated_at = NOW(),
			error_message = NULL
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return requireRow(result, id)
}

// MarkFailed records a failed redelivery. Entries with retries left go
// back to pending with an exponentially backed-off next_retry_at;
// exhausted entries become failed.
func (r *Repository) MarkFailed(ctx context.Context, id, errorMessage string) error {
	query := `
		UPDATE lead_outbox
		SET retry_count = retry_count + 1,
			error_message = $2,
			updated_at = NOW(),
			status = CASE
				WHEN retry_count + 1 >= max_retries THEN 'failed'
				ELSE 'pending'
			END,
			next_retry_at = CASE
				WHEN retry_count + 1 >= max_retries THEN NULL
				ELSE NOW() + INTERVAL '1 minute' * POWER(2, retry_count)
			END
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, errorMessage)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return requireRow(result, id)
}

// MarkExhausted moves an entry straight to failed, skipping any
// remaining retries. Used for entries that can never succeed, such as
// an unreadable payload.
func (r *Repository) MarkExhausted(ctx context.Context, id, errorMessage string) error {
	query := `
		UPDATE lead_outbox
		SET status = 'failed',
			retry_count = max_retries,
			error_message = $2,
			next_retry_at = NULL,
			updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, errorMessage)
	if err != nil {
		return fmt.Errorf("mark exhausted: %w", err)
	}
	return requireRow(result, id)
}

// ResetStale returns entries stuck in delivering longer than staleAfter
// back to pending. Covers dispatcher crashes between claim and outcome.
func (r *Repository) ResetStale(ctx context.Context, staleAfter time.Duration) (int64, error) {
	query := `
		UPDATE lead_outbox
		SET status = 'pending', updated_at = NOW()
		WHERE status = 'delivering'
		  AND updated_at < NOW() - $1::interval`

	result, err := r.db.ExecContext(ctx, query, intervalArg(staleAfter))
	if err != nil {
		return 0, fmt.Errorf("reset stale entries: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count reset entries: %w", err)
	}
	if count > 0 {
		r.log.Warn("Reset stale delivering entries", logger.Int64("count", count))
	}
	return count, nil
}

// CleanupDelivered deletes delivered entries older than retention.
func (r *Repository) CleanupDelivered(ctx context.Context, retention time.Duration) (int64, error) {
	query := `
		DELETE FROM lead_outbox
		WHERE status = 'delivered'
		  AND delivered_at < NOW() - $1::interval`

	result, err := r.db.ExecContext(ctx, query, intervalArg(retention))
	if err != nil {
		return 0, fmt.Errorf("cleanup delivered entries: %w", err)
	}
	return result.RowsAffected()
}

// GetByID returns a single entry.
func (r *Repository) GetByID(ctx context.Context, id string) (*domain.OutboxEntry, error) {
	query := `SELECT ` + outboxColumns + ` FROM lead_outbox WHERE id = $1`

	entry, err := scanEntry(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get outbox entry: %w", err)
	}
	return entry, nil
}

// Stats returns counts per state plus the average delivery lag.
func (r *Repository) Stats(ctx context.Context) (*domain.OutboxStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending' AND retry_count = 0),
			COUNT(*) FILTER (WHERE status = 'delivering'),
			COUNT(*) FILTER (WHERE status = 'delivered'),
			COUNT(*) FILTER (WHERE status = 'pending' AND retry_count > 0),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COALESCE(AVG(EXTRACT(EPOCH FROM (delivered_at - created_at)))
				FILTER (WHERE status = 'delivered'), 0)
		FROM lead_outbox`

	var stats domain.OutboxStats
	err := r.db.QueryRowContext(ctx, query).Scan(
		&stats.Pending, &stats.Delivering, &stats.Delivered,
		&stats.FailedRetryable, &stats.FailedExhausted,
		&stats.AvgDeliveryLagSeconds,
	)
	if err != nil {
		return nil, fmt.Errorf("read outbox stats: %w", err)
	}
	return &stats, nil
}

// requireRow converts a zero-row update into ErrNotFound.
func requireRow(result sql.Result, id string) error {
	count, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("%w: outbox entry %s", domain.ErrNotFound, id)
	}
	return nil
}

// intervalArg renders a duration as a PostgreSQL interval literal.
func intervalArg(d time.Duration) string {
	return fmt.Sprintf("%d seconds", int64(d.Seconds()))
}

// scanEntry reads one entry from a row scanner.
func scanEntry(row *sql.Row) (*domain.OutboxEntry, error) {
	var entry domain.OutboxEntry
	err := row.Scan(
		&entry.ID, &entry.Source, &entry.Payload, &entry.Name, &entry.EmailFrom,
		&entry.Status, &entry.RetryCount, &entry.MaxRetries, &entry.ErrorMessage,
		&entry.CreatedAt, &entry.UpdatedAt, &entry.DeliveredAt, &entry.NextRetryAt,
	)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// scanEntries reads all entries from a result set.
func scanEntries(rows *sql.Rows) ([]*domain.OutboxEntry, error) {
	defer rows.Close()

	var entries []*domain.OutboxEntry
	for rows.Next() {
		var entry domain.OutboxEntry
		err := rows.Scan(
			&entry.ID, &entry.Source, &entry.Payload, &entry.Name, &entry.EmailFrom,
			&entry.Status, &entry.RetryCount, &entry.MaxRetries, &entry.ErrorMessage,
			&entry.CreatedAt, &entry.UpdatedAt, &entry.DeliveredAt, &entry.NextRetryAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox entries: %w", err)
	}
	return entries, nil
}
