// Package storage provides buffered persistence of visit telemetry.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vantage-advisory/lead-capture/internal/domain"
	"github.com/vantage-advisory/lead-capture/internal/logger"
)

const (
	// columnsPerRow is the number of columns inserted per visit row.
	columnsPerRow = 6

	// insertBatchSize is the maximum number of rows per INSERT statement.
	insertBatchSize = 50

	// flushTimeout is the context timeout for each flush operation.
	flushTimeout = 5 * time.Second
)

// Buffer is a channel-based buffer for non-blocking visit ingestion.
type Buffer struct {
	visits chan domain.VisitRecord
	closed chan struct{}
	once   sync.Once
}

// NewBuffer creates a buffer with a buffered channel of the given capacity.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{
		visits: make(chan domain.VisitRecord, capacity),
		closed: make(chan struct{}),
	}
}

// Send performs a non-blocking send of a visit into the buffer.
// It returns false if the buffer channel is full.
func (b *Buffer) Send(visit domain.VisitRecord) bool {
	select {
	case b.visits <- visit:
		return true
	default:
		return false
	}
}

// Len returns the number of visits currently in the buffer channel.
func (b *Buffer) Len() int {
	return len(b.visits)
}

// Close signals the buffer to stop accepting visits.
// It is safe to call multiple times.
func (b *Buffer) Close() {
	b.once.Do(func() {
		close(b.closed)
	})
}

// Store manages buffered writes of visit records to PostgreSQL.
type Store struct {
	db             *sql.DB
	buffer         *Buffer
	log            logger.Logger
	flushInterval  time.Duration
	flushThreshold int
	wg             sync.WaitGroup
}

// NewStore creates a Store that reads visits from buffer and batch-inserts them.
func NewStore(
	db *sql.DB,
	buffer *Buffer,
	log logger.Logger,
	flushInterval time.Duration,
	flushThreshold int,
) *Store {
	return &Store{
		db:             db,
		buffer:         buffer,
		log:            log,
		flushInterval:  flushInterval,
		flushThreshold: flushThreshold,
	}
}

// Start launches the background goroutine that reads visits and flushes batches.
func (s *Store) Start() {
	s.wg.Add(1)
	go s.flushLoop()
}

// Stop signals the buffer to close and waits for the flush goroutine to finish.
func (s *Store) Stop() {
	s.buffer.Close()
	s.wg.Wait()
}

// flushLoop reads visits from the buffer, accumulates a batch, and flushes
// when the batch reaches flushThreshold or the flushInterval ticker fires.
func (s *Store) flushLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	batch := make([]domain.VisitRecord, 0, s.flushThreshold)

	for {
		select {
		case visit := <-s.buffer.visits:
			batch = append(batch, visit)
			if len(batch) >= s.flushThreshold {
				s.flush(batch)
				batch = make([]domain.VisitRecord, 0, s.flushThreshold)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = make([]domain.VisitRecord, 0, s.flushThreshold)
			}

		case <-s.buffer.closed:
			s.drain(&batch)
			if len(batch) > 0 {
				s.flush(batch)
			}
			return
		}
	}
}

// drain reads all remaining visits from the buffer channel into the batch.
func (s *Store) drain(batch *[]domain.VisitRecord) {
	for {
		select {
		case visit := <-s.buffer.visits:
			*batch = append(*batch, visit)
		default:
			return
		}
	}
}

// flush writes a batch of visits to PostgreSQL in chunks of insertBatchSize.
func (s *Store) flush(batch []domain.VisitRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	for start := 0; start < len(batch); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(batch) {
			end = len(batch)
		}

		if err := s.batchInsert(ctx, batch[start:end]); err != nil {
			s.log.Error("Failed to insert visits",
				logger.Error(err),
				logger.Int("batch_size", end-start),
			)
		}
	}

	s.log.Debug("Flushed visits",
		logger.Int("total", len(batch)),
	)
}

// batchInsert builds and executes a single INSERT statement with multiple value tuples.
func (s *Store) batchInsert(ctx context.Context, visits []domain.VisitRecord) error {
	if len(visits) == 0 {
		return nil
	}

	args := make([]any, 0, len(visits)*columnsPerRow)
	var sb strings.Builder

	sb.WriteString("INSERT INTO visits (visitor_id, page, path, referrer, " +
		"user_agent, visited_at) VALUES ")

	for i := range visits {
		if i > 0 {
			sb.WriteString(", ")
		}

		writeValueTuple(&sb, i)

		args = append(args,
			visits[i].VisitorID, visits[i].Page, visits[i].Path,
			visits[i].Referrer, visits[i].UserAgent, visits[i].VisitedAt,
		)
	}

	_, err := s.db.ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return fmt.Errorf("exec batch insert: %w", err)
	}

	return nil
}

// Placeholder column offsets within a single row tuple (1-indexed for PostgreSQL $N params).
const (
	colVisitorID = 1
	colPage      = 2
	colPath      = 3
	colReferrer  = 4
	colUserAgent = 5
	colVisitedAt = 6
)

// writeValueTuple writes a single ($1, ..., $6) placeholder tuple to the builder,
// offset by the row index.
func writeValueTuple(sb *strings.Builder, rowIndex int) {
	base := rowIndex * columnsPerRow
	fmt.Fprintf(sb, "($%d, $%d, $%d, $%d, $%d, $%d)",
		base+colVisitorID, base+colPage, base+colPath,
		base+colReferrer, base+colUserAgent, base+colVisitedAt,
	)
}
