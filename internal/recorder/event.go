package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/podwave/relay/internal/model"
	"github.com/podwave/relay/internal/session"
)

// EventRecorder consumes inbound gateway events from the session and
// archives them to the gateway_events table.
type EventRecorder struct {
	cfg    Config
	logger *slog.Logger

	// Input from the session client
	input <-chan session.Inbound

	// Database
	db *pgxpool.Pool

	// Batching
	batch       []model.EventRecord
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics Metrics
}

// NewEventRecorder creates a new EventRecorder.
func NewEventRecorder(
	cfg Config,
	input <-chan session.Inbound,
	db *pgxpool.Pool,
	logger *slog.Logger,
) *EventRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventRecorder{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger,
		batch:  make([]model.EventRecord, 0, cfg.BatchSize),
	}
}

// Start begins consuming events and writing to the database.
func (r *EventRecorder) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.flushTicker = time.NewTicker(r.cfg.FlushInterval)

	// Consumer goroutine
	r.wg.Add(1)
	go r.consumeLoop()

	// Flush ticker goroutine
	r.wg.Add(1)
	go r.flushLoop()

	r.logger.Info("event recorder started",
		"batch_size", r.cfg.BatchSize,
		"flush_interval", r.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the recorder.
func (r *EventRecorder) Stop(ctx context.Context) error {
	r.logger.Info("stopping event recorder")

	if r.cancel != nil {
		r.cancel()
	}

	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}

	// Wait for goroutines
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("event recorder stopped")
	case <-ctx.Done():
		r.logger.Warn("event recorder stop timed out")
	}

	// Drain anything still buffered before the final flush.
	for {
		select {
		case evt := <-r.input:
			r.handleEvent(evt)
		default:
			r.flush()
			return nil
		}
	}
}

// Stats returns current metrics.
func (r *EventRecorder) Stats() Metrics {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	return r.metrics
}

// consumeLoop reads from the session channel and accumulates batches.
func (r *EventRecorder) consumeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case evt := <-r.input:
			r.handleEvent(evt)
		}
	}
}

// flushLoop periodically flushes the batch.
func (r *EventRecorder) flushLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.flushTicker.C:
			r.flush()
		}
	}
}

// handleEvent transforms and adds an event to the batch.
func (r *EventRecorder) handleEvent(evt session.Inbound) {
	row := r.transform(evt)

	r.batchMu.Lock()
	r.batch = append(r.batch, row)
	shouldFlush := len(r.batch) >= r.cfg.BatchSize
	r.batchMu.Unlock()

	if shouldFlush {
		r.flush()
	}
}

// transform converts a session.Inbound to an EventRecord.
func (r *EventRecorder) transform(evt session.Inbound) model.EventRecord {
	return model.EventRecord{
		EventID:    evt.ID,
		EventType:  evt.Type,
		Payload:    evt.Data,
		ReceivedAt: evt.ReceivedAt.UnixMicro(),
		InstanceID: r.cfg.InstanceID,
	}
}

// flush writes the current batch to the database.
func (r *EventRecorder) flush() {
	r.batchMu.Lock()
	if len(r.batch) == 0 {
		r.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := r.batch
	r.batch = make([]model.EventRecord, 0, r.cfg.BatchSize)
	r.batchMu.Unlock()

	start := time.Now()

	conflicts, err := r.batchInsert(batch)
	if err != nil {
		r.logger.Error("batch insert failed", "error", err, "count", len(batch))
		r.requeue(batch)
		return
	}

	r.batchMu.Lock()
	r.metrics.Inserts += int64(len(batch) - conflicts)
	r.metrics.Conflicts += int64(conflicts)
	r.metrics.Flushes++
	r.batchMu.Unlock()

	r.logger.Debug("flushed events",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// requeue returns failed rows to the front of the batch, keeping at
// most BufferSize rows so a database outage cannot grow memory without
// bound. The oldest rows are dropped first.
func (r *EventRecorder) requeue(rows []model.EventRecord) {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()

	r.metrics.Errors++
	combined := append(rows, r.batch...)
	if over := len(combined) - r.cfg.BufferSize; over > 0 {
		combined = combined[over:]
		r.metrics.Dropped += int64(over)
	}
	r.batch = combined
}

// batchInsert inserts rows using pgx.Batch. Uniqueness is per instance;
// the same event archived by two relay instances lands twice and is
// collapsed offline by dedupscan. Inserts run against the background
// context so a shutdown cancel cannot abort the final drain.
func (r *EventRecorder) batchInsert(rows []model.EventRecord) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`
			INSERT INTO gateway_events (event_id, event_type, payload, received_at, instance_id)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (event_id, instance_id) DO NOTHING
		`, row.EventID, row.EventType, row.Payload, row.ReceivedAt, row.InstanceID)
	}

	results := r.db.SendBatch(context.Background(), batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
