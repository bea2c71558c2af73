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

// TransitionRecorder archives session state transitions to the
// session_transitions table. Record is registered as a state change
// subscriber on the session client.
type TransitionRecorder struct {
	cfg    Config
	logger *slog.Logger

	// Database
	db *pgxpool.Pool

	// Batching
	batch       []model.TransitionRecord
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics Metrics
}

// NewTransitionRecorder creates a new TransitionRecorder.
func NewTransitionRecorder(cfg Config, db *pgxpool.Pool, logger *slog.Logger) *TransitionRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &TransitionRecorder{
		cfg:    cfg,
		db:     db,
		logger: logger,
		batch:  make([]model.TransitionRecord, 0, 16),
	}
}

// Start begins periodic flushing.
func (r *TransitionRecorder) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.flushTicker = time.NewTicker(r.cfg.FlushInterval)

	r.wg.Add(1)
	go r.flushLoop()

	r.logger.Info("transition recorder started",
		"flush_interval", r.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the recorder.
func (r *TransitionRecorder) Stop(ctx context.Context) error {
	r.logger.Info("stopping transition recorder")

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
		r.logger.Info("transition recorder stopped")
	case <-ctx.Done():
		r.logger.Warn("transition recorder stop timed out")
	}

	// Final flush
	r.flush()

	return nil
}

// Stats returns current metrics.
func (r *TransitionRecorder) Stats() Metrics {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	return r.metrics
}

// Record captures a session state transition. Flushing stays on the
// ticker goroutine so a subscriber callback never blocks on the
// database.
func (r *TransitionRecorder) Record(st session.Status) {
	row := r.transform(st)

	r.batchMu.Lock()
	r.batch = append(r.batch, row)
	r.batchMu.Unlock()
}

// transform converts a session.Status to a TransitionRecord.
func (r *TransitionRecorder) transform(st session.Status) model.TransitionRecord {
	return model.TransitionRecord{
		State:      string(st.State),
		Attempt:    st.Attempt,
		OccurredAt: time.Now().UnixMicro(),
		InstanceID: r.cfg.InstanceID,
	}
}

// flushLoop periodically flushes the batch.
func (r *TransitionRecorder) flushLoop() {
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

// flush writes the current batch to the database.
func (r *TransitionRecorder) flush() {
	r.batchMu.Lock()
	if len(r.batch) == 0 {
		r.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := r.batch
	r.batch = make([]model.TransitionRecord, 0, 16)
	r.batchMu.Unlock()

	if err := r.batchInsert(batch); err != nil {
		r.logger.Error("batch insert failed", "error", err, "count", len(batch))
		r.requeue(batch)
		return
	}

	r.batchMu.Lock()
	r.metrics.Inserts += int64(len(batch))
	r.metrics.Flushes++
	r.batchMu.Unlock()

	r.logger.Debug("flushed transitions", "count", len(batch))
}

// requeue returns failed rows to the front of the batch, keeping at
// most BufferSize rows.
func (r *TransitionRecorder) requeue(rows []model.TransitionRecord) {
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

// batchInsert inserts rows using pgx.Batch. Transitions carry no
// natural key, so every row is a plain insert.
func (r *TransitionRecorder) batchInsert(rows []model.TransitionRecord) error {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`
			INSERT INTO session_transitions (state, attempt, occurred_at, instance_id)
			VALUES ($1, $2, $3, $4)
		`, row.State, row.Attempt, row.OccurredAt, row.InstanceID)
	}

	results := r.db.SendBatch(context.Background(), batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}

	return nil
}
