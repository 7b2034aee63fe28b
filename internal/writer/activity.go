package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/hotel-realtime/internal/buffer"
	"github.com/rickgao/hotel-realtime/internal/events"
)

// Schema creates the activity archive table.
const Schema = `
CREATE TABLE IF NOT EXISTS activity_log (
	ingest_id   UUID PRIMARY KEY,
	activity_id TEXT NOT NULL UNIQUE,
	hotel_id    TEXT NOT NULL,
	kind        TEXT NOT NULL DEFAULT '',
	message     TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ,
	received_at TIMESTAMPTZ NOT NULL,
	transport   TEXT NOT NULL,
	payload     JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS activity_log_hotel_received_idx
	ON activity_log (hotel_id, received_at DESC);
`

const insertActivity = `
	INSERT INTO activity_log (ingest_id, activity_id, hotel_id, kind, message, created_at, received_at, transport, payload)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (activity_id) DO NOTHING
`

// Execer is the subset of *pgxpool.Pool EnsureSchema needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// EnsureSchema creates the archive table if it does not exist.
func EnsureSchema(ctx context.Context, db Execer) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create activity_log: %w", err)
	}
	return nil
}

// ActivityRecord is one received activityUpdate, queued for archiving.
type ActivityRecord struct {
	Topic      string // Hotel id the event was subscribed under
	Transport  string // "bidirectional" or "push_only"
	ReceivedAt time.Time
	Activity   events.Activity
	Raw        []byte // Payload as received
}

// ActivityWriter consumes ActivityRecords and writes them to activity_log.
type ActivityWriter struct {
	cfg    WriterConfig
	logger *slog.Logger

	input *buffer.Queue[ActivityRecord]
	db    BatchSender

	batch   []activityRow
	batchMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Inserts outlive shutdown so a batch taken by a loop is not lost.
	writeCtx context.Context

	metrics WriterMetrics
}

// NewActivityWriter creates a new ActivityWriter.
func NewActivityWriter(
	cfg WriterConfig,
	input *buffer.Queue[ActivityRecord],
	db BatchSender,
	logger *slog.Logger,
) *ActivityWriter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultWriterConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultWriterConfig().FlushInterval
	}
	return &ActivityWriter{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger.With("writer", "activity"),
		batch:  make([]activityRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming records and writing to the database.
func (w *ActivityWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.writeCtx = context.WithoutCancel(ctx)

	w.wg.Add(2)
	go w.consumeLoop()
	go w.flushLoop()

	w.logger.Info("activity writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains what is already queued, flushes and shuts down. The final
// flush runs with ctx so it can outlive the start context.
func (w *ActivityWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping activity writer")

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("activity writer stop timed out")
		return ctx.Err()
	}

	for _, rec := range w.input.DrainTo(0) {
		w.add(rec)
	}
	w.flush(ctx)

	w.logger.Info("activity writer stopped", "inserts", w.Stats().Inserts)
	return nil
}

// Stats returns current metrics.
func (w *ActivityWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop blocks on the input queue and accumulates batches.
func (w *ActivityWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		rec, err := w.input.Receive(w.ctx)
		if err != nil {
			if !errors.Is(err, buffer.ErrClosed) && !errors.Is(err, context.Canceled) {
				w.logger.Error("receive failed", "error", err)
			}
			return
		}
		if w.add(rec) {
			w.flush(w.writeCtx)
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *ActivityWriter) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.writeCtx)
		}
	}
}

// add transforms rec into the batch. Reports whether the batch is full.
func (w *ActivityWriter) add(rec ActivityRecord) bool {
	row, ok := transform(rec)

	w.batchMu.Lock()
	defer w.batchMu.Unlock()

	if !ok {
		w.metrics.Invalid++
		return false
	}
	w.batch = append(w.batch, row)
	return len(w.batch) >= w.cfg.BatchSize
}

// transform converts a record to a row. Records without an activity id
// cannot be deduplicated and are rejected.
func transform(rec ActivityRecord) (activityRow, bool) {
	a := rec.Activity
	if a.ID == "" {
		return activityRow{}, false
	}

	hotel := a.HotelID
	if hotel == "" {
		hotel = rec.Topic
	}

	var created *time.Time
	if !a.CreatedAt.IsZero() {
		t := a.CreatedAt.UTC()
		created = &t
	}

	payload := rec.Raw
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	return activityRow{
		IngestID:   uuid.New(),
		ActivityID: a.ID,
		HotelID:    hotel,
		Kind:       a.Kind,
		Message:    a.Message,
		CreatedAt:  created,
		ReceivedAt: rec.ReceivedAt.UTC(),
		Transport:  rec.Transport,
		Payload:    payload,
	}, true
}

// flush writes the current batch to the database.
func (w *ActivityWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]activityRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed activities",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *ActivityWriter) batchInsert(ctx context.Context, rows []activityRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertActivity,
			r.IngestID, r.ActivityID, r.HotelID, r.Kind, r.Message,
			r.CreatedAt, r.ReceivedAt, r.Transport, r.Payload,
		)
	}

	results := w.db.SendBatch(ctx, batch)
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
