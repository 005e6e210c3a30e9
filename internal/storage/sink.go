package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	ptypes "github.com/gateway-fm/transactioneer/pkg/types"
)

// DefaultSinkBatchSize is how many records a Sink buffers before flushing.
const DefaultSinkBatchSize = 5000

// Sink buffers submission records and bulk-inserts them in batches, so the
// engine's hot path never waits on a per-record disk write.
type Sink struct {
	storage   Storage
	runID     int64
	batchSize int
	logger    *slog.Logger

	mu  sync.Mutex
	buf []ptypes.SubmissionRecord
}

// NewSink creates a sink writing records for one run. A batchSize of zero
// uses DefaultSinkBatchSize.
func NewSink(storage Storage, runID int64, batchSize int, logger *slog.Logger) *Sink {
	if batchSize <= 0 {
		batchSize = DefaultSinkBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		storage:   storage,
		runID:     runID,
		batchSize: batchSize,
		logger:    logger,
		buf:       make([]ptypes.SubmissionRecord, 0, batchSize),
	}
}

// Record buffers one submission record, flushing when the batch fills.
// Safe for concurrent use by all engine workers.
func (s *Sink) Record(rec ptypes.SubmissionRecord) {
	rec.RunID = s.runID

	s.mu.Lock()
	s.buf = append(s.buf, rec)
	if len(s.buf) < s.batchSize {
		s.mu.Unlock()
		return
	}
	batch := s.buf
	s.buf = make([]ptypes.SubmissionRecord, 0, s.batchSize)
	s.mu.Unlock()

	s.write(batch)
}

// Flush writes any buffered records. Call once after the engine stops.
func (s *Sink) Flush() {
	s.mu.Lock()
	batch := s.buf
	s.buf = make([]ptypes.SubmissionRecord, 0, s.batchSize)
	s.mu.Unlock()

	if len(batch) > 0 {
		s.write(batch)
	}
}

func (s *Sink) write(batch []ptypes.SubmissionRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.storage.BulkInsertSubmissions(ctx, s.runID, batch); err != nil {
		// Persistence is best-effort; a failed batch must not stall submission.
		s.logger.Error("failed to persist submission batch",
			slog.Int64("run_id", s.runID),
			slog.Int("records", len(batch)),
			slog.String("error", err.Error()),
		)
	}
}
