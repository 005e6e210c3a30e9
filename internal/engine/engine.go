// Package engine submits signed transactions at a paced rate across an
// endpoint pool, driven by a bounded work queue.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/gateway-fm/transactioneer/internal/account"
	"github.com/gateway-fm/transactioneer/internal/endpoint"
	"github.com/gateway-fm/transactioneer/internal/metrics"
	"github.com/gateway-fm/transactioneer/internal/queue"
	"github.com/gateway-fm/transactioneer/internal/ratelimit"
	"github.com/gateway-fm/transactioneer/internal/rpc"
	"github.com/gateway-fm/transactioneer/internal/txbuilder"
	ptypes "github.com/gateway-fm/transactioneer/pkg/types"
)

// Defaults for Config fields left zero.
const (
	DefaultMaxRetries     = 3
	DefaultWorkers        = 8
	DefaultDequeueTimeout = time.Second
	DefaultSubmitDelay    = 20 * time.Millisecond
	DefaultReconcileEvery = 10_000
	DefaultSettleDelay    = 30 * time.Second
)

// OutcomeSink receives terminal submission outcomes, typically for
// persistence. Implementations must be safe for concurrent use.
type OutcomeSink interface {
	Record(rec ptypes.SubmissionRecord)
}

// Config holds engine construction parameters.
type Config struct {
	Accounts   *account.Ring
	Pool       *endpoint.Pool
	Builders   *txbuilder.Registry
	Classifier *rpc.Classifier

	ChainID   *big.Int
	GasTipCap *big.Int
	GasFeeCap *big.Int
	UseLegacy bool

	// MaxRetries is the total attempt budget per work item, conflicts
	// included. The first send counts as attempt one.
	MaxRetries int

	Workers        int
	QueueCapacity  int
	DequeueTimeout time.Duration

	// SubmitDelay is the strict inter-submission spacing across all workers.
	SubmitDelay time.Duration

	// ReconcileEvery triggers a nonce reconciliation sweep after this many
	// completed submissions. Zero keeps the default; negative disables.
	ReconcileEvery int64

	// SettleDelay is how long a sweep waits before reading chain nonces,
	// letting in-flight transactions land first.
	SettleDelay time.Duration

	Collector  *metrics.Collector
	Prometheus *metrics.PrometheusMetrics
	Sink       OutcomeSink
	Logger     *slog.Logger
}

// Engine is the transaction submission engine.
type Engine struct {
	cfg       Config
	queue     *queue.Queue
	pacer     *ratelimit.Pacer
	signer    types.Signer
	collector *metrics.Collector
	logger    *slog.Logger

	state    atomic.Int32
	stopping atomic.Bool

	// completions since the last sweep; reset when a sweep is claimed
	sinceReconcile atomic.Int64

	// workers hold the read side per submission; a sweep takes the write
	// side so local nonces are never overwritten mid-burst
	sweepMu sync.RWMutex
}

var stateValues = []ptypes.EngineState{
	ptypes.EngineIdle, ptypes.EngineRunning, ptypes.EngineStopping, ptypes.EngineStopped,
}

// New creates an engine. Zero-value config fields get defaults.
func New(cfg Config) (*Engine, error) {
	if cfg.Accounts == nil || cfg.Accounts.Size() == 0 {
		return nil, errors.New("engine requires at least one account")
	}
	if cfg.Pool == nil {
		return nil, errors.New("engine requires an endpoint pool")
	}
	if cfg.Builders == nil {
		return nil, errors.New("engine requires a builder registry")
	}
	if cfg.ChainID == nil || cfg.ChainID.Sign() == 0 {
		return nil, errors.New("engine requires a chain ID")
	}
	if cfg.Classifier == nil {
		cfg.Classifier = rpc.NewClassifier(nil)
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.DequeueTimeout <= 0 {
		cfg.DequeueTimeout = DefaultDequeueTimeout
	}
	if cfg.SubmitDelay == 0 {
		cfg.SubmitDelay = DefaultSubmitDelay
	}
	if cfg.ReconcileEvery == 0 {
		cfg.ReconcileEvery = DefaultReconcileEvery
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.Collector == nil {
		cfg.Collector = metrics.NewCollector()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Engine{
		cfg:       cfg,
		queue:     queue.New(cfg.QueueCapacity),
		pacer:     ratelimit.New(cfg.SubmitDelay),
		signer:    types.LatestSignerForChainID(cfg.ChainID),
		collector: cfg.Collector,
		logger:    cfg.Logger,
	}, nil
}

// Outcome is the terminal result of one work item.
type Outcome struct {
	Account  *account.Account
	Nonce    uint64
	TxHash   string
	Status   ptypes.SubmitStatus
	Reason   ptypes.FailReason
	Attempts int
	Err      error
}

// ReserveAndSubmit runs one work item through its whole lifecycle: pick an
// account, reserve a nonce, build and sign exactly once, then submit with
// conflict retries across distinct write endpoints. The reservation is never
// returned; failed items leave gaps for reconciliation to close.
func (e *Engine) ReserveAndSubmit(ctx context.Context, item ptypes.WorkItem) Outcome {
	acc := e.cfg.Accounts.Next()
	return e.submitFor(ctx, acc, item)
}

func (e *Engine) submitFor(ctx context.Context, acc *account.Account, item ptypes.WorkItem) Outcome {
	e.collector.RecordAttempt()
	start := time.Now()

	nonce := acc.Reserve()
	out := Outcome{Account: acc, Nonce: nonce}

	raw, err := e.buildAndSign(acc, nonce, item)
	if err != nil {
		out.Status = ptypes.SubmitFailed
		out.Reason = ptypes.FailReasonBuild
		out.Err = err
		e.finish(&out, start)
		return out
	}

	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		out.Attempts = attempt

		client := e.cfg.Pool.NextWrite()
		hash, err := client.SendRawTransaction(ctx, raw)
		if err == nil {
			out.TxHash = hash
			out.Status = ptypes.SubmitSucceeded
			e.finish(&out, start)
			return out
		}

		if ctx.Err() != nil {
			out.Status = ptypes.SubmitFailed
			out.Reason = ptypes.FailReasonCanceled
			out.Err = ctx.Err()
			e.finish(&out, start)
			return out
		}

		if e.cfg.Classifier.IsConflict(err) {
			out.Err = &ConflictError{
				Endpoint: client.URL(),
				Nonce:    nonce,
				Attempts: attempt,
				Err:      err,
			}
			if attempt < e.cfg.MaxRetries {
				e.collector.RecordConflictRetry()
				if e.cfg.Prometheus != nil {
					e.cfg.Prometheus.RecordConflictRetry()
				}
				e.logger.Debug("nonce conflict, retrying on next endpoint",
					slog.Int("account_idx", acc.Index),
					slog.Uint64("nonce", nonce),
					slog.Int("attempt", attempt),
					slog.String("endpoint", client.URL()),
				)
			}
			continue
		}

		// Non-conflict failure is terminal; no endpoint hopping.
		out.Status = ptypes.SubmitFailed
		out.Reason = ptypes.FailReasonEndpoint
		out.Err = &EndpointError{Endpoint: client.URL(), Err: err}
		e.finish(&out, start)
		return out
	}

	out.Status = ptypes.SubmitFailed
	out.Reason = ptypes.FailReasonConflict
	e.finish(&out, start)
	return out
}

// buildAndSign turns a payload into signed raw bytes. Called exactly once
// per work item; retries reuse the returned bytes.
func (e *Engine) buildAndSign(acc *account.Account, nonce uint64, item ptypes.WorkItem) ([]byte, error) {
	builder, err := e.cfg.Builders.Get(item.Kind)
	if err != nil {
		return nil, err
	}

	tx, err := builder.Build(txbuilder.TxParams{
		ChainID:   e.cfg.ChainID,
		Nonce:     nonce,
		GasTipCap: e.cfg.GasTipCap,
		GasFeeCap: e.cfg.GasFeeCap,
		From:      acc.Address,
		UseLegacy: e.cfg.UseLegacy,
	}, item)
	if err != nil {
		return nil, err
	}

	signed, err := types.SignTx(tx, e.signer, acc.PrivateKey)
	if err != nil {
		return nil, &txbuilder.BuildError{Stage: "sign", Err: err}
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, &txbuilder.BuildError{Stage: "encode", Err: err}
	}

	return raw, nil
}

func (e *Engine) finish(out *Outcome, start time.Time) {
	if out.Status == ptypes.SubmitSucceeded {
		e.collector.RecordSuccess()
	} else {
		e.collector.RecordFailure(out.Reason)
		if out.Err != nil {
			e.logger.Debug("submission failed",
				slog.Int("account_idx", out.Account.Index),
				slog.Uint64("nonce", out.Nonce),
				slog.String("reason", string(out.Reason)),
				slog.String("error", out.Err.Error()),
			)
		}
	}

	if e.cfg.Prometheus != nil {
		e.cfg.Prometheus.RecordOutcome(out.Status, out.Reason, out.Attempts, time.Since(start).Seconds())
	}
	if e.cfg.Sink != nil {
		e.cfg.Sink.Record(ptypes.SubmissionRecord{
			AccountIndex: out.Account.Index,
			Nonce:        out.Nonce,
			TxHash:       out.TxHash,
			Status:       out.Status,
			Reason:       out.Reason,
			Attempts:     out.Attempts,
			SubmittedAt:  start,
		})
	}
}

// State returns the engine lifecycle state.
func (e *Engine) State() ptypes.EngineState {
	return stateValues[e.state.Load()]
}

func (e *Engine) setState(s ptypes.EngineState) {
	for i, v := range stateValues {
		if v == s {
			e.state.Store(int32(i))
			break
		}
	}
	if e.cfg.Prometheus != nil {
		e.cfg.Prometheus.SetEngineState(s)
	}
}

// Enqueue adds one work item, failing fast when the queue is full.
func (e *Engine) Enqueue(item ptypes.WorkItem) error {
	return e.queue.Enqueue(item)
}

// EnqueueBatch adds items until the queue fills, returning how many were
// accepted.
func (e *Engine) EnqueueBatch(items []ptypes.WorkItem) (int, error) {
	return e.queue.EnqueueBatch(items)
}

// QueueDepth returns the number of queued work items.
func (e *Engine) QueueDepth() int {
	return e.queue.Depth()
}

// Stats returns a snapshot of engine counters.
func (e *Engine) Stats() ptypes.Stats {
	return e.collector.Snapshot(e.State(), e.queue.Depth())
}

// Stop requests a cooperative shutdown: no new items are dequeued, workers
// finish their current item, and Run returns the final stats.
func (e *Engine) Stop() {
	if e.stopping.Swap(true) {
		return
	}
	e.setState(ptypes.EngineStopping)
	e.queue.Close()
	e.logger.Info("stop requested, draining in-flight submissions")
}
