package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	ptypes "github.com/gateway-fm/transactioneer/pkg/types"
)

// Run starts the worker pool and blocks until the queue is drained after a
// Stop, or the context is canceled. It returns a summary of the run.
func (e *Engine) Run(ctx context.Context) ptypes.RunSummary {
	e.setState(ptypes.EngineRunning)
	startedAt := time.Now()

	e.logger.Info("engine started",
		slog.Int("workers", e.cfg.Workers),
		slog.Int("accounts", e.cfg.Accounts.Size()),
		slog.Int("endpoints", e.cfg.Pool.Size()),
		slog.Duration("submit_delay", e.cfg.SubmitDelay),
	)

	// Stop the workers when the context dies so Run always returns.
	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go func() {
		<-watchCtx.Done()
		e.Stop()
	}()

	var wg sync.WaitGroup
	wg.Add(e.cfg.Workers)
	for w := 0; w < e.cfg.Workers; w++ {
		go func(id int) {
			defer wg.Done()
			e.workerLoop(ctx, id)
		}(w)
	}
	wg.Wait()

	e.setState(ptypes.EngineStopped)
	finishedAt := time.Now()
	summary := ptypes.RunSummary{
		StartedAt:  startedAt,
		FinishedAt: &finishedAt,
		Attempted:  e.collector.Attempted(),
		Succeeded:  e.collector.Succeeded(),
		Failed:     e.collector.Failed(),
		AvgRate:    e.collector.AvgRate(),
		Endpoints:  e.cfg.Pool.Size(),
		Accounts:   e.cfg.Accounts.Size(),
	}

	e.logger.Info("engine stopped",
		slog.Uint64("attempted", summary.Attempted),
		slog.Uint64("succeeded", summary.Succeeded),
		slog.Uint64("failed", summary.Failed),
		slog.Float64("avg_rate", summary.AvgRate),
		slog.Duration("elapsed", finishedAt.Sub(startedAt)),
	)
	return summary
}

func (e *Engine) workerLoop(ctx context.Context, id int) {
	for {
		if e.stopping.Load() && e.queue.Depth() == 0 {
			return
		}

		item, ok := e.queue.Dequeue(e.cfg.DequeueTimeout)
		if !ok {
			// Timed out or the queue closed empty. Not a work item
			// outcome; just poll again unless we are shutting down.
			if e.stopping.Load() {
				return
			}
			continue
		}

		if err := e.pacer.Wait(ctx); err != nil {
			// Canceled while waiting for a permit. The item was already
			// dequeued, so it gets a terminal canceled outcome rather
			// than silently vanishing.
			e.recordCanceled(err)
			continue
		}

		e.collector.ObserveQueueDepth(e.queue.Depth())
		if e.cfg.Prometheus != nil {
			e.cfg.Prometheus.SetQueueDepth(e.queue.Depth())
			e.cfg.Prometheus.SetSubmissionRate(e.collector.Rate())
		}

		// A sweep in progress blocks new submissions here; in-flight ones
		// already hold the read side.
		e.sweepMu.RLock()
		out := e.ReserveAndSubmit(ctx, item)
		e.sweepMu.RUnlock()

		if out.Status == ptypes.SubmitSucceeded && id == 0 {
			e.logger.Debug("submitted",
				slog.Int("account_idx", out.Account.Index),
				slog.Uint64("nonce", out.Nonce),
				slog.String("tx_hash", out.TxHash),
				slog.Int("attempts", out.Attempts),
			)
		}

		e.maybeReconcile(ctx)
	}
}

func (e *Engine) recordCanceled(err error) {
	e.collector.RecordAttempt()
	e.collector.RecordFailure(ptypes.FailReasonCanceled)
	if e.cfg.Prometheus != nil {
		e.cfg.Prometheus.RecordOutcome(ptypes.SubmitFailed, ptypes.FailReasonCanceled, 0, 0)
	}
	e.logger.Debug("work item canceled before submission", slog.String("error", err.Error()))
}

// maybeReconcile claims a sweep when enough submissions completed since the
// last one. Exactly one worker wins the claim; the rest keep submitting until
// the sweep takes the write lock.
func (e *Engine) maybeReconcile(ctx context.Context) {
	if e.cfg.ReconcileEvery < 0 {
		return
	}
	n := e.sinceReconcile.Add(1)
	if n < e.cfg.ReconcileEvery {
		return
	}
	if !e.sinceReconcile.CompareAndSwap(n, 0) {
		return
	}
	e.reconcile(ctx)
}
