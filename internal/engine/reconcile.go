package engine

import (
	"context"
	"log/slog"
	"time"
)

// reconcileChunkSize bounds one batch nonce read. Large account sets split
// into multiple batch calls so a single oversized JSON-RPC body is avoided.
const reconcileChunkSize = 500

// reconcile pauses submission, waits for in-flight transactions to settle,
// then overwrites every account's local nonce with the chain's confirmed
// value. Both directions: a local value ahead of the chain (gaps from failed
// submissions) comes back down, a stale local value catches up.
func (e *Engine) reconcile(ctx context.Context) {
	e.sweepMu.Lock()
	defer e.sweepMu.Unlock()

	accounts := e.cfg.Accounts.Accounts()
	e.logger.Info("reconciliation sweep starting",
		slog.Int("accounts", len(accounts)),
		slog.Duration("settle_delay", e.cfg.SettleDelay),
	)
	start := time.Now()

	// Let already-broadcast transactions land before reading counts, so a
	// correct local nonce is not dragged backwards by a lagging ledger.
	select {
	case <-time.After(e.cfg.SettleDelay):
	case <-ctx.Done():
		e.logger.Warn("reconciliation sweep aborted during settle delay",
			slog.String("error", ctx.Err().Error()))
		return
	}

	var changed, readErrors int
	for offset := 0; offset < len(accounts); offset += reconcileChunkSize {
		end := offset + reconcileChunkSize
		if end > len(accounts) {
			end = len(accounts)
		}
		chunk := accounts[offset:end]

		client := e.cfg.Pool.NextRead()
		addresses := make([]string, len(chunk))
		for i, acc := range chunk {
			addresses[i] = acc.Address.Hex()
		}

		results, err := client.GetConfirmedNonceBatch(ctx, addresses)
		if err != nil {
			// Whole batch failed; every account in it keeps its local value.
			readErrors += len(chunk)
			for range chunk {
				e.collector.RecordReadError()
			}
			e.logger.Warn("reconciliation batch read failed",
				slog.String("endpoint", client.URL()),
				slog.Int("accounts", len(chunk)),
				slog.String("error", err.Error()),
			)
			continue
		}

		for i, res := range results {
			acc := chunk[i]
			if res.Err != nil {
				readErrors++
				e.collector.RecordReadError()
				rerr := &ReadError{Endpoint: client.URL(), Address: res.Address, Err: res.Err}
				e.logger.Warn("reconciliation read failed", slog.String("error", rerr.Error()))
				continue
			}
			if acc.Reconcile(res.Nonce) {
				changed++
			}
		}
	}

	e.collector.RecordReconciliation()
	if e.cfg.Prometheus != nil {
		e.cfg.Prometheus.RecordReconciliation(readErrors)
	}
	e.logger.Info("reconciliation sweep finished",
		slog.Int("accounts", len(accounts)),
		slog.Int("adjusted", changed),
		slog.Int("read_errors", readErrors),
		slog.Duration("took", time.Since(start)),
	)
}

// Reconcile runs one sweep on demand, outside the periodic trigger.
func (e *Engine) Reconcile(ctx context.Context) {
	e.reconcile(ctx)
}
