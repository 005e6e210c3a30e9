package account

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gateway-fm/transactioneer/internal/endpoint"
)

// InitializeNonces seeds every account's nonce from the chain in parallel,
// spreading reads across the pool. Each account is seeded exactly once;
// the semaphore bounds concurrent RPC calls. A failed read is logged and
// the account keeps its zero default; reconciliation corrects it later.
func InitializeNonces(ctx context.Context, pool *endpoint.Pool, accounts []*Account, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("initializing account nonces", slog.Int("count", len(accounts)))

	var wg sync.WaitGroup
	var readErrors atomic.Int64
	sem := make(chan struct{}, 32) // Limit concurrent RPC calls

	for i, acc := range accounts {
		wg.Add(1)
		go func(idx int, acc *Account) {
			defer wg.Done()
			sem <- struct{}{}        // Acquire semaphore
			defer func() { <-sem }() // Release semaphore

			nonce, err := pool.NextRead().GetConfirmedNonce(ctx, acc.Address.Hex())
			if err != nil {
				readErrors.Add(1)
				logger.Warn("nonce read failed, account starts at zero",
					slog.Int("account_idx", idx),
					slog.String("address", acc.Address.Hex()[:10]),
					slog.String("error", err.Error()),
				)
				return
			}
			acc.Initialize(nonce)
			if idx < 5 || idx%500 == 0 {
				logger.Debug("account nonce initialized",
					slog.Int("account_idx", idx),
					slog.String("address", acc.Address.Hex()[:10]),
					slog.Uint64("nonce", nonce),
				)
			}
		}(i, acc)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	logger.Info("account nonces initialized",
		slog.Int("count", len(accounts)),
		slog.Int64("read_errors", readErrors.Load()),
	)
	return nil
}
