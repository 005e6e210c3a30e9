// Package funding produces value-transfer work that seeds target accounts
// from a set of funder accounts.
package funding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/gateway-fm/transactioneer/internal/account"
	ptypes "github.com/gateway-fm/transactioneer/pkg/types"
)

// ErrQueueRejected is returned when the engine stops accepting work before
// the full schedule was enqueued.
var ErrQueueRejected = errors.New("funding: queue rejected remaining items")

// Enqueuer accepts batches of work items. Satisfied by the engine.
type Enqueuer interface {
	EnqueueBatch(items []ptypes.WorkItem) (int, error)
}

// Plan is a split of an account pool into funders and targets. The engine
// runs over the funders; the plan's items pay the targets.
type Plan struct {
	funders []*account.Account
	targets []*account.Account
}

// Split divides accounts into the first numFunders funders and the remaining
// targets. Both sides must be non-empty.
func Split(accounts []*account.Account, numFunders int) (*Plan, error) {
	if numFunders <= 0 {
		return nil, fmt.Errorf("funders must be positive, got %d", numFunders)
	}
	if numFunders >= len(accounts) {
		return nil, fmt.Errorf("need at least one target: %d funders, %d accounts", numFunders, len(accounts))
	}
	return &Plan{
		funders: accounts[:numFunders],
		targets: accounts[numFunders:],
	}, nil
}

// Funders returns the accounts the engine should send from.
func (p *Plan) Funders() []*account.Account { return p.funders }

// Targets returns the accounts receiving transfers.
func (p *Plan) Targets() []*account.Account { return p.targets }

// Items builds one round of transfer work: a single payment of amount wei to
// every target, in target order.
func (p *Plan) Items(amount *big.Int) []ptypes.WorkItem {
	items := make([]ptypes.WorkItem, 0, len(p.targets))
	for _, target := range p.targets {
		items = append(items, ptypes.WorkItem{
			Kind:  ptypes.PayloadKindTransfer,
			To:    target.Address.Hex(),
			Value: amount.String(),
		})
	}
	return items
}

// Producer enqueues funding rounds through the engine.
type Producer struct {
	plan     *Plan
	enqueuer Enqueuer
	amount   *big.Int
	logger   *slog.Logger
}

// Config for creating a Producer.
type Config struct {
	Plan     *Plan
	Enqueuer Enqueuer
	Amount   *big.Int // Wei per transfer
	Logger   *slog.Logger
}

// New creates a new funding Producer.
func New(cfg Config) (*Producer, error) {
	if cfg.Plan == nil {
		return nil, fmt.Errorf("plan is required")
	}
	if cfg.Enqueuer == nil {
		return nil, fmt.Errorf("enqueuer is required")
	}
	if cfg.Amount == nil || cfg.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Producer{
		plan:     cfg.Plan,
		enqueuer: cfg.Enqueuer,
		amount:   cfg.Amount,
		logger:   logger,
	}, nil
}

// Run enqueues the given number of funding rounds. Each round pays every
// target once. It returns the number of items accepted; a short count comes
// with ErrQueueRejected or the underlying enqueue error.
func (p *Producer) Run(ctx context.Context, rounds int) (int, error) {
	total := 0
	for round := 0; round < rounds; round++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		items := p.plan.Items(p.amount)
		accepted, err := p.enqueuer.EnqueueBatch(items)
		total += accepted
		if err != nil {
			return total, fmt.Errorf("funding round %d: %w", round+1, err)
		}
		if accepted < len(items) {
			return total, ErrQueueRejected
		}

		p.logger.Debug("funding round enqueued",
			slog.Int("round", round+1),
			slog.Int("targets", len(items)),
		)
	}

	p.logger.Info("funding schedule enqueued",
		slog.Int("rounds", rounds),
		slog.Int("targets", len(p.plan.targets)),
		slog.Int("items", total),
	)
	return total, nil
}
