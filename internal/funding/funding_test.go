package funding

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/gateway-fm/transactioneer/internal/account"
	"github.com/gateway-fm/transactioneer/internal/queue"
	ptypes "github.com/gateway-fm/transactioneer/pkg/types"
)

// mockEnqueuer records batches and optionally caps how much it accepts.
type mockEnqueuer struct {
	items      []ptypes.WorkItem
	acceptUpTo int // 0 = accept everything
	err        error
}

var _ Enqueuer = (*mockEnqueuer)(nil)

func (m *mockEnqueuer) EnqueueBatch(items []ptypes.WorkItem) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	n := len(items)
	if m.acceptUpTo > 0 && n > m.acceptUpTo {
		n = m.acceptUpTo
	}
	m.items = append(m.items, items[:n]...)
	if n < len(items) {
		return n, queue.ErrQueueFull
	}
	return n, nil
}

func testAccounts(t *testing.T) []*account.Account {
	t.Helper()
	accounts, err := account.LoadTestAccounts()
	if err != nil {
		t.Fatalf("LoadTestAccounts() error: %v", err)
	}
	return accounts
}

func TestSplit(t *testing.T) {
	accounts := testAccounts(t)

	plan, err := Split(accounts, 3)
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}
	if got := len(plan.Funders()); got != 3 {
		t.Errorf("Funders() len = %d, want 3", got)
	}
	if got := len(plan.Targets()); got != len(accounts)-3 {
		t.Errorf("Targets() len = %d, want %d", got, len(accounts)-3)
	}

	// Funders and targets must not overlap.
	funderAddrs := make(map[string]bool)
	for _, f := range plan.Funders() {
		funderAddrs[f.Address.Hex()] = true
	}
	for _, target := range plan.Targets() {
		if funderAddrs[target.Address.Hex()] {
			t.Errorf("account %s is both funder and target", target.Address.Hex())
		}
	}
}

func TestSplit_Invalid(t *testing.T) {
	accounts := testAccounts(t)

	if _, err := Split(accounts, 0); err == nil {
		t.Error("Split() with zero funders should fail")
	}
	if _, err := Split(accounts, len(accounts)); err == nil {
		t.Error("Split() with no targets left should fail")
	}
}

func TestPlanItems(t *testing.T) {
	accounts := testAccounts(t)
	plan, err := Split(accounts, 2)
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}

	amount := big.NewInt(1_000_000_000_000_000) // 0.001 ETH
	items := plan.Items(amount)
	if len(items) != len(plan.Targets()) {
		t.Fatalf("Items() len = %d, want %d", len(items), len(plan.Targets()))
	}

	for i, item := range items {
		if item.Kind != ptypes.PayloadKindTransfer {
			t.Errorf("item %d kind = %s, want transfer", i, item.Kind)
		}
		if item.To != plan.Targets()[i].Address.Hex() {
			t.Errorf("item %d to = %s, want %s", i, item.To, plan.Targets()[i].Address.Hex())
		}
		if item.Value != amount.String() {
			t.Errorf("item %d value = %s, want %s", i, item.Value, amount.String())
		}
	}
}

func TestProducerRun(t *testing.T) {
	accounts := testAccounts(t)
	plan, err := Split(accounts, 2)
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}

	enq := &mockEnqueuer{}
	producer, err := New(Config{
		Plan:     plan,
		Enqueuer: enq,
		Amount:   big.NewInt(1000),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	const rounds = 3
	total, err := producer.Run(context.Background(), rounds)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	want := rounds * len(plan.Targets())
	if total != want {
		t.Errorf("Run() total = %d, want %d", total, want)
	}
	if len(enq.items) != want {
		t.Errorf("enqueued %d items, want %d", len(enq.items), want)
	}
}

func TestProducerRun_QueueRejects(t *testing.T) {
	accounts := testAccounts(t)
	plan, err := Split(accounts, 2)
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}

	enq := &mockEnqueuer{acceptUpTo: 5}
	producer, err := New(Config{
		Plan:     plan,
		Enqueuer: enq,
		Amount:   big.NewInt(1000),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	total, err := producer.Run(context.Background(), 2)
	if err == nil {
		t.Fatal("Run() expected error when queue rejects items")
	}
	if total != 5 {
		t.Errorf("Run() total = %d, want 5", total)
	}
}

func TestProducerRun_ContextCanceled(t *testing.T) {
	accounts := testAccounts(t)
	plan, err := Split(accounts, 2)
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}

	producer, err := New(Config{
		Plan:     plan,
		Enqueuer: &mockEnqueuer{},
		Amount:   big.NewInt(1000),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	total, err := producer.Run(ctx, 10)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if total != 0 {
		t.Errorf("Run() total = %d, want 0", total)
	}
}

func TestNewValidation(t *testing.T) {
	accounts := testAccounts(t)
	plan, _ := Split(accounts, 2)

	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "missing plan", cfg: Config{Enqueuer: &mockEnqueuer{}, Amount: big.NewInt(1)}},
		{name: "missing enqueuer", cfg: Config{Plan: plan, Amount: big.NewInt(1)}},
		{name: "nil amount", cfg: Config{Plan: plan, Enqueuer: &mockEnqueuer{}}},
		{name: "zero amount", cfg: Config{Plan: plan, Enqueuer: &mockEnqueuer{}, Amount: big.NewInt(0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("New() expected error")
			}
		})
	}
}
