package account

import (
	"sync"
	"testing"
)

func TestReserve(t *testing.T) {
	acc, err := NewAccountFromHex(0, TestPrivateKeys[0])
	if err != nil {
		t.Fatalf("failed to create account: %v", err)
	}

	acc.Initialize(100)

	// Reserve should return current and increment
	if got := acc.Reserve(); got != 100 {
		t.Errorf("Reserve() = %d, want 100", got)
	}
	if got := acc.Reserve(); got != 101 {
		t.Errorf("Reserve() = %d, want 101", got)
	}
	if got := acc.Peek(); got != 102 {
		t.Errorf("Peek() = %d, want 102", got)
	}
}

func TestPeek(t *testing.T) {
	acc, err := NewAccountFromHex(0, TestPrivateKeys[0])
	if err != nil {
		t.Fatalf("failed to create account: %v", err)
	}

	acc.Initialize(50)

	// Peek should not increment
	if got := acc.Peek(); got != 50 {
		t.Errorf("Peek() = %d, want 50", got)
	}
	if got := acc.Peek(); got != 50 {
		t.Errorf("Peek() = %d, want 50 (should not change)", got)
	}
}

func TestInitializeFirstCallWins(t *testing.T) {
	acc, err := NewAccountFromHex(0, TestPrivateKeys[0])
	if err != nil {
		t.Fatalf("failed to create account: %v", err)
	}

	acc.Initialize(5)
	acc.Initialize(99) // ignored

	if got := acc.Peek(); got != 5 {
		t.Errorf("Peek() = %d, want 5 (second Initialize must be ignored)", got)
	}
}

func TestReconcileOverwritesBothDirections(t *testing.T) {
	acc, err := NewAccountFromHex(0, TestPrivateKeys[0])
	if err != nil {
		t.Fatalf("failed to create account: %v", err)
	}

	acc.Initialize(100)

	// Upward: chain ran ahead of us
	if changed := acc.Reconcile(120); !changed {
		t.Error("Reconcile(120) = false, want true")
	}
	if got := acc.Peek(); got != 120 {
		t.Errorf("after upward reconcile, Peek() = %d, want 120", got)
	}

	// Equal: no change
	if changed := acc.Reconcile(120); changed {
		t.Error("Reconcile(120) on equal value = true, want false")
	}

	// Downward: local counter ran ahead (failed sends left gaps)
	acc.Initialize(0) // no-op, already initialized
	for acc.Peek() < 110 {
		acc.Reconcile(110)
	}
	if changed := acc.Reconcile(108); !changed {
		t.Error("Reconcile(108) = false, want true")
	}
	if got := acc.Reserve(); got != 108 {
		t.Errorf("after downward reconcile, Reserve() = %d, want 108", got)
	}
}

func TestResyncNeverLowers(t *testing.T) {
	acc, err := NewAccountFromHex(0, TestPrivateKeys[0])
	if err != nil {
		t.Fatalf("failed to create account: %v", err)
	}

	acc.Initialize(100)

	acc.Resync(90)
	if got := acc.Peek(); got != 100 {
		t.Errorf("after Resync(90), Peek() = %d, want 100", got)
	}

	acc.Resync(150)
	if got := acc.Peek(); got != 150 {
		t.Errorf("after Resync(150), Peek() = %d, want 150", got)
	}
}

func TestReserveConcurrency(t *testing.T) {
	acc, err := NewAccountFromHex(0, TestPrivateKeys[0])
	if err != nil {
		t.Fatalf("failed to create account: %v", err)
	}

	acc.Initialize(0)

	// Concurrent reservations must produce every value exactly once.
	const numGoroutines = 200
	results := make([]uint64, numGoroutines)
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(idx int) {
			defer wg.Done()
			results[idx] = acc.Reserve()
		}(i)
	}

	wg.Wait()

	seen := make(map[uint64]bool, numGoroutines)
	for _, n := range results {
		if n >= numGoroutines {
			t.Errorf("Reserve() returned %d, want < %d", n, numGoroutines)
		}
		if seen[n] {
			t.Errorf("Reserve() returned %d twice", n)
		}
		seen[n] = true
	}

	if got := acc.Peek(); got != numGoroutines {
		t.Errorf("after %d concurrent Reserve(), Peek() = %d, want %d", numGoroutines, got, numGoroutines)
	}
}

func TestSeededReservationSequence(t *testing.T) {
	// Three accounts seeded at different chain nonces keep independent sequences.
	seeds := []uint64{5, 0, 12}
	accounts := make([]*Account, len(seeds))
	for i, seed := range seeds {
		acc, err := NewAccountFromHex(i, TestPrivateKeys[i])
		if err != nil {
			t.Fatalf("failed to create account %d: %v", i, err)
		}
		acc.Initialize(seed)
		accounts[i] = acc
	}

	for i, acc := range accounts {
		for j := uint64(0); j < 3; j++ {
			want := seeds[i] + j
			if got := acc.Reserve(); got != want {
				t.Errorf("account %d Reserve() = %d, want %d", i, got, want)
			}
		}
	}
}

func TestRingRoundRobin(t *testing.T) {
	accounts, err := LoadTestAccounts()
	if err != nil {
		t.Fatalf("failed to load test accounts: %v", err)
	}

	ring := NewRing(accounts)
	if ring.Size() != len(accounts) {
		t.Fatalf("Size() = %d, want %d", ring.Size(), len(accounts))
	}

	// Two full cycles visit each account exactly twice, in order.
	counts := make(map[int]int)
	for i := 0; i < 2*len(accounts); i++ {
		acc := ring.Next()
		if acc.Index != i%len(accounts) {
			t.Errorf("Next() #%d = account %d, want %d", i, acc.Index, i%len(accounts))
		}
		counts[acc.Index]++
	}
	for idx, n := range counts {
		if n != 2 {
			t.Errorf("account %d selected %d times, want 2", idx, n)
		}
	}
}

func TestLoadTestAccounts(t *testing.T) {
	accounts, err := LoadTestAccounts()
	if err != nil {
		t.Fatalf("LoadTestAccounts() error: %v", err)
	}
	if len(accounts) != len(TestPrivateKeys) {
		t.Fatalf("got %d accounts, want %d", len(accounts), len(TestPrivateKeys))
	}

	// Account 0 is the well-known Anvil/Hardhat address.
	want := "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	if got := accounts[0].Address.Hex(); got != want {
		t.Errorf("accounts[0].Address = %s, want %s", got, want)
	}
	if accounts[3].Index != 3 {
		t.Errorf("accounts[3].Index = %d, want 3", accounts[3].Index)
	}
}
