package engine

import "fmt"

// ConflictError is a nonce-conflict rejection from an endpoint. Conflicts are
// the only retryable submission failure: the same signed bytes go to another
// endpoint, up to the attempt budget.
type ConflictError struct {
	Endpoint string
	Nonce    uint64
	Attempts int
	Err      error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("nonce %d conflicted on %s after %d attempt(s): %v",
		e.Nonce, e.Endpoint, e.Attempts, e.Err)
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// EndpointError is any non-conflict submission failure. It is terminal for
// the work item: hopping endpoints on transport failures would mask a
// systemic outage instead of surfacing it.
type EndpointError struct {
	Endpoint string
	Err      error
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("endpoint %s failed: %v", e.Endpoint, e.Err)
}

func (e *EndpointError) Unwrap() error {
	return e.Err
}

// ReadError is a failed nonce read during a reconciliation sweep. Non-fatal:
// the account keeps its previous local value and the sweep continues.
type ReadError struct {
	Endpoint string
	Address  string
	Err      error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("nonce read for %s on %s failed: %v", e.Address, e.Endpoint, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}
