// Package types defines public API types shared between the engine,
// the HTTP transport, and external clients.
package types

import "time"

// PayloadKind identifies how a work item's transaction is built.
type PayloadKind string

const (
	// PayloadKindCall is a call to the target contract method.
	PayloadKindCall PayloadKind = "contract_call"
	// PayloadKindTransfer is a plain value transfer.
	PayloadKindTransfer PayloadKind = "transfer"
)

// WorkItem is one transaction's worth of work. It carries the payload only;
// the sending account, nonce, and endpoint are assigned at submission time.
type WorkItem struct {
	// Kind selects the builder. Empty defaults to PayloadKindCall.
	Kind PayloadKind `json:"kind,omitempty"`

	// Args are the target method arguments, for contract calls.
	Args []any `json:"args,omitempty"`

	// To is the recipient address, for transfers.
	To string `json:"to,omitempty"`

	// Value is the transfer amount in wei, as a decimal string.
	Value string `json:"value,omitempty"`
}

// SubmitStatus is the terminal state of a work item.
type SubmitStatus string

const (
	SubmitSucceeded SubmitStatus = "succeeded"
	SubmitFailed    SubmitStatus = "failed"
)

// FailReason classifies why a work item failed.
type FailReason string

const (
	// FailReasonBuild: the payload could not be turned into a signed
	// transaction. Never reaches the wire.
	FailReasonBuild FailReason = "build"
	// FailReasonConflict: every allowed attempt hit a nonce conflict.
	FailReasonConflict FailReason = "conflict"
	// FailReasonEndpoint: an endpoint rejected or failed the submission for
	// a non-conflict reason. Not retried.
	FailReasonEndpoint FailReason = "endpoint"
	// FailReasonCanceled: the context ended before submission finished.
	FailReasonCanceled FailReason = "canceled"
)

// EngineState describes the submission engine's lifecycle.
type EngineState string

const (
	EngineIdle     EngineState = "idle"
	EngineRunning  EngineState = "running"
	EngineStopping EngineState = "stopping"
	EngineStopped  EngineState = "stopped"
)

// Stats is a point-in-time snapshot of engine counters.
type Stats struct {
	State           EngineState           `json:"state"`
	Attempted       uint64                `json:"attempted"`
	Succeeded       uint64                `json:"succeeded"`
	Failed          uint64                `json:"failed"`
	FailedByReason  map[FailReason]uint64 `json:"failedByReason,omitempty"`
	ConflictRetries uint64                `json:"conflictRetries"`
	Reconciliations uint64                `json:"reconciliations"`
	QueueDepth      int                   `json:"queueDepth"`
	Rate            float64               `json:"rate"` // submissions/sec, rolling window
	Elapsed         float64               `json:"elapsedSeconds"`
}

// RunSummary is one persisted engine run.
type RunSummary struct {
	ID         int64      `json:"id"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Attempted  uint64     `json:"attempted"`
	Succeeded  uint64     `json:"succeeded"`
	Failed     uint64     `json:"failed"`
	AvgRate    float64    `json:"avgRate"`
	Endpoints  int        `json:"endpoints"`
	Accounts   int        `json:"accounts"`
}

// SubmissionRecord is one persisted submission outcome.
type SubmissionRecord struct {
	RunID        int64        `json:"runId"`
	AccountIndex int          `json:"accountIndex"`
	Nonce        uint64       `json:"nonce"`
	TxHash       string       `json:"txHash,omitempty"`
	Status       SubmitStatus `json:"status"`
	Reason       FailReason   `json:"reason,omitempty"`
	Attempts     int          `json:"attempts"`
	SubmittedAt  time.Time    `json:"submittedAt"`
}
