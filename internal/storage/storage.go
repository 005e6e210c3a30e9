package storage

import (
	"context"

	ptypes "github.com/gateway-fm/transactioneer/pkg/types"
)

// Storage defines the persistence interface for engine run history.
type Storage interface {
	// Run lifecycle
	CreateRun(ctx context.Context, run *ptypes.RunSummary) (int64, error)
	CompleteRun(ctx context.Context, id int64, run *ptypes.RunSummary) error
	GetRun(ctx context.Context, id int64) (*ptypes.RunSummary, error)

	// History queries
	ListRuns(ctx context.Context, limit, offset int) (*PaginatedRuns, error)
	DeleteRun(ctx context.Context, id int64) error

	// Submission log bulk operations
	BulkInsertSubmissions(ctx context.Context, runID int64, records []ptypes.SubmissionRecord) error
	GetSubmissions(ctx context.Context, runID int64, limit, offset int) (*PaginatedSubmissions, error)
	GetSubmissionByHash(ctx context.Context, txHash string) (*ptypes.SubmissionRecord, error)

	// Lifecycle
	Close() error
}
