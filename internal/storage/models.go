// Package storage provides persistence for engine run history.
package storage

import (
	ptypes "github.com/gateway-fm/transactioneer/pkg/types"
)

// PaginatedRuns is a page of run summaries.
type PaginatedRuns struct {
	Runs   []ptypes.RunSummary `json:"runs"`
	Total  int                 `json:"total"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

// PaginatedSubmissions is a page of submission records.
type PaginatedSubmissions struct {
	Submissions []ptypes.SubmissionRecord `json:"submissions"`
	Total       int                       `json:"total"`
	Limit       int                       `json:"limit"`
	Offset      int                       `json:"offset"`
}
