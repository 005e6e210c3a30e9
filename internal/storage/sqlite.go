package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	ptypes "github.com/gateway-fm/transactioneer/pkg/types"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL mode for better concurrent performance
	dsn := fmt.Sprintf("%s?_journal=WAL&_sync=NORMAL&_cache_size=10000&_foreign_keys=ON", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLiteStorage{db: db}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

func (s *SQLiteStorage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		attempted INTEGER DEFAULT 0,
		succeeded INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		avg_rate REAL DEFAULT 0,
		endpoints INTEGER DEFAULT 0,
		accounts INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);

	CREATE TABLE IF NOT EXISTS submissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL,
		account_index INTEGER NOT NULL,
		nonce INTEGER NOT NULL,
		tx_hash TEXT,
		status TEXT NOT NULL,
		reason TEXT,
		attempts INTEGER DEFAULT 0,
		submitted_at DATETIME NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_submissions_run ON submissions(run_id);
	CREATE INDEX IF NOT EXISTS idx_submissions_hash ON submissions(tx_hash);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// CreateRun inserts a new run record and returns its ID.
func (s *SQLiteStorage) CreateRun(ctx context.Context, run *ptypes.RunSummary) (int64, error) {
	startedAt := run.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (started_at, endpoints, accounts)
		VALUES (?, ?, ?)
	`, startedAt, run.Endpoints, run.Accounts)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// CompleteRun records a run's final counters.
func (s *SQLiteStorage) CompleteRun(ctx context.Context, id int64, run *ptypes.RunSummary) error {
	finishedAt := time.Now()
	if run.FinishedAt != nil {
		finishedAt = *run.FinishedAt
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET
			finished_at = ?,
			attempted = ?,
			succeeded = ?,
			failed = ?,
			avg_rate = ?
		WHERE id = ?
	`, finishedAt, run.Attempted, run.Succeeded, run.Failed, run.AvgRate, id)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("run not found: %d", id)
	}
	return nil
}

// GetRun retrieves a single run by ID. Returns nil when not found.
func (s *SQLiteStorage) GetRun(ctx context.Context, id int64) (*ptypes.RunSummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, attempted, succeeded, failed, avg_rate, endpoints, accounts
		FROM runs WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns a paginated list of runs, newest first.
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit, offset int) (*PaginatedRuns, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&total); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, attempted, succeeded, failed, avg_rate, endpoints, accounts
		FROM runs
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []ptypes.RunSummary
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &PaginatedRuns{
		Runs:   runs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}, nil
}

// DeleteRun deletes a run and its submissions.
func (s *SQLiteStorage) DeleteRun(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id)
	return err
}

// BulkInsertSubmissions inserts submission records in a single transaction.
// One commit for the whole batch keeps the fsync cost to a single write, which
// matters when a run produces hundreds of thousands of records.
func (s *SQLiteStorage) BulkInsertSubmissions(ctx context.Context, runID int64, records []ptypes.SubmissionRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO submissions (run_id, account_index, nonce, tx_hash, status, reason, attempts, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, err := stmt.ExecContext(ctx, runID, rec.AccountIndex, rec.Nonce,
			nullString(rec.TxHash), string(rec.Status), nullString(string(rec.Reason)),
			rec.Attempts, rec.SubmittedAt)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetSubmissions retrieves paginated submission records for a run.
func (s *SQLiteStorage) GetSubmissions(ctx context.Context, runID int64, limit, offset int) (*PaginatedSubmissions, error) {
	var total int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM submissions WHERE run_id = ?", runID).Scan(&total)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, account_index, nonce, tx_hash, status, reason, attempts, submitted_at
		FROM submissions
		WHERE run_id = ?
		ORDER BY submitted_at, id
		LIMIT ? OFFSET ?
	`, runID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ptypes.SubmissionRecord
	for rows.Next() {
		rec, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &PaginatedSubmissions{
		Submissions: records,
		Total:       total,
		Limit:       limit,
		Offset:      offset,
	}, nil
}

// GetSubmissionByHash retrieves one submission by transaction hash. Returns
// nil when not found.
func (s *SQLiteStorage) GetSubmissionByHash(ctx context.Context, txHash string) (*ptypes.SubmissionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, account_index, nonce, tx_hash, status, reason, attempts, submitted_at
		FROM submissions
		WHERE tx_hash = ?
	`, txHash)

	rec, err := scanSubmission(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*ptypes.RunSummary, error) {
	var run ptypes.RunSummary
	var finishedAt sql.NullTime

	err := row.Scan(&run.ID, &run.StartedAt, &finishedAt,
		&run.Attempted, &run.Succeeded, &run.Failed, &run.AvgRate,
		&run.Endpoints, &run.Accounts)
	if err != nil {
		return nil, err
	}

	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	return &run, nil
}

func scanSubmission(row scanner) (*ptypes.SubmissionRecord, error) {
	var rec ptypes.SubmissionRecord
	var txHash, reason sql.NullString
	var status string

	err := row.Scan(&rec.RunID, &rec.AccountIndex, &rec.Nonce, &txHash,
		&status, &reason, &rec.Attempts, &rec.SubmittedAt)
	if err != nil {
		return nil, err
	}

	rec.Status = ptypes.SubmitStatus(status)
	if txHash.Valid {
		rec.TxHash = txHash.String
	}
	if reason.Valid {
		rec.Reason = ptypes.FailReason(reason.String)
	}
	return &rec, nil
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}
