// Package postgres provides PostgreSQL storage for CSV ingestion.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/txn2/bi-proxy/pkg/ingest"
)

const (
	jobsTable = "ingest_jobs"

	defaultRowsPerStatement = 500
	defaultJobLimit         = 50
	maxJobLimit             = 1000
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var jobColumns = []string{
	"id", "tenant_id", "dataset", "source", "object", "rows_received",
	"rows_upserted", "status", "error_message", "started_at", "finished_at",
}

// Store implements ingest.Store using PostgreSQL.
type Store struct {
	db               *sql.DB
	rowsPerStatement int
}

var _ ingest.Store = (*Store)(nil)

// Config configures the store.
type Config struct {
	// RowsPerStatement bounds the rows in one INSERT. Postgres caps bind
	// parameters at 65535.
	RowsPerStatement int
}

// New creates a store.
func New(db *sql.DB, cfg Config) *Store {
	if cfg.RowsPerStatement <= 0 {
		cfg.RowsPerStatement = defaultRowsPerStatement
	}
	return &Store{db: db, rowsPerStatement: cfg.RowsPerStatement}
}

// Upsert writes the batch in one transaction, updating rows that share the
// dataset's conflict key.
func (s *Store) Upsert(ctx context.Context, b *ingest.Batch) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	suffix := conflictClause(b.Dataset)
	var total int64
	for start := 0; start < len(b.Rows); start += s.rowsPerStatement {
		end := min(start+s.rowsPerStatement, len(b.Rows))

		qb := psq.Insert(b.Dataset.Table).Columns(b.Dataset.TableColumns()...)
		for _, row := range b.Rows[start:end] {
			qb = qb.Values(row...)
		}
		query, args, err := qb.Suffix(suffix).ToSql()
		if err != nil {
			return 0, fmt.Errorf("building upsert: %w", err)
		}

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("upserting into %s: %w", b.Dataset.Table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("reading affected rows: %w", err)
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing upsert: %w", err)
	}
	return total, nil
}

func conflictClause(ds ingest.Dataset) string {
	sets := make([]string, 0, len(ds.Columns)+1)
	for _, c := range ds.UpdateColumns() {
		sets = append(sets, c+" = EXCLUDED."+c)
	}
	sets = append(sets, "updated_at = NOW()")
	return "ON CONFLICT (" + strings.Join(ds.ConflictKeys, ", ") + ") DO UPDATE SET " + strings.Join(sets, ", ")
}

// RecordJob inserts a job record.
func (s *Store) RecordJob(ctx context.Context, job *ingest.Job) error {
	query, args, err := psq.Insert(jobsTable).
		Columns(jobColumns...).
		Values(job.ID, job.Tenant, job.Dataset, job.Source, job.Object, job.RowsReceived,
			job.RowsUpserted, job.Status, job.Error, job.StartedAt, job.FinishedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("building job insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting ingest job: %w", err)
	}
	return nil
}

// ListJobs returns the tenant's most recent jobs, newest first. An empty
// tenant lists jobs for every tenant.
func (s *Store) ListJobs(ctx context.Context, tenant string, limit int) ([]ingest.Job, error) {
	if limit <= 0 {
		limit = defaultJobLimit
	}
	limit = min(limit, maxJobLimit)

	qb := psq.Select(jobColumns...).From(jobsTable).OrderBy("started_at DESC").Limit(uint64(limit)) //nolint:gosec // bounded above
	if tenant != "" {
		qb = qb.Where(sq.Eq{"tenant_id": tenant})
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building job query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying ingest jobs: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only

	jobs := []ingest.Job{}
	for rows.Next() {
		var j ingest.Job
		if err := rows.Scan(&j.ID, &j.Tenant, &j.Dataset, &j.Source, &j.Object, &j.RowsReceived,
			&j.RowsUpserted, &j.Status, &j.Error, &j.StartedAt, &j.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning ingest job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ingest jobs: %w", err)
	}
	return jobs, nil
}
