// Package ingest loads tenant CSV extracts into the warehouse tables the
// analytics cards read, then drops the tenant's cached card results.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/txn2/bi-proxy/pkg/metrics"
)

// Errors returned by the service.
var (
	ErrUnknownDataset = errors.New("unknown dataset")
	ErrTenantRequired = errors.New("tenant is required")
	ErrNoObjectSource = errors.New("object storage is not configured")
	ErrObjectLocation = errors.New("bucket and key are required")
	ErrEmptyUpload    = errors.New("csv contains no rows")
)

// Job statuses.
const (
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
)

// Job sources.
const (
	SourceUpload = "upload"
	SourceS3     = "s3"
)

// Job records one ingestion attempt.
type Job struct {
	ID           string    `json:"id"`
	Tenant       string    `json:"tenant"`
	Dataset      string    `json:"dataset"`
	Source       string    `json:"source"`
	Object       string    `json:"object,omitempty"`
	RowsReceived int       `json:"rows_received"`
	RowsUpserted int64     `json:"rows_upserted"`
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Store persists batches and job records.
type Store interface {
	Upsert(ctx context.Context, b *Batch) (int64, error)
	RecordJob(ctx context.Context, job *Job) error
	ListJobs(ctx context.Context, tenant string, limit int) ([]Job, error)
}

// Invalidator drops a tenant's cached results after new data lands.
type Invalidator interface {
	InvalidateTenant(ctx context.Context, tenant string) (int, error)
}

// ObjectSource opens CSV objects from storage.
type ObjectSource interface {
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// Report summarizes a successful ingestion.
type Report struct {
	JobID       string `json:"job_id"`
	Dataset     string `json:"dataset"`
	Tenant      string `json:"tenant"`
	Rows        int    `json:"rows"`
	Upserted    int64  `json:"upserted"`
	Invalidated int    `json:"cache_entries_invalidated"`
}

// Option configures a Service.
type Option func(*Service)

// WithInvalidator invalidates the tenant's cache after each load.
func WithInvalidator(inv Invalidator) Option {
	return func(s *Service) { s.invalidator = inv }
}

// WithObjectSource enables IngestObject.
func WithObjectSource(src ObjectSource) Option {
	return func(s *Service) { s.objects = src }
}

// WithMetrics records ingested row counts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// Service validates and loads CSV uploads.
type Service struct {
	store       Store
	invalidator Invalidator
	objects     ObjectSource
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewService creates an ingestion service.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest loads a CSV from r into the dataset's table for the tenant.
func (s *Service) Ingest(ctx context.Context, dataset, tenant string, r io.Reader) (*Report, error) {
	return s.run(ctx, dataset, tenant, SourceUpload, "", func() (io.ReadCloser, error) {
		return io.NopCloser(r), nil
	})
}

// IngestObject loads a CSV object from storage.
func (s *Service) IngestObject(ctx context.Context, dataset, tenant, bucket, key string) (*Report, error) {
	if s.objects == nil {
		return nil, ErrNoObjectSource
	}
	if bucket == "" || key == "" {
		return nil, ErrObjectLocation
	}
	return s.run(ctx, dataset, tenant, SourceS3, bucket+"/"+key, func() (io.ReadCloser, error) {
		return s.objects.Open(ctx, bucket, key)
	})
}

// Jobs lists recent ingestion jobs for a tenant, newest first.
func (s *Service) Jobs(ctx context.Context, tenant string, limit int) ([]Job, error) {
	jobs, err := s.store.ListJobs(ctx, tenant, limit)
	if err != nil {
		return nil, fmt.Errorf("listing ingest jobs: %w", err)
	}
	return jobs, nil
}

func (s *Service) run(ctx context.Context, dataset, tenant, source, object string, open func() (io.ReadCloser, error)) (*Report, error) {
	ds, ok := Lookup(dataset)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDataset, dataset)
	}
	if tenant == "" {
		return nil, ErrTenantRequired
	}

	job := &Job{
		ID:        uuid.NewString(),
		Tenant:    tenant,
		Dataset:   ds.Name,
		Source:    source,
		Object:    object,
		StartedAt: s.now(),
	}
	logger := slog.With("job_id", job.ID, "dataset", ds.Name, "tenant", tenant, "source", source)

	report, err := s.load(ctx, ds, job, open)
	job.FinishedAt = s.now()
	job.Status = JobSucceeded
	if err != nil {
		job.Status = JobFailed
		job.Error = err.Error()
	}
	if recErr := s.store.RecordJob(ctx, job); recErr != nil {
		logger.Warn("failed to record ingest job", "error", recErr)
	}
	if err != nil {
		logger.Warn("ingest failed", "error", err)
		return nil, err
	}

	if s.invalidator != nil {
		n, invErr := s.invalidator.InvalidateTenant(ctx, tenant)
		if invErr != nil {
			logger.Warn("failed to invalidate tenant cache after ingest", "error", invErr)
		}
		report.Invalidated = n
	}

	logger.Info("ingest complete", "rows", report.Rows, "upserted", report.Upserted)
	return report, nil
}

func (s *Service) load(ctx context.Context, ds Dataset, job *Job, open func() (io.ReadCloser, error)) (*Report, error) {
	rc, err := open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", job.Source, err)
	}
	defer rc.Close() //nolint:errcheck // read-only

	batch, err := Parse(rc, ds, job.Tenant)
	if err != nil {
		return nil, err
	}
	job.RowsReceived = len(batch.Rows)
	if len(batch.Rows) == 0 {
		return nil, ErrEmptyUpload
	}

	n, err := s.store.Upsert(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("upserting %s rows: %w", ds.Name, err)
	}
	job.RowsUpserted = n
	s.metrics.ObserveIngest(ds.Name, n)

	return &Report{
		JobID:    job.ID,
		Dataset:  ds.Name,
		Tenant:   job.Tenant,
		Rows:     len(batch.Rows),
		Upserted: n,
	}, nil
}
