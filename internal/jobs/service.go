package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"jobtrack/internal/cache"
	"jobtrack/internal/metrics"
	"jobtrack/internal/model"
	"jobtrack/internal/pagination"
	"jobtrack/internal/store"
)

// maxNameLen matches the storage field limit on jobs.name.
const maxNameLen = 255

// Store is the slice of the storage layer the service consumes. *store.Store
// satisfies it; tests substitute an in-memory fake.
type Store interface {
	CreateJob(ctx context.Context, name string) (store.Job, error)
	SetStatus(ctx context.Context, id int64, newStatus model.Status, now time.Time) (store.Job, bool, error)
	GetJob(ctx context.Context, id int64) (store.Job, error)
	ListJobs(ctx context.Context, q string, afterID int64, limit int) ([]store.Job, error)
	ListStatuses(ctx context.Context, jobID int64) ([]store.JobStatus, error)
	DeleteJob(ctx context.Context, id int64) error
}

// TTLs bounds how long each read shape may serve stale data. Detail pages
// change less often than list membership, hence the asymmetry.
type TTLs struct {
	List    time.Duration
	Detail  time.Duration
	History time.Duration
}

func DefaultTTLs() TTLs {
	return TTLs{
		List:    30 * time.Second,
		Detail:  120 * time.Second,
		History: 60 * time.Second,
	}
}

// Service is the write path (status engine over the store) plus the
// cache-aside read façade. All cache traffic happens outside store
// transactions and is best effort: failures are logged, never surfaced.
type Service struct {
	store  Store
	cache  cache.Client
	epochs *cache.Epochs
	ttl    TTLs
	log    *slog.Logger
}

func NewService(st Store, c cache.Client, epochs *cache.Epochs, ttl TTLs, log *slog.Logger) *Service {
	return &Service{store: st, cache: c, epochs: epochs, ttl: ttl, log: log}
}

// Cache keys embed a namespace tag, the current epoch, and every
// request-distinguishing parameter.

func listKey(epoch int64, q, cursor string, size int) string {
	return fmt.Sprintf("jobs:list:v%d:q=%s:cursor=%s:size=%d", epoch, strings.ToLower(q), cursor, size)
}

func detailKey(id, epoch int64) string {
	return fmt.Sprintf("job:%d:v%d", id, epoch)
}

func historyKey(id, epoch int64) string {
	return fmt.Sprintf("job:%d:history:v%d", id, epoch)
}

// Create validates the name and creates a job with initial PENDING status.
// A new row changes every list page's membership, so the epoch bump is the
// only invalidation broad enough.
func (s *Service) Create(ctx context.Context, name string) (model.JobDetail, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.JobDetail{}, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if len(name) > maxNameLen {
		return model.JobDetail{}, &ValidationError{Field: "name", Reason: fmt.Sprintf("must be at most %d characters", maxNameLen)}
	}

	job, err := s.store.CreateJob(ctx, name)
	if err != nil {
		return model.JobDetail{}, fmt.Errorf("create job: %w", err)
	}

	s.epochs.Advance(ctx)
	return detail(job), nil
}

// SetStatus applies a status transition and returns the refreshed job.
// Transitions to the current status are idempotent no-ops.
func (s *Service) SetStatus(ctx context.Context, id int64, rawStatus string) (model.JobDetail, error) {
	status, ok := model.ParseStatus(rawStatus)
	if !ok {
		return model.JobDetail{}, &ValidationError{Field: "statusType", Reason: fmt.Sprintf("unknown status %q", rawStatus)}
	}

	job, changed, err := s.store.SetStatus(ctx, id, status, time.Now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.JobDetail{}, err
		}
		if errors.Is(err, store.ErrInvalidTransition) {
			return model.JobDetail{}, &ValidationError{Field: "statusType", Reason: "transition not allowed"}
		}
		return model.JobDetail{}, fmt.Errorf("set status: %w", err)
	}
	if changed {
		metrics.RecordStatusTransition(string(status))
	}

	s.invalidateJob(ctx, id)
	return detail(job), nil
}

// Delete removes a job and, via cascade, its history.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeleteJob(ctx, id); err != nil {
		return err
	}
	s.invalidateJob(ctx, id)
	return nil
}

// List serves one page of jobs cache-aside. The returned bytes are the
// verbatim wire body; on a hit the store is not touched.
func (s *Service) List(ctx context.Context, q, cursor string, pageSize int) ([]byte, error) {
	afterID, err := pagination.DecodeCursor(cursor)
	if err != nil {
		return nil, &ValidationError{Field: "cursor", Reason: err.Error()}
	}
	size := pagination.ClampPageSize(pageSize)

	epoch := s.epochs.Current(ctx)
	key := listKey(epoch, q, cursor, size)
	if payload := s.cacheGet(ctx, key, "list"); payload != nil {
		return payload, nil
	}

	// Fetch one extra row to learn whether another page exists.
	rows, err := s.store.ListJobs(ctx, q, afterID, size+1)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	var next string
	if len(rows) > size {
		rows = rows[:size]
		next = pagination.EncodeCursor(rows[len(rows)-1].ID)
	}

	resp := model.ListJobsResponse{
		Success:    true,
		Jobs:       make([]model.JobSummary, 0, len(rows)),
		NextCursor: next,
	}
	for _, row := range rows {
		resp.Jobs = append(resp.Jobs, summary(row))
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode list: %w", err)
	}
	s.cacheSet(ctx, key, payload, s.ttl.List)
	return payload, nil
}

// Get serves a job detail cache-aside.
func (s *Service) Get(ctx context.Context, id int64) ([]byte, error) {
	epoch := s.epochs.Current(ctx)
	key := detailKey(id, epoch)
	if payload := s.cacheGet(ctx, key, "detail"); payload != nil {
		return payload, nil
	}

	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(model.JobResponse{Success: true, Job: detail(job)})
	if err != nil {
		return nil, fmt.Errorf("encode detail: %w", err)
	}
	s.cacheSet(ctx, key, payload, s.ttl.Detail)
	return payload, nil
}

// History serves a job's detail plus its full ordered history cache-aside.
// A deleted job yields ErrNotFound, never an empty history.
func (s *Service) History(ctx context.Context, id int64) ([]byte, error) {
	epoch := s.epochs.Current(ctx)
	key := historyKey(id, epoch)
	if payload := s.cacheGet(ctx, key, "history"); payload != nil {
		return payload, nil
	}

	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	statuses, err := s.store.ListStatuses(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}

	resp := model.JobHistoryResponse{
		Success: true,
		Job:     detail(job),
		History: make([]model.StatusEntry, 0, len(statuses)),
	}
	for _, st := range statuses {
		resp.History = append(resp.History, model.StatusEntry{
			ID:         st.ID,
			JobID:      st.JobID,
			StatusType: st.StatusType,
			Timestamp:  st.Timestamp,
		})
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode history: %w", err)
	}
	s.cacheSet(ctx, key, payload, s.ttl.History)
	return payload, nil
}

// invalidateJob deletes the job's per-id entries under the epoch in effect
// before the bump, then advances the epoch. Runs after the store commit,
// outside any lock.
func (s *Service) invalidateJob(ctx context.Context, id int64) {
	epoch := s.epochs.Current(ctx)
	s.cacheDel(ctx, detailKey(id, epoch), historyKey(id, epoch))
	s.epochs.Advance(ctx)
}

func (s *Service) cacheGet(ctx context.Context, key, shape string) []byte {
	payload, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.log.Warn("cache get failed", "key", key, "err", err)
		}
		metrics.RecordCacheMiss(shape)
		return nil
	}
	metrics.RecordCacheHit(shape)
	return payload
}

func (s *Service) cacheSet(ctx context.Context, key string, payload []byte, ttl time.Duration) {
	if err := s.cache.Set(ctx, key, payload, ttl); err != nil {
		s.log.Warn("cache set failed", "key", key, "err", err)
	}
}

func (s *Service) cacheDel(ctx context.Context, keys ...string) {
	if err := s.cache.Del(ctx, keys...); err != nil {
		s.log.Warn("cache delete failed", "keys", keys, "err", err)
	}
}

func summary(j store.Job) model.JobSummary {
	return model.JobSummary{
		ID:        j.ID,
		Name:      j.Name,
		CreatedAt: j.CreatedAt,
		CurrentStatus: model.CurrentStatus{
			StatusType: j.CurrentStatusType,
			Timestamp:  j.CurrentStatusTimestamp,
		},
	}
}

func detail(j store.Job) model.JobDetail {
	return model.JobDetail{
		ID:        j.ID,
		Name:      j.Name,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
		CurrentStatus: model.CurrentStatus{
			StatusType: j.CurrentStatusType,
			Timestamp:  j.CurrentStatusTimestamp,
		},
	}
}
