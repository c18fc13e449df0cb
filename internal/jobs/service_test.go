package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"jobtrack/internal/cache"
	"jobtrack/internal/model"
	"jobtrack/internal/pagination"
	"jobtrack/internal/store"
)

// fakeStore is an in-memory Store whose mutex stands in for the row lock.
type fakeStore struct {
	mu       sync.Mutex
	nextJob  int64
	nextStat int64
	jobs     map[int64]store.Job
	statuses map[int64][]store.JobStatus

	listCalls int
	getCalls  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:     map[int64]store.Job{},
		statuses: map[int64][]store.JobStatus{},
	}
}

func (f *fakeStore) CreateJob(_ context.Context, name string) (store.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now().UTC()
	f.nextJob++
	job := store.Job{
		ID:                     f.nextJob,
		Name:                   name,
		CreatedAt:              now,
		UpdatedAt:              now,
		CurrentStatusType:      model.StatusPending,
		CurrentStatusTimestamp: now,
	}
	f.jobs[job.ID] = job
	f.appendStatusLocked(job.ID, model.StatusPending, now)
	return job, nil
}

func (f *fakeStore) appendStatusLocked(jobID int64, status model.Status, ts time.Time) {
	f.nextStat++
	f.statuses[jobID] = append(f.statuses[jobID], store.JobStatus{
		ID:         f.nextStat,
		JobID:      jobID,
		StatusType: status,
		Timestamp:  ts,
	})
}

func (f *fakeStore) SetStatus(_ context.Context, id int64, newStatus model.Status, now time.Time) (store.Job, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	job, ok := f.jobs[id]
	if !ok {
		return store.Job{}, false, store.ErrNotFound
	}
	if job.CurrentStatusType == newStatus {
		return job, false, nil
	}
	if !model.CanTransition(job.CurrentStatusType, newStatus) {
		return store.Job{}, false, store.ErrInvalidTransition
	}

	f.appendStatusLocked(id, newStatus, now)
	job.CurrentStatusType = newStatus
	job.CurrentStatusTimestamp = now
	job.UpdatedAt = now
	f.jobs[id] = job
	return job, true, nil
}

func (f *fakeStore) GetJob(_ context.Context, id int64) (store.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.getCalls++
	job, ok := f.jobs[id]
	if !ok {
		return store.Job{}, store.ErrNotFound
	}
	return job, nil
}

func (f *fakeStore) ListJobs(_ context.Context, q string, afterID int64, limit int) ([]store.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listCalls++
	ids := make([]int64, 0, len(f.jobs))
	for id := range f.jobs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	prefix := strings.ToLower(q)
	var out []store.Job
	for _, id := range ids {
		if id <= afterID {
			continue
		}
		job := f.jobs[id]
		if prefix != "" && !strings.HasPrefix(strings.ToLower(job.Name), prefix) {
			continue
		}
		out = append(out, job)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) ListStatuses(_ context.Context, jobID int64) ([]store.JobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	statuses := append([]store.JobStatus(nil), f.statuses[jobID]...)
	sort.Slice(statuses, func(i, j int) bool {
		if !statuses[i].Timestamp.Equal(statuses[j].Timestamp) {
			return statuses[i].Timestamp.Before(statuses[j].Timestamp)
		}
		return statuses[i].ID < statuses[j].ID
	})
	return statuses, nil
}

func (f *fakeStore) DeleteJob(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.jobs[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.jobs, id)
	delete(f.statuses, id) // cascade
	return nil
}

// fakeCache is an in-memory cache.Client that logs operations in order.
type fakeCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ops  []string
	fail bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[string][]byte{}}
}

var errCacheDown = errors.New("cache down")

func (f *fakeCache) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errCacheDown
	}
	val, ok := f.data[key]
	if !ok {
		return nil, cache.ErrMiss
	}
	return val, nil
}

func (f *fakeCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errCacheDown
	}
	f.data[key] = value
	f.ops = append(f.ops, "set "+key)
	return nil
}

func (f *fakeCache) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errCacheDown
	}
	for _, k := range keys {
		delete(f.data, k)
		f.ops = append(f.ops, "del "+k)
	}
	return nil
}

func (f *fakeCache) Incr(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return 0, errCacheDown
	}
	n, _ := strconv.ParseInt(string(f.data[key]), 10, 64)
	n++
	f.data[key] = []byte(strconv.FormatInt(n, 10))
	f.ops = append(f.ops, "incr "+key)
	return n, nil
}

const epochKey = "jobs:cache:epoch"

func newTestService(st Store, fc *fakeCache) *Service {
	log := slog.New(slog.DiscardHandler)
	return NewService(st, fc, cache.NewEpochs(fc, epochKey, log), DefaultTTLs(), log)
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(newFakeStore(), newFakeCache())

	var verr *ValidationError
	if _, err := svc.Create(context.Background(), "   "); !errors.As(err, &verr) {
		t.Fatalf("Create with blank name error = %v, want ValidationError", err)
	}
	if _, err := svc.Create(context.Background(), strings.Repeat("x", 256)); !errors.As(err, &verr) {
		t.Fatalf("Create with oversized name error = %v, want ValidationError", err)
	}
}

func TestCreateStartsPending(t *testing.T) {
	svc := newTestService(newFakeStore(), newFakeCache())

	job, err := svc.Create(context.Background(), "encode video")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if job.CurrentStatus.StatusType != model.StatusPending {
		t.Fatalf("new job status = %q, want PENDING", job.CurrentStatus.StatusType)
	}
	if job.ID == 0 {
		t.Fatal("new job has no id")
	}
}

func TestSetStatusIdempotent(t *testing.T) {
	st := newFakeStore()
	svc := newTestService(st, newFakeCache())

	job, _ := svc.Create(context.Background(), "encode video")
	if _, err := svc.SetStatus(context.Background(), job.ID, "COMPLETED"); err != nil {
		t.Fatalf("first SetStatus error: %v", err)
	}
	refreshed, err := svc.SetStatus(context.Background(), job.ID, "COMPLETED")
	if err != nil {
		t.Fatalf("repeated SetStatus error: %v", err)
	}
	if refreshed.CurrentStatus.StatusType != model.StatusCompleted {
		t.Fatalf("status after repeat = %q, want COMPLETED", refreshed.CurrentStatus.StatusType)
	}

	// Exactly initial PENDING + one COMPLETED row; the repeat added nothing.
	if got := len(st.statuses[job.ID]); got != 2 {
		t.Fatalf("history rows = %d, want 2", got)
	}
}

func TestDenormalizedStatusMatchesLatestHistory(t *testing.T) {
	st := newFakeStore()
	svc := newTestService(st, newFakeCache())

	job, _ := svc.Create(context.Background(), "encode video")
	for _, s := range []string{"IN_PROGRESS", "FAILED", "IN_PROGRESS", "COMPLETED"} {
		if _, err := svc.SetStatus(context.Background(), job.ID, s); err != nil {
			t.Fatalf("SetStatus(%s) error: %v", s, err)
		}
	}

	statuses, _ := st.ListStatuses(context.Background(), job.ID)
	last := statuses[len(statuses)-1]
	current, _ := st.GetJob(context.Background(), job.ID)
	if current.CurrentStatusType != last.StatusType || !current.CurrentStatusTimestamp.Equal(last.Timestamp) {
		t.Fatalf("denormalized status (%s, %s) does not match latest history row (%s, %s)",
			current.CurrentStatusType, current.CurrentStatusTimestamp, last.StatusType, last.Timestamp)
	}
}

func TestSetStatusRejectsUnknownValue(t *testing.T) {
	svc := newTestService(newFakeStore(), newFakeCache())

	job, _ := svc.Create(context.Background(), "encode video")
	var verr *ValidationError
	if _, err := svc.SetStatus(context.Background(), job.ID, "DONE"); !errors.As(err, &verr) {
		t.Fatalf("SetStatus with unknown value error = %v, want ValidationError", err)
	}
	if _, err := svc.SetStatus(context.Background(), 9999, "COMPLETED"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SetStatus on missing job error = %v, want ErrNotFound", err)
	}
}

func TestConcurrentTransitionsSerialize(t *testing.T) {
	st := newFakeStore()
	svc := newTestService(st, newFakeCache())

	job, _ := svc.Create(context.Background(), "encode video")

	var wg sync.WaitGroup
	for _, s := range []string{"IN_PROGRESS", "COMPLETED"} {
		wg.Add(1)
		go func(status string) {
			defer wg.Done()
			if _, err := svc.SetStatus(context.Background(), job.ID, status); err != nil {
				t.Errorf("SetStatus(%s) error: %v", status, err)
			}
		}(s)
	}
	wg.Wait()

	statuses, _ := st.ListStatuses(context.Background(), job.ID)
	if got := len(statuses); got != 3 {
		t.Fatalf("history rows = %d, want 3 (initial + both transitions)", got)
	}
	last := statuses[len(statuses)-1]
	current, _ := st.GetJob(context.Background(), job.ID)
	if current.CurrentStatusType != last.StatusType {
		t.Fatalf("denormalized status %q does not match serialization order (last row %q)",
			current.CurrentStatusType, last.StatusType)
	}
}

func TestDetailReadIsCached(t *testing.T) {
	st := newFakeStore()
	fc := newFakeCache()
	svc := newTestService(st, fc)

	job, _ := svc.Create(context.Background(), "encode video")
	if _, err := svc.SetStatus(context.Background(), job.ID, "COMPLETED"); err != nil {
		t.Fatalf("SetStatus error: %v", err)
	}

	first, err := svc.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("first Get error: %v", err)
	}
	var resp model.JobResponse
	if err := json.Unmarshal(first, &resp); err != nil {
		t.Fatalf("unmarshal detail: %v", err)
	}
	if resp.Job.CurrentStatus.StatusType != model.StatusCompleted {
		t.Fatalf("detail status = %q, want COMPLETED", resp.Job.CurrentStatus.StatusType)
	}

	callsAfterFirst := st.getCalls
	second, err := svc.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("second Get error: %v", err)
	}
	if st.getCalls != callsAfterFirst {
		t.Fatal("second detail read hit the store instead of the cache")
	}
	if string(first) != string(second) {
		t.Fatal("cached payload differs from the fresh read")
	}
}

func TestListPageInvalidatedByWrite(t *testing.T) {
	st := newFakeStore()
	fc := newFakeCache()
	svc := newTestService(st, fc)

	job, _ := svc.Create(context.Background(), "encode video")

	if _, err := svc.List(context.Background(), "", "", 0); err != nil {
		t.Fatalf("first List error: %v", err)
	}
	listCallsBefore := st.listCalls

	if _, err := svc.SetStatus(context.Background(), job.ID, "IN_PROGRESS"); err != nil {
		t.Fatalf("SetStatus error: %v", err)
	}

	// The epoch advanced, so the post-write read must key past the cached page.
	if _, err := svc.List(context.Background(), "", "", 0); err != nil {
		t.Fatalf("second List error: %v", err)
	}
	if st.listCalls != listCallsBefore+1 {
		t.Fatal("list read after a write served the pre-write cached page")
	}
}

func TestInvalidationDeletesThenBumps(t *testing.T) {
	st := newFakeStore()
	fc := newFakeCache()
	svc := newTestService(st, fc)

	job, _ := svc.Create(context.Background(), "encode video")
	if _, err := svc.Get(context.Background(), job.ID); err != nil {
		t.Fatalf("Get error: %v", err)
	}

	fc.mu.Lock()
	fc.ops = nil
	fc.mu.Unlock()

	if _, err := svc.SetStatus(context.Background(), job.ID, "FAILED"); err != nil {
		t.Fatalf("SetStatus error: %v", err)
	}

	fc.mu.Lock()
	ops := append([]string(nil), fc.ops...)
	fc.mu.Unlock()

	wantDel := fmt.Sprintf("del job:%d:v1", job.ID) // create's bump took the empty slot to 1
	delAt, incrAt := -1, -1
	for i, op := range ops {
		switch {
		case op == wantDel && delAt < 0:
			delAt = i
		case op == "incr "+epochKey:
			incrAt = i
		}
	}
	if delAt < 0 {
		t.Fatalf("per-id delete %q not issued, ops: %v", wantDel, ops)
	}
	if incrAt < delAt {
		t.Fatalf("epoch bump happened before the per-id delete, ops: %v", ops)
	}
}

func TestPaginationPagesAreStable(t *testing.T) {
	st := newFakeStore()
	svc := newTestService(st, newFakeCache())

	for i := 1; i <= 50; i++ {
		if _, err := svc.Create(context.Background(), fmt.Sprintf("job %d", i)); err != nil {
			t.Fatalf("Create error: %v", err)
		}
	}

	page1 := listPage(t, svc, "", "")
	if len(page1.Jobs) != 15 {
		t.Fatalf("page 1 size = %d, want 15", len(page1.Jobs))
	}
	if page1.Jobs[0].ID != 1 || page1.Jobs[14].ID != 15 {
		t.Fatalf("page 1 ids = %d..%d, want 1..15", page1.Jobs[0].ID, page1.Jobs[14].ID)
	}
	if id, err := pagination.DecodeCursor(page1.NextCursor); err != nil || id != 15 {
		t.Fatalf("page 1 cursor decodes to %d (%v), want 15", id, err)
	}

	// A tail insert between page fetches must not shift either page.
	if _, err := svc.Create(context.Background(), "job 51"); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	page2 := listPage(t, svc, "", page1.NextCursor)
	if len(page2.Jobs) != 15 {
		t.Fatalf("page 2 size = %d, want 15", len(page2.Jobs))
	}
	if page2.Jobs[0].ID != 16 || page2.Jobs[14].ID != 30 {
		t.Fatalf("page 2 ids = %d..%d, want 16..30", page2.Jobs[0].ID, page2.Jobs[14].ID)
	}
}

func TestLastPageHasNoCursor(t *testing.T) {
	st := newFakeStore()
	svc := newTestService(st, newFakeCache())

	for i := 1; i <= 10; i++ {
		if _, err := svc.Create(context.Background(), fmt.Sprintf("job %d", i)); err != nil {
			t.Fatalf("Create error: %v", err)
		}
	}

	page := listPage(t, svc, "", "")
	if len(page.Jobs) != 10 {
		t.Fatalf("page size = %d, want 10", len(page.Jobs))
	}
	if page.NextCursor != "" {
		t.Fatalf("last page cursor = %q, want empty", page.NextCursor)
	}
}

func TestListRejectsBadCursor(t *testing.T) {
	svc := newTestService(newFakeStore(), newFakeCache())

	var verr *ValidationError
	if _, err := svc.List(context.Background(), "", "***", 0); !errors.As(err, &verr) {
		t.Fatalf("List with bad cursor error = %v, want ValidationError", err)
	}
}

func TestPrefixSearchIsCaseInsensitive(t *testing.T) {
	st := newFakeStore()
	svc := newTestService(st, newFakeCache())

	for _, name := range []string{"Alpha", "alpha2", "Beta"} {
		if _, err := svc.Create(context.Background(), name); err != nil {
			t.Fatalf("Create error: %v", err)
		}
	}

	page := listPage(t, svc, "al", "")
	if len(page.Jobs) != 2 {
		t.Fatalf("prefix search returned %d jobs, want 2", len(page.Jobs))
	}
	for _, j := range page.Jobs {
		if !strings.HasPrefix(strings.ToLower(j.Name), "al") {
			t.Fatalf("unexpected job %q in prefix results", j.Name)
		}
	}
}

func TestDeleteCascadesAndHistoryReturnsNotFound(t *testing.T) {
	st := newFakeStore()
	svc := newTestService(st, newFakeCache())

	job, _ := svc.Create(context.Background(), "encode video")
	if _, err := svc.SetStatus(context.Background(), job.ID, "COMPLETED"); err != nil {
		t.Fatalf("SetStatus error: %v", err)
	}

	if err := svc.Delete(context.Background(), job.ID); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if got := len(st.statuses[job.ID]); got != 0 {
		t.Fatalf("history rows after cascade delete = %d, want 0", got)
	}
	if _, err := svc.History(context.Background(), job.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("History after delete error = %v, want ErrNotFound", err)
	}
	if err := svc.Delete(context.Background(), job.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Delete error = %v, want ErrNotFound", err)
	}
}

func TestHistoryIsOrderedAndComplete(t *testing.T) {
	st := newFakeStore()
	svc := newTestService(st, newFakeCache())

	job, _ := svc.Create(context.Background(), "encode video")
	for _, s := range []string{"IN_PROGRESS", "COMPLETED"} {
		if _, err := svc.SetStatus(context.Background(), job.ID, s); err != nil {
			t.Fatalf("SetStatus error: %v", err)
		}
	}

	payload, err := svc.History(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("History error: %v", err)
	}
	var resp model.JobHistoryResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}

	want := []model.Status{model.StatusPending, model.StatusInProgress, model.StatusCompleted}
	if len(resp.History) != len(want) {
		t.Fatalf("history length = %d, want %d", len(resp.History), len(want))
	}
	for i, entry := range resp.History {
		if entry.StatusType != want[i] {
			t.Fatalf("history[%d] = %q, want %q", i, entry.StatusType, want[i])
		}
	}
	if resp.Job.CurrentStatus.StatusType != model.StatusCompleted {
		t.Fatalf("history job status = %q, want COMPLETED", resp.Job.CurrentStatus.StatusType)
	}
}

func TestCacheFailuresNeverSurface(t *testing.T) {
	st := newFakeStore()
	fc := newFakeCache()
	fc.fail = true
	svc := newTestService(st, fc)

	job, err := svc.Create(context.Background(), "encode video")
	if err != nil {
		t.Fatalf("Create with failing cache error: %v", err)
	}
	if _, err := svc.SetStatus(context.Background(), job.ID, "IN_PROGRESS"); err != nil {
		t.Fatalf("SetStatus with failing cache error: %v", err)
	}
	if _, err := svc.Get(context.Background(), job.ID); err != nil {
		t.Fatalf("Get with failing cache error: %v", err)
	}
	if _, err := svc.List(context.Background(), "", "", 0); err != nil {
		t.Fatalf("List with failing cache error: %v", err)
	}
	if _, err := svc.History(context.Background(), job.ID); err != nil {
		t.Fatalf("History with failing cache error: %v", err)
	}
	if err := svc.Delete(context.Background(), job.ID); err != nil {
		t.Fatalf("Delete with failing cache error: %v", err)
	}
}

func listPage(t *testing.T, svc *Service, q, cursor string) model.ListJobsResponse {
	t.Helper()
	payload, err := svc.List(context.Background(), q, cursor, 0)
	if err != nil {
		t.Fatalf("List(q=%q, cursor=%q) error: %v", q, cursor, err)
	}
	var resp model.ListJobsResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	return resp
}
