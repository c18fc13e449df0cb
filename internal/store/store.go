package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"jobtrack/internal/model"
)

// ErrNotFound is returned when a job id does not exist.
var ErrNotFound = errors.New("job not found")

// ErrInvalidTransition is returned when the transition table rejects a
// status change. With the current permissive table it only fires for
// statuses outside the enumeration.
var ErrInvalidTransition = errors.New("invalid status transition")

// Job mirrors one row of the jobs table, including the denormalized
// current-status fields maintained alongside the history.
type Job struct {
	ID                     int64
	Name                   string
	CreatedAt              time.Time
	UpdatedAt              time.Time
	CurrentStatusType      model.Status
	CurrentStatusTimestamp time.Time
}

// JobStatus mirrors one row of the append-only job_statuses table.
type JobStatus struct {
	ID         int64
	JobID      int64
	StatusType model.Status
	Timestamp  time.Time
}

// Store wraps access to the database via a shared *sql.DB with pooling.
type Store struct {
	DB *sql.DB
}

func New(database *sql.DB) *Store {
	return &Store{DB: database}
}

const jobColumns = "id, name, created_at, updated_at, current_status_type, current_status_timestamp"

func scanJob(row interface{ Scan(...any) error }) (Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.Name, &j.CreatedAt, &j.UpdatedAt, &j.CurrentStatusType, &j.CurrentStatusTimestamp)
	return j, err
}

// CreateJob inserts a job and its initial PENDING history row in one
// transaction, both stamped with the same timestamp.
func (s *Store) CreateJob(ctx context.Context, name string) (Job, error) {
	now := time.Now().UTC()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Job{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	job, err := scanJob(tx.QueryRowContext(ctx, `
		INSERT INTO jobs (name, created_at, updated_at, current_status_type, current_status_timestamp)
		VALUES ($1, $2, $2, $3, $2)
		RETURNING `+jobColumns,
		name, now, model.StatusPending))
	if err != nil {
		return Job{}, fmt.Errorf("insert job: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO job_statuses (job_id, status_type, "timestamp")
		VALUES ($1, $2, $3)`,
		job.ID, model.StatusPending, now); err != nil {
		return Job{}, fmt.Errorf("insert initial status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Job{}, fmt.Errorf("commit: %w", err)
	}
	return job, nil
}

// SetStatus applies a status transition under an exclusive row lock. The
// history insert and the denormalized-field update commit as one unit.
// A transition to the current status is an idempotent no-op, reported via
// the second return value; the check happens while holding the lock so two
// identical concurrent requests cannot both append history.
func (s *Store) SetStatus(ctx context.Context, id int64, newStatus model.Status, now time.Time) (Job, bool, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Job{}, false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	job, err := scanJob(tx.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, false, ErrNotFound
	}
	if err != nil {
		return Job{}, false, fmt.Errorf("lock job: %w", err)
	}

	if job.CurrentStatusType == newStatus {
		if err := tx.Commit(); err != nil {
			return Job{}, false, fmt.Errorf("commit: %w", err)
		}
		return job, false, nil
	}

	if !model.CanTransition(job.CurrentStatusType, newStatus) {
		return Job{}, false, ErrInvalidTransition
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO job_statuses (job_id, status_type, "timestamp")
		VALUES ($1, $2, $3)`,
		id, newStatus, now); err != nil {
		return Job{}, false, fmt.Errorf("insert status: %w", err)
	}

	job, err = scanJob(tx.QueryRowContext(ctx, `
		UPDATE jobs
		SET current_status_type = $2, current_status_timestamp = $3, updated_at = $3
		WHERE id = $1
		RETURNING `+jobColumns,
		id, newStatus, now))
	if err != nil {
		return Job{}, false, fmt.Errorf("update denormalized status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Job{}, false, fmt.Errorf("commit: %w", err)
	}
	return job, true, nil
}

// GetJob fetches a single job by id.
func (s *Store) GetJob(ctx context.Context, id int64) (Job, error) {
	job, err := scanJob(s.DB.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns up to limit jobs with id > afterID in ascending id order,
// optionally filtered by a case-insensitive prefix on name. The prefix match
// uses the functional lower(name) index.
func (s *Store) ListJobs(ctx context.Context, q string, afterID int64, limit int) ([]Job, error) {
	args := []any{afterID}
	where := "id > $1"
	if q != "" {
		args = append(args, escapeLikePrefix(strings.ToLower(q))+"%")
		where += fmt.Sprintf(" AND lower(name) LIKE $%d", len(args))
	}
	args = append(args, limit)
	query := fmt.Sprintf(`
		SELECT %s FROM jobs WHERE %s ORDER BY id ASC LIMIT $%d`,
		jobColumns, where, len(args))

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ListStatuses returns a job's full history ordered by (timestamp, id)
// ascending, a stable total order even under timestamp collisions.
func (s *Store) ListStatuses(ctx context.Context, jobID int64) ([]JobStatus, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, job_id, status_type, "timestamp"
		FROM job_statuses
		WHERE job_id = $1
		ORDER BY "timestamp" ASC, id ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	defer rows.Close()

	var statuses []JobStatus
	for rows.Next() {
		var st JobStatus
		if err := rows.Scan(&st.ID, &st.JobID, &st.StatusType, &st.Timestamp); err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		statuses = append(statuses, st)
	}
	return statuses, rows.Err()
}

// DeleteJob removes a job; the foreign key cascade removes its history.
func (s *Store) DeleteJob(ctx context.Context, id int64) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertJobBatch bulk-inserts PENDING jobs with matching first history rows,
// all stamped with the same timestamp. Used by the seeder.
func (s *Store) InsertJobBatch(ctx context.Context, names []string, now time.Time) ([]int64, error) {
	if len(names) == 0 {
		return nil, nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var sb strings.Builder
	args := make([]any, 0, len(names)*3)
	sb.WriteString("INSERT INTO jobs (name, created_at, updated_at, current_status_type, current_status_timestamp) VALUES ")
	for i, name := range names {
		if i > 0 {
			sb.WriteString(", ")
		}
		args = append(args, name, now, model.StatusPending)
		n := len(args)
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d)", n-2, n-1, n-1, n, n-1)
	}
	sb.WriteString(" RETURNING id")

	rows, err := tx.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("insert job batch: %w", err)
	}
	ids := make([]int64, 0, len(names))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("insert job batch: %w", err)
	}
	rows.Close()

	sb.Reset()
	args = args[:0]
	sb.WriteString(`INSERT INTO job_statuses (job_id, status_type, "timestamp") VALUES `)
	for i, id := range ids {
		if i > 0 {
			sb.WriteString(", ")
		}
		args = append(args, id, model.StatusPending, now)
		n := len(args)
		fmt.Fprintf(&sb, "($%d, $%d, $%d)", n-2, n-1, n)
	}
	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return nil, fmt.Errorf("insert status batch: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return ids, nil
}

// escapeLikePrefix escapes LIKE metacharacters so the user's query is
// treated as a literal prefix.
func escapeLikePrefix(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(q)
}
