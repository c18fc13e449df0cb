package model

import "time"

// CurrentStatus is the denormalized latest status carried on every job read.
// It always mirrors the most recent history row by (timestamp, id).
type CurrentStatus struct {
	StatusType Status    `json:"statusType"`
	Timestamp  time.Time `json:"timestamp"`
}

// JobSummary is the list-read shape.
type JobSummary struct {
	ID            int64         `json:"id"`
	Name          string        `json:"name"`
	CreatedAt     time.Time     `json:"createdAt"`
	CurrentStatus CurrentStatus `json:"currentStatus"`
}

// JobDetail is the detail-read shape, also returned by writes.
type JobDetail struct {
	ID            int64         `json:"id"`
	Name          string        `json:"name"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	CurrentStatus CurrentStatus `json:"currentStatus"`
}

// StatusEntry is one immutable row of a job's status history.
type StatusEntry struct {
	ID         int64     `json:"id"`
	JobID      int64     `json:"jobId"`
	StatusType Status    `json:"statusType"`
	Timestamp  time.Time `json:"timestamp"`
}

// ListJobsResponse is the wire envelope for one page of jobs. The cache
// stores the marshaled form verbatim.
type ListJobsResponse struct {
	Success    bool         `json:"success"`
	Jobs       []JobSummary `json:"jobs"`
	NextCursor string       `json:"nextCursor,omitempty"`
}

// JobResponse wraps a single job detail.
type JobResponse struct {
	Success bool      `json:"success"`
	Job     JobDetail `json:"job"`
}

// JobHistoryResponse wraps a job detail plus its full ordered history.
type JobHistoryResponse struct {
	Success bool          `json:"success"`
	Job     JobDetail     `json:"job"`
	History []StatusEntry `json:"history"`
}
