package http

// ErrorResponse is the failure envelope shared by all endpoints.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error"`
}

// CreateJobRequest is the payload for POST /v1/jobs.
type CreateJobRequest struct {
	Name string `json:"name"`
}

// SetStatusRequest is the payload for POST /v1/jobs/:id/status.
type SetStatusRequest struct {
	StatusType string `json:"statusType"`
}

// DeleteJobResponse acknowledges a delete.
type DeleteJobResponse struct {
	Success bool `json:"success"`
}
