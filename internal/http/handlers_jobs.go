package http

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"jobtrack/internal/jobs"
	"jobtrack/internal/model"
)

func serviceFromCtx(c *fiber.Ctx) *jobs.Service {
	return c.Locals("jobs").(*jobs.Service)
}

// listJobsHandler serves one page of jobs with optional case-insensitive
// prefix search on name.
func listJobsHandler(c *fiber.Ctx) error {
	svc := serviceFromCtx(c)

	pageSize := 0
	if v := c.Query("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Success: false,
				Code:    "BAD_REQUEST",
				Error:   "invalid page_size value",
			})
		}
		pageSize = n
	}

	payload, err := svc.List(c.Context(), c.Query("q"), c.Query("cursor"), pageSize)
	if err != nil {
		return writeServiceError(c, err, "JOB_LIST_FAILED")
	}
	return sendJSON(c, fiber.StatusOK, payload)
}

// getJobHandler returns the detail for a single job.
func getJobHandler(c *fiber.Ctx) error {
	svc := serviceFromCtx(c)

	id, ok := jobIDFromParams(c)
	if !ok {
		return invalidJobID(c)
	}

	payload, err := svc.Get(c.Context(), id)
	if err != nil {
		return writeServiceError(c, err, "JOB_GET_FAILED")
	}
	return sendJSON(c, fiber.StatusOK, payload)
}

// createJobHandler creates a job with initial PENDING status.
func createJobHandler(c *fiber.Ctx) error {
	svc := serviceFromCtx(c)

	var req CreateJobRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "invalid JSON body",
		})
	}

	job, err := svc.Create(c.Context(), req.Name)
	if err != nil {
		return writeServiceError(c, err, "JOB_CREATE_FAILED")
	}
	return c.Status(fiber.StatusCreated).JSON(model.JobResponse{Success: true, Job: job})
}

// deleteJobHandler removes a job and its history.
func deleteJobHandler(c *fiber.Ctx) error {
	svc := serviceFromCtx(c)

	id, ok := jobIDFromParams(c)
	if !ok {
		return invalidJobID(c)
	}

	if err := svc.Delete(c.Context(), id); err != nil {
		return writeServiceError(c, err, "JOB_DELETE_FAILED")
	}
	return c.Status(fiber.StatusOK).JSON(DeleteJobResponse{Success: true})
}

// setStatusHandler applies a status transition and returns the refreshed job.
func setStatusHandler(c *fiber.Ctx) error {
	svc := serviceFromCtx(c)

	id, ok := jobIDFromParams(c)
	if !ok {
		return invalidJobID(c)
	}

	var req SetStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "invalid JSON body",
		})
	}

	job, err := svc.SetStatus(c.Context(), id, req.StatusType)
	if err != nil {
		return writeServiceError(c, err, "JOB_STATUS_FAILED")
	}
	return c.Status(fiber.StatusOK).JSON(model.JobResponse{Success: true, Job: job})
}

// historyHandler returns a job's detail plus its full ordered history.
func historyHandler(c *fiber.Ctx) error {
	svc := serviceFromCtx(c)

	id, ok := jobIDFromParams(c)
	if !ok {
		return invalidJobID(c)
	}

	payload, err := svc.History(c.Context(), id)
	if err != nil {
		return writeServiceError(c, err, "JOB_HISTORY_FAILED")
	}
	return sendJSON(c, fiber.StatusOK, payload)
}

func jobIDFromParams(c *fiber.Ctx) (int64, bool) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func invalidJobID(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Success: false,
		Code:    "BAD_REQUEST",
		Error:   "invalid job id",
	})
}

// sendJSON writes a payload already serialized by the service, typically
// straight out of the cache.
func sendJSON(c *fiber.Ctx, status int, payload []byte) error {
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(status).Send(payload)
}

func writeServiceError(c *fiber.Ctx, err error, fallbackCode string) error {
	var verr *jobs.ValidationError
	if errors.As(err, &verr) {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "VALIDATION_FAILED",
			Error:   verr.Error(),
		})
	}
	if errors.Is(err, jobs.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Success: false,
			Code:    "NOT_FOUND",
			Error:   "job not found",
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Success: false,
		Code:    fallbackCode,
		Error:   "internal error",
	})
}
