package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/jobs"
	"github.com/maheshrc27/postflow/internal/transfer"
)

type JobController interface {
	Status(ctx context.Context) *transfer.SchedulerStatus
	TriggerJob(ctx context.Context, name string, payload json.RawMessage) (*transfer.TriggerJobResponse, error)
	PauseJob(ctx context.Context, name string) ([]string, error)
	ResumeJob(ctx context.Context, name string) ([]string, error)
}

type JobHandler struct {
	jobs JobController
}

func NewJobHandler(jobs JobController) *JobHandler {
	return &JobHandler{jobs: jobs}
}

func (h *JobHandler) Status(c *fiber.Ctx) error {
	return c.JSON(h.jobs.Status(c.Context()))
}

func (h *JobHandler) Trigger(c *fiber.Ctx) error {
	name := c.Params("name")
	resp, err := h.jobs.TriggerJob(c.Context(), name, json.RawMessage(c.Body()))
	if err != nil {
		return jobError(c, name, err)
	}

	slog.Info("job triggered via api", "job", name, "job_id", resp.JobID, "user_id", GetUserID(c))
	return c.Status(fiber.StatusAccepted).JSON(resp)
}

func (h *JobHandler) Pause(c *fiber.Ctx) error {
	name := c.Params("name")
	affected, err := h.jobs.PauseJob(c.Context(), name)
	if err != nil {
		return jobError(c, name, err)
	}
	return c.JSON(fiber.Map{
		"job":      name,
		"paused":   true,
		"affected": affected,
	})
}

func (h *JobHandler) Resume(c *fiber.Ctx) error {
	name := c.Params("name")
	affected, err := h.jobs.ResumeJob(c.Context(), name)
	if err != nil {
		return jobError(c, name, err)
	}
	return c.JSON(fiber.Map{
		"job":      name,
		"paused":   false,
		"affected": affected,
	})
}

func jobError(c *fiber.Ctx, name string, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, jobs.ErrUnknownJob):
		status = fiber.StatusNotFound
	case errors.Is(err, jobs.ErrJobDisabled):
		status = fiber.StatusConflict
	case errors.Is(err, jobs.ErrInvalidPayload):
		status = fiber.StatusBadRequest
	case errors.Is(err, jobs.ErrNotInitialized):
		status = fiber.StatusServiceUnavailable
	default:
		slog.Error("job request failed", "job", name, "error", err)
	}
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}
