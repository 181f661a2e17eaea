package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/service"
)

type HealthHandler struct {
	s service.HealthService
}

func NewHealthHandler(service service.HealthService) *HealthHandler {
	return &HealthHandler{s: service}
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	resp := h.s.Check(c.Context())
	if resp.Status == service.HealthUnhealthy {
		return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
	}
	return c.JSON(resp)
}
