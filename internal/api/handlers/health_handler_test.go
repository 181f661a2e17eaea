package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/internal/transfer"
	"github.com/stretchr/testify/assert"
)

type stubHealth struct {
	status string
}

func (s stubHealth) Check(ctx context.Context) *transfer.HealthResponse {
	return &transfer.HealthResponse{Status: s.status, Checks: map[string]string{"database": "ok"}}
}

func TestHealthHandler(t *testing.T) {
	cases := map[string]int{
		service.HealthHealthy:   http.StatusOK,
		service.HealthDegraded:  http.StatusOK,
		service.HealthUnhealthy: http.StatusServiceUnavailable,
	}
	for status, code := range cases {
		t.Run(status, func(t *testing.T) {
			app := fiber.New()
			app.Get("/api/health", NewHealthHandler(stubHealth{status}).Health)

			got, body := do(t, app, http.MethodGet, "/api/health", "")
			assert.Equal(t, code, got)
			assert.Contains(t, body, `"status":"`+status+`"`)
		})
	}
}
