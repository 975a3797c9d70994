package api

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// HealthCheck probes one dependency; nil means healthy.
type HealthCheck func(ctx context.Context) error

// HealthHandler serves GET /health. Every check runs concurrently with a
// shared timeout; any failure turns the response into a 503.
type HealthHandler struct {
	checks  map[string]HealthCheck
	timeout time.Duration
}

func NewHealthHandler(checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: 3 * time.Second}
}

func (h *HealthHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]string, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, check HealthCheck) {
			defer wg.Done()
			if err := check(ctx); err != nil {
				results[i] = err.Error()
				return
			}
			results[i] = "ok"
		}(i, h.checks[name])
	}
	wg.Wait()

	resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(names))}
	for i, name := range names {
		resp.Checks[name] = results[i]
		if results[i] != "ok" {
			resp.Status = "degraded"
		}
	}
	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, resp)
}
