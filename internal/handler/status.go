package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// StatusHandler reports liveness and dependency health.
type StatusHandler struct {
	DB      Pinger
	Redis   func(ctx context.Context) error
	Version string
	Env     string
}

// Health is the liveness probe used by load balancers.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

type dependencyStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func check(ctx context.Context, ping func(context.Context) error) dependencyStatus {
	if ping == nil {
		return dependencyStatus{Status: "disabled"}
	}
	if err := ping(ctx); err != nil {
		return dependencyStatus{Status: "down", Error: err.Error()}
	}
	return dependencyStatus{Status: "up"}
}

// Status pings the database and Redis. A database outage turns the
// response into 503; Redis is optional.
func (h *StatusHandler) Status(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	var dbPing func(context.Context) error
	if h.DB != nil {
		dbPing = h.DB.PingContext
	}
	db := check(ctx, dbPing)
	body := echo.Map{
		"version":    h.Version,
		"env":        h.Env,
		"serverTime": time.Now().UTC(),
		"database":   db,
		"redis":      check(ctx, h.Redis),
	}
	if db.Status == "down" {
		return c.JSON(http.StatusServiceUnavailable, Envelope{
			Success:   false,
			Status:    TagUnavailable,
			Message:   "database unavailable",
			Data:      body,
			Errors:    []string{"database: " + db.Error},
			Timestamp: time.Now().UTC(),
			RequestID: requestID(c),
		})
	}
	return ok(c, "healthy", body)
}
