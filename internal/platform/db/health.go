package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

// GetPoolStats returns connection pool statistics.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

// Pinger reports whether a storage backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthOptions describes what /health inspects.
type HealthOptions struct {
	Backend string
	Store   Pinger
	// Pool is set when the store runs on Postgres.
	Pool *pgxpool.Pool
	// Pending reports writes waiting in the write-ahead buffer.
	Pending func() int
	// Listeners reports open live-feed connections.
	Listeners func() int
}

// HealthHandler answers 200 while the store is reachable and 503 otherwise.
// Buffered writes are reported either way; the service keeps accepting
// bookings while the store is down.
func HealthHandler(opts HealthOptions) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		body := map[string]interface{}{
			"status":  "healthy",
			"backend": opts.Backend,
		}
		if opts.Pending != nil {
			body["pending_writes"] = opts.Pending()
		}
		if opts.Listeners != nil {
			body["live_clients"] = opts.Listeners()
		}
		if opts.Pool != nil {
			body["pool"] = GetPoolStats(opts.Pool)
		}

		if opts.Store != nil {
			if err := opts.Store.Ping(ctx); err != nil {
				body["status"] = "unhealthy"
				body["error"] = err.Error()
				return c.JSON(http.StatusServiceUnavailable, body)
			}
		}
		return c.JSON(http.StatusOK, body)
	}
}
