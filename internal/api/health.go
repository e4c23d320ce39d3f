package api

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/mriscan/braintumor-go/internal/buildinfo"
	"github.com/mriscan/braintumor-go/internal/logger"
)

const healthPingTimeout = 2 * time.Second

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string      `json:"status"` // healthy, degraded or unhealthy
	Version       string      `json:"version"`
	ModelLoaded   bool        `json:"model_loaded"`
	ModelBackend  string      `json:"model_backend,omitempty"`
	Database      string      `json:"database"`
	Uptime        string      `json:"uptime"`
	UptimeSeconds float64     `json:"uptime_seconds"`
	Memory        MemoryStats `json:"memory"`
	Timestamp     time.Time   `json:"timestamp"`
}

// MemoryStats describes the process memory footprint.
type MemoryStats struct {
	RSSBytes       uint64 `json:"rss_bytes"`
	VMSBytes       uint64 `json:"vms_bytes"`
	HeapAllocBytes uint64 `json:"heap_alloc_bytes"`
	Goroutines     int    `json:"goroutines"`
}

// Health reports model, database and process state. A reachable database
// answers 200; without a model the status is "degraded".
func (c *Controller) Health(ctx echo.Context) error {
	uptime := time.Since(c.startTime)
	resp := HealthResponse{
		Status:        "healthy",
		Version:       buildinfo.Current().GetVersion(),
		ModelLoaded:   c.Model.Loaded(),
		ModelBackend:  c.Model.Backend(),
		Database:      "ok",
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: uptime.Seconds(),
		Memory:        c.memoryStats(),
		Timestamp:     time.Now().UTC(),
	}

	status := http.StatusOK
	pingCtx, cancel := context.WithTimeout(ctx.Request().Context(), healthPingTimeout)
	defer cancel()
	if err := c.DS.Ping(pingCtx); err != nil {
		c.log.Warn("health check: database unreachable", logger.Error(err))
		resp.Database = "unavailable"
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	} else if !resp.ModelLoaded {
		resp.Status = "degraded"
	}

	return ctx.JSON(status, resp)
}

func (c *Controller) memoryStats() MemoryStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	stats := MemoryStats{
		HeapAllocBytes: ms.HeapAlloc,
		Goroutines:     runtime.NumGoroutine(),
	}

	proc, err := process.NewProcess(int32(os.Getpid())) //nolint:gosec // pids fit in int32
	if err != nil {
		return stats
	}
	if info, err := proc.MemoryInfo(); err == nil && info != nil {
		stats.RSSBytes = info.RSS
		stats.VMSBytes = info.VMS
	}
	return stats
}
