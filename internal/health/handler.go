// Package health exposes liveness/readiness probes (§2 AMBIENT STACK).
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/brightloop-video/sfu-core/internal/logging"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WorkerPool is the subset of workerpool.Pool readiness depends on.
type WorkerPool interface {
	Size() int
	GetLeastLoaded() (string, error)
}

// BusPinger is satisfied by *bus.Service. A nil bus means Redis is absent in
// this deployment (single-instance) and readiness skips the bus check; a nil
// or empty worker pool makes readiness report unhealthy.
type BusPinger interface {
	Ping(ctx context.Context) error
}

// Handler serves /healthz (liveness) and /readyz (readiness).
type Handler struct {
	pool WorkerPool
	bus  BusPinger
}

func NewHandler(pool WorkerPool, bus BusPinger) *Handler {
	return &Handler{pool: pool, bus: bus}
}

type livenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type readinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Liveness reports the process is alive, with no dependency checks — a
// media worker crash must not take the whole process out of rotation, since
// the pool self-heals (§4.1 crash recovery).
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, livenessResponse{Status: "alive", Timestamp: time.Now().UTC().Format(time.RFC3339)})
}

// Readiness reports whether this instance can actually service a join: it
// needs at least one live worker, and if a bus is configured, Redis must be
// reachable (a dead bus degrades gracefully once running, but a process
// that can't even reach Redis at startup is not ready to be routed traffic).
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string)
	healthy := true

	workerStatus := h.checkWorkerPool()
	checks["worker_pool"] = workerStatus
	if workerStatus != "healthy" {
		healthy = false
	}

	if h.bus != nil {
		busStatus := h.checkBus(ctx)
		checks["bus"] = busStatus
		if busStatus != "healthy" {
			healthy = false
		}
	}

	status, code := "ready", http.StatusOK
	if !healthy {
		status, code = "unavailable", http.StatusServiceUnavailable
	}

	c.JSON(code, readinessResponse{Status: status, Checks: checks, Timestamp: time.Now().UTC().Format(time.RFC3339)})
}

func (h *Handler) checkWorkerPool() string {
	if h.pool == nil || h.pool.Size() == 0 {
		return "unhealthy"
	}
	if _, err := h.pool.GetLeastLoaded(); err != nil {
		logging.Error(nil, "worker pool readiness check failed", zap.Error(err))
		return "unhealthy"
	}
	return "healthy"
}

func (h *Handler) checkBus(ctx context.Context) string {
	if err := h.bus.Ping(ctx); err != nil {
		logging.Error(ctx, "bus readiness check failed", zap.Error(err))
		return "unhealthy"
	}
	return "healthy"
}
