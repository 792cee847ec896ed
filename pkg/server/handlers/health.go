package handlers

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/episodic"
)

// Build information - can be set at build time using ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

const serviceName = "episodic"

// ReadinessTimeout bounds the store check behind /ready.
const ReadinessTimeout = 5 * time.Second

// HealthHandler handles health check requests
type HealthHandler struct {
	client    episodic.Episodic
	startedAt time.Time
}

// NewHealthHandler creates a new health handler. A nil client reports not
// ready.
func NewHealthHandler(client episodic.Episodic) *HealthHandler {
	return &HealthHandler{
		client:    client,
		startedAt: time.Now(),
	}
}

// HealthCheck handles GET /health - basic liveness check
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   serviceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   Version,
	})
}

// LivenessCheck handles GET /live - Kubernetes liveness probe endpoint
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"service":   serviceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ReadinessCheck handles GET /ready. Ready means the graph store answers.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), ReadinessTimeout)
	defer cancel()

	store := h.checkStore(ctx)
	response := gin.H{
		"status":    "ready",
		"service":   serviceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks": gin.H{
			"graph_store": store,
			"system": gin.H{
				"status": "healthy",
				"uptime": time.Since(h.startedAt).Round(time.Second).String(),
			},
		},
	}

	if store["status"] != "healthy" {
		response["status"] = "not_ready"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	c.JSON(http.StatusOK, response)
}

// DetailedHealthCheck handles GET /health/detailed - comprehensive health information
func (h *HealthHandler) DetailedHealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*ReadinessTimeout)
	defer cancel()

	startTime := time.Now()
	checks := gin.H{"graph_store": h.checkStore(ctx)}
	allHealthy := checks["graph_store"].(gin.H)["status"] == "healthy"

	if h.client != nil {
		statsStart := time.Now()
		stats, err := h.client.GetStatistics(ctx)
		statsStatus := gin.H{
			"status":      "healthy",
			"duration_ms": time.Since(statsStart).Milliseconds(),
			"operation":   "GetStatistics",
		}
		if err != nil {
			statsStatus["status"] = "unhealthy"
			statsStatus["error"] = err.Error()
			allHealthy = false
		} else {
			statsStatus["entities"] = stats.EntityCount
			statsStatus["relationships"] = stats.RelationshipCount
			statsStatus["episodes"] = stats.EpisodeCount
		}
		checks["graph_statistics"] = statsStatus
	}

	metrics := h.getSystemMetrics()
	checks["system"] = gin.H{
		"status":       "healthy",
		"uptime":       time.Since(h.startedAt).Round(time.Second).String(),
		"memory_usage": metrics.MemoryUsage,
		"goroutines":   metrics.Goroutines,
		"gc_cycles":    metrics.GCCycles,
		"heap_objects": metrics.HeapObjects,
		"stack_usage":  metrics.StackUsage,
	}

	response := gin.H{
		"status":  "healthy",
		"service": serviceName,
		"version": Version,
		"build_info": gin.H{
			"git_commit": GitCommit,
			"build_time": BuildTime,
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"environment": gin.H{
			"go_version": GoVersion,
		},
		"checks": checks,
		"metrics": gin.H{
			"response_time_ms": time.Since(startTime).Milliseconds(),
		},
	}

	if !allHealthy {
		response["status"] = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *HealthHandler) checkStore(ctx context.Context) gin.H {
	if h.client == nil {
		return gin.H{
			"status": "unhealthy",
			"error":  "episodic client not initialized",
		}
	}

	start := time.Now()
	err := h.client.HealthCheck(ctx)
	status := gin.H{
		"status":   "healthy",
		"duration": time.Since(start).String(),
	}
	if err != nil {
		status["status"] = "unhealthy"
		status["error"] = err.Error()
	}
	return status
}

// SystemMetrics holds system runtime metrics
type SystemMetrics struct {
	MemoryUsage string `json:"memory_usage"`
	Goroutines  int    `json:"goroutines"`
	GCCycles    uint32 `json:"gc_cycles"`
	HeapObjects uint64 `json:"heap_objects"`
	StackUsage  string `json:"stack_usage"`
}

// getSystemMetrics collects current system runtime metrics
func (h *HealthHandler) getSystemMetrics() SystemMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return SystemMetrics{
		MemoryUsage: fmt.Sprintf("%.2f MB", float64(m.Alloc)/(1024*1024)),
		Goroutines:  runtime.NumGoroutine(),
		GCCycles:    m.NumGC,
		HeapObjects: m.HeapObjects,
		StackUsage:  fmt.Sprintf("%.2f MB", float64(m.StackSys)/(1024*1024)),
	}
}
