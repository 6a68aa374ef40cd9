package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"trade-market/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router gin.IRoutes, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), telemetry.AuditRecord{
			Action:   "debug.audit_test",
			Resource: telemetry.ResourceService,
			ActorID:  c.GetInt64("userID"),
			Detail:   "request " + requestIDFromContext(c),
		})
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// RegisterHealthRoutes wires /healthz. Every check must pass for a 200.
func RegisterHealthRoutes(router gin.IRoutes, checks map[string]HealthCheck) {
	router.GET("/healthz", func(c *gin.Context) {
		status := http.StatusOK
		results := gin.H{}
		for name, check := range checks {
			if err := check(c.Request.Context()); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}
		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		c.JSON(status, gin.H{"status": state, "checks": results})
	})
}
