package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/signaldock/signaldock/pkg/database"
	"github.com/signaldock/signaldock/pkg/version"
)

// healthHandler handles GET /health.
func (s *Server) healthHandler(c *gin.Context) {
	resp := gin.H{
		"status":  "healthy",
		"version": version.Full(),
	}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		dbHealth, err := database.CheckHealth(ctx, s.db)
		resp["database"] = dbHealth
		if err != nil {
			resp["status"] = "unhealthy"
			resp["error"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
	}

	c.JSON(http.StatusOK, resp)
}

// systemStatusHandler handles GET /api/system/status.
func (s *Server) systemStatusHandler(c *gin.Context) {
	sources := s.manager.Statuses()
	running := 0
	for _, st := range sources {
		if st.Running {
			running = running + 1
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"version":          version.Full(),
		"sources_total":    len(sources),
		"sources_running":  running,
		"loaded_pipelines": s.runner.LoadedIDs(),
		"ws_clients":       s.hub.ActiveClients(),
		"permissions":      s.perms.Snapshot(),
	})
}

// systemConfigHandler handles GET /api/system/config. Returns the
// effective configuration so the frontend can render settings.
func (s *Server) systemConfigHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"server":  s.cfg.Server,
		"bus":     s.cfg.Bus,
		"hub":     s.cfg.Hub,
		"signals": s.cfg.Signals,
	})
}

// getPermissionsHandler handles GET /api/system/permissions.
func (s *Server) getPermissionsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"permissions": s.perms.Snapshot()})
}

// updatePermissionsHandler handles PUT /api/system/permissions. Grants
// take effect immediately; no restart needed.
func (s *Server) updatePermissionsHandler(c *gin.Context) {
	var req map[string]bool
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	for name, granted := range req {
		if err := s.perms.Set(name, granted); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	snapshot := s.perms.Snapshot()
	s.broadcaster.SystemStatus(map[string]any{"permissions": snapshot})
	c.JSON(http.StatusOK, gin.H{"permissions": snapshot})
}
