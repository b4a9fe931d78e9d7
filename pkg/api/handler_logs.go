package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/signaldock/signaldock/pkg/models"
	"github.com/signaldock/signaldock/pkg/services"
)

func intQuery(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.DefaultQuery(name, strconv.Itoa(def)))
	if err != nil {
		return def
	}
	return v
}

// listEventLogsHandler handles GET /api/logs/events.
func (s *Server) listEventLogsHandler(c *gin.Context) {
	if s.log == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history not available"})
		return
	}
	recs, err := s.log.ListEvents(c.Request.Context(), services.EventLogQuery{
		SourceType: c.Query("source_type"),
		EventType:  c.Query("event_type"),
		Limit:      intQuery(c, "limit", 100),
		Offset:     intQuery(c, "offset", 0),
	})
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	if recs == nil {
		recs = []models.EventLogRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"events": recs})
}

// listActionLogsHandler handles GET /api/logs/actions.
func (s *Server) listActionLogsHandler(c *gin.Context) {
	if s.log == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history not available"})
		return
	}
	pipelineID, _ := strconv.ParseInt(c.Query("pipeline_id"), 10, 64)
	recs, err := s.log.ListActions(c.Request.Context(), services.ActionLogQuery{
		PipelineID: pipelineID,
		Status:     c.Query("status"),
		Limit:      intQuery(c, "limit", 100),
		Offset:     intQuery(c, "offset", 0),
	})
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	if recs == nil {
		recs = []models.ActionLogRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"actions": recs})
}
