package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/signaldock/signaldock/pkg/signals"
)

// SignalSourceInfo combines the static catalog entry with the runtime
// status of the matching configured source, if any.
type SignalSourceInfo struct {
	signals.Metadata
	Enabled     bool           `json:"enabled"`
	Running     bool           `json:"running"`
	Subscribers int            `json:"subscribers"`
	LastValue   map[string]any `json:"last_value,omitempty"`
}

// listSignalsHandler handles GET /api/signals.
func (s *Server) listSignalsHandler(c *gin.Context) {
	statuses := map[string]signals.Status{}
	for _, st := range s.manager.Statuses() {
		statuses[st.Type] = st
	}

	out := make([]SignalSourceInfo, 0, len(signals.Catalog()))
	for _, meta := range signals.Catalog() {
		info := SignalSourceInfo{Metadata: meta}
		if st, ok := statuses[meta.Type]; ok {
			info.Enabled = true
			info.Running = st.Running
			info.Subscribers = st.Subscribers
			info.LastValue = st.LastValue
		}
		out = append(out, info)
	}
	c.JSON(http.StatusOK, gin.H{"signals": out})
}

// currentValuesHandler handles GET /api/signals/:type/current. It reads
// live values from the source, falling back to the last emitted value
// for sources that cannot be sampled on demand.
func (s *Server) currentValuesHandler(c *gin.Context) {
	sourceType := c.Param("type")
	values, err := s.manager.CurrentValues(c.Request.Context(), sourceType)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"source_type": sourceType, "values": values})
}

// actionCatalogHandler handles GET /api/actions.
func (s *Server) actionCatalogHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"actions": s.catalog.Catalog()})
}
