package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/signaldock/signaldock/pkg/models"
)

// PipelineRequest is the body for create and update.
type PipelineRequest struct {
	Name        string              `json:"name" binding:"required"`
	Description string              `json:"description"`
	Nodes       []models.NodeRecord `json:"nodes"`
	Edges       []models.EdgeRecord `json:"edges"`
	IsTemplate  bool                `json:"is_template"`
}

// PipelineResponse decorates the stored record with its runtime state.
type PipelineResponse struct {
	models.PipelineRecord
	Loaded bool `json:"loaded"`
}

func (s *Server) pipelineResponse(rec models.PipelineRecord) PipelineResponse {
	return PipelineResponse{PipelineRecord: rec, Loaded: s.runner.Loaded(rec.ID)}
}

func pipelineID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pipeline id"})
		return 0, false
	}
	return id, true
}

// listPipelinesHandler handles GET /api/pipelines.
func (s *Server) listPipelinesHandler(c *gin.Context) {
	recs, err := s.store.List(c.Request.Context())
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	out := make([]PipelineResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, s.pipelineResponse(rec))
	}
	c.JSON(http.StatusOK, gin.H{"pipelines": out})
}

// createPipelineHandler handles POST /api/pipelines. New pipelines start
// inactive; activation is an explicit toggle.
func (s *Server) createPipelineHandler(c *gin.Context) {
	var req PipelineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := s.store.Create(c.Request.Context(), models.PipelineRecord{
		Name:        req.Name,
		Description: req.Description,
		Nodes:       req.Nodes,
		Edges:       req.Edges,
		IsTemplate:  req.IsTemplate,
	})
	if err != nil {
		abortWithServiceError(c, err)
		return
	}

	s.broadcaster.PipelineChange("created", rec.ID)
	c.JSON(http.StatusCreated, s.pipelineResponse(rec))
}

// getPipelineHandler handles GET /api/pipelines/:id.
func (s *Server) getPipelineHandler(c *gin.Context) {
	id, ok := pipelineID(c)
	if !ok {
		return
	}
	rec, err := s.store.Get(c.Request.Context(), id)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.pipelineResponse(rec))
}

// updatePipelineHandler handles PUT /api/pipelines/:id. An active
// pipeline is reloaded so the new graph takes effect immediately; if the
// new graph fails to compile the update is kept but the pipeline is
// deactivated.
func (s *Server) updatePipelineHandler(c *gin.Context) {
	id, ok := pipelineID(c)
	if !ok {
		return
	}
	var req PipelineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := s.store.Update(c.Request.Context(), models.PipelineRecord{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Nodes:       req.Nodes,
		Edges:       req.Edges,
	})
	if err != nil {
		abortWithServiceError(c, err)
		return
	}

	if s.runner.Loaded(id) {
		if err := s.runner.Load(rec); err != nil {
			s.runner.Unload(id)
			if _, derr := s.store.SetActive(c.Request.Context(), id, false); derr != nil {
				abortWithServiceError(c, derr)
				return
			}
			s.broadcaster.PipelineChange("unloaded", id)
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":    "pipeline saved but failed to load: " + err.Error(),
				"pipeline": s.pipelineResponse(rec),
			})
			return
		}
	}

	s.broadcaster.PipelineChange("updated", id)
	c.JSON(http.StatusOK, s.pipelineResponse(rec))
}

// deletePipelineHandler handles DELETE /api/pipelines/:id.
func (s *Server) deletePipelineHandler(c *gin.Context) {
	id, ok := pipelineID(c)
	if !ok {
		return
	}
	s.runner.Unload(id)
	if err := s.store.Delete(c.Request.Context(), id); err != nil {
		abortWithServiceError(c, err)
		return
	}
	s.broadcaster.PipelineChange("deleted", id)
	c.Status(http.StatusNoContent)
}

// togglePipelineHandler handles POST /api/pipelines/:id/toggle. It
// activates an inactive pipeline (loading it into the executor) or
// deactivates an active one. A graph that fails to compile rejects the
// activation entirely.
func (s *Server) togglePipelineHandler(c *gin.Context) {
	id, ok := pipelineID(c)
	if !ok {
		return
	}
	rec, err := s.store.Get(c.Request.Context(), id)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}

	if rec.IsActive {
		s.runner.Unload(id)
		rec, err = s.store.SetActive(c.Request.Context(), id, false)
		if err != nil {
			abortWithServiceError(c, err)
			return
		}
		s.broadcaster.PipelineChange("unloaded", id)
		c.JSON(http.StatusOK, s.pipelineResponse(rec))
		return
	}

	if err := s.runner.Load(rec); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	rec, err = s.store.SetActive(c.Request.Context(), id, true)
	if err != nil {
		s.runner.Unload(id)
		abortWithServiceError(c, err)
		return
	}
	s.broadcaster.PipelineChange("loaded", id)
	c.JSON(http.StatusOK, s.pipelineResponse(rec))
}

// listTemplatesHandler handles GET /api/templates.
func (s *Server) listTemplatesHandler(c *gin.Context) {
	recs, err := s.store.Templates(c.Request.Context())
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": recs})
}

// ImportTemplateRequest is the body for template import.
type ImportTemplateRequest struct {
	Name string `json:"name"`
}

// importTemplateHandler handles POST /api/templates/:id/import.
func (s *Server) importTemplateHandler(c *gin.Context) {
	id, ok := pipelineID(c)
	if !ok {
		return
	}
	var req ImportTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := s.store.ImportTemplate(c.Request.Context(), id, req.Name)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	s.broadcaster.PipelineChange("created", rec.ID)
	c.JSON(http.StatusCreated, s.pipelineResponse(rec))
}
