// Package api exposes the engine over HTTP: pipeline management, signal
// and action catalogs, activity history, permissions and the WebSocket
// endpoint.
package api

import (
	"context"
	"database/sql"

	"github.com/gin-gonic/gin"

	"github.com/signaldock/signaldock/pkg/actions"
	"github.com/signaldock/signaldock/pkg/config"
	"github.com/signaldock/signaldock/pkg/events"
	"github.com/signaldock/signaldock/pkg/models"
	"github.com/signaldock/signaldock/pkg/services"
	"github.com/signaldock/signaldock/pkg/signals"
)

// PipelineStore is the persistence surface the handlers need.
// Implemented by services.PipelineStore.
type PipelineStore interface {
	Create(ctx context.Context, rec models.PipelineRecord) (models.PipelineRecord, error)
	Get(ctx context.Context, id int64) (models.PipelineRecord, error)
	List(ctx context.Context) ([]models.PipelineRecord, error)
	Templates(ctx context.Context) ([]models.PipelineRecord, error)
	Update(ctx context.Context, rec models.PipelineRecord) (models.PipelineRecord, error)
	SetActive(ctx context.Context, id int64, active bool) (models.PipelineRecord, error)
	Delete(ctx context.Context, id int64) error
	ImportTemplate(ctx context.Context, templateID int64, name string) (models.PipelineRecord, error)
}

// ActivityLog is the history surface. Implemented by services.Recorder.
type ActivityLog interface {
	ListEvents(ctx context.Context, q services.EventLogQuery) ([]models.EventLogRecord, error)
	ListActions(ctx context.Context, q services.ActionLogQuery) ([]models.ActionLogRecord, error)
}

// PipelineRunner is the executor surface. Implemented by pipeline.Executor.
type PipelineRunner interface {
	Load(rec models.PipelineRecord) error
	Unload(pipelineID int64)
	Loaded(pipelineID int64) bool
	LoadedIDs() []int64
}

// SignalManager is the signal-source surface. Implemented by signals.Manager.
type SignalManager interface {
	Statuses() []signals.Status
	CurrentValues(ctx context.Context, sourceType string) (map[string]any, error)
}

// ActionCatalog lists available action types. Implemented by actions.Registry.
type ActionCatalog interface {
	Catalog() []actions.Metadata
}

// Server wires the HTTP handlers to the engine components.
type Server struct {
	cfg         *config.Config
	store       PipelineStore
	log         ActivityLog
	runner      PipelineRunner
	manager     SignalManager
	catalog     ActionCatalog
	perms       *config.Permissions
	hub         *events.Hub
	broadcaster *events.Broadcaster
	db          *sql.DB
}

// NewServer builds the API server. db and log may be nil when running
// without persistence.
func NewServer(
	cfg *config.Config,
	store PipelineStore,
	log ActivityLog,
	runner PipelineRunner,
	manager SignalManager,
	catalog ActionCatalog,
	perms *config.Permissions,
	hub *events.Hub,
	db *sql.DB,
) *Server {
	return &Server{
		cfg:         cfg,
		store:       store,
		log:         log,
		runner:      runner,
		manager:     manager,
		catalog:     catalog,
		perms:       perms,
		hub:         hub,
		broadcaster: events.NewBroadcaster(hub),
		db:          db,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.healthHandler)
	r.GET("/ws", s.wsHandler)

	api := r.Group("/api")
	{
		pipelines := api.Group("/pipelines")
		{
			pipelines.GET("", s.listPipelinesHandler)
			pipelines.POST("", s.createPipelineHandler)
			pipelines.GET("/:id", s.getPipelineHandler)
			pipelines.PUT("/:id", s.updatePipelineHandler)
			pipelines.DELETE("/:id", s.deletePipelineHandler)
			pipelines.POST("/:id/toggle", s.togglePipelineHandler)
		}

		templates := api.Group("/templates")
		{
			templates.GET("", s.listTemplatesHandler)
			templates.POST("/:id/import", s.importTemplateHandler)
		}

		api.GET("/signals", s.listSignalsHandler)
		api.GET("/signals/:type/current", s.currentValuesHandler)
		api.GET("/actions", s.actionCatalogHandler)

		logs := api.Group("/logs")
		{
			logs.GET("/events", s.listEventLogsHandler)
			logs.GET("/actions", s.listActionLogsHandler)
		}

		system := api.Group("/system")
		{
			system.GET("/status", s.systemStatusHandler)
			system.GET("/config", s.systemConfigHandler)
			system.GET("/permissions", s.getPermissionsHandler)
			system.PUT("/permissions", s.updatePermissionsHandler)
		}
	}

	return r
}
