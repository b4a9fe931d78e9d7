package services

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signaldock/signaldock/pkg/models"
)

// testDB opens the database named by SIGNALDOCK_TEST_DSN, or skips.
// The schema is expected to be migrated already.
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("SIGNALDOCK_TEST_DSN")
	if dsn == "" {
		t.Skip("SIGNALDOCK_TEST_DSN not set")
	}
	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Ping())
	return db
}

func samplePipeline(name string) models.PipelineRecord {
	return models.PipelineRecord{
		Name:        name,
		Description: "test pipeline",
		Nodes: []models.NodeRecord{
			{ID: "src", Type: models.NodeSource, Data: map[string]any{"source_type": "cpu"}},
			{ID: "act", Type: models.NodeAction, Data: map[string]any{"action_type": "notification", "params": map[string]any{"title": "t"}}},
		},
		Edges: []models.EdgeRecord{{ID: "e1", Source: "src", Target: "act"}},
	}
}

func TestPipelineStoreCRUD(t *testing.T) {
	db := testDB(t)
	store := NewPipelineStore(db)
	ctx := context.Background()

	created, err := store.Create(ctx, samplePipeline("crud test"))
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	t.Cleanup(func() { _ = store.Delete(ctx, created.ID) })

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "crud test", got.Name)
	require.Len(t, got.Nodes, 2)
	assert.Equal(t, models.NodeSource, got.Nodes[0].Type)
	assert.Equal(t, "cpu", got.Nodes[0].Data["source_type"])

	got.Name = "renamed"
	updated, err := store.Update(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt) || updated.UpdatedAt.Equal(created.UpdatedAt))

	toggled, err := store.SetActive(ctx, created.ID, true)
	require.NoError(t, err)
	assert.True(t, toggled.IsActive)

	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	found := false
	for _, p := range active {
		if p.ID == created.ID {
			found = true
		}
	}
	assert.True(t, found)

	require.NoError(t, store.Delete(ctx, created.ID))
	_, err = store.Get(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPipelineStoreValidation(t *testing.T) {
	db := testDB(t)
	store := NewPipelineStore(db)

	_, err := store.Create(context.Background(), models.PipelineRecord{Name: "   "})
	assert.True(t, IsValidationError(err))
}

func TestPipelineStoreTemplates(t *testing.T) {
	db := testDB(t)
	store := NewPipelineStore(db)
	ctx := context.Background()

	tpl := samplePipeline("template: cpu alert")
	tpl.IsTemplate = true
	created, err := store.Create(ctx, tpl)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Delete(ctx, created.ID) })

	templates, err := store.Templates(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, templates)

	// Templates never show up in the regular listing.
	list, err := store.List(ctx)
	require.NoError(t, err)
	for _, p := range list {
		assert.NotEqual(t, created.ID, p.ID)
	}

	imported, err := store.ImportTemplate(ctx, created.ID, "my cpu alert")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Delete(ctx, imported.ID) })
	assert.Equal(t, "my cpu alert", imported.Name)
	assert.False(t, imported.IsTemplate)
	assert.False(t, imported.IsActive)
	assert.Equal(t, created.Nodes, imported.Nodes)

	// Importing a non-template is rejected.
	_, err = store.ImportTemplate(ctx, imported.ID, "copy of copy")
	assert.Error(t, err)
}

func TestRecorderRoundTrip(t *testing.T) {
	db := testDB(t)
	rec := NewRecorder(db)
	ctx := context.Background()

	ev := models.NewSignalEvent(models.EventThresholdCrossed, map[string]any{"cpu_percent": 93.0}, nil)
	ev.SourceType = "cpu"
	ev.SourceName = "cpu_ram_monitor"
	require.NoError(t, rec.RecordEvent(ctx, ev))

	events, err := rec.ListEvents(ctx, EventLogQuery{SourceType: "cpu", Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, ev.ID, events[0].EventID)
	assert.Equal(t, 93.0, events[0].Data["cpu_percent"])

	result := models.SuccessResult("notified", map[string]any{"title": "hi"})
	result.ExecutionTimeMs = 4.2
	require.NoError(t, rec.RecordAction(ctx, 12345, "act-1", result))

	actions, err := rec.ListActions(ctx, ActionLogQuery{PipelineID: 12345, Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, actions)
	assert.Equal(t, result.ID, actions[0].ResultID)
	assert.Equal(t, "success", actions[0].Status)
	assert.Equal(t, 4.2, actions[0].ExecutionTimeMs)

	none, err := rec.ListActions(ctx, ActionLogQuery{PipelineID: 12345, Status: "failure", Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, none)

	_ = eventCleanup(db, ev.ID)
	_ = actionCleanup(db, result.ID)
}

func eventCleanup(db *sql.DB, eventID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := db.ExecContext(ctx, `DELETE FROM event_logs WHERE event_id = $1`, eventID)
	return err
}

func actionCleanup(db *sql.DB, resultID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := db.ExecContext(ctx, `DELETE FROM action_logs WHERE result_id = $1`, resultID)
	return err
}
