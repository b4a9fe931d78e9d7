package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signaldock/signaldock/pkg/actions"
	"github.com/signaldock/signaldock/pkg/config"
	"github.com/signaldock/signaldock/pkg/events"
	"github.com/signaldock/signaldock/pkg/models"
	"github.com/signaldock/signaldock/pkg/services"
	"github.com/signaldock/signaldock/pkg/signals"
)

// memStore is an in-memory PipelineStore for handler tests.
type memStore struct {
	nextID    int64
	pipelines map[int64]models.PipelineRecord
}

func newMemStore() *memStore {
	return &memStore{nextID: 1, pipelines: map[int64]models.PipelineRecord{}}
}

func (m *memStore) Create(_ context.Context, rec models.PipelineRecord) (models.PipelineRecord, error) {
	if rec.Name == "" {
		return models.PipelineRecord{}, services.NewValidationError("name", "must not be empty")
	}
	rec.ID = m.nextID
	m.nextID++
	rec.CreatedAt = time.Now().UTC()
	rec.UpdatedAt = rec.CreatedAt
	m.pipelines[rec.ID] = rec
	return rec, nil
}

func (m *memStore) Get(_ context.Context, id int64) (models.PipelineRecord, error) {
	rec, ok := m.pipelines[id]
	if !ok {
		return models.PipelineRecord{}, fmt.Errorf("pipeline %d: %w", id, services.ErrNotFound)
	}
	return rec, nil
}

func (m *memStore) List(context.Context) ([]models.PipelineRecord, error) {
	var out []models.PipelineRecord
	for _, rec := range m.pipelines {
		if !rec.IsTemplate {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memStore) Templates(context.Context) ([]models.PipelineRecord, error) {
	var out []models.PipelineRecord
	for _, rec := range m.pipelines {
		if rec.IsTemplate {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memStore) Update(ctx context.Context, rec models.PipelineRecord) (models.PipelineRecord, error) {
	existing, err := m.Get(ctx, rec.ID)
	if err != nil {
		return models.PipelineRecord{}, err
	}
	existing.Name = rec.Name
	existing.Description = rec.Description
	existing.Nodes = rec.Nodes
	existing.Edges = rec.Edges
	existing.UpdatedAt = time.Now().UTC()
	m.pipelines[rec.ID] = existing
	return existing, nil
}

func (m *memStore) SetActive(ctx context.Context, id int64, active bool) (models.PipelineRecord, error) {
	rec, err := m.Get(ctx, id)
	if err != nil {
		return models.PipelineRecord{}, err
	}
	rec.IsActive = active
	m.pipelines[id] = rec
	return rec, nil
}

func (m *memStore) Delete(_ context.Context, id int64) error {
	if _, ok := m.pipelines[id]; !ok {
		return fmt.Errorf("pipeline %d: %w", id, services.ErrNotFound)
	}
	delete(m.pipelines, id)
	return nil
}

func (m *memStore) ImportTemplate(ctx context.Context, templateID int64, name string) (models.PipelineRecord, error) {
	tpl, err := m.Get(ctx, templateID)
	if err != nil {
		return models.PipelineRecord{}, err
	}
	if !tpl.IsTemplate {
		return models.PipelineRecord{}, services.ErrInvalidInput
	}
	if name == "" {
		name = tpl.Name
	}
	return m.Create(ctx, models.PipelineRecord{Name: name, Description: tpl.Description, Nodes: tpl.Nodes, Edges: tpl.Edges})
}

// stubRunner tracks load/unload calls and can reject loads.
type stubRunner struct {
	loaded  map[int64]bool
	loadErr error
}

func newStubRunner() *stubRunner { return &stubRunner{loaded: map[int64]bool{}} }

func (r *stubRunner) Load(rec models.PipelineRecord) error {
	if r.loadErr != nil {
		return r.loadErr
	}
	r.loaded[rec.ID] = true
	return nil
}

func (r *stubRunner) Unload(id int64)      { delete(r.loaded, id) }
func (r *stubRunner) Loaded(id int64) bool { return r.loaded[id] }
func (r *stubRunner) LoadedIDs() []int64 {
	out := []int64{}
	for id := range r.loaded {
		out = append(out, id)
	}
	return out
}

// stubManager serves fixed statuses and current values.
type stubManager struct {
	statuses []signals.Status
	values   map[string]map[string]any
}

func (m *stubManager) Statuses() []signals.Status { return m.statuses }

func (m *stubManager) CurrentValues(_ context.Context, sourceType string) (map[string]any, error) {
	v, ok := m.values[sourceType]
	if !ok {
		return nil, fmt.Errorf("unknown signal source: %s", sourceType)
	}
	return v, nil
}

type testServer struct {
	*Server
	store  *memStore
	runner *stubRunner
	http   *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := newMemStore()
	runner := newStubRunner()
	cfg := config.DefaultConfig()
	hub := events.NewHub(time.Second)
	t.Cleanup(hub.Close)

	manager := &stubManager{
		statuses: []signals.Status{
			{Name: "cpu_ram_monitor", Type: "cpu", Running: true, LastValue: map[string]any{"cpu_percent": 12.0}},
		},
		values: map[string]map[string]any{
			"cpu": {"cpu_percent": 12.0, "ram_percent": 40.0},
		},
	}

	srv := NewServer(cfg, store, nil, runner, manager, actions.NewRegistry(),
		config.NewPermissions(cfg.Permissions), hub, nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &testServer{Server: srv, store: store, runner: runner, http: ts}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.http.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var decoded map[string]any
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&decoded)
	}
	return resp, decoded
}

func validPipelineBody(name string) map[string]any {
	return map[string]any{
		"name": name,
		"nodes": []map[string]any{
			{"id": "src", "type": "source", "data": map[string]any{"source_type": "cpu"}},
			{"id": "act", "type": "action", "data": map[string]any{"action_type": "notification", "params": map[string]any{"title": "t"}}},
		},
		"edges": []map[string]any{{"id": "e1", "source": "src", "target": "act"}},
	}
}

func TestPipelineLifecycle(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodPost, "/api/pipelines", validPipelineBody("cpu alert"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "cpu alert", body["name"])
	assert.Equal(t, false, body["is_active"])
	assert.Equal(t, false, body["loaded"])
	id := int64(body["id"].(float64))

	resp, body = ts.do(t, http.MethodPost, fmt.Sprintf("/api/pipelines/%d/toggle", id), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["is_active"])
	assert.Equal(t, true, body["loaded"])
	assert.True(t, ts.runner.Loaded(id))

	resp, body = ts.do(t, http.MethodPost, fmt.Sprintf("/api/pipelines/%d/toggle", id), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["is_active"])
	assert.False(t, ts.runner.Loaded(id))

	resp, _ = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/pipelines/%d", id), nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, fmt.Sprintf("/api/pipelines/%d", id), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreatePipelineValidation(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := ts.do(t, http.MethodPost, "/api/pipelines", map[string]any{"description": "no name"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestToggleRejectsBrokenGraph(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodPost, "/api/pipelines", validPipelineBody("broken"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := int64(body["id"].(float64))

	ts.runner.loadErr = fmt.Errorf("unknown action type: teleport")
	resp, _ = ts.do(t, http.MethodPost, fmt.Sprintf("/api/pipelines/%d/toggle", id), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	// Activation must not have been persisted.
	resp, body = ts.do(t, http.MethodGet, fmt.Sprintf("/api/pipelines/%d", id), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["is_active"])
}

func TestUpdateReloadsActivePipeline(t *testing.T) {
	ts := newTestServer(t)

	_, body := ts.do(t, http.MethodPost, "/api/pipelines", validPipelineBody("reload me"))
	id := int64(body["id"].(float64))
	resp, _ := ts.do(t, http.MethodPost, fmt.Sprintf("/api/pipelines/%d/toggle", id), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	updated := validPipelineBody("reloaded")
	resp, body = ts.do(t, http.MethodPut, fmt.Sprintf("/api/pipelines/%d", id), updated)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "reloaded", body["name"])
	assert.True(t, ts.runner.Loaded(id))
}

func TestTemplateImport(t *testing.T) {
	ts := newTestServer(t)

	tpl := validPipelineBody("template: cpu alert")
	tpl["is_template"] = true
	resp, body := ts.do(t, http.MethodPost, "/api/pipelines", tpl)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	tplID := int64(body["id"].(float64))

	resp, body = ts.do(t, http.MethodGet, "/api/templates", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["templates"], 1)

	resp, body = ts.do(t, http.MethodPost, fmt.Sprintf("/api/templates/%d/import", tplID),
		map[string]any{"name": "mine"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "mine", body["name"])
	assert.Equal(t, false, body["is_template"])

	// Templates stay out of the pipeline listing.
	resp, body = ts.do(t, http.MethodGet, "/api/pipelines", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["pipelines"], 1)
}

func TestListSignals(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodGet, "/api/signals", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := body["signals"].([]any)
	require.Len(t, list, len(signals.Catalog()))

	var cpu map[string]any
	for _, raw := range list {
		entry := raw.(map[string]any)
		if entry["type"] == "cpu" {
			cpu = entry
		}
	}
	require.NotNil(t, cpu)
	assert.Equal(t, true, cpu["enabled"])
	assert.Equal(t, true, cpu["running"])
}

func TestCurrentValues(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodGet, "/api/signals/cpu/current", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	values := body["values"].(map[string]any)
	assert.Equal(t, 12.0, values["cpu_percent"])

	resp, _ = ts.do(t, http.MethodGet, "/api/signals/quantum/current", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestActionCatalog(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodGet, "/api/actions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := body["actions"].([]any)
	require.Len(t, list, 5)
	first := list[0].(map[string]any)
	assert.Equal(t, "notification", first["type"])
}

func TestPermissionsRoundTrip(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodGet, "/api/system/permissions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	perms := body["permissions"].(map[string]any)
	assert.Equal(t, false, perms["shell"])

	resp, body = ts.do(t, http.MethodPut, "/api/system/permissions",
		map[string]bool{"shell": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	perms = body["permissions"].(map[string]any)
	assert.Equal(t, true, perms["shell"])

	resp, _ = ts.do(t, http.MethodPut, "/api/system/permissions",
		map[string]bool{"root_of_all_evil": true})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSystemStatus(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodGet, "/api/system/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1.0, body["sources_total"])
	assert.Equal(t, 1.0, body["sources_running"])
	assert.NotEmpty(t, body["version"])
}

func TestHealthWithoutDatabase(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
}

func TestLogsUnavailableWithoutRecorder(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := ts.do(t, http.MethodGet, "/api/logs/events", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
