package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/signaldock/signaldock/pkg/models"
)

// PipelineStore persists pipeline graphs. Nodes and edges are stored as
// JSONB so the stored shape matches the wire shape exactly.
type PipelineStore struct {
	db *sql.DB
}

func NewPipelineStore(db *sql.DB) *PipelineStore {
	return &PipelineStore{db: db}
}

const pipelineColumns = "id, name, description, nodes, edges, is_active, is_template, created_at, updated_at"

// Create inserts a pipeline and returns it with its assigned id.
func (s *PipelineStore) Create(ctx context.Context, rec models.PipelineRecord) (models.PipelineRecord, error) {
	if strings.TrimSpace(rec.Name) == "" {
		return models.PipelineRecord{}, NewValidationError("name", "must not be empty")
	}
	nodes, edges, err := marshalGraph(rec)
	if err != nil {
		return models.PipelineRecord{}, err
	}

	row := s.db.QueryRowContext(ctx,
		`INSERT INTO pipelines (name, description, nodes, edges, is_active, is_template)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+pipelineColumns,
		rec.Name, rec.Description, nodes, edges, rec.IsActive, rec.IsTemplate)
	out, err := scanPipeline(row)
	if err != nil {
		return models.PipelineRecord{}, fmt.Errorf("failed to create pipeline: %w", err)
	}
	return out, nil
}

// Get fetches one pipeline by id.
func (s *PipelineStore) Get(ctx context.Context, id int64) (models.PipelineRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+pipelineColumns+` FROM pipelines WHERE id = $1`, id)
	rec, err := scanPipeline(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PipelineRecord{}, fmt.Errorf("pipeline %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.PipelineRecord{}, fmt.Errorf("failed to get pipeline %d: %w", id, err)
	}
	return rec, nil
}

// List returns all non-template pipelines, newest first.
func (s *PipelineStore) List(ctx context.Context) ([]models.PipelineRecord, error) {
	return s.query(ctx,
		`SELECT `+pipelineColumns+` FROM pipelines WHERE NOT is_template ORDER BY id DESC`)
}

// ListActive returns the pipelines the executor should load at startup.
func (s *PipelineStore) ListActive(ctx context.Context) ([]models.PipelineRecord, error) {
	return s.query(ctx,
		`SELECT `+pipelineColumns+` FROM pipelines WHERE is_active AND NOT is_template ORDER BY id`)
}

// Templates returns all template pipelines.
func (s *PipelineStore) Templates(ctx context.Context) ([]models.PipelineRecord, error) {
	return s.query(ctx,
		`SELECT `+pipelineColumns+` FROM pipelines WHERE is_template ORDER BY name`)
}

// Update replaces name, description and graph of an existing pipeline.
func (s *PipelineStore) Update(ctx context.Context, rec models.PipelineRecord) (models.PipelineRecord, error) {
	if strings.TrimSpace(rec.Name) == "" {
		return models.PipelineRecord{}, NewValidationError("name", "must not be empty")
	}
	nodes, edges, err := marshalGraph(rec)
	if err != nil {
		return models.PipelineRecord{}, err
	}

	row := s.db.QueryRowContext(ctx,
		`UPDATE pipelines
		 SET name = $2, description = $3, nodes = $4, edges = $5, updated_at = now()
		 WHERE id = $1
		 RETURNING `+pipelineColumns,
		rec.ID, rec.Name, rec.Description, nodes, edges)
	out, err := scanPipeline(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PipelineRecord{}, fmt.Errorf("pipeline %d: %w", rec.ID, ErrNotFound)
	}
	if err != nil {
		return models.PipelineRecord{}, fmt.Errorf("failed to update pipeline %d: %w", rec.ID, err)
	}
	return out, nil
}

// SetActive flips the activation flag and returns the updated record.
func (s *PipelineStore) SetActive(ctx context.Context, id int64, active bool) (models.PipelineRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE pipelines SET is_active = $2, updated_at = now()
		 WHERE id = $1 AND NOT is_template
		 RETURNING `+pipelineColumns, id, active)
	rec, err := scanPipeline(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PipelineRecord{}, fmt.Errorf("pipeline %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.PipelineRecord{}, fmt.Errorf("failed to toggle pipeline %d: %w", id, err)
	}
	return rec, nil
}

// Delete removes a pipeline.
func (s *PipelineStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pipelines WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete pipeline %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("pipeline %d: %w", id, ErrNotFound)
	}
	return nil
}

// ImportTemplate copies a template into a new inactive pipeline. The
// copy gets the given name, or the template's own name if empty.
func (s *PipelineStore) ImportTemplate(ctx context.Context, templateID int64, name string) (models.PipelineRecord, error) {
	tpl, err := s.Get(ctx, templateID)
	if err != nil {
		return models.PipelineRecord{}, err
	}
	if !tpl.IsTemplate {
		return models.PipelineRecord{}, fmt.Errorf("pipeline %d is not a template: %w", templateID, ErrInvalidInput)
	}
	if name == "" {
		name = tpl.Name
	}
	return s.Create(ctx, models.PipelineRecord{
		Name:        name,
		Description: tpl.Description,
		Nodes:       tpl.Nodes,
		Edges:       tpl.Edges,
	})
}

func (s *PipelineStore) query(ctx context.Context, q string, args ...any) ([]models.PipelineRecord, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pipelines: %w", err)
	}
	defer rows.Close()

	var out []models.PipelineRecord
	for rows.Next() {
		rec, err := scanPipeline(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pipeline: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPipeline(row rowScanner) (models.PipelineRecord, error) {
	var rec models.PipelineRecord
	var nodes, edges []byte
	var createdAt, updatedAt time.Time
	err := row.Scan(&rec.ID, &rec.Name, &rec.Description, &nodes, &edges,
		&rec.IsActive, &rec.IsTemplate, &createdAt, &updatedAt)
	if err != nil {
		return models.PipelineRecord{}, err
	}
	if err := json.Unmarshal(nodes, &rec.Nodes); err != nil {
		return models.PipelineRecord{}, fmt.Errorf("failed to decode nodes: %w", err)
	}
	if err := json.Unmarshal(edges, &rec.Edges); err != nil {
		return models.PipelineRecord{}, fmt.Errorf("failed to decode edges: %w", err)
	}
	rec.CreatedAt = createdAt.UTC()
	rec.UpdatedAt = updatedAt.UTC()
	return rec, nil
}

func marshalGraph(rec models.PipelineRecord) ([]byte, []byte, error) {
	if rec.Nodes == nil {
		rec.Nodes = []models.NodeRecord{}
	}
	if rec.Edges == nil {
		rec.Edges = []models.EdgeRecord{}
	}
	nodes, err := json.Marshal(rec.Nodes)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode nodes: %w", err)
	}
	edges, err := json.Marshal(rec.Edges)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode edges: %w", err)
	}
	return nodes, edges, nil
}
