package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/signaldock/signaldock/pkg/models"
)

// Recorder persists engine activity: every published signal event and
// every action result, for the history endpoints.
type Recorder struct {
	db *sql.DB
}

func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

// RecordEvent stores one signal event.
func (r *Recorder) RecordEvent(ctx context.Context, ev models.SignalEvent) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("failed to encode event data: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO event_logs (event_id, source_type, source_name, event_type, data, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.ID, ev.SourceType, ev.SourceName, string(ev.EventType), data, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// RecordAction stores one action result with pipeline attribution.
func (r *Recorder) RecordAction(ctx context.Context, pipelineID int64, nodeID string, result models.ActionResult) error {
	var data []byte
	if result.Data != nil {
		var err error
		data, err = json.Marshal(result.Data)
		if err != nil {
			return fmt.Errorf("failed to encode result data: %w", err)
		}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO action_logs (result_id, pipeline_id, node_id, status, message, error, execution_time_ms, data, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		result.ID, pipelineID, nodeID, string(result.Status), result.Message,
		result.Error, result.ExecutionTimeMs, data, result.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to record action: %w", err)
	}
	return nil
}

// EventLogQuery filters the event history listing.
type EventLogQuery struct {
	SourceType string
	EventType  string
	Limit      int
	Offset     int
}

// ListEvents returns recorded events, newest first.
func (r *Recorder) ListEvents(ctx context.Context, q EventLogQuery) ([]models.EventLogRecord, error) {
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `SELECT id, event_id, source_type, source_name, event_type, data, timestamp
		 FROM event_logs WHERE 1=1`
	args := []any{}
	if q.SourceType != "" {
		args = append(args, q.SourceType)
		query += fmt.Sprintf(" AND source_type = $%d", len(args))
	}
	if q.EventType != "" {
		args = append(args, q.EventType)
		query += fmt.Sprintf(" AND event_type = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d", len(args))
	args = append(args, q.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var out []models.EventLogRecord
	for rows.Next() {
		var rec models.EventLogRecord
		var data []byte
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.SourceType, &rec.SourceName,
			&rec.EventType, &data, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event log: %w", err)
		}
		if err := json.Unmarshal(data, &rec.Data); err != nil {
			return nil, fmt.Errorf("failed to decode event data: %w", err)
		}
		rec.Timestamp = rec.Timestamp.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ActionLogQuery filters the action history listing.
type ActionLogQuery struct {
	PipelineID int64
	Status     string
	Limit      int
	Offset     int
}

// ListActions returns recorded action results, newest first.
func (r *Recorder) ListActions(ctx context.Context, q ActionLogQuery) ([]models.ActionLogRecord, error) {
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `SELECT id, result_id, pipeline_id, node_id, status, message, error, execution_time_ms, data, timestamp
		 FROM action_logs WHERE 1=1`
	args := []any{}
	if q.PipelineID > 0 {
		args = append(args, q.PipelineID)
		query += fmt.Sprintf(" AND pipeline_id = $%d", len(args))
	}
	if q.Status != "" {
		args = append(args, q.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d", len(args))
	args = append(args, q.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer rows.Close()

	var out []models.ActionLogRecord
	for rows.Next() {
		var rec models.ActionLogRecord
		var data []byte
		if err := rows.Scan(&rec.ID, &rec.ResultID, &rec.PipelineID, &rec.NodeID,
			&rec.Status, &rec.Message, &rec.Error, &rec.ExecutionTimeMs, &data, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan action log: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &rec.Data); err != nil {
				return nil, fmt.Errorf("failed to decode action data: %w", err)
			}
		}
		rec.Timestamp = rec.Timestamp.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}
