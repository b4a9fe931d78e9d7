package database

import (
	"context"
	"database/sql"
	"time"
)

// PoolHealth is the snapshot the health endpoint embeds: ping outcome
// plus the pool counters that matter when the store is the bottleneck.
type PoolHealth struct {
	Status  string `json:"status"`
	PingMs  int64  `json:"response_time_ms"`
	Open    int    `json:"open_connections"`
	InUse   int    `json:"in_use"`
	Idle    int    `json:"idle"`
	WaitN   int64  `json:"wait_count"`
	WaitMs  int64  `json:"wait_duration_ms"`
	MaxOpen int    `json:"max_open_conns"`
}

// CheckHealth pings the database and reads the pool counters. On ping
// failure the snapshot still carries the measured latency alongside the
// returned error.
func CheckHealth(ctx context.Context, db *sql.DB) (*PoolHealth, error) {
	start := time.Now()
	if err := db.PingContext(ctx); err != nil {
		return &PoolHealth{
			Status: "unhealthy",
			PingMs: time.Since(start).Milliseconds(),
		}, err
	}

	stats := db.Stats()
	return &PoolHealth{
		Status:  "healthy",
		PingMs:  time.Since(start).Milliseconds(),
		Open:    stats.OpenConnections,
		InUse:   stats.InUse,
		Idle:    stats.Idle,
		WaitN:   stats.WaitCount,
		WaitMs:  stats.WaitDuration.Milliseconds(),
		MaxOpen: stats.MaxOpenConnections,
	}, nil
}
