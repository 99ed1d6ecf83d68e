// Package store persists detection events in Postgres. It is the single
// writer of record: appends are serialized by the database transaction so id
// assignment and retention eviction never race.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/firewatch/detection-server/pkg/types"
)

// DefaultMaxLogEntries is the retention cap applied when none is configured.
const DefaultMaxLogEntries = 100000

// DefaultRecentLimit caps the recent-alerts query when the caller passes 0.
const DefaultRecentLimit = 100

const tableName = "detection"

// Store is a bounded, append-only detection log backed by Postgres.
type Store struct {
	pool       *pgxpool.Pool
	maxEntries int
}

// New connects to Postgres, verifies the connection, and returns a store
// enforcing the given retention cap.
func New(ctx context.Context, databaseURL string, maxEntries int) (*Store, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxLogEntries
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("database config: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	return &Store{pool: pool, maxEntries: maxEntries}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// EnsureSchema creates the detection table when missing. Column precisions
// match the upstream detector contract (confidence 0.000-9.999, geometry
// 0.0000-9.9999).
func (s *Store) EnsureSchema(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS ` + tableName + ` (
			id BIGSERIAL PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			ai_server_id VARCHAR(50) NOT NULL,
			class_name VARCHAR(50) NOT NULL,
			confidence NUMERIC(4, 3) NOT NULL,
			is_fire_detected BOOLEAN,
			is_smoke_detected BOOLEAN,
			location_x NUMERIC(5, 4) NULL,
			location_y NUMERIC(5, 4) NULL,
			box_width NUMERIC(5, 4) NULL,
			box_height NUMERIC(5, 4) NULL
		)`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// Append inserts one event and enforces the retention cap in the same
// transaction: when the row count exceeds the cap, the oldest rows by id are
// deleted until the count is back at the cap. Returns the assigned id.
func (s *Store) Append(ctx context.Context, ev types.DetectionEvent) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback(ctx)

	insert := `
		INSERT INTO ` + tableName + `
			(timestamp, ai_server_id, class_name, confidence,
			 is_fire_detected, is_smoke_detected,
			 location_x, location_y, box_width, box_height)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	var id int64
	err = tx.QueryRow(ctx, insert,
		ev.Timestamp,
		ev.AIServerID,
		ev.ClassName,
		ev.Confidence,
		ev.IsFireDetected,
		ev.IsSmokeDetected,
		ev.LocationX,
		ev.LocationY,
		ev.BoxWidth,
		ev.BoxHeight,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert detection: %w", err)
	}

	var count int64
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM `+tableName).Scan(&count); err != nil {
		return 0, fmt.Errorf("count detections: %w", err)
	}

	if excess := count - int64(s.maxEntries); excess > 0 {
		// FIFO by id: alerts age out exactly like routine rows.
		evict := `
			DELETE FROM ` + tableName + `
			WHERE id IN (SELECT id FROM ` + tableName + ` ORDER BY id ASC LIMIT $1)`
		if _, err := tx.Exec(ctx, evict, excess); err != nil {
			return 0, fmt.Errorf("evict oldest rows: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit append: %w", err)
	}
	return id, nil
}

// TodayCounts returns how many fire-flagged and smoke-flagged events carry a
// timestamp on the current calendar day (database clock).
func (s *Store) TodayCounts(ctx context.Context) (fire, smoke int64, err error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE is_fire_detected),
			COUNT(*) FILTER (WHERE is_smoke_detected)
		FROM ` + tableName + `
		WHERE timestamp::date = CURRENT_DATE`
	if err := s.pool.QueryRow(ctx, query).Scan(&fire, &smoke); err != nil {
		return 0, 0, fmt.Errorf("today counts: %w", err)
	}
	return fire, smoke, nil
}

// RecentAlerts returns up to limit events where fire or smoke was flagged,
// newest first. A limit of 0 uses DefaultRecentLimit.
func (s *Store) RecentAlerts(ctx context.Context, limit int) ([]types.DetectionEvent, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	query := `
		SELECT id, timestamp, ai_server_id, class_name, confidence,
		       COALESCE(is_fire_detected, FALSE),
		       COALESCE(is_smoke_detected, FALSE),
		       location_x, location_y, box_width, box_height
		FROM ` + tableName + `
		WHERE is_fire_detected = TRUE OR is_smoke_detected = TRUE
		ORDER BY timestamp DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("recent alerts: %w", err)
	}
	defer rows.Close()

	events := make([]types.DetectionEvent, 0, limit)
	for rows.Next() {
		var ev types.DetectionEvent
		if err := rows.Scan(
			&ev.ID,
			&ev.Timestamp,
			&ev.AIServerID,
			&ev.ClassName,
			&ev.Confidence,
			&ev.IsFireDetected,
			&ev.IsSmokeDetected,
			&ev.LocationX,
			&ev.LocationY,
			&ev.BoxWidth,
			&ev.BoxHeight,
		); err != nil {
			return nil, fmt.Errorf("scan alert row: %w", err)
		}
		ev.ObjectType = ev.ClassName
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return events, nil
}
