package store

import (
	"context"
	"math"
	"os"
	"testing"
	"time"

	"github.com/firewatch/detection-server/pkg/types"
)

// These tests run against a live Postgres and are skipped otherwise. Point
// DATABASE_URL at a throwaway database: the detection table is truncated.

func newTestStore(t *testing.T, maxEntries int) *Store {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set, skipping store integration tests")
	}

	ctx := context.Background()
	s, err := New(ctx, url, maxEntries)
	if err != nil {
		t.Skipf("database not reachable: %v", err)
	}
	t.Cleanup(s.Close)

	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if _, err := s.pool.Exec(ctx, "TRUNCATE "+tableName+" RESTART IDENTITY"); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return s
}

func fireEvent(ts time.Time, confidence float64) types.DetectionEvent {
	x, y, w, h := 0.5, 0.5, 0.2, 0.25
	return types.DetectionEvent{
		Timestamp:      ts,
		AIServerID:     "24365",
		ClassName:      types.ClassFire,
		ObjectType:     types.ClassFire,
		Confidence:     confidence,
		IsFireDetected: true,
		LocationX:      &x,
		LocationY:      &y,
		BoxWidth:       &w,
		BoxHeight:      &h,
	}
}

func TestAppendAssignsIncreasingIDs(t *testing.T) {
	s := newTestStore(t, 100)
	ctx := context.Background()

	var prev int64
	for i := 0; i < 5; i++ {
		id, err := s.Append(ctx, fireEvent(time.Now(), 0.9))
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		if id <= prev {
			t.Fatalf("id %d not greater than previous %d", id, prev)
		}
		prev = id
	}
}

func TestRetentionCapEvictsOldestFirst(t *testing.T) {
	const maxRows = 10
	s := newTestStore(t, maxRows)
	ctx := context.Background()

	ids := make([]int64, 0, maxRows+5)
	for i := 0; i < maxRows+5; i++ {
		id, err := s.Append(ctx, fireEvent(time.Now(), 0.9))
		if err != nil {
			t.Fatalf("Append #%d: %v", i, err)
		}
		ids = append(ids, id)
	}

	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+tableName).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != maxRows {
		t.Fatalf("row count = %d, want %d", count, maxRows)
	}

	// Survivors are exactly the most recently inserted ids.
	var minID int64
	if err := s.pool.QueryRow(ctx, "SELECT MIN(id) FROM "+tableName).Scan(&minID); err != nil {
		t.Fatalf("min id: %v", err)
	}
	if want := ids[len(ids)-maxRows]; minID != want {
		t.Fatalf("oldest surviving id = %d, want %d", minID, want)
	}
}

func TestTodayCountsAndRecentAlerts(t *testing.T) {
	s := newTestStore(t, 1000)
	ctx := context.Background()

	now := time.Now()
	if _, err := s.Append(ctx, fireEvent(now, 0.90)); err != nil {
		t.Fatalf("Append fire: %v", err)
	}

	smoke := fireEvent(now.Add(time.Second), 0.80)
	smoke.ClassName = types.ClassSmoke
	smoke.ObjectType = types.ClassSmoke
	smoke.IsFireDetected = false
	smoke.IsSmokeDetected = true
	if _, err := s.Append(ctx, smoke); err != nil {
		t.Fatalf("Append smoke: %v", err)
	}

	// A routine detection must not show up in alerts or counts.
	person := fireEvent(now.Add(2*time.Second), 0.70)
	person.ClassName = "PERSON"
	person.ObjectType = "PERSON"
	person.IsFireDetected = false
	if _, err := s.Append(ctx, person); err != nil {
		t.Fatalf("Append person: %v", err)
	}

	// Yesterday's fire stays out of today's counts.
	if _, err := s.Append(ctx, fireEvent(now.AddDate(0, 0, -1), 0.95)); err != nil {
		t.Fatalf("Append old fire: %v", err)
	}

	fire, smokeCount, err := s.TodayCounts(ctx)
	if err != nil {
		t.Fatalf("TodayCounts: %v", err)
	}
	if fire != 1 || smokeCount != 1 {
		t.Fatalf("counts = fire %d smoke %d, want 1/1", fire, smokeCount)
	}

	alerts, err := s.RecentAlerts(ctx, 0)
	if err != nil {
		t.Fatalf("RecentAlerts: %v", err)
	}
	if len(alerts) != 3 {
		t.Fatalf("alerts = %d, want 3", len(alerts))
	}
	for i := 1; i < len(alerts); i++ {
		if alerts[i].Timestamp.After(alerts[i-1].Timestamp) {
			t.Fatalf("alerts not ordered newest first at index %d", i)
		}
	}
	if alerts[0].ClassName != types.ClassSmoke {
		t.Fatalf("newest alert class = %q, want SMOKE", alerts[0].ClassName)
	}
}

func TestConfidenceRoundTripPrecision(t *testing.T) {
	s := newTestStore(t, 100)
	ctx := context.Background()

	if _, err := s.Append(ctx, fireEvent(time.Now(), 0.8234)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	alerts, err := s.RecentAlerts(ctx, 1)
	if err != nil {
		t.Fatalf("RecentAlerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	// Column is NUMERIC(4,3): value survives to three decimal places.
	if math.Abs(alerts[0].Confidence-0.823) > 0.0005 {
		t.Fatalf("confidence = %v, want ~0.823", alerts[0].Confidence)
	}
	if alerts[0].LocationX == nil || math.Abs(*alerts[0].LocationX-0.5) > 1e-9 {
		t.Fatalf("location_x = %v, want 0.5", alerts[0].LocationX)
	}
}
