package ratelimit

import (
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"
)

func setupTestDB(t *testing.T) *bolt.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

func TestNewLimiterDefaults(t *testing.T) {
	db := setupTestDB(t)

	limiter, err := NewLimiter(db, Config{})
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}
	defer limiter.Stop()

	if limiter.config.MaxPerHour != 50 {
		t.Errorf("expected default MaxPerHour=50, got %d", limiter.config.MaxPerHour)
	}
	if limiter.config.FlushInterval != 10*time.Second {
		t.Errorf("expected default FlushInterval=10s, got %v", limiter.config.FlushInterval)
	}
}

func TestAllowDoesNotConsume(t *testing.T) {
	db := setupTestDB(t)

	limiter, err := NewLimiter(db, Config{MaxPerHour: 2})
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}
	defer limiter.Stop()

	// Allow is a gate, not a charge: repeated checks never use budget.
	for i := 0; i < 10; i++ {
		if !limiter.Allow("ana") {
			t.Fatalf("Allow denied on check %d with no charges", i)
		}
	}
	if got := limiter.Stats("ana").Count; got != 0 {
		t.Errorf("expected count 0 after checks, got %d", got)
	}
}

func TestChargeUntilDenied(t *testing.T) {
	db := setupTestDB(t)

	limiter, err := NewLimiter(db, Config{MaxPerHour: 3})
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}
	defer limiter.Stop()

	for i := 0; i < 3; i++ {
		if !limiter.Allow("ana") {
			t.Fatalf("expected Allow before charge %d", i)
		}
		limiter.Charge("ana")
	}

	if limiter.Allow("ana") {
		t.Error("expected denial after MaxPerHour charges")
	}
	if got := limiter.Stats("ana").Count; got != 3 {
		t.Errorf("expected count 3, got %d", got)
	}
}

func TestTenantsIndependent(t *testing.T) {
	db := setupTestDB(t)

	limiter, err := NewLimiter(db, Config{MaxPerHour: 1})
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}
	defer limiter.Stop()

	limiter.Charge("ana")
	if limiter.Allow("ana") {
		t.Error("expected ana to be denied")
	}
	if !limiter.Allow("bruno") {
		t.Error("expected bruno to be allowed")
	}
}

func TestWindowRollover(t *testing.T) {
	db := setupTestDB(t)

	limiter, err := NewLimiter(db, Config{MaxPerHour: 1})
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}
	defer limiter.Stop()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	limiter.now = func() time.Time { return now }

	limiter.Charge("ana")
	if limiter.Allow("ana") {
		t.Fatal("expected denial within window")
	}

	// 59 minutes later: still the same window.
	now = base.Add(59 * time.Minute)
	if limiter.Allow("ana") {
		t.Error("expected denial before the hour boundary")
	}

	// Past the hour: the window rolls, counter resets, WindowStart moves.
	now = base.Add(61 * time.Minute)
	if !limiter.Allow("ana") {
		t.Error("expected allowance after the window rolled")
	}
	stats := limiter.Stats("ana")
	if stats.Count != 0 {
		t.Errorf("expected count reset to 0, got %d", stats.Count)
	}
	if !stats.WindowStart.Equal(now) {
		t.Errorf("expected window start %v, got %v", now, stats.WindowStart)
	}
}

func TestCountersSurviveRestart(t *testing.T) {
	db := setupTestDB(t)

	limiter, err := NewLimiter(db, Config{MaxPerHour: 5})
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}
	limiter.Charge("ana")
	limiter.Charge("ana")
	if err := limiter.Stop(); err != nil {
		t.Fatalf("failed to stop limiter: %v", err)
	}

	reloaded, err := NewLimiter(db, Config{MaxPerHour: 5})
	if err != nil {
		t.Fatalf("failed to reload limiter: %v", err)
	}
	defer reloaded.Stop()

	if got := reloaded.Stats("ana").Count; got != 2 {
		t.Errorf("expected persisted count 2, got %d", got)
	}
}
