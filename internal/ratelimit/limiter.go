package ratelimit

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketRateLimits = []byte("rate_limits")

// Config contains rate limit configuration
type Config struct {
	// Maximum successful sends per tenant per rolling hour
	MaxPerHour int

	// Persistence settings
	FlushInterval time.Duration
}

// Counter tracks one tenant's hour-window state
type Counter struct {
	Count       int       `json:"count"`
	WindowStart time.Time `json:"window_start"`
}

// Stats is a read-only view of a tenant's window
type Stats struct {
	Count       int       `json:"count"`
	Max         int       `json:"max"`
	WindowStart time.Time `json:"window_start"`
}

// Limiter enforces a per-tenant cap on successful sends per rolling hour.
// The gate (Allow) and the charge (Charge) are split on purpose: the loop
// checks the gate before every attempt, but only a successful send
// consumes budget. Counters are persisted to bbolt so the window survives
// a restart.
type Limiter struct {
	db       *bolt.DB
	config   Config
	counters map[string]*Counter // tenant -> counter
	mu       sync.Mutex
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewLimiter creates a rate limiter backed by db
func NewLimiter(db *bolt.DB, cfg Config) (*Limiter, error) {
	if cfg.MaxPerHour == 0 {
		cfg.MaxPerHour = 50
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 10 * time.Second
	}

	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRateLimits)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limits bucket: %w", err)
	}

	l := &Limiter{
		db:       db,
		config:   cfg,
		counters: make(map[string]*Counter),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}

	if err := l.loadCounters(); err != nil {
		return nil, fmt.Errorf("failed to load counters: %w", err)
	}

	go l.persistLoop()

	return l, nil
}

// Allow reports whether tenant has hourly budget left. It rolls the
// window if expired but never consumes budget; the caller charges after
// a successful send via Charge.
func (l *Limiter) Allow(tenant string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	counter := l.getOrCreateCounter(tenant)
	l.rollExpiredWindow(counter)

	return counter.Count < l.config.MaxPerHour
}

// Charge records one successful send for tenant
func (l *Limiter) Charge(tenant string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	counter := l.getOrCreateCounter(tenant)
	l.rollExpiredWindow(counter)
	counter.Count++
}

// Stats returns the current window state for tenant
func (l *Limiter) Stats(tenant string) Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	counter, exists := l.counters[tenant]
	if !exists {
		return Stats{Max: l.config.MaxPerHour}
	}

	stats := Stats{
		Count:       counter.Count,
		Max:         l.config.MaxPerHour,
		WindowStart: counter.WindowStart,
	}
	if l.now().Sub(counter.WindowStart) >= time.Hour {
		stats.Count = 0
	}
	return stats
}

// Stop stops the limiter and persists counters
func (l *Limiter) Stop() error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	return l.persistCounters()
}

func (l *Limiter) getOrCreateCounter(tenant string) *Counter {
	counter, exists := l.counters[tenant]
	if !exists {
		counter = &Counter{WindowStart: l.now()}
		l.counters[tenant] = counter
	}
	return counter
}

func (l *Limiter) rollExpiredWindow(counter *Counter) {
	now := l.now()
	if now.Sub(counter.WindowStart) >= time.Hour {
		counter.Count = 0
		counter.WindowStart = now
	}
}

func (l *Limiter) loadCounters() error {
	return l.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketRateLimits)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var counter Counter
			if err := json.Unmarshal(v, &counter); err != nil {
				return nil // Skip invalid entries
			}
			l.counters[string(k)] = &counter
			return nil
		})
	})
}

func (l *Limiter) persistCounters() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketRateLimits)
		if bucket == nil {
			return nil
		}

		for tenant, counter := range l.counters {
			data, err := json.Marshal(counter)
			if err != nil {
				continue
			}
			if err := bucket.Put([]byte(tenant), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (l *Limiter) persistLoop() {
	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.persistCounters()
		}
	}
}
