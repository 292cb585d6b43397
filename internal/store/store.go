// Package store persists per-tenant campaign snapshots in bbolt so a
// crashed or restarted process resumes batches where they left off.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/damaro/courier/internal/campaign"
)

var bucketCampaigns = []byte("campaigns")

// Store is a bbolt-backed snapshot store. The underlying DB is shared
// with the rate limiter's counter bucket.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) the snapshot database at path
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCampaigns)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create campaigns bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying bbolt handle for co-located buckets
func (s *Store) DB() *bolt.DB {
	return s.db
}

// SaveCampaign persists a tenant's campaign snapshot
func (s *Store) SaveCampaign(tenant string, snap *campaign.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCampaigns).Put([]byte(tenant), data)
	})
}

// LoadCampaign returns a tenant's persisted snapshot, or nil when the
// tenant has none
func (s *Store) LoadCampaign(tenant string) (*campaign.Snapshot, error) {
	var snap *campaign.Snapshot

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCampaigns).Get([]byte(tenant))
		if data == nil {
			return nil
		}
		snap = &campaign.Snapshot{}
		if err := json.Unmarshal(data, snap); err != nil {
			return fmt.Errorf("failed to unmarshal snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Tenants lists every tenant with a persisted snapshot
func (s *Store) Tenants() ([]string, error) {
	var tenants []string

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCampaigns).ForEach(func(k, v []byte) error {
			tenants = append(tenants, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return tenants, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}
