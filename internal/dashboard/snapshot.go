package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const snapshotKey = "catalog:lowstock:latest"

// SnapshotStore keeps the last low-stock report produced by the background scan.
type SnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSnapshotStore constructs a SnapshotStore. A zero ttl keeps the snapshot until replaced.
func NewSnapshotStore(client *redis.Client, ttl time.Duration) *SnapshotStore {
	return &SnapshotStore{client: client, ttl: ttl}
}

// Save replaces the stored snapshot.
func (s *SnapshotStore) Save(ctx context.Context, report LowStockReport) error {
	if s == nil || s.client == nil {
		return nil
	}
	raw, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("dashboard: encode snapshot: %w", err)
	}
	if err := s.client.Set(ctx, snapshotKey, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("dashboard: save snapshot: %w", err)
	}
	return nil
}

// Latest returns the stored snapshot. ok is false when no scan has run yet.
func (s *SnapshotStore) Latest(ctx context.Context) (report LowStockReport, ok bool, err error) {
	if s == nil || s.client == nil {
		return LowStockReport{}, false, nil
	}
	raw, err := s.client.Get(ctx, snapshotKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return LowStockReport{}, false, nil
		}
		return LowStockReport{}, false, fmt.Errorf("dashboard: load snapshot: %w", err)
	}
	if err := json.Unmarshal(raw, &report); err != nil {
		return LowStockReport{}, false, fmt.Errorf("dashboard: decode snapshot: %w", err)
	}
	return report, true, nil
}
