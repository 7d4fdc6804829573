package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const snapshotKeyPrefix = "storyloom:progress:"

// RedisSnapshots stores progress snapshots with a TTL so a reconnecting
// client can still read last-known state after the coordinator is discarded.
type RedisSnapshots struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSnapshots wires the snapshot store.
func NewRedisSnapshots(client *redis.Client, ttl time.Duration) *RedisSnapshots {
	return &RedisSnapshots{client: client, ttl: ttl}
}

// Save overwrites the project's snapshot.
func (r *RedisSnapshots) Save(ctx context.Context, state State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := r.client.Set(ctx, snapshotKeyPrefix+state.ProjectID, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load returns the stored snapshot, or (nil, nil) when none exists.
func (r *RedisSnapshots) Load(ctx context.Context, projectID string) (*State, error) {
	data, err := r.client.Get(ctx, snapshotKeyPrefix+projectID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &st, nil
}
