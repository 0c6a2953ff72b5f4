package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// WatermarkRepository persists the last processed instant of incremental jobs.
// Without a Redis client values live in memory and reset on restart.
type WatermarkRepository struct {
	client *redis.Client
	prefix string

	mu     sync.RWMutex
	memory map[string]time.Time
}

// NewWatermarkRepository constructs the repository. client may be nil.
func NewWatermarkRepository(client *redis.Client, prefix string) *WatermarkRepository {
	if prefix == "" {
		prefix = "watermark:"
	}
	return &WatermarkRepository{client: client, prefix: prefix, memory: make(map[string]time.Time)}
}

// Get returns the stored watermark and whether one exists.
func (r *WatermarkRepository) Get(ctx context.Context, name string) (time.Time, bool, error) {
	if r.client == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		t, ok := r.memory[name]
		return t, ok, nil
	}
	raw, err := r.client.Get(ctx, r.prefix+name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("redis get watermark %s: %w", name, err)
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse watermark %s: %w", name, err)
	}
	return t, true, nil
}

// Set stores the watermark.
func (r *WatermarkRepository) Set(ctx context.Context, name string, at time.Time) error {
	if r.client == nil {
		r.mu.Lock()
		r.memory[name] = at
		r.mu.Unlock()
		return nil
	}
	if err := r.client.Set(ctx, r.prefix+name, at.UTC().Format(time.RFC3339Nano), 0).Err(); err != nil {
		return fmt.Errorf("redis set watermark %s: %w", name, err)
	}
	return nil
}
