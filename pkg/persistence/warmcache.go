// Package persistence holds the gateway's optional, best-effort backends:
// a Redis warm-cache mirror of the node table (this file) and a Postgres
// append-only audit log (postgres.go). Neither is ever read on the
// protocol's hot path; the in-memory node table is always authoritative.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/enigmaiot/enigmaiot/pkg/nodetable"
)

// WarmCache mirrors node table entries into Redis. The gateway writes an
// entry after each successful handshake; removals and invalidations are not
// mirrored, and the running gateway never reads entries back (the CLI's
// list-nodes and kick commands do). It is write-behind only: callers write
// to it after already mutating the in-memory table, never the other way
// around.
type WarmCache struct {
	client *redis.Client
	ctx    context.Context
	ttl    time.Duration
}

// cachedNode is the subset of nodetable.Node written to Redis: identity,
// status, name, session key and key_id, and timestamps. The nonce prefix and
// the replay counters are not stored.
type cachedNode struct {
	MAC          nodetable.MAC `json:"mac"`
	Status       int           `json:"status"`
	Name         string        `json:"name"`
	SessionKey   [32]byte      `json:"session_key"`
	KeyID        byte          `json:"key_id"`
	RegisteredAt time.Time     `json:"registered_at"`
	LastActivity time.Time     `json:"last_activity"`
}

// NewWarmCache dials addr and verifies connectivity. ttl bounds how long a
// mirrored entry survives without being refreshed; it should exceed the
// gateway's idle-eviction window so a live peer's cache entry never expires
// out from under it.
func NewWarmCache(addr string, ttl time.Duration) (*WarmCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("persistence: connect to redis: %w", err)
	}
	if ttl == 0 {
		ttl = 48 * time.Hour
	}
	log.Printf("persistence: warm-cache connected to %s", addr)
	return &WarmCache{client: client, ctx: ctx, ttl: ttl}, nil
}

// Mirror writes n's cacheable fields to Redis, overwriting any prior entry.
// Failures are returned to the caller to log; they must never block or
// roll back the in-memory insert that triggered this call.
func (w *WarmCache) Mirror(n *nodetable.Node) error {
	entry := cachedNode{
		MAC:          n.MAC,
		Status:       int(n.Status),
		Name:         n.Name,
		SessionKey:   n.SessionKey,
		KeyID:        n.KeyID,
		RegisteredAt: n.RegisteredAt,
		LastActivity: n.LastActivity,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("persistence: marshal node: %w", err)
	}
	return w.client.Set(w.ctx, cacheKey(n.MAC), data, w.ttl).Err()
}

// Forget removes mac's mirrored entry. The CLI's kick command calls it; the
// gateway itself does not.
func (w *WarmCache) Forget(mac nodetable.MAC) error {
	return w.client.Del(w.ctx, cacheKey(mac)).Err()
}

// LoadAll returns every mirrored node (the CLI's list-nodes command reads
// it); the gateway does not load it into its table at startup. Absence of
// any entries is not an error.
func (w *WarmCache) LoadAll() ([]*nodetable.Node, error) {
	keys, err := w.client.Keys(w.ctx, "enigmaiot:node:*").Result()
	if err != nil {
		return nil, fmt.Errorf("persistence: list warm-cache keys: %w", err)
	}
	nodes := make([]*nodetable.Node, 0, len(keys))
	for _, key := range keys {
		data, err := w.client.Get(w.ctx, key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("persistence: read %s: %w", key, err)
		}
		var entry cachedNode
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			return nil, fmt.Errorf("persistence: unmarshal %s: %w", key, err)
		}
		nodes = append(nodes, &nodetable.Node{
			MAC:          entry.MAC,
			Status:       nodetable.Status(entry.Status),
			Name:         entry.Name,
			SessionKey:   entry.SessionKey,
			KeyID:        entry.KeyID,
			RegisteredAt: entry.RegisteredAt,
			LastActivity: entry.LastActivity,
		})
	}
	return nodes, nil
}

// Close releases the Redis connection.
func (w *WarmCache) Close() error {
	return w.client.Close()
}

func cacheKey(mac nodetable.MAC) string {
	return fmt.Sprintf("enigmaiot:node:%s", mac.String())
}
