package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// LKGStore persists and serves the last-known-good snapshot a gated
// Endpoint read falls back to (spec.md §4.8: "Availability-open forces
// mode=degraded and returns LKG if present"). Backed by Redis, the
// teacher's cache-layer dependency for exactly this shape of read.
type LKGStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLKGStore wraps an existing redis client. ttl bounds how stale an
// LKG snapshot may be before it is treated as absent.
func NewLKGStore(client *redis.Client, ttl time.Duration) *LKGStore {
	return &LKGStore{client: client, ttl: ttl}
}

func lkgKey(stream string) string {
	return "procguard:lkg:" + stream
}

// Put stores the last verified response for a stream, to be served
// later if the endpoint's availability track trips open.
func (s *LKGStore) Put(ctx context.Context, stream string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, lkgKey(stream), data, s.ttl).Err()
}

// ErrNoLKG is returned when no snapshot exists for the requested
// stream; the caller falls back to the well-known empty shape spec.md
// §4.8 allows in place of a snapshot.
var ErrNoLKG = errors.New("resilience: no last-known-good snapshot")

// Get retrieves and unmarshals the last stored snapshot for a stream
// into dest. Returns ErrNoLKG if none is present or it has expired.
func (s *LKGStore) Get(ctx context.Context, stream string, dest any) error {
	data, err := s.client.Get(ctx, lkgKey(stream)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNoLKG
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}
