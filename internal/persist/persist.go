// Package persist is the serialization boundary between the in-memory
// stores and their backing storage. Stores never write to storage
// themselves; the caller saves a projection after each mutation.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrMalformed = errors.New("persist: malformed blob")

// Scope decides how long a blob lives.
type Scope int

const (
	// Durable blobs survive until deleted.
	Durable Scope = iota
	// Session blobs expire after a period without writes.
	Session
)

func (s Scope) String() string {
	switch s {
	case Durable:
		return "durable"
	case Session:
		return "session"
	}
	return fmt.Sprintf("scope(%d)", int(s))
}

// Stable blob names, namespaced per console client with Key.
const (
	SessionKey = "auth-storage"
	BookingKey = "booking-storage"
	CartKey    = "restaurant-cart"
)

// Key namespaces a blob name by console client.
func Key(clientID, name string) string {
	return clientID + ":" + name
}

// Storage is a key-value store for JSON blobs.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, blob []byte, scope Scope) error
	Delete(ctx context.Context, key string) error
}

// Sweeper is implemented by backends that need periodic expiry.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Save encodes v as JSON and writes it under key.
func Save[T any](ctx context.Context, s Storage, key string, scope Scope, v T) error {
	blob, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("persist: encode %q: %w", key, err)
	}
	if err := s.Set(ctx, key, blob, scope); err != nil {
		return fmt.Errorf("persist: write %q: %w", key, err)
	}
	return nil
}

// Load reads and decodes the blob under key. A missing blob returns
// ok=false; an undecodable one returns ErrMalformed so the caller can fall
// back to defaults.
func Load[T any](ctx context.Context, s Storage, key string) (T, bool, error) {
	var zero T
	blob, ok, err := s.Get(ctx, key)
	if err != nil {
		return zero, false, fmt.Errorf("persist: read %q: %w", key, err)
	}
	if !ok || len(blob) == 0 {
		return zero, false, nil
	}
	var v T
	if err := json.Unmarshal(blob, &v); err != nil {
		return zero, false, fmt.Errorf("%w: %q: %v", ErrMalformed, key, err)
	}
	return v, true, nil
}

func expiry(now time.Time, scope Scope, ttl time.Duration) time.Time {
	if scope == Session && ttl > 0 {
		return now.Add(ttl)
	}
	return time.Time{}
}
