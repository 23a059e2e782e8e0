package database

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("key not found")

// UpdateFunc inspects the current value of a key and decides what to write.
// found is false when the key is absent or expired. Returning write=false
// leaves the key untouched.
type UpdateFunc func(current []byte, found bool) (next []byte, write bool)

// Store defines the key-value operations hidewatch relies on.
// The shape mirrors a Redis-like store: string keys, hash keys with fields,
// and per-key expiry. All methods accept a context.Context as the first
// parameter to support cancellation.
type Store interface {
	// String keys
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error

	// Update runs fn against the current value and writes its result in the
	// same transaction. A concurrent writer to the same key makes one of the
	// two transactions fail with ErrConflict.
	Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) (written bool, err error)

	// Hash keys. Concurrent HSets of different fields of one hash must all
	// succeed.
	HSet(ctx context.Context, key string, fields map[string][]byte) error
	HGetAll(ctx context.Context, key string) ([]HashField, error)

	// Expire sets or refreshes the time-to-live of a string or hash key.
	// Expiring a missing key is a no-op.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	Close() error
}

// HashField is one field of a hash key. HGetAll returns fields in the
// store's iteration order.
type HashField struct {
	Field string
	Value []byte
}

// ErrConflict is returned by Update when a concurrent transaction touched the
// same key first.
var ErrConflict = errors.New("concurrent update conflict")
