// Package storage defines the durable key-value contract used by the local
// submission queue and the sync ledger.
package storage

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by Get when the key does not exist.
var ErrKeyNotFound = errors.New("key not found")

// KV is a durable key-value store. Individual Get/Set/Delete calls must be
// serialized by the implementation; callers do no locking of their own.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error

	// Scan calls fn for every key with the given prefix, in key order.
	// Returning an error from fn stops the scan and is returned as-is.
	Scan(ctx context.Context, prefix string, fn func(key string, value []byte) error) error
}
