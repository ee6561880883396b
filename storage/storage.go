package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get for keys with no value.
var ErrNotFound = errors.New("storage: key not found")

// ErrUnavailable wraps driver-level access failures (I/O, network, quota).
var ErrUnavailable = errors.New("storage: unavailable")

// Storage is the durable key-value capability. Implementations must be safe
// for concurrent use.
type Storage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
