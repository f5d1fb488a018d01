package cachestore

import (
	"context"
)

// A cache miss is not an error: Get returns an empty string.
type CacheStore interface {
	Get(ctx context.Context, name, key string) (string, error)
	Set(ctx context.Context, name, key string, val string) error
	Purge(ctx context.Context, name, key string) error
}
