// Component for persisting sets of string "flags" under a key.
//
// The trust registry uses this to persist the trusted-user set (user IDs as decimal strings), so that the set survives restarts when a redis backend is configured.
package flagstore

import (
	"context"
)

type FlagStore interface {
	Get(ctx context.Context, key string) ([]string, error)
	Add(ctx context.Context, key string, flags []string) error
	Remove(ctx context.Context, key string, flags []string) error
}
