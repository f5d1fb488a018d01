package flagstore

import (
	"context"
	"sort"

	"github.com/redis/go-redis/v9"
)

// Each key is a redis set, under the store's namespace.
type RedisFlagStore struct {
	Client    *redis.Client
	namespace string
}

var _ FlagStore = (*RedisFlagStore)(nil)

func NewRedisFlagStore(rdb *redis.Client, namespace string) *RedisFlagStore {
	return &RedisFlagStore{Client: rdb, namespace: namespace}
}

func (s *RedisFlagStore) key(k string) string {
	return s.namespace + "flag/" + k
}

func toArgs(flags []string) []interface{} {
	l := make([]interface{}, len(flags))
	for i, v := range flags {
		l[i] = v
	}
	return l
}

// Returns members sorted, for stable output.
func (s *RedisFlagStore) Get(ctx context.Context, key string) ([]string, error) {
	l, err := s.Client.SMembers(ctx, s.key(key)).Result()
	if err == redis.Nil {
		return []string{}, nil
	} else if err != nil {
		return nil, err
	}
	sort.Strings(l)
	return l, nil
}

func (s *RedisFlagStore) Add(ctx context.Context, key string, flags []string) error {
	if len(flags) == 0 {
		return nil
	}
	return s.Client.SAdd(ctx, s.key(key), toArgs(flags)...).Err()
}

func (s *RedisFlagStore) Remove(ctx context.Context, key string, flags []string) error {
	if len(flags) == 0 {
		return nil
	}
	return s.Client.SRem(ctx, s.key(key), toArgs(flags)...).Err()
}
