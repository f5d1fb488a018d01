package countstore

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Counters in redis: plain INCR keys for counts and HyperLogLogs for distinct counts. Every period bucket is written in one pipelined round-trip.
type RedisCountStore struct {
	Client    *redis.Client
	namespace string
}

var _ CountStore = (*RedisCountStore)(nil)

func NewRedisCountStore(rdb *redis.Client, namespace string) *RedisCountStore {
	return &RedisCountStore{Client: rdb, namespace: namespace}
}

func (s *RedisCountStore) countKey(name, val, period string) string {
	return s.namespace + "count/" + periodBucket(name, val, period)
}

func (s *RedisCountStore) distinctKey(name, bucket, period string) string {
	return s.namespace + "distinct/" + periodBucket(name, bucket, period)
}

func (s *RedisCountStore) GetCount(ctx context.Context, name, val, period string) (int, error) {
	c, err := s.Client.Get(ctx, s.countKey(name, val, period)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return c, err
}

func (s *RedisCountStore) Increment(ctx context.Context, name, val string) error {
	_, err := s.Client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range periodTTL {
			key := s.countKey(name, val, p.period)
			pipe.Incr(ctx, key)
			if p.ttl > 0 {
				pipe.Expire(ctx, key, p.ttl)
			}
		}
		return nil
	})
	return err
}

func (s *RedisCountStore) GetCountDistinct(ctx context.Context, name, bucket, period string) (int, error) {
	c, err := s.Client.PFCount(ctx, s.distinctKey(name, bucket, period)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	return int(c), err
}

func (s *RedisCountStore) IncrementDistinct(ctx context.Context, name, bucket, val string) error {
	_, err := s.Client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range periodTTL {
			key := s.distinctKey(name, bucket, p.period)
			pipe.PFAdd(ctx, key, val)
			if p.ttl > 0 {
				pipe.Expire(ctx, key, p.ttl)
			}
		}
		return nil
	})
	return err
}
