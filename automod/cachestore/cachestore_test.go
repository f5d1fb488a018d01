package cachestore

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestMemCacheStoreBasics(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCacheStore(10, time.Hour)

	v, err := cs.Get(ctx, "msgtext", "1/5")
	assert.NoError(err)
	assert.Equal("", v)

	assert.NoError(cs.Set(ctx, "msgtext", "1/5", "hello"))
	v, err = cs.Get(ctx, "msgtext", "1/5")
	assert.NoError(err)
	assert.Equal("hello", v)

	// names are separate namespaces
	v, err = cs.Get(ctx, "fileid", "1/5")
	assert.NoError(err)
	assert.Equal("", v)

	assert.NoError(cs.Purge(ctx, "msgtext", "1/5"))
	v, err = cs.Get(ctx, "msgtext", "1/5")
	assert.NoError(err)
	assert.Equal("", v)

	// purging a missing key is fine
	assert.NoError(cs.Purge(ctx, "msgtext", "1/6"))
}

func TestMemCacheStoreCapacity(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCacheStore(2, time.Hour)
	assert.NoError(cs.Set(ctx, "msgtext", "a", "1"))
	assert.NoError(cs.Set(ctx, "msgtext", "b", "2"))
	assert.NoError(cs.Set(ctx, "msgtext", "c", "3"))

	v, err := cs.Get(ctx, "msgtext", "a")
	assert.NoError(err)
	assert.Equal("", v)
	v, err = cs.Get(ctx, "msgtext", "c")
	assert.NoError(err)
	assert.Equal("3", v)
}

func TestMemCacheStoreNameTTL(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCacheStore(2, time.Hour)
	cs.NameTTL("fileid", 20*time.Millisecond)

	assert.NoError(cs.Set(ctx, "fileid", "deterrent", "abc"))
	// a full shared LRU does not push out entries with their own TTL
	assert.NoError(cs.Set(ctx, "msgtext", "a", "1"))
	assert.NoError(cs.Set(ctx, "msgtext", "b", "2"))
	assert.NoError(cs.Set(ctx, "msgtext", "c", "3"))

	v, err := cs.Get(ctx, "fileid", "deterrent")
	assert.NoError(err)
	assert.Equal("abc", v)

	time.Sleep(50 * time.Millisecond)
	v, err = cs.Get(ctx, "fileid", "deterrent")
	assert.NoError(err)
	assert.Equal("", v)
	v, err = cs.Get(ctx, "msgtext", "c")
	assert.NoError(err)
	assert.Equal("3", v)
}

func TestRedisCacheStoreBasics(t *testing.T) {
	t.Skip("live test, need redis running locally")
	assert := assert.New(t)
	ctx := context.Background()

	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	cs := NewRedisCacheStore(rdb, "test/", time.Minute)

	assert.NoError(cs.Set(ctx, "msgtext", "1/5", "hello"))
	v, err := cs.Get(ctx, "msgtext", "1/5")
	assert.NoError(err)
	assert.Equal("hello", v)
	assert.NoError(cs.Purge(ctx, "msgtext", "1/5"))
	v, err = cs.Get(ctx, "msgtext", "1/5")
	assert.NoError(err)
	assert.Equal("", v)
}
