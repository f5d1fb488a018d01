package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type item struct {
	key int64
	seq int
}

func TestPerKeyOrder(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	var lk sync.Mutex
	seen := make(map[int64][]int)
	sched := NewScheduler[int64, item](4, "test-order", func(ctx context.Context, it item) error {
		// jitter, so that out-of-order processing would show up
		time.Sleep(time.Duration(it.seq%3) * time.Millisecond)
		lk.Lock()
		seen[it.key] = append(seen[it.key], it.seq)
		lk.Unlock()
		return nil
	})

	for seq := 0; seq < 30; seq++ {
		for key := int64(1); key <= 3; key++ {
			assert.NoError(sched.AddWork(ctx, key, item{key: key, seq: seq}))
		}
	}
	sched.Shutdown()

	for key := int64(1); key <= 3; key++ {
		if assert.Equal(30, len(seen[key])) {
			for i, seq := range seen[key] {
				assert.Equal(i, seq)
			}
		}
	}
}

func TestKeysConcurrent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	// key 1 blocks until key 2 has started, which is only possible if they run at the same time
	started := make(chan struct{})
	sched := NewScheduler[int64, int64](2, "test-concurrent", func(ctx context.Context, key int64) error {
		if key == 2 {
			close(started)
			return nil
		}
		select {
		case <-started:
			return nil
		case <-time.After(5 * time.Second):
			return errors.New("timed out waiting for other key")
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(sched.AddWork(ctx, 1, 1))
		assert.NoError(sched.AddWork(ctx, 2, 2))
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("second key never started")
	}
	<-done
	sched.Shutdown()
}

func TestHandlerErrorContinues(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	var lk sync.Mutex
	count := 0
	sched := NewScheduler[string, int](1, "test-errors", func(ctx context.Context, v int) error {
		lk.Lock()
		count++
		lk.Unlock()
		if v == 0 {
			return errors.New("bad item")
		}
		return nil
	})
	for i := 0; i < 5; i++ {
		assert.NoError(sched.AddWork(ctx, "k", i))
	}
	sched.Shutdown()
	assert.Equal(5, count)
}

func TestAddWorkCanceled(t *testing.T) {
	assert := assert.New(t)

	release := make(chan struct{})
	sched := NewScheduler[int64, int64](1, "test-cancel", func(ctx context.Context, key int64) error {
		<-release
		return nil
	})

	// occupy the only worker
	assert.NoError(sched.AddWork(context.Background(), 1, 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := sched.AddWork(ctx, 2, 2)
	assert.ErrorIs(err, context.DeadlineExceeded)

	close(release)
	sched.Shutdown()
}
