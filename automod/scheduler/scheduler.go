// Keyed parallel scheduler: work for one key (eg, a chat) is processed in arrival order, one item at a time, while distinct keys are processed concurrently on a fixed pool of workers.
package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Scheduler runs work on a fixed number of workers
type Scheduler[K comparable, T any] struct {
	maxConcurrency int

	do func(context.Context, T) error

	feeder chan *task[K, T]
	out    chan struct{}

	lk     sync.Mutex
	active map[K][]*task[K, T]

	ident string
	// context passed to every work item; canceled on Shutdown
	ctx    context.Context
	cancel context.CancelFunc

	// metrics
	itemsAdded     prometheus.Counter
	itemsProcessed prometheus.Counter
	itemsActive    prometheus.Counter
	itemsFailed    prometheus.Counter
	workersActive  prometheus.Gauge

	log *slog.Logger
}

type task[K comparable, T any] struct {
	key     K
	val     T
	control string
}

func NewScheduler[K comparable, T any](maxC int, ident string, do func(context.Context, T) error) *Scheduler[K, T] {
	if maxC < 1 {
		maxC = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Scheduler[K, T]{
		maxConcurrency: maxC,

		do: do,

		feeder: make(chan *task[K, T]),
		active: make(map[K][]*task[K, T]),
		out:    make(chan struct{}),

		ident:  ident,
		ctx:    ctx,
		cancel: cancel,

		itemsAdded:     WorkItemsAdded.WithLabelValues(ident),
		itemsProcessed: WorkItemsProcessed.WithLabelValues(ident),
		itemsActive:    WorkItemsActive.WithLabelValues(ident),
		itemsFailed:    WorkItemsFailed.WithLabelValues(ident),
		workersActive:  WorkersActive.WithLabelValues(ident),

		log: slog.Default().With("system", "scheduler", "ident", ident),
	}

	for i := 0; i < maxC; i++ {
		go p.worker()
	}

	p.workersActive.Set(float64(maxC))

	return p
}

// Waits for all workers to go idle and stops them. Work already queued for a key is finished first. AddWork must not be called after Shutdown.
func (p *Scheduler[K, T]) Shutdown() {
	p.log.Info("shutting down scheduler")

	for i := 0; i < p.maxConcurrency; i++ {
		p.feeder <- &task[K, T]{
			control: "stop",
		}
	}

	close(p.feeder)

	for i := 0; i < p.maxConcurrency; i++ {
		<-p.out
	}
	p.cancel()
	p.workersActive.Set(0)

	p.log.Info("scheduler shutdown complete")
}

// Queues an item. If the key already has work in flight the item is appended to that key's queue and this returns immediately; otherwise it blocks until a worker is free (or ctx is done).
func (p *Scheduler[K, T]) AddWork(ctx context.Context, key K, val T) error {
	p.itemsAdded.Inc()
	t := &task[K, T]{
		key: key,
		val: val,
	}
	p.lk.Lock()

	a, ok := p.active[key]
	if ok {
		p.active[key] = append(a, t)
		p.lk.Unlock()
		return nil
	}

	p.active[key] = []*task[K, T]{}
	p.lk.Unlock()

	select {
	case p.feeder <- t:
		return nil
	case <-ctx.Done():
		// nobody will pick this key up; release it, along with anything queued behind
		p.lk.Lock()
		if rem := p.active[key]; len(rem) > 0 {
			p.log.Warn("dropping queued work", "count", len(rem))
		}
		delete(p.active, key)
		p.lk.Unlock()
		return ctx.Err()
	}
}

func (p *Scheduler[K, T]) worker() {
	for work := range p.feeder {
		for work != nil {
			if work.control == "stop" {
				p.out <- struct{}{}
				return
			}

			p.itemsActive.Inc()
			if err := p.do(p.ctx, work.val); err != nil {
				p.itemsFailed.Inc()
				p.log.Error("work handler failed", "key", work.key, "err", err)
			}
			p.itemsProcessed.Inc()

			p.lk.Lock()
			rem, ok := p.active[work.key]
			if !ok {
				p.log.Error("should always have an 'active' entry if a worker is processing a job")
			}

			if len(rem) == 0 {
				delete(p.active, work.key)
				work = nil
			} else {
				work = rem[0]
				p.active[work.key] = rem[1:]
			}
			p.lk.Unlock()
		}
	}
}
