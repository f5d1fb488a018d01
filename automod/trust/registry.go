// Registry of users who are exempt from edit enforcement.
//
// The owner is always trusted and is the only user who can add or remove members. Membership reads are lock-free and O(1); mutations are serialized, and every mutation is visible to subsequent IsTrusted calls from any goroutine.
package trust

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"github.com/editguard/editguard/automod/flagstore"

	"github.com/puzpuzpuz/xsync/v3"
)

var (
	// non-owner attempted a privileged mutation
	ErrUnauthorized = errors.New("only the owner can modify the trusted list")
	// removal of a user who is not in the trusted list
	ErrNotFound = errors.New("user is not in the trusted list")
	// removal of the owner, who is implicitly and permanently trusted
	ErrOwnerImmutable = errors.New("the owner is always trusted")
)

// flagstore key under which the trusted set is persisted
const FlagKey = "trusted"

type Registry struct {
	owner   int64
	members *xsync.MapOf[int64, struct{}]

	// serializes mutations, including the persistence round-trip
	lk sync.Mutex
	// optional; nil means in-memory only
	store  flagstore.FlagStore
	logger *slog.Logger
}

func NewRegistry(owner int64, store flagstore.FlagStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		owner:   owner,
		members: xsync.NewMapOf[int64, struct{}](),
		store:   store,
		logger:  logger.With("component", "trust"),
	}
}

func (r *Registry) Owner() int64 {
	return r.owner
}

func (r *Registry) IsTrusted(userID int64) bool {
	if userID == r.owner {
		return true
	}
	_, ok := r.members.Load(userID)
	return ok
}

// Adds target to the trusted set. Adding an already-trusted user is a successful no-op.
func (r *Registry) Add(ctx context.Context, requester, target int64) error {
	if requester != r.owner {
		return ErrUnauthorized
	}
	r.lk.Lock()
	defer r.lk.Unlock()

	if r.IsTrusted(target) {
		return nil
	}
	if r.store != nil {
		if err := r.store.Add(ctx, FlagKey, []string{strconv.FormatInt(target, 10)}); err != nil {
			return fmt.Errorf("persisting trusted user: %w", err)
		}
	}
	r.members.Store(target, struct{}{})
	r.logger.Info("added trusted user", "user", target)
	return nil
}

func (r *Registry) Remove(ctx context.Context, requester, target int64) error {
	if requester != r.owner {
		return ErrUnauthorized
	}
	if target == r.owner {
		return ErrOwnerImmutable
	}
	r.lk.Lock()
	defer r.lk.Unlock()

	if _, ok := r.members.Load(target); !ok {
		return ErrNotFound
	}
	if r.store != nil {
		if err := r.store.Remove(ctx, FlagKey, []string{strconv.FormatInt(target, 10)}); err != nil {
			return fmt.Errorf("persisting trusted user removal: %w", err)
		}
	}
	r.members.Delete(target)
	r.logger.Info("removed trusted user", "user", target)
	return nil
}

// Returns the trusted set (not including the owner), sorted.
func (r *Registry) Members() []int64 {
	out := make([]int64, 0, r.members.Size())
	r.members.Range(func(id int64, _ struct{}) bool {
		out = append(out, id)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Populates the registry from the persistent store, if one is configured. Malformed entries are logged and skipped.
func (r *Registry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	r.lk.Lock()
	defer r.lk.Unlock()

	vals, err := r.store.Get(ctx, FlagKey)
	if err != nil {
		return fmt.Errorf("loading trusted users: %w", err)
	}
	for _, v := range vals {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			r.logger.Warn("skipping malformed trusted user id", "val", v, "err", err)
			continue
		}
		r.members.Store(id, struct{}{})
	}
	r.logger.Info("loaded trusted users", "count", r.members.Size())
	return nil
}

// Adds bootstrap members (eg, from static configuration) without an authorization check. These are also persisted, if a store is configured.
func (r *Registry) Seed(ctx context.Context, ids []int64) error {
	r.lk.Lock()
	defer r.lk.Unlock()

	fresh := []string{}
	for _, id := range ids {
		if id == r.owner {
			continue
		}
		if _, ok := r.members.Load(id); !ok {
			fresh = append(fresh, strconv.FormatInt(id, 10))
		}
	}
	if len(fresh) == 0 {
		return nil
	}
	if r.store != nil {
		if err := r.store.Add(ctx, FlagKey, fresh); err != nil {
			return fmt.Errorf("persisting seeded trusted users: %w", err)
		}
	}
	for _, id := range ids {
		if id != r.owner {
			r.members.Store(id, struct{}{})
		}
	}
	return nil
}
