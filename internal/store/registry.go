package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BuzzLyutic/taskboard/internal/gateway"
	"github.com/BuzzLyutic/taskboard/internal/realtime"
)

type entry struct {
	store    *TaskStore
	sub      *realtime.Subscription
	lastUsed time.Time
}

// Registry keeps one subscribed TaskStore per signed-in user.
type Registry struct {
	gw     *gateway.Gateway
	logger *zap.Logger
	opts   []Option
	now    func() time.Time

	mu     sync.Mutex
	stores map[string]*entry
}

func NewRegistry(gw *gateway.Gateway, logger *zap.Logger, opts ...Option) *Registry {
	return &Registry{
		gw:     gw,
		logger: logger,
		opts:   append([]Option{WithLogger(logger)}, opts...),
		now:    time.Now,
		stores: make(map[string]*entry),
	}
}

// For returns the user's store, creating, subscribing and loading it on first use.
func (r *Registry) For(ctx context.Context, userID string) *TaskStore {
	r.mu.Lock()
	if e, ok := r.stores[userID]; ok {
		e.lastUsed = r.now()
		r.mu.Unlock()
		return e.store
	}
	e := &entry{store: NewTaskStore(r.gw, userID, r.opts...), lastUsed: r.now()}
	r.stores[userID] = e
	r.mu.Unlock()

	if r.gw.Changes != nil {
		sub, err := e.store.Subscribe(context.WithoutCancel(ctx))
		if err != nil {
			r.logger.Error("failed to subscribe task store", zap.String("user_id", userID), zap.Error(err))
		} else {
			r.mu.Lock()
			if r.stores[userID] == e {
				e.sub = sub
				sub = nil
			}
			r.mu.Unlock()
			// запись уже удалена через Drop
			sub.Unsubscribe()
		}
	}

	e.store.FetchTasks(ctx)
	e.store.FetchCategories(ctx)
	return e.store
}

// Drop forgets the user's store and cancels its subscription.
func (r *Registry) Drop(userID string) {
	r.mu.Lock()
	e, ok := r.stores[userID]
	delete(r.stores, userID)
	r.mu.Unlock()

	if ok {
		e.sub.Unsubscribe()
		r.logger.Info("task store dropped", zap.String("user_id", userID))
	}
}

// EvictIdle drops stores nobody asked for within maxIdle and returns how many went.
func (r *Registry) EvictIdle(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)

	r.mu.Lock()
	var idle []*entry
	for userID, e := range r.stores {
		if e.lastUsed.Before(cutoff) {
			idle = append(idle, e)
			delete(r.stores, userID)
		}
	}
	r.mu.Unlock()

	for _, e := range idle {
		e.sub.Unsubscribe()
	}
	if len(idle) > 0 {
		r.logger.Info("idle task stores evicted", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// RunEviction calls EvictIdle every interval until ctx is done.
func (r *Registry) RunEviction(ctx context.Context, interval, maxIdle time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.EvictIdle(maxIdle)
		}
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}

// Close drops every store.
func (r *Registry) Close() {
	r.mu.Lock()
	stores := r.stores
	r.stores = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range stores {
		e.sub.Unsubscribe()
	}
}
