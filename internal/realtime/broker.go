// Package realtime delivers table change notifications to subscribers.
package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Tables that publish change events.
const (
	TableTasks         = "tasks"
	TableCategories    = "categories"
	TableAttachments   = "attachments"
	TableCollaborators = "task_collaborators"
)

var Tables = []string{TableTasks, TableCategories, TableAttachments, TableCollaborators}

type ChangeEvent struct {
	Table  string `json:"table"`
	Op     string `json:"op"` // INSERT, UPDATE or DELETE
	ID     string `json:"id"`
	UserID string `json:"user_id,omitempty"` // owner of the row, empty when the table has none
}

type Handler func(ChangeEvent)

// Notifier is the change-notification capability.
type Notifier interface {
	Subscribe(ctx context.Context, table string, h Handler) (*Subscription, error)
}

// Subscription is returned to whoever subscribed; nothing is removed until Unsubscribe is called.
type Subscription struct {
	once   sync.Once
	cancel func()
}

func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// Combine returns one handle that unsubscribes all of subs.
func Combine(subs ...*Subscription) *Subscription {
	return &Subscription{cancel: func() {
		for _, s := range subs {
			s.Unsubscribe()
		}
	}}
}

// Broker fans events out to in-process subscribers.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[string]Handler // table -> subscription id -> handler
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[string]Handler)}
}

func (b *Broker) Subscribe(_ context.Context, table string, h Handler) (*Subscription, error) {
	id := uuid.NewString()

	b.mu.Lock()
	if b.subs[table] == nil {
		b.subs[table] = make(map[string]Handler)
	}
	b.subs[table][id] = h
	b.mu.Unlock()

	return &Subscription{cancel: func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[table], id)
		if len(b.subs[table]) == 0 {
			delete(b.subs, table)
		}
	}}, nil
}

// Publish calls every handler subscribed to evt.Table. Handlers run synchronously.
func (b *Broker) Publish(evt ChangeEvent) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[evt.Table]))
	for _, h := range b.subs[evt.Table] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(evt)
	}
}

// Subscribers returns the number of live subscriptions on table.
func (b *Broker) Subscribers(table string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[table])
}

// NewSubscription wraps cancel in a Subscription handle.
func NewSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}
