// Package events fans domain changes out to observers. Delivery is
// synchronous and in subscription order; a failing observer never stops
// the others.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Kind names a domain change.
type Kind string

const (
	KindInit             Kind = "init"
	KindAdd              Kind = "add"
	KindUpdate           Kind = "update"
	KindDelete           Kind = "delete"
	KindAssignment       Kind = "assignment"
	KindGroupsUpdated    Kind = "groupsUpdated"
	KindRegionAdded      Kind = "regionAdded"
	KindRegionUpdated    Kind = "regionUpdated"
	KindRegionDeleted    Kind = "regionDeleted"
	KindUpdateAssignment Kind = "updateAssignment"
	KindDeleteAssignment Kind = "deleteAssignment"
)

// Event is one published change.
type Event struct {
	Kind    Kind      `json:"kind"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
	// Origin identifies the process that mirrored the event. Empty for
	// events published locally.
	Origin string `json:"origin,omitempty"`
}

// Handler observes events. A returned error is logged.
type Handler func(ctx context.Context, ev Event) error

// SubscriptionID identifies a subscription for Unsubscribe.
type SubscriptionID uint64

type subscription struct {
	id      SubscriptionID
	handler Handler
}

// Bus is a publish/subscribe fan-out. The zero value is not usable; use NewBus.
type Bus struct {
	mu     sync.RWMutex
	nextID SubscriptionID
	subs   []subscription
	log    *zap.Logger
	now    func() time.Time
}

func NewBus(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{log: log.Named("events"), now: time.Now}
}

// Subscribe registers h and returns its id.
func (b *Bus) Subscribe(h Handler) SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs = append(b.subs, subscription{id: b.nextID, handler: h})
	return b.nextID
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (b *Bus) Unsubscribe(id SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers the event to every subscriber registered at call time.
func (b *Bus) Publish(ctx context.Context, kind Kind, payload any) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	ev := Event{Kind: kind, Payload: payload, At: b.now()}
	for _, s := range subs {
		if err := b.deliver(ctx, s, ev); err != nil {
			b.log.Error("event subscriber failed",
				zap.String("kind", string(kind)),
				zap.Uint64("subscription", uint64(s.id)),
				zap.Error(err),
			)
		}
	}
}

func (b *Bus) deliver(ctx context.Context, s subscription, ev Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return s.handler(ctx, ev)
}
