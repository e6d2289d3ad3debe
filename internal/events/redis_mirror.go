package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Publisher is the subset of the go-redis client used by RedisMirror.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd
}

// RedisMirror republishes bus events as JSON on a Redis channel so that
// processes other than the owning one can observe changes.
type RedisMirror struct {
	rdb     Publisher
	channel string
	origin  string
	log     *zap.Logger
}

func NewRedisMirror(rdb Publisher, channel string, log *zap.Logger) (*RedisMirror, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if channel == "" {
		channel = "territory-events"
	}
	if log == nil {
		log = zap.NewNop()
	}
	origin := uuid.NewString()
	return &RedisMirror{
		rdb:     rdb,
		channel: channel,
		origin:  origin,
		log:     log.With(zap.String("channel", channel), zap.String("origin", origin)),
	}, nil
}

// Origin returns the id stamped on every event this mirror publishes, so a
// listener in the same process can skip its own events.
func (m *RedisMirror) Origin() string { return m.origin }

// Attach subscribes the mirror to bus.
func (m *RedisMirror) Attach(bus *Bus) SubscriptionID {
	return bus.Subscribe(m.Handle)
}

type noMirrorKey struct{}

// WithoutMirror marks ctx so that events published under it stay local.
// Reloads triggered by a mirrored event use it to avoid echoing changes back.
func WithoutMirror(ctx context.Context) context.Context {
	return context.WithValue(ctx, noMirrorKey{}, true)
}

func mirrorDisabled(ctx context.Context) bool {
	v, _ := ctx.Value(noMirrorKey{}).(bool)
	return v
}

// Handle is the bus Handler.
func (m *RedisMirror) Handle(ctx context.Context, ev Event) error {
	if mirrorDisabled(ctx) {
		return nil
	}
	ev.Origin = m.origin
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := m.rdb.Publish(ctx, m.channel, raw).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	m.log.Debug("event mirrored", zap.String("kind", string(ev.Kind)))
	return nil
}

// Listen subscribes to the mirror channel and calls onEvent for every
// decoded message until ctx is done.
func Listen(ctx context.Context, rdb *goredis.Client, channel string, log *zap.Logger, onEvent func(Event)) error {
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}
	sub := rdb.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok || msg == nil {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					log.Warn("bad mirrored event payload", zap.Error(err))
					continue
				}
				onEvent(ev)
			}
		}
	}()
	return nil
}
