// Package notifications fans committed document-store writes out to watchers,
// in-process and across processes through Redis pub/sub.
package notifications

import (
	"context"
	"encoding/json"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"

	"pawfeed/internal/docstore"
	"pawfeed/internal/observability"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const channelPrefix = "docstore:changes:"

// ChangeChannel derives the Redis channel name for a collection.
func ChangeChannel(collection string) string {
	return channelPrefix + collection
}

type envelope struct {
	Origin string               `json:"origin"`
	Event  docstore.ChangeEvent `json:"event"`
}

// Bus implements docstore.ChangeNotifier. Events are delivered to local
// listeners synchronously and, when Redis is configured, published for other
// processes. Listeners must not block.
type Bus struct {
	rdb    *redis.Client
	origin string

	mu        sync.RWMutex
	listeners map[uint64]func(docstore.ChangeEvent)
	nextID    uint64
}

// NewBus creates a Bus. A nil Redis client keeps delivery in-process.
func NewBus(rdb *redis.Client) *Bus {
	return &Bus{
		rdb:       rdb,
		origin:    uuid.NewString(),
		listeners: make(map[uint64]func(docstore.ChangeEvent)),
	}
}

// Notify delivers events locally and publishes them to Redis.
func (b *Bus) Notify(ctx context.Context, events ...docstore.ChangeEvent) {
	for _, ev := range events {
		b.dispatch(ev)
		if b.rdb == nil {
			continue
		}
		payload, err := json.Marshal(envelope{Origin: b.origin, Event: ev})
		if err != nil {
			continue
		}
		if err := b.rdb.Publish(ctx, ChangeChannel(ev.Collection), payload).Err(); err != nil {
			observability.RedisErrorRate.WithLabelValues("publish").Inc()
			observability.Logger.WarnContext(ctx, "change publish failed",
				slog.String("collection", ev.Collection),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Listen registers fn for every event and returns a function that removes it.
// After cancel returns fn is not invoked again.
func (b *Bus) Listen(fn func(docstore.ChangeEvent)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

func (b *Bus) dispatch(ev docstore.ChangeEvent) {
	// Listeners run under the read lock so cancel() cannot return while one is mid-call.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, fn := range b.listeners {
		fn(ev)
	}
}

// StartRelay subscribes to every collection channel and relays events
// published by other processes to local listeners until ctx is cancelled.
func (b *Bus) StartRelay(ctx context.Context) error {
	if b.rdb == nil {
		return nil
	}
	sub := b.rdb.PSubscribe(ctx, channelPrefix+"*")
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							observability.Logger.Error("panic in change relay",
								slog.Any("panic", r),
								slog.String("stack", string(debug.Stack())),
							)
						}
					}()
					b.relay(msg.Channel, msg.Payload)
				}()
			}
		}
	}()

	return nil
}

func (b *Bus) relay(channel, payload string) {
	if !strings.HasPrefix(channel, channelPrefix) {
		return
	}
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return
	}
	if env.Origin == b.origin {
		return
	}
	b.dispatch(env.Event)
}
