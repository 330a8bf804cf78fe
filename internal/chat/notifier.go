package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// MessageEvent is what subscribers receive when a thread changes. The payload
// is advisory: clients are expected to re-fetch the message list on any
// event, which keeps delivery loss harmless.
type MessageEvent struct {
	ThreadID  uint      `json:"thread_id"`
	MessageID uint      `json:"message_id"`
	SenderID  uint      `json:"sender_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifier fans message-posted events out to stream subscribers via redis
// pub/sub. A nil Notifier is a no-op so tests and broker-less setups work.
type Notifier struct {
	rdb *redis.Client
}

func NewNotifier(addr string) *Notifier {
	r := redis.NewClient(&redis.Options{Addr: addr})
	return &Notifier{rdb: r}
}

func ThreadChannel(threadID uint) string {
	return fmt.Sprintf("chat:thread:%d", threadID)
}

func (n *Notifier) MessagePosted(ctx context.Context, ev MessageEvent) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("chat: encode event: %w", err)
	}
	if err := n.rdb.Publish(ctx, ThreadChannel(ev.ThreadID), data).Err(); err != nil {
		return fmt.Errorf("chat: publish event: %w", err)
	}
	return nil
}

// Subscribe returns a pub/sub subscription for one thread. Callers must
// Close it. Returns nil when the notifier is disabled.
func (n *Notifier) Subscribe(ctx context.Context, threadID uint) *redis.PubSub {
	if n == nil || n.rdb == nil {
		return nil
	}
	return n.rdb.Subscribe(ctx, ThreadChannel(threadID))
}

func (n *Notifier) Close() error {
	if n == nil || n.rdb == nil {
		return nil
	}
	return n.rdb.Close()
}
