// README: Notification gateway: fire-and-forget publishing over Redis pub/sub.
package notify

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Gateway publishes events to interested parties. Publish must never block
// the caller's mutation path: delivery is fire-and-forget.
type Gateway interface {
	Publish(ctx context.Context, e Event)
}

const publishTimeout = 2 * time.Second

// Redis publishes JSON envelopes over Redis pub/sub. Delivery happens on a
// background goroutine so location ingestion never waits on the broker.
type Redis struct {
	client  *redis.Client
	channel string
}

func NewRedis(client *redis.Client, channel string) *Redis {
	return &Redis{client: client, channel: channel}
}

type envelope struct {
	Event string `json:"event"`
	Data  Event  `json:"data"`
}

func (g *Redis) Publish(_ context.Context, e Event) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		payload, err := json.Marshal(envelope{Event: e.Kind(), Data: e})
		if err != nil {
			log.Printf("notify: marshal %s: %v", e.Kind(), err)
			return
		}
		if err := g.client.Publish(ctx, g.channel, payload).Err(); err != nil {
			log.Printf("notify: publish %s: %v", e.Kind(), err)
		}
	}()
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

// Recorder captures published events in memory. Test double.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the event names in publish order.
func (r *Recorder) Kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind()
	}
	return out
}
