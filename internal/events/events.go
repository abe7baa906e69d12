package events

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
)

// TypeScanRecorded is published after a scan changed or was checked against a day record.
const TypeScanRecorded = "scan.recorded"

// Event is one entry of the live scan feed.
type Event struct {
	Type   string `json:"type"`
	Date   string `json:"date"`
	Roll   string `json:"roll"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Time   string `json:"time"`
}

// Bus is the abstraction over different backends.
type Bus interface {
	Publish(ctx context.Context, evt Event) error
	Subscribe(ctx context.Context) (<-chan Event, error)
}

// InMemory fans events out to every live subscriber of this process.
// Slow subscribers drop events instead of blocking publishers.
type InMemory struct {
	size int

	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewInMemory creates a bus whose subscriber channels buffer size events.
func NewInMemory(size int) *InMemory {
	if size <= 0 {
		size = 16
	}
	return &InMemory{size: size, subs: make(map[chan Event]struct{})}
}

// Publish delivers evt to all subscribers.
func (b *InMemory) Publish(ctx context.Context, evt Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel closed when ctx ends.
func (b *InMemory) Subscribe(ctx context.Context) (<-chan Event, error) {
	ch := make(chan Event, b.size)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, ch)
		close(ch)
		b.mu.Unlock()
	}()
	return ch, nil
}

// RedisBus implements the bus on Redis pub/sub so every API replica sees every scan.
type RedisBus struct {
	client  *redis.Client
	channel string
}

// NewRedisBus builds a bus publishing on channel.
func NewRedisBus(client *redis.Client, channel string) *RedisBus {
	if channel == "" {
		channel = "attendance:scans"
	}
	return &RedisBus{client: client, channel: channel}
}

// Publish sends evt to the channel.
func (b *RedisBus) Publish(ctx context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, data).Err()
}

// Subscribe streams events until ctx ends. Undecodable messages are skipped.
func (b *RedisBus) Subscribe(ctx context.Context) (<-chan Event, error) {
	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				var evt Event
				if err := json.Unmarshal([]byte(m.Payload), &evt); err != nil {
					continue
				}
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
