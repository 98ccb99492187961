// Package broadcast fans refreshed metrics out to push subscribers.
package broadcast

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrBufferFull is returned by ChannelSubscriber when its queue is full.
var ErrBufferFull = errors.New("subscriber buffer is full")

// ErrClosed is returned when delivering to a closed subscriber.
var ErrClosed = errors.New("subscriber closed")

// Subscriber receives encoded messages. Deliver must not block.
type Subscriber interface {
	Deliver(data []byte) error
}

// Message is the push envelope.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Handle identifies one subscription.
type Handle struct {
	Topic string
	ID    uint64
}

// Broadcaster is a topic registry of subscribers.
type Broadcaster struct {
	mu     sync.RWMutex
	nextID uint64
	topics map[string]map[uint64]Subscriber
	logger *zap.Logger
}

func New(logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		topics: make(map[string]map[uint64]Subscriber),
		logger: logger,
	}
}

func (b *Broadcaster) Subscribe(topic string, sub Subscriber) Handle {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[uint64]Subscriber)
		b.topics[topic] = subs
	}
	subs[b.nextID] = sub
	return Handle{Topic: topic, ID: b.nextID}
}

// Unsubscribe is idempotent.
func (b *Broadcaster) Unsubscribe(h Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.topics[h.Topic]
	if !ok {
		return
	}
	delete(subs, h.ID)
	if len(subs) == 0 {
		delete(b.topics, h.Topic)
	}
}

func (b *Broadcaster) Count(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// Encode marshals the push envelope.
func Encode(msgType string, data any) ([]byte, error) {
	payload, err := json.Marshal(Message{Type: msgType, Data: data})
	if err != nil {
		return nil, fmt.Errorf("marshal %s message: %w", msgType, err)
	}
	return payload, nil
}

// Publish encodes once and delivers to every subscriber of topic. Failing
// subscribers are removed; the rest still receive the message. It returns the
// number of successful deliveries.
func (b *Broadcaster) Publish(topic, msgType string, data any) (int, error) {
	payload, err := Encode(msgType, data)
	if err != nil {
		return 0, err
	}

	b.mu.RLock()
	targets := make(map[uint64]Subscriber, len(b.topics[topic]))
	for id, sub := range b.topics[topic] {
		targets[id] = sub
	}
	b.mu.RUnlock()

	delivered := 0
	for id, sub := range targets {
		if err := sub.Deliver(payload); err != nil {
			b.logger.Debug("drop subscriber", zap.String("topic", topic), zap.Uint64("id", id), zap.Error(err))
			b.Unsubscribe(Handle{Topic: topic, ID: id})
			continue
		}
		delivered++
	}
	return delivered, nil
}
