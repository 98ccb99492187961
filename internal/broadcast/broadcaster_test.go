package broadcast

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSubscriber struct{ calls int }

func (f *failingSubscriber) Deliver([]byte) error {
	f.calls++
	return errors.New("connection reset")
}

func TestPublishDeliversEnvelope(t *testing.T) {
	b := New(nil)
	sub := NewChannelSubscriber(4)
	b.Subscribe("stats", sub)

	n, err := b.Publish("stats", "stats", map[string]int{"totalTicketsSold": 3})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var msg struct {
		Type string         `json:"type"`
		Data map[string]int `json:"data"`
	}
	require.NoError(t, json.Unmarshal(<-sub.C(), &msg))
	assert.Equal(t, "stats", msg.Type)
	assert.Equal(t, 3, msg.Data["totalTicketsSold"])
}

func TestPublishRemovesFailedSubscriber(t *testing.T) {
	b := New(nil)
	bad := &failingSubscriber{}
	good := NewChannelSubscriber(4)
	b.Subscribe("tvl", bad)
	b.Subscribe("tvl", good)

	n, err := b.Publish("tvl", "tvl", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, b.Count("tvl"))
	assert.Len(t, good.C(), 1)

	_, _ = b.Publish("tvl", "tvl", 2)
	assert.Equal(t, 1, bad.calls)
	assert.Len(t, good.C(), 2)
}

func TestPublishFullQueueDoesNotBlock(t *testing.T) {
	b := New(nil)
	sub := NewChannelSubscriber(1)
	b.Subscribe("stats", sub)

	n, _ := b.Publish("stats", "stats", 1)
	assert.Equal(t, 1, n)
	n, _ = b.Publish("stats", "stats", 2)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, b.Count("stats"))
}

func TestTopicsAreIsolated(t *testing.T) {
	b := New(nil)
	stats := NewChannelSubscriber(1)
	tvl := NewChannelSubscriber(1)
	b.Subscribe("stats", stats)
	h := b.Subscribe("tvl", tvl)

	_, _ = b.Publish("stats", "stats", 1)
	assert.Len(t, stats.C(), 1)
	assert.Len(t, tvl.C(), 0)

	b.Unsubscribe(h)
	b.Unsubscribe(h)
	assert.Equal(t, 0, b.Count("tvl"))
}

func TestClosedSubscriber(t *testing.T) {
	sub := NewChannelSubscriber(1)
	sub.Close()
	sub.Close()
	assert.ErrorIs(t, sub.Deliver([]byte("x")), ErrClosed)
}
