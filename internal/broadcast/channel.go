package broadcast

import "sync"

// ChannelSubscriber queues messages on a buffered channel. A full queue fails
// delivery instead of blocking the publisher.
type ChannelSubscriber struct {
	mu     sync.Mutex
	ch     chan []byte
	closed bool
}

func NewChannelSubscriber(buffer int) *ChannelSubscriber {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSubscriber{ch: make(chan []byte, buffer)}
}

func (c *ChannelSubscriber) Deliver(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.ch <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// C is the receive side of the queue. It is closed by Close.
func (c *ChannelSubscriber) C() <-chan []byte {
	return c.ch
}

func (c *ChannelSubscriber) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}
