package events

import (
	"sync"
	"time"

	"pollqr.local/internal/platform/metrics"
)

// IssuedEvent records one freshly rendered QR code.
type IssuedEvent struct {
	PollID        string     `json:"poll_id"`
	Host          string     `json:"host"`
	Private       bool       `json:"private"`
	Regenerated   bool       `json:"regenerated"`
	IssuedAt      time.Time  `json:"issued_at"`
	LinkExpiresAt *time.Time `json:"link_expires_at,omitempty"`
}

// Collector accepts events without blocking the request path.
type Collector interface {
	Collect(event IssuedEvent)
	Close()
}

// ChannelCollector buffers events for an in-process Consumer. When the
// buffer is full the event is dropped and counted.
type ChannelCollector struct {
	mu     sync.RWMutex
	ch     chan IssuedEvent
	closed bool
}

func NewChannelCollector(bufferSize int) *ChannelCollector {
	return &ChannelCollector{ch: make(chan IssuedEvent, bufferSize)}
}

func (c *ChannelCollector) Collect(event IssuedEvent) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.ch <- event:
	default:
		metrics.QREventsDropped.Inc()
	}
}

func (c *ChannelCollector) Events() <-chan IssuedEvent {
	return c.ch
}

// Close stops accepting events and closes the channel so the consumer drains and exits.
func (c *ChannelCollector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}
