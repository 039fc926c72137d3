package events

import (
	"context"
	"log/slog"
	"time"
)

// Consumer drains a ChannelCollector into a Sink in batches.
type Consumer struct {
	sink      Sink
	collector *ChannelCollector
	batchSize int
	interval  time.Duration
}

func NewConsumer(sink Sink, collector *ChannelCollector) *Consumer {
	return &Consumer{
		sink:      sink,
		collector: collector,
		batchSize: 100,
		interval:  time.Second,
	}
}

// Run blocks until ctx is done or the collector is closed, flushing what is left.
func (c *Consumer) Run(ctx context.Context) {
	batch := make([]IssuedEvent, 0, c.batchSize)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flush(c.sink, batch)
			return
		case event, ok := <-c.collector.Events():
			if !ok {
				flush(c.sink, batch)
				return
			}
			batch = append(batch, event)
			if len(batch) >= c.batchSize {
				flush(c.sink, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				flush(c.sink, batch)
				batch = batch[:0]
			}
		}
	}
}

// flush uses its own context so a shutdown still persists the tail.
func flush(sink Sink, batch []IssuedEvent) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sink.Write(ctx, batch); err != nil {
		slog.Error("qr events: flush failed", "count", len(batch), "err", err)
		return
	}
	slog.Debug("qr events: flushed", "count", len(batch))
}
