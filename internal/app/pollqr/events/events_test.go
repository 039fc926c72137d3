package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	mu      sync.Mutex
	batches [][]IssuedEvent
}

func (s *memorySink) Write(_ context.Context, batch []IssuedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]IssuedEvent(nil), batch...))
	return nil
}

func (s *memorySink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func TestChannelCollector_DropsWhenFull(t *testing.T) {
	c := NewChannelCollector(2)
	for i := 0; i < 5; i++ {
		c.Collect(IssuedEvent{PollID: uuid.NewString()})
	}
	require.Len(t, c.Events(), 2)
}

func TestChannelCollector_CloseIsIdempotent(t *testing.T) {
	c := NewChannelCollector(1)
	c.Close()
	c.Close()
	c.Collect(IssuedEvent{PollID: "after-close"})

	_, ok := <-c.Events()
	require.False(t, ok)
}

func TestConsumer_FlushesOnClose(t *testing.T) {
	sink := &memorySink{}
	c := NewChannelCollector(16)
	consumer := NewConsumer(sink, c)

	done := make(chan struct{})
	go func() {
		consumer.Run(context.Background())
		close(done)
	}()

	for i := 0; i < 5; i++ {
		c.Collect(IssuedEvent{PollID: uuid.NewString(), Host: "localhost:3000", IssuedAt: time.Now()})
	}
	c.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop after collector close")
	}
	require.Equal(t, 5, sink.total())
}

func TestConsumer_FlushesFullBatch(t *testing.T) {
	sink := &memorySink{}
	c := NewChannelCollector(256)
	consumer := NewConsumer(sink, c)
	consumer.interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go consumer.Run(ctx)

	for i := 0; i < consumer.batchSize; i++ {
		c.Collect(IssuedEvent{PollID: uuid.NewString()})
	}
	require.Eventually(t, func() bool { return sink.total() == consumer.batchSize }, 2*time.Second, 10*time.Millisecond)
}

func TestConsumer_TickerFlush(t *testing.T) {
	sink := &memorySink{}
	c := NewChannelCollector(8)
	consumer := NewConsumer(sink, c)
	consumer.interval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go consumer.Run(ctx)

	c.Collect(IssuedEvent{PollID: uuid.NewString()})
	require.Eventually(t, func() bool { return sink.total() == 1 }, 2*time.Second, 10*time.Millisecond)
}
