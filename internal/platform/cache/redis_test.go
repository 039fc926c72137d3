package cache

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestNewRedisClient_Ping(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client, err := NewRedisClient(context.Background(), RedisOptions{Addr: addr, Password: os.Getenv("REDIS_PASSWORD")}, 800*time.Millisecond)
	t.Cleanup(func() { _ = client.Close() })
	if err != nil {
		t.Skipf("skip: redis not available at %s: %v", addr, err)
	}
	if got := client.Options().Addr; got != addr {
		t.Fatalf("Addr: got %q, want %q", got, addr)
	}
}

func TestNewRedisClient_UnreachableReturnsClient(t *testing.T) {
	client, err := NewRedisClient(context.Background(), RedisOptions{Addr: "127.0.0.1:1"}, 200*time.Millisecond)
	if client == nil {
		t.Fatal("expected a client even when ping fails")
	}
	t.Cleanup(func() { _ = client.Close() })
	if err == nil {
		t.Fatal("expected ping error for unreachable address")
	}
}
