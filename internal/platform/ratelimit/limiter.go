package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindow keeps one sorted-set member per request scored by its
// timestamp. A rejected request removes its own member so it does not count.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call("ZREMRANGEBYSCORE", key, 0, now - window)
redis.call("ZADD", key, now, member)
local count = redis.call("ZCARD", key)
redis.call("PEXPIRE", key, window)

if count <= limit then
  return {1, 0}
end

redis.call("ZREM", key, member)

local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
if oldest[2] ~= nil then
  local retryAfter = (tonumber(oldest[2]) + window) - now
  if retryAfter < 0 then retryAfter = 0 end
  return {0, retryAfter}
end
return {0, window}
`)

type Limiter struct {
	client redis.Scripter
	now    func() time.Time
}

func NewLimiter(client redis.Scripter) *Limiter {
	return &Limiter{client: client, now: time.Now}
}

// Allow reports whether the request identified by member fits into the
// window for key. retryAfter is only meaningful when allowed is false.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration, member string) (allowed bool, retryAfter time.Duration, err error) {
	res, err := slidingWindow.Run(ctx, l.client, []string{key}, l.now().UnixMilli(), window.Milliseconds(), limit, member).Result()
	if err != nil {
		return false, 0, err
	}

	arr, ok := res.([]any)
	if !ok || len(arr) < 2 {
		return false, 0, fmt.Errorf("ratelimit: unexpected script result %T %v", res, res)
	}

	flag, _ := arr[0].(int64)
	var retryMS int64
	switch v := arr[1].(type) {
	case int64:
		retryMS = v
	case string:
		retryMS, _ = strconv.ParseInt(v, 10, 64)
	}
	return flag == 1, time.Duration(retryMS) * time.Millisecond, nil
}
