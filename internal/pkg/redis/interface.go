package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Nil is returned when a key or script result does not exist.
const Nil = redis.Nil

// Cache is the subset of Redis the bloom filter needs.
type Cache interface {
	ScriptRun(ctx context.Context, script *redis.Script, keys []string,
		args ...any) (any, error)

	Del(ctx context.Context, keys ...string) (int64, error)
}

// NewScript wraps a Lua script for use with Cache.ScriptRun.
func NewScript(script string) *redis.Script {
	return redis.NewScript(script)
}
