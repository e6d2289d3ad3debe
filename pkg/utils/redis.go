package utils

import (
	"github.com/redis/go-redis/v9"
)

// OpenRedis returns a client for addr, or nil when addr is empty.
func OpenRedis(addr, password string) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: password})
}
