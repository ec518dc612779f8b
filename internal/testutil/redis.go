//go:build integration

package testutil

import (
	"context"
	"testing"

	"github.com/go-redis/redis/v8"
)

// RedisClient opens a client on db of the test Redis, closed at test end.
func RedisClient(t *testing.T, db int) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: RedisAddr(), DB: db})
	t.Cleanup(func() { client.Close() })
	return client
}

// FlushDB empties db so each test starts from a clean keyspace.
func FlushDB(t *testing.T, db int) {
	t.Helper()
	if err := RedisClient(t, db).FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("flushing DB %d: %v", db, err)
	}
}

// ReadEntry returns the fields of hash "<table>|<key>".
func ReadEntry(t *testing.T, db int, table, key string) map[string]string {
	t.Helper()
	redisKey := table + "|" + key
	vals, err := RedisClient(t, db).HGetAll(context.Background(), redisKey).Result()
	if err != nil {
		t.Fatalf("reading %s: %v", redisKey, err)
	}
	return vals
}

// EntryExists reports whether hash "<table>|<key>" exists.
func EntryExists(t *testing.T, db int, table, key string) bool {
	t.Helper()
	redisKey := table + "|" + key
	n, err := RedisClient(t, db).Exists(context.Background(), redisKey).Result()
	if err != nil {
		t.Fatalf("checking existence of %s: %v", redisKey, err)
	}
	return n > 0
}

// IndexMembers returns the members of sorted set key, highest score first.
func IndexMembers(t *testing.T, db int, key string) []string {
	t.Helper()
	members, err := RedisClient(t, db).ZRevRange(context.Background(), key, 0, -1).Result()
	if err != nil {
		t.Fatalf("reading index %s: %v", key, err)
	}
	return members
}
