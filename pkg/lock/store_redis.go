package lock

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const keyPrefix = "lock:"

// releaseScript deletes the key only when the stored holder matches.
// Running as a Lua script makes read-holder-and-delete one indivisible
// operation, so a lock that expired and was re-acquired by someone else
// cannot be released out from under them.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisStore implements Store against Redis.
//
// SET NX PX gives atomic acquire-with-TTL; the release script gives atomic
// compare-and-delete. Expiry is handled server-side by Redis key TTLs.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis connection.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) AcquireIfFree(ctx context.Context, path, holder string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, keyPrefix+path, holder, ttl).Result()
}

func (s *RedisStore) ReleaseIfHeld(ctx context.Context, path, holder string) (bool, error) {
	n, err := releaseScript.Run(ctx, s.client, []string{keyPrefix + path}, holder).Int()
	if err != nil {
		return false, fmt.Errorf("release script failed for %q: %w", path, err)
	}
	return n == 1, nil
}

func (s *RedisStore) Inspect(ctx context.Context, path string) (*Info, error) {
	key := keyPrefix + path

	holder, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if ttl < 0 {
		// Key vanished or carries no expiry between the two reads.
		return nil, nil
	}

	return &Info{Path: path, Holder: holder, Remaining: ttl}, nil
}

func (s *RedisStore) List(ctx context.Context) ([]Info, error) {
	var locks []Info
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		path := iter.Val()[len(keyPrefix):]
		info, err := s.Inspect(ctx, path)
		if err != nil {
			return nil, err
		}
		if info != nil {
			locks = append(locks, *info)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return locks, nil
}

func (s *RedisStore) Clear(ctx context.Context) (int, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.client.Del(ctx, keys...).Result()
	return int(n), err
}

func (s *RedisStore) Close() error {
	// The connection is shared with the state store; its owner closes it.
	return nil
}
