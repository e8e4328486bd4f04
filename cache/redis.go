package cache

import (
	"context"
	"errors"
	"strings"

	goredis "github.com/redis/go-redis/v9"
)

var ErrNilClient = errors.New("redis store: nil client")

// redisKeyPrefix namespaces every key written by this store, so the cache can
// share a redis instance with other application data.
const redisKeyPrefix = "swcache:"

// RedisStore is a Store backed by a shared redis instance. Use it when more
// than one agent process needs to see the same cache.
type RedisStore struct {
	rdb         goredis.UniversalClient
	closeClient bool
}

var _ Store = (*RedisStore)(nil)

type RedisConfig struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this store exclusively owns the client
}

func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &RedisStore{rdb: cfg.Client, closeClient: cfg.CloseClient}, nil
}

func redisKey(version, key string) string {
	return redisKeyPrefix + version + ":" + key
}

func (s *RedisStore) Get(version, key string) ([]byte, bool, error) {
	b, err := s.rdb.Get(context.Background(), redisKey(version, key)).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *RedisStore) Put(version, key string, bytes []byte) error {
	return s.rdb.Set(context.Background(), redisKey(version, key), bytes, 0).Err()
}

func (s *RedisStore) Delete(version, key string) (bool, error) {
	n, err := s.rdb.Del(context.Background(), redisKey(version, key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStore) Keys(version string, cb func(string)) {
	ctx := context.Background()
	prefix := redisKeyPrefix + version + ":"
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return
		}
		for _, key := range keys {
			cb(strings.TrimPrefix(key, prefix))
		}
		if next == 0 {
			return
		}
		cursor = next
	}
}

func (s *RedisStore) Versions() ([]string, error) {
	ctx := context.Background()
	seen := make(map[string]bool)
	versions := make([]string, 0)
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, redisKeyPrefix+"*", 100).Result()
		if err != nil {
			return versions, err
		}
		for _, key := range keys {
			rest := strings.TrimPrefix(key, redisKeyPrefix)
			version, _, found := strings.Cut(rest, ":")
			if !found || seen[version] {
				continue
			}
			seen[version] = true
			versions = append(versions, version)
		}
		if next == 0 {
			return versions, nil
		}
		cursor = next
	}
}

func (s *RedisStore) DeleteVersion(version string) error {
	keys := make([]string, 0)
	s.Keys(version, func(key string) {
		keys = append(keys, key)
	})
	ctx := context.Background()
	for _, key := range keys {
		if err := s.rdb.Del(ctx, redisKey(version, key)).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying redis client only when this store owns it.
func (s *RedisStore) Close() error {
	if s.closeClient {
		if err := s.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
