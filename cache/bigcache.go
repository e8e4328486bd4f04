package cache

import (
	"context"
	"strings"
	"time"

	bc "github.com/allegro/bigcache/v3"
)

// versionSeparator joins version and key into the flat bigcache keyspace.
// Tab cannot appear in either part.
const versionSeparator = "\t"

// noExpiry keeps entries alive until explicitly deleted. Pending sync
// payloads and cached assets must never disappear on their own, so expiry is
// strictly opt-in.
const noExpiry = 1000000 * time.Hour

// BigCacheStore is a Store backed by an in-process bigcache instance.
// By default entries are kept until deleted; setting LifeWindow opts in to
// bigcache's window-based expiry.
type BigCacheStore struct {
	c *bc.BigCache
}

type BigCacheConfig struct {
	// LifeWindow enables entry expiry when set. Leave zero to keep entries
	// until they are explicitly deleted.
	LifeWindow time.Duration
	// CleanWindow enables the background eviction sweep when set.
	CleanWindow        time.Duration
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
}

func NewBigCacheStore(cfg BigCacheConfig) (*BigCacheStore, error) {
	life := cfg.LifeWindow
	if life == 0 {
		life = noExpiry
	}
	conf := bc.DefaultConfig(life)
	// the default config turns the eviction sweep on; keep it off unless
	// expiry was asked for
	conf.CleanWindow = cfg.CleanWindow
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.New(context.Background(), conf)
	if err != nil {
		return nil, err
	}
	return &BigCacheStore{c: c}, nil
}

func (s *BigCacheStore) Get(version, key string) ([]byte, bool, error) {
	b, err := s.c.Get(version + versionSeparator + key)
	if err == bc.ErrEntryNotFound {
		return nil, false, nil
	}
	return b, err == nil, err
}

func (s *BigCacheStore) Put(version, key string, bytes []byte) error {
	return s.c.Set(version+versionSeparator+key, bytes)
}

func (s *BigCacheStore) Delete(version, key string) (bool, error) {
	err := s.c.Delete(version + versionSeparator + key)
	if err == bc.ErrEntryNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *BigCacheStore) Keys(version string, cb func(string)) {
	prefix := version + versionSeparator
	it := s.c.Iterator()
	for it.SetNext() {
		info, err := it.Value()
		if err != nil {
			continue
		}
		if strings.HasPrefix(info.Key(), prefix) {
			cb(strings.TrimPrefix(info.Key(), prefix))
		}
	}
}

func (s *BigCacheStore) Versions() ([]string, error) {
	seen := make(map[string]bool)
	versions := make([]string, 0)
	it := s.c.Iterator()
	for it.SetNext() {
		info, err := it.Value()
		if err != nil {
			continue
		}
		version, _, found := strings.Cut(info.Key(), versionSeparator)
		if !found || seen[version] {
			continue
		}
		seen[version] = true
		versions = append(versions, version)
	}
	return versions, nil
}

func (s *BigCacheStore) DeleteVersion(version string) error {
	keys := make([]string, 0)
	s.Keys(version, func(key string) {
		keys = append(keys, key)
	})
	for _, key := range keys {
		if _, err := s.Delete(version, key); err != nil {
			return err
		}
	}
	return nil
}

func (s *BigCacheStore) Close() error {
	return s.c.Close()
}
