package main

import (
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Origin string `yaml:"origin" env:"OFFLINE_AGENT_ORIGIN"`
	Host   string `yaml:"host" env:"OFFLINE_AGENT_HOST"`
	// Host the app is served on. Requests for other hosts are passed through
	// uncached. Empty treats every request as same-origin.
	AppHost      string `yaml:"appHost" env:"OFFLINE_AGENT_APP_HOST"`
	Port         int    `yaml:"port" env:"OFFLINE_AGENT_PORT"`
	CacheVersion string `yaml:"cacheVersion" env:"OFFLINE_AGENT_CACHE_VERSION"`
	Provider     string `yaml:"provider" env:"OFFLINE_AGENT_PROVIDER"`
	DB           string `yaml:"db" env:"OFFLINE_AGENT_DB"`
	RedisAddr    string `yaml:"redisAddr" env:"OFFLINE_AGENT_REDIS_ADDR"`
	// Go duration string, e.g. "15m". Empty disables periodic sync.
	PeriodicSync string `yaml:"periodicSync" env:"OFFLINE_AGENT_PERIODIC_SYNC"`

	Assets      []string `yaml:"assets"`
	OfflinePath string   `yaml:"offlinePath"`
	EntryURL    string   `yaml:"entryUrl"`

	// Message type -> reserved cache key written on that message.
	CacheMessages map[string]string `yaml:"cacheMessages"`
	// Sync tag -> reserved cache key holding the pending payload.
	SyncTags map[string]string `yaml:"syncTags"`
	// Sync tag -> URL the pending payload is posted to on flush.
	SyncEndpoints map[string]string `yaml:"syncEndpoints"`
}

// getConfig reads the yaml config file (if any) and applies environment
// variable overrides on top.
func getConfig(filename string) (Config, error) {
	var config Config
	if filename != "" {
		configBytes, err := os.ReadFile(filename)
		if err != nil {
			return config, err
		}
		if err := yaml.Unmarshal(configBytes, &config); err != nil {
			return config, err
		}
	}
	err := env.Parse(&config)
	return config, err
}
