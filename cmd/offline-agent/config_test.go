package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigFromYaml(t *testing.T) {
	contents := `
origin: https://app.example.com
appHost: app.example.com
cacheVersion: static-cache-v9
cacheMessages:
  CACHE_EMERGENCY_DATA: /emergency-data.json
syncTags:
  emergency-data-sync: /emergency-data.json
`
	filename := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(filename, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	config, err := getConfig(filename)
	if err != nil {
		t.Fatal(err)
	}
	if config.AppHost != "app.example.com" {
		t.Fatalf("got appHost %q", config.AppHost)
	}
	if config.CacheMessages["CACHE_EMERGENCY_DATA"] != "/emergency-data.json" {
		t.Fatalf("got cacheMessages %v", config.CacheMessages)
	}
	if config.SyncTags["emergency-data-sync"] != "/emergency-data.json" {
		t.Fatalf("got syncTags %v", config.SyncTags)
	}
}

func TestConfigEnvOverridesYaml(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(filename, []byte("appHost: app.example.com\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OFFLINE_AGENT_APP_HOST", "staging.example.com")
	config, err := getConfig(filename)
	if err != nil {
		t.Fatal(err)
	}
	if config.AppHost != "staging.example.com" {
		t.Fatalf("got appHost %q", config.AppHost)
	}
}
