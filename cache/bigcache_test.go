package cache

import (
	"testing"
	"time"
)

// bigcache is kept out of testStores because its default config preallocates
// large shard queues; it gets its own coverage here.

func TestBigCacheStoreBasicOps(t *testing.T) {
	store, err := NewBigCacheStore(BigCacheConfig{})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if err := store.Put("v1", "GET:/", []byte("home")); err != nil {
		t.Fatal(err)
	}
	if err := store.Put("v2", "GET:/", []byte("newer home")); err != nil {
		t.Fatal(err)
	}
	b, ok, err := store.Get("v1", "GET:/")
	if err != nil || !ok || string(b) != "home" {
		t.Fatalf("got %q ok=%v err=%v", b, ok, err)
	}
	versions, err := store.Versions()
	if err != nil || len(versions) != 2 {
		t.Fatalf("got versions %v err=%v", versions, err)
	}
	if err := store.DeleteVersion("v1"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := store.Get("v1", "GET:/"); ok {
		t.Fatal("entry survived version deletion")
	}
	if _, ok, _ := store.Get("v2", "GET:/"); !ok {
		t.Fatal("other version lost its entry")
	}
}

func TestBigCacheStoreKeepsEntriesUntilDeleted(t *testing.T) {
	if testing.Short() {
		t.Skip("sleeps for a couple of seconds")
	}
	store, err := NewBigCacheStore(BigCacheConfig{})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	// a pending sync payload must survive until it is flushed and deleted,
	// no matter how long the app stays offline
	if err := store.Put("v1", "/emergency-data.json", []byte(`{"id":1}`)); err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Second)
	b, ok, err := store.Get("v1", "/emergency-data.json")
	if err != nil || !ok {
		t.Fatalf("pending sync payload disappeared without a flush: ok=%v err=%v", ok, err)
	}
	if string(b) != `{"id":1}` {
		t.Fatalf("got %q", b)
	}
}
