package cache

// Store is a versioned key/value store for serialized responses and pending
// sync payloads. Exactly one version is "current" at any time; superseded
// versions are removed wholesale on activation.
//
// Entries are durable until removed: an implementation must keep an entry
// until Delete or DeleteVersion is called for it, and must not expire entries
// on its own unless expiry was explicitly configured.
//
// Implementations must be thread-safe!
type Store interface {
	// Get returns the stored bytes for the given key in the given version.
	// A miss is reported as (nil, false, nil); errors are reserved for
	// storage failures.
	Get(version, key string) ([]byte, bool, error)
	// Put stores the given bytes under the given key.
	// Concurrent writers to the same key: last write wins, no merge.
	Put(version, key string, bytes []byte) error
	// Delete removes the entry for the given key.
	// It reports whether an entry was actually removed.
	Delete(version, key string) (bool, error)
	// Keys calls the given callback for each key stored in the version.
	// It calls the callback in order to enable very large lists of keys to be
	// processable (provider implementation might use paging, for instance).
	Keys(version string, cb func(string))
	// Versions returns the set of versions currently present in the store.
	Versions() ([]string, error)
	// DeleteVersion removes a version and every entry within it.
	DeleteVersion(version string) error
	// Close releases storage resources.
	Close() error
}

// Handle is a Store bound to a single version. The coordinator operates on a
// handle for the current version and only reaches for the underlying Store
// when pruning superseded versions.
type Handle struct {
	store   Store
	version string
}

// Open binds a store to the given version.
func Open(store Store, version string) Handle {
	return Handle{store: store, version: version}
}

func (h Handle) Version() string { return h.version }

func (h Handle) Get(key string) ([]byte, bool, error) {
	return h.store.Get(h.version, key)
}

func (h Handle) Put(key string, bytes []byte) error {
	return h.store.Put(h.version, key, bytes)
}

func (h Handle) Delete(key string) (bool, error) {
	return h.store.Delete(h.version, key)
}

func (h Handle) Keys(cb func(string)) {
	h.store.Keys(h.version, cb)
}
