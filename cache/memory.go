package cache

import "sync"

// MemStore is an in-memory Store for tests and small deployments.
type MemStore struct {
	mutex *sync.RWMutex
	db    map[string]map[string][]byte
}

func NewMemStore() MemStore {
	return MemStore{
		mutex: &sync.RWMutex{},
		db:    make(map[string]map[string][]byte),
	}
}

func (m MemStore) Get(version, key string) ([]byte, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	entries, ok := m.db[version]
	if !ok {
		return nil, false, nil
	}
	bytes, ok := entries[key]
	if !ok {
		return nil, false, nil
	}
	return bytes, true, nil
}

func (m MemStore) Put(version, key string, bytes []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	entries, ok := m.db[version]
	if !ok {
		entries = make(map[string][]byte)
		m.db[version] = entries
	}
	entries[key] = bytes
	return nil
}

func (m MemStore) Delete(version, key string) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	entries, ok := m.db[version]
	if !ok {
		return false, nil
	}
	if _, ok := entries[key]; !ok {
		return false, nil
	}
	delete(entries, key)
	return true, nil
}

func (m MemStore) Keys(version string, cb func(string)) {
	m.mutex.RLock()
	keys := make([]string, 0, len(m.db[version]))
	for key := range m.db[version] {
		keys = append(keys, key)
	}
	m.mutex.RUnlock()
	for _, key := range keys {
		cb(key)
	}
}

func (m MemStore) Versions() ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	versions := make([]string, 0, len(m.db))
	for version := range m.db {
		versions = append(versions, version)
	}
	return versions, nil
}

func (m MemStore) DeleteVersion(version string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.db, version)
	return nil
}

func (m MemStore) Close() error {
	return nil
}
