package cache

import (
	"database/sql"
	"sync"

	_ "github.com/glebarez/go-sqlite"
)

type SQLiteStore struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteStore creates a new store with the given filename as the db.
// If file name is empty, a new in-memory db is opened.
func NewSQLiteStore(filename string) (SQLiteStore, error) {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return SQLiteStore{}, err
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS cache (
		version TEXT,
		key TEXT,
		bytes BLOB,
		PRIMARY KEY (version, key)
	)`)
	if err != nil {
		return SQLiteStore{}, err
	}
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		return SQLiteStore{}, err
	}
	return SQLiteStore{
		db:         db,
		writeMutex: &sync.Mutex{},
	}, nil
}

func (s SQLiteStore) Get(version, key string) ([]byte, bool, error) {
	var bytes []byte
	err := s.db.QueryRow(
		"SELECT bytes FROM cache WHERE version = ? AND key = ?",
		version, key,
	).Scan(&bytes)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return bytes, true, nil
}

func (s SQLiteStore) Put(version, key string, bytes []byte) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO cache (version, key, bytes) VALUES (?, ?, ?)",
		version, key, bytes,
	)
	return err
}

func (s SQLiteStore) Delete(version, key string) (bool, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	result, err := s.db.Exec(
		"DELETE FROM cache WHERE version = ? AND key = ?",
		version, key,
	)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (s SQLiteStore) Keys(version string, cb func(string)) {
	rows, err := s.db.Query("SELECT key FROM cache WHERE version = ?", version)
	if err != nil {
		return
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return
		}
		cb(key)
	}
}

func (s SQLiteStore) Versions() ([]string, error) {
	versions := make([]string, 0)
	rows, err := s.db.Query("SELECT DISTINCT version FROM cache")
	if err != nil {
		return versions, err
	}
	defer rows.Close()

	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return versions, err
		}
		versions = append(versions, version)
	}
	return versions, nil
}

func (s SQLiteStore) DeleteVersion(version string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("DELETE FROM cache WHERE version = ?", version)
	return err
}

func (s SQLiteStore) Close() error {
	return s.db.Close()
}
