package leveldb

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/setshaba/mapdata/internal/core/ports"
)

// headerSize prefixes every value with its expiry as unix seconds, 0 meaning none.
const headerSize = 8

// Store implements ports.KeyValueStore on an embedded LevelDB database,
// so cached datasets survive process restarts without an external service.
type Store struct {
	db  *leveldb.DB
	now func() time.Time
}

// Open opens or creates the database in dir.
func Open(dir string) (*Store, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", dir, err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Get retrieves a value by key. Expired values are deleted and reported missing.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := s.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ports.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("leveldb get: %w", err)
	}
	if len(raw) < headerSize {
		_ = s.db.Delete([]byte(key), nil)
		return nil, ports.ErrKeyNotFound
	}

	if exp := int64(binary.BigEndian.Uint64(raw[:headerSize])); exp > 0 && s.now().Unix() >= exp {
		_ = s.db.Delete([]byte(key), nil)
		return nil, ports.ErrKeyNotFound
	}
	return raw[headerSize:], nil
}

// Set stores a value with a TTL in seconds; zero keeps it forever.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var exp int64
	if ttlSeconds > 0 {
		exp = s.now().Add(time.Duration(ttlSeconds) * time.Second).Unix()
	}
	buf := make([]byte, headerSize+len(value))
	binary.BigEndian.PutUint64(buf[:headerSize], uint64(exp))
	copy(buf[headerSize:], value)

	if err := s.db.Put([]byte(key), buf, nil); err != nil {
		return fmt.Errorf("leveldb put: %w", err)
	}
	return nil
}

// Delete removes a key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.db.Delete([]byte(key), nil); err != nil {
		return fmt.Errorf("leveldb delete: %w", err)
	}
	return nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}
