// Package cache provides the per-user resource-listing cache and the
// revalidation gateway that runs after successful mutations.
package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/optiview/adminrelay/internal/events"
)

// TTL bounds per resource volatility. Listing data defaults to an hour;
// slow-changing permission data may live up to 90 days.
const (
	TTLDefault    = time.Hour
	TTLPermission = 90 * 24 * time.Hour
)

// ErrNotFound indicates the key holds no live entry.
var ErrNotFound = errors.New("cache: key not found")

// Key builds the cache key for a user's cached listing of one resource type,
// in the "<domain>:<resource>:userId:<id>" convention.
func Key(domain, resource, userID string) string {
	return fmt.Sprintf("%s:%s:userId:%s", domain, resource, userID)
}

// PropertyKey builds the cache key for a property-scoped listing of one
// resource type, in the "<domain>:<resource>:propertyId:<id>" convention.
func PropertyKey(domain, resource, propertyID string) string {
	return fmt.Sprintf("%s:%s:propertyId:%s", domain, resource, propertyID)
}

// Store is a BadgerDB-backed key-value cache holding JSON-serialized listings
// with per-entry TTLs.
type Store struct {
	db  *badger.DB
	log zerolog.Logger
}

// Options configures a Store.
type Options struct {
	// Path is the directory for the badger files. Ignored when InMemory is set.
	Path string
	// InMemory runs without disk persistence. Used in tests.
	InMemory bool
}

// Open opens (or creates) the cache store.
func Open(opts Options, log zerolog.Logger) (*Store, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		bopts = badger.DefaultOptions(opts.Path)
	}
	bopts = bopts.WithLogger(nil)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open cache store: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Set writes a JSON blob under key with the given TTL. A zero TTL stores the
// entry without expiry.
func (s *Store) Set(key string, value []byte, ttl time.Duration) error {
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

// Get reads the value under key, or ErrNotFound.
func (s *Store) Get(key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", key, err)
	}
	return out, nil
}

// Delete removes the entry under key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Gateway invalidates cache entries and signals dependent views after
// successful mutations. Failures here are logged, never propagated as batch
// failure.
type Gateway struct {
	store *Store
	bus   *events.EventBus
	log   zerolog.Logger
}

// NewGateway wires a gateway over the cache store and event bus.
func NewGateway(store *Store, bus *events.EventBus, log zerolog.Logger) *Gateway {
	return &Gateway{store: store, bus: bus, log: log}
}

// Invalidate deletes every key synchronously. Stale entries must be gone
// before any successful-mutation code path returns to the caller.
func (g *Gateway) Invalidate(keys ...string) {
	for _, key := range keys {
		if err := g.store.Delete(key); err != nil {
			g.log.Error().Err(err).Str("key", key).Msg("cache invalidation failed")
			continue
		}
		g.bus.PublishCacheInvalidated(key)
	}
}

// Notify signals that the given view paths render stale data.
func (g *Gateway) Notify(userID string, viewPaths ...string) {
	for _, path := range viewPaths {
		g.bus.PublishRevalidate(userID, path)
	}
}
