// Package badgerkv implements database.Store on top of BadgerDB.
// Badger gives per-entry TTLs for the expiring keys and serializable
// transactions for the atomic author claim.
// Hash writes retry on transaction conflicts; only Update reports them.
package badgerkv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/historyhiders/hidewatch/internal/database"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	defaultDiscardRatioGC = 0.5
	defaultIntervalGC     = time.Hour
)

// Key namespaces. A string key and a hash key with the same name never collide.
// A hash is a marker entry holding the TTL and a generation id, plus one entry
// per field whose value starts with that generation. Hash keys must not
// contain NUL.
var (
	stringPrefix = []byte("s\x00")
	hashPrefix   = []byte("h\x00")
	markerPrefix = []byte("m\x00")
)

const (
	generationLen      = 16
	maxConflictRetries = 30
	sweepChunk         = 1000
)

// Options configures the Badger store.
type Options struct {
	// Path to the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in RAM; used by tests.
	InMemory bool

	// IntervalGC is how often the value log is garbage collected.
	// If zero, one hour is used.
	IntervalGC time.Duration
}

// Store is a database.Store backed by Badger.
type Store struct {
	db *badger.DB

	stopGC chan struct{}
	wg     sync.WaitGroup
}

var _ database.Store = (*Store)(nil)

// Open creates or opens a Badger database.
func Open(opts Options) (*Store, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Path == "" {
			return nil, errors.New("badgerkv: path is required")
		}
		if err := os.MkdirAll(opts.Path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		bopts = badger.DefaultOptions(opts.Path)
	}
	bopts = bopts.
		WithLogger(badgerLogger{}).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, stopGC: make(chan struct{})}
	if !opts.InMemory {
		interval := opts.IntervalGC
		if interval == 0 {
			interval = defaultIntervalGC
		}
		s.wg.Add(1)
		go s.runEventualGC(interval)
	}
	return s, nil
}

// Close stops background GC and closes the database.
func (s *Store) Close() error {
	close(s.stopGC)
	s.wg.Wait()
	return s.db.Close()
}

func (s *Store) runEventualGC(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for {
				err := s.db.RunValueLogGC(defaultDiscardRatioGC)
				if err != nil {
					// ErrNoRewrite / ErrRejected end the cycle
					break
				}
			}
			removed, err := s.SweepHashes(context.Background())
			if err != nil {
				log.Warn().Err(err).Msg("badgerkv: hash sweep failed")
			}
			log.Debug().Int("swept_fields", removed).Msg("badgerkv: value log gc complete")
		case <-s.stopGC:
			return
		}
	}
}

func stringKey(key string) []byte {
	return append(append([]byte{}, stringPrefix...), key...)
}

func hashFieldPrefix(key string) []byte {
	k := append(append([]byte{}, hashPrefix...), key...)
	return append(k, 0)
}

func hashFieldKey(key, field string) []byte {
	return append(hashFieldPrefix(key), field...)
}

func markerKey(key string) []byte {
	return append(append([]byte{}, markerPrefix...), key...)
}

// hashKeyOf extracts the hash key from a field key.
func hashKeyOf(fieldKey []byte) (string, bool) {
	rest, ok := bytes.CutPrefix(fieldKey, hashPrefix)
	if !ok {
		return "", false
	}
	key, _, ok := bytes.Cut(rest, []byte{0})
	return string(key), ok
}

func newEntry(key, value []byte, ttl time.Duration) *badger.Entry {
	e := badger.NewEntry(key, value)
	if ttl > 0 {
		e = e.WithTTL(ttl)
	}
	return e
}

// Get returns the value of a string key or database.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(stringKey(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, nil
}

// Set stores a string key without expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.SetWithTTL(ctx, key, value, 0)
}

// SetWithTTL stores a string key that expires after ttl.
func (s *Store) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(newEntry(stringKey(key), value, ttl))
	})
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Del removes a string key. Deleting a missing key is not an error.
func (s *Store) Del(ctx context.Context, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(stringKey(key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Update reads and conditionally rewrites a string key in one transaction.
func (s *Store) Update(ctx context.Context, key string, ttl time.Duration, fn database.UpdateFunc) (bool, error) {
	var written bool
	err := s.db.Update(func(txn *badger.Txn) error {
		var current []byte
		found := true
		item, err := txn.Get(stringKey(key))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			found = false
		case err != nil:
			return err
		default:
			if current, err = item.ValueCopy(nil); err != nil {
				return err
			}
		}

		next, write := fn(current, found)
		if !write {
			return nil
		}
		written = true
		return txn.SetEntry(newEntry(stringKey(key), next, ttl))
	})
	if errors.Is(err, badger.ErrConflict) {
		return false, database.ErrConflict
	}
	if err != nil {
		return false, fmt.Errorf("failed to update %s: %w", key, err)
	}
	return written, nil
}

// HSet writes fields into a hash key. The write reads only the hash marker,
// so concurrent HSets of different fields never conflict with each other.
func (s *Store) HSet(ctx context.Context, key string, fields map[string][]byte) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		gen, found, err := readMarker(txn, key)
		if err != nil {
			return err
		}
		if !found {
			// A new lifetime of the hash; fields of an expired one stay hidden.
			gen = newGeneration()
			if err := txn.Set(markerKey(key), gen); err != nil {
				return err
			}
		}
		for field, value := range fields {
			if err := txn.Set(hashFieldKey(key, field), withGeneration(gen, value)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to hset %s: %w", key, err)
	}
	return nil
}

// HGetAll returns all live fields of a hash key in key order.
func (s *Store) HGetAll(ctx context.Context, key string) ([]database.HashField, error) {
	prefix := hashFieldPrefix(key)
	var fields []database.HashField
	err := s.db.View(func(txn *badger.Txn) error {
		gen, found, err := readMarker(txn, key)
		if err != nil || !found {
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if !hasGeneration(value, gen) {
				continue
			}
			field := bytes.TrimPrefix(item.KeyCopy(nil), prefix)
			fields = append(fields, database.HashField{
				Field: string(field),
				Value: value[generationLen:],
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to hgetall %s: %w", key, err)
	}
	return fields, nil
}

// Expire sets the TTL of a string key, or of a hash key through its marker.
// The fields of a hash are not rewritten. Refreshing to the expiry the key
// already has is a read-only transaction.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		expiresAt := expiryFor(ttl)
		for _, k := range [][]byte{stringKey(key), markerKey(key)} {
			item, err := txn.Get(k)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if item.ExpiresAt() == expiresAt {
				continue
			}
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			e := badger.NewEntry(k, value)
			e.ExpiresAt = expiresAt
			if err := txn.SetEntry(e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to expire %s: %w", key, err)
	}
	return nil
}

// SweepHashes deletes hash fields whose hash has expired or been recreated
// since they were written, and returns how many it removed.
func (s *Store) SweepHashes(ctx context.Context) (int, error) {
	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = hashPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(hashPrefix); it.ValidForPrefix(hashPrefix); it.Next() {
			k := it.Item().KeyCopy(nil)
			dead, err := isStaleField(txn, k)
			if err != nil {
				return err
			}
			if dead {
				stale = append(stale, k)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan hashes: %w", err)
	}

	removed := 0
	for len(stale) > 0 {
		chunk := stale[:min(len(stale), sweepChunk)]
		stale = stale[len(chunk):]

		var n int
		err := s.update(ctx, func(txn *badger.Txn) error {
			n = 0
			for _, k := range chunk {
				// A concurrent HSet may have revived the field since the scan.
				dead, err := isStaleField(txn, k)
				if err != nil {
					return err
				}
				if !dead {
					continue
				}
				if err := txn.Delete(k); err != nil {
					return err
				}
				n++
			}
			return nil
		})
		if err != nil {
			return removed, fmt.Errorf("failed to sweep hashes: %w", err)
		}
		removed += n
	}
	return removed, nil
}

// update runs fn in a write transaction and retries it while it loses
// conflicts to concurrent commits.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = time.Millisecond
	exp.MaxInterval = 50 * time.Millisecond
	exp.Reset()

	b := backoff.WithContext(backoff.WithMaxRetries(exp, maxConflictRetries), ctx)
	return backoff.Retry(func() error {
		err := s.db.Update(fn)
		if err != nil && !errors.Is(err, badger.ErrConflict) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}

func readMarker(txn *badger.Txn, key string) (gen []byte, found bool, err error) {
	item, err := txn.Get(markerKey(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	gen, err = item.ValueCopy(nil)
	if err != nil {
		return nil, false, err
	}
	return gen, true, nil
}

func isStaleField(txn *badger.Txn, fieldKey []byte) (bool, error) {
	key, ok := hashKeyOf(fieldKey)
	if !ok {
		return false, nil
	}
	item, err := txn.Get(fieldKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	gen, found, err := readMarker(txn, key)
	if err != nil {
		return false, err
	}
	if !found {
		return true, nil
	}
	var live bool
	err = item.Value(func(v []byte) error {
		live = hasGeneration(v, gen)
		return nil
	})
	return !live, err
}

func newGeneration() []byte {
	id := uuid.New()
	return id[:]
}

func withGeneration(gen, value []byte) []byte {
	out := make([]byte, 0, len(gen)+len(value))
	out = append(out, gen...)
	return append(out, value...)
}

func hasGeneration(value, gen []byte) bool {
	return len(gen) == generationLen && len(value) >= generationLen && bytes.Equal(value[:generationLen], gen)
}

// expiryFor mirrors badger's Entry.WithTTL so an unchanged expiry can be
// detected before writing.
func expiryFor(ttl time.Duration) uint64 {
	if ttl <= 0 {
		return 0
	}
	return uint64(time.Now().Add(ttl).Unix())
}

// badgerLogger routes badger's internal logging into zerolog.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...any) {
	log.Error().Msgf("badger: "+format, args...)
}

func (badgerLogger) Warningf(format string, args ...any) {
	log.Warn().Msgf("badger: "+format, args...)
}

func (badgerLogger) Infof(format string, args ...any) {
	log.Info().Msgf("badger: "+format, args...)
}

func (badgerLogger) Debugf(format string, args ...any) {
	log.Debug().Msgf("badger: "+format, args...)
}
