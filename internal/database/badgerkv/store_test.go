package badgerkv

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/historyhiders/hidewatch/internal/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	store, err := Open(Options{InMemory: true})
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func TestStringKeys(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	t.Run("get missing key", func(t *testing.T) {
		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, database.ErrNotFound)
	})

	t.Run("set and get", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "jobId", []byte("abc")))

		value, err := store.Get(ctx, "jobId")
		require.NoError(t, err)
		assert.Equal(t, "abc", string(value))
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "k", []byte("one")))
		require.NoError(t, store.Set(ctx, "k", []byte("two")))

		value, err := store.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "two", string(value))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "gone", []byte("x")))
		require.NoError(t, store.Del(ctx, "gone"))

		_, err := store.Get(ctx, "gone")
		assert.ErrorIs(t, err, database.ErrNotFound)
	})

	t.Run("delete missing key is not an error", func(t *testing.T) {
		assert.NoError(t, store.Del(ctx, "never-there"))
	})
}

func TestExpiry(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	t.Run("string key expires", func(t *testing.T) {
		require.NoError(t, store.SetWithTTL(ctx, "short", []byte("x"), time.Second))

		_, err := store.Get(ctx, "short")
		require.NoError(t, err)

		time.Sleep(2100 * time.Millisecond)

		_, err = store.Get(ctx, "short")
		assert.ErrorIs(t, err, database.ErrNotFound)
	})

	t.Run("expire on missing key is a no-op", func(t *testing.T) {
		assert.NoError(t, store.Expire(ctx, "nothing", time.Hour))
		_, err := store.Get(ctx, "nothing")
		assert.ErrorIs(t, err, database.ErrNotFound)
	})

	t.Run("expire applies to every hash field", func(t *testing.T) {
		require.NoError(t, store.HSet(ctx, "bucket", map[string][]byte{
			"a": []byte("1"),
			"b": []byte("2"),
		}))
		require.NoError(t, store.Expire(ctx, "bucket", time.Second))

		fields, err := store.HGetAll(ctx, "bucket")
		require.NoError(t, err)
		assert.Len(t, fields, 2)

		time.Sleep(2100 * time.Millisecond)

		fields, err = store.HGetAll(ctx, "bucket")
		require.NoError(t, err)
		assert.Empty(t, fields)
	})
}

func TestHashKeys(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	t.Run("hgetall on missing hash", func(t *testing.T) {
		fields, err := store.HGetAll(ctx, "hashKey:2026-01-01")
		require.NoError(t, err)
		assert.Empty(t, fields)
	})

	t.Run("fields accumulate across hset calls", func(t *testing.T) {
		key := "hashKey:2026-01-02"
		require.NoError(t, store.HSet(ctx, key, map[string][]byte{"t2_b": []byte("B")}))
		require.NoError(t, store.HSet(ctx, key, map[string][]byte{"t2_a": []byte("A")}))
		require.NoError(t, store.HSet(ctx, key, map[string][]byte{"t2_b": []byte("B2")}))

		fields, err := store.HGetAll(ctx, key)
		require.NoError(t, err)
		require.Len(t, fields, 2)
		assert.Equal(t, database.HashField{Field: "t2_a", Value: []byte("A")}, fields[0])
		assert.Equal(t, database.HashField{Field: "t2_b", Value: []byte("B2")}, fields[1])
	})

	t.Run("hashes do not leak into each other", func(t *testing.T) {
		require.NoError(t, store.HSet(ctx, "h1", map[string][]byte{"x": []byte("1")}))
		require.NoError(t, store.HSet(ctx, "h10", map[string][]byte{"y": []byte("2")}))

		fields, err := store.HGetAll(ctx, "h1")
		require.NoError(t, err)
		require.Len(t, fields, 1)
		assert.Equal(t, "x", fields[0].Field)
	})

	t.Run("string and hash with same name are separate", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "same", []byte("string")))
		require.NoError(t, store.HSet(ctx, "same", map[string][]byte{"f": []byte("hash")}))

		value, err := store.Get(ctx, "same")
		require.NoError(t, err)
		assert.Equal(t, "string", string(value))

		fields, err := store.HGetAll(ctx, "same")
		require.NoError(t, err)
		require.Len(t, fields, 1)
		assert.Equal(t, "hash", string(fields[0].Value))
	})
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	t.Run("writes when absent", func(t *testing.T) {
		written, err := store.Update(ctx, "claim", time.Hour, func(cur []byte, found bool) ([]byte, bool) {
			assert.False(t, found)
			assert.Nil(t, cur)
			return []byte("claimed"), true
		})
		require.NoError(t, err)
		assert.True(t, written)

		value, err := store.Get(ctx, "claim")
		require.NoError(t, err)
		assert.Equal(t, "claimed", string(value))
	})

	t.Run("sees current value and may decline", func(t *testing.T) {
		written, err := store.Update(ctx, "claim", time.Hour, func(cur []byte, found bool) ([]byte, bool) {
			assert.True(t, found)
			assert.Equal(t, "claimed", string(cur))
			return nil, false
		})
		require.NoError(t, err)
		assert.False(t, written)

		value, err := store.Get(ctx, "claim")
		require.NoError(t, err)
		assert.Equal(t, "claimed", string(value))
	})
}

func TestOpenOnDisk(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv")

	store, err := Open(Options{Path: path})
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "persisted", []byte("yes")))
	require.NoError(t, store.Close())

	reopened, err := Open(Options{Path: path})
	require.NoError(t, err)
	defer reopened.Close()

	value, err := reopened.Get(ctx, "persisted")
	require.NoError(t, err)
	assert.Equal(t, "yes", string(value))
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Options{})
	assert.Error(t, err)
}

func TestHashConcurrentWriters(t *testing.T) {
	tests := []struct {
		name    string
		writers int
		expire  bool
	}{
		{name: "hset only", writers: 50},
		{name: "hset then expire", writers: 50, expire: true},
		{name: "many writers", writers: 200, expire: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := setupTestStore(t)
			key := "hashKey:2026-10-15"

			var wg sync.WaitGroup
			errs := make(chan error, tt.writers)
			start := make(chan struct{})
			for i := range tt.writers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					field := fmt.Sprintf("t2_%03d", i)
					if err := store.HSet(ctx, key, map[string][]byte{field: []byte(field)}); err != nil {
						errs <- err
						return
					}
					if tt.expire {
						if err := store.Expire(ctx, key, 24*time.Hour); err != nil {
							errs <- err
						}
					}
				}()
			}
			close(start)
			wg.Wait()
			close(errs)

			for err := range errs {
				assert.NoError(t, err)
			}

			fields, err := store.HGetAll(ctx, key)
			require.NoError(t, err)
			require.Len(t, fields, tt.writers)
			for _, f := range fields {
				assert.Equal(t, f.Field, string(f.Value))
			}
		})
	}
}

func TestUpdateConcurrentClaims(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	const claimants = 30
	var written atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range claimants {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := store.Update(ctx, "author:t2_race", time.Hour, func(cur []byte, found bool) ([]byte, bool) {
				if found {
					return nil, false
				}
				return []byte(fmt.Sprintf("claimant %d", i)), true
			})
			if err != nil {
				assert.ErrorIs(t, err, database.ErrConflict)
				return
			}
			if ok {
				written.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), written.Load())
	_, err := store.Get(ctx, "author:t2_race")
	assert.NoError(t, err)
}

func TestHashLargeBucket(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	key := "hashKey:2026-10-15"

	// Roughly the size of a snapshot with 500 posts and 500 comments. Together
	// the fields exceed what one badger transaction can hold.
	value := bytes.Repeat([]byte("x"), 64<<10)

	const authors = 300
	for i := range authors {
		field := fmt.Sprintf("t2_%04d", i)
		require.NoError(t, store.HSet(ctx, key, map[string][]byte{field: value}), "hset %d", i)
		require.NoError(t, store.Expire(ctx, key, 24*time.Hour), "expire %d", i)
	}

	fields, err := store.HGetAll(ctx, key)
	require.NoError(t, err)
	assert.Len(t, fields, authors)
}

func TestHashLifetime(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	require.NoError(t, store.HSet(ctx, "old", map[string][]byte{"a": []byte("1"), "b": []byte("2")}))
	require.NoError(t, store.Expire(ctx, "old", time.Second))
	require.NoError(t, store.HSet(ctx, "kept", map[string][]byte{"x": []byte("1")}))
	require.NoError(t, store.Expire(ctx, "kept", time.Hour))

	t.Run("expire keeps field values", func(t *testing.T) {
		fields, err := store.HGetAll(ctx, "old")
		require.NoError(t, err)
		require.Len(t, fields, 2)
		assert.Equal(t, []byte("1"), fields[0].Value)
		assert.Equal(t, []byte("2"), fields[1].Value)
	})

	time.Sleep(2100 * time.Millisecond)

	t.Run("missing marker hides fields", func(t *testing.T) {
		fields, err := store.HGetAll(ctx, "old")
		require.NoError(t, err)
		assert.Empty(t, fields)
	})

	t.Run("fields of an expired hash do not come back", func(t *testing.T) {
		require.NoError(t, store.HSet(ctx, "old", map[string][]byte{"c": []byte("3")}))

		fields, err := store.HGetAll(ctx, "old")
		require.NoError(t, err)
		require.Len(t, fields, 1)
		assert.Equal(t, "c", fields[0].Field)
	})

	t.Run("sweep removes only dead fields", func(t *testing.T) {
		removed, err := store.SweepHashes(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		removed, err = store.SweepHashes(ctx)
		require.NoError(t, err)
		assert.Zero(t, removed)

		fields, err := store.HGetAll(ctx, "kept")
		require.NoError(t, err)
		assert.Len(t, fields, 1)
		fields, err = store.HGetAll(ctx, "old")
		require.NoError(t, err)
		assert.Len(t, fields, 1)
	})
}

func TestHashKeyOf(t *testing.T) {
	tests := []struct {
		name   string
		in     []byte
		want   string
		wantOK bool
	}{
		{name: "field key", in: hashFieldKey("hashKey:2026-10-15", "t2_a"), want: "hashKey:2026-10-15", wantOK: true},
		{name: "empty field", in: hashFieldKey("h", ""), want: "h", wantOK: true},
		{name: "string key", in: stringKey("h"), wantOK: false},
		{name: "marker key", in: markerKey("h"), wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := hashKeyOf(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
