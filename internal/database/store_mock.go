package database

import (
	"context"
	"time"
)

// MockStore is a mock implementation of the Store interface for testing.
// Uses function fields to allow tests to inject custom behavior; a nil
// field falls through to Next when set, or returns a zero value.
type MockStore struct {
	Next Store

	GetFunc        func(ctx context.Context, key string) ([]byte, error)
	SetFunc        func(ctx context.Context, key string, value []byte) error
	SetWithTTLFunc func(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DelFunc        func(ctx context.Context, key string) error
	UpdateFunc     func(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) (bool, error)
	HSetFunc       func(ctx context.Context, key string, fields map[string][]byte) error
	HGetAllFunc    func(ctx context.Context, key string) ([]HashField, error)
	ExpireFunc     func(ctx context.Context, key string, ttl time.Duration) error
}

var _ Store = (*MockStore)(nil)

func (m *MockStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	if m.Next != nil {
		return m.Next.Get(ctx, key)
	}
	return nil, ErrNotFound
}

func (m *MockStore) Set(ctx context.Context, key string, value []byte) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value)
	}
	if m.Next != nil {
		return m.Next.Set(ctx, key, value)
	}
	return nil
}

func (m *MockStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.SetWithTTLFunc != nil {
		return m.SetWithTTLFunc(ctx, key, value, ttl)
	}
	if m.Next != nil {
		return m.Next.SetWithTTL(ctx, key, value, ttl)
	}
	return nil
}

func (m *MockStore) Del(ctx context.Context, key string) error {
	if m.DelFunc != nil {
		return m.DelFunc(ctx, key)
	}
	if m.Next != nil {
		return m.Next.Del(ctx, key)
	}
	return nil
}

func (m *MockStore) Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) (bool, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, key, ttl, fn)
	}
	if m.Next != nil {
		return m.Next.Update(ctx, key, ttl, fn)
	}
	return false, nil
}

func (m *MockStore) HSet(ctx context.Context, key string, fields map[string][]byte) error {
	if m.HSetFunc != nil {
		return m.HSetFunc(ctx, key, fields)
	}
	if m.Next != nil {
		return m.Next.HSet(ctx, key, fields)
	}
	return nil
}

func (m *MockStore) HGetAll(ctx context.Context, key string) ([]HashField, error) {
	if m.HGetAllFunc != nil {
		return m.HGetAllFunc(ctx, key)
	}
	if m.Next != nil {
		return m.Next.HGetAll(ctx, key)
	}
	return nil, nil
}

func (m *MockStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if m.ExpireFunc != nil {
		return m.ExpireFunc(ctx, key, ttl)
	}
	if m.Next != nil {
		return m.Next.Expire(ctx, key, ttl)
	}
	return nil
}

func (m *MockStore) Close() error {
	if m.Next != nil {
		return m.Next.Close()
	}
	return nil
}
