package storage

import (
	"context"
	"errors"
)

// Record binds a Store to one fixed key. Load reports a missing key as
// (nil, nil), which is the shape pkg/keycloak expects from its RecordStore.
type Record struct {
	store Store
	key   string
}

func NewRecord(store Store, key string) *Record {
	return &Record{store: store, key: key}
}

func (r *Record) Key() string { return r.key }

func (r *Record) Load(ctx context.Context) ([]byte, error) {
	raw, err := r.store.Get(ctx, r.key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return raw, err
}

func (r *Record) Save(ctx context.Context, value []byte) error {
	return r.store.Set(ctx, r.key, value)
}

func (r *Record) Clear(ctx context.Context) error {
	return r.store.Delete(ctx, r.key)
}
