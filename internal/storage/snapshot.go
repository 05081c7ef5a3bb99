package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"setlist/internal/core"
)

const opTimeout = 5 * time.Second

// SnapshotStore keeps the whole session state as one JSON document.
type SnapshotStore struct {
	db  *DB
	key string
}

// NewSnapshotStore stores the state under key; an empty key uses core.DefaultStorageKey.
func NewSnapshotStore(db *DB, key string) *SnapshotStore {
	if key == "" {
		key = core.DefaultStorageKey
	}
	return &SnapshotStore{db: db, key: key}
}

func (s *SnapshotStore) Load() (core.State, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	raw, err := s.db.Get(ctx, s.key)
	if errors.Is(err, ErrNotFound) {
		return core.State{}, false, nil
	}
	if err != nil {
		return core.State{}, false, err
	}

	var state core.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return core.State{}, false, fmt.Errorf("failed to decode %s: %w", s.key, err)
	}
	return state, true, nil
}

func (s *SnapshotStore) Save(state core.State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return s.db.Put(ctx, s.key, raw)
}

// Clear drops the stored document.
func (s *SnapshotStore) Clear() error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return s.db.Delete(ctx, s.key)
}
