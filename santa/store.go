/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package santa

import (
	"context"
	"sync"
)

// Store persists a single game.
//
// Save is conditional: it only succeeds when the stored revision equals revision,
// where 0 means nothing has been stored yet, and returns the new revision.
// A mismatch is reported as ErrConflict. Load on an empty store returns ErrNotFound,
// and a stored value that cannot be decoded returns ErrCorruptState with its revision.
type Store interface {
	Load(ctx context.Context) (Snapshot, uint64, error)
	Save(ctx context.Context, snap Snapshot, revision uint64) (uint64, error)
}

// MemoryStore keeps the game in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	snap     Snapshot
	revision uint64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) (Snapshot, uint64, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.revision == 0 {
		return Snapshot{}, 0, ErrNotFound
	}

	return s.snap.clone(), s.revision, nil
}

func (s *MemoryStore) Save(ctx context.Context, snap Snapshot, revision uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if revision != s.revision {
		return 0, ErrConflict
	}

	s.snap = snap.clone()
	s.revision++

	return s.revision, nil
}
