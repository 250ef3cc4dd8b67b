/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package kvstore saves a game to a NATS JetStream key-value bucket, one key per game.
//
// Writes go through the bucket's per-key revision, so two servers sharing a
// bucket cannot both hand out the same recipient: the slower writer gets
// santa.ErrConflict and redraws from the newer state.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Seednode/secretsanta/santa"
)

// Store implements santa.Store on a single key of a KV bucket.
type Store struct {
	kv  jetstream.KeyValue
	key string
}

var _ santa.Store = (*Store)(nil)

func New(kv jetstream.KeyValue, key string) *Store {
	return &Store{kv: kv, key: key}
}

func (s *Store) Key() string {
	return s.key
}

func (s *Store) Load(ctx context.Context) (santa.Snapshot, uint64, error) {
	entry, err := s.kv.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return santa.Snapshot{}, 0, santa.ErrNotFound
		}

		return santa.Snapshot{}, 0, fmt.Errorf("get %s: %w", s.key, err)
	}

	var snap santa.Snapshot
	if err := json.Unmarshal(entry.Value(), &snap); err != nil {
		return santa.Snapshot{}, entry.Revision(), fmt.Errorf("%w: decode %s: %w", santa.ErrCorruptState, s.key, err)
	}

	return snap, entry.Revision(), nil
}

func (s *Store) Save(ctx context.Context, snap santa.Snapshot, revision uint64) (uint64, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", s.key, err)
	}

	var next uint64
	if revision == 0 {
		next, err = s.kv.Create(ctx, s.key, data)
	} else {
		next, err = s.kv.Update(ctx, s.key, data, revision)
	}

	if err != nil {
		if isWrongRevision(err) {
			return 0, fmt.Errorf("%w: %s at revision %d", santa.ErrConflict, s.key, revision)
		}

		return 0, fmt.Errorf("put %s: %w", s.key, err)
	}

	return next, nil
}

func isWrongRevision(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}

	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
	}

	return false
}

// EnsureBucket creates the bucket, or opens it if another server got there first.
// Transient failures are retried with exponential backoff.
func EnsureBucket(ctx context.Context, js jetstream.JetStream, cfg jetstream.KeyValueConfig, retries int) (jetstream.KeyValue, error) {
	if retries <= 0 {
		retries = 3
	}

	var lastErr error

	for attempt := range retries {
		kv, err := js.CreateKeyValue(ctx, cfg)
		if err == nil {
			return kv, nil
		}

		if errors.Is(err, jetstream.ErrBucketExists) {
			kv, err = js.KeyValue(ctx, cfg.Bucket)
			if err == nil {
				return kv, nil
			}
			lastErr = fmt.Errorf("bucket exists but failed to open: %w", err)
		} else {
			lastErr = err
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("creating bucket %s: %w", cfg.Bucket, ctx.Err())
		}

		if attempt < retries-1 {
			backoff := time.Duration(1<<attempt) * 10 * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return nil, fmt.Errorf("failed to create/open bucket %s after %d attempts: %w", cfg.Bucket, retries, lastErr)
}
