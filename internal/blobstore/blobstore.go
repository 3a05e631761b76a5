// Package blobstore defines the string key-value blob store the recipe store
// persists to, and its implementations.
//
// # Contract
//
// A [Store] maps string keys to string values. Get reports absent keys with
// ok == false rather than an error. Remove of an absent key succeeds. All
// operations may fail; callers never assume they succeed.
//
// # Implementations
//
//   - [Memory]: in-process map, for tests and embedding.
//   - [FileStore]: one file per key with atomic replace, plus change watching.
//   - [GitStore]: a FileStore inside a git worktree that commits every change.
package blobstore

import (
	"context"
	"errors"
	"strings"
)

// ErrKeyRequired is returned for an empty or blank key.
var ErrKeyRequired = errors.New("blobstore: key is required")

// Store is an asynchronous string key-value store.
type Store interface {
	// Get returns the value stored under key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrKeyRequired
	}
	return nil
}
