package blobstore

import (
	"context"
	"encoding/base32"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
)

// base32Enc uses base32 "Extended Hex" alphabet (0-9A-V) which is ASCII-sorted
// and case-insensitive safe for filesystems.
var base32Enc = base32.HexEncoding.WithPadding(base32.NoPadding)

const (
	tmpDirName = "tmp"
	fileExt    = ".json"
)

// FileStore stores each key as one file in a directory.
//
// Writes go to <dir>/tmp/<random>.tmp first and are renamed into place, so a
// reader never sees a partially written value.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed and returns a FileStore over it.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, tmpDirName), 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create blob directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the root directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// FileName returns the file name, relative to Dir, used for key.
func FileName(key string) string {
	return base32Enc.EncodeToString([]byte(key)) + fileExt
}

// Path returns the absolute file path used for key.
func (s *FileStore) Path(key string) string {
	return filepath.Join(s.dir, FileName(key))
}

// Get implements Store.
func (s *FileStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(s.Path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read blob %q: %w", key, err)
	}
	return string(data), true, nil
}

// Set implements Store.
func (s *FileStore) Set(ctx context.Context, key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Join(s.dir, tmpDirName), "*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := f.Name()
	if _, err := f.WriteString(value); err != nil {
		return errors.Join(fmt.Errorf("failed to write blob %q: %w", key, err), f.Close(), os.Remove(tmpPath))
	}
	if err := f.Sync(); err != nil {
		return errors.Join(fmt.Errorf("failed to sync blob %q: %w", key, err), f.Close(), os.Remove(tmpPath))
	}
	if err := f.Close(); err != nil {
		return errors.Join(fmt.Errorf("failed to close temp file: %w", err), os.Remove(tmpPath))
	}
	if err := os.Rename(tmpPath, s.Path(key)); err != nil {
		return errors.Join(fmt.Errorf("failed to rename blob %q to final location: %w", key, err), os.Remove(tmpPath))
	}
	return nil
}

// Remove implements Store.
func (s *FileStore) Remove(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.Path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove blob %q: %w", key, err)
	}
	return nil
}

// Watch calls onChange each time the file backing key is written, created,
// renamed or removed by anyone, this process included. It runs until ctx is
// cancelled.
//
// Bursts of events are coalesced: onChange runs at most once per interval.
func (s *FileStore) Watch(ctx context.Context, key string, interval time.Duration, onChange func()) error {
	if err := validateKey(key); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() {
		_ = watcher.Close()
	}()
	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.dir, err)
	}
	target := filepath.Clean(s.Path(key))
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	slog.DebugContext(ctx, "blobstore: watching for changes", "key", key, "path", target)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := limiter.Wait(ctx); err != nil {
				return nil
			}
			// Anything that queued up while waiting is covered by this call.
			if !drain(watcher.Events) {
				return nil
			}
			onChange()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.ErrorContext(ctx, "blobstore: watcher error", "err", err)
		}
	}
}

// drain empties ch without blocking. It returns false if ch was closed.
func drain(ch <-chan fsnotify.Event) bool {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return false
			}
		default:
			return true
		}
	}
}
