// Keeps every blob change as a git commit using go-git (pure Go, no git binary dependency).

package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Author identifies who commits changes.
type Author struct {
	Name  string
	Email string
}

// Commit is one entry of a key's history.
type Commit struct {
	Hash    string
	Message string
	Author  string
	When    time.Time
}

// GitStore is a FileStore whose directory is a git worktree. Every Set or
// Remove that changes a key's file is committed.
type GitStore struct {
	*FileStore

	author Author
	repo   *gogit.Repository
	mu     sync.Mutex
}

// NewGitStore opens the git repository at dir, initializing it if needed.
func NewGitStore(dir string, author Author) (*GitStore, error) {
	fs, err := NewFileStore(dir)
	if err != nil {
		return nil, err
	}
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		// Not a repo yet: initialize.
		repo, err = gogit.PlainInit(dir, false)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize git repo: %w", err)
		}
		cfg, err := repo.Config()
		if err != nil {
			return nil, fmt.Errorf("failed to read git config: %w", err)
		}
		cfg.User.Name = author.Name
		cfg.User.Email = author.Email
		if err := repo.SetConfig(cfg); err != nil {
			return nil, fmt.Errorf("failed to write git config: %w", err)
		}
	}
	return &GitStore{FileStore: fs, author: author, repo: repo}, nil
}

// Set implements Store and commits the new value.
func (g *GitStore) Set(ctx context.Context, key, value string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.FileStore.Set(ctx, key, value); err != nil {
		return err
	}
	w, err := g.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	name := FileName(key)
	if _, err := w.Add(name); err != nil {
		return fmt.Errorf("failed to stage %s: %w", name, err)
	}
	return g.commitLocked(w, name, "set "+key)
}

// Remove implements Store and commits the deletion.
func (g *GitStore) Remove(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	w, err := g.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	name := FileName(key)
	if _, err := w.Remove(name); err != nil {
		if errors.Is(err, index.ErrEntryNotFound) {
			// Never committed: nothing to record.
			return g.FileStore.Remove(ctx, key)
		}
		return fmt.Errorf("failed to stage removal of %s: %w", name, err)
	}
	if err := g.FileStore.Remove(ctx, key); err != nil {
		return err
	}
	return g.commitLocked(w, name, "remove "+key)
}

func (g *GitStore) commitLocked(w *gogit.Worktree, name, msg string) error {
	status, err := w.Status()
	if err != nil {
		return fmt.Errorf("failed to get worktree status: %w", err)
	}
	if fs, ok := status[name]; !ok || fs.Staging == gogit.Unmodified {
		return nil
	}
	now := time.Now()
	sig := &object.Signature{Name: g.author.Name, Email: g.author.Email, When: now}
	if _, err := w.Commit(msg, &gogit.CommitOptions{Author: sig, Committer: sig}); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// History returns up to n commits touching key, newest first.
func (g *GitStore) History(_ context.Context, key string, n int) ([]Commit, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if n <= 0 || n > 1000 {
		n = 1000
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	name := FileName(key)
	iter, err := g.repo.Log(&gogit.LogOptions{FileName: &name})
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil // no commits yet
		}
		return nil, fmt.Errorf("failed to read history of %s: %w", key, err)
	}
	defer iter.Close()

	var commits []Commit
	for range n {
		c, err := iter.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read history of %s: %w", key, err)
		}
		subject, _, _ := strings.Cut(c.Message, "\n")
		commits = append(commits, Commit{
			Hash:    c.Hash.String(),
			Message: subject,
			Author:  c.Author.Name,
			When:    c.Author.When,
		})
	}
	return commits, nil
}
