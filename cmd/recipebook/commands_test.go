package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/maruel/recipebook/internal/blobstore"
	"github.com/maruel/recipebook/internal/config"
	apperrors "github.com/maruel/recipebook/internal/errors"
	"github.com/maruel/recipebook/internal/store"
)

// syncBuffer is a bytes.Buffer safe for the watch printer goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.WatchInterval = 10 * time.Millisecond
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) (*app, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	a, err := openApp(t.Context(), cfg, out, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("openApp failed: %v", err)
	}
	t.Cleanup(func() {
		if err := a.close(context.Background()); err != nil {
			t.Errorf("close failed: %v", err)
		}
	})
	return a, out
}

func run(t *testing.T, a *app, out *syncBuffer, args ...string) string {
	t.Helper()
	out.Reset()
	if err := a.run(t.Context(), args); err != nil {
		t.Fatalf("%v failed: %v", args, err)
	}
	return out.String()
}

func addBolo(t *testing.T, a *app, out *syncBuffer) string {
	t.Helper()
	id := strings.TrimSpace(run(t, a, out, "add",
		"-name", "Bolo",
		"-difficulty", "facil",
		"-time", "40",
		"-ingredients", "2 xícaras de Farinha;3 de Ovos",
		"-method", "Misture e asse."))
	if id == "" {
		t.Fatal("add printed no id")
	}
	return id
}

func TestCommands(t *testing.T) {
	cfg := testConfig(t)
	a, out := newTestApp(t, cfg)

	if got := run(t, a, out, "list"); got != "no recipes\n" {
		t.Errorf("list = %q", got)
	}

	id := addBolo(t, a, out)
	if got := run(t, a, out, "list"); got != id+" Bolo (Fácil, 40 min)\n" {
		t.Errorf("list = %q", got)
	}

	got := run(t, a, out, "show", id)
	for _, want := range []string{"Bolo", "Fácil", "2 xícaras de Farinha", "3 de Ovos", "Misture e asse."} {
		if !strings.Contains(got, want) {
			t.Errorf("show output missing %q:\n%s", want, got)
		}
	}

	got = run(t, a, out, "update", id, "-time", "45", "-difficulty", "media")
	if got != id+" Bolo (Média, 45 min)\n" {
		t.Errorf("update = %q", got)
	}

	// A new process sees the same data.
	b, bout := newTestApp(t, cfg)
	if got := run(t, b, bout, "list"); got != id+" Bolo (Média, 45 min)\n" {
		t.Errorf("list after reopen = %q", got)
	}

	run(t, a, out, "delete", id)
	if got := run(t, a, out, "list"); got != "no recipes\n" {
		t.Errorf("list after delete = %q", got)
	}

	addBolo(t, a, out)
	addBolo(t, a, out)
	run(t, a, out, "clear")
	if _, err := os.Stat(a.files.Path(store.DefaultKey)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("blob file still present after clear: %v", err)
	}

	got = run(t, a, out, "log")
	lines := strings.Split(strings.TrimSpace(got), "\n")
	var ops []string
	for _, l := range lines {
		ops = append(ops, strings.Fields(l)[2])
	}
	// Entries recorded by the second app are not part of this app's view.
	want := []string{"load", "create", "update", "delete", "create", "create", "clear"}
	if strings.Join(ops, ",") != strings.Join(want, ",") {
		t.Errorf("log ops = %v, want %v", ops, want)
	}
}

func TestCommandErrors(t *testing.T) {
	a, out := newTestApp(t, testConfig(t))
	tests := []struct {
		name string
		args []string
		code apperrors.ErrorCode
	}{
		{"unknown command", []string{"frobnicate"}, apperrors.ErrInternal},
		{"show missing id", []string{"show"}, apperrors.ErrMissingField},
		{"show unknown id", []string{"show", "nope"}, apperrors.ErrNotFound},
		{"add missing name", []string{"add", "-difficulty", "facil", "-ingredients", "1 de sal", "-method", "x"}, apperrors.ErrMissingField},
		{"add bad time", []string{"add", "-name", "x", "-difficulty", "facil", "-time", "500", "-ingredients", "1 de sal", "-method", "x"}, apperrors.ErrInvalidFormat},
		{"add bad flag", []string{"add", "-bogus"}, apperrors.ErrValidationFailed},
		{"update nothing", []string{"update", "nope"}, apperrors.ErrValidationFailed},
		{"update unknown id", []string{"update", "nope", "-name", "x"}, apperrors.ErrNotFound},
		{"delete unknown id", []string{"delete", "nope"}, apperrors.ErrNotFound},
		{"history on file backend", []string{"history"}, apperrors.ErrValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := a.run(t.Context(), tt.args)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := apperrors.CodeOf(err); got != tt.code {
				t.Errorf("code = %q, want %q (%v)", got, tt.code, err)
			}
		})
	}
	if out.String() != "" {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errors.New("boom"), 1},
		{apperrors.MissingField("nome"), 2},
		{apperrors.NotFound("recipe"), 3},
		{&store.CorruptStateError{Key: "k", Err: errors.New("bad")}, 4},
		{&store.PersistenceError{Op: "set", Key: "k", Err: errors.New("full")}, 5},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestSchemaCommand(t *testing.T) {
	a, out := newTestApp(t, testConfig(t))
	got := run(t, a, out, "schema")
	var schema map[string]any
	if err := json.Unmarshal([]byte(got), &schema); err != nil {
		t.Fatalf("schema is not JSON: %v\n%s", err, got)
	}
	if schema["type"] != "array" {
		t.Errorf("type = %v", schema["type"])
	}
}

func TestGitBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backend = config.BackendGit
	a, out := newTestApp(t, cfg)
	id := addBolo(t, a, out)
	run(t, a, out, "update", id, "-name", "Bolo de Cenoura")
	run(t, a, out, "clear")

	got := run(t, a, out, "history", "-n", "0")
	lines := strings.Split(strings.TrimSpace(got), "\n")
	if len(lines) != 3 {
		t.Fatalf("history has %d lines, want 3:\n%s", len(lines), got)
	}
	for i, want := range []string{"remove", "set", "set"} {
		if !strings.Contains(lines[i], want+" "+store.DefaultKey) {
			t.Errorf("line %d = %q, want %q", i, lines[i], want)
		}
	}
	if got := run(t, a, out, "history", "-n", "1"); strings.Count(got, "\n") != 1 {
		t.Errorf("history -n 1 = %q", got)
	}
}

func TestCorruptBlob(t *testing.T) {
	cfg := testConfig(t)
	fs, err := blobstore.NewFileStore(cfg.DataDir)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	if err := fs.Set(t.Context(), store.DefaultKey, "{broken"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	a, out := newTestApp(t, cfg)
	if got := run(t, a, out, "list"); got != "no recipes\n" {
		t.Errorf("list = %q", got)
	}
	entries, err := os.ReadDir(cfg.DataDir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	// The corrupt blob, its quarantined copy, the journal and tmp/.
	if len(entries) != 4 {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("data dir = %v", names)
	}
}

func TestOpenAppReadError(t *testing.T) {
	cfg := testConfig(t)
	// A directory where the blob file should be makes the read fail.
	if err := os.Mkdir(filepath.Join(cfg.DataDir, blobstore.FileName(store.DefaultKey)), 0o755); err != nil {
		t.Fatal(err)
	}
	_, err := openApp(t.Context(), cfg, &syncBuffer{}, slog.New(slog.DiscardHandler))
	var perr *store.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("openApp error = %v, want *PersistenceError", err)
	}
}

func TestWatchCommand(t *testing.T) {
	cfg := testConfig(t)
	a, out := newTestApp(t, cfg)
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() {
		done <- a.run(ctx, []string{"watch"})
	}()

	waitFor := func(want string) {
		t.Helper()
		deadline := time.Now().Add(5 * time.Second)
		for !strings.Contains(out.String(), want) {
			if time.Now().After(deadline) {
				t.Fatalf("timed out waiting for %q, output:\n%s", want, out.String())
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
	waitFor("no recipes")

	// Another process adds a recipe. The watcher may only be armed after a
	// short delay, so keep writing until it is noticed.
	other, otherOut := newTestApp(t, cfg)
	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(out.String(), "Bolo") {
		if time.Now().After(deadline) {
			t.Fatalf("watch never printed the new recipe, output:\n%s", out.String())
		}
		addBolo(t, other, otherOut)
		time.Sleep(50 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("watch returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}
