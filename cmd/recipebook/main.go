// Package main is the entry point for the recipebook CLI.
//
// recipebook manages a recipe collection persisted as a single JSON blob in a
// data directory, optionally versioned in git. Configuration is read from
// recipebook.yaml in the data directory; CLI flags override it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/maruel/recipebook/internal/config"
	apperrors "github.com/maruel/recipebook/internal/errors"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "recipebook: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	configPath := flag.String("config", "", "Config file (default: <data-dir>/"+config.FileName+")")
	dataDir := flag.String("data-dir", config.DefaultDataDir, "Data directory")
	flag.String("backend", config.DefaultBackend, "Blob store backend (file, git)")
	flag.String("log-level", config.DefaultLogLevel, "Log level (debug, info, warn, error)")
	flag.Usage = usage
	flag.Parse()

	if *version {
		printVersion()
		return nil
	}
	if flag.NArg() == 0 {
		usage()
		return errors.New("missing command")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	ll := &slog.LevelVar{}
	ll.Set(slog.LevelInfo)
	slog.SetDefault(newLogger(os.Stderr, ll))

	path := *configPath
	if path == "" {
		path = filepath.Join(*dataDir, config.FileName)
	}
	// Flags explicitly set override the config file.
	overrides := make(map[string]string)
	flag.Visit(func(f *flag.Flag) {
		overrides[f.Name] = f.Value.String()
	})
	cfg, err := loadConfig(path, overrides)
	if err != nil {
		return err
	}
	if err := setLevel(ll, cfg.LogLevel); err != nil {
		return err
	}

	a, err := openApp(ctx, cfg, os.Stdout, slog.Default())
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(context.Background()); err != nil {
			slog.Error("failed to close store", "err", err)
		}
	}()
	return a.run(ctx, flag.Args())
}

// loadConfig reads the config file at path, applies the flags explicitly set
// on the command line, then validates the result.
func loadConfig(path string, overrides map[string]string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if v, ok := overrides["data-dir"]; ok {
		cfg.DataDir = v
	}
	if v, ok := overrides["backend"]; ok {
		cfg.Backend = v
	}
	if v, ok := overrides["log-level"]; ok {
		cfg.LogLevel = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "usage: recipebook [flags] <command> [args]\n\ncommands:\n")
	for _, c := range commands {
		fmt.Fprintf(out, "  %-8s %s\n", c.name, c.help)
	}
	fmt.Fprintf(out, "\nflags:\n")
	flag.PrintDefaults()
}

func newLogger(w *os.File, ll *slog.LevelVar) *slog.Logger {
	// Skip timestamps when running under systemd (it adds its own).
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	return slog.New(tint.NewHandler(colorable.NewColorable(w), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    !isatty.IsTerminal(w.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			skip := false
			switch t := a.Value.Any().(type) {
			case string:
				skip = t == ""
			case time.Duration:
				skip = t == 0
			case nil:
				skip = true
			}
			if skip {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func setLevel(ll *slog.LevelVar, level string) error {
	switch level {
	case "debug":
		ll.Set(slog.LevelDebug)
	case "info":
		ll.Set(slog.LevelInfo)
	case "warn":
		ll.Set(slog.LevelWarn)
	case "error":
		ll.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level: %q", level)
	}
	return nil
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrValidationFailed, apperrors.ErrMissingField, apperrors.ErrInvalidFormat:
		return 2
	case apperrors.ErrNotFound:
		return 3
	case apperrors.ErrCorruptState:
		return 4
	case apperrors.ErrStorageError:
		return 5
	default:
		return 1
	}
}

func printVersion() {
	version, goVersion, revision, dirty := getBuildInfo()
	fmt.Printf("recipebook %s\n", version)
	fmt.Printf("  Go version: %s\n", goVersion)
	fmt.Printf("  Revision:   %s\n", revision)
	if dirty {
		fmt.Printf("  Modified:   true\n")
	}
}

func getBuildInfo() (version, goVersion, revision string, dirty bool) {
	version = "unknown"
	goVersion = "unknown"
	revision = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	version = info.Main.Version
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	goVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return
}
