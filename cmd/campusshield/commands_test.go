package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nao1215/campusshield/internal/config"
)

// TestNewWatchCmd tests the watch command creation.
func TestNewWatchCmd(t *testing.T) {
	t.Parallel()

	cmd := NewWatchCmd()
	if cmd.Use != "watch [email-page]" {
		t.Errorf("expected use 'watch [email-page]', got %q", cmd.Use)
	}
	for _, name := range []string{"config", "backend", "timeout", "url", "offline", "db-dir", "no-history"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected %s flag", name)
		}
	}
	if cmd.Flags().Lookup("json") != nil {
		t.Error("watch has no report output")
	}
}

// TestNewServeCmd tests the serve command creation.
func TestNewServeCmd(t *testing.T) {
	t.Parallel()

	cmd := NewServeCmd()
	flag := cmd.Flags().Lookup("listen")
	if flag == nil {
		t.Fatal("expected listen flag")
	}
	if flag.Shorthand != "l" {
		t.Errorf("expected shorthand 'l', got %q", flag.Shorthand)
	}
	if flag.DefValue != config.DefaultListenAddress {
		t.Errorf("expected default %q, got %q", config.DefaultListenAddress, flag.DefValue)
	}
}

// TestNewHistoryCmd tests the history command creation.
func TestNewHistoryCmd(t *testing.T) {
	t.Parallel()

	cmd := NewHistoryCmd()
	flag := cmd.Flags().Lookup("limit")
	if flag == nil {
		t.Fatal("expected limit flag")
	}
	if flag.DefValue != "20" {
		t.Errorf("expected default '20', got %q", flag.DefValue)
	}
	for _, name := range []string{"db-dir", "json", "markdown", "output"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected %s flag", name)
		}
	}
}

// TestWatchLogger tests where the watch screen logs.
func TestWatchLogger(t *testing.T) {
	t.Parallel()

	t.Run("quiet without verbose", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.DBDir = filepath.Join(t.TempDir(), "data")

		logger, closeLog, err := watchLogger(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer closeLog()
		logger.Warn("dropped")

		if _, err := os.Stat(cfg.DBDir); !os.IsNotExist(err) {
			t.Error("expected no data directory without verbose")
		}
	})

	t.Run("log file with verbose", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.DBDir = filepath.Join(t.TempDir(), "data")
		cfg.Verbose = true

		logger, closeLog, err := watchLogger(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		logger.Debug("panel moved")
		closeLog()

		content, err := os.ReadFile(filepath.Join(cfg.DBDir, watchLogFile))
		if err != nil {
			t.Fatalf("failed to read log: %v", err)
		}
		if len(content) == 0 {
			t.Error("expected log output")
		}
	})
}
