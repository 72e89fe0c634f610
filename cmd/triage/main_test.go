package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opensource-health/triage/internal/domain"
	"github.com/opensource-health/triage/internal/repository"
	"github.com/opensource-health/triage/internal/stats"
	"github.com/opensource-health/triage/internal/summary"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestDetectCommand(t *testing.T) {
	chdir(t, t.TempDir())

	t.Run("PlainText", func(t *testing.T) {
		out, err := runCmd(t, "detect", "saya", "demam", "tinggi")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.HasPrefix(out, "Penyakit: flu\n") {
			t.Errorf("unexpected output: %q", out)
		}
	})

	t.Run("NoMatch", func(t *testing.T) {
		out, err := runCmd(t, "detect", "cuaca cerah")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.TrimSpace(out) != summary.NoDiseaseDetected {
			t.Errorf("expected %q, got %q", summary.NoDiseaseDetected, out)
		}
	})

	t.Run("JSON", func(t *testing.T) {
		out, err := runCmd(t, "detect", "--json", "mual dan kembung")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var sum summary.Summary
		if err := json.Unmarshal([]byte(out), &sum); err != nil {
			t.Fatalf("failed to parse output: %v", err)
		}
		if len(sum.Records) != 1 || sum.Records[0].Disease != "maag" {
			t.Errorf("expected a single maag record, got %+v", sum.Records)
		}
	})

	t.Run("RequiresText", func(t *testing.T) {
		if _, err := runCmd(t, "detect"); err == nil {
			t.Error("expected error without text")
		}
	})
}

func TestStatsCommand(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	dbPath := filepath.Join(dir, "stats.db")
	t.Setenv("TRIAGE_REPOSITORY_SQLITE_PATH", dbPath)

	t.Run("Empty", func(t *testing.T) {
		out, err := runCmd(t, "stats")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "no detection data") {
			t.Errorf("unexpected output: %q", out)
		}
	})

	store, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: dbPath})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	for _, d := range []string{"flu", "flu", "diare"} {
		if _, err := store.AppendBatch(context.Background(), []domain.DetectionRecord{{Disease: d}}); err != nil {
			t.Fatalf("failed to seed: %v", err)
		}
	}
	store.Close()

	t.Run("Overall", func(t *testing.T) {
		out, err := runCmd(t, "stats")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "total detections: 3") {
			t.Errorf("missing total: %q", out)
		}
		lines := strings.Split(strings.TrimSpace(out), "\n")
		if len(lines) != 3 || !strings.Contains(lines[1], "flu") || !strings.Contains(lines[1], "66.67%") {
			t.Errorf("expected flu first with 66.67%%, got %q", out)
		}
	})

	t.Run("SingleDisease", func(t *testing.T) {
		out, err := runCmd(t, "stats", "DIARE")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.TrimSpace(out) != "diare: 33.33%" {
			t.Errorf("unexpected output: %q", out)
		}
	})
}

func TestPrintStatsStoreFailure(t *testing.T) {
	store, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "closed.db"),
	})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	store.Close()

	var out bytes.Buffer
	if err := printStats(context.Background(), &out, stats.NewEngine(store), nil); err == nil {
		t.Error("expected error from closed store")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("JSON", func(t *testing.T) {
		var buf bytes.Buffer
		newLogger(&buf, domain.LoggingConfig{Level: "info", Format: "json"}).Info("hello", "k", "v")
		if !strings.HasPrefix(buf.String(), "{") {
			t.Errorf("expected JSON output, got %q", buf.String())
		}
	})

	t.Run("Text", func(t *testing.T) {
		var buf bytes.Buffer
		newLogger(&buf, domain.LoggingConfig{Level: "info", Format: "text"}).Info("hello")
		if !strings.Contains(buf.String(), "msg=hello") {
			t.Errorf("expected text output, got %q", buf.String())
		}
	})

	t.Run("DebugOverride", func(t *testing.T) {
		t.Setenv("TRIAGE_DEBUG", "true")
		var buf bytes.Buffer
		newLogger(&buf, domain.LoggingConfig{Level: "error"}).Debug("visible")
		if !strings.Contains(buf.String(), "visible") {
			t.Error("expected debug message to be logged")
		}
	})
}
