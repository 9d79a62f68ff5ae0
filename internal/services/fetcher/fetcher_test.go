package fetcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wesm/vibepulse/internal/models"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

func newScriptFetcher(t *testing.T, body string, timeout time.Duration) *CommandFetcher {
	t.Helper()

	npx := writeScript(t, t.TempDir(), "npx", body)
	return NewCommandFetcher(timeout, func() string { return npx })
}

func TestFetchDailyTotals(t *testing.T) {
	f := newScriptFetcher(t, `echo '{"daily":[{"date":"2026-02-01","totalCost":12.5}]}'`, time.Second*10)

	got, err := f.FetchDailyTotals(context.Background(), models.ToolClaude)
	if err != nil {
		t.Fatalf("FetchDailyTotals() error = %v", err)
	}
	if len(got) != 1 || got[0].DateKey != "2026-02-01" || got[0].Cost != 12.5 {
		t.Errorf("FetchDailyTotals() = %+v", got)
	}
}

func TestFetchDailyTotals_PassesArguments(t *testing.T) {
	f := newScriptFetcher(t, `echo "[{\"date\":\"$*\",\"costUSD\":1}]"`, time.Second*10)

	got, err := f.FetchDailyTotals(context.Background(), models.ToolCodex)
	if err != nil {
		t.Fatalf("FetchDailyTotals() error = %v", err)
	}
	want := strings.Join(models.ToolCodex.DailyCommand()[1:], " ")
	if len(got) != 1 || got[0].DateKey != want {
		t.Errorf("arguments = %+v, want %q", got, want)
	}
}

func TestFetchDailyTotals_CommandFailed(t *testing.T) {
	f := newScriptFetcher(t, "echo partial\necho boom >&2\nexit 3", time.Second*10)

	_, err := f.FetchDailyTotals(context.Background(), models.ToolClaude)
	if !errors.Is(err, ErrCommandFailed) {
		t.Fatalf("error = %v, want ErrCommandFailed", err)
	}
	if !strings.Contains(err.Error(), "partial\nboom") {
		t.Errorf("error %q should include combined output", err)
	}
}

func TestFetchDailyTotals_Timeout(t *testing.T) {
	f := newScriptFetcher(t, "exec sleep 5", 50*time.Millisecond)

	start := time.Now()
	_, err := f.FetchDailyTotals(context.Background(), models.ToolClaude)
	if !errors.Is(err, ErrCommandFailed) {
		t.Fatalf("error = %v, want ErrCommandFailed", err)
	}
	if time.Since(start) > 4*time.Second {
		t.Error("command was not cancelled at the timeout")
	}
}

func TestFetchDailyTotals_InvalidOutput(t *testing.T) {
	f := newScriptFetcher(t, "echo not-json", time.Second*10)

	_, err := f.FetchDailyTotals(context.Background(), models.ToolClaude)
	if !errors.Is(err, ErrInvalidOutput) {
		t.Errorf("error = %v, want ErrInvalidOutput", err)
	}
}

func TestResolveCommand_OverrideMissing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "npx")
	f := NewCommandFetcher(0, func() string { return missing })

	_, _, err := f.resolveCommand(models.ToolClaude.DailyCommand())
	if !errors.Is(err, ErrNpxNotFound) {
		t.Fatalf("error = %v, want ErrNpxNotFound", err)
	}
	if !strings.Contains(err.Error(), missing) {
		t.Errorf("error %q should name the override path", err)
	}
}

func TestResolveCommand_SearchesPath(t *testing.T) {
	dir := t.TempDir()
	npx := writeScript(t, dir, "npx", "exit 0")

	f := NewCommandFetcher(0, func() string { return "" })
	f.candidates = nil
	f.defaults = nil
	f.getenv = func(string) string { return dir }

	name, args, err := f.resolveCommand([]string{"npx", "--yes", "pkg"})
	if err != nil {
		t.Fatalf("resolveCommand() error = %v", err)
	}
	if name != npx {
		t.Errorf("name = %q, want %q", name, npx)
	}
	if len(args) != 2 || args[0] != "--yes" {
		t.Errorf("args = %v, want npx stripped", args)
	}
}

func TestResolveCommand_NotFound(t *testing.T) {
	f := NewCommandFetcher(0, nil)
	f.candidates = nil
	f.defaults = nil
	f.getenv = func(string) string { return t.TempDir() }

	if _, _, err := f.resolveCommand([]string{"npx"}); !errors.Is(err, ErrNpxNotFound) {
		t.Errorf("error = %v, want ErrNpxNotFound", err)
	}
}

func TestResolveCommand_NonNpx(t *testing.T) {
	f := NewCommandFetcher(0, nil)

	name, args, err := f.resolveCommand([]string{"ccusage", "daily"})
	if err != nil {
		t.Fatalf("resolveCommand() error = %v", err)
	}
	if name != "/usr/bin/env" || len(args) != 2 || args[0] != "ccusage" {
		t.Errorf("resolveCommand() = %q %v", name, args)
	}
}

func TestSearchPaths_Deduplicates(t *testing.T) {
	f := NewCommandFetcher(0, nil)
	f.defaults = []string{"/usr/local/bin", "/usr/bin"}
	f.getenv = func(string) string {
		return strings.Join([]string{"/home/me/bin", "/usr/bin", "", "/home/me/bin"}, string(os.PathListSeparator))
	}

	got := f.searchPaths()
	want := []string{"/usr/local/bin", "/usr/bin", "/home/me/bin"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("searchPaths() = %v, want %v", got, want)
	}
}

func TestIsExecutable(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "run", "exit 0")
	plain := filepath.Join(dir, "plain")
	if err := os.WriteFile(plain, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if !isExecutable(script) {
		t.Error("script should be executable")
	}
	if isExecutable(plain) {
		t.Error("plain file should not be executable")
	}
	if isExecutable(dir) {
		t.Error("directory should not be executable")
	}
}
