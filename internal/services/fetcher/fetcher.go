// Package fetcher runs the usage reporters for each tool and parses their
// daily cost breakdowns.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/wesm/vibepulse/internal/logger"
	"github.com/wesm/vibepulse/internal/models"
)

// Fetcher errors
var (
	ErrCommandFailed = errors.New("usage command failed")
	ErrInvalidOutput = errors.New("usage command returned invalid JSON")
	ErrNpxNotFound   = errors.New("npx not found")
)

// DefaultTimeout bounds a single reporter run.
const DefaultTimeout = 2 * time.Minute

// Fetcher returns the per-day totals a tool reports for itself.
type Fetcher interface {
	FetchDailyTotals(ctx context.Context, tool models.Tool) ([]models.DailyTotal, error)
}

// defaultSearchPaths are prepended to PATH for the child process. GUI
// launchers and cron often start us with a minimal PATH.
var defaultSearchPaths = []string{
	"/opt/homebrew/bin",
	"/usr/local/bin",
	"/usr/bin",
	"/bin",
	"/usr/sbin",
	"/sbin",
}

// wellKnownNpx are checked before searching PATH.
var wellKnownNpx = []string{
	"/opt/homebrew/bin/npx",
	"/usr/local/bin/npx",
	"/usr/bin/npx",
}

// CommandFetcher runs each tool's reporter through npx.
type CommandFetcher struct {
	npxOverride func() string
	getenv      func(string) string
	candidates  []string
	defaults    []string
	timeout     time.Duration
}

// NewCommandFetcher creates a fetcher. npxOverride, when non-nil, is consulted
// on every run so a changed setting takes effect without a restart.
func NewCommandFetcher(timeout time.Duration, npxOverride func() string) *CommandFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &CommandFetcher{
		npxOverride: npxOverride,
		getenv:      os.Getenv,
		candidates:  wellKnownNpx,
		defaults:    defaultSearchPaths,
		timeout:     timeout,
	}
}

// FetchDailyTotals runs the tool's daily report and parses its output.
func (f *CommandFetcher) FetchDailyTotals(ctx context.Context, tool models.Tool) ([]models.DailyTotal, error) {
	argv := tool.DailyCommand()
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: no command for %s", ErrCommandFailed, tool)
	}

	data, err := f.run(ctx, argv)
	if err != nil {
		return nil, err
	}
	return ParseDailyTotals(tool, data)
}

func (f *CommandFetcher) run(ctx context.Context, argv []string) ([]byte, error) {
	name, args, err := f.resolveCommand(argv)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = f.environment()
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	logger.Debug("usage command finished", "command", strings.Join(argv, " "),
		"duration", time.Since(start), "error", err)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrCommandFailed, ctxErr)
		}
		combined := joinOutput(stdout.String(), stderr.String())
		if combined == "" {
			return nil, fmt.Errorf("%w: %v", ErrCommandFailed, err)
		}
		return nil, fmt.Errorf("%w: %s", ErrCommandFailed, combined)
	}

	return stdout.Bytes(), nil
}

// resolveCommand maps argv onto an executable path. Only npx gets special
// lookup; anything else goes through /usr/bin/env.
func (f *CommandFetcher) resolveCommand(argv []string) (string, []string, error) {
	if argv[0] != "npx" {
		return "/usr/bin/env", argv, nil
	}

	if f.npxOverride != nil {
		if override := strings.TrimSpace(f.npxOverride()); override != "" {
			if isExecutable(override) {
				return override, argv[1:], nil
			}
			return "", nil, fmt.Errorf("%w at %s: update the path in settings or install Node.js", ErrNpxNotFound, override)
		}
	}

	if path := f.findNpx(); path != "" {
		return path, argv[1:], nil
	}
	return "", nil, fmt.Errorf("%w: install Node.js or set npx_path in settings", ErrNpxNotFound)
}

func (f *CommandFetcher) findNpx() string {
	for _, path := range f.candidates {
		if isExecutable(path) {
			return path
		}
	}
	for _, dir := range f.searchPaths() {
		path := filepath.Join(dir, "npx")
		if isExecutable(path) {
			return path
		}
	}
	return ""
}

// searchPaths returns the default bin directories followed by PATH, without
// duplicates.
func (f *CommandFetcher) searchPaths() []string {
	existing := filepath.SplitList(f.getenv("PATH"))

	seen := make(map[string]bool, len(f.defaults)+len(existing))
	combined := make([]string, 0, len(f.defaults)+len(existing))
	for _, dir := range append(append([]string{}, f.defaults...), existing...) {
		if dir == "" || seen[dir] {
			continue
		}
		seen[dir] = true
		combined = append(combined, dir)
	}
	return combined
}

func (f *CommandFetcher) environment() []string {
	env := os.Environ()
	path := "PATH=" + strings.Join(f.searchPaths(), string(os.PathListSeparator))

	for i, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			env[i] = path
			return env
		}
	}
	return append(env, path)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode().Perm()&0o111 != 0
}

func joinOutput(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}
