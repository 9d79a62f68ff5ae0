// Package main is the entry point for VibePulse, a terminal dashboard for
// AI coding assistant spend. It wires configuration, services, and either the
// Bubble Tea program or one of the scriptable subcommands.
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/wesm/vibepulse/internal/app"
	"github.com/wesm/vibepulse/internal/config"
	"github.com/wesm/vibepulse/internal/logger"
	"github.com/wesm/vibepulse/internal/services"
	"github.com/wesm/vibepulse/internal/version"
)

var (
	noColor   bool
	debugMode bool

	// invocation is the command line as parsed, written to the debug log.
	invocation string
)

var rootCmd = &cobra.Command{
	Use:   "vibepulse",
	Short: "Track Claude Code and Codex spend from the terminal",
	Long: `VibePulse polls ccusage for Claude Code and Codex, stores daily totals and
intraday snapshots in SQLite, and charts today's hourly spend and the last
30 days.

Preferences live in a TOML settings file that is reloaded while running.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			color.NoColor = true
		}
		invocation = describeInvocation(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDashboard()
	},
}

func init() {
	rootCmd.Version = version.GetVersion()
	rootCmd.SetVersionTemplate("{{.Version}}\n")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Log at debug level")

	rootCmd.AddCommand(refreshCmd, maintainCmd, reportCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads configuration, opens the log file and starts the services.
// The returned cleanup closes both.
func setup() (*services.Manager, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level := logger.ParseLevel(cfg.LogLevel)
	if debugMode {
		level = logger.ParseLevel("debug")
	}
	logCloser, err := logger.Init(cfg.LogPath, level)
	if err != nil {
		return nil, nil, err
	}

	logger.Debug("starting", "command", invocation, "build", version.Info())

	mgr, err := services.NewManager(cfg)
	if err != nil {
		_ = logCloser.Close()
		return nil, nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	cleanup := func() {
		if closeErr := mgr.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: error closing services: %v\n", closeErr)
		}
		closeQuietly(logCloser)
	}
	return mgr, cleanup, nil
}

// describeInvocation renders the command and the flags that were set.
func describeInvocation(cmd *cobra.Command, args []string) string {
	parts := []string{cmd.CommandPath()}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if f.Value.Type() == "bool" {
			parts = append(parts, "--"+f.Name)
		} else {
			parts = append(parts, "--"+f.Name+"="+f.Value.String())
		}
	})
	return strings.Join(append(parts, args...), " ")
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

// runDashboard runs the interactive TUI until the user quits.
func runDashboard() error {
	mgr, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	mgr.Start()

	p := tea.NewProgram(app.NewModel(mgr), tea.WithAltScreen())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		if _, ok := <-sigChan; ok {
			p.Send(tea.Quit())
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}
