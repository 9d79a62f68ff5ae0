// Package settings persists user preferences in a TOML file and reloads them
// when the file is edited externally.
package settings

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/wesm/vibepulse/internal/models"
)

// Default values
const (
	DefaultRefreshMinutes = 10
	MinRefreshMinutes     = 1
)

// Settings are the user preferences.
type Settings struct {
	LastMaintenanceAt time.Time
	MaintenanceMode   models.MaintenanceMode
	NpxPath           string
	RefreshMinutes    int
	IncludeClaude     bool
	IncludeCodex      bool
}

// settingsFile is the on-disk layout. A nil timestamp is left out of the file.
type settingsFile struct {
	LastMaintenanceAt *time.Time `toml:"last_maintenance_at,omitempty"`
	MaintenanceMode   string     `toml:"maintenance_mode"`
	NpxPath           string     `toml:"npx_path,omitempty"`
	RefreshMinutes    int        `toml:"refresh_minutes"`
	IncludeClaude     bool       `toml:"include_claude"`
	IncludeCodex      bool       `toml:"include_codex"`
}

// Default returns the settings used when no file exists.
func Default() Settings {
	return Settings{
		IncludeClaude:   true,
		IncludeCodex:    true,
		RefreshMinutes:  DefaultRefreshMinutes,
		MaintenanceMode: models.MaintenanceAutomatic,
	}
}

// EnabledTools returns the tools the user wants tracked, in display order.
func (s Settings) EnabledTools() []models.Tool {
	var tools []models.Tool
	for _, tool := range models.AllTools() {
		if s.Includes(tool) {
			tools = append(tools, tool)
		}
	}
	return tools
}

// Includes reports whether tool is enabled.
func (s Settings) Includes(tool models.Tool) bool {
	switch tool {
	case models.ToolClaude:
		return s.IncludeClaude
	case models.ToolCodex:
		return s.IncludeCodex
	default:
		return false
	}
}

// RefreshInterval is the polling period, never shorter than one minute.
func (s Settings) RefreshInterval() time.Duration {
	return time.Duration(max(MinRefreshMinutes, s.RefreshMinutes)) * time.Minute
}

// Equal reports whether s and o hold the same preferences.
func (s Settings) Equal(o Settings) bool {
	return s.LastMaintenanceAt.Equal(o.LastMaintenanceAt) &&
		s.MaintenanceMode == o.MaintenanceMode &&
		s.NpxPath == o.NpxPath &&
		s.RefreshMinutes == o.RefreshMinutes &&
		s.IncludeClaude == o.IncludeClaude &&
		s.IncludeCodex == o.IncludeCodex
}

// normalized clamps out-of-range values back to usable ones.
func (s Settings) normalized() Settings {
	if s.RefreshMinutes < MinRefreshMinutes {
		s.RefreshMinutes = MinRefreshMinutes
	}
	if !s.MaintenanceMode.Valid() {
		s.MaintenanceMode = models.MaintenanceAutomatic
	}
	return s
}

// Decode parses a settings file. Keys missing from data keep their defaults.
func Decode(data []byte) (Settings, error) {
	def := Default()
	file := settingsFile{
		MaintenanceMode: string(def.MaintenanceMode),
		RefreshMinutes:  def.RefreshMinutes,
		IncludeClaude:   def.IncludeClaude,
		IncludeCodex:    def.IncludeCodex,
	}

	if _, err := toml.Decode(string(data), &file); err != nil {
		return Settings{}, fmt.Errorf("failed to parse settings: %w", err)
	}

	s := Settings{
		MaintenanceMode: models.MaintenanceMode(file.MaintenanceMode),
		NpxPath:         file.NpxPath,
		RefreshMinutes:  file.RefreshMinutes,
		IncludeClaude:   file.IncludeClaude,
		IncludeCodex:    file.IncludeCodex,
	}
	if file.LastMaintenanceAt != nil {
		s.LastMaintenanceAt = *file.LastMaintenanceAt
	}
	return s.normalized(), nil
}

// Encode renders s as TOML.
func Encode(s Settings) ([]byte, error) {
	file := settingsFile{
		MaintenanceMode: string(s.MaintenanceMode),
		NpxPath:         s.NpxPath,
		RefreshMinutes:  s.RefreshMinutes,
		IncludeClaude:   s.IncludeClaude,
		IncludeCodex:    s.IncludeCodex,
	}
	if !s.LastMaintenanceAt.IsZero() {
		at := s.LastMaintenanceAt.UTC()
		file.LastMaintenanceAt = &at
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(file); err != nil {
		return nil, fmt.Errorf("failed to encode settings: %w", err)
	}
	return buf.Bytes(), nil
}

// writeFile replaces path atomically through a temp file in the same directory.
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".settings-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to set file permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
