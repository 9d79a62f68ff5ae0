package usage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wesm/vibepulse/internal/models"
)

// ToolError is a refresh failure for a single tool.
type ToolError struct {
	Err  error
	Tool models.Tool
}

func (e ToolError) Error() string {
	return fmt.Sprintf("%s: %v", e.Tool.DisplayName(), e.Err)
}

func (e ToolError) Unwrap() error {
	return e.Err
}

// RefreshResult describes one refresh cycle.
type RefreshResult struct {
	StartedAt  time.Time
	FinishedAt time.Time
	TodayCost  map[models.Tool]float64
	RunID      string
	Tools      []models.Tool
	Errors     []ToolError
	Skipped    bool
	NoTools    bool
}

// Err joins the per-tool failures, or reports that nothing was enabled.
func (r RefreshResult) Err() error {
	if r.NoTools {
		return ErrNoToolsEnabled
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// Status is the message shown after the cycle; empty when every tool succeeded.
func (r RefreshResult) Status() string {
	if r.NoTools {
		return StatusNoTools
	}
	parts := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		parts[i] = e.Error()
	}
	return strings.Join(parts, " | ")
}

// MaintenanceResult describes one maintenance run.
type MaintenanceResult struct {
	FinishedAt        time.Time
	Err               error
	SamplesUpdated    int
	RollupsNormalized int
	Ran               bool
}

// Message is the status line for a completed run.
func (r MaintenanceResult) Message() string {
	if !r.Ran {
		return ""
	}
	if r.Err != nil {
		return fmt.Sprintf("Maintenance failed: %v", r.Err)
	}
	return fmt.Sprintf("Maintenance complete. Updated %d snapshots, normalized %d daily totals.",
		r.SamplesUpdated, r.RollupsNormalized)
}
