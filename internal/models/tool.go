// Package models defines data structures and domain types.
package models

import "fmt"

// Tool identifies one of the cost-tracked command-line assistants.
type Tool int

const (
	// ToolClaude is Claude Code, reported by ccusage.
	ToolClaude Tool = iota
	// ToolCodex is Codex, reported by @ccusage/codex.
	ToolCodex
)

// AllTools returns every tracked tool in display order.
func AllTools() []Tool {
	return []Tool{ToolClaude, ToolCodex}
}

// String returns the raw value persisted in the tool column.
func (t Tool) String() string {
	switch t {
	case ToolClaude:
		return "claude"
	case ToolCodex:
		return "codex"
	default:
		return fmt.Sprintf("tool(%d)", int(t))
	}
}

// DisplayName returns the human readable tool name.
func (t Tool) DisplayName() string {
	switch t {
	case ToolClaude:
		return "Claude Code"
	case ToolCodex:
		return "Codex"
	default:
		return t.String()
	}
}

// ShortName returns a compact label for narrow layouts.
func (t Tool) ShortName() string {
	switch t {
	case ToolClaude:
		return "CC"
	case ToolCodex:
		return "Codex"
	default:
		return t.String()
	}
}

// DailyCommand returns the argv that prints the tool's daily cost breakdown as JSON.
func (t Tool) DailyCommand() []string {
	switch t {
	case ToolClaude:
		return []string{"npx", "--yes", "ccusage@latest", "daily", "--json"}
	case ToolCodex:
		return []string{"npx", "--yes", "@ccusage/codex@latest", "daily", "--json", "--locale", "en-CA"}
	default:
		return nil
	}
}

// CostKey returns the JSON field holding the daily cost in the tool's report.
func (t Tool) CostKey() string {
	switch t {
	case ToolClaude:
		return "totalCost"
	case ToolCodex:
		return "costUSD"
	default:
		return ""
	}
}

// ParseTool converts a persisted raw value back into a Tool.
func ParseTool(raw string) (Tool, error) {
	switch raw {
	case "claude":
		return ToolClaude, nil
	case "codex":
		return ToolCodex, nil
	default:
		return 0, fmt.Errorf("unsupported tool %q", raw)
	}
}
