package fetcher

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/wesm/vibepulse/internal/datekey"
	"github.com/wesm/vibepulse/internal/models"
)

// ParseDailyTotals decodes a reporter's JSON output. The report is either an
// object with a "daily" array or a bare array of rows. Rows missing a date or
// a usable cost are skipped.
func ParseDailyTotals(tool models.Tool, data []byte) ([]models.DailyTotal, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []models.DailyTotal{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}

	var rows []any
	switch v := doc.(type) {
	case map[string]any:
		rows, _ = v["daily"].([]any)
	case []any:
		rows = v
	default:
		return nil, ErrInvalidOutput
	}

	costKey := tool.CostKey()
	totals := make([]models.DailyTotal, 0, len(rows))
	for _, raw := range rows {
		row, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		date, ok := row["date"].(string)
		if !ok {
			continue
		}
		cost, ok := parseNumber(row[costKey])
		if !ok {
			continue
		}

		key := date
		if tool == models.ToolCodex {
			if normalized, ok := datekey.Normalize(date); ok {
				key = normalized
			}
		}
		totals = append(totals, models.DailyTotal{DateKey: key, Cost: cost})
	}
	return totals, nil
}

func parseNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
