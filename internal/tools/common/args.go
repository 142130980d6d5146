package common

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// StringArg returns the named string argument, or "" when absent or not a string.
func StringArg(args map[string]interface{}, name string) string {
	if v, ok := args[name].(string); ok {
		return v
	}
	return ""
}

// IntArg returns the named numeric argument clamped to [1, max], or def when
// absent. JSON numbers arrive as float64.
func IntArg(args map[string]interface{}, name string, def, max int) int {
	v, ok := args[name].(float64)
	if !ok || v < 1 {
		return def
	}
	return min(int(v), max)
}

// TimeArg parses the named RFC3339 argument. A missing argument yields the zero time.
func TimeArg(args map[string]interface{}, name string) (time.Time, error) {
	raw := StringArg(args, name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be an RFC3339 timestamp: %w", name, err)
	}
	return t, nil
}

// JSONResult renders v as an indented JSON text result.
func JSONResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}
