package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/teemow/gistflow/internal/instrumentation"
)

func TestInstrumentedToolHandler_Success(t *testing.T) {
	called := false
	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		called = true
		return mcp.NewToolResultText("success"), nil
	}

	wrapped := InstrumentedToolHandler("test_tool", nil, nil, handler)
	result, err := wrapped(context.Background(), mcp.CallToolRequest{})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if !called {
		t.Error("expected handler to be called")
	}
	if result == nil || result.IsError {
		t.Errorf("expected success result, got %+v", result)
	}
}

func TestInstrumentedToolHandler_Error(t *testing.T) {
	expectedErr := errors.New("test error")
	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return nil, expectedErr
	}

	wrapped := InstrumentedToolHandler("test_tool", nil, nil, handler)
	_, err := wrapped(context.Background(), mcp.CallToolRequest{})

	if !errors.Is(err, expectedErr) {
		t.Errorf("expected error %v, got %v", expectedErr, err)
	}
}

func TestInstrumentedToolHandler_WithMetrics(t *testing.T) {
	metrics, err := instrumentation.NewMetrics(noop.NewMeterProvider().Meter("test"), false)
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}

	tests := []struct {
		name    string
		handler ToolHandler
		isError bool
	}{
		{
			name: "success result",
			handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return mcp.NewToolResultText("ok"), nil
			},
		},
		{
			name: "error result",
			handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return mcp.NewToolResultError("bad input"), nil
			},
			isError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := InstrumentedToolHandler("gistflow_test", metrics, nil, tt.handler)
			result, err := wrapped(context.Background(), mcp.CallToolRequest{})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.IsError != tt.isError {
				t.Errorf("IsError = %v, want %v", result.IsError, tt.isError)
			}
		})
	}
}

func TestArgs(t *testing.T) {
	args := map[string]interface{}{
		"name":  "value",
		"count": float64(250),
		"small": float64(3),
		"since": "2026-01-02T03:04:05Z",
		"bad":   "yesterday",
		"num":   12,
	}

	if got := StringArg(args, "name"); got != "value" {
		t.Errorf("StringArg(name) = %q", got)
	}
	if got := StringArg(args, "num"); got != "" {
		t.Errorf("StringArg(num) = %q, want empty", got)
	}
	if got := IntArg(args, "count", 10, 100); got != 100 {
		t.Errorf("IntArg(count) = %d, want 100", got)
	}
	if got := IntArg(args, "small", 10, 100); got != 3 {
		t.Errorf("IntArg(small) = %d, want 3", got)
	}
	if got := IntArg(args, "missing", 10, 100); got != 10 {
		t.Errorf("IntArg(missing) = %d, want 10", got)
	}

	since, err := TimeArg(args, "since")
	if err != nil || !since.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("TimeArg(since) = %v, %v", since, err)
	}
	if _, err := TimeArg(args, "bad"); err == nil {
		t.Error("TimeArg(bad) expected error")
	}
	if zero, err := TimeArg(args, "missing"); err != nil || !zero.IsZero() {
		t.Errorf("TimeArg(missing) = %v, %v", zero, err)
	}
}

func TestJSONResult(t *testing.T) {
	result := JSONResult(map[string]int{"processed": 3})
	if result.IsError {
		t.Fatal("expected success result")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	if text.Text != "{\n  \"processed\": 3\n}" {
		t.Errorf("unexpected JSON: %q", text.Text)
	}
}
