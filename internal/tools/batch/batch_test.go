package batch

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/teemow/gistflow/internal/gist"
)

func TestParseIDs(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		want    []string
		wantErr bool
	}{
		{name: "single id", input: "msg-1", want: []string{"msg-1"}},
		{name: "comma separated", input: "msg-1, msg-2,,msg-3", want: []string{"msg-1", "msg-2", "msg-3"}},
		{name: "array", input: []any{"msg-1", "msg-2"}, want: []string{"msg-1", "msg-2"}},
		{name: "duplicates dropped", input: []any{"msg-1", "msg-1", " msg-2 "}, want: []string{"msg-1", "msg-2"}},
		{name: "missing", input: nil, wantErr: true},
		{name: "empty string", input: "", wantErr: true},
		{name: "only separators", input: " , ,", wantErr: true},
		{name: "empty array", input: []any{}, wantErr: true},
		{name: "non-string element", input: []any{"msg-1", 123}, wantErr: true},
		{name: "blank element", input: []any{"msg-1", " "}, wantErr: true},
		{name: "number", input: 42, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIDs(tt.input, "source_ids")
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseIDs() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseIDs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRun(t *testing.T) {
	s := Run(context.Background(), []string{"ok", "missing", "locked"}, func(_ context.Context, id string) (string, error) {
		switch id {
		case "missing":
			return "", errors.New("no failed entry")
		case "locked":
			return "", gist.Transient("ledger", errors.New("database is locked"))
		}
		return "cleared " + id, nil
	})

	if s.Total != 3 || s.Successful != 1 || s.Failed != 2 {
		t.Fatalf("unexpected counts: %+v", s)
	}
	if !s.Results[0].OK() || s.Results[0].Result != "cleared ok" {
		t.Errorf("unexpected first result: %+v", s.Results[0])
	}
	if s.Results[1].Category != gist.CategoryUnknown {
		t.Errorf("plain errors should be uncategorised, got %q", s.Results[1].Category)
	}
	if s.Results[2].Category != gist.CategoryTransient {
		t.Errorf("expected transient category, got %q", s.Results[2].Category)
	}

	first, ok := s.FirstFailure()
	if !ok || first.ID != "missing" {
		t.Errorf("FirstFailure() = %+v, %v", first, ok)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	s := Run(ctx, []string{"a", "b", "c"}, func(_ context.Context, id string) (string, error) {
		calls++
		cancel()
		return id, nil
	})

	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
	if !s.Results[0].OK() {
		t.Errorf("first result should succeed: %+v", s.Results[0])
	}
	for _, r := range s.Results[1:] {
		if r.OK() || r.Error != context.Canceled.Error() {
			t.Errorf("expected cancelled result, got %+v", r)
		}
	}
}

func TestSummaryJSON(t *testing.T) {
	s := Run(context.Background(), []string{"a", "b"}, func(_ context.Context, id string) (string, error) {
		if id == "b" {
			return "", gist.Configuration("ledger", errors.New("bad"))
		}
		return "done", nil
	})

	var decoded Summary
	if err := json.Unmarshal([]byte(s.JSON()), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded.Total != 2 || decoded.Failed != 1 {
		t.Errorf("unexpected counts: %+v", decoded)
	}
	if decoded.Results[1].Category != gist.CategoryConfiguration {
		t.Errorf("expected configuration category, got %q", decoded.Results[1].Category)
	}

	if _, ok := Run(context.Background(), []string{"a"}, func(context.Context, string) (string, error) {
		return "", nil
	}).FirstFailure(); ok {
		t.Error("FirstFailure() should be false when everything succeeded")
	}
}
