package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/teemow/gistflow/internal/gist"
)

// Result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is the outcome for one id.
type Result struct {
	ID       string        `json:"id"`
	Status   string        `json:"status"`
	Result   string        `json:"result,omitempty"`
	Error    string        `json:"error,omitempty"`
	Category gist.Category `json:"category,omitempty"`
}

// OK reports whether the operation succeeded for this id.
func (r Result) OK() bool {
	return r.Status == StatusSuccess
}

// Summary counts a batch and carries every result in input order.
type Summary struct {
	Total      int      `json:"total"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Results    []Result `json:"results"`
}

// ParseIDs accepts a single id, a comma separated list, or a JSON array of
// strings as decoded from tool arguments. Blanks and duplicates are
// dropped; an array element that is blank or not a string is an error.
func ParseIDs(param any, name string) ([]string, error) {
	var parts []string
	switch v := param.(type) {
	case nil:
		return nil, fmt.Errorf("%s is required", name)
	case string:
		parts = strings.Split(v, ",")
	case []any:
		parts = make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			switch {
			case !ok:
				return nil, fmt.Errorf("%s[%d] must be a string", name, i)
			case strings.TrimSpace(s) == "":
				return nil, fmt.Errorf("%s[%d] cannot be empty", name, i)
			}
			parts = append(parts, s)
		}
	default:
		return nil, fmt.Errorf("%s must be a string or array of strings", name)
	}

	ids := make([]string, 0, len(parts))
	dup := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if _, ok := dup[p]; ok || p == "" {
			continue
		}
		dup[p] = struct{}{}
		ids = append(ids, p)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%s cannot be empty", name)
	}
	return ids, nil
}

// Run applies fn to each id in order. After ctx is done the remaining ids
// fail with the context error and fn is not called for them.
func Run(ctx context.Context, ids []string, fn func(ctx context.Context, id string) (string, error)) Summary {
	s := Summary{Total: len(ids), Results: make([]Result, 0, len(ids))}
	for _, id := range ids {
		r := apply(ctx, id, fn)
		if r.OK() {
			s.Successful++
		} else {
			s.Failed++
		}
		s.Results = append(s.Results, r)
	}
	return s
}

func apply(ctx context.Context, id string, fn func(context.Context, string) (string, error)) Result {
	if err := ctx.Err(); err != nil {
		return Failure(id, err)
	}
	msg, err := fn(ctx, id)
	if err != nil {
		return Failure(id, err)
	}
	return Success(id, msg)
}

// JSON renders the summary for tool and CLI output.
func (s Summary) JSON() string {
	out, _ := json.MarshalIndent(s, "", "  ")
	return string(out)
}

// FirstFailure returns the first failed result, if any.
func (s Summary) FirstFailure() (Result, bool) {
	for _, r := range s.Results {
		if !r.OK() {
			return r, true
		}
	}
	return Result{}, false
}

// Success builds a successful result.
func Success(id, message string) Result {
	return Result{ID: id, Status: StatusSuccess, Result: message}
}

// Failure builds a failed result tagged with the error category.
func Failure(id string, err error) Result {
	return Result{ID: id, Status: StatusError, Error: err.Error(), Category: gist.CategoryOf(err)}
}
