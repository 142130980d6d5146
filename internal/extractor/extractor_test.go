package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/gistflow/internal/gist"
	"github.com/teemow/gistflow/internal/llm"
)

type fakeBackend struct {
	mu        sync.Mutex
	responses []fakeResponse
	requests  []llm.CompletionRequest
}

type fakeResponse struct {
	content string
	err     error
}

func (f *fakeBackend) Complete(_ context.Context, req llm.CompletionRequest) (llm.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	if len(f.responses) == 0 {
		return llm.Completion{}, gist.Transient("fake", errors.New("no response queued"))
	}
	r := f.responses[0]
	f.responses = f.responses[1:]
	if r.err != nil {
		return llm.Completion{}, r.err
	}
	return llm.Completion{Content: r.content}, nil
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

const validAnswer = `{
	"title": "Weekly AI digest",
	"summary": "Three new open models were released.",
	"score": 82,
	"tags": ["AI", "ai", " Research "],
	"key_insights": ["Open weights are catching up", "  "],
	"mentioned_links": ["https://example.com/a", {"url": "https://example.com/b"}, "ftp://x", "https://example.com/a"],
	"is_low_value": false
}`

func testInput() Input {
	return Input{
		Content:     gist.NormalizedContent{Text: "Body of the newsletter."},
		SourceID:    "msg-1",
		Subject:     "AI Weekly #42",
		Sender:      "AI Weekly",
		SenderEmail: "news@aiweekly.example",
		Timestamp:   time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		OriginalURL: "https://mail.google.com/mail/u/0/#all/msg-1",
	}
}

func newTestExtractor(t *testing.T, backend Backend, opts Options) *Extractor {
	t.Helper()
	e, err := New(backend, opts, nil)
	require.NoError(t, err)
	return e
}

func TestExtractValidAnswer(t *testing.T) {
	backend := &fakeBackend{responses: []fakeResponse{{content: validAnswer}}}
	e := newTestExtractor(t, backend, Options{})

	rec, err := e.Extract(context.Background(), testInput())
	require.NoError(t, err)

	assert.Equal(t, "Weekly AI digest", rec.Title)
	assert.Equal(t, 82, rec.Score)
	assert.Equal(t, []string{"AI", "Research"}, rec.Tags)
	assert.Equal(t, []string{"Open weights are catching up"}, rec.KeyInsights)
	assert.Equal(t, []string{"https://example.com/a", "https://example.com/b"}, rec.MentionedLinks)
	assert.False(t, rec.Degraded)

	assert.Equal(t, "msg-1", rec.SourceID)
	assert.Equal(t, "AI Weekly #42", rec.Subject)
	assert.Equal(t, "news@aiweekly.example", rec.SenderEmail)
	assert.Equal(t, "Body of the newsletter.", rec.Content)

	require.Equal(t, 1, backend.calls())
	req := backend.requests[0]
	assert.Equal(t, schemaName, req.SchemaName)
	assert.NotNil(t, req.Schema)
	assert.Contains(t, req.User, "Body of the newsletter.")
	assert.Contains(t, req.User, "AI Weekly #42")
	assert.Contains(t, req.User, "Mon, 02 Mar 2026 09:00:00 +0000")
	assert.NotEmpty(t, req.System)
}

func TestExtractRetriesOnce(t *testing.T) {
	tests := []struct {
		name  string
		first fakeResponse
	}{
		{name: "invalid JSON", first: fakeResponse{content: "not json"}},
		{name: "missing title", first: fakeResponse{content: `{"summary":"x","score":50}`}},
		{name: "score out of range", first: fakeResponse{content: `{"title":"t","summary":"x","score":150}`}},
		{name: "transport error", first: fakeResponse{err: gist.Transient("llm", errors.New("503"))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{responses: []fakeResponse{tt.first, {content: validAnswer}}}
			e := newTestExtractor(t, backend, Options{})

			rec, err := e.Extract(context.Background(), testInput())
			require.NoError(t, err)
			assert.False(t, rec.Degraded)
			assert.Equal(t, 2, backend.calls())
		})
	}
}

func TestExtractFallback(t *testing.T) {
	backend := &fakeBackend{responses: []fakeResponse{{content: "{}"}, {content: "nope"}}}
	e := newTestExtractor(t, backend, Options{FallbackScore: 40, PreviewLength: 4})

	rec, err := e.Extract(context.Background(), testInput())
	require.NoError(t, err)

	assert.True(t, rec.Degraded)
	assert.Equal(t, "AI Weekly #42", rec.Title)
	assert.Equal(t, "Body", rec.Summary)
	assert.Equal(t, 40, rec.Score)
	assert.False(t, rec.IsLowValue)
	assert.Empty(t, rec.Tags)
	assert.Empty(t, rec.KeyInsights)
	assert.Equal(t, "msg-1", rec.SourceID)
	assert.Equal(t, 2, backend.calls())
}

func TestExtractFallbackWithoutSubjectOrContent(t *testing.T) {
	backend := &fakeBackend{}
	e := newTestExtractor(t, backend, Options{})

	rec, err := e.Extract(context.Background(), Input{SourceID: "msg-2"})
	require.NoError(t, err)

	assert.True(t, rec.Degraded)
	assert.Equal(t, noSubject, rec.Title)
	assert.Equal(t, noContent, rec.Summary)
	assert.Equal(t, DefaultFallbackScore, rec.Score)
}

func TestExtractConfigurationErrorNotRetried(t *testing.T) {
	backend := &fakeBackend{responses: []fakeResponse{
		{err: gist.Configuration("llm", errors.New("401 unauthorized"))},
		{content: validAnswer},
	}}
	e := newTestExtractor(t, backend, Options{})

	rec, err := e.Extract(context.Background(), testInput())
	require.NoError(t, err)
	assert.True(t, rec.Degraded)
	assert.Equal(t, 1, backend.calls())
}

func TestExtractCancelledContext(t *testing.T) {
	backend := &fakeBackend{responses: []fakeResponse{{content: validAnswer}}}
	e := newTestExtractor(t, backend, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Extract(ctx, testInput())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, backend.calls())
}

func TestParseOutput(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantErr   bool
		wantScore int
		check     func(t *testing.T, rec gist.Record)
	}{
		{
			name:      "fenced JSON",
			content:   "```json\n{\"title\":\"t\",\"summary\":\"s\",\"score\":55}\n```",
			wantScore: 55,
		},
		{
			name:      "fractional score is rounded",
			content:   `{"title":"t","summary":"s","score":67.6}`,
			wantScore: 68,
		},
		{
			name:      "links given as objects",
			content:   `{"title":"t","summary":"s","score":10,"mentioned_links":[{"link":"https://a.example"},{"href":"http://b.example"},{"value":"mailto:x@y"},{"name":"no url"}]}`,
			wantScore: 10,
			check: func(t *testing.T, rec gist.Record) {
				assert.Equal(t, []string{"https://a.example", "http://b.example"}, rec.MentionedLinks)
			},
		},
		{
			name:      "summary is capped",
			content:   `{"title":"t","summary":"` + strings.Repeat("x", maxSummaryLength+50) + `","score":10}`,
			wantScore: 10,
			check: func(t *testing.T, rec gist.Record) {
				assert.Len(t, []rune(rec.Summary), maxSummaryLength)
			},
		},
		{name: "empty summary", content: `{"title":"t","summary":"  ","score":10}`, wantErr: true},
		{name: "missing score", content: `{"title":"t","summary":"s"}`, wantErr: true},
		{name: "negative score", content: `{"title":"t","summary":"s","score":-1}`, wantErr: true},
		{name: "wrong type", content: `{"title":1,"summary":"s","score":10}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := parseOutput(tt.content)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, gist.CategoryValidation, gist.CategoryOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantScore, rec.Score)
			if tt.check != nil {
				tt.check(t, rec)
			}
		})
	}
}

func TestOutputSchema(t *testing.T) {
	data, err := json.Marshal(OutputSchema())
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(data, &schema))

	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, false, schema["additionalProperties"])
	assert.NotContains(t, schema, "$schema")
	assert.NotContains(t, schema, "$ref")

	required, ok := schema["required"].([]any)
	require.True(t, ok)
	assert.ElementsMatch(t, []any{
		"title", "summary", "score", "tags", "key_insights", "mentioned_links", "is_low_value",
	}, required)
}

func TestPromptsFromFiles(t *testing.T) {
	dir := t.TempDir()
	systemPath := filepath.Join(dir, "system.txt")
	userPath := filepath.Join(dir, "user.txt")
	require.NoError(t, os.WriteFile(systemPath, []byte("You summarize newsletters."), 0o600))
	require.NoError(t, os.WriteFile(userPath, []byte("From {sender}: {subject}\n{email_content}"), 0o600))

	backend := &fakeBackend{responses: []fakeResponse{{content: validAnswer}}}
	e := newTestExtractor(t, backend, Options{SystemPromptPath: systemPath, UserPromptPath: userPath})

	p := e.Prompts()
	assert.Equal(t, systemPath, p.SystemSource)
	assert.Equal(t, userPath, p.UserSource)

	_, err := e.Extract(context.Background(), testInput())
	require.NoError(t, err)
	assert.Equal(t, "You summarize newsletters.", backend.requests[0].System)
	assert.Equal(t, "From AI Weekly: AI Weekly #42\nBody of the newsletter.", backend.requests[0].User)
}

func TestPromptsMissingFilesUseBuiltin(t *testing.T) {
	dir := t.TempDir()
	e := newTestExtractor(t, &fakeBackend{}, Options{
		SystemPromptPath: filepath.Join(dir, "missing-system.txt"),
		UserPromptPath:   filepath.Join(dir, "missing-user.txt"),
	})

	p := e.Prompts()
	assert.Equal(t, SourceBuiltin, p.SystemSource)
	assert.Equal(t, SourceBuiltin, p.UserSource)
	assert.Contains(t, p.UserTemplate, "{{.Content}}")
}

func TestReloadPrompts(t *testing.T) {
	dir := t.TempDir()
	systemPath := filepath.Join(dir, "system.txt")
	userPath := filepath.Join(dir, "user.txt")
	require.NoError(t, os.WriteFile(systemPath, []byte("first"), 0o600))
	require.NoError(t, os.WriteFile(userPath, []byte("{{.Content}}"), 0o600))

	e := newTestExtractor(t, &fakeBackend{}, Options{SystemPromptPath: systemPath, UserPromptPath: userPath})
	assert.Equal(t, "first", e.Prompts().System)

	require.NoError(t, os.WriteFile(systemPath, []byte("second"), 0o600))
	require.NoError(t, e.ReloadPrompts())
	assert.Equal(t, "second", e.Prompts().System)

	// A broken template keeps the previous prompts.
	require.NoError(t, os.WriteFile(userPath, []byte("{{.Content"), 0o600))
	err := e.ReloadPrompts()
	require.Error(t, err)
	assert.Equal(t, gist.CategoryConfiguration, gist.CategoryOf(err))
	assert.Equal(t, "second", e.Prompts().System)
}

func TestNewRequiresBackend(t *testing.T) {
	_, err := New(nil, Options{}, nil)
	require.Error(t, err)
	assert.Equal(t, gist.CategoryConfiguration, gist.CategoryOf(err))
}
