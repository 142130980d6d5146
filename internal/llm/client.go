// Package llm is the extraction backend: a client for OpenAI-compatible
// chat completion APIs that requests schema-constrained JSON output.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/teemow/gistflow/internal/gist"
	"github.com/teemow/gistflow/internal/instrumentation"
	"github.com/teemow/gistflow/internal/logging"
	"github.com/teemow/gistflow/internal/retry"
)

const (
	completionsPath = "/chat/completions"
	maxErrorBody    = 1024
)

// Options configures a Client.
type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	// Retry bounds retries of transient transport failures.
	Retry retry.Policy
	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
	Metrics    *instrumentation.Metrics
	Logger     *slog.Logger
}

// CompletionRequest is one schema-constrained completion.
type CompletionRequest struct {
	System string
	User   string
	// SchemaName names the output schema in the request.
	SchemaName string
	// Schema is the JSON Schema the response must follow.
	Schema any
}

// Completion is the backend answer.
type Completion struct {
	Content          string
	Model            string
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
}

// Client calls the chat completions endpoint.
type Client struct {
	endpoint    string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	policy      retry.Policy
	httpClient  *http.Client
	metrics     *instrumentation.Metrics
	logger      *slog.Logger
}

// New builds a Client from options.
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		endpoint:    strings.TrimSuffix(opts.BaseURL, "/") + completionsPath,
		apiKey:      opts.APIKey,
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		policy:      opts.Retry,
		httpClient:  httpClient,
		metrics:     opts.Metrics,
		logger:      logger,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Complete sends the request and returns the message content. Rate limits,
// server errors and network failures are retried per the client's policy and
// surface as transient errors; a response without usable content is a
// validation error.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	if c.apiKey == "" || c.model == "" {
		return Completion{}, gist.Configuration("llm.complete", errors.New("api key and model are required"))
	}

	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return Completion{}, fmt.Errorf("failed to encode completion request: %w", err)
	}

	return retry.Value(ctx, c.policy, "llm.complete", func() (Completion, error) {
		start := time.Now()
		out, err := c.do(ctx, body)
		c.metrics.RecordLLMRequest(ctx, c.model, instrumentation.StatusFor(err), time.Since(start),
			out.PromptTokens, out.CompletionTokens)
		if err != nil {
			c.logger.Debug("completion failed",
				logging.Operation("llm.complete"),
				slog.String("model", c.model),
				logging.Err(err))
		}
		return out, err
	})
}

func (c *Client) do(ctx context.Context, body []byte) (Completion, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Completion{}, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return Completion{}, ctx.Err()
		}
		return Completion{}, gist.Transient("llm.complete", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return Completion{}, statusError(resp)
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) {
			return Completion{}, gist.Transient("llm.complete", err)
		}
		return Completion{}, gist.Validation("llm.complete", fmt.Errorf("decode response: %w", err))
	}

	return decoded.completion()
}

func (c *Client) buildRequest(req CompletionRequest) chatRequest {
	out := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	if req.Schema != nil {
		name := req.SchemaName
		if name == "" {
			name = "output"
		}
		out.ResponseFormat = &responseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchemaFormat{
				Name:   name,
				Strict: true,
				Schema: req.Schema,
			},
		}
	}
	return out
}

func statusError(resp *http.Response) error {
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	err := fmt.Errorf("completion endpoint returned %s: %s", resp.Status, strings.TrimSpace(string(payload)))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode >= http.StatusInternalServerError:
		return gist.Transient("llm.complete", err)
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusNotFound:
		return gist.Configuration("llm.complete", err)
	default:
		return err
	}
}
