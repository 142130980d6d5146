package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/teemow/gistflow/internal/gist"
	"github.com/teemow/gistflow/internal/instrumentation"
	"github.com/teemow/gistflow/internal/logging"
	"github.com/teemow/gistflow/internal/retry"
)

const (
	// APIVersion is sent as the Notion-Version header.
	APIVersion = "2022-06-28"

	DefaultBaseURL           = "https://api.notion.com/v1"
	DefaultRequestsPerSecond = 3.0

	// MaxBlocksPerRequest is the API limit on children per append call.
	MaxBlocksPerRequest = 100

	maxErrorBody = 2048
)

// Options configures a Client.
type Options struct {
	BaseURL           string
	APIKey            string
	RequestsPerSecond float64
	// Retry bounds retries of transient failures per request.
	Retry      retry.Policy
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the Notion API.
type Client struct {
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	policy     retry.Policy
	httpClient *http.Client
	logger     *slog.Logger
}

// New builds a Client.
func New(opts Options) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     opts.APIKey,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		policy:     opts.Retry,
		httpClient: httpClient,
		logger:     logger,
	}
}

// CreatePage creates a page in databaseID with the given properties.
func (c *Client) CreatePage(ctx context.Context, databaseID string, properties map[string]Property) (Page, error) {
	if databaseID == "" {
		return Page{}, gist.Configuration("notion.create_page", errors.New("database id is required"))
	}

	body := createPageRequest{
		Parent:     parent{DatabaseID: databaseID},
		Properties: properties,
	}

	var page Page
	err := c.call(ctx, "notion.create_page", http.MethodPost, "/pages", body, &page)
	if err != nil {
		return Page{}, err
	}
	if page.ID == "" {
		return Page{}, gist.Validation("notion.create_page", errors.New("response has no page id"))
	}
	return page, nil
}

// AppendChildren appends blocks under blockID, in batches of
// MaxBlocksPerRequest.
func (c *Client) AppendChildren(ctx context.Context, blockID string, blocks []Block) error {
	if blockID == "" {
		return gist.Configuration("notion.append_children", errors.New("block id is required"))
	}

	for start := 0; start < len(blocks); start += MaxBlocksPerRequest {
		end := min(start+MaxBlocksPerRequest, len(blocks))
		body := appendChildrenRequest{Children: blocks[start:end]}
		if err := c.call(ctx, "notion.append_children", http.MethodPatch, "/blocks/"+blockID+"/children", body, nil); err != nil {
			return fmt.Errorf("batch %d-%d: %w", start, end, err)
		}
	}
	return nil
}

func (c *Client) call(ctx context.Context, op, method, path string, in, out any) error {
	if c.apiKey == "" {
		return gist.Configuration(op, errors.New("api key is required"))
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", op, err)
	}

	ctx, span := instrumentation.StartClientSpan(ctx, op)
	err = c.policy.Do(ctx, op, func() error {
		return c.do(ctx, op, method, path, payload, out)
	})
	instrumentation.EndSpan(span, err)
	return err
}

func (c *Client) do(ctx context.Context, op, method, path string, payload []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Notion-Version", APIVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return gist.Transient(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		err := statusError(op, resp)
		c.logger.Debug("notion request failed",
			logging.Operation(op),
			slog.Int("status_code", resp.StatusCode),
			logging.Err(err))
		return err
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return gist.Validation(op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func statusError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	msg := strings.TrimSpace(string(raw))
	var apiErr apiError
	if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
		msg = apiErr.Code + ": " + apiErr.Message
	}
	err := fmt.Errorf("notion returned %s: %s", resp.Status, msg)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusConflict,
		resp.StatusCode >= http.StatusInternalServerError:
		return gist.Transient(op, err)
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusNotFound:
		return gist.Configuration(op, err)
	default:
		return err
	}
}
