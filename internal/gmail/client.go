package gmail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/teemow/gistflow/internal/gist"
	"github.com/teemow/gistflow/internal/google"
	"github.com/teemow/gistflow/internal/instrumentation"
	"github.com/teemow/gistflow/internal/logging"
)

const (
	me = "me"

	labelUnread = "UNREAD"

	// maxPageSize is the Gmail API limit for messages.list.
	maxPageSize = 500

	DefaultProcessedLabel = "GistFlow-Processed"
	DefaultSearchLimit    = 100
)

// DefaultLabelVariants are matched in addition to the target label.
var DefaultLabelVariants = []string{"newsletter", "news", "newsletters"}

// Options configures label handling.
type Options struct {
	LabelVariants  []string
	ProcessedLabel string
	// SearchLimit caps the number of candidates one Search returns.
	SearchLimit int
	Metrics     *instrumentation.Metrics
	Logger      *slog.Logger
}

// Client wraps the Gmail Users service
type Client struct {
	svc     *gmail.UsersService
	account string // The account this client is associated with
	opts    Options
	logger  *slog.Logger

	mu sync.Mutex
	// matched caches the label ids resolved per target label.
	matched map[string][]string
	// processedID is the id of the processed label once resolved or created.
	processedID string
}

// Account returns the account name this client is associated with
func (c *Client) Account() string {
	return c.account
}

// NewClientForAccount creates a Gmail client authenticated for account.
func NewClientForAccount(ctx context.Context, tokens google.HTTPClientProvider, account string, opts Options) (*Client, error) {
	httpClient, err := tokens.GetHTTPClientForAccount(ctx, account)
	if err != nil {
		return nil, err
	}
	return NewClient(ctx, account, opts, option.WithHTTPClient(httpClient))
}

// NewClient creates a Gmail client from explicit client options.
func NewClient(ctx context.Context, account string, opts Options, clientOpts ...option.ClientOption) (*Client, error) {
	svc, err := gmail.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	if opts.LabelVariants == nil {
		opts.LabelVariants = DefaultLabelVariants
	}
	if opts.ProcessedLabel == "" {
		opts.ProcessedLabel = DefaultProcessedLabel
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = DefaultSearchLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		svc:     svc.Users,
		account: account,
		opts:    opts,
		logger:  logger.With(slog.String("account", account)),
		matched: make(map[string][]string),
	}, nil
}

// observe records the metrics of one API operation.
func (c *Client) observe(ctx context.Context, operation string, start time.Time, err error) {
	c.opts.Metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceGmail, operation,
		instrumentation.StatusFor(err), time.Since(start))
}

// Search returns the messages carrying label or one of its variants, newest
// first. With unseenOnly only unread messages are returned.
func (c *Client) Search(ctx context.Context, label string, unseenOnly bool) (items []gist.SourceItem, err error) {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceGmail, instrumentation.OperationSearch)
	defer func() { instrumentation.EndSpan(span, err) }()

	labelIDs, err := c.matchingLabels(ctx, label)
	if err != nil {
		return nil, err
	}

	ids, err := c.listMessageIDs(ctx, labelIDs, unseenOnly)
	if err != nil {
		return nil, err
	}

	items = make([]gist.SourceItem, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item, err := c.getMessage(ctx, id)
		if err != nil {
			// One unreadable message must not hide the others.
			c.logger.Warn("skipping message", logging.SourceID(id), logging.Err(err))
			continue
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Timestamp.After(items[j].Timestamp)
	})

	c.logger.Debug("search finished",
		slog.String("label", label),
		slog.Int("labels_matched", len(labelIDs)),
		slog.Int("messages", len(items)))
	return items, nil
}

func (c *Client) listMessageIDs(ctx context.Context, labelIDs []string, unseenOnly bool) (ids []string, err error) {
	start := time.Now()
	defer func() { c.observe(ctx, instrumentation.OperationList, start, err) }()

	seen := make(map[string]struct{})
	for _, labelID := range labelIDs {
		pageToken := ""
		for len(ids) < c.opts.SearchLimit {
			req := c.svc.Messages.List(me).
				LabelIds(labelID).
				MaxResults(int64(min(c.opts.SearchLimit-len(ids), maxPageSize))).
				Context(ctx)
			if unseenOnly {
				req = req.Q("is:unread")
			}
			if pageToken != "" {
				req = req.PageToken(pageToken)
			}

			res, err := req.Do()
			if err != nil {
				return nil, google.ClassifyError("gmail.list", fmt.Errorf("failed to list messages: %w", err))
			}
			for _, m := range res.Messages {
				if _, dup := seen[m.Id]; dup {
					continue
				}
				seen[m.Id] = struct{}{}
				ids = append(ids, m.Id)
				if len(ids) == c.opts.SearchLimit {
					break
				}
			}
			if res.NextPageToken == "" {
				break
			}
			pageToken = res.NextPageToken
		}
	}
	return ids, nil
}

func (c *Client) getMessage(ctx context.Context, id string) (item gist.SourceItem, err error) {
	start := time.Now()
	defer func() { c.observe(ctx, instrumentation.OperationGet, start, err) }()

	msg, err := c.svc.Messages.Get(me, id).Format("full").Context(ctx).Do()
	if err != nil {
		return gist.SourceItem{}, google.ClassifyError("gmail.get", fmt.Errorf("failed to get message %s: %w", id, err))
	}
	return convertMessage(msg)
}

// Acknowledge marks the message read, removes the matched source labels and
// adds the processed label.
func (c *Client) Acknowledge(ctx context.Context, sourceID string) (err error) {
	if sourceID == "" {
		return errors.New("source id is required")
	}

	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceGmail, instrumentation.OperationModify)
	start := time.Now()
	defer func() {
		c.observe(ctx, instrumentation.OperationModify, start, err)
		instrumentation.EndSpan(span, err)
	}()

	processedID, err := c.processedLabelID(ctx)
	if err != nil {
		return err
	}

	remove := []string{labelUnread}
	c.mu.Lock()
	for _, ids := range c.matched {
		remove = append(remove, ids...)
	}
	c.mu.Unlock()

	_, err = c.svc.Messages.Modify(me, sourceID, &gmail.ModifyMessageRequest{
		AddLabelIds:    []string{processedID},
		RemoveLabelIds: dedupe(remove),
	}).Context(ctx).Do()
	if err != nil {
		return google.ClassifyError("gmail.modify", fmt.Errorf("failed to acknowledge message %s: %w", sourceID, err))
	}
	return nil
}

func dedupe(values []string) []string {
	out := values[:0:0]
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// matchingLabels resolves the ids of every user label whose name equals
// target or one of the variants, ignoring case.
func (c *Client) matchingLabels(ctx context.Context, target string) ([]string, error) {
	c.mu.Lock()
	ids, ok := c.matched[strings.ToLower(target)]
	c.mu.Unlock()
	if ok {
		return ids, nil
	}

	labels, err := c.listLabels(ctx)
	if err != nil {
		return nil, err
	}

	wanted := map[string]bool{strings.ToLower(target): true}
	for _, v := range c.opts.LabelVariants {
		wanted[strings.ToLower(v)] = true
	}

	var names []string
	for _, l := range labels {
		if l.Type == "system" {
			continue
		}
		if wanted[strings.ToLower(l.Name)] {
			ids = append(ids, l.Id)
			names = append(names, l.Name)
		}
	}
	if len(ids) == 0 {
		return nil, gist.Configuration("gmail.labels", fmt.Errorf("no label matches %q or its variants %v", target, c.opts.LabelVariants))
	}

	c.logger.Info("resolved source labels", slog.Any("labels", names))

	c.mu.Lock()
	c.matched[strings.ToLower(target)] = ids
	c.mu.Unlock()
	return ids, nil
}

func (c *Client) processedLabelID(ctx context.Context) (string, error) {
	c.mu.Lock()
	id := c.processedID
	c.mu.Unlock()
	if id != "" {
		return id, nil
	}

	labels, err := c.listLabels(ctx)
	if err != nil {
		return "", err
	}
	for _, l := range labels {
		if strings.EqualFold(l.Name, c.opts.ProcessedLabel) {
			id = l.Id
			break
		}
	}

	if id == "" {
		start := time.Now()
		created, err := c.svc.Labels.Create(me, &gmail.Label{
			Name:                  c.opts.ProcessedLabel,
			LabelListVisibility:   "labelShow",
			MessageListVisibility: "show",
		}).Context(ctx).Do()
		c.observe(ctx, instrumentation.OperationCreate, start, err)
		if err != nil {
			return "", google.ClassifyError("gmail.labels.create", fmt.Errorf("failed to create label %s: %w", c.opts.ProcessedLabel, err))
		}
		id = created.Id
		c.logger.Info("created processed label", slog.String("label", c.opts.ProcessedLabel))
	}

	c.mu.Lock()
	c.processedID = id
	c.mu.Unlock()
	return id, nil
}

// listLabels lists all Gmail labels for the user
func (c *Client) listLabels(ctx context.Context) (labels []*gmail.Label, err error) {
	start := time.Now()
	defer func() { c.observe(ctx, instrumentation.OperationList, start, err) }()

	resp, err := c.svc.Labels.List(me).Context(ctx).Do()
	if err != nil {
		return nil, google.ClassifyError("gmail.labels", fmt.Errorf("failed to list labels: %w", err))
	}
	return resp.Labels, nil
}
