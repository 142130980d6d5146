package distributor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/teemow/gistflow/internal/gist"
	"github.com/teemow/gistflow/internal/logging"
	"github.com/teemow/gistflow/internal/notion"
)

// Notion API limits.
const (
	maxTitleRunes    = 100
	maxRichTextRunes = 2000
	maxTags          = 10
	maxSelectRunes   = 100
	maxLinkBullets   = 10

	untitled = "Untitled"
)

// NotionPages is the part of the Notion client the destination uses.
type NotionPages interface {
	CreatePage(ctx context.Context, databaseID string, properties map[string]notion.Property) (notion.Page, error)
	AppendChildren(ctx context.Context, blockID string, blocks []notion.Block) error
}

// NotionProperties maps record fields to database property names. An empty
// name skips the property; Title is required.
type NotionProperties struct {
	Title   string
	Score   string
	Summary string
	Tags    string
	Sender  string
	Date    string
	Link    string
}

// NotionDestination creates one database page per record.
type NotionDestination struct {
	client     NotionPages
	databaseID string
	props      NotionProperties
	logger     *slog.Logger
	now        func() time.Time
}

// NewNotionDestination returns a destination writing to databaseID.
func NewNotionDestination(client NotionPages, databaseID string, props NotionProperties, logger *slog.Logger) *NotionDestination {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotionDestination{
		client:     client,
		databaseID: databaseID,
		props:      props,
		logger:     logger.With(logging.Destination(string(gist.DestinationNotion))),
		now:        time.Now,
	}
}

// Kind implements Destination.
func (n *NotionDestination) Kind() gist.DestinationKind {
	return gist.DestinationNotion
}

// contentUnit is a group of blocks appended in one call.
type contentUnit struct {
	name     string
	critical bool
	blocks   []notion.Block
}

// Publish creates the page and appends its content. The page URL is the
// reference.
func (n *NotionDestination) Publish(ctx context.Context, rec gist.Record) (string, error) {
	props, err := n.properties(rec)
	if err != nil {
		return "", err
	}

	page, err := n.client.CreatePage(ctx, n.databaseID, props)
	if err != nil {
		return "", fmt.Errorf("create record: %w", err)
	}

	for _, unit := range n.contentUnits(rec) {
		if len(unit.blocks) == 0 {
			continue
		}
		if err := n.client.AppendChildren(ctx, page.ID, unit.blocks); err != nil {
			if unit.critical {
				return "", fmt.Errorf("append %s to page %s: %w", unit.name, page.ID, err)
			}
			n.logger.Warn("skipping page content",
				logging.SourceID(rec.SourceID),
				slog.String("unit", unit.name),
				logging.Err(err))
		}
	}

	if page.URL != "" {
		return page.URL, nil
	}
	return page.ID, nil
}

func (n *NotionDestination) properties(rec gist.Record) (map[string]notion.Property, error) {
	if strings.TrimSpace(n.props.Title) == "" {
		return nil, gist.Configuration("notion.properties", errors.New("title property name is required"))
	}

	title := truncate(strings.TrimSpace(rec.Title), maxTitleRunes)
	if title == "" {
		title = untitled
	}
	props := map[string]notion.Property{
		n.props.Title: {Title: notion.PlainText(title)},
	}

	if n.props.Score != "" {
		score := float64(rec.Score)
		props[n.props.Score] = notion.Property{Number: &score}
	}
	if n.props.Summary != "" && rec.Summary != "" {
		props[n.props.Summary] = notion.Property{RichText: notion.PlainText(truncate(rec.Summary, maxRichTextRunes))}
	}
	if n.props.Tags != "" {
		if tags := selectOptions(rec.Tags); len(tags) > 0 {
			props[n.props.Tags] = notion.Property{MultiSelect: tags}
		}
	}
	if n.props.Sender != "" {
		if sender := selectName(rec.Sender); sender != "" {
			props[n.props.Sender] = notion.Property{Select: &notion.SelectOption{Name: sender}}
		}
	}
	if n.props.Date != "" {
		date := rec.Timestamp
		if date.IsZero() {
			date = n.now()
		}
		props[n.props.Date] = notion.Property{Date: &notion.Date{Start: date.Format(time.RFC3339)}}
	}
	if n.props.Link != "" && rec.OriginalURL != "" {
		link := rec.OriginalURL
		props[n.props.Link] = notion.Property{URL: &link}
	}
	return props, nil
}

// selectName strips commas, which Notion rejects in select options.
func selectName(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	return truncate(s, maxSelectRunes)
}

func selectOptions(tags []string) []notion.SelectOption {
	var opts []notion.SelectOption
	for _, tag := range tags {
		if name := selectName(tag); name != "" {
			opts = append(opts, notion.SelectOption{Name: name})
		}
		if len(opts) == maxTags {
			break
		}
	}
	return opts
}

func (n *NotionDestination) contentUnits(rec gist.Record) []contentUnit {
	var units []contentUnit

	if len(rec.KeyInsights) > 0 {
		var b strings.Builder
		b.WriteString("Key insights")
		for _, insight := range rec.KeyInsights {
			b.WriteString("\n• ")
			b.WriteString(insight)
		}
		units = append(units, contentUnit{
			name: "insights",
			blocks: []notion.Block{
				notion.NewCallout(richText(b.String()), "💡", notion.ColorBlueBackground),
				notion.NewDivider(),
			},
		})
	}

	if len(rec.MentionedLinks) > 0 {
		blocks := []notion.Block{notion.NewHeading2("Links")}
		for i, link := range rec.MentionedLinks {
			if i == maxLinkBullets {
				break
			}
			blocks = append(blocks, notion.NewBullet(notion.LinkText(truncate(link, maxRichTextRunes), link)))
		}
		blocks = append(blocks, notion.NewDivider())
		units = append(units, contentUnit{name: "links", blocks: blocks})
	}

	if rec.Content != "" {
		var paragraphs []notion.Block
		for _, chunk := range ChunkText(rec.Content, maxRichTextRunes) {
			paragraphs = append(paragraphs, notion.NewParagraph(notion.PlainText(chunk)))
		}
		units = append(units, contentUnit{
			name:     "content",
			critical: true,
			blocks: []notion.Block{
				notion.NewHeading2("Original content"),
				notion.NewToggle("Show full content", paragraphs),
			},
		})
	}

	units = append(units, contentUnit{
		name:   "metadata",
		blocks: []notion.Block{notion.NewParagraph(n.metadataText(rec))},
	})
	return units
}

func (n *NotionDestination) metadataText(rec gist.Record) []notion.RichText {
	parts := []string{
		"Source ID: " + rec.SourceID,
		"Sender: " + rec.Sender,
		"Processed: " + n.now().UTC().Format(time.RFC3339),
	}
	if rec.Degraded {
		parts = append(parts, "Degraded: extraction failed, fallback summary")
	}
	return []notion.RichText{{
		Type:        "text",
		Text:        &notion.Text{Content: truncate(strings.Join(parts, " | "), maxRichTextRunes)},
		Annotations: &notion.Annotations{Italic: true, Color: notion.ColorGray},
	}}
}

// richText splits long text into runs within the per-run limit.
func richText(s string) []notion.RichText {
	var out []notion.RichText
	for _, chunk := range ChunkText(s, maxRichTextRunes) {
		out = append(out, notion.PlainText(chunk)...)
	}
	return out
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
