package distributor

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teemow/gistflow/internal/gist"
)

// Local file formats.
const (
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

const maxFilenameTitle = 100

var filenameReplacer = strings.NewReplacer(
	"<", "_", ">", "_", ":", "_", `"`, "_", "/", "_", `\`, "_", "|", "_", "?", "_", "*", "_",
)

type frontMatter struct {
	Title    string    `yaml:"title"`
	Score    int       `yaml:"score"`
	Date     time.Time `yaml:"date"`
	Tags     []string  `yaml:"tags,omitempty"`
	Sender   string    `yaml:"sender,omitempty"`
	Source   string    `yaml:"source,omitempty"`
	SourceID string    `yaml:"source_id"`
	Degraded bool      `yaml:"degraded,omitempty"`
}

// RenderMarkdown renders rec as markdown with YAML front matter.
func RenderMarkdown(rec gist.Record, now time.Time) ([]byte, error) {
	date := rec.Timestamp
	if date.IsZero() {
		date = now
	}

	fm, err := yaml.Marshal(frontMatter{
		Title:    rec.Title,
		Score:    rec.Score,
		Date:     date.UTC(),
		Tags:     rec.Tags,
		Sender:   rec.Sender,
		Source:   rec.OriginalURL,
		SourceID: rec.SourceID,
		Degraded: rec.Degraded,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode front matter: %w", err)
	}

	var b bytes.Buffer
	b.WriteString("---\n")
	b.Write(fm)
	b.WriteString("---\n\n")

	fmt.Fprintf(&b, "## Summary\n\n%s\n\n", rec.Summary)

	if len(rec.KeyInsights) > 0 {
		b.WriteString("## Key Insights\n\n")
		for _, insight := range rec.KeyInsights {
			fmt.Fprintf(&b, "- %s\n", insight)
		}
		b.WriteString("\n")
	}

	if len(rec.MentionedLinks) > 0 {
		b.WriteString("## Links\n\n")
		for _, link := range rec.MentionedLinks {
			fmt.Fprintf(&b, "- [%s](%s)\n", link, link)
		}
		b.WriteString("\n")
	}

	if rec.Content != "" {
		b.WriteString("<details>\n<summary>Original content</summary>\n\n")
		b.WriteString(rec.Content)
		b.WriteString("\n\n</details>\n")
	}

	return b.Bytes(), nil
}

// RenderJSON renders rec as indented JSON.
func RenderJSON(rec gist.Record) ([]byte, error) {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return append(data, '\n'), nil
}

// Filename returns "{YYYY-MM-DD}_{sanitized title}_{source hash}.{ext}". The
// date is the message date, or now when unknown. The hash keeps gists of
// different messages with the same title and day apart.
func Filename(rec gist.Record, format string, now time.Time) string {
	date := rec.Timestamp
	if date.IsZero() {
		date = now
	}
	ext := ".md"
	if format == FormatJSON {
		ext = ".json"
	}
	name := date.Format("2006-01-02") + "_" + SanitizeTitle(rec.Title)
	if rec.SourceID != "" {
		name += "_" + sourceHash(rec.SourceID)
	}
	return name + ext
}

func sourceHash(sourceID string) string {
	sum := sha256.Sum256([]byte(sourceID))
	return hex.EncodeToString(sum[:4])
}

// SanitizeTitle makes title safe for use in a file name.
func SanitizeTitle(title string) string {
	safe := filenameReplacer.Replace(title)
	safe = strings.Join(strings.Fields(safe), "_")
	safe = strings.Trim(safe, ".")
	if runes := []rune(safe); len(runes) > maxFilenameTitle {
		safe = string(runes[:maxFilenameTitle])
	}
	if safe == "" {
		return "untitled"
	}
	return safe
}
