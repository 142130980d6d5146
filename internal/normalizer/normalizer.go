package normalizer

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/teemow/gistflow/internal/gist"
)

// TruncationMarker separates the kept head and tail of over-long content.
const TruncationMarker = "\n\n--- [Content Truncated for AI Processing] ---\n\n"

// minRenderedLength is the size at or below which rendered markdown is
// considered a failed conversion and the flattened text is used instead.
const minRenderedLength = 10

// Options bounds the normalized text, in runes.
type Options struct {
	MaxLength  int
	HeadLength int
	TailLength int
}

// DefaultOptions returns the standard bounds.
func DefaultOptions() Options {
	return Options{MaxLength: 20000, HeadLength: 15000, TailLength: 2000}
}

// Normalizer converts RawContent into NormalizedContent.
type Normalizer struct {
	opts   Options
	logger *slog.Logger
}

// New creates a Normalizer. Zero option fields take their defaults.
func New(opts Options, logger *slog.Logger) *Normalizer {
	def := DefaultOptions()
	if opts.MaxLength <= 0 {
		opts.MaxLength = def.MaxLength
	}
	if opts.HeadLength <= 0 {
		opts.HeadLength = def.HeadLength
	}
	if opts.TailLength <= 0 {
		opts.TailLength = def.TailLength
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{opts: opts, logger: logger}
}

// Normalize prefers the HTML body, falls back to the plain text body, removes
// noise and bounds the result.
func (n *Normalizer) Normalize(raw gist.RawContent) gist.NormalizedContent {
	var text string
	if strings.TrimSpace(raw.HTML) != "" {
		text = n.renderHTML(raw.HTML)
	} else {
		text = raw.Text
	}

	text = normalizeWhitespace(removeNoise(text))
	original := runeCount(text)

	bounded, truncated := Truncate(text, n.opts)
	if truncated {
		n.logger.Debug("content truncated",
			slog.Int("original_length", original),
			slog.Int("max_length", n.opts.MaxLength))
	}

	return gist.NormalizedContent{
		Text:           bounded,
		Truncated:      truncated,
		OriginalLength: original,
	}
}

func (n *Normalizer) renderHTML(html string) (text string) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Warn("html rendering failed, flattening", slog.Any("panic", r))
			text = stripTags(html)
		}
	}()

	doc, err := parseDocument(html)
	if err != nil {
		n.logger.Debug("html parse failed, flattening", slog.String("error", err.Error()))
		return stripTags(html)
	}

	rendered := renderMarkdown(doc)
	if runeCount(strings.TrimSpace(rendered)) > minRenderedLength {
		return rendered
	}
	return flattenText(doc)
}

// Truncate keeps the head and tail of text around TruncationMarker when it is
// longer than opts.MaxLength runes. The head shrinks as needed so the result
// never exceeds MaxLength.
func Truncate(text string, opts Options) (string, bool) {
	runes := []rune(text)
	if opts.MaxLength <= 0 || len(runes) <= opts.MaxLength {
		return text, false
	}

	marker := []rune(TruncationMarker)
	if len(marker) >= opts.MaxLength {
		return string(runes[:opts.MaxLength]), true
	}

	head, tail := max(opts.HeadLength, 0), max(opts.TailLength, 0)
	budget := opts.MaxLength - len(marker)
	if tail > budget {
		tail = budget
	}
	if head+tail > budget {
		head = budget - tail
	}

	var b strings.Builder
	b.Grow(opts.MaxLength * 4)
	b.WriteString(string(runes[:head]))
	b.WriteString(TruncationMarker)
	b.WriteString(string(runes[len(runes)-tail:]))
	return b.String(), true
}

var noisePatterns = compileAll(
	// markdown links whose text is a footer action
	`\[[^\]\n]*(?:unsubscribe|view (?:this email )?in (?:your )?browser|view online|opt[ -]?out)[^\]\n]*\]\([^)\n]*\)`,
	`\[(?:twitter|facebook|linkedin|instagram|youtube)\](?:\([^)\n]*\))?`,
	`click here to unsubscribe`,
	`\[?unsubscribe\]?\s*`,
	`取消订阅`,
	`退订`,
	`\[?view (?:this email )?in (?:your )?browser\]?`,
	`\[?view online\]?`,
	`在浏览器中查看`,
	`copyright\s*©?\s*\d{4}.*$`,
	`©\s*\d{4}.*$`,
	`all rights reserved\.?`,
	`版权所有`,
	`sent from my\s+\w+`,
	`get the app`,
	`download our app`,
	`forward to a friend`,
	`share this email`,
	`发送给朋友`,
	`privacy policy`,
	`terms of service`,
	`隐私政策`,
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?im)` + p)
	}
	return out
}

func removeNoise(text string) string {
	for _, re := range noisePatterns {
		text = re.ReplaceAllString(text, "")
	}
	return text
}

var inlineSpace = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)

// normalizeWhitespace trims every line, collapses runs of spaces and keeps
// at most one empty line between paragraphs.
func normalizeWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := true
	for _, line := range lines {
		line = strings.TrimSpace(inlineSpace.ReplaceAllString(line, " "))
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func runeCount(s string) int {
	return len([]rune(s))
}
