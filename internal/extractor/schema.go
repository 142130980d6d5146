package extractor

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/teemow/gistflow/internal/gist"
)

const (
	schemaName       = "gist"
	maxSummaryLength = 2000
	maxTitleLength   = 300
	maxTags          = 10
)

// gistOutput is the structure the backend must return. Every field is
// required and no other fields are allowed.
type gistOutput struct {
	Title          string   `json:"title" jsonschema_description:"Email title, or a clearer title written for the reader"`
	Summary        string   `json:"summary" jsonschema_description:"Core summary of the email (TL;DR)"`
	Score          int      `json:"score" jsonschema_description:"Value score from 0 to 100 based on information density and relevance"`
	Tags           []string `json:"tags" jsonschema_description:"2-5 category tags such as AI, Dev, Finance"`
	KeyInsights    []string `json:"key_insights" jsonschema_description:"3-5 core insight points"`
	MentionedLinks []string `json:"mentioned_links" jsonschema_description:"URLs of tools, repositories and articles mentioned in the content"`
	IsLowValue     bool     `json:"is_low_value" jsonschema_description:"True for receipts, verification codes, pure advertising or near-empty content"`
}

// OutputSchema returns the JSON Schema sent with every completion request.
func OutputSchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
		Anonymous:      true,
	}
	s := r.Reflect(&gistOutput{})
	s.Version = ""
	return s
}

// rawOutput accepts the looser shapes models produce in practice.
type rawOutput struct {
	Title          *string           `json:"title"`
	Summary        *string           `json:"summary"`
	Score          *float64          `json:"score"`
	Tags           []string          `json:"tags"`
	KeyInsights    []string          `json:"key_insights"`
	MentionedLinks []json.RawMessage `json:"mentioned_links"`
	IsLowValue     bool              `json:"is_low_value"`
}

// parseOutput decodes and validates a backend answer. Any problem is a
// validation error.
func parseOutput(content string) (gist.Record, error) {
	content = stripCodeFence(content)

	var raw rawOutput
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return gist.Record{}, gist.Validation("extract.parse", fmt.Errorf("invalid JSON: %w", err))
	}

	var errs []error
	if raw.Title == nil || strings.TrimSpace(*raw.Title) == "" {
		errs = append(errs, errors.New("title is required"))
	}
	if raw.Summary == nil || strings.TrimSpace(*raw.Summary) == "" {
		errs = append(errs, errors.New("summary is required"))
	}
	if raw.Score == nil {
		errs = append(errs, errors.New("score is required"))
	} else if s := *raw.Score; math.IsNaN(s) || s < 0 || s > 100 {
		errs = append(errs, fmt.Errorf("score %v out of range 0..100", s))
	}
	if len(errs) > 0 {
		return gist.Record{}, gist.Validation("extract.validate", errors.Join(errs...))
	}

	return gist.Record{
		Title:          truncateRunes(strings.TrimSpace(*raw.Title), maxTitleLength),
		Summary:        truncateRunes(strings.TrimSpace(*raw.Summary), maxSummaryLength),
		Score:          int(math.Round(*raw.Score)),
		Tags:           cleanTags(raw.Tags),
		KeyInsights:    cleanList(raw.KeyInsights),
		MentionedLinks: normalizeLinks(raw.MentionedLinks),
		IsLowValue:     raw.IsLowValue,
	}, nil
}

// stripCodeFence removes a markdown code fence some backends wrap JSON in.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// normalizeLinks accepts strings or objects carrying url/link/href/value,
// keeps http(s) URLs and drops duplicates.
func normalizeLinks(raw []json.RawMessage) []string {
	links := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))

	for _, item := range raw {
		var candidate string
		if err := json.Unmarshal(item, &candidate); err != nil {
			var obj map[string]any
			if json.Unmarshal(item, &obj) != nil {
				continue
			}
			for _, key := range []string{"url", "link", "href", "value"} {
				if v, ok := obj[key].(string); ok && v != "" {
					candidate = v
					break
				}
			}
		}

		candidate = strings.TrimSpace(candidate)
		u, err := url.Parse(candidate)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			continue
		}
		if _, dup := seen[candidate]; dup {
			continue
		}
		seen[candidate] = struct{}{}
		links = append(links, candidate)
	}
	return links
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
		key := strings.ToLower(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tag)
		if len(out) == maxTags {
			break
		}
	}
	return out
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
