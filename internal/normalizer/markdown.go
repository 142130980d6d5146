package normalizer

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// noiseSelectors are removed before rendering.
const noiseSelectors = "script, style, noscript, iframe, object, embed, head, nav, svg, form"

var (
	collapsibleSpace = regexp.MustCompile(`[\s\x{00a0}]+`)
	tagPattern       = regexp.MustCompile(`(?s)<[^>]*>`)
	hiddenStyle      = regexp.MustCompile(`(?i)display\s*:\s*none|visibility\s*:\s*hidden`)
)

func parseDocument(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	removeNoiseElements(doc)
	return doc, nil
}

func removeNoiseElements(doc *goquery.Document) {
	doc.Find(noiseSelectors).Remove()

	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		if isTrackingPixel(img) {
			img.Remove()
		}
	})

	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		if style, _ := s.Attr("style"); hiddenStyle.MatchString(style) {
			s.Remove()
		}
	})
	doc.Find("[hidden]").Remove()
}

func isTrackingPixel(img *goquery.Selection) bool {
	for _, attr := range []string{"width", "height"} {
		v, ok := img.Attr(attr)
		if !ok {
			continue
		}
		v = strings.TrimSuffix(strings.TrimSpace(v), "px")
		if v == "0" || v == "1" {
			return true
		}
	}
	return false
}

// renderMarkdown converts the cleaned document body into markdown-like text.
func renderMarkdown(doc *goquery.Document) string {
	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	return renderChildren(root)
}

func renderChildren(s *goquery.Selection) string {
	var b strings.Builder
	s.Contents().Each(func(_ int, child *goquery.Selection) {
		b.WriteString(renderNode(child))
	})
	return b.String()
}

func renderNode(s *goquery.Selection) string {
	switch name := goquery.NodeName(s); name {
	case "#text":
		return collapsibleSpace.ReplaceAllString(s.Text(), " ")
	case "#comment", "img":
		return ""
	case "br":
		return "\n"
	case "hr":
		return "\n\n---\n\n"
	case "h1", "h2", "h3", "h4", "h5", "h6":
		text := inlineText(s)
		if text == "" {
			return ""
		}
		level := int(name[1] - '0')
		return "\n\n" + strings.Repeat("#", level) + " " + text + "\n\n"
	case "li":
		text := strings.TrimSpace(renderChildren(s))
		if text == "" {
			return ""
		}
		return "\n- " + strings.ReplaceAll(text, "\n", " ")
	case "strong", "b":
		return wrapInline(s, "**")
	case "em", "i":
		return wrapInline(s, "_")
	case "a":
		return renderLink(s)
	case "blockquote":
		text := strings.TrimSpace(renderChildren(s))
		if text == "" {
			return ""
		}
		return "\n\n> " + strings.ReplaceAll(text, "\n", "\n> ") + "\n\n"
	case "pre":
		return "\n\n```\n" + strings.Trim(s.Text(), "\n") + "\n```\n\n"
	case "code":
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return ""
		}
		return "`" + text + "`"
	case "td", "th":
		return renderChildren(s) + " "
	case "p", "div", "section", "article", "header", "footer", "main", "aside",
		"table", "tbody", "thead", "tfoot", "tr", "ul", "ol", "center", "figure", "figcaption":
		return "\n\n" + renderChildren(s) + "\n\n"
	default:
		return renderChildren(s)
	}
}

func inlineText(s *goquery.Selection) string {
	text := renderChildren(s)
	return strings.TrimSpace(collapsibleSpace.ReplaceAllString(text, " "))
}

func wrapInline(s *goquery.Selection, mark string) string {
	text := inlineText(s)
	if text == "" {
		return ""
	}
	return mark + text + mark
}

func renderLink(s *goquery.Selection) string {
	text := inlineText(s)
	href, _ := s.Attr("href")
	href = strings.TrimSpace(href)

	if !isWebURL(href) {
		return text
	}
	if text == "" {
		return ""
	}
	return "[" + text + "](" + href + ")"
}

// flattenText returns the visible text of the cleaned document.
func flattenText(doc *goquery.Document) string {
	var parts []string
	doc.Find("body").Contents().Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(collapsibleSpace.ReplaceAllString(s.Text(), " ")); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) == 0 {
		return strings.TrimSpace(collapsibleSpace.ReplaceAllString(doc.Text(), " "))
	}
	return strings.Join(parts, "\n")
}

// stripTags is the last resort when the markup cannot be parsed at all.
func stripTags(html string) string {
	return tagPattern.ReplaceAllString(html, " ")
}

func isWebURL(href string) bool {
	lower := strings.ToLower(href)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
