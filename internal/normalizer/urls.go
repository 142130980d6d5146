package normalizer

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var skippedLinkFragments = []string{
	"unsubscribe",
	"opt-out",
	"optout",
	"opt_out",
	"manage-preferences",
	"email-preferences",
	"/track",
	"click.",
	"list-manage.com",
}

// ExtractURLs returns the unique http(s) link targets of an HTML body in
// document order, without unsubscribe, opt-out, tracking and mailto links.
func ExtractURLs(html string) []string {
	if strings.TrimSpace(html) == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if !keepLink(href) {
			return
		}
		if _, ok := seen[href]; ok {
			return
		}
		seen[href] = struct{}{}
		links = append(links, href)
	})
	return links
}

func keepLink(href string) bool {
	if !isWebURL(href) {
		return false
	}
	u, err := url.Parse(href)
	if err != nil || u.Host == "" {
		return false
	}

	lower := strings.ToLower(href)
	for _, fragment := range skippedLinkFragments {
		if strings.Contains(lower, fragment) {
			return false
		}
	}

	// links that only carry campaign parameters and no path are tracking redirects
	if (u.Path == "" || u.Path == "/") && hasOnlyUTM(u.Query()) {
		return false
	}
	return true
}

func hasOnlyUTM(q url.Values) bool {
	if len(q) == 0 {
		return false
	}
	for key := range q {
		if !strings.HasPrefix(strings.ToLower(key), "utm_") {
			return false
		}
	}
	return true
}
