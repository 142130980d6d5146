package normalizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/gistflow/internal/gist"
)

func TestNormalizeHTML(t *testing.T) {
	html := `<html><head><title>ignored</title><style>.x{color:red}</style></head>
<body>
  <script>track()</script>
  <nav>Home | About</nav>
  <h1>Weekly   Go</h1>
  <p>Generics are <strong>great</strong> and <em>fast</em>.</p>
  <p>Read <a href="https://go.dev/blog/intro-generics">the intro</a> today.</p>
  <ul><li>First item</li><li>Second item</li></ul>
  <blockquote>Simplicity is complicated.</blockquote>
  <pre>go test ./...</pre>
  <img src="https://t.example.com/open.gif" width="1" height="1">
  <div style="display: none">preheader text</div>
  <p><a href="https://example.com/unsubscribe?u=1">Unsubscribe</a> | <a href="https://example.com/view">View in browser</a></p>
  <p>Copyright © 2024 Weekly Go Ltd. All rights reserved.</p>
</body></html>`

	n := New(Options{}, nil)
	got := n.Normalize(gist.RawContent{HTML: html, Text: "plain fallback"})

	assert.False(t, got.Truncated)
	assert.Contains(t, got.Text, "# Weekly Go")
	assert.Contains(t, got.Text, "Generics are **great** and _fast_.")
	assert.Contains(t, got.Text, "[the intro](https://go.dev/blog/intro-generics)")
	assert.Contains(t, got.Text, "- First item\n- Second item")
	assert.Contains(t, got.Text, "> Simplicity is complicated.")
	assert.Contains(t, got.Text, "go test ./...")

	for _, noise := range []string{"track()", "color:red", "Home | About", "preheader", "open.gif",
		"Unsubscribe", "View in browser", "Copyright", "All rights reserved", "plain fallback", "ignored"} {
		assert.NotContains(t, got.Text, noise)
	}
	assert.Equal(t, len([]rune(got.Text)), got.OriginalLength)
}

func TestNormalizePlainText(t *testing.T) {
	n := New(Options{}, nil)
	got := n.Normalize(gist.RawContent{Text: "Hello   world\r\n\r\n\r\n\r\nSecond paragraph\nSent from my iPhone\n取消订阅"})

	assert.Equal(t, "Hello world\n\nSecond paragraph", got.Text)
	assert.False(t, got.Truncated)
}

func TestNormalizeLinkWithoutWebTarget(t *testing.T) {
	n := New(Options{}, nil)
	html := `<body><span><a href="javascript:void(0)">Tap here to read the full story inside</a></span></body>`

	got := n.Normalize(gist.RawContent{HTML: html})
	assert.Contains(t, got.Text, "Tap here to read the full story inside")
}

func TestNormalizeMalformedHTML(t *testing.T) {
	n := New(Options{}, nil)

	assert.NotPanics(t, func() {
		got := n.Normalize(gist.RawContent{HTML: "<div><p>Broken <b>markup<p>still readable text here</div></span></table>"})
		assert.Contains(t, got.Text, "still readable text here")
	})
}

func TestNormalizeEmpty(t *testing.T) {
	n := New(Options{}, nil)
	got := n.Normalize(gist.RawContent{})
	assert.Equal(t, gist.NormalizedContent{}, got)
}

func TestNormalizeTruncatesLongContent(t *testing.T) {
	opts := Options{MaxLength: 20000, HeadLength: 15000, TailLength: 2000}
	n := New(opts, nil)

	body := "HEADSTART " + strings.Repeat("middle words ", 2500) + "TAILEND"
	require.Greater(t, len([]rune(body)), 30000)

	got := n.Normalize(gist.RawContent{Text: body})
	require.True(t, got.Truncated)
	assert.LessOrEqual(t, len([]rune(got.Text)), opts.MaxLength)
	assert.True(t, strings.HasPrefix(got.Text, "HEADSTART"))
	assert.True(t, strings.HasSuffix(got.Text, "TAILEND"))
	assert.Contains(t, got.Text, strings.TrimSpace(TruncationMarker))
	assert.Equal(t, len([]rune(body)), got.OriginalLength)
}

func TestTruncate(t *testing.T) {
	markerLen := len([]rune(TruncationMarker))

	tests := []struct {
		name          string
		text          string
		opts          Options
		wantTruncated bool
		wantHead      string
		wantTail      string
	}{
		{
			name: "short text untouched",
			text: "abc",
			opts: Options{MaxLength: 10, HeadLength: 5, TailLength: 2},
		},
		{
			name:          "head and tail kept",
			text:          strings.Repeat("a", 100) + strings.Repeat("z", 100),
			opts:          Options{MaxLength: 150, HeadLength: 50, TailLength: 20},
			wantTruncated: true,
			wantHead:      strings.Repeat("a", 50),
			wantTail:      strings.Repeat("z", 20),
		},
		{
			name:          "head shrinks to fit max",
			text:          strings.Repeat("a", 500) + strings.Repeat("z", 500),
			opts:          Options{MaxLength: markerLen + 30, HeadLength: 100, TailLength: 10},
			wantTruncated: true,
			wantHead:      strings.Repeat("a", 20),
			wantTail:      strings.Repeat("z", 10),
		},
		{
			name:          "multibyte runes counted once",
			text:          strings.Repeat("新", 300),
			opts:          Options{MaxLength: 200, HeadLength: 100, TailLength: 40},
			wantTruncated: true,
			wantHead:      strings.Repeat("新", 100),
			wantTail:      strings.Repeat("新", 40),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, truncated := Truncate(tt.text, tt.opts)
			assert.Equal(t, tt.wantTruncated, truncated)
			assert.LessOrEqual(t, len([]rune(got)), max(tt.opts.MaxLength, len([]rune(tt.text))))
			if !tt.wantTruncated {
				assert.Equal(t, tt.text, got)
				return
			}
			assert.LessOrEqual(t, len([]rune(got)), tt.opts.MaxLength)
			assert.Equal(t, tt.wantHead+TruncationMarker+tt.wantTail, got)
		})
	}
}

func TestTruncateMaxSmallerThanMarker(t *testing.T) {
	got, truncated := Truncate(strings.Repeat("x", 100), Options{MaxLength: 5, HeadLength: 3, TailLength: 1})
	assert.True(t, truncated)
	assert.Equal(t, "xxxxx", got)
}

func TestRemoveNoise(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "unsubscribe link", in: "Thanks [Unsubscribe here](https://x.io/u)", want: "Thanks"},
		{name: "social links", in: "Follow [Twitter](https://t.co) [LinkedIn](https://l.in)", want: "Follow"},
		{name: "view online", in: "[View online] News", want: "News"},
		{name: "chinese footer", in: "内容 在浏览器中查看 版权所有 隐私政策", want: "内容"},
		{name: "copyright line", in: "Body\n© 2025 ACME Inc, 1 Main St", want: "Body"},
		{name: "sent from", in: "ok\nSent from my Android", want: "ok"},
		{name: "footer actions", in: "Forward to a friend Share this email Get the app", want: ""},
		{name: "plain content kept", in: "Go 1.22 shipped range-over-func.", want: "Go 1.22 shipped range-over-func."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeWhitespace(removeNoise(tt.in)))
		})
	}
}

func TestExtractURLs(t *testing.T) {
	html := `<body>
<a href="https://go.dev/blog">Blog</a>
<a href="https://go.dev/blog">Blog again</a>
<a href="mailto:editor@example.com">Mail</a>
<a href="https://example.com/unsubscribe?id=1">Unsubscribe</a>
<a href="https://click.example.com/abc">Tracked</a>
<a href="https://example.com/?utm_source=newsletter">Campaign</a>
<a href="https://example.com/post?utm_source=newsletter">Post</a>
<a href="/relative">Relative</a>
<a href="https://github.com/golang/go">Repo</a>
</body>`

	got := ExtractURLs(html)
	assert.Equal(t, []string{
		"https://go.dev/blog",
		"https://example.com/post?utm_source=newsletter",
		"https://github.com/golang/go",
	}, got)

	assert.Nil(t, ExtractURLs(""))
}
