package gmail

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmail "google.golang.org/api/gmail/v1"

	"github.com/teemow/gistflow/internal/gist"
)

func b64(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func newsletterMessage(id string, internalDate int64) *gmail.Message {
	return &gmail.Message{
		Id:           id,
		ThreadId:     "thread-" + id,
		InternalDate: internalDate,
		LabelIds:     []string{"Label_1", "UNREAD"},
		Payload: &gmail.MessagePart{
			MimeType: "multipart/mixed",
			Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: `"AI Weekly" <News@AIWeekly.example>`},
				{Name: "Subject", Value: "=?UTF-8?B?QUkgV2Vla2x5ICM0Mg==?="},
			},
			Parts: []*gmail.MessagePart{
				{
					MimeType: "multipart/alternative",
					Parts: []*gmail.MessagePart{
						{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64("plain body")}},
						{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: b64(`<p>html body <a href="https://example.com/post">post</a></p>`)}},
					},
				},
				{MimeType: "text/html", Filename: "attachment.html", Body: &gmail.MessagePartBody{AttachmentId: "att-1"}},
			},
		},
	}
}

func TestConvertMessage(t *testing.T) {
	item, err := convertMessage(newsletterMessage("msg-1", 1772442000000))
	require.NoError(t, err)

	assert.Equal(t, "msg-1", item.SourceID)
	assert.Equal(t, "thread-msg-1", item.ThreadID)
	assert.Equal(t, "AI Weekly #42", item.Subject)
	assert.Equal(t, "AI Weekly", item.Sender)
	assert.Equal(t, "news@aiweekly.example", item.SenderEmail)
	assert.Equal(t, time.UnixMilli(1772442000000).UTC(), item.Timestamp)
	assert.Equal(t, "plain body", item.Content.Text)
	assert.Contains(t, item.Content.HTML, "html body")
	assert.Equal(t, []string{"https://example.com/post"}, item.Links)
	assert.Equal(t, messageURLPrefix+"msg-1", item.OriginalURL)
}

func TestConvertMessageWithoutPayload(t *testing.T) {
	_, err := convertMessage(&gmail.Message{Id: "x"})
	require.Error(t, err)
	assert.Equal(t, gist.CategoryContent, gist.CategoryOf(err))
}

func TestConvertMessageInvalidBody(t *testing.T) {
	msg := &gmail.Message{Id: "x", Payload: &gmail.MessagePart{
		MimeType: "text/html",
		Body:     &gmail.MessagePartBody{Data: "!!not base64!!"},
	}}
	_, err := convertMessage(msg)
	require.Error(t, err)
	assert.Equal(t, gist.CategoryContent, gist.CategoryOf(err))
}

func TestParseSender(t *testing.T) {
	tests := []struct {
		from      string
		wantName  string
		wantEmail string
	}{
		{`"The Batch" <thebatch@deeplearning.ai>`, "The Batch", "thebatch@deeplearning.ai"},
		{"plain@example.com", "plain@example.com", "plain@example.com"},
		{"not an address", "not an address", ""},
		{"", "Unknown", ""},
	}

	for _, tt := range tests {
		t.Run(tt.from, func(t *testing.T) {
			name, email := parseSender(tt.from)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantEmail, email)
		})
	}
}

func TestDecodeBodyUnpadded(t *testing.T) {
	got, err := decodeBody(base64.RawURLEncoding.EncodeToString([]byte("hi?")))
	require.NoError(t, err)
	assert.Equal(t, "hi?", string(got))
}

func TestMessageTimeFallsBackToDateHeader(t *testing.T) {
	msg := &gmail.Message{Payload: &gmail.MessagePart{Headers: []*gmail.MessagePartHeader{
		{Name: "Date", Value: "Mon, 02 Mar 2026 09:00:00 +0100"},
	}}}
	assert.Equal(t, time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC), messageTime(msg))
}
