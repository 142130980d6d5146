package gmail

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/mail"
	"strings"
	"time"

	gmail "google.golang.org/api/gmail/v1"

	"github.com/teemow/gistflow/internal/gist"
	"github.com/teemow/gistflow/internal/normalizer"
)

const messageURLPrefix = "https://mail.google.com/mail/u/0/#all/"

var wordDecoder = new(mime.WordDecoder)

// convertMessage turns a full-format message into a SourceItem.
func convertMessage(m *gmail.Message) (gist.SourceItem, error) {
	if m == nil || m.Payload == nil {
		return gist.SourceItem{}, gist.Content("gmail.convert", errors.New("message has no payload"))
	}

	name, email := parseSender(HeaderValue(m, "From"))

	item := gist.SourceItem{
		SourceID:    m.Id,
		ThreadID:    m.ThreadId,
		Subject:     decodeHeader(HeaderValue(m, "Subject")),
		Sender:      name,
		SenderEmail: email,
		Timestamp:   messageTime(m),
		Labels:      m.LabelIds,
		OriginalURL: messageURLPrefix + m.Id,
	}

	html, err := bodyPart(m.Payload, "text/html")
	if err != nil {
		return gist.SourceItem{}, err
	}
	text, err := bodyPart(m.Payload, "text/plain")
	if err != nil {
		return gist.SourceItem{}, err
	}
	item.Content = gist.RawContent{HTML: html, Text: text}
	if html != "" {
		item.Links = normalizer.ExtractURLs(html)
	}
	return item, nil
}

// HeaderValue extracts a header value from a Gmail message
func HeaderValue(m *gmail.Message, header string) string {
	mpart := m.Payload
	if mpart == nil {
		return ""
	}
	for _, mph := range mpart.Headers {
		if strings.EqualFold(mph.Name, header) {
			return mph.Value
		}
	}
	return ""
}

func decodeHeader(v string) string {
	decoded, err := wordDecoder.DecodeHeader(v)
	if err != nil {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(decoded)
}

// parseSender splits a From header into display name and address. The name
// falls back to the address, then to "Unknown".
func parseSender(from string) (string, string) {
	addr, err := mail.ParseAddress(from)
	if err != nil {
		from = strings.TrimSpace(from)
		if from == "" {
			return "Unknown", ""
		}
		return from, ""
	}
	name := decodeHeader(addr.Name)
	if name == "" {
		name = addr.Address
	}
	return name, strings.ToLower(addr.Address)
}

func messageTime(m *gmail.Message) time.Time {
	if m.InternalDate > 0 {
		return time.UnixMilli(m.InternalDate).UTC()
	}
	if t, err := mail.ParseDate(HeaderValue(m, "Date")); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

// bodyPart returns the first non-attachment part of mimeType, decoded.
func bodyPart(payload *gmail.MessagePart, mimeType string) (string, error) {
	var data string
	walkParts(payload, func(part *gmail.MessagePart) {
		if data != "" || part.Filename != "" || part.Body == nil {
			return
		}
		if strings.EqualFold(part.MimeType, mimeType) && part.Body.Data != "" {
			data = part.Body.Data
		}
	})
	if data == "" {
		return "", nil
	}

	decoded, err := decodeBody(data)
	if err != nil {
		return "", gist.Content("gmail.body", fmt.Errorf("failed to decode %s body: %w", mimeType, err))
	}
	return string(decoded), nil
}

// decodeBody accepts padded and unpadded base64url.
func decodeBody(data string) ([]byte, error) {
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err == nil {
		return decoded, nil
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
}

// walkParts recursively walks through message parts
func walkParts(part *gmail.MessagePart, fn func(*gmail.MessagePart)) {
	if part == nil {
		return
	}

	fn(part)

	for _, subpart := range part.Parts {
		walkParts(subpart, fn)
	}
}
