package gist

import (
	"time"
)

// DestinationKind identifies a publish destination.
type DestinationKind string

const (
	DestinationNotion DestinationKind = "notion"
	DestinationLocal  DestinationKind = "local"
	DestinationDrive  DestinationKind = "drive"
)

// Outcome is the terminal outcome stored in the ledger for a source item.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeFailed    Outcome = "failed"
)

// RawContent is the message body as delivered by the source.
type RawContent struct {
	HTML string
	Text string
}

// SourceItem is a candidate message fetched from the mail source.
// It is immutable once fetched.
type SourceItem struct {
	SourceID    string
	ThreadID    string
	Subject     string
	Sender      string
	SenderEmail string
	Timestamp   time.Time
	Content     RawContent
	Labels      []string
	Links       []string

	// OriginalURL points back at the message in the mail client, if known.
	OriginalURL string
}

// NormalizedContent is the bounded, de-noised text handed to the extractor.
type NormalizedContent struct {
	Text           string
	Truncated      bool
	OriginalLength int
}

// Record is the structured gist extracted from one source item.
type Record struct {
	Title          string   `json:"title" yaml:"title"`
	Summary        string   `json:"summary" yaml:"summary"`
	Score          int      `json:"score" yaml:"score"`
	Tags           []string `json:"tags" yaml:"tags"`
	KeyInsights    []string `json:"key_insights" yaml:"key_insights"`
	MentionedLinks []string `json:"mentioned_links" yaml:"mentioned_links"`
	IsLowValue     bool     `json:"is_low_value" yaml:"is_low_value"`

	// Degraded marks a record built without a valid model response.
	Degraded bool `json:"degraded,omitempty" yaml:"degraded,omitempty"`

	SourceID    string    `json:"source_id" yaml:"source_id"`
	Subject     string    `json:"subject,omitempty" yaml:"subject,omitempty"`
	Sender      string    `json:"sender,omitempty" yaml:"sender,omitempty"`
	SenderEmail string    `json:"sender_email,omitempty" yaml:"sender_email,omitempty"`
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
	OriginalURL string    `json:"original_url,omitempty" yaml:"original_url,omitempty"`

	// Content is the normalized text kept for traceability and publishing.
	Content string `json:"content,omitempty" yaml:"-"`

	DestinationRefs map[DestinationKind]string `json:"destination_refs,omitempty" yaml:"destination_refs,omitempty"`
}

// Passes reports whether the record clears the value gate.
func (r Record) Passes(minScore int) bool {
	return !r.IsLowValue && r.Score >= minScore
}

// LedgerEntry is the single ledger row for a source id.
type LedgerEntry struct {
	SourceID        string                     `json:"source_id"`
	Outcome         Outcome                    `json:"outcome"`
	Subject         string                     `json:"subject,omitempty"`
	Sender          string                     `json:"sender,omitempty"`
	Score           int                        `json:"score"`
	IsLowValue      bool                       `json:"is_low_value"`
	Degraded        bool                       `json:"degraded,omitempty"`
	DestinationRefs map[DestinationKind]string `json:"destination_refs,omitempty"`
	ProcessedAt     time.Time                  `json:"processed_at"`
}

// ErrorRecord is an append-only audit entry for a failed attempt.
type ErrorRecord struct {
	ID         int64     `json:"id"`
	SourceID   string    `json:"source_id"`
	Category   Category  `json:"category"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}
