package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/teemow/gistflow/internal/distributor"
	"github.com/teemow/gistflow/internal/extractor"
	"github.com/teemow/gistflow/internal/gist"
	"github.com/teemow/gistflow/internal/ledger"
)

// ErrRunInProgress is returned when a run is requested while another is active.
var ErrRunInProgress = errors.New("a pipeline run is already in progress")

// Source is the mailbox the pipeline reads from.
type Source interface {
	Search(ctx context.Context, label string, unseenOnly bool) ([]gist.SourceItem, error)
	Acknowledge(ctx context.Context, sourceID string) error
}

// Ledger is the idempotency store.
type Ledger interface {
	HasSeen(ctx context.Context, sourceID string) (bool, error)
	RecordSuccess(ctx context.Context, entry gist.LedgerEntry) error
	RecordFailure(ctx context.Context, sourceID string, cause error) error
	BeginRun(ctx context.Context) (ledger.Run, error)
	FinishRun(ctx context.Context, runID int64, summary ledger.RunSummary) error
}

// Normalizer bounds and cleans raw message content.
type Normalizer interface {
	Normalize(raw gist.RawContent) gist.NormalizedContent
}

// Extractor produces the gist record.
type Extractor interface {
	Extract(ctx context.Context, in extractor.Input) (gist.Record, error)
}

// Publisher fans records out to destinations.
type Publisher interface {
	Publish(ctx context.Context, rec gist.Record, kinds []gist.DestinationKind) distributor.Result
}

// State is the position of an item in the per-item state machine.
type State string

const (
	StateFetched         State = "FETCHED"
	StateNormalized      State = "NORMALIZED"
	StateExtracted       State = "EXTRACTED"
	StateLowValueSkipped State = "LOW_VALUE_SKIPPED"
	StateGatePassed      State = "VALUE_GATE_PASSED"
	StatePublished       State = "PUBLISHED"
	StateArchived        State = "ARCHIVED"
	StateFailed          State = "FAILED"
)

// Phase is the coarse activity of the pipeline.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseFetching   Phase = "fetching"
	PhaseProcessing Phase = "processing"
)

// ItemResult is the outcome of one item within a run.
type ItemResult struct {
	SourceID string                          `json:"source_id"`
	Subject  string                          `json:"subject"`
	State    State                           `json:"state"`
	Score    int                             `json:"score"`
	Degraded bool                            `json:"degraded,omitempty"`
	LowValue bool                            `json:"low_value,omitempty"`
	Refs     map[gist.DestinationKind]string `json:"refs,omitempty"`
	Error    string                          `json:"error,omitempty"`
}

// RunStats summarizes a run.
type RunStats struct {
	RunID       string    `json:"run_id"`
	LedgerRunID int64     `json:"ledger_run_id"`
	Trigger     string    `json:"trigger"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Duration    string    `json:"duration"`

	// Found counts the messages returned by the source, Candidates the ones
	// the ledger had not seen and Deferred the candidates left for the next
	// run by the per-run cap.
	Found      int `json:"found"`
	Candidates int `json:"candidates"`
	Deferred   int `json:"deferred"`

	Processed       int                          `json:"processed"`
	LowValueSkipped int                          `json:"low_value_skipped"`
	Failed          int                          `json:"failed"`
	Degraded        int                          `json:"degraded"`
	Published       map[gist.DestinationKind]int `json:"published"`
	Items           []ItemResult                 `json:"items"`
	Stopped         bool                         `json:"stopped,omitempty"`
	Error           string                       `json:"error,omitempty"`
}

// Status is a snapshot of the pipeline for the admin surfaces.
type Status struct {
	Running         bool      `json:"running"`
	Phase           Phase     `json:"phase"`
	RunID           string    `json:"run_id,omitempty"`
	Trigger         string    `json:"trigger,omitempty"`
	CurrentItem     int       `json:"current_item,omitempty"`
	TotalItems      int       `json:"total_items,omitempty"`
	CurrentSourceID string    `json:"current_source_id,omitempty"`
	LastRun         *RunStats `json:"last_run,omitempty"`
	LastRunAt       time.Time `json:"last_run_at,omitzero"`
}
