package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
)

// Attribute keys shared by every package so log queries stay stable.
const (
	KeyOperation   = "operation"
	KeyStage       = "stage"
	KeySourceID    = "source_id"
	KeyDestination = "destination"
	KeyRunID       = "run_id"
	KeySenderHash  = "sender_hash"
	KeyStatus      = "status"
	KeyError       = "error"
	KeyTool        = "tool"
)

// WithOperation tags every record of logger with op.
func WithOperation(logger *slog.Logger, op string) *slog.Logger {
	return logger.With(Operation(op))
}

// WithRun tags every record of logger with a pipeline run id.
func WithRun(logger *slog.Logger, runID string) *slog.Logger {
	return logger.With(slog.String(KeyRunID, runID))
}

// WithSource tags every record of logger with a source message id.
func WithSource(logger *slog.Logger, sourceID string) *slog.Logger {
	return logger.With(SourceID(sourceID))
}

// Attribute constructors for the keys above.
func Operation(op string) slog.Attr     { return slog.String(KeyOperation, op) }
func Stage(stage string) slog.Attr      { return slog.String(KeyStage, stage) }
func SourceID(id string) slog.Attr      { return slog.String(KeySourceID, id) }
func Destination(kind string) slog.Attr { return slog.String(KeyDestination, kind) }
func Tool(name string) slog.Attr        { return slog.String(KeyTool, name) }
func Status(status string) slog.Attr    { return slog.String(KeyStatus, status) }
func SenderHash(email string) slog.Attr { return slog.String(KeySenderHash, AnonymizeEmail(email)) }

// Err renders err under KeyError. A nil error becomes an empty group, which
// slog drops, so callers can pass results through unconditionally.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{Key: "", Value: slog.GroupValue()}
	}
	return slog.String(KeyError, err.Error())
}

// AnonymizeEmail maps an address to a short stable token. Case is ignored,
// the empty address stays empty.
func AnonymizeEmail(email string) string {
	if email == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(strings.ToLower(email)))
	return "sender:" + hex.EncodeToString(sum[:8])
}
