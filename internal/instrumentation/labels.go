package instrumentation

import "strings"

// Metric label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"

	// Google services
	ServiceGmail = "gmail"
	ServiceDrive = "drive"

	// Google API operations
	OperationList   = "list"
	OperationGet    = "get"
	OperationCreate = "create"
	OperationModify = "modify"
	OperationSearch = "search"
	OperationUpload = "upload"

	// Item outcomes
	OutcomePublished = "published"
	OutcomeLowValue  = "low_value"
	OutcomeFailed    = "failed"

	// Run triggers
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
	TriggerCLI      = "cli"
	TriggerMCP      = "mcp"
)

// unknownLabel replaces values that cannot be reduced to a bounded label.
const unknownLabel = "unknown"

// SenderDomain reduces a sender address to its lower-cased domain so item
// metrics are attributed per publisher, never per address.
//
//	SenderDomain("digest@GolangWeekly.com") // "golangweekly.com"
//	SenderDomain("invalid")                 // "unknown"
func SenderDomain(email string) string {
	_, domain, ok := strings.Cut(email, "@")
	if !ok || domain == "" || strings.Contains(domain, "@") {
		return unknownLabel
	}
	return strings.ToLower(domain)
}
