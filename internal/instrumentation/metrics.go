package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	attrMethod      = "method"
	attrPath        = "path"
	attrStatus      = "status"
	attrOperation   = "operation"
	attrService     = "service"
	attrTool        = "tool"
	attrOutcome     = "outcome"
	attrStage       = "stage"
	attrModel       = "model"
	attrDestination = "destination"
	attrTokenType   = "token_type"
	attrDomain      = "sender_domain"
	attrTrigger     = "trigger"
)

// Metrics records gistflow's counters and histograms. A zero Metrics, or a
// nil *Metrics, records nothing.
type Metrics struct {
	// Pipeline metrics
	runsTotal       metric.Int64Counter
	runDuration     metric.Float64Histogram
	runsInProgress  metric.Int64UpDownCounter
	itemsTotal      metric.Int64Counter
	stageDuration   metric.Float64Histogram
	truncationTotal metric.Int64Counter

	// Extraction backend metrics
	llmRequestsTotal   metric.Int64Counter
	llmRequestDuration metric.Float64Histogram
	llmTokensTotal     metric.Int64Counter

	// Destination metrics
	publishTotal    metric.Int64Counter
	publishDuration metric.Float64Histogram

	// Admin API
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Gmail and Drive
	googleAPIOperationsTotal   metric.Int64Counter
	googleAPIOperationDuration metric.Float64Histogram

	// MCP tools
	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	detailedLabels bool
}

var (
	fastBuckets = metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0)
	apiBuckets  = metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0)
	llmBuckets  = metric.WithExplicitBucketBoundaries(0.5, 1, 2.5, 5, 10, 20, 30, 60, 120)
	runBuckets  = metric.WithExplicitBucketBoundaries(1, 5, 15, 30, 60, 120, 300, 600, 1800)
)

// NewMetrics creates every instrument on meter. With detailedLabels item
// counts also carry the sender domain.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error
	counter := func(name, desc, unit string) metric.Int64Counter {
		if err != nil {
			return nil
		}
		var c metric.Int64Counter
		c, err = meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		if err != nil {
			err = fmt.Errorf("failed to create %s counter: %w", name, err)
		}
		return c
	}
	histogram := func(name, desc string, buckets metric.HistogramOption) metric.Float64Histogram {
		if err != nil {
			return nil
		}
		var h metric.Float64Histogram
		h, err = meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("s"), buckets)
		if err != nil {
			err = fmt.Errorf("failed to create %s histogram: %w", name, err)
		}
		return h
	}

	m.runsTotal = counter("gistflow_runs_total", "Total number of pipeline runs by status", "{run}")
	m.runDuration = histogram("gistflow_run_duration_seconds", "Pipeline run duration in seconds", runBuckets)
	m.itemsTotal = counter("gistflow_items_total", "Total number of source items by terminal outcome", "{item}")
	m.stageDuration = histogram("gistflow_stage_duration_seconds", "Per-item stage duration in seconds", apiBuckets)
	m.truncationTotal = counter("gistflow_content_truncated_total", "Total number of normalized bodies that were truncated", "{item}")

	m.llmRequestsTotal = counter("gistflow_llm_requests_total", "Total number of extraction backend requests", "{request}")
	m.llmRequestDuration = histogram("gistflow_llm_request_duration_seconds", "Extraction backend request duration in seconds", llmBuckets)
	m.llmTokensTotal = counter("gistflow_llm_tokens_total", "Total number of tokens consumed by the extraction backend", "{token}")

	m.publishTotal = counter("gistflow_publish_total", "Total number of destination publishes by status", "{publish}")
	m.publishDuration = histogram("gistflow_publish_duration_seconds", "Destination publish duration in seconds", apiBuckets)

	m.httpRequestsTotal = counter("http_requests_total", "Total number of HTTP requests", "{request}")
	m.httpRequestDuration = histogram("http_request_duration_seconds", "HTTP request duration in seconds", fastBuckets)

	m.googleAPIOperationsTotal = counter("google_api_operations_total", "Total number of Google API operations", "{operation}")
	m.googleAPIOperationDuration = histogram("google_api_operation_duration_seconds", "Google API operation duration in seconds", apiBuckets)

	m.toolInvocationsTotal = counter("mcp_tool_invocations_total", "Total number of MCP tool invocations", "{invocation}")
	m.toolDuration = histogram("mcp_tool_duration_seconds", "MCP tool execution duration in seconds", apiBuckets)
	if err != nil {
		return nil, err
	}

	m.runsInProgress, err = meter.Int64UpDownCounter(
		"gistflow_runs_in_progress",
		metric.WithDescription("Number of pipeline runs currently executing"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gistflow_runs_in_progress gauge: %w", err)
	}

	return m, nil
}

// RecordRun records a finished pipeline run.
//
// Parameters:
//   - trigger: what started the run (schedule, manual, cli, mcp)
//   - status: Result status ("success" or "error")
//   - duration: Time taken for the run
func (m *Metrics) RecordRun(ctx context.Context, trigger, status string, duration time.Duration) {
	if m == nil || m.runsTotal == nil || m.runDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := metric.WithAttributes(
		attribute.String(attrTrigger, trigger),
		attribute.String(attrStatus, status),
	)
	m.runsTotal.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, duration.Seconds(), attrs)
}

// RunStarted increments the in-progress gauge. Pair with RunFinished.
func (m *Metrics) RunStarted(ctx context.Context) {
	if m == nil || m.runsInProgress == nil {
		return
	}
	m.runsInProgress.Add(ctx, 1)
}

// RunFinished decrements the in-progress gauge.
func (m *Metrics) RunFinished(ctx context.Context) {
	if m == nil || m.runsInProgress == nil {
		return
	}
	m.runsInProgress.Add(ctx, -1)
}

// RecordItem records the terminal outcome of one source item
// (published, low_value, failed). The sender domain is only attached
// when detailed labels are enabled.
func (m *Metrics) RecordItem(ctx context.Context, outcome, senderEmail string) {
	if m == nil || m.itemsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrOutcome, outcome),
	}
	if m.detailedLabels && senderEmail != "" {
		attrs = append(attrs, attribute.String(attrDomain, SenderDomain(senderEmail)))
	}

	m.itemsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordStage records the duration of one per-item stage
// (normalize, extract, publish, acknowledge, ledger).
func (m *Metrics) RecordStage(ctx context.Context, stage, status string, duration time.Duration) {
	if m == nil || m.stageDuration == nil {
		return
	}

	m.stageDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(attrStage, stage),
		attribute.String(attrStatus, status),
	))
}

// RecordTruncation counts a normalized body that exceeded the length bound.
func (m *Metrics) RecordTruncation(ctx context.Context) {
	if m == nil || m.truncationTotal == nil {
		return
	}
	m.truncationTotal.Add(ctx, 1)
}

// RecordLLMRequest records one extraction backend call with its token usage.
func (m *Metrics) RecordLLMRequest(ctx context.Context, model, status string, duration time.Duration, promptTokens, completionTokens int) {
	if m == nil || m.llmRequestsTotal == nil || m.llmRequestDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrModel, model),
		attribute.String(attrStatus, status),
	)
	m.llmRequestsTotal.Add(ctx, 1, attrs)
	m.llmRequestDuration.Record(ctx, duration.Seconds(), attrs)

	if m.llmTokensTotal == nil {
		return
	}
	if promptTokens > 0 {
		m.llmTokensTotal.Add(ctx, int64(promptTokens), metric.WithAttributes(
			attribute.String(attrModel, model),
			attribute.String(attrTokenType, "prompt"),
		))
	}
	if completionTokens > 0 {
		m.llmTokensTotal.Add(ctx, int64(completionTokens), metric.WithAttributes(
			attribute.String(attrModel, model),
			attribute.String(attrTokenType, "completion"),
		))
	}
}

// RecordPublish records one destination publish attempt (after retries).
func (m *Metrics) RecordPublish(ctx context.Context, destination, status string, duration time.Duration) {
	if m == nil || m.publishTotal == nil || m.publishDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrDestination, destination),
		attribute.String(attrStatus, status),
	)
	m.publishTotal.Add(ctx, 1, attrs)
	m.publishDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordHTTPRequest counts one admin API request. path is the route
// pattern, never the raw URL.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	observe(ctx, m.httpRequestsTotal, m.httpRequestDuration, duration,
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)))
}

// RecordGoogleAPIOperation counts one Gmail or Drive call.
func (m *Metrics) RecordGoogleAPIOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m == nil {
		return
	}
	observe(ctx, m.googleAPIOperationsTotal, m.googleAPIOperationDuration, duration,
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status))
}

// RecordToolInvocation counts one MCP tool call.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	if m == nil {
		return
	}
	observe(ctx, m.toolInvocationsTotal, m.toolDuration, duration,
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status))
}

// observe adds one to counter and records d in seconds, skipping
// instruments that were never created.
func observe(ctx context.Context, counter metric.Int64Counter, hist metric.Float64Histogram, d time.Duration, attrs ...attribute.KeyValue) {
	if counter == nil || hist == nil {
		return
	}
	opt := metric.WithAttributes(attrs...)
	counter.Add(ctx, 1, opt)
	hist.Record(ctx, d.Seconds(), opt)
}

// StatusFor maps an error to StatusSuccess or StatusError.
func StatusFor(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}
