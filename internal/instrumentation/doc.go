// Package instrumentation provides OpenTelemetry metrics and tracing for
// gistflow.
//
// # Metrics
//
// Pipeline:
//   - gistflow_runs_total / gistflow_run_duration_seconds: runs by trigger and status
//   - gistflow_runs_in_progress: runs currently executing (0 or 1)
//   - gistflow_items_total: source items by terminal outcome (published, low_value, failed)
//   - gistflow_stage_duration_seconds: per-item stage latency
//   - gistflow_content_truncated_total: bodies cut by the normalizer
//
// Extraction backend:
//   - gistflow_llm_requests_total / gistflow_llm_request_duration_seconds
//   - gistflow_llm_tokens_total: prompt and completion tokens
//
// Destinations:
//   - gistflow_publish_total / gistflow_publish_duration_seconds
//
// Surfaces:
//   - http_requests_total / http_request_duration_seconds: admin API
//   - google_api_operations_total / google_api_operation_duration_seconds
//   - mcp_tool_invocations_total / mcp_tool_duration_seconds
//
// # Tracing
//
// Every run gets a pipeline.run span with one pipeline.item child per source
// item and pipeline.stage.<name> spans below it. Outbound Google calls use
// google.<service>.<operation> spans; MCP tools use tool.<name>.
//
// # Configuration
//
// Instrumentation is configured through environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: prometheus, otlp or stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout or none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: gistflow)
//   - METRICS_DETAILED_LABELS: attach sender domains to item metrics
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	metrics := provider.Metrics()
//	metrics.RecordItem(ctx, instrumentation.OutcomePublished, item.SenderEmail)
//
// All Record methods are safe on a nil or disabled *Metrics.
package instrumentation
