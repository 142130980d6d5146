// Package server provides the HTTP surfaces of a running gistflow instance.
//
// # Key Components
//
// Server hosts the admin API:
//   - Health probes: /healthz, /readyz and /healthz/detailed
//   - Pipeline state: /api/status, /api/stats, /api/runs and /api/processed
//   - Error records: GET /api/errors and DELETE /api/errors/{sourceID}
//   - Control: POST /api/tasks/run and /api/scheduler/{pause,resume}
//   - Prompts: GET /api/prompts and POST /api/prompts/reload
//
// MetricsServer exposes Prometheus metrics on a dedicated port, isolated
// from the admin API.
//
// All responses are JSON. Errors use the shape {"error": "..."}.
package server
