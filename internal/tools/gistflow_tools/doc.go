// Package gistflow_tools exposes the pipeline to MCP clients.
//
// Tools:
//   - gistflow_run: run the pipeline once and return the run stats
//   - gistflow_status: pipeline (and scheduler, when serving) state
//   - gistflow_stats: ledger totals and recent runs
//   - gistflow_list_errors: error records, optionally since a timestamp
//   - gistflow_clear_error: clear failed entries so the items are retried
//
// In read-only mode gistflow_run and gistflow_clear_error are not registered.
package gistflow_tools
