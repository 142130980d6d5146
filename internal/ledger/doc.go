// Package ledger persists which source items have been handled.
//
// The ledger is a SQLite database (pure Go driver, no cgo) holding one entry
// per source id, an append-only list of error records, and one row per
// pipeline run. An entry with outcome "processed" is permanent. A "failed"
// entry blocks reprocessing until an operator clears it with ClearError or
// the configured retry policy expires it at the start of a later run.
//
// Every operation acquires its own connection and runs inside its own
// transaction, so read-only callers (the admin API, MCP tools, CLI) can query
// the ledger while a run is writing to it.
package ledger
