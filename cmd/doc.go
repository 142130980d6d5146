// Package cmd implements the command-line interface for gistflow.
//
// This package provides the following commands:
//   - run: Process pending newsletters once
//   - serve: Run the pipeline on a schedule with the admin HTTP API
//   - mcp: Start an MCP server on stdio for AI assistants
//   - errors: List and clear recorded processing errors
//   - stats: Show ledger totals and recent runs
//   - auth: Authorize access to a Google account
//   - version: Display version information
//
// The run command is the default command when no subcommand is specified.
package cmd
