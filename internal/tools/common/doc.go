// Package common provides helpers shared by the MCP tool handlers:
// argument parsing, JSON results and instrumentation.
package common
