// Package distributor publishes gist records to their destinations.
//
// Each destination is attempted independently: a record counts as published
// when at least one destination accepted it, and the per-destination errors
// are reported alongside the references of the successful ones.
//
// Three destinations exist. The notion destination creates a database page
// and appends the insights, links, original content and metadata as blocks;
// only the content unit is critical, failures of the others are logged and
// skipped. The local destination writes a markdown file with YAML front
// matter, or JSON. The drive destination uploads the same markdown to a
// Google Drive folder.
package distributor
