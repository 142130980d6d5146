// Package gist defines the data model shared by the GistFlow pipeline: source
// items fetched from the mailbox, normalized content, extracted gist records,
// ledger entries and the error taxonomy used to decide retry behavior.
package gist
