// Package pipeline orchestrates one processing run: fetch unread newsletters,
// drop the ones the ledger has seen, then take each remaining item through
// normalize, extract, value gate, publish, ledger and acknowledge.
//
// Runs never overlap. Items are handled one at a time and an item's failure
// never aborts the run; only context cancellation stops it, between items.
// Every item ends in exactly one ledger entry so it is not fetched again,
// unless its failure is cleared or expires.
package pipeline
