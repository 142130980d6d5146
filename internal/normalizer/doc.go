// Package normalizer turns raw message bodies into bounded plain text for the
// extractor.
//
// HTML bodies are parsed with goquery, stripped of scripts, tracking pixels
// and hidden elements, and rendered as lightweight markdown. Newsletter noise
// (unsubscribe footers, "view in browser" banners, copyright lines) is removed
// by pattern, whitespace is collapsed, and text longer than the configured
// maximum keeps its head and tail around a truncation marker.
//
// Normalize never fails: markup it cannot render degrades to the flattened
// visible text.
package normalizer
