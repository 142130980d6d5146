// Package gmail is the newsletter source. It finds unread messages carrying
// the target label (or one of its variants, matched case-insensitively),
// converts them into gist.SourceItem values and acknowledges them once
// handled by marking them read, removing the matched labels and adding the
// processed label.
//
// The client is bound to one account and authenticates through the google
// package's token store. Label ids are resolved once and cached; the
// processed label is created on first use.
package gmail
