// Package compaction estimates token cost and compresses conversation
// history into a short summary used when the retry ladder is exhausted.
package compaction

import "errors"

// Compaction errors.
var (
	// ErrEmptySummary indicates that there was nothing to summarize or the
	// backend returned a blank summary.
	ErrEmptySummary = errors.New("compaction: empty summary")

	// ErrNoCompleter indicates that no backend is configured for summarization.
	ErrNoCompleter = errors.New("compaction: completer not configured")
)
