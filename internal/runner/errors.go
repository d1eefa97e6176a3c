package runner

import "errors"

var (
	// ErrNoCompleter is returned when the runner has no backend.
	ErrNoCompleter = errors.New("runner: no completer configured")

	// ErrEmptyMessage is returned for a blank user text.
	ErrEmptyMessage = errors.New("runner: empty user message")
)
