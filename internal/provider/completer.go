// Package provider defines the completion backend interface and the
// conversation types shared by the window and retry engine.
package provider

import "context"

// Completer is a chat-completion backend. Implementations are selected once
// at construction and injected; callers never branch on the backend name.
type Completer interface {
	// Name returns the backend name used in logs and response metadata.
	Name() string

	// Complete sends the messages and returns the assistant text.
	// Failures are returned as *ProviderError (possibly wrapped).
	Complete(ctx context.Context, messages []Turn, params Params) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, messages []Turn, params Params) (string, error)

// Name implements Completer.
func (f CompleterFunc) Name() string { return "func" }

// Complete implements Completer.
func (f CompleterFunc) Complete(ctx context.Context, messages []Turn, params Params) (string, error) {
	return f(ctx, messages, params)
}

// Pinger is implemented by backends that can report their availability.
type Pinger interface {
	Ping(ctx context.Context) error
}
