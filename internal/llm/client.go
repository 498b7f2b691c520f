// Package llm abstracts the language model backend behind a minimal client
// interface so pipeline stages stay testable without network access.
package llm

import "context"

// Client defines the minimal interface pipeline stages use to call a
// language model.
type Client interface {
	// CompleteWithSystem sends a prompt with a separate system
	// instruction and returns the model's text response.
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
