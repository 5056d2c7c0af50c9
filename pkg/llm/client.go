// Package llm provides clients for the language-model providers backing the
// pipeline's non-deterministic stages.
package llm

import "context"

// CompletionRequest is one prompt sent to a model.
type CompletionRequest struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// CompletionResult is the model's reply plus usage accounting.
type CompletionResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// Client is the capability contract the pipeline depends on: produce a
// structured answer for a prompt. Implementations wrap a concrete provider.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)

	// Model returns the configured model name, for logs and turn records.
	Model() string
}
