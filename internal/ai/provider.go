package ai

import "context"

// Completion is one structured-output request.
type Completion struct {
	System     string
	Prompt     string
	SchemaName string
	Schema     map[string]any // JSON Schema the reply must satisfy
}

// LLMProvider sends a prompt to an LLM and returns the raw JSON reply.
type LLMProvider interface {
	Complete(ctx context.Context, c Completion) (string, error)
}
