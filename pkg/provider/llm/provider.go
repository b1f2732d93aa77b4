// Package llm defines the Provider interface for Large Language Model
// backends.
//
// The assistant uses the model as a planner: a completion request carries the
// conversation history plus the skill manifest, and the response is expected
// to be a single JSON action plan. Providers therefore expose a blocking
// Complete call rather than a streaming API.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly.
package llm

import "context"

// Message represents a single message in a conversation history.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string

	// Name is an optional participant name. The assistant sets it to the
	// identified speaker so the model can address users by name.
	Name string
}

// ToolDefinition describes a skill offered to the model in the planning
// prompt. Parameters is the JSON Schema of the skill's argument object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Usage holds token accounting returned by the backend. Counts are in the
// model's native token unit and differ between providers for the same text.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a plan.
// Messages must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is a high-priority instruction injected before the
	// conversation history. Providers that lack a dedicated system field
	// prepend it as a "system"-role message.
	SystemPrompt string

	// Messages is the ordered conversation history. The last message is the
	// current user utterance.
	Messages []Message

	// Tools is the skill manifest rendered into the planning prompt.
	Tools []ToolDefinition

	// Temperature controls output randomness. Zero requests the provider
	// default.
	Temperature float64

	// MaxTokens caps the completion length. Zero uses the provider default.
	MaxTokens int
}

// CompletionResponse is the model's reply.
type CompletionResponse struct {
	// Content is the full text of the reply, expected to contain the JSON
	// action plan (possibly wrapped in prose or code fences).
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// ModelID identifies the configured model, for logging and health checks.
	ModelID() string
}
