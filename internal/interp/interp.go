// Package interp turns caller utterances into structured booking updates by
// delegating to a language-model provider.
//
// The [Adapter] owns the conversation with the model: it maintains the call
// transcript, sends it with the task prompt on every turn, and parses the
// model's JSON reply into a spoken response plus field suggestions. The
// adapter fails closed — any provider error, timeout, or malformed reply
// yields an apology line and zero suggestions, never a partial update.
package interp

import "context"

// Message roles understood by every [Provider].
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of conversation sent to the model.
type Message struct {
	Role    string
	Content string
}

// Provider is the abstraction over any chat-completion backend.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly. The system prompt is passed separately so providers
// with a dedicated system field can use it.
type Provider interface {
	// Complete sends the system prompt and conversation to the model and
	// returns the assistant's full reply text.
	Complete(ctx context.Context, system string, msgs []Message) (string, error)
}
