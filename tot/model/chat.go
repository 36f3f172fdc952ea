// Package model provides LLM integration adapters for the search oracles.
package model

import "context"

// ChatModel defines the interface for LLM chat providers.
//
// This interface abstracts the differences between LLM providers
// (OpenAI, Anthropic, Google, OpenAI-compatible endpoints) so the oracles
// and workflows can be served by any backend.
//
// Implementations should:
//   - Handle provider-specific authentication.
//   - Convert the standard Message format to the provider's format.
//   - Honour CallOptions where the provider supports them.
//   - Report token usage in ChatOut.Usage when the provider returns it.
//   - Respect context cancellation and timeouts.
//
// Example usage:
//
//	m := openai.NewChatModel(apiKey, "gpt-4o-mini")
//	out, err := m.Chat(ctx, []Message{
//	    {Role: RoleSystem, Content: "You are a careful reasoner."},
//	    {Role: RoleUser, Content: "Pick a vacation city."},
//	}, CallOptions{Temperature: Float(0.7)})
//	if err != nil {
//	    return err
//	}
//	fmt.Println(out.Text)
type ChatModel interface {
	// Chat sends messages to the LLM and returns the response.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control.
	//   - messages: Conversation history (system, user, assistant messages).
	//   - opts: Per-call sampling and output settings.
	//
	// Returns:
	//   - ChatOut: Generated text and token usage.
	//   - error: Provider errors, network errors, or context cancellation.
	Chat(ctx context.Context, messages []Message, opts CallOptions) (ChatOut, error)
}

// Message represents a single message in an LLM conversation.
type Message struct {
	// Role identifies the message sender.
	// Use the Role* constants for consistency.
	Role string `json:"role"`

	// Content contains the message text.
	Content string `json:"content"`
}

// Standard role constants for LLM conversations.
const (
	// RoleSystem indicates a system message that sets context or instructions.
	RoleSystem = "system"

	// RoleUser indicates a message from the human user.
	RoleUser = "user"

	// RoleAssistant indicates a response from the LLM.
	RoleAssistant = "assistant"
)

// CallOptions carries per-call settings for a ChatModel.
//
// Zero values mean "provider default".
type CallOptions struct {
	// Temperature controls sampling randomness. Nil uses the provider default.
	Temperature *float64

	// MaxTokens caps the generated output. Zero uses the adapter default.
	MaxTokens int

	// JSON requests a JSON object response where the provider supports it.
	// Providers without a JSON mode rely on the prompt alone.
	JSON bool
}

// Float returns a pointer to v, for use in CallOptions.Temperature.
func Float(v float64) *float64 {
	return &v
}

// ChatOut represents the output from an LLM chat completion.
type ChatOut struct {
	// Text contains the LLM's generated response.
	Text string

	// Model is the model that served the request, as reported by the adapter.
	Model string

	// Usage reports token consumption for cost tracking.
	Usage Usage
}

// Usage reports the tokens consumed by a single chat call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// SystemPrompt returns the concatenated content of all system messages and
// the remaining conversation messages in order.
//
// Providers that take the system prompt as a separate parameter (Anthropic,
// Gemini) use this to split the conversation.
func SystemPrompt(messages []Message) (string, []Message) {
	var systemPrompt string
	var conversation []Message

	for _, msg := range messages {
		if msg.Role == RoleSystem {
			if systemPrompt != "" {
				systemPrompt += "\n\n"
			}
			systemPrompt += msg.Content
			continue
		}
		conversation = append(conversation, msg)
	}

	return systemPrompt, conversation
}
