package llms

import "slices"

type StreamingPromptOptions struct {
	// Instructions is sent as the system message ahead of the history.
	Instructions string
	// History is the conversation so far, oldest first. The prompt being
	// answered is not part of it.
	History []Message
}

type StreamingPromptOption func(*StreamingPromptOptions)

// WithSystemPrompt sets the system prompt for the prompt.
// Repeating this option will overwrite the previous system prompt.
func WithSystemPrompt(prompt string) StreamingPromptOption {
	return func(o *StreamingPromptOptions) {
		o.Instructions = prompt
	}
}

// WithHistory sets the prior conversation. The slice is copied.
func WithHistory(history []Message) StreamingPromptOption {
	return func(o *StreamingPromptOptions) {
		o.History = slices.Clone(history)
	}
}
