package openai

import (
	"fmt"

	"github.com/JayTiptown/Conduit-coding-test/core/llms"
	"github.com/jinzhu/copier"
)

type message struct {
	Role    llms.MessageRole `json:"role"`
	Content string           `json:"content"`
}

func toMessages(instructions string, history []llms.Message, prompt string) ([]message, error) {
	messages := []message{}
	if instructions != "" {
		messages = append(messages, message{Role: llms.MessageRoleSystem, Content: instructions})
	}

	if len(history) > 0 {
		var previous []message
		if err := copier.Copy(&previous, &history); err != nil {
			return nil, fmt.Errorf("failed to convert history: %w", err)
		}
		messages = append(messages, previous...)
	}

	return append(messages, message{Role: llms.MessageRoleUser, Content: prompt}), nil
}

type requestBody struct {
	Model         string         `json:"model"`
	Messages      []message      `json:"messages"`
	Stream        bool           `json:"stream"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type streamingResponseBody struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
