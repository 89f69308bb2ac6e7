package orchestration

import (
	"slices"
	"sync"

	"github.com/JayTiptown/Conduit-coding-test/core/llms"
)

// conversationHistory keeps the exchanged messages, oldest first.
type conversationHistory struct {
	mu       sync.Mutex
	messages []llms.Message
	limit    int
}

func (h *conversationHistory) append(messages ...llms.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages, messages...)
	if h.limit > 0 && len(h.messages) > h.limit {
		h.messages = slices.Clone(h.messages[len(h.messages)-h.limit:])
	}
}

func (h *conversationHistory) snapshot() []llms.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.messages)
}

// History returns a copy of the conversation so far.
func (o *Orchestrator) History() []llms.Message { return o.history.snapshot() }
