package orchestration

import (
	"strings"
	"time"

	"github.com/JayTiptown/Conduit-coding-test/core/speechtotext"
)

// Phase is the turn-taking position of the conversation.
type Phase int

const (
	// PhaseListening accepts recognized words into the pending turn.
	PhaseListening Phase = iota
	// PhaseDispatched has handed a closed turn to the generator and is
	// waiting for the first sentence.
	PhaseDispatched
	// PhaseSpeaking is playing back the reply.
	PhaseSpeaking
)

var knownPhases = []string{PhaseListening.String(), PhaseDispatched.String(), PhaseSpeaking.String()}

func (p Phase) String() string {
	switch p {
	case PhaseListening:
		return "listening"
	case PhaseDispatched:
		return "dispatched"
	case PhaseSpeaking:
		return "speaking"
	}
	return "unknown"
}

type pendingTurn struct {
	words      []speechtotext.Word
	openedAt   time.Time
	lastWordAt time.Time
}

func (t *pendingTurn) isEmpty() bool { return len(t.words) == 0 }

func (t *pendingTurn) add(word speechtotext.Word, at time.Time) {
	if t.isEmpty() {
		t.openedAt = at
	}
	t.words = append(t.words, word)
	t.lastWordAt = at
}

func (t *pendingTurn) text() string {
	parts := make([]string, 0, len(t.words))
	for _, word := range t.words {
		parts = append(parts, strings.TrimSpace(word.Text))
	}
	return strings.Join(parts, " ")
}

func (t *pendingTurn) reset() { *t = pendingTurn{} }

type conversationState struct {
	phase Phase
	// suppressUntil rejects words arriving before it, so the tail of the
	// agent's own voice is not taken as user speech.
	suppressUntil time.Time
}
