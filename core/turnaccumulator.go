package orchestration

import (
	"sync"
	"time"

	"github.com/JayTiptown/Conduit-coding-test/core/metrics"
	"github.com/JayTiptown/Conduit-coding-test/core/speechtotext"
)

// turnAccumulator owns the pending turn and the conversation state. Both
// are only touched under mu, so accepting a word and closing a turn cannot
// interleave.
type turnAccumulator struct {
	mu    sync.Mutex
	turn  pendingTurn
	state conversationState

	threshold time.Duration
	metrics   *metrics.Metrics

	updateSignal chan struct{}
}

func newTurnAccumulator(threshold time.Duration, m *metrics.Metrics) *turnAccumulator {
	return &turnAccumulator{
		threshold:    threshold,
		metrics:      m,
		updateSignal: make(chan struct{}, 1),
	}
}

// offer adds word to the pending turn when the conversation is listening
// and the word arrived after the suppression window.
func (a *turnAccumulator) offer(word speechtotext.Word, at time.Time) bool {
	if word.IsBlank() {
		a.metrics.WordDropped(metrics.DropReasonBlank)
		return false
	}

	a.mu.Lock()
	reason := ""
	switch {
	case a.state.phase != PhaseListening:
		reason = metrics.DropReasonBusy
	case at.Before(a.state.suppressUntil):
		reason = metrics.DropReasonSuppressed
	default:
		a.turn.add(word, at)
	}
	a.mu.Unlock()

	if reason != "" {
		a.metrics.WordDropped(reason)
		return false
	}

	a.metrics.WordAccepted()
	a.signal()
	return true
}

func (a *turnAccumulator) eligibleLocked(now time.Time) bool {
	return !a.turn.isEmpty() && now.Sub(a.turn.lastWordAt) > a.threshold
}

// dispatch closes the pending turn if it has been silent for longer than
// the threshold, moving the conversation to PhaseDispatched.
func (a *turnAccumulator) dispatch(now time.Time) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state.phase != PhaseListening || !a.eligibleLocked(now) {
		return "", false
	}

	text := a.turn.text()
	a.turn.reset()
	a.state.phase = PhaseDispatched
	return text, true
}

// untilEligible reports how long until the pending turn may be dispatched.
// It reports false when there is nothing pending.
func (a *turnAccumulator) untilEligible(now time.Time) (time.Duration, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.turn.isEmpty() {
		return 0, false
	}
	return max(a.turn.lastWordAt.Add(a.threshold).Sub(now), 0), true
}

func (a *turnAccumulator) startSpeaking() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state.phase != PhaseDispatched {
		return false
	}
	a.state.phase = PhaseSpeaking
	return true
}

// resumeListening ends the reply and ignores words that arrive before until.
func (a *turnAccumulator) resumeListening(until time.Time) {
	a.mu.Lock()
	a.state.phase = PhaseListening
	a.state.suppressUntil = until
	a.mu.Unlock()
}

func (a *turnAccumulator) phase() Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.phase
}

func (a *turnAccumulator) signal() {
	select {
	case a.updateSignal <- struct{}{}:
	default:
	}
}

func (a *turnAccumulator) updates() <-chan struct{} { return a.updateSignal }
