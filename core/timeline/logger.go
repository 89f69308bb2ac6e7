// Package timeline keeps a character-level record of everything spoken in a
// conversation, by both the user and the agent.
package timeline

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"
)

type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

const (
	impliedSpaceNote = "implied space"
	synthesizedNote  = "synthesized"
)

// Event is a single timeline entry. Unit is one character, or a single space
// bridging the gap between two records.
type Event struct {
	Unit    string
	Start   float64
	End     float64
	Speaker Speaker
	Note    string
}

// Sink persists events. Append is called once per event, in emission order.
type Sink interface {
	Append(Event) error
}

type Logger struct {
	mu sync.Mutex

	sink Sink

	hasPrevious bool
	previousEnd float64
}

func NewLogger(sink Sink) *Logger {
	return &Logger{sink: sink}
}

// Record splits text into characters spread evenly over [start, end) and
// appends one event per character. A gap after the previous record is
// bridged with an implied space first.
func (l *Logger) Record(text string, start, end, confidence float64, speaker Speaker) error {
	if text == "" {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.hasPrevious && l.previousEnd < start {
		if err := l.sink.Append(Event{
			Unit:    " ",
			Start:   l.previousEnd,
			End:     start,
			Speaker: speaker,
			Note:    impliedSpaceNote,
		}); err != nil {
			return fmt.Errorf("failed to append implied space: %w", err)
		}
	}

	note := synthesizedNote
	if speaker == SpeakerUser {
		note = fmt.Sprintf("confidence: %.2f", confidence)
	}

	charCount := utf8.RuneCountInString(text)
	charDuration := (end - start) / float64(charCount)

	current := start
	for i, char := range []rune(text) {
		charEnd := current + charDuration
		if i == charCount-1 {
			charEnd = end
		}

		if err := l.sink.Append(Event{
			Unit:    string(char),
			Start:   current,
			End:     charEnd,
			Speaker: speaker,
			Note:    note,
		}); err != nil {
			return fmt.Errorf("failed to append %q: %w", char, err)
		}
		current = charEnd
	}

	l.hasPrevious = true
	l.previousEnd = end
	return nil
}

// MemorySink keeps events in memory. It is safe for concurrent use.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func (s *MemorySink) Append(event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := make([]Event, len(s.events))
	copy(events, s.events)
	return events
}

// Text joins all recorded units, which reads as the merged transcript.
func (s *MemorySink) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	for _, event := range s.events {
		b.WriteString(event.Unit)
	}
	return b.String()
}
