package orchestration

import (
	"sync"

	"github.com/JayTiptown/Conduit-coding-test/core/timeline"
)

const timelineQueueSize = 1024

type timelineEntry struct {
	text       string
	start, end float64
	confidence float64
	speaker    timeline.Speaker
}

// timelineWriter records timeline entries on its own goroutine so the
// recognizer callback never waits on file I/O. Entries are written in the
// order they were queued.
type timelineWriter struct {
	timeline Timeline
	entries  chan timelineEntry
	done     chan struct{}

	mu     sync.RWMutex
	closed bool
}

func newTimelineWriter(t Timeline) *timelineWriter {
	return &timelineWriter{
		timeline: t,
		entries:  make(chan timelineEntry, timelineQueueSize),
		done:     make(chan struct{}),
	}
}

func (w *timelineWriter) run() {
	defer close(w.done)
	for entry := range w.entries {
		if err := w.timeline.Record(entry.text, entry.start, entry.end, entry.confidence, entry.speaker); err != nil {
			logger.Warn("Failed to record timeline entry", "speaker", entry.speaker, "error", err)
		}
	}
}

// record queues entry. Entries queued after close are discarded.
func (w *timelineWriter) record(entry timelineEntry) {
	if w == nil {
		return
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		logger.Debug("Timeline closed, dropping entry", "speaker", entry.speaker)
		return
	}
	w.entries <- entry
}

// close stops accepting entries and waits for the queued ones to be written.
func (w *timelineWriter) close() {
	if w == nil {
		return
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.entries)
	w.mu.Unlock()

	<-w.done
}
