package orchestration

import (
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/JayTiptown/Conduit-coding-test/core/timeline"
)

type blockingTimeline struct {
	release chan struct{}

	mu    sync.Mutex
	texts []string
}

func (b *blockingTimeline) Record(text string, _, _, _ float64, _ timeline.Speaker) error {
	<-b.release

	b.mu.Lock()
	defer b.mu.Unlock()
	b.texts = append(b.texts, text)
	return nil
}

func (b *blockingTimeline) recorded() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.texts)
}

func TestTimelineWriterDoesNotWaitForRecord(t *testing.T) {
	slow := &blockingTimeline{release: make(chan struct{})}
	w := newTimelineWriter(slow)
	go w.run()

	queued := make(chan struct{})
	go func() {
		defer close(queued)
		w.record(timelineEntry{text: "hello", speaker: timeline.SpeakerUser})
		w.record(timelineEntry{text: "there", speaker: timeline.SpeakerUser})
		w.record(timelineEntry{text: "Hi.", speaker: timeline.SpeakerAgent})
	}()

	select {
	case <-queued:
	case <-time.After(time.Second):
		t.Fatalf("expected record to return while the timeline is busy")
	}

	close(slow.release)
	w.close()

	if got := slow.recorded(); !slices.Equal(got, []string{"hello", "there", "Hi."}) {
		t.Fatalf("expected entries in queue order, got %q", got)
	}
}

func TestTimelineWriterDropsEntriesAfterClose(t *testing.T) {
	sink := &timeline.MemorySink{}
	w := newTimelineWriter(timeline.NewLogger(sink))
	go w.run()

	w.record(timelineEntry{text: "a", start: 0, end: 1, speaker: timeline.SpeakerUser})
	w.close()
	w.close()
	w.record(timelineEntry{text: "b", start: 1, end: 2, speaker: timeline.SpeakerUser})

	if got := sink.Text(); got != "a" {
		t.Fatalf("expected only the entry queued before close, got %q", got)
	}
}

func TestNilTimelineWriterIsNoop(t *testing.T) {
	var w *timelineWriter
	w.record(timelineEntry{text: "ignored"})
	w.close()
}
