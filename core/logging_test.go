package orchestration

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JayTiptown/Conduit-coding-test/internal/telemetry"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var (
	capturedLogsOnce sync.Once
	capturedLogs     = &syncBuffer{}
	capturedLogsErr  error
)

// captureLogs routes the package logger into a shared buffer. The global
// provider can only be delegated once, so every test shares it.
func captureLogs(t *testing.T) *syncBuffer {
	t.Helper()
	capturedLogsOnce.Do(func() {
		_, capturedLogsErr = telemetry.InstallLoggerProvider(capturedLogs, "debug")
	})
	if capturedLogsErr != nil {
		t.Fatalf("failed to install logger provider: %v", capturedLogsErr)
	}
	return capturedLogs
}

func TestSkippedSentenceIsLogged(t *testing.T) {
	logs := captureLogs(t)

	rig := newTestRig([]string{"Fine. Broken. Done."})
	rig.tts.failOn = "Broken"
	defer rig.orchestrator.Close()

	if err := rig.orchestrator.Orchestrate(context.Background()); err != nil {
		t.Fatalf("expected orchestrate to start, got %v", err)
	}
	rig.stt.say("check")

	waitForCondition(t, 2*time.Second, "turn to finish", func() bool {
		return len(rig.output.playedSentences()) == 2 && rig.orchestrator.Phase() == PhaseListening
	})

	out := logs.String()
	if !strings.Contains(out, "Skipping sentence") || !strings.Contains(out, "synthesis failed") {
		t.Fatalf("expected the skipped sentence to be logged, got %q", out)
	}
}
