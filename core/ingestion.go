package orchestration

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/JayTiptown/Conduit-coding-test/core/metrics"
	"github.com/JayTiptown/Conduit-coding-test/core/speechtotext"
)

const (
	defaultIngestionQueueSize   = 64
	defaultIngestionIdleTimeout = 250 * time.Millisecond
)

// ingestionBridge moves captured frames from the device callback to the
// recognizer. The capture side never blocks: when the queue is full the
// frame is dropped.
type ingestionBridge struct {
	frames      chan []byte
	idleTimeout time.Duration
	send        func(audio []byte) error
	metrics     *metrics.Metrics

	dropped atomic.Int64
	stopped atomic.Bool
}

func newIngestionBridge(queueSize int, idleTimeout time.Duration, send func([]byte) error, m *metrics.Metrics) *ingestionBridge {
	if queueSize <= 0 {
		queueSize = defaultIngestionQueueSize
	}
	if idleTimeout <= 0 {
		idleTimeout = defaultIngestionIdleTimeout
	}

	return &ingestionBridge{
		frames:      make(chan []byte, queueSize),
		idleTimeout: idleTimeout,
		send:        send,
		metrics:     m,
	}
}

// push queues a copy of frame, since capture devices reuse their buffers.
func (b *ingestionBridge) push(frame []byte) bool {
	if len(frame) == 0 || b.stopped.Load() {
		return false
	}

	select {
	case b.frames <- append([]byte(nil), frame...):
		return true
	default:
		b.dropped.Add(1)
		b.metrics.FrameDropped()
		return false
	}
}

// run forwards queued frames until stop is called or ctx is done. A stop is
// noticed at the latest one idle timeout after it was requested.
func (b *ingestionBridge) run(ctx context.Context) error {
	timer := time.NewTimer(b.idleTimeout)
	defer timer.Stop()

	for !b.stopped.Load() {
		select {
		case <-ctx.Done():
			return nil
		case frame := <-b.frames:
			if err := b.send(frame); err != nil && !errors.Is(err, speechtotext.ErrNotConnected) {
				logger.Warn("Failed to forward audio to speech-to-text", "error", err)
			}
		case <-timer.C:
		}

		timer.Reset(b.idleTimeout)
	}
	return nil
}

func (b *ingestionBridge) stop() { b.stopped.Store(true) }

func (b *ingestionBridge) droppedFrames() int64 { return b.dropped.Load() }
