package orchestration

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JayTiptown/Conduit-coding-test/core/audio"
	"github.com/JayTiptown/Conduit-coding-test/core/llms"
	"github.com/JayTiptown/Conduit-coding-test/core/metrics"
	"github.com/JayTiptown/Conduit-coding-test/core/sentences"
	"github.com/JayTiptown/Conduit-coding-test/core/speechtotext"
	"github.com/JayTiptown/Conduit-coding-test/core/timeline"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrAlreadyStarted            = errors.New("orchestrator already started")
	ErrClosed                    = errors.New("orchestrator closed")
	ErrJoinTimeout               = errors.New("timed out waiting for the orchestrator to stop")
	ErrSpeechToTextNotConfigured = errors.New("speech-to-text client not configured")
	ErrLLMNotConfigured          = errors.New("streaming llm not configured")
	ErrTextToSpeechNotConfigured = errors.New("text-to-speech client not configured")
	ErrAudioOutputNotConfigured  = errors.New("audio output not configured")
)

// Orchestrator runs one spoken conversation: it closes user turns after a
// silence, generates a reply and speaks it sentence by sentence. Only one
// reply is in flight at a time and words heard meanwhile are discarded.
type Orchestrator struct {
	speechToText SpeechToText
	audioInput   AudioInput
	audioOutput  AudioOutput
	llm          LLMWithStream
	textToSpeech TextToSpeech
	timeline     Timeline
	metrics      *metrics.Metrics

	silenceThreshold     time.Duration
	deafPeriod           time.Duration
	preSpeechPause       time.Duration
	pollInterval         time.Duration
	joinTimeout          time.Duration
	ingestionQueueSize   int
	ingestionIdleTimeout time.Duration
	voice                string
	systemPrompt         string
	transcriptionOptions []speechtotext.TranscriptionOption

	now            func() time.Time
	clock          sessionClock
	accumulator    *turnAccumulator
	ingestion      *ingestionBridge
	timelineWriter *timelineWriter
	history        conversationHistory

	orchestrateOptions OrchestrateOptions

	started   atomic.Bool
	stopping  atomic.Bool
	closeOnce sync.Once
	closeErr  error

	cancelRun    context.CancelFunc
	stopCapture  context.CancelFunc
	done         chan struct{}
	ingestDone   chan struct{}
	cancelHookMu sync.Mutex
	cancelHook   chan struct{}
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		silenceThreshold: DefaultSilenceThreshold,
		deafPeriod:       DefaultDeafPeriod,
		preSpeechPause:   DefaultPreSpeechPause,
		pollInterval:     DefaultPollInterval,
		joinTimeout:      DefaultJoinTimeout,
		history:          conversationHistory{limit: DefaultHistoryLimit},
		now:              time.Now,
		done:             make(chan struct{}),
		ingestDone:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(o)
	}

	o.accumulator = newTurnAccumulator(o.silenceThreshold, o.metrics)
	o.ingestion = newIngestionBridge(o.ingestionQueueSize, o.ingestionIdleTimeout, o.forwardAudio, o.metrics)
	return o
}

// Orchestrate connects the recognizer, starts capture and runs the
// conversation in the background. It returns once everything is running.
//
// Cancelling ctx has the same effect as calling Close. Replies in flight
// are not cut off by ctx; Close decides how long they may take.
func (o *Orchestrator) Orchestrate(ctx context.Context, opts ...OrchestrateOption) error {
	if o.stopping.Load() {
		return ErrClosed
	}
	if err := o.validate(); err != nil {
		return err
	}
	if !o.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	o.orchestrateOptions = OrchestrateOptions{}
	for _, opt := range opts {
		opt(&o.orchestrateOptions)
	}

	runCtx, cancelRun := context.WithCancel(context.WithoutCancel(ctx))
	o.cancelRun = cancelRun

	encodingInfo := audio.GetDefaultEncodingInfo()
	if o.audioInput != nil {
		encodingInfo = o.audioInput.EncodingInfo()
	}

	if o.timeline != nil {
		o.timelineWriter = newTimelineWriter(o.timeline)
		go o.timelineWriter.run()
	}

	transcriptionOptions := append(slices.Clone(o.transcriptionOptions),
		speechtotext.WithEncodingInfo(encodingInfo),
		speechtotext.WithWordCallback(o.handleWord),
		speechtotext.WithErrorCallback(o.handleRecognizerError),
	)

	o.clock.start(o.now())
	if err := o.speechToText.Transcribe(runCtx, transcriptionOptions...); err != nil {
		cancelRun()
		close(o.done)
		close(o.ingestDone)
		o.timelineWriter.close()
		err = fmt.Errorf("failed to start transcription: %w", err)
		span := trace.SpanFromContext(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	go func() {
		defer close(o.ingestDone)
		if err := panicSafeNamedWorker("ingestion", o.ingestion.run)(runCtx); err != nil {
			logger.Error("Audio ingestion stopped", "error", err)
		}
	}()

	if o.audioInput != nil {
		captureCtx, stopCapture := context.WithCancel(runCtx)
		o.stopCapture = stopCapture
		go func() {
			if err := o.audioInput.Stream(captureCtx, func(frame []byte) { o.ingestion.push(frame) }); err != nil {
				logger.Error("Audio capture stopped", "error", err)
			}
		}()
	}

	o.phaseChanged(PhaseListening)
	go func() {
		defer close(o.done)
		if err := panicSafeNamedWorker("orchestration", o.run)(runCtx); err != nil {
			logger.Error("Orchestration stopped", "error", err)
		}
	}()

	o.cancelHookMu.Lock()
	o.cancelHook = withContextCancelHook(ctx, func() {
		if err := o.Close(); err != nil {
			logger.Warn("Failed to close orchestrator", "error", err)
		}
	})
	o.cancelHookMu.Unlock()

	return nil
}

func (o *Orchestrator) validate() error {
	var errs error
	if o.speechToText == nil {
		errs = errors.Join(errs, ErrSpeechToTextNotConfigured)
	}
	if o.llm == nil {
		errs = errors.Join(errs, ErrLLMNotConfigured)
	}
	if o.textToSpeech == nil {
		errs = errors.Join(errs, ErrTextToSpeechNotConfigured)
	}
	if o.audioOutput == nil {
		errs = errors.Join(errs, ErrAudioOutputNotConfigured)
	}
	return errs
}

// Close stops capture and transcription, lets the sentence being played
// finish and waits for the conversation to wind down. If that takes longer
// than the join timeout the reply is cancelled and ErrJoinTimeout returned.
func (o *Orchestrator) Close() error {
	o.closeOnce.Do(func() {
		o.stopping.Store(true)
		if !o.started.Load() {
			return
		}

		o.cancelHookMu.Lock()
		if o.cancelHook != nil {
			close(o.cancelHook)
			o.cancelHook = nil
		}
		o.cancelHookMu.Unlock()

		var errs error
		if o.stopCapture != nil {
			o.stopCapture()
		}
		if err := o.speechToText.Close(); err != nil {
			errs = errors.Join(errs, fmt.Errorf("failed to close speech-to-text client: %w", err))
		}
		o.ingestion.stop()
		o.accumulator.signal()

		deadline := time.NewTimer(o.joinTimeout)
		defer deadline.Stop()
	join:
		for _, done := range []chan struct{}{o.done, o.ingestDone} {
			select {
			case <-done:
			case <-deadline.C:
				errs = errors.Join(ErrJoinTimeout, errs)
				break join
			}
		}
		o.cancelRun()
		o.timelineWriter.close()

		if o.audioInput != nil {
			o.audioInput.Close()
		}

		if dropped := o.ingestion.droppedFrames(); dropped > 0 {
			logger.Info("Audio frames dropped during the session", "count", dropped)
		}
		o.closeErr = errs
	})

	return o.closeErr
}

// Done is closed once the conversation loop has exited.
func (o *Orchestrator) Done() <-chan struct{} { return o.done }

// Phase reports where the conversation currently is.
func (o *Orchestrator) Phase() Phase { return o.accumulator.phase() }

// SendAudio queues a captured frame for the recognizer without blocking.
// It reports false if the frame was dropped.
func (o *Orchestrator) SendAudio(frame []byte) bool { return o.ingestion.push(frame) }

func (o *Orchestrator) forwardAudio(frame []byte) error {
	return o.speechToText.SendAudio(frame)
}

func (o *Orchestrator) handleWord(word speechtotext.Word) {
	if !o.accumulator.offer(word, o.now()) {
		return
	}

	o.timelineWriter.record(timelineEntry{
		text:       strings.TrimSpace(word.Text),
		start:      word.Start,
		end:        word.End,
		confidence: word.Confidence,
		speaker:    timeline.SpeakerUser,
	})
	if o.orchestrateOptions.onWord != nil {
		o.orchestrateOptions.onWord(word)
	}
}

func (o *Orchestrator) handleRecognizerError(err error) {
	logger.Error("Speech-to-text failed", "error", err)
	if o.orchestrateOptions.onRecognizerError != nil {
		o.orchestrateOptions.onRecognizerError(err)
	}
}

func (o *Orchestrator) phaseChanged(phase Phase) {
	o.metrics.SetPhase(phase.String(), knownPhases...)
	if o.orchestrateOptions.onPhaseChanged != nil {
		o.orchestrateOptions.onPhaseChanged(phase)
	}
}

// run closes turns as they become eligible and answers them one at a time.
func (o *Orchestrator) run(ctx context.Context) error {
	timer := time.NewTimer(o.pollInterval)
	defer timer.Stop()

	for !o.stopping.Load() {
		now := o.now()
		if text, ok := o.accumulator.dispatch(now); ok {
			o.phaseChanged(PhaseDispatched)
			o.processTurn(ctx, text, now)
			continue
		}

		wait := o.pollInterval
		if untilEligible, ok := o.accumulator.untilEligible(now); ok {
			// Eligibility is strict, so wake just after the threshold.
			wait = min(wait, untilEligible+time.Millisecond)
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return nil
		case <-o.accumulator.updates():
		case <-timer.C:
		}
	}
	return nil
}

func (o *Orchestrator) processTurn(ctx context.Context, text string, dispatchedAt time.Time) {
	turnID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "process turn")
	defer span.End()
	span.SetAttributes(
		attribute.String("turn.id", turnID),
		attribute.String("turn.text", text),
	)

	o.metrics.TurnDispatched()
	logger.Info("User turn closed", "turn_id", turnID, "text", text)
	if o.orchestrateOptions.onTurn != nil {
		o.orchestrateOptions.onTurn(turnID, text)
	}

	history := o.history.snapshot()
	reply := o.respond(ctx, turnID, text, history, dispatchedAt)

	o.history.append(llms.UserMessage(text))
	if reply != "" {
		o.history.append(llms.AssistantMessage(reply))
	}

	o.accumulator.resumeListening(o.now().Add(o.deafPeriod))
	o.phaseChanged(PhaseListening)
}

// respond speaks the reply to prompt and returns the text that was
// generated for it.
func (o *Orchestrator) respond(ctx context.Context, turnID, prompt string, history []llms.Message, dispatchedAt time.Time) string {
	var reply []string
	firstAudio := sync.OnceFunc(func() {
		o.metrics.ObserveFirstAudio(o.now().Sub(dispatchedAt))
	})

	for sentence := range sentences.Segment(o.responseFragments(ctx, prompt, history)) {
		if o.stopping.Load() {
			break
		}

		if len(reply) == 0 {
			if err := sleepContext(ctx, o.preSpeechPause); err != nil || o.stopping.Load() {
				break
			}
			if o.accumulator.startSpeaking() {
				o.phaseChanged(PhaseSpeaking)
			}
		}

		reply = append(reply, strings.TrimSpace(sentence))
		o.speakSentence(ctx, turnID, sentence, firstAudio)
	}

	return strings.Join(reply, " ")
}
