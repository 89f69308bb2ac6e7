package orchestration

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JayTiptown/Conduit-coding-test/core/audio"
	"github.com/JayTiptown/Conduit-coding-test/core/llms"
	"github.com/JayTiptown/Conduit-coding-test/core/speechtotext"
	"github.com/JayTiptown/Conduit-coding-test/core/texttospeech"
	"github.com/JayTiptown/Conduit-coding-test/core/timeline"
)

func waitForCondition(t *testing.T, timeout time.Duration, description string, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %s", description)
}

type fakeSpeechToText struct {
	mu            sync.Mutex
	options       speechtotext.TranscriptionOptions
	audio         [][]byte
	closed        bool
	transcribeErr error
}

func (f *fakeSpeechToText) Transcribe(_ context.Context, opts ...speechtotext.TranscriptionOption) error {
	if f.transcribeErr != nil {
		return f.transcribeErr
	}

	options := speechtotext.DefaultTranscriptionOptions()
	for _, opt := range opts {
		opt(&options)
	}

	f.mu.Lock()
	f.options = options
	f.mu.Unlock()
	return nil
}

func (f *fakeSpeechToText) SendAudio(audio []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return speechtotext.ErrNotConnected
	}
	f.audio = append(f.audio, audio)
	return nil
}

func (f *fakeSpeechToText) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSpeechToText) say(words ...string) {
	f.mu.Lock()
	callback := f.options.WordCallback
	f.mu.Unlock()

	for i, text := range words {
		callback(speechtotext.Word{Text: text, Start: float64(i), End: float64(i) + 0.5, Confidence: 0.9})
	}
}

func (f *fakeSpeechToText) fail(err error) {
	f.mu.Lock()
	callback := f.options.ErrorCallback
	f.mu.Unlock()
	callback(err)
}

func (f *fakeSpeechToText) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type contentChunk string

func (c contentChunk) FinishReason() *string { return nil }
func (c contentChunk) Content() string       { return string(c) }

type scriptedStream struct {
	fragments []string
	err       error
}

func (s scriptedStream) Chunks(context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		for _, fragment := range s.fragments {
			if !yield(contentChunk(fragment), nil) {
				return
			}
		}
		if s.err != nil {
			yield(nil, s.err)
		}
	}
}

type scriptedLLM struct {
	mu        sync.Mutex
	fragments []string
	err       error
	prompts   []string
	histories [][]llms.Message
	system    []string
}

func (l *scriptedLLM) PromptWithStream(_ context.Context, prompt string, opts ...llms.StreamingPromptOption) llms.Stream {
	options := llms.StreamingPromptOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.prompts = append(l.prompts, prompt)
	l.histories = append(l.histories, options.History)
	l.system = append(l.system, options.Instructions)
	return scriptedStream{fragments: l.fragments, err: l.err}
}

func (l *scriptedLLM) promptCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prompts)
}

type fakeTextToSpeech struct {
	mu     sync.Mutex
	failOn string
	calls  []string
	voices []string
}

func (f *fakeTextToSpeech) Synthesize(_ context.Context, text string, opts ...texttospeech.SynthesisOption) (*texttospeech.Speech, error) {
	options := texttospeech.ApplyOptions(opts...)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	f.voices = append(f.voices, options.Voice)
	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return nil, errors.New("synthesis failed")
	}
	return &texttospeech.Speech{Audio: []byte(text), SampleRate: 24000}, nil
}

type fakeAudioOutput struct {
	mu        sync.Mutex
	delay     time.Duration
	played    []string
	startedAt []time.Time
	started   chan struct{}
}

func (f *fakeAudioOutput) Play(ctx context.Context, pcm []byte, sampleRate int) error {
	f.mu.Lock()
	f.startedAt = append(f.startedAt, time.Now())
	f.mu.Unlock()

	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if err := sleepContext(ctx, f.delay); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.played = append(f.played, string(pcm))
	return nil
}

func (f *fakeAudioOutput) playStarts() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.startedAt)
}

func (f *fakeAudioOutput) playedSentences() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.played)
}

type fakeAudioInput struct {
	frames [][]byte
	closed chan struct{}
}

func (f *fakeAudioInput) EncodingInfo() audio.EncodingInfo { return audio.GetDefaultEncodingInfo() }

func (f *fakeAudioInput) Stream(ctx context.Context, onAudio func(audio []byte)) error {
	for _, frame := range f.frames {
		onAudio(frame)
	}
	<-ctx.Done()
	return nil
}

func (f *fakeAudioInput) Close() { close(f.closed) }

type phaseRecorder struct {
	mu     sync.Mutex
	phases []Phase
}

func (r *phaseRecorder) record(phase Phase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases = append(r.phases, phase)
}

func (r *phaseRecorder) snapshot() []Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.phases)
}

type testRig struct {
	orchestrator *Orchestrator
	stt          *fakeSpeechToText
	llm          *scriptedLLM
	tts          *fakeTextToSpeech
	output       *fakeAudioOutput
	sink         *timeline.MemorySink
}

func newTestRig(fragments []string, opts ...OrchestratorOption) *testRig {
	rig := &testRig{
		stt:    &fakeSpeechToText{},
		llm:    &scriptedLLM{fragments: fragments},
		tts:    &fakeTextToSpeech{},
		output: &fakeAudioOutput{},
		sink:   &timeline.MemorySink{},
	}

	base := []OrchestratorOption{
		WithSpeechToTextClient(rig.stt),
		WithStreamingLLM(rig.llm),
		WithTextToSpeechClient(rig.tts),
		WithAudioOutput(rig.output),
		WithTimeline(timeline.NewLogger(rig.sink)),
		WithSilenceThreshold(50 * time.Millisecond),
		WithDeafPeriod(0),
		WithPreSpeechPause(0),
		WithPollInterval(10 * time.Millisecond),
		WithJoinTimeout(time.Second),
	}
	rig.orchestrator = NewOrchestrator(append(base, opts...)...)
	return rig
}

func TestOrchestrateAnswersClosedTurnSentenceBySentence(t *testing.T) {
	rig := newTestRig([]string{"Hello ", "there. How are", " you?"}, WithVoice("calm"))
	defer rig.orchestrator.Close()

	phases := &phaseRecorder{}
	var turnsMu sync.Mutex
	var turns, spoken []string
	err := rig.orchestrator.Orchestrate(context.Background(),
		WithPhaseChangedCallback(phases.record),
		WithTurnCallback(func(_ string, text string) {
			turnsMu.Lock()
			defer turnsMu.Unlock()
			turns = append(turns, text)
		}),
		WithSentenceCallback(func(_ string, sentence string) {
			turnsMu.Lock()
			defer turnsMu.Unlock()
			spoken = append(spoken, sentence)
		}),
	)
	if err != nil {
		t.Fatalf("expected orchestrate to start, got %v", err)
	}

	rig.stt.say("hi", "agent")

	waitForCondition(t, 2*time.Second, "reply to be played", func() bool {
		return len(phases.snapshot()) == 4
	})

	if played := rig.output.playedSentences(); !slices.Equal(played, []string{"Hello there. ", "How are you?"}) {
		t.Fatalf("unexpected played sentences %q", played)
	}
	rig.llm.mu.Lock()
	if rig.llm.prompts[0] != "hi agent" {
		t.Fatalf("expected joined turn text, got %q", rig.llm.prompts[0])
	}
	rig.llm.mu.Unlock()

	turnsMu.Lock()
	if !slices.Equal(turns, []string{"hi agent"}) || !slices.Equal(spoken, []string{"Hello there.", "How are you?"}) {
		t.Fatalf("unexpected callbacks: turns %q, sentences %q", turns, spoken)
	}
	turnsMu.Unlock()

	rig.tts.mu.Lock()
	if !slices.Equal(rig.tts.voices, []string{"calm", "calm"}) {
		t.Fatalf("expected voice to be passed to synthesis, got %q", rig.tts.voices)
	}
	rig.tts.mu.Unlock()

	expectedPhases := []Phase{PhaseListening, PhaseDispatched, PhaseSpeaking, PhaseListening}
	if got := phases.snapshot(); !slices.Equal(got, expectedPhases) {
		t.Fatalf("expected phases %v, got %v", expectedPhases, got)
	}

	history := rig.orchestrator.History()
	if len(history) != 2 || history[0] != llms.UserMessage("hi agent") || history[1] != llms.AssistantMessage("Hello there. How are you?") {
		t.Fatalf("unexpected history %+v", history)
	}

	if err := rig.orchestrator.Close(); err != nil {
		t.Fatalf("expected clean close, got %v", err)
	}
	events := rig.sink.Events()
	var agentText strings.Builder
	for _, event := range events {
		if event.Speaker == timeline.SpeakerAgent && event.Note == "synthesized" {
			agentText.WriteString(event.Unit)
		}
	}
	if agentText.String() != "Hello there.How are you?" {
		t.Fatalf("expected agent sentences on the timeline, got %q", agentText.String())
	}
	if !strings.HasPrefix(rig.sink.Text(), "hi agent") {
		t.Fatalf("expected user words first on the timeline, got %q", rig.sink.Text())
	}
}

func TestOrchestratePassesHistoryToNextTurn(t *testing.T) {
	rig := newTestRig([]string{"Sure."}, WithSystemPrompt("be brief"))
	defer rig.orchestrator.Close()

	if err := rig.orchestrator.Orchestrate(context.Background()); err != nil {
		t.Fatalf("expected orchestrate to start, got %v", err)
	}

	rig.stt.say("first")
	waitForCondition(t, 2*time.Second, "first reply", func() bool {
		return len(rig.output.playedSentences()) == 1 && rig.orchestrator.Phase() == PhaseListening
	})
	rig.stt.say("second")
	waitForCondition(t, 2*time.Second, "second reply", func() bool {
		return len(rig.output.playedSentences()) == 2 && rig.orchestrator.Phase() == PhaseListening
	})

	rig.llm.mu.Lock()
	defer rig.llm.mu.Unlock()
	if len(rig.llm.histories[0]) != 0 {
		t.Fatalf("expected empty history for the first turn, got %+v", rig.llm.histories[0])
	}
	expected := []llms.Message{llms.UserMessage("first"), llms.AssistantMessage("Sure.")}
	if !slices.Equal(rig.llm.histories[1], expected) {
		t.Fatalf("expected %+v, got %+v", expected, rig.llm.histories[1])
	}
	if rig.llm.system[0] != "be brief" {
		t.Fatalf("expected system prompt, got %q", rig.llm.system[0])
	}
}

func TestOrchestrateSpeaksFallbackWhenGenerationFails(t *testing.T) {
	rig := newTestRig(nil)
	rig.llm.err = errors.New("rate limited")
	defer rig.orchestrator.Close()

	if err := rig.orchestrator.Orchestrate(context.Background()); err != nil {
		t.Fatalf("expected orchestrate to start, got %v", err)
	}
	rig.stt.say("hello")

	waitForCondition(t, 2*time.Second, "fallback to be played", func() bool {
		return len(rig.output.playedSentences()) == 1
	})
	if played := rig.output.playedSentences()[0]; played != fallbackResponse {
		t.Fatalf("expected fallback reply, got %q", played)
	}
}

func TestOrchestrateSkipsSentencesThatFailToSynthesize(t *testing.T) {
	rig := newTestRig([]string{"One. Two. Three."})
	rig.tts.failOn = "Two"
	defer rig.orchestrator.Close()

	if err := rig.orchestrator.Orchestrate(context.Background()); err != nil {
		t.Fatalf("expected orchestrate to start, got %v", err)
	}
	rig.stt.say("count")

	waitForCondition(t, 2*time.Second, "turn to finish", func() bool {
		return rig.llm.promptCount() == 1 && rig.orchestrator.Phase() == PhaseListening && len(rig.output.playedSentences()) == 2
	})
	if played := rig.output.playedSentences(); !slices.Equal(played, []string{"One. ", "Three."}) {
		t.Fatalf("expected failed sentence to be skipped, got %q", played)
	}
}

func TestOrchestrateReturnsToListeningWhenReplyIsEmpty(t *testing.T) {
	rig := newTestRig([]string{"   "})
	defer rig.orchestrator.Close()

	phases := &phaseRecorder{}
	if err := rig.orchestrator.Orchestrate(context.Background(), WithPhaseChangedCallback(phases.record)); err != nil {
		t.Fatalf("expected orchestrate to start, got %v", err)
	}
	rig.stt.say("hmm")

	waitForCondition(t, 2*time.Second, "turn to finish", func() bool {
		return len(phases.snapshot()) == 3
	})
	expected := []Phase{PhaseListening, PhaseDispatched, PhaseListening}
	if got := phases.snapshot(); !slices.Equal(got, expected) {
		t.Fatalf("expected phases %v, got %v", expected, got)
	}
	if played := rig.output.playedSentences(); len(played) != 0 {
		t.Fatalf("expected nothing to be played, got %q", played)
	}
}

func TestOrchestrateDropsWordsWhileReplying(t *testing.T) {
	rig := newTestRig([]string{"Long answer."}, WithDeafPeriod(time.Hour))
	rig.output.delay = 100 * time.Millisecond
	rig.output.started = make(chan struct{}, 1)
	defer rig.orchestrator.Close()

	var wordsMu sync.Mutex
	var words []string
	if err := rig.orchestrator.Orchestrate(context.Background(), WithWordCallback(func(word speechtotext.Word) {
		wordsMu.Lock()
		defer wordsMu.Unlock()
		words = append(words, word.Text)
	})); err != nil {
		t.Fatalf("expected orchestrate to start, got %v", err)
	}

	rig.stt.say("question")
	select {
	case <-rig.output.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for playback")
	}
	rig.stt.say("interruption")

	waitForCondition(t, 2*time.Second, "reply to finish", func() bool {
		return rig.orchestrator.Phase() == PhaseListening
	})
	rig.stt.say("echo")

	wordsMu.Lock()
	defer wordsMu.Unlock()
	if !slices.Equal(words, []string{"question"}) {
		t.Fatalf("expected only the first word to be accepted, got %q", words)
	}
	if rig.llm.promptCount() != 1 {
		t.Fatalf("expected a single generation, got %d", rig.llm.promptCount())
	}
}

func TestOrchestrateForwardsCapturedAudio(t *testing.T) {
	input := &fakeAudioInput{frames: [][]byte{{1}, {2}, {3}}, closed: make(chan struct{})}
	rig := newTestRig(nil, WithAudioInput(input), WithIngestionQueue(8, 10*time.Millisecond))

	if err := rig.orchestrator.Orchestrate(context.Background()); err != nil {
		t.Fatalf("expected orchestrate to start, got %v", err)
	}

	waitForCondition(t, time.Second, "audio to reach the recognizer", func() bool {
		rig.stt.mu.Lock()
		defer rig.stt.mu.Unlock()
		return len(rig.stt.audio) == 3
	})

	if err := rig.orchestrator.Close(); err != nil {
		t.Fatalf("expected clean close, got %v", err)
	}
	select {
	case <-input.closed:
	default:
		t.Fatalf("expected audio input to be closed")
	}
	if !rig.stt.isClosed() {
		t.Fatalf("expected recognizer to be closed")
	}
}

func TestCloseLetsPlaybackFinish(t *testing.T) {
	rig := newTestRig([]string{"First. Second."})
	rig.output.delay = 150 * time.Millisecond
	rig.output.started = make(chan struct{}, 1)

	if err := rig.orchestrator.Orchestrate(context.Background()); err != nil {
		t.Fatalf("expected orchestrate to start, got %v", err)
	}
	rig.stt.say("go")

	select {
	case <-rig.output.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for playback")
	}

	if err := rig.orchestrator.Close(); err != nil {
		t.Fatalf("expected clean close, got %v", err)
	}
	if played := rig.output.playedSentences(); !slices.Equal(played, []string{"First. "}) {
		t.Fatalf("expected in-flight sentence to finish and no new one to start, got %q", played)
	}
	select {
	case <-rig.orchestrator.Done():
	default:
		t.Fatalf("expected orchestration loop to have exited")
	}
}

func TestCloseTimesOutAndCancelsPlayback(t *testing.T) {
	rig := newTestRig([]string{"Endless."}, WithJoinTimeout(50*time.Millisecond))
	rig.output.delay = time.Hour
	rig.output.started = make(chan struct{}, 1)

	if err := rig.orchestrator.Orchestrate(context.Background()); err != nil {
		t.Fatalf("expected orchestrate to start, got %v", err)
	}
	rig.stt.say("go")

	select {
	case <-rig.output.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for playback")
	}

	if err := rig.orchestrator.Close(); !errors.Is(err, ErrJoinTimeout) {
		t.Fatalf("expected join timeout, got %v", err)
	}
	select {
	case <-rig.orchestrator.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("expected cancelled playback to let the loop exit")
	}
}

func TestContextCancellationClosesOrchestrator(t *testing.T) {
	rig := newTestRig(nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := rig.orchestrator.Orchestrate(ctx); err != nil {
		t.Fatalf("expected orchestrate to start, got %v", err)
	}
	cancel()

	select {
	case <-rig.orchestrator.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("expected cancellation to stop the orchestrator")
	}
	waitForCondition(t, time.Second, "recognizer to be closed", rig.stt.isClosed)
}

func TestRecognizerErrorsReachCallback(t *testing.T) {
	rig := newTestRig(nil)
	defer rig.orchestrator.Close()

	reported := make(chan error, 1)
	if err := rig.orchestrator.Orchestrate(context.Background(), WithRecognizerErrorCallback(func(err error) {
		reported <- err
	})); err != nil {
		t.Fatalf("expected orchestrate to start, got %v", err)
	}

	rig.stt.fail(errors.New("socket closed"))
	select {
	case err := <-reported:
		if err.Error() != "socket closed" {
			t.Fatalf("unexpected error %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected recognizer error callback")
	}
}

func TestOrchestrateValidatesCollaborators(t *testing.T) {
	err := NewOrchestrator().Orchestrate(context.Background())
	for _, expected := range []error{ErrSpeechToTextNotConfigured, ErrLLMNotConfigured, ErrTextToSpeechNotConfigured, ErrAudioOutputNotConfigured} {
		if !errors.Is(err, expected) {
			t.Fatalf("expected %v in %v", expected, err)
		}
	}
}

func TestOrchestrateOnlyStartsOnce(t *testing.T) {
	rig := newTestRig(nil)
	defer rig.orchestrator.Close()

	if err := rig.orchestrator.Orchestrate(context.Background()); err != nil {
		t.Fatalf("expected orchestrate to start, got %v", err)
	}
	if err := rig.orchestrator.Orchestrate(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected already started error, got %v", err)
	}
}

func TestOrchestrateAfterCloseFails(t *testing.T) {
	rig := newTestRig(nil)
	if err := rig.orchestrator.Close(); err != nil {
		t.Fatalf("expected close before start to succeed, got %v", err)
	}
	if err := rig.orchestrator.Orchestrate(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
}

func TestOrchestrateReportsTranscriptionFailure(t *testing.T) {
	rig := newTestRig(nil)
	rig.stt.transcribeErr = errors.New("no api key")

	if err := rig.orchestrator.Orchestrate(context.Background()); err == nil || !strings.Contains(err.Error(), "no api key") {
		t.Fatalf("expected transcription error, got %v", err)
	}
	if err := rig.orchestrator.Close(); err != nil {
		t.Fatalf("expected close after failed start to succeed, got %v", err)
	}
}

func TestOrchestratePassesTranscriptionOptions(t *testing.T) {
	rig := newTestRig(nil, WithTranscriptionOptions(
		speechtotext.WithModel("nova-3"),
		speechtotext.WithLanguage("de"),
		speechtotext.WithWordCallback(nil),
	))
	defer rig.orchestrator.Close()

	if err := rig.orchestrator.Orchestrate(context.Background()); err != nil {
		t.Fatalf("expected orchestrate to start, got %v", err)
	}

	rig.stt.mu.Lock()
	options := rig.stt.options
	rig.stt.mu.Unlock()

	if options.Model != "nova-3" || options.Language != "de" {
		t.Fatalf("expected model and language to be passed through, got %q and %q", options.Model, options.Language)
	}
	if options.WordCallback == nil {
		t.Fatalf("expected the orchestrator's word callback to win")
	}
}

type timedPhase struct {
	phase Phase
	at    time.Time
}

func TestOrchestratePausesOnceBeforeFirstSentence(t *testing.T) {
	const pause = 100 * time.Millisecond
	rig := newTestRig([]string{"First. Second. Third."}, WithPreSpeechPause(pause))
	defer rig.orchestrator.Close()

	var phasesMu sync.Mutex
	var phases []timedPhase
	err := rig.orchestrator.Orchestrate(context.Background(), WithPhaseChangedCallback(func(phase Phase) {
		phasesMu.Lock()
		defer phasesMu.Unlock()
		phases = append(phases, timedPhase{phase: phase, at: time.Now()})
	}))
	if err != nil {
		t.Fatalf("expected orchestrate to start, got %v", err)
	}
	rig.stt.say("go")

	waitForCondition(t, 2*time.Second, "reply to finish", func() bool {
		phasesMu.Lock()
		defer phasesMu.Unlock()
		return len(phases) == 4
	})

	phasesMu.Lock()
	dispatched, speaking := phases[1], phases[2]
	phasesMu.Unlock()
	if dispatched.phase != PhaseDispatched || speaking.phase != PhaseSpeaking {
		t.Fatalf("expected dispatched then speaking, got %v and %v", dispatched.phase, speaking.phase)
	}
	if gap := speaking.at.Sub(dispatched.at); gap < pause {
		t.Fatalf("expected speaking to start after the pause, got %s", gap)
	}

	starts := rig.output.playStarts()
	if len(starts) != 3 {
		t.Fatalf("expected 3 sentences to be played, got %d", len(starts))
	}
	if gap := starts[0].Sub(dispatched.at); gap < pause {
		t.Fatalf("expected first playback at least %s after dispatch, got %s", pause, gap)
	}
	for i := 1; i < len(starts); i++ {
		if gap := starts[i].Sub(starts[i-1]); gap >= pause {
			t.Fatalf("expected no pause between sentences, got %s before sentence %d", gap, i+1)
		}
	}
}
