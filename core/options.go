package orchestration

import (
	"context"
	"time"

	"github.com/JayTiptown/Conduit-coding-test/core/audio"
	"github.com/JayTiptown/Conduit-coding-test/core/llms"
	"github.com/JayTiptown/Conduit-coding-test/core/metrics"
	"github.com/JayTiptown/Conduit-coding-test/core/speechtotext"
	"github.com/JayTiptown/Conduit-coding-test/core/texttospeech"
	"github.com/JayTiptown/Conduit-coding-test/core/timeline"
)

const (
	DefaultSilenceThreshold = 3 * time.Second
	DefaultDeafPeriod       = time.Second
	DefaultPreSpeechPause   = time.Second
	DefaultPollInterval     = 100 * time.Millisecond
	DefaultJoinTimeout      = 5 * time.Second
	DefaultHistoryLimit     = 20
)

type OrchestratorOption func(*Orchestrator)

type AudioInput interface {
	EncodingInfo() audio.EncodingInfo
	// Stream delivers captured frames to onAudio until ctx is done. The
	// frame buffer may be reused once onAudio returns.
	Stream(ctx context.Context, onAudio func(audio []byte)) error
	Close()
}

func WithAudioInput(client AudioInput) OrchestratorOption {
	return func(o *Orchestrator) { o.audioInput = client }
}

type AudioOutput interface {
	// Play blocks until pcm has been played.
	Play(ctx context.Context, pcm []byte, sampleRate int) error
}

func WithAudioOutput(client AudioOutput) OrchestratorOption {
	return func(o *Orchestrator) { o.audioOutput = client }
}

type SpeechToText interface {
	Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error
	SendAudio(audio []byte) error
	Close() error
}

func WithSpeechToTextClient(client SpeechToText) OrchestratorOption {
	return func(o *Orchestrator) { o.speechToText = client }
}

type LLMWithStream interface {
	PromptWithStream(ctx context.Context, prompt string, opts ...llms.StreamingPromptOption) llms.Stream
}

func WithStreamingLLM(client LLMWithStream) OrchestratorOption {
	return func(o *Orchestrator) { o.llm = client }
}

type TextToSpeech interface {
	Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) (*texttospeech.Speech, error)
}

func WithTextToSpeechClient(client TextToSpeech) OrchestratorOption {
	return func(o *Orchestrator) { o.textToSpeech = client }
}

type Timeline interface {
	Record(text string, start, end, confidence float64, speaker timeline.Speaker) error
}

func WithTimeline(t Timeline) OrchestratorOption {
	return func(o *Orchestrator) { o.timeline = t }
}

func WithMetrics(m *metrics.Metrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithSilenceThreshold sets how long the user has to be silent before the
// pending turn is closed. Non-positive values are ignored.
func WithSilenceThreshold(threshold time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if threshold > 0 {
			o.silenceThreshold = threshold
		}
	}
}

// WithDeafPeriod sets how long after a reply recognized words are ignored.
func WithDeafPeriod(period time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if period >= 0 {
			o.deafPeriod = period
		}
	}
}

// WithPreSpeechPause sets the wait before the first sentence of a reply is
// synthesized.
func WithPreSpeechPause(pause time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if pause >= 0 {
			o.preSpeechPause = pause
		}
	}
}

func WithPollInterval(interval time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if interval > 0 {
			o.pollInterval = interval
		}
	}
}

// WithJoinTimeout bounds how long Close waits for an in-flight reply.
func WithJoinTimeout(timeout time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.joinTimeout = timeout
		}
	}
}

func WithIngestionQueue(size int, idleTimeout time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.ingestionQueueSize = size
		o.ingestionIdleTimeout = idleTimeout
	}
}

// WithTranscriptionOptions passes recognizer settings such as the model or
// language through to Transcribe. Callbacks and encoding are always set by
// the orchestrator.
func WithTranscriptionOptions(opts ...speechtotext.TranscriptionOption) OrchestratorOption {
	return func(o *Orchestrator) {
		o.transcriptionOptions = append(o.transcriptionOptions, opts...)
	}
}

func WithVoice(voice string) OrchestratorOption {
	return func(o *Orchestrator) { o.voice = voice }
}

func WithSystemPrompt(prompt string) OrchestratorOption {
	return func(o *Orchestrator) { o.systemPrompt = prompt }
}

// WithHistoryLimit caps how many past messages are sent with each prompt.
// Zero keeps everything.
func WithHistoryLimit(limit int) OrchestratorOption {
	return func(o *Orchestrator) {
		if limit >= 0 {
			o.history.limit = limit
		}
	}
}

type OrchestrateOptions struct {
	onWord            func(word speechtotext.Word)
	onPhaseChanged    func(phase Phase)
	onTurn            func(turnID string, text string)
	onSentence        func(turnID string, sentence string)
	onRecognizerError func(err error)
}

type OrchestrateOption func(*OrchestrateOptions)

// WithWordCallback registers a callback for every word added to the
// pending turn. Dropped words are not reported.
func WithWordCallback(callback func(word speechtotext.Word)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onWord = callback }
}

func WithPhaseChangedCallback(callback func(phase Phase)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onPhaseChanged = callback }
}

// WithTurnCallback registers a callback for each closed user turn, called
// before the reply is generated.
func WithTurnCallback(callback func(turnID string, text string)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onTurn = callback }
}

// WithSentenceCallback registers a callback for each agent sentence once
// its playback has finished.
func WithSentenceCallback(callback func(turnID string, sentence string)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onSentence = callback }
}

// WithRecognizerErrorCallback registers a callback for errors that end the
// transcription stream. The orchestrator keeps running; callers usually
// stop it from here.
func WithRecognizerErrorCallback(callback func(err error)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onRecognizerError = callback }
}
