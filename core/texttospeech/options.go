// Package texttospeech defines what the orchestrator needs from a speech
// synthesis provider.
package texttospeech

import "errors"

var ErrEmptyText = errors.New("nothing to synthesize")

// Speech is a complete synthesized utterance of mono signed 16-bit PCM.
type Speech struct {
	Audio      []byte
	SampleRate int
}

type SynthesisOptions struct {
	// Voice overrides the client's default voice when set.
	Voice string
}

type SynthesisOption func(*SynthesisOptions)

func WithVoice(voice string) SynthesisOption {
	return func(o *SynthesisOptions) { o.Voice = voice }
}

func ApplyOptions(opts ...SynthesisOption) SynthesisOptions {
	options := SynthesisOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
