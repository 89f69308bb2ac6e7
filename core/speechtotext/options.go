package speechtotext

import (
	"errors"

	"github.com/JayTiptown/Conduit-coding-test/core/audio"
)

var ErrNotConnected = errors.New("speech-to-text transport is not connected")

const (
	DefaultModel    = "nova-2"
	DefaultLanguage = "en-US"
)

type TranscriptionOptions struct {
	// WordCallback is called once for every finalized word, in recognition
	// order. It runs on the transport's read goroutine and must not block.
	WordCallback func(word Word)
	// ErrorCallback is called when the transport fails mid-stream. No more
	// words are delivered after it fires.
	ErrorCallback func(err error)

	Model       string
	Language    string
	SmartFormat bool

	EncodingInfo audio.EncodingInfo
}

func DefaultTranscriptionOptions() TranscriptionOptions {
	return TranscriptionOptions{
		Model:        DefaultModel,
		Language:     DefaultLanguage,
		SmartFormat:  true,
		EncodingInfo: audio.GetDefaultEncodingInfo(),
	}
}

type TranscriptionOption func(*TranscriptionOptions)

func WithWordCallback(callback func(word Word)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.WordCallback = callback
	}
}

func WithErrorCallback(callback func(err error)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.ErrorCallback = callback
	}
}

func WithModel(model string) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		if model != "" {
			o.Model = model
		}
	}
}

func WithLanguage(language string) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		if language != "" {
			o.Language = language
		}
	}
}

func WithSmartFormat(smartFormat bool) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.SmartFormat = smartFormat
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		if encodingInfo.IsZero() {
			return
		}
		o.EncodingInfo = encodingInfo
	}
}
