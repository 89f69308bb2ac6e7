package orchestration

import (
	"context"
	"fmt"
	"strings"

	"github.com/JayTiptown/Conduit-coding-test/core/audio"
	"github.com/JayTiptown/Conduit-coding-test/core/texttospeech"
	"github.com/JayTiptown/Conduit-coding-test/core/timeline"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// speakSentence synthesizes sentence and blocks until it has been played.
// Failures are logged and the sentence is skipped. onPlaybackStart is called
// right before audio is handed to the output.
func (o *Orchestrator) speakSentence(ctx context.Context, turnID, sentence string, onPlaybackStart func()) {
	ctx, span := tracer.Start(ctx, "speak sentence")
	defer span.End()
	span.SetAttributes(
		attribute.String("turn.id", turnID),
		attribute.String("sentence", sentence),
	)

	var opts []texttospeech.SynthesisOption
	if o.voice != "" {
		opts = append(opts, texttospeech.WithVoice(o.voice))
	}

	speech, err := o.textToSpeech.Synthesize(ctx, sentence, opts...)
	if err == nil && (speech == nil || len(speech.Audio) == 0) {
		err = fmt.Errorf("synthesizer returned no audio")
	}
	if err != nil {
		err = fmt.Errorf("failed to synthesize sentence: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("Skipping sentence", "turn_id", turnID, "error", err)
		o.metrics.SynthesisFailed()
		return
	}

	span.SetAttributes(attribute.Float64("speech.duration", audio.EncodingInfo{
		SampleRate: speech.SampleRate,
		Format:     audio.EncodingLinear16,
	}.Duration(len(speech.Audio)).Seconds()))

	if onPlaybackStart != nil {
		onPlaybackStart()
	}
	start := o.clock.elapsed(o.now())
	if err := o.audioOutput.Play(ctx, speech.Audio, speech.SampleRate); err != nil {
		err = fmt.Errorf("failed to play sentence: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("Skipping sentence", "turn_id", turnID, "error", err)
		o.metrics.PlaybackFailed()
		return
	}
	end := o.clock.elapsed(o.now())

	o.metrics.SentenceSpoken()
	text := strings.TrimSpace(sentence)
	o.timelineWriter.record(timelineEntry{
		text:       text,
		start:      start,
		end:        end,
		confidence: 1,
		speaker:    timeline.SpeakerAgent,
	})
	if o.orchestrateOptions.onSentence != nil {
		o.orchestrateOptions.onSentence(turnID, text)
	}
}
