// Package metrics exposes Prometheus instruments for a conversation. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "conduit"

// Reasons a recognized word is not added to a turn.
const (
	DropReasonBlank      = "blank"
	DropReasonBusy       = "busy"
	DropReasonSuppressed = "suppressed"
)

// Metrics contains all Prometheus metrics for the orchestrator
type Metrics struct {
	// Recognition
	WordsAccepted prometheus.Counter
	WordsDropped  *prometheus.CounterVec
	FramesDropped prometheus.Counter

	// Turn taking
	TurnsDispatched prometheus.Counter
	Phase           *prometheus.GaugeVec

	// Response
	SentencesSpoken    prometheus.Counter
	SynthesisFailures  prometheus.Counter
	PlaybackFailures   prometheus.Counter
	GeneratorFallbacks prometheus.Counter
	FirstAudioLatency  prometheus.Histogram
}

// NewMetrics creates the metrics and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		WordsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "words_accepted_total",
			Help:      "Total number of recognized words added to a user turn",
		}),
		WordsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "words_dropped_total",
			Help:      "Total number of recognized words discarded, by reason",
		}, []string{"reason"}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_dropped_total",
			Help:      "Total number of captured audio frames dropped because the ingestion queue was full",
		}),

		TurnsDispatched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_dispatched_total",
			Help:      "Total number of user turns sent for generation",
		}),
		Phase: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "conversation_phase",
			Help:      "Set to 1 for the current conversation phase",
		}, []string{"phase"}),

		SentencesSpoken: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sentences_spoken_total",
			Help:      "Total number of agent sentences played back",
		}),
		SynthesisFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_failures_total",
			Help:      "Total number of sentences skipped because synthesis failed",
		}),
		PlaybackFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_failures_total",
			Help:      "Total number of sentences whose playback failed",
		}),
		GeneratorFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generator_fallbacks_total",
			Help:      "Total number of generations replaced by the fallback reply",
		}),
		FirstAudioLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_audio_latency_seconds",
			Help:      "Time from turn dispatch to the start of the first sentence playback",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8), // 250ms to 32s
		}),
	}
}

func (m *Metrics) WordAccepted() {
	if m != nil {
		m.WordsAccepted.Inc()
	}
}

func (m *Metrics) WordDropped(reason string) {
	if m != nil {
		m.WordsDropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) FrameDropped() {
	if m != nil {
		m.FramesDropped.Inc()
	}
}

func (m *Metrics) TurnDispatched() {
	if m != nil {
		m.TurnsDispatched.Inc()
	}
}

// SetPhase marks phase as current and every other known phase as not.
func (m *Metrics) SetPhase(phase string, known ...string) {
	if m == nil {
		return
	}
	for _, other := range known {
		if other != phase {
			m.Phase.WithLabelValues(other).Set(0)
		}
	}
	m.Phase.WithLabelValues(phase).Set(1)
}

func (m *Metrics) SentenceSpoken() {
	if m != nil {
		m.SentencesSpoken.Inc()
	}
}

func (m *Metrics) SynthesisFailed() {
	if m != nil {
		m.SynthesisFailures.Inc()
	}
}

func (m *Metrics) PlaybackFailed() {
	if m != nil {
		m.PlaybackFailures.Inc()
	}
}

func (m *Metrics) GeneratorFellBack() {
	if m != nil {
		m.GeneratorFallbacks.Inc()
	}
}

func (m *Metrics) ObserveFirstAudio(latency time.Duration) {
	if m != nil {
		m.FirstAudioLatency.Observe(latency.Seconds())
	}
}
