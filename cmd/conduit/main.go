// Command conduit holds a spoken conversation with an LLM through the
// default microphone and speakers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	orchestration "github.com/JayTiptown/Conduit-coding-test/core"
	"github.com/JayTiptown/Conduit-coding-test/core/audio/miniaudio"
	"github.com/JayTiptown/Conduit-coding-test/core/audio/portaudio"
	"github.com/JayTiptown/Conduit-coding-test/core/llms/openai"
	"github.com/JayTiptown/Conduit-coding-test/core/metrics"
	"github.com/JayTiptown/Conduit-coding-test/core/speechtotext"
	"github.com/JayTiptown/Conduit-coding-test/core/speechtotext/deepgram"
	deepgramtts "github.com/JayTiptown/Conduit-coding-test/core/texttospeech/deepgram"
	"github.com/JayTiptown/Conduit-coding-test/core/texttospeech/elevenlabs"
	"github.com/JayTiptown/Conduit-coding-test/core/timeline"
	"github.com/JayTiptown/Conduit-coding-test/internal/config"
	"github.com/JayTiptown/Conduit-coding-test/internal/telemetry"
	"github.com/JayTiptown/Conduit-coding-test/internal/tui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	useTUI := flag.Bool("tui", false, "Show a live view of the conversation instead of logs")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, logOutput := initLogger(cfg.Logging, *useTUI)
	slog.SetDefault(logger)

	shutdownLogs, err := telemetry.InstallLoggerProvider(logOutput, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer shutdownLogs(context.Background())

	logger.Info("Configuration loaded",
		slog.String("config_path", *configPath),
		slog.String("audio_backend", cfg.Audio.Backend),
		slog.String("llm_provider", cfg.LLM.Provider),
		slog.String("llm_model", cfg.LLM.Model),
		slog.String("speech_provider", cfg.Speech.Provider),
		slog.Duration("silence_threshold", cfg.Conversation.SilenceThreshold),
		slog.String("timeline", cfg.Timeline.Path),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, stop, cfg, *useTUI, logger); err != nil {
		logger.Error("Conduit stopped with an error", slog.String("error", err.Error()))
		stop()
		os.Exit(1)
	}
	logger.Info("Conduit stopped")
}

// audioDevice is a microphone and speaker pair.
type audioDevice interface {
	orchestration.AudioInput
	orchestration.AudioOutput
}

func run(ctx context.Context, stop context.CancelFunc, cfg *config.Config, useTUI bool, logger *slog.Logger) error {
	device, err := newAudioDevice(cfg.Audio)
	if err != nil {
		return err
	}

	textToSpeech, err := newTextToSpeech(cfg.Speech)
	if err != nil {
		device.Close()
		return err
	}

	sink, err := timeline.OpenCSV(cfg.Timeline.Path)
	if err != nil {
		device.Close()
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Error("Failed to close timeline", slog.String("error", err.Error()))
		}
	}()
	logger.Info("Writing timeline", slog.String("path", sink.Name()))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.NewMetrics(registry)
	if cfg.Metrics.Enabled {
		shutdown := serveMetrics(cfg.Metrics.Address, registry, logger)
		defer shutdown()
	}

	orchestrator := orchestration.NewOrchestrator(
		orchestration.WithAudioInput(device),
		orchestration.WithAudioOutput(device),
		orchestration.WithSpeechToTextClient(deepgram.NewTranscriptionClient(cfg.Transcription.APIKey)),
		orchestration.WithTranscriptionOptions(
			speechtotext.WithModel(cfg.Transcription.Model),
			speechtotext.WithLanguage(cfg.Transcription.Language),
			speechtotext.WithSmartFormat(cfg.Transcription.SmartFormat),
		),
		orchestration.WithStreamingLLM(openai.NewClient(cfg.LLM.APIKey,
			openai.WithURL(llmURL(cfg.LLM)),
			openai.WithModel(cfg.LLM.Model),
		)),
		orchestration.WithTextToSpeechClient(textToSpeech),
		orchestration.WithTimeline(timeline.NewLogger(sink)),
		orchestration.WithMetrics(appMetrics),
		orchestration.WithSilenceThreshold(cfg.Conversation.SilenceThreshold),
		orchestration.WithDeafPeriod(cfg.Conversation.DeafPeriod),
		orchestration.WithPreSpeechPause(cfg.Conversation.PreSpeechPause),
		orchestration.WithPollInterval(cfg.Conversation.PollInterval),
		orchestration.WithJoinTimeout(cfg.Conversation.JoinTimeout),
		orchestration.WithIngestionQueue(cfg.Audio.QueueSize, cfg.Audio.QueueTimeout),
		orchestration.WithSystemPrompt(cfg.Conversation.SystemPrompt),
		orchestration.WithHistoryLimit(cfg.Conversation.HistoryLimit),
	)

	if useTUI {
		return runWithTUI(ctx, stop, orchestrator, device, logger)
	}

	err = orchestrator.Orchestrate(ctx,
		orchestration.WithWordCallback(func(word speechtotext.Word) {
			logger.Info("Transcript", slog.String("word", word.Text),
				slog.Float64("start", word.Start), slog.Float64("end", word.End))
		}),
		orchestration.WithPhaseChangedCallback(func(phase orchestration.Phase) {
			logger.Debug("Phase changed", slog.String("phase", phase.String()))
		}),
		orchestration.WithTurnCallback(func(turnID, text string) {
			logger.Info("User", slog.String("turn_id", turnID), slog.String("text", text))
		}),
		orchestration.WithSentenceCallback(func(turnID, sentence string) {
			logger.Info("Agent", slog.String("turn_id", turnID), slog.String("text", sentence))
		}),
		orchestration.WithRecognizerErrorCallback(func(error) { stop() }),
	)
	if err != nil {
		device.Close()
		return fmt.Errorf("failed to start conversation: %w", err)
	}
	logger.Info("Listening, press Ctrl+C to stop")

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case <-orchestrator.Done():
	}

	return orchestrator.Close()
}

func runWithTUI(ctx context.Context, stop context.CancelFunc, orchestrator *orchestration.Orchestrator, device audioDevice, logger *slog.Logger) error {
	program := tea.NewProgram(tui.NewModel(stop), tea.WithContext(ctx))
	exited := tui.Start(program)

	if err := orchestrator.Orchestrate(ctx, tui.ConversationOptions(program, func(error) { stop() })...); err != nil {
		program.Quit()
		<-exited
		device.Close()
		return fmt.Errorf("failed to start conversation: %w", err)
	}

	select {
	case err := <-exited:
		if err != nil {
			logger.Error("Terminal view failed", slog.String("error", err.Error()))
		}
	case <-orchestrator.Done():
		program.Quit()
		<-exited
	}
	stop()

	return orchestrator.Close()
}

func newAudioDevice(cfg config.AudioConfig) (audioDevice, error) {
	switch cfg.Backend {
	case config.BackendPortaudio:
		client, err := portaudio.NewClient(cfg.FrameSize)
		if err != nil {
			return nil, fmt.Errorf("failed to open portaudio device: %w", err)
		}
		return client, nil
	default:
		client, err := miniaudio.NewClient(cfg.FrameSize)
		if err != nil {
			return nil, fmt.Errorf("failed to open miniaudio device: %w", err)
		}
		return client, nil
	}
}

func newTextToSpeech(cfg config.SpeechConfig) (orchestration.TextToSpeech, error) {
	switch cfg.Provider {
	case config.ProviderDeepgram:
		client, err := deepgramtts.NewTextToSpeechClient(cfg.APIKey, cfg.Voice)
		if err != nil {
			return nil, fmt.Errorf("failed to create deepgram speech client: %w", err)
		}
		return client, nil
	default:
		return elevenlabs.NewClient(cfg.APIKey,
			elevenlabs.WithVoice(cfg.Voice),
			elevenlabs.WithModel(cfg.Model),
		), nil
	}
}

func llmURL(cfg config.LLMConfig) string {
	if cfg.URL != "" {
		return cfg.URL
	}
	switch cfg.Provider {
	case config.ProviderGroq:
		return openai.GroqURL
	case config.ProviderOpenAI:
		return openai.OpenAIURL
	default:
		return openai.OpenRouterURL
	}
}

func serveMetrics(address string, registry *prometheus.Registry, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Serving metrics", slog.String("address", address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", slog.String("error", err.Error()))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Error stopping metrics server", slog.String("error", err.Error()))
		}
	}
}

// initLogger creates the structured logger and returns the writer it logs
// to. The terminal view owns stdout and stderr, so with it enabled only file
// output is kept.
func initLogger(cfg config.LoggingConfig, useTUI bool) (*slog.Logger, io.Writer) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output io.Writer
	switch cfg.Output {
	case "stdout":
		output = os.Stdout
	case "stderr", "":
		output = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stderr\n", cfg.Output, err)
			output = os.Stderr
		} else {
			output = file
		}
	}
	if useTUI && (output == os.Stdout || output == os.Stderr) {
		output = io.Discard
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler), output
}
