// Package config loads the conduit configuration from a YAML file and the
// provider credentials from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Conversation  ConversationConfig  `yaml:"conversation"`
	Audio         AudioConfig         `yaml:"audio"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	LLM           LLMConfig           `yaml:"llm"`
	Speech        SpeechConfig        `yaml:"speech"`
	Timeline      TimelineConfig      `yaml:"timeline"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ConversationConfig contains the turn-taking parameters
type ConversationConfig struct {
	SilenceThreshold time.Duration `yaml:"silence_threshold"`
	DeafPeriod       time.Duration `yaml:"deaf_period"`
	PreSpeechPause   time.Duration `yaml:"pre_speech_pause"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	JoinTimeout      time.Duration `yaml:"join_timeout"`
	SystemPrompt     string        `yaml:"system_prompt"`
	HistoryLimit     int           `yaml:"history_limit"`
}

// AudioConfig contains capture and ingestion parameters
type AudioConfig struct {
	Backend      string        `yaml:"backend"`
	FrameSize    int           `yaml:"frame_size"` // samples
	QueueSize    int           `yaml:"queue_size"` // frames
	QueueTimeout time.Duration `yaml:"queue_timeout"`
}

// TranscriptionConfig contains speech recognition parameters
type TranscriptionConfig struct {
	Model       string `yaml:"model"`
	Language    string `yaml:"language"`
	SmartFormat bool   `yaml:"smart_format"`
	APIKey      string `yaml:"-"`
}

// LLMConfig contains text generation parameters
type LLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	URL      string `yaml:"url"`
	APIKey   string `yaml:"-"`
}

// SpeechConfig contains speech synthesis parameters
type SpeechConfig struct {
	Provider string `yaml:"provider"`
	Voice    string `yaml:"voice"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"-"`
}

// TimelineConfig contains the character timeline output
type TimelineConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig contains the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"` // stdout, stderr or a file path
}

const (
	BackendMiniaudio = "miniaudio"
	BackendPortaudio = "portaudio"

	ProviderOpenRouter = "openrouter"
	ProviderGroq       = "groq"
	ProviderOpenAI     = "openai"
	ProviderElevenLabs = "elevenlabs"
	ProviderDeepgram   = "deepgram"
)

var defaultLLMModels = map[string]string{
	ProviderOpenRouter: "meta-llama/llama-3.3-70b-instruct",
	ProviderGroq:       "llama-3.3-70b-versatile",
	ProviderOpenAI:     "gpt-4o-mini",
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Conversation: ConversationConfig{
			SilenceThreshold: 3 * time.Second,
			DeafPeriod:       time.Second,
			PreSpeechPause:   time.Second,
			PollInterval:     100 * time.Millisecond,
			JoinTimeout:      5 * time.Second,
			HistoryLimit:     20,
		},
		Audio: AudioConfig{
			Backend:      BackendMiniaudio,
			FrameSize:    1024,
			QueueSize:    64,
			QueueTimeout: 250 * time.Millisecond,
		},
		Transcription: TranscriptionConfig{
			Model:       "nova-2",
			Language:    "en-US",
			SmartFormat: true,
		},
		LLM: LLMConfig{
			Provider: ProviderOpenRouter,
		},
		Speech: SpeechConfig{
			Provider: ProviderElevenLabs,
		},
		Timeline: TimelineConfig{
			Path: "transcript_log.csv",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9090",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads the configuration file at path over the defaults, loads a .env
// file if there is one and picks up credentials from the environment. An
// empty path uses the defaults alone.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	config.applyEnv(os.LookupEnv)

	if config.LLM.Model == "" {
		config.LLM.Model = defaultLLMModels[config.LLM.Provider]
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	first := func(keys ...string) string {
		for _, key := range keys {
			if value, ok := lookup(key); ok && value != "" {
				return value
			}
		}
		return ""
	}

	c.Transcription.APIKey = first("DEEPGRAM_API_KEY")

	switch c.LLM.Provider {
	case ProviderOpenRouter:
		c.LLM.APIKey = first("OPENROUTER_API_KEY")
	case ProviderGroq:
		c.LLM.APIKey = first("GROQ_API_KEY")
	case ProviderOpenAI:
		c.LLM.APIKey = first("OPENAI_API_KEY")
	}

	switch c.Speech.Provider {
	case ProviderElevenLabs:
		c.Speech.APIKey = first("ELEVEN_LABS_API_KEY", "ELEVENLABS_API_KEY")
	case ProviderDeepgram:
		c.Speech.APIKey = first("DEEPGRAM_API_KEY")
	}
}

// Validate performs validation of the whole configuration
func (c *Config) Validate() error {
	if err := c.Conversation.Validate(); err != nil {
		return fmt.Errorf("conversation config: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm config: %w", err)
	}
	if err := c.Speech.Validate(); err != nil {
		return fmt.Errorf("speech config: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

// Validate validates conversation configuration
func (c *ConversationConfig) Validate() error {
	if c.SilenceThreshold <= 0 {
		return fmt.Errorf("silence_threshold must be positive, got %s", c.SilenceThreshold)
	}
	if c.DeafPeriod < 0 {
		return fmt.Errorf("deaf_period cannot be negative, got %s", c.DeafPeriod)
	}
	if c.PreSpeechPause < 0 {
		return fmt.Errorf("pre_speech_pause cannot be negative, got %s", c.PreSpeechPause)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.JoinTimeout <= 0 {
		return fmt.Errorf("join_timeout must be positive, got %s", c.JoinTimeout)
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("history_limit cannot be negative, got %d", c.HistoryLimit)
	}
	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if !slices.Contains([]string{BackendMiniaudio, BackendPortaudio}, a.Backend) {
		return fmt.Errorf("backend must be %s or %s, got %q", BackendMiniaudio, BackendPortaudio, a.Backend)
	}
	if a.FrameSize < 128 || a.FrameSize > 8192 {
		return fmt.Errorf("frame_size must be between 128 and 8192 samples, got %d", a.FrameSize)
	}
	if a.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", a.QueueSize)
	}
	if a.QueueTimeout <= 0 {
		return fmt.Errorf("queue_timeout must be positive, got %s", a.QueueTimeout)
	}
	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if t.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if t.Language == "" {
		return fmt.Errorf("language cannot be empty")
	}
	if t.APIKey == "" {
		return fmt.Errorf("DEEPGRAM_API_KEY not set")
	}
	return nil
}

// Validate validates llm configuration
func (l *LLMConfig) Validate() error {
	switch l.Provider {
	case ProviderOpenRouter, ProviderGroq, ProviderOpenAI:
	default:
		return fmt.Errorf("provider must be one of %s, %s or %s, got %q", ProviderOpenRouter, ProviderGroq, ProviderOpenAI, l.Provider)
	}
	if l.APIKey == "" {
		return fmt.Errorf("api key for %s not set", l.Provider)
	}
	return nil
}

// Validate validates speech configuration
func (s *SpeechConfig) Validate() error {
	switch s.Provider {
	case ProviderElevenLabs, ProviderDeepgram:
	default:
		return fmt.Errorf("provider must be %s or %s, got %q", ProviderElevenLabs, ProviderDeepgram, s.Provider)
	}
	if s.APIKey == "" {
		return fmt.Errorf("api key for %s not set", s.Provider)
	}
	return nil
}

// Validate validates metrics configuration
func (m *MetricsConfig) Validate() error {
	if m.Enabled && m.Address == "" {
		return fmt.Errorf("address cannot be empty when metrics are enabled")
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, l.Level) {
		return fmt.Errorf("level must be one of debug, info, warn, error, got %q", l.Level)
	}
	if !slices.Contains([]string{"text", "json"}, l.Format) {
		return fmt.Errorf("format must be text or json, got %q", l.Format)
	}
	return nil
}
