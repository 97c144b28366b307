// Package config loads the server configuration from config.yaml and the
// environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment EnvironmentConfig
	HTTPServer  HTTPServerConfig
	Logger      LoggerConfig
	Telemetry   TelemetryConfig

	// Providers
	Deepgram   DeepgramConfig
	LLM        LLMConfig
	OpenAI     ModelProviderConfig
	Groq       ModelProviderConfig
	TTS        TTSConfig
	ElevenLabs ElevenLabsConfig
	HeyGen     HeyGenConfig

	Pipeline   PipelineConfig
	Sessions   SessionsConfig
	Gateway    GatewayConfig
	Assessment AssessmentConfig
}

type EnvironmentConfig struct {
	Name string
}

type HTTPServerConfig struct {
	Port           int
	Mode           string
	AllowedOrigins []string
}

type LoggerConfig struct {
	Level string
}

type TelemetryConfig struct {
	Enabled bool
	// Endpoint of an OTLP/HTTP collector. Traces go to stdout when empty.
	Endpoint string
	Insecure bool
}

type DeepgramConfig struct {
	APIKey string
	Model  string
}

type LLMConfig struct {
	Provider    string
	MaxTokens   int
	Temperature float64
}

type ModelProviderConfig struct {
	APIKey string
	Model  string
}

type TTSConfig struct {
	Provider string
	Voice    string
}

type ElevenLabsConfig struct {
	APIKey string
	Model  string
}

type HeyGenConfig struct {
	APIKey   string
	AvatarID string
	VoiceID  string
}

type PipelineConfig struct {
	Workers        int
	RetryAttempts  int
	RetryBaseDelay time.Duration
	Timeouts       TimeoutsConfig
}

type TimeoutsConfig struct {
	Transcribe time.Duration
	Generate   time.Duration
	Synthesize time.Duration
	Avatar     time.Duration
	Analyze    time.Duration
}

type SessionsConfig struct {
	IdleTimeout time.Duration
	Capacity    int
}

type GatewayConfig struct {
	FramesPerSecond float64
	FrameBurst      int
}

type AssessmentConfig struct {
	MinAnswerLength int
	WindowSize      int
}

const (
	LLMProviderOpenAI = "openai"
	LLMProviderGroq   = "groq"

	TTSProviderElevenLabs = "elevenlabs"
	TTSProviderDeepgram   = "deepgram"
	TTSProviderNone       = "none"
)

// Load reads config.yaml from ./config, . or /etc/screening/ (or from the
// given paths instead) and overlays the environment, where the key
// "groq.api_key" is read from GROQ_API_KEY.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"./config", ".", "/etc/screening/"}
	}
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}

	cfg.Environment.Name = v.GetString("environment.name")
	cfg.HTTPServer.Port = v.GetInt("http_server.port")
	cfg.HTTPServer.Mode = v.GetString("http_server.mode")
	cfg.HTTPServer.AllowedOrigins = v.GetStringSlice("http_server.allowed_origins")
	cfg.Logger.Level = v.GetString("logger.level")
	cfg.Telemetry.Enabled = v.GetBool("telemetry.enabled")
	cfg.Telemetry.Endpoint = v.GetString("telemetry.endpoint")
	cfg.Telemetry.Insecure = v.GetBool("telemetry.insecure")

	cfg.Deepgram.APIKey = v.GetString("deepgram.api_key")
	cfg.Deepgram.Model = v.GetString("deepgram.model")

	cfg.LLM.Provider = strings.ToLower(v.GetString("llm.provider"))
	cfg.LLM.MaxTokens = v.GetInt("llm.max_tokens")
	cfg.LLM.Temperature = v.GetFloat64("llm.temperature")
	cfg.OpenAI.APIKey = v.GetString("openai.api_key")
	cfg.OpenAI.Model = v.GetString("openai.model")
	cfg.Groq.APIKey = v.GetString("groq.api_key")
	cfg.Groq.Model = v.GetString("groq.model")

	cfg.TTS.Provider = strings.ToLower(v.GetString("tts.provider"))
	cfg.TTS.Voice = v.GetString("tts.voice")
	cfg.ElevenLabs.APIKey = v.GetString("elevenlabs.api_key")
	cfg.ElevenLabs.Model = v.GetString("elevenlabs.model")

	cfg.HeyGen.APIKey = v.GetString("heygen.api_key")
	cfg.HeyGen.AvatarID = v.GetString("heygen.avatar_id")
	cfg.HeyGen.VoiceID = v.GetString("heygen.voice_id")

	cfg.Pipeline.Workers = v.GetInt("pipeline.workers")
	cfg.Pipeline.RetryAttempts = v.GetInt("pipeline.retry_attempts")
	cfg.Pipeline.RetryBaseDelay = v.GetDuration("pipeline.retry_base_delay")
	cfg.Pipeline.Timeouts.Transcribe = v.GetDuration("pipeline.timeouts.transcribe")
	cfg.Pipeline.Timeouts.Generate = v.GetDuration("pipeline.timeouts.generate")
	cfg.Pipeline.Timeouts.Synthesize = v.GetDuration("pipeline.timeouts.synthesize")
	cfg.Pipeline.Timeouts.Avatar = v.GetDuration("pipeline.timeouts.avatar")
	cfg.Pipeline.Timeouts.Analyze = v.GetDuration("pipeline.timeouts.analyze")

	cfg.Sessions.IdleTimeout = v.GetDuration("sessions.idle_timeout")
	cfg.Sessions.Capacity = v.GetInt("sessions.capacity")

	cfg.Gateway.FramesPerSecond = v.GetFloat64("gateway.frames_per_second")
	cfg.Gateway.FrameBurst = v.GetInt("gateway.frame_burst")

	cfg.Assessment.MinAnswerLength = v.GetInt("assessment.min_answer_length")
	cfg.Assessment.WindowSize = v.GetInt("assessment.window_size")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case LLMProviderOpenAI, LLMProviderGroq:
	default:
		return fmt.Errorf("unknown llm.provider %q", c.LLM.Provider)
	}
	switch c.TTS.Provider {
	case TTSProviderElevenLabs, TTSProviderDeepgram, TTSProviderNone:
	default:
		return fmt.Errorf("unknown tts.provider %q", c.TTS.Provider)
	}
	if c.HTTPServer.Port <= 0 {
		return fmt.Errorf("invalid http_server.port %d", c.HTTPServer.Port)
	}
	if c.Pipeline.RetryAttempts < 1 {
		return fmt.Errorf("pipeline.retry_attempts must be at least 1")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment.name", "development")
	v.SetDefault("http_server.port", 8000)
	v.SetDefault("http_server.mode", "debug")
	v.SetDefault("http_server.allowed_origins", []string{"http://localhost:3000", "http://localhost:3001"})
	v.SetDefault("logger.level", "info")

	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.insecure", false)

	v.SetDefault("deepgram.api_key", "")
	v.SetDefault("deepgram.model", "nova-2")

	v.SetDefault("llm.provider", LLMProviderOpenAI)
	v.SetDefault("llm.max_tokens", 150)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model", "gpt-4")
	v.SetDefault("groq.api_key", "")
	v.SetDefault("groq.model", "llama-3.3-70b-versatile")

	v.SetDefault("tts.provider", TTSProviderElevenLabs)
	v.SetDefault("tts.voice", "")
	v.SetDefault("elevenlabs.api_key", "")
	v.SetDefault("elevenlabs.model", "eleven_monolingual_v1")

	v.SetDefault("heygen.api_key", "")
	v.SetDefault("heygen.avatar_id", "")
	v.SetDefault("heygen.voice_id", "")

	v.SetDefault("pipeline.workers", 8)
	v.SetDefault("pipeline.retry_attempts", 3)
	v.SetDefault("pipeline.retry_base_delay", "500ms")
	v.SetDefault("pipeline.timeouts.transcribe", "10s")
	v.SetDefault("pipeline.timeouts.generate", "15s")
	v.SetDefault("pipeline.timeouts.synthesize", "15s")
	v.SetDefault("pipeline.timeouts.avatar", "10s")
	v.SetDefault("pipeline.timeouts.analyze", "30s")

	v.SetDefault("sessions.idle_timeout", "30m")
	v.SetDefault("sessions.capacity", 1024)

	v.SetDefault("gateway.frames_per_second", 10)
	v.SetDefault("gateway.frame_burst", 20)

	v.SetDefault("assessment.min_answer_length", 5)
	v.SetDefault("assessment.window_size", 6)
}
