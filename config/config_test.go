package config

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPServer.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.HTTPServer.Port)
	}
	if !slices.Equal(cfg.HTTPServer.AllowedOrigins, []string{"http://localhost:3000", "http://localhost:3001"}) {
		t.Errorf("unexpected allowed origins %v", cfg.HTTPServer.AllowedOrigins)
	}
	if cfg.Deepgram.Model != "nova-2" || cfg.LLM.MaxTokens != 150 || cfg.LLM.Temperature != 0.7 {
		t.Errorf("unexpected provider defaults %+v %+v", cfg.Deepgram, cfg.LLM)
	}
	if cfg.Pipeline.RetryAttempts != 3 || cfg.Pipeline.RetryBaseDelay != 500*time.Millisecond {
		t.Errorf("unexpected retry defaults %+v", cfg.Pipeline)
	}
	if cfg.Pipeline.Timeouts.Analyze != 30*time.Second || cfg.Pipeline.Timeouts.Transcribe != 10*time.Second {
		t.Errorf("unexpected timeouts %+v", cfg.Pipeline.Timeouts)
	}
	if cfg.Assessment.MinAnswerLength != 5 || cfg.Assessment.WindowSize != 6 {
		t.Errorf("unexpected assessment defaults %+v", cfg.Assessment)
	}
}

func TestLoadFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	yaml := `
http_server:
  port: 9090
llm:
  provider: Groq
tts:
  provider: deepgram
  voice: aura-luna-en
pipeline:
  retry_base_delay: 250ms
sessions:
  idle_timeout: 5m
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Setenv("GROQ_API_KEY", "gsk-test")
	t.Setenv("GATEWAY_FRAME_BURST", "3")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPServer.Port != 9090 {
		t.Errorf("expected port from file, got %d", cfg.HTTPServer.Port)
	}
	if cfg.LLM.Provider != LLMProviderGroq || cfg.Groq.APIKey != "gsk-test" {
		t.Errorf("unexpected llm config %+v %+v", cfg.LLM, cfg.Groq)
	}
	if cfg.TTS.Provider != TTSProviderDeepgram || cfg.TTS.Voice != "aura-luna-en" {
		t.Errorf("unexpected tts config %+v", cfg.TTS)
	}
	if cfg.Pipeline.RetryBaseDelay != 250*time.Millisecond || cfg.Sessions.IdleTimeout != 5*time.Minute {
		t.Errorf("unexpected durations %v %v", cfg.Pipeline.RetryBaseDelay, cfg.Sessions.IdleTimeout)
	}
	if cfg.Gateway.FrameBurst != 3 {
		t.Errorf("expected frame burst from environment, got %d", cfg.Gateway.FrameBurst)
	}
}

func TestLoadRejectsUnknownProviders(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("llm:\n  provider: bard\n"), 0o600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := Load(dir); err == nil {
		t.Fatalf("expected unknown provider to be rejected")
	}
}
