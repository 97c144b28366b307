package deepgram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/koscakluka/ema-screening/core/providers"
	"github.com/koscakluka/ema-screening/core/texttospeech"
)

func TestSynthesizePostsTextToSpeakEndpoint(t *testing.T) {
	var (
		query url.Values
		auth  string
		body  map[string]string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-audio"))
	}))
	defer server.Close()

	client, err := NewTextToSpeechClient("test-key", WithURL(server.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	audio, err := client.Synthesize(context.Background(), "Hello, how are you today?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(audio) != "ID3-audio" {
		t.Fatalf("unexpected audio %q", audio)
	}
	if query.Get("model") != string(VoiceAsteria) {
		t.Fatalf("expected default voice, got %q", query.Get("model"))
	}
	if auth != "Token test-key" {
		t.Fatalf("unexpected authorization %q", auth)
	}
	if body["text"] != "Hello, how are you today?" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestSynthesizeRejectsUnknownVoice(t *testing.T) {
	client, _ := NewTextToSpeechClient("test-key", WithURL("http://127.0.0.1:1"))

	_, err := client.Synthesize(context.Background(), "hi", texttospeech.WithVoice("robot"))
	if err == nil || providers.IsTransient(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestSynthesizeServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusBadGateway)
	}))
	defer server.Close()

	client, _ := NewTextToSpeechClient("test-key", WithURL(server.URL))
	_, err := client.Synthesize(context.Background(), "hi")
	if !providers.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}
