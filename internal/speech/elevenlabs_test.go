package speech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSynthesize_NotConfigured(t *testing.T) {
	_, err := NewClient("", "").Synthesize(context.Background(), "hello")
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSynthesize_TextValidation(t *testing.T) {
	c := NewClient("key", "")
	if _, err := c.Synthesize(context.Background(), "   "); !errors.Is(err, ErrEmptyText) {
		t.Errorf("expected ErrEmptyText, got %v", err)
	}
	if _, err := c.Synthesize(context.Background(), strings.Repeat("é", MaxTextLength+1)); !errors.Is(err, ErrTextTooLong) {
		t.Errorf("expected ErrTextTooLong, got %v", err)
	}
}

func TestSynthesize_ReturnsAudio(t *testing.T) {
	var got ttsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/text-to-speech/voice1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("xi-api-key") != "key" {
			t.Errorf("missing api key")
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3audio"))
	}))
	defer srv.Close()

	audio, err := NewClient("key", "voice1", WithBaseURL(srv.URL)).Synthesize(context.Background(), " Welcome back. ")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != "ID3audio" {
		t.Errorf("audio = %q", audio)
	}
	if got.Text != "Welcome back." || got.ModelID != defaultModelID {
		t.Errorf("unexpected request %+v", got)
	}
}

func TestSynthesize_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"invalid key"}`))
	}))
	defer srv.Close()

	_, err := NewClient("bad", "", WithBaseURL(srv.URL)).Synthesize(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("expected 401 error, got %v", err)
	}
}

func TestWithModel(t *testing.T) {
	if c := NewClient("key", "", WithModel("eleven_turbo_v2_5")); c.modelID != "eleven_turbo_v2_5" {
		t.Errorf("modelID = %q", c.modelID)
	}
	if c := NewClient("key", "", WithModel("")); c.modelID != defaultModelID {
		t.Errorf("empty model should keep default, got %q", c.modelID)
	}
}
