package stt

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/speakr/speakr/internal/resilience"
)

func fastRetry() *resilience.RetryConfig {
	return &resilience.RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestHTTPTranscriber_Transcribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("api-key") != "secret" {
			t.Errorf("Expected api-key header, got %q", r.Header.Get("api-key"))
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("Expected multipart file field: %v", err)
		}
		defer file.Close()
		data, _ := io.ReadAll(file)

		if header.Filename != "audio.wav" {
			t.Errorf("Expected filename audio.wav, got %s", header.Filename)
		}
		if header.Header.Get("Content-Type") != "audio/wav" {
			t.Errorf("Expected audio/wav part, got %s", header.Header.Get("Content-Type"))
		}
		if string(data) != "RIFF" {
			t.Errorf("Expected uploaded bytes, got %q", data)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":"hello there"}`)
	}))
	defer server.Close()

	tr := NewHTTPTranscriber(server.URL, "secret", server.Client(), fastRetry(), zerolog.Nop())
	text, err := tr.Transcribe(context.Background(), []byte("RIFF"))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "hello there" {
		t.Errorf("Expected 'hello there', got %q", text)
	}
}

func TestHTTPTranscriber_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"text":"third time"}`)
	}))
	defer server.Close()

	tr := NewHTTPTranscriber(server.URL, "secret", server.Client(), fastRetry(), zerolog.Nop())
	text, err := tr.Transcribe(context.Background(), []byte("RIFF"))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "third time" || calls.Load() != 3 {
		t.Errorf("Expected success on third attempt, got %q after %d calls", text, calls.Load())
	}
}

func TestHTTPTranscriber_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	tr := NewHTTPTranscriber(server.URL, "bad", server.Client(), fastRetry(), zerolog.Nop())
	_, err := tr.Transcribe(context.Background(), []byte("RIFF"))

	var statusErr *resilience.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 StatusError, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected a single attempt, got %d", calls.Load())
	}
}

func TestHTTPTranscriber_NotConfigured(t *testing.T) {
	tr := NewHTTPTranscriber("", "", nil, nil, zerolog.Nop())

	if _, err := tr.Transcribe(context.Background(), []byte("RIFF")); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured, got %v", err)
	}
}
