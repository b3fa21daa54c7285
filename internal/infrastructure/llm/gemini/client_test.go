package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmpolyakov/ai-drive-agent/internal/core/domain"
	"github.com/dmpolyakov/ai-drive-agent/internal/infrastructure/resilience"
)

func TestGenerateFromPromptSendsContents(t *testing.T) {
	var capturedPath string
	var capturedPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedPath = r.URL.Path
		var payload generateRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(payload.Contents) == 1 && len(payload.Contents[0].Parts) == 1 {
			capturedPrompt = payload.Contents[0].Parts[0].Text
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"generated article"}]}}]}`))
	}))
	defer server.Close()

	client := New(server.URL, "test-key", "gemini-2.5-flash", nil)
	out, err := client.GenerateFromPrompt(context.Background(), "write about solar panels")
	if err != nil {
		t.Fatalf("GenerateFromPrompt() error = %v", err)
	}
	if out != "generated article" {
		t.Fatalf("unexpected output %q", out)
	}
	if !strings.Contains(capturedPath, "gemini-2.5-flash:generateContent") {
		t.Fatalf("unexpected path %q", capturedPath)
	}
	if capturedPrompt != "write about solar panels" {
		t.Fatalf("unexpected prompt %q", capturedPrompt)
	}
}

func TestGenerateJSONRequestsJSONMimeType(t *testing.T) {
	var capturedMime string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload generateRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if payload.GenerationConfig != nil {
			capturedMime = payload.GenerationConfig.ResponseMIMEType
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"prefix {\"type\":\"final\",\"answer\":\"done\"} suffix"}]}}]}`))
	}))
	defer server.Close()

	client := New(server.URL, "test-key", "gemini-2.5-flash", nil)
	out, err := client.GenerateJSONFromPrompt(context.Background(), "plan the next step")
	if err != nil {
		t.Fatalf("GenerateJSONFromPrompt() error = %v", err)
	}
	if capturedMime != "application/json" {
		t.Fatalf("expected json mime type, got %q", capturedMime)
	}
	if out != `{"type":"final","answer":"done"}` {
		t.Fatalf("expected extracted json object, got %q", out)
	}
}

func TestGenerateRetriesTransientStatusOnce(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"second try"}]}}]}`))
	}))
	defer server.Close()

	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
	})
	client := New(server.URL, "test-key", "gemini-2.5-flash", executor)

	out, err := client.GenerateFromPrompt(context.Background(), "hello")
	if err != nil {
		t.Fatalf("GenerateFromPrompt() error = %v", err)
	}
	if out != "second try" {
		t.Fatalf("unexpected output %q", out)
	}
	if attempts != 2 {
		t.Fatalf("expected exactly one retry, got %d attempts", attempts)
	}
}

func TestGenerateWrapsExhaustedRetriesAsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
	})
	client := New(server.URL, "test-key", "gemini-2.5-flash", executor)

	_, err := client.GenerateFromPrompt(context.Background(), "hello")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}

func TestGenerateDoesNotRetryBadRequest(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "invalid model", http.StatusBadRequest)
	}))
	defer server.Close()

	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
	})
	client := New(server.URL, "test-key", "gemini-2.5-flash", executor)

	_, err := client.GenerateFromPrompt(context.Background(), "hello")
	if err == nil {
		t.Fatalf("expected error")
	}
	if attempts != 1 {
		t.Fatalf("permanent failure must not retry, got %d attempts", attempts)
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("bad request must not be temporary, got %v", err)
	}
	if !strings.Contains(err.Error(), "invalid model") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

func TestGenerateRejectsEmptyCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer server.Close()

	client := New(server.URL, "test-key", "gemini-2.5-flash", nil)
	if _, err := client.GenerateFromPrompt(context.Background(), "hello"); err == nil {
		t.Fatalf("expected error for empty candidates")
	}
}
