package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesperchat/vesper/internal/config"
)

func testProviders(ollamaURL string) config.ProvidersConfig {
	return config.ProvidersConfig{
		Ollama: config.OllamaConfig{
			BaseURL:      ollamaURL,
			DefaultModel: "llama2",
		},
		OpenAI: config.ProviderConfig{
			APIKey:       "sk-test",
			DefaultModel: "gpt-3.5-turbo",
		},
		OpenRouter: config.ProviderConfig{
			BaseURL:      config.DefaultOpenRouterBaseURL,
			APIKey:       "or-test",
			DefaultModel: "openai/gpt-3.5-turbo",
		},
	}
}

// sseChunk renders one streaming response line in the wire format the
// completion API uses.
func sseChunk(t *testing.T, content string) string {
	t.Helper()
	payload := map[string]any{
		"id":     "chatcmpl-test",
		"object": "chat.completion.chunk",
		"model":  "llama2",
		"choices": []map[string]any{
			{"index": 0, "delta": map[string]string{"content": content}},
		},
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return "data: " + string(raw) + "\n\n"
}

func TestStreamCompletion(t *testing.T) {
	var gotReq struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Hel", "lo", "!"} {
			fmt.Fprint(w, sseChunk(t, part))
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	d := NewDispatcher(slog.Default(), testProviders(srv.URL))
	frags, err := d.StreamCompletion(context.Background(), Request{
		Provider: ProviderOllama,
		Message:  "greet me",
		History: []Message{
			{Role: "user", Content: "earlier question"},
			{Role: "assistant", Content: "earlier answer"},
		},
		Temperature: 0.7,
	})
	require.NoError(t, err)

	var b strings.Builder
	for f := range frags {
		require.NoError(t, f.Err)
		b.WriteString(f.Content)
	}
	assert.Equal(t, "Hello!", b.String())

	// Prompt shape: system first, then history, then the new message.
	require.Len(t, gotReq.Messages, 4)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.Equal(t, SystemPrompt, gotReq.Messages[0].Content)
	assert.Equal(t, "earlier question", gotReq.Messages[1].Content)
	assert.Equal(t, "earlier answer", gotReq.Messages[2].Content)
	assert.Equal(t, "greet me", gotReq.Messages[3].Content)
	assert.Equal(t, "llama2", gotReq.Model, "default model fills in when none given")
}

func TestStreamCompletionSendsZeroTemperature(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseChunk(t, "ok"))
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	d := NewDispatcher(slog.Default(), testProviders(srv.URL))
	frags, err := d.StreamCompletion(context.Background(), Request{
		Provider:    ProviderOllama,
		Message:     "be deterministic",
		Temperature: 0,
	})
	require.NoError(t, err)
	for range frags {
	}

	// A requested temperature of 0 must reach the provider rather than
	// being dropped from the body and replaced by the provider default.
	temp, ok := body["temperature"]
	require.True(t, ok, "temperature key present on the wire")
	assert.InDelta(t, 0, temp.(float64), 1e-30)
}

func TestStreamCompletionUnknownProvider(t *testing.T) {
	d := NewDispatcher(slog.Default(), testProviders("http://localhost:1"))
	_, err := d.StreamCompletion(context.Background(), Request{
		Provider: Provider("anthropic"),
		Message:  "hi",
	})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestStreamCompletionUpstreamErrorInline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"model not found"}}`, http.StatusNotFound)
	}))
	defer srv.Close()

	d := NewDispatcher(slog.Default(), testProviders(srv.URL))
	frags, err := d.StreamCompletion(context.Background(), Request{
		Provider: ProviderOllama,
		Message:  "hi",
	})
	require.NoError(t, err, "stream opening never fails on upstream errors")

	var got []Fragment
	for f := range frags {
		got = append(got, f)
	}
	require.Len(t, got, 1, "a failed turn yields exactly one error fragment")
	assert.Error(t, got[0].Err)
	assert.Contains(t, got[0].Content, "**Error connecting to ollama:**")
}

func TestParseProvider(t *testing.T) {
	for _, name := range []string{"ollama", "openai", "openrouter"} {
		p, err := ParseProvider(name)
		require.NoError(t, err)
		assert.Equal(t, Provider(name), p)
	}
	_, err := ParseProvider("gemini")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestListLocalModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		fmt.Fprint(w, `{"models":[{"name":"llama2:13b"},{"name":"phi3"}]}`)
	}))
	defer srv.Close()

	d := NewDispatcher(slog.Default(), testProviders(srv.URL))
	models := d.ListLocalModels(context.Background())
	require.Len(t, models, 2)
	assert.Equal(t, "llama2:13b", models[0].Name)
}

func TestListLocalModelsFallback(t *testing.T) {
	// Nothing listens here; listing must degrade, not fail.
	d := NewDispatcher(slog.Default(), testProviders("http://127.0.0.1:1"))
	models := d.ListLocalModels(context.Background())
	assert.Equal(t, fallbackLocalModels, models)
}

func TestSessionWindow(t *testing.T) {
	s := NewSession(4)
	for i := 0; i < 10; i++ {
		s.Append("user", fmt.Sprintf("m%d", i))
	}
	hist := s.History()
	require.Len(t, hist, 4)
	assert.Equal(t, "m6", hist[0].Content)
	assert.Equal(t, "m9", hist[3].Content)

	s.Reset()
	assert.Empty(t, s.History())
}

func TestSessionWindowNeverExceedsLimit(t *testing.T) {
	for _, total := range []int{0, 1, 15, 16, 40} {
		s := NewSession(15)
		for i := 0; i < total; i++ {
			s.Append("assistant", "x")
		}
		want := total
		if want > 15 {
			want = 15
		}
		assert.Len(t, s.History(), want, "total=%d", total)
	}
}
