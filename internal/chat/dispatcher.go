// Package chat routes completion requests to the configured model
// providers and exposes them as fragment streams.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/vesperchat/vesper/internal/config"
)

const modelListTimeout = 3 * time.Second

// fallbackLocalModels is served when the local model server cannot be
// reached, so the model picker is never empty.
var fallbackLocalModels = []ModelInfo{
	{Name: "llama2"},
	{Name: "mistral"},
	{Name: "codellama"},
}

// Dispatcher owns one client per configured provider. It is safe for
// concurrent use; clients are built once at startup.
type Dispatcher struct {
	cfg     config.ProvidersConfig
	logger  *slog.Logger
	clients map[Provider]*openai.Client
	http    *http.Client
	prompt  string
}

func NewDispatcher(log *slog.Logger, cfg config.ProvidersConfig) *Dispatcher {
	d := &Dispatcher{
		cfg:     cfg,
		logger:  log.With(slog.String("service", "chat")),
		clients: make(map[Provider]*openai.Client, 3),
		http:    &http.Client{Timeout: modelListTimeout},
		prompt:  SystemPrompt,
	}

	// The local model server speaks the OpenAI chat API but ignores the
	// key; the client library still requires one.
	ollama := openai.DefaultConfig("ollama")
	ollama.BaseURL = strings.TrimRight(cfg.Ollama.BaseURL, "/") + "/v1"
	d.clients[ProviderOllama] = openai.NewClientWithConfig(ollama)

	oa := openai.DefaultConfig(cfg.OpenAI.APIKey)
	if cfg.OpenAI.BaseURL != "" {
		oa.BaseURL = strings.TrimRight(cfg.OpenAI.BaseURL, "/")
	}
	d.clients[ProviderOpenAI] = openai.NewClientWithConfig(oa)

	or := openai.DefaultConfig(cfg.OpenRouter.APIKey)
	or.BaseURL = strings.TrimRight(cfg.OpenRouter.BaseURL, "/")
	d.clients[ProviderOpenRouter] = openai.NewClientWithConfig(or)

	return d
}

// SetSystemPrompt overrides the built-in system prompt. Call before the
// dispatcher serves traffic.
func (d *Dispatcher) SetSystemPrompt(prompt string) {
	if prompt != "" {
		d.prompt = prompt
	}
}

// DefaultModel returns the configured model for a provider.
func (d *Dispatcher) DefaultModel(p Provider) string {
	switch p {
	case ProviderOllama:
		return d.cfg.Ollama.DefaultModel
	case ProviderOpenAI:
		return d.cfg.OpenAI.DefaultModel
	case ProviderOpenRouter:
		return d.cfg.OpenRouter.DefaultModel
	default:
		return ""
	}
}

// StreamCompletion starts a completion and returns its fragment stream.
// Provider validation happens before any network call. Once the stream is
// open, upstream failures never surface as Go errors mid-turn: they are
// converted to a single display-formatted error fragment and the stream
// closes. The channel is always closed when the turn ends.
func (d *Dispatcher) StreamCompletion(ctx context.Context, req Request) (<-chan Fragment, error) {
	client, ok := d.clients[req.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, req.Provider)
	}
	model := req.Model
	if model == "" {
		model = d.DefaultModel(req.Provider)
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: d.prompt,
	})
	for _, m := range req.History {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Message,
	})

	out := make(chan Fragment, 16)
	go func() {
		defer close(out)
		stream, err := client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model:       model,
			Messages:    msgs,
			Temperature: wireTemperature(req.Temperature),
			Stream:      true,
		})
		if err != nil {
			if ctx.Err() == nil {
				d.emitError(ctx, out, req.Provider, err)
			}
			return
		}
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if err != nil {
				if !isStreamEnd(err) && ctx.Err() == nil {
					d.emitError(ctx, out, req.Provider, err)
				}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case out <- Fragment{Content: delta}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// emitError turns an upstream failure into the turn's final fragment so
// the user sees it inline instead of a dead stream.
func (d *Dispatcher) emitError(ctx context.Context, out chan<- Fragment, p Provider, err error) {
	d.logger.Error("completion stream failed",
		slog.String("provider", string(p)), slog.Any("error", err))
	frag := Fragment{
		Content: fmt.Sprintf("\n\n**Error connecting to %s:** %v", p, err),
		Err:     err,
	}
	select {
	case out <- frag:
	case <-ctx.Done():
	}
}

func isStreamEnd(err error) bool {
	return errors.Is(err, io.EOF)
}

// wireTemperature maps a requested temperature onto the client library's
// field, which drops a literal zero from the request body via omitempty.
// An explicit 0 is encoded as the smallest positive float32 so the
// provider sees it instead of substituting its own default.
func wireTemperature(t float64) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

// ListLocalModels asks the local model server for its installed models.
// The call is bounded by a short timeout and any failure degrades to a
// fixed fallback list rather than an error.
func (d *Dispatcher) ListLocalModels(ctx context.Context) []ModelInfo {
	url := strings.TrimRight(d.cfg.Ollama.BaseURL, "/") + "/api/tags"
	ctx, cancel := context.WithTimeout(ctx, modelListTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fallbackLocalModels
	}
	resp, err := d.http.Do(req)
	if err != nil {
		d.logger.Warn("local model listing unavailable", slog.Any("error", err))
		return fallbackLocalModels
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		d.logger.Warn("local model listing unavailable", slog.Int("status", resp.StatusCode))
		return fallbackLocalModels
	}

	var body struct {
		Models []ModelInfo `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || len(body.Models) == 0 {
		return fallbackLocalModels
	}
	return body.Models
}
