package chat

import (
	"errors"
	"fmt"
)

// Provider identifies a completion backend. The set is closed; anything
// else fails before any network traffic.
type Provider string

const (
	ProviderOllama     Provider = "ollama"
	ProviderOpenAI     Provider = "openai"
	ProviderOpenRouter Provider = "openrouter"
)

var ErrUnknownProvider = errors.New("unknown provider")

// ParseProvider validates a provider name from the wire.
func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case ProviderOllama, ProviderOpenAI, ProviderOpenRouter:
		return Provider(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
	}
}

// Message is one turn of model-facing context.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes one completion call. History is prior turns, oldest
// first; Message is the new user input appended after it.
type Request struct {
	Provider    Provider
	Model       string
	Message     string
	History     []Message
	Temperature float64
}

// Fragment is one streamed piece of a completion. Err marks a fragment
// synthesized from an upstream failure; its Content is already formatted
// for display and it is always the final fragment.
type Fragment struct {
	Content string
	Err     error
}

// ModelInfo is one entry from a provider's model listing.
type ModelInfo struct {
	Name string `json:"name"`
}
