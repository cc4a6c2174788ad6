// Package llm wraps the language model and embedding clients used for answering.
package llm

import (
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/feichai0017/rag-service/config"
)

// Provider holds the process-wide model clients. Build it once at startup and pass it
// to the components that need it.
type Provider struct {
	model    llms.Model
	embedder embeddings.Embedder
}

// NewProvider wraps existing clients.
func NewProvider(model llms.Model, embedder embeddings.Embedder) (*Provider, error) {
	if model == nil || embedder == nil {
		return nil, errors.New("llm: model and embedder are required")
	}
	return &Provider{model: model, embedder: embedder}, nil
}

// NewOllamaProvider connects the chat model and the embedding model to an Ollama server.
func NewOllamaProvider(cfg config.LLMConfig) (*Provider, error) {
	chat, err := ollama.New(
		ollama.WithServerURL(cfg.ServerURL),
		ollama.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}

	embedClient, err := ollama.New(
		ollama.WithServerURL(cfg.ServerURL),
		ollama.WithModel(cfg.EmbeddingModel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama embedding client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(embedClient, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	return NewProvider(chat, embedder)
}

func (p *Provider) Model() llms.Model { return p.model }

func (p *Provider) Embedder() embeddings.Embedder { return p.embedder }
