// Package llm builds the embedding and chat model clients used by the pipeline and decorates
// them with caching and retries.
package llm

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"coursematch/src/core/rag"
)

type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderOllama Provider = "ollama"
)

const (
	DefaultEmbeddingModel = "text-embedding-ada-002"
	DefaultChatModel      = "gpt-3.5-turbo"
	DefaultOllamaURL      = "http://localhost:11434"
)

// Config selects a provider and model. Credentials are only read for OpenAI.
type Config struct {
	Provider  Provider
	Model     string
	APIKey    string
	BaseURL   string
	OllamaURL string
	// BatchSize is passed to langchaingo's embedder. Zero keeps its default.
	BatchSize int
}

// NewEmbedder returns a langchaingo embedder for cfg.
func NewEmbedder(cfg Config) (embeddings.Embedder, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultEmbeddingModel
	}
	var client embeddings.EmbedderClient
	switch cfg.Provider {
	case ProviderOpenAI, "":
		c, err := newOpenAI(cfg, openai.WithEmbeddingModel(cfg.Model))
		if err != nil {
			return nil, err
		}
		client = c
	case ProviderOllama:
		c, err := newOllama(cfg)
		if err != nil {
			return nil, err
		}
		client = c
	default:
		return nil, unknownProvider("embedding.provider", cfg.Provider)
	}

	var opts []embeddings.Option
	if cfg.BatchSize > 0 {
		opts = append(opts, embeddings.WithBatchSize(cfg.BatchSize))
	}
	emb, err := embeddings.NewEmbedder(client, opts...)
	if err != nil {
		return nil, fmt.Errorf("create %s embedder: %w", cfg.Provider, err)
	}
	return emb, nil
}

// NewModel returns a chat model for cfg.
func NewModel(cfg Config) (llms.Model, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultChatModel
	}
	switch cfg.Provider {
	case ProviderOpenAI, "":
		return newOpenAI(cfg, openai.WithModel(cfg.Model))
	case ProviderOllama:
		return newOllama(cfg)
	default:
		return nil, unknownProvider("llm.provider", cfg.Provider)
	}
}

func newOpenAI(cfg Config, extra ...openai.Option) (*openai.LLM, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &rag.ConfigurationError{Field: "openai.api_key", Reason: "must be set for the openai provider"}
	}
	opts := append([]openai.Option{openai.WithToken(cfg.APIKey)}, extra...)
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	c, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return c, nil
}

func newOllama(cfg Config) (*ollama.LLM, error) {
	url := cfg.OllamaURL
	if url == "" {
		url = DefaultOllamaURL
	}
	c, err := ollama.New(ollama.WithModel(cfg.Model), ollama.WithServerURL(url))
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	return c, nil
}

func unknownProvider(field string, p Provider) error {
	return &rag.ConfigurationError{Field: field, Reason: fmt.Sprintf("unknown provider %q", p)}
}
