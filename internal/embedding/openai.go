// Cadenza - Music Publishing Usage Matching Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadenza

package embedding

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/tomtom215/cadenza/internal/event"
)

// OpenAIConfig holds provider connection settings.
type OpenAIConfig struct {
	APIKey string

	// BaseURL overrides the API endpoint, for proxies and compatible
	// providers. Empty uses the default.
	BaseURL string

	// Model is the embedding model name.
	Model string

	// RequestTimeout bounds each HTTP request.
	RequestTimeout time.Duration
}

// OpenAIProvider generates embeddings with the OpenAI embeddings API.
type OpenAIProvider struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewOpenAIProvider creates a provider from config.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding provider API key is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.RequestTimeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.RequestTimeout}
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientCfg),
		model:  openai.EmbeddingModel(cfg.Model),
	}, nil
}

// CreateEmbeddings requests one vector per input text. The provider
// returns vectors positionally aligned with the request, and each must
// carry the pipeline's fixed dimensionality.
func (p *OpenAIProvider) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input:      texts,
		Model:      p.model,
		Dimensions: event.EmbeddingDim,
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response size mismatch: got %d, want %d",
			len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, item := range resp.Data {
		if len(item.Embedding) != event.EmbeddingDim {
			return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d",
				len(item.Embedding), event.EmbeddingDim)
		}
		vectors[i] = item.Embedding
	}

	return vectors, nil
}
