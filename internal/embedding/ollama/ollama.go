package ollama

import (
	"context"
	"fmt"

	"github.com/philippgille/chromem-go"
	"golang.org/x/sync/errgroup"

	"docrag/internal/embedding"
)

// Config configures the Ollama embedder.
type Config struct {
	BaseURL     string
	Model       string
	Dimension   int
	Concurrency int
}

// Embedder calls a local Ollama server, one request per text, through
// chromem-go's embedding function.
type Embedder struct {
	fn          chromem.EmbeddingFunc
	model       string
	dimension   int
	concurrency int
}

// NewEmbedder builds an embedder against an Ollama server.
func NewEmbedder(cfg Config) (*Embedder, error) {
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434/api"
	}
	return NewWithFunc(chromem.NewEmbeddingFuncOllama(cfg.Model, cfg.BaseURL), cfg.Model, cfg.Dimension, cfg.Concurrency)
}

// NewWithFunc wraps an arbitrary chromem embedding function.
func NewWithFunc(fn chromem.EmbeddingFunc, model string, dimension, concurrency int) (*Embedder, error) {
	if fn == nil {
		return nil, fmt.Errorf("ollama: embedding func is required")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("ollama: dimension for model %s must be set", model)
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Embedder{fn: fn, model: model, dimension: dimension, concurrency: concurrency}, nil
}

func (e *Embedder) Name() string   { return "ollama" }
func (e *Embedder) Dimension() int { return e.dimension }

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i := range texts {
		g.Go(func() error {
			v, err := e.EmbedOne(gctx, texts[i])
			if err != nil {
				return fmt.Errorf("text %d: %w", i, err)
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	v, err := e.fn(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("ollama %s: %w", e.model, err)
	}
	if err := embedding.CheckDimension(e.model, e.dimension, v); err != nil {
		return nil, err
	}
	return v, nil
}
