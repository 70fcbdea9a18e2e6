package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/selivandex/superagent/pkg/logger"
	"github.com/selivandex/superagent/pkg/metrics"
)

const localDimensions = 128

// Repository stores embeddings keyed by text hash. Embeddings are
// deterministic and expensive, so they are kept permanently to avoid
// redundant API calls.
type Repository interface {
	Get(ctx context.Context, textHash string) ([]float32, bool)
	Set(ctx context.Context, textHash string, embedding []float32, model string, textLength int) error
}

// Client generates text embeddings with optional deduplication. With no
// OpenAI client configured it falls back to a deterministic local embedding
// so the semantic index keeps working without credentials.
type Client struct {
	repository          Repository
	metricsBuffer       metrics.Buffer
	openaiClient        *openai.Client
	model               openai.EmbeddingModel
	deduplicationHits   int64
	deduplicationMisses int64
}

// Config for embedding client
type Config struct {
	OpenAIClient  *openai.Client        // Optional; nil enables local fallback
	Repository    Repository            // Optional repository for deduplication
	MetricsBuffer metrics.Buffer        // Optional metrics buffer
	Model         openai.EmbeddingModel // Default: openai.SmallEmbedding3
}

// NewClient creates new embedding client
func NewClient(cfg Config) *Client {
	model := cfg.Model
	if model == "" {
		model = openai.SmallEmbedding3
	}

	if cfg.OpenAIClient == nil {
		logger.Warn("no embedding API configured, using local hash embeddings")
	}
	if cfg.Repository != nil {
		logger.Info("embedding deduplication enabled")
	}

	return &Client{
		openaiClient:  cfg.OpenAIClient,
		repository:    cfg.Repository,
		metricsBuffer: cfg.MetricsBuffer,
		model:         model,
	}
}

// Generate creates embedding for single text with deduplication. The
// signature matches chromem's EmbeddingFunc so the client plugs straight
// into the semantic index.
func (c *Client) Generate(ctx context.Context, text string) ([]float32, error) {
	textHash := c.hashText(text)

	if c.repository != nil {
		if existing, found := c.repository.Get(ctx, textHash); found {
			atomic.AddInt64(&c.deduplicationHits, 1)
			c.recordDedup(textHash, len(text), true)
			return existing, nil
		}
		atomic.AddInt64(&c.deduplicationMisses, 1)
		c.recordDedup(textHash, len(text), false)
	}

	embedding, err := c.generate(ctx, text)
	if err != nil {
		return nil, err
	}

	if c.repository != nil {
		if err := c.repository.Set(ctx, textHash, embedding, string(c.model), len(text)); err != nil {
			logger.Warn("failed to persist embedding", zap.Error(err))
		}
	}

	return embedding, nil
}

// Stats returns deduplication hit/miss counters
func (c *Client) Stats() (hits, misses int64) {
	return atomic.LoadInt64(&c.deduplicationHits), atomic.LoadInt64(&c.deduplicationMisses)
}

func (c *Client) generate(ctx context.Context, text string) ([]float32, error) {
	if c.openaiClient == nil {
		return localEmbedding(text), nil
	}

	resp, err := c.openaiClient.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: c.model,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response is empty")
	}

	return resp.Data[0].Embedding, nil
}

func (c *Client) recordDedup(textHash string, textLen int, hit bool) {
	if c.metricsBuffer == nil {
		return
	}
	saved := 0.0
	if hit {
		saved = 0.0001
	}
	if err := c.metricsBuffer.Add(&metrics.EmbeddingDeduplicationMetric{
		Timestamp:    time.Now(),
		TextHash:     textHash[:16],
		TextLength:   textLen,
		Model:        string(c.model),
		CacheHit:     hit,
		CostSavedUSD: saved,
	}); err != nil {
		logger.Error("failed to add deduplication metric", zap.Error(err))
	}
}

func (c *Client) hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// localEmbedding builds a normalized bag-of-characters vector. Coarse, but
// deterministic and dependency-free for credential-less runs and tests.
func localEmbedding(text string) []float32 {
	embedding := make([]float32, localDimensions)

	for i, char := range text {
		idx := (int(char) + i) % localDimensions
		embedding[idx] += 1.0
	}

	norm := float32(0.0)
	for _, v := range embedding {
		norm += v * v
	}
	norm = float32(math.Sqrt(float64(norm)))

	if norm > 0 {
		for i := range embedding {
			embedding[i] /= norm
		}
	}

	return embedding
}
