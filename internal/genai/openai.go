package genai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/selivandex/superagent/pkg/logger"
	"github.com/selivandex/superagent/pkg/models"
)

// OpenAIGenerator talks to any OpenAI-compatible chat-completions backend.
// The base URL selects the actual provider (OpenAI, DeepSeek, a local
// vLLM/Ollama gateway); the adapter stays the same.
type OpenAIGenerator struct {
	client            *openai.Client
	model             string
	streaming         bool
	sink              TokenSink
	thinkingDelimiter string
}

// OpenAIConfig configures the backend
type OpenAIConfig struct {
	APIKey            string
	BaseURL           string // Optional; empty uses api.openai.com
	Model             string
	Streaming         bool
	Sink              TokenSink // Optional; receives tokens when streaming
	ThinkingDelimiter string    // Optional; "" for non-reasoning models
}

// NewOpenAIGenerator creates new generator adapter
func NewOpenAIGenerator(cfg OpenAIConfig) *OpenAIGenerator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIGenerator{
		client:            openai.NewClientWithConfig(clientCfg),
		model:             cfg.Model,
		streaming:         cfg.Streaming,
		sink:              cfg.Sink,
		thinkingDelimiter: cfg.ThinkingDelimiter,
	}
}

// ChatCompletion returns a single completion. When streaming is configured,
// tokens are delivered to the sink in order and the returned text is
// assembled from main (non-reasoning) tokens only.
func (g *OpenAIGenerator) ChatCompletion(ctx context.Context, history models.ChatHistory) (string, error) {
	msgs := toOpenAIMessages(history)

	start := time.Now()

	var text string
	var err error
	if g.streaming {
		text, err = g.streamCompletion(ctx, msgs)
	} else {
		text, err = g.completion(ctx, msgs)
	}
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", &GenError{Reason: "empty response"}
	}

	logger.Debug("chat completion",
		zap.String("model", g.model),
		zap.Duration("latency", time.Since(start)),
		zap.Int("messages", history.Len()),
		zap.Int("response_len", len(text)),
	)

	return text, nil
}

// GenerateCode runs a completion and extracts fenced python blocks
func (g *OpenAIGenerator) GenerateCode(ctx context.Context, history models.ChatHistory, blockTags ...string) ([]string, string, error) {
	raw, err := g.ChatCompletion(ctx, history)
	if err != nil {
		return nil, "", err
	}

	snippets, err := ExtractCode(raw, blockTags...)
	if err != nil {
		return nil, raw, err
	}

	return snippets, raw, nil
}

// GenerateList runs a completion and extracts fenced yaml string lists
func (g *OpenAIGenerator) GenerateList(ctx context.Context, history models.ChatHistory, blockTags ...string) ([][]string, string, error) {
	raw, err := g.ChatCompletion(ctx, history)
	if err != nil {
		return nil, "", err
	}

	lists, err := ExtractLists(raw, blockTags...)
	if err != nil {
		return nil, raw, err
	}

	return lists, raw, nil
}

func (g *OpenAIGenerator) completion(ctx context.Context, msgs []openai.ChatCompletionMessage) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    g.model,
		Messages: msgs,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", &GenError{Reason: "no choices in response"}
	}

	return g.stripThinking(resp.Choices[0].Message.Content), nil
}

func (g *OpenAIGenerator) streamCompletion(ctx context.Context, msgs []openai.ChatCompletionMessage) (string, error) {
	stream, err := g.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    g.model,
		Messages: msgs,
		Stream:   true,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion stream failed: %w", err)
	}
	defer stream.Close()

	var sb strings.Builder
	thinkingOpen := false
	mainOpen := false

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("stream receive failed: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta

		if delta.ReasoningContent != "" {
			if !thinkingOpen {
				g.emit("<think>")
				thinkingOpen = true
			}
			g.emit(delta.ReasoningContent)
		}

		if delta.Content != "" {
			if thinkingOpen && !mainOpen {
				g.emit("</think>")
			}
			mainOpen = true
			g.emit(delta.Content)
			sb.WriteString(delta.Content)
		}
	}

	return g.stripThinking(sb.String()), nil
}

// stripThinking removes an inline reasoning prefix for backends that fold
// reasoning into the main content delimited by the configured token
func (g *OpenAIGenerator) stripThinking(text string) string {
	if g.thinkingDelimiter == "" {
		return text
	}
	closing := "</" + strings.TrimLeft(g.thinkingDelimiter, "<")
	if idx := strings.LastIndex(text, closing); idx >= 0 {
		return strings.TrimSpace(text[idx+len(closing):])
	}
	return text
}

func (g *OpenAIGenerator) emit(token string) {
	if g.sink != nil {
		g.sink(token)
	}
}

func toOpenAIMessages(history models.ChatHistory) []openai.ChatCompletionMessage {
	native := history.AsNative()
	msgs := make([]openai.ChatCompletionMessage, len(native))
	for i, m := range native {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return msgs
}
