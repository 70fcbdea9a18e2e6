package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/selivandex/superagent/internal/genai"
	"github.com/selivandex/superagent/pkg/models"
)

const summarizerAttempts = 3

const summarizerSystemPrompt = `You condense agent strategies and execution logs.
Given a bullet list, reply with one short paragraph capturing the essential action and outcome. Reply with the summary only.`

// Summarizer issues a single non-streaming completion over a bullet list.
// It is the producer of the summarized_desc used both as index key and as
// prior-cycle context.
type Summarizer struct {
	generator genai.Generator
}

// NewSummarizer creates new summarizer
func NewSummarizer(generator genai.Generator) *Summarizer {
	return &Summarizer{generator: generator}
}

// Summarize condenses the items into one trimmed paragraph, retrying up to
// three times on generator failure
func (s *Summarizer) Summarize(ctx context.Context, items []string) (string, error) {
	var b strings.Builder
	for _, item := range items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}

	chat := models.NewChatHistory(
		models.Message{Role: models.RoleSystem, Content: summarizerSystemPrompt},
		models.Message{Role: models.RoleUser, Content: b.String()},
	)

	var lastErr error
	for attempt := 1; attempt <= summarizerAttempts; attempt++ {
		out, err := s.generator.ChatCompletion(ctx, chat)
		if err != nil {
			lastErr = err
			continue
		}
		return strings.TrimSpace(out), nil
	}

	return "", fmt.Errorf("summarizer failed after %d attempts: %w", summarizerAttempts, lastErr)
}
