package genai

import (
	"context"
	"fmt"

	"github.com/selivandex/superagent/pkg/models"
)

// TokenSink receives streamed tokens in order. Backends with separate
// reasoning and main streams emit "<think>" before the first reasoning token
// and "</think>" before the first main token so a consumer can partition the
// display. Returned text never contains reasoning tokens.
type TokenSink func(token string)

// Generator is the uniform interface over language-model backends
type Generator interface {
	// ChatCompletion returns a single completion for the history
	ChatCompletion(ctx context.Context, history models.ChatHistory) (string, error)

	// GenerateCode returns the python snippets extracted from a completion
	// plus the raw text. With blockTags, extraction narrows to the content
	// of each named XML-like tag, one snippet per tag.
	GenerateCode(ctx context.Context, history models.ChatHistory, blockTags ...string) ([]string, string, error)

	// GenerateList returns string lists parsed from fenced yaml blocks plus
	// the raw text, one list per tag when blockTags are given
	GenerateList(ctx context.Context, history models.ChatHistory, blockTags ...string) ([][]string, string, error)
}

// GenError reports malformed generator output: no code fence, yaml that is
// not a sequence of strings, empty response. Recoverable by regen.
type GenError struct {
	Reason string
	Raw    string
}

func (e *GenError) Error() string {
	return fmt.Sprintf("generation error: %s", e.Reason)
}
