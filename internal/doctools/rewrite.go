package doctools

import (
	"context"
	"fmt"
	"strings"

	"github.com/draftmind/draftmind/internal/llm"
)

// Rewriter produces a new document body from the current one and an
// instruction. The edit and format tools call it instead of talking to
// the model client directly, so tests can substitute a fake.
type Rewriter interface {
	Rewrite(ctx context.Context, systemPrompt, content, instruction string) (string, error)
}

// LLMRewriter rewrites document bodies with a chat completion call
type LLMRewriter struct {
	client llm.CompletionClient
	model  string
}

func NewLLMRewriter(client llm.CompletionClient, model string) *LLMRewriter {
	return &LLMRewriter{client: client, model: model}
}

func (r *LLMRewriter) Rewrite(ctx context.Context, systemPrompt, content, instruction string) (string, error) {
	prompt := fmt.Sprintf("Current document content:\n---\n%s\n---\n\nInstruction: %s\n\nReturn only the full rewritten document content, nothing else.", content, instruction)

	messages := []llm.Message{
		{Role: "user", Content: prompt},
	}

	opts := llm.NewChatCompletionOptions().
		WithSystemPrompt(systemPrompt)
	if r.model != "" {
		opts = opts.WithModel(r.model)
	}

	resp, err := r.client.ChatCompletion(ctx, messages, opts)
	if err != nil {
		return "", fmt.Errorf("rewrite call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in rewrite response")
	}

	rewritten := strings.TrimSpace(resp.Choices[0].Message.Content)
	if rewritten == "" {
		return "", fmt.Errorf("rewrite produced empty content")
	}
	return rewritten, nil
}
