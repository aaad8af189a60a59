package agent

import (
	"github.com/draftmind/draftmind/internal/llm"
	"github.com/draftmind/draftmind/internal/tools"
	"github.com/draftmind/draftmind/internal/usage"
)

// Request represents one user turn handed to the engine
type Request struct {
	// SessionID identifies the conversation this turn belongs to
	SessionID string

	// UserID and ProjectID identify who the tools run on behalf of
	UserID    string
	ProjectID string

	// Premium unlocks premium-gated tools for this request
	Premium bool

	// SystemPrompt is the system prompt to set context
	SystemPrompt string

	// UserMessage is the user's message/task
	UserMessage string

	// History is the prior conversation, oldest first
	History []llm.Message

	// Model overrides the configured model when non-empty
	Model string

	// Temperature overrides the configured temperature when >= 0
	Temperature float64

	// MaxTurns overrides the engine's turn ceiling when > 0
	MaxTurns int

	// Meta is carried into the tool execution context untouched
	Meta map[string]string
}

// ExecutionContext builds the immutable context tools run under
func (r Request) ExecutionContext() tools.ExecutionContext {
	return tools.ExecutionContext{
		SessionID: r.SessionID,
		UserID:    r.UserID,
		ProjectID: r.ProjectID,
		Premium:   r.Premium,
		Meta:      r.Meta,
	}
}

// Result represents the outcome of a completed engine run
type Result struct {
	// Text is the accumulated assistant text, including any partial
	// text produced before the turn ceiling was hit
	Text string

	// ToolCalls records every tool invocation in execution order
	ToolCalls []ToolCallRecord

	// Usage is the folded token usage and cost across all rounds
	Usage usage.Totals

	// Turns is the number of reasoning-model calls made
	Turns int

	// TurnLimitHit reports that the ceiling ended the run before the
	// model signalled completion
	TurnLimitHit bool

	// Aborted reports that the consumer or its context ended the run
	Aborted bool
}

// ToolCallRecord records a single tool call and its result
type ToolCallRecord struct {
	// ID is the correlation id, taken from the model or synthesized
	ID string `json:"id"`

	// ToolName is the name of the tool that was called
	ToolName string `json:"tool_name"`

	// Arguments is the JSON arguments passed to the tool
	Arguments string `json:"arguments"`

	// Result is the output from the tool
	Result string `json:"result"`

	// IsError indicates if the tool execution resulted in an error
	IsError bool `json:"is_error"`

	// DurationMs is the wall-clock execution time
	DurationMs int64 `json:"duration_ms"`
}

// BuildHistory converts persisted role/content pairs into the message
// slice the engine feeds the model, trimming to the most recent
// maxMessages entries.
func BuildHistory(pairs []llm.Message, maxMessages int) []llm.Message {
	if maxMessages > 0 && len(pairs) > maxMessages {
		pairs = pairs[len(pairs)-maxMessages:]
	}
	history := make([]llm.Message, len(pairs))
	copy(history, pairs)
	return history
}
