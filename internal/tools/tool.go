package tools

import (
	"context"
	"encoding/json"
)

// ToolResult represents the result of a tool execution
type ToolResult struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// ExecutionContext carries the request-scoped identity a tool runs
// under. It is built once per request and never mutated afterwards.
type ExecutionContext struct {
	SessionID string            `json:"session_id"`
	UserID    string            `json:"user_id"`
	ProjectID string            `json:"project_id,omitempty"`
	Premium   bool              `json:"premium"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// Tool defines the interface for tools that can be called by the agent
type Tool interface {
	// Name returns the unique name of the tool
	Name() string

	// Description returns a description of what the tool does
	Description() string

	// Parameters returns the JSON Schema for the tool's parameters
	Parameters() json.RawMessage

	// RequiresPremium reports whether invocation needs the premium flag
	RequiresPremium() bool

	// Execute runs the tool with the given arguments and returns the result
	Execute(ctx context.Context, args json.RawMessage, ec ExecutionContext) (ToolResult, error)
}
