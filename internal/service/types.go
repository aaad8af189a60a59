package service

import (
	"github.com/draftmind/draftmind/internal/intent"
	"github.com/draftmind/draftmind/internal/usage"
)

// ChatRequest is one user message on either call path
type ChatRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	ProjectID string `json:"project_id,omitempty"`
	Premium   bool   `json:"premium"`
	Message   string `json:"message"`
}

// ChatResponse is the routed, single-turn reply
type ChatResponse struct {
	SessionID       string        `json:"session_id"`
	Intent          intent.Intent `json:"intent"`
	Reply           string        `json:"reply"`
	DocumentUpdated bool          `json:"document_updated"`
	DocumentID      string        `json:"document_id,omitempty"`
	Language        string        `json:"language,omitempty"`
	Degraded        bool          `json:"degraded,omitempty"`
	Usage           usage.Totals  `json:"usage"`
}
