package doctools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/draftmind/draftmind/internal/tools"
)

const formatSystemPrompt = `You are a formatting engine for a writing assistant.
Reformat the given document into the requested style without changing its meaning.
Do not add, remove, or reword content beyond what the formatting requires.`

// FormatContentTool reformats a document with a model call. Premium only.
type FormatContentTool struct {
	store    Store
	rewriter Rewriter
}

// FormatContentArgs represents the arguments for formatting a document
type FormatContentArgs struct {
	DocumentID string `json:"document_id"`
	Style      string `json:"style"`
}

func NewFormatContentTool(store Store, rewriter Rewriter) *FormatContentTool {
	return &FormatContentTool{store: store, rewriter: rewriter}
}

func (t *FormatContentTool) Name() string {
	return "format_content"
}

func (t *FormatContentTool) Description() string {
	return "Reformat a document into a given style (e.g. 'markdown with headings', 'bullet points') without changing its meaning."
}

func (t *FormatContentTool) Parameters() json.RawMessage {
	schema := `{
		"type": "object",
		"properties": {
			"document_id": {
				"type": "string",
				"description": "Id of the document to format"
			},
			"style": {
				"type": "string",
				"description": "The target style or structure"
			}
		},
		"required": ["document_id", "style"]
	}`
	return json.RawMessage(schema)
}

func (t *FormatContentTool) RequiresPremium() bool {
	return true
}

func (t *FormatContentTool) Execute(ctx context.Context, args json.RawMessage, ec tools.ExecutionContext) (tools.ToolResult, error) {
	var formatArgs FormatContentArgs
	if err := json.Unmarshal(args, &formatArgs); err != nil {
		return errorResult("Failed to parse format arguments: %v", err), nil
	}
	if formatArgs.Style == "" {
		return errorResult("style is required"), nil
	}

	doc, errRes := loadDocument(ctx, t.store, formatArgs.DocumentID)
	if errRes != nil {
		return *errRes, nil
	}
	if doc.Content == "" {
		return errorResult("Document %s is empty, nothing to format", doc.ID), nil
	}

	instruction := fmt.Sprintf("Reformat into this style: %s", formatArgs.Style)
	rewritten, err := t.rewriter.Rewrite(ctx, formatSystemPrompt, doc.Content, instruction)
	if err != nil {
		return errorResult("Format failed: %v", err), nil
	}

	doc.Content = rewritten
	doc.UpdatedAt = time.Now().UTC()

	if err := t.store.UpsertDocument(ctx, doc); err != nil {
		return errorResult("Failed to save document %s: %v", doc.ID, err), nil
	}

	return textResult("Formatted document %s (now %d characters)", doc.ID, len(doc.Content)), nil
}
