package doctools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/draftmind/draftmind/internal/tools"
)

// ReplaceContentTool replaces a document's content wholesale
type ReplaceContentTool struct {
	store Store
}

// ReplaceContentArgs represents the arguments for replacing content
type ReplaceContentArgs struct {
	DocumentID string `json:"document_id"`
	Content    string `json:"content"`
}

func NewReplaceContentTool(store Store) *ReplaceContentTool {
	return &ReplaceContentTool{store: store}
}

func (t *ReplaceContentTool) Name() string {
	return "replace_content"
}

func (t *ReplaceContentTool) Description() string {
	return "Replace the entire content of an existing document with new content."
}

func (t *ReplaceContentTool) Parameters() json.RawMessage {
	schema := `{
		"type": "object",
		"properties": {
			"document_id": {
				"type": "string",
				"description": "Id of the document to replace"
			},
			"content": {
				"type": "string",
				"description": "The new content"
			}
		},
		"required": ["document_id", "content"]
	}`
	return json.RawMessage(schema)
}

func (t *ReplaceContentTool) RequiresPremium() bool {
	return false
}

func (t *ReplaceContentTool) Execute(ctx context.Context, args json.RawMessage, ec tools.ExecutionContext) (tools.ToolResult, error) {
	var replaceArgs ReplaceContentArgs
	if err := json.Unmarshal(args, &replaceArgs); err != nil {
		return errorResult("Failed to parse replace arguments: %v", err), nil
	}

	doc, errRes := loadDocument(ctx, t.store, replaceArgs.DocumentID)
	if errRes != nil {
		return *errRes, nil
	}

	doc.Content = replaceArgs.Content
	doc.UpdatedAt = time.Now().UTC()

	if err := t.store.UpsertDocument(ctx, doc); err != nil {
		return errorResult("Failed to save document %s: %v", doc.ID, err), nil
	}

	return textResult("Replaced content of document %s (now %d characters)", doc.ID, len(doc.Content)), nil
}
