package doctools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/draftmind/draftmind/internal/tools"
)

// AppendContentTool appends content to the end of an existing document
type AppendContentTool struct {
	store Store
}

// AppendContentArgs represents the arguments for appending content
type AppendContentArgs struct {
	DocumentID string `json:"document_id"`
	Content    string `json:"content"`
}

func NewAppendContentTool(store Store) *AppendContentTool {
	return &AppendContentTool{store: store}
}

func (t *AppendContentTool) Name() string {
	return "append_content"
}

func (t *AppendContentTool) Description() string {
	return "Append content to the end of an existing document, preserving what is already there."
}

func (t *AppendContentTool) Parameters() json.RawMessage {
	schema := `{
		"type": "object",
		"properties": {
			"document_id": {
				"type": "string",
				"description": "Id of the document to append to"
			},
			"content": {
				"type": "string",
				"description": "Content to append"
			}
		},
		"required": ["document_id", "content"]
	}`
	return json.RawMessage(schema)
}

func (t *AppendContentTool) RequiresPremium() bool {
	return false
}

func (t *AppendContentTool) Execute(ctx context.Context, args json.RawMessage, ec tools.ExecutionContext) (tools.ToolResult, error) {
	var appendArgs AppendContentArgs
	if err := json.Unmarshal(args, &appendArgs); err != nil {
		return errorResult("Failed to parse append arguments: %v", err), nil
	}
	if appendArgs.Content == "" {
		return errorResult("content is required"), nil
	}

	doc, errRes := loadDocument(ctx, t.store, appendArgs.DocumentID)
	if errRes != nil {
		return *errRes, nil
	}

	if doc.Content != "" {
		doc.Content += "\n"
	}
	doc.Content += appendArgs.Content
	doc.UpdatedAt = time.Now().UTC()

	if err := t.store.UpsertDocument(ctx, doc); err != nil {
		return errorResult("Failed to save document %s: %v", doc.ID, err), nil
	}

	return textResult("Appended %d characters to document %s (now %d characters)", len(appendArgs.Content), doc.ID, len(doc.Content)), nil
}
