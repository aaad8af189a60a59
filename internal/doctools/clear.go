package doctools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/draftmind/draftmind/internal/tools"
)

// ClearDocumentTool empties a document's content, keeping the document
type ClearDocumentTool struct {
	store Store
}

// ClearDocumentArgs represents the arguments for clearing a document
type ClearDocumentArgs struct {
	DocumentID string `json:"document_id"`
}

func NewClearDocumentTool(store Store) *ClearDocumentTool {
	return &ClearDocumentTool{store: store}
}

func (t *ClearDocumentTool) Name() string {
	return "clear_document"
}

func (t *ClearDocumentTool) Description() string {
	return "Remove all content from a document. The document itself and its title remain."
}

func (t *ClearDocumentTool) Parameters() json.RawMessage {
	schema := `{
		"type": "object",
		"properties": {
			"document_id": {
				"type": "string",
				"description": "Id of the document to clear"
			}
		},
		"required": ["document_id"]
	}`
	return json.RawMessage(schema)
}

func (t *ClearDocumentTool) RequiresPremium() bool {
	return false
}

func (t *ClearDocumentTool) Execute(ctx context.Context, args json.RawMessage, ec tools.ExecutionContext) (tools.ToolResult, error) {
	var clearArgs ClearDocumentArgs
	if err := json.Unmarshal(args, &clearArgs); err != nil {
		return errorResult("Failed to parse clear arguments: %v", err), nil
	}

	doc, errRes := loadDocument(ctx, t.store, clearArgs.DocumentID)
	if errRes != nil {
		return *errRes, nil
	}

	removed := len(doc.Content)
	doc.Content = ""
	doc.UpdatedAt = time.Now().UTC()

	if err := t.store.UpsertDocument(ctx, doc); err != nil {
		return errorResult("Failed to save document %s: %v", doc.ID, err), nil
	}

	return textResult("Cleared document %s (%d characters removed)", doc.ID, removed), nil
}
