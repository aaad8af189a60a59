package doctools

import (
	"context"
	"encoding/json"

	"github.com/draftmind/draftmind/internal/tools"
)

// ReadDocumentTool returns a document's title and content to the model
type ReadDocumentTool struct {
	store Store
}

// ReadDocumentArgs represents the arguments for reading a document
type ReadDocumentArgs struct {
	DocumentID string `json:"document_id"`
}

func NewReadDocumentTool(store Store) *ReadDocumentTool {
	return &ReadDocumentTool{store: store}
}

func (t *ReadDocumentTool) Name() string {
	return "read_document"
}

func (t *ReadDocumentTool) Description() string {
	return "Read a document's title and current content. Use this before editing when the content is not already in the conversation."
}

func (t *ReadDocumentTool) Parameters() json.RawMessage {
	schema := `{
		"type": "object",
		"properties": {
			"document_id": {
				"type": "string",
				"description": "Id of the document to read"
			}
		},
		"required": ["document_id"]
	}`
	return json.RawMessage(schema)
}

func (t *ReadDocumentTool) RequiresPremium() bool {
	return false
}

func (t *ReadDocumentTool) Execute(ctx context.Context, args json.RawMessage, ec tools.ExecutionContext) (tools.ToolResult, error) {
	var readArgs ReadDocumentArgs
	if err := json.Unmarshal(args, &readArgs); err != nil {
		return errorResult("Failed to parse read arguments: %v", err), nil
	}

	doc, errRes := loadDocument(ctx, t.store, readArgs.DocumentID)
	if errRes != nil {
		return *errRes, nil
	}

	return textResult("Document %s\nTitle: %s\n\n%s", doc.ID, doc.Title, doc.Content), nil
}
