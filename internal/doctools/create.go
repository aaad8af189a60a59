package doctools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/draftmind/draftmind/internal/persistence"
	"github.com/draftmind/draftmind/internal/tools"
)

// CreateDocumentTool creates a new empty or pre-filled document
type CreateDocumentTool struct {
	store Store
}

// CreateDocumentArgs represents the arguments for document creation
type CreateDocumentArgs struct {
	Title   string `json:"title"`
	Content string `json:"content,omitempty"`
}

func NewCreateDocumentTool(store Store) *CreateDocumentTool {
	return &CreateDocumentTool{store: store}
}

func (t *CreateDocumentTool) Name() string {
	return "create_document"
}

func (t *CreateDocumentTool) Description() string {
	return "Create a new document with a title and optional initial content. Returns the new document's id."
}

func (t *CreateDocumentTool) Parameters() json.RawMessage {
	schema := `{
		"type": "object",
		"properties": {
			"title": {
				"type": "string",
				"description": "Title of the new document"
			},
			"content": {
				"type": "string",
				"description": "Optional initial content"
			}
		},
		"required": ["title"]
	}`
	return json.RawMessage(schema)
}

func (t *CreateDocumentTool) RequiresPremium() bool {
	return false
}

func (t *CreateDocumentTool) Execute(ctx context.Context, args json.RawMessage, ec tools.ExecutionContext) (tools.ToolResult, error) {
	var createArgs CreateDocumentArgs
	if err := json.Unmarshal(args, &createArgs); err != nil {
		return errorResult("Failed to parse create arguments: %v", err), nil
	}
	if createArgs.Title == "" {
		return errorResult("title is required"), nil
	}

	now := time.Now().UTC()
	doc := persistence.Document{
		ID:        uuid.NewString(),
		OwnerID:   ec.UserID,
		ProjectID: ec.ProjectID,
		Title:     createArgs.Title,
		Content:   createArgs.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := t.store.UpsertDocument(ctx, doc); err != nil {
		return errorResult("Failed to create document: %v", err), nil
	}

	return textResult("Created document %s (%q, %d characters)", doc.ID, doc.Title, len(doc.Content)), nil
}
