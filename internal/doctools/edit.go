package doctools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/draftmind/draftmind/internal/tools"
)

const editSystemPrompt = `You are an expert editor for a writing assistant.
Rewrite the given document according to the instruction.
Preserve the author's voice and any content the instruction does not ask to change.`

// EditDocumentTool rewrites a document with a model call. Premium only.
type EditDocumentTool struct {
	store    Store
	rewriter Rewriter
}

// EditDocumentArgs represents the arguments for editing a document
type EditDocumentArgs struct {
	DocumentID  string `json:"document_id"`
	Instruction string `json:"instruction"`
}

func NewEditDocumentTool(store Store, rewriter Rewriter) *EditDocumentTool {
	return &EditDocumentTool{store: store, rewriter: rewriter}
}

func (t *EditDocumentTool) Name() string {
	return "edit_document"
}

func (t *EditDocumentTool) Description() string {
	return "Rewrite an existing document according to a free-form instruction. The document is edited in place."
}

func (t *EditDocumentTool) Parameters() json.RawMessage {
	schema := `{
		"type": "object",
		"properties": {
			"document_id": {
				"type": "string",
				"description": "Id of the document to edit"
			},
			"instruction": {
				"type": "string",
				"description": "What to change, e.g. 'make the tone more formal'"
			}
		},
		"required": ["document_id", "instruction"]
	}`
	return json.RawMessage(schema)
}

func (t *EditDocumentTool) RequiresPremium() bool {
	return true
}

func (t *EditDocumentTool) Execute(ctx context.Context, args json.RawMessage, ec tools.ExecutionContext) (tools.ToolResult, error) {
	var editArgs EditDocumentArgs
	if err := json.Unmarshal(args, &editArgs); err != nil {
		return errorResult("Failed to parse edit arguments: %v", err), nil
	}
	if editArgs.Instruction == "" {
		return errorResult("instruction is required"), nil
	}

	doc, errRes := loadDocument(ctx, t.store, editArgs.DocumentID)
	if errRes != nil {
		return *errRes, nil
	}

	rewritten, err := t.rewriter.Rewrite(ctx, editSystemPrompt, doc.Content, editArgs.Instruction)
	if err != nil {
		return errorResult("Edit failed: %v", err), nil
	}

	doc.Content = rewritten
	doc.UpdatedAt = time.Now().UTC()

	if err := t.store.UpsertDocument(ctx, doc); err != nil {
		return errorResult("Failed to save document %s: %v", doc.ID, err), nil
	}

	return textResult("Edited document %s (now %d characters)", doc.ID, len(doc.Content)), nil
}
