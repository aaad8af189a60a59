// Package doctools implements the document tools the assistant exposes
// to the reasoning model: plain store operations plus two premium tools
// that call the model themselves to rewrite a document body.
package doctools

import (
	"context"
	"fmt"

	"github.com/draftmind/draftmind/internal/persistence"
	"github.com/draftmind/draftmind/internal/tools"
)

// Store is the document storage surface the tools need
type Store interface {
	GetDocument(ctx context.Context, id string) (persistence.Document, bool, error)
	UpsertDocument(ctx context.Context, doc persistence.Document) error
}

// RegisterAll registers the full document tool set in a fixed order so
// the advertised schema list is stable.
func RegisterAll(registry *tools.Registry, store Store, rewriter Rewriter) error {
	all := []tools.Tool{
		NewCreateDocumentTool(store),
		NewAppendContentTool(store),
		NewReplaceContentTool(store),
		NewClearDocumentTool(store),
		NewReadDocumentTool(store),
		NewEditDocumentTool(store, rewriter),
		NewFormatContentTool(store, rewriter),
	}
	for _, tool := range all {
		if err := registry.Register(tool); err != nil {
			return fmt.Errorf("register %s: %w", tool.Name(), err)
		}
	}
	return nil
}

func errorResult(format string, args ...interface{}) tools.ToolResult {
	return tools.ToolResult{
		Content: fmt.Sprintf(format, args...),
		IsError: true,
	}
}

func textResult(format string, args ...interface{}) tools.ToolResult {
	return tools.ToolResult{
		Content: fmt.Sprintf(format, args...),
	}
}

// loadDocument fetches a document, shaping missing ids and store
// failures as tool errors the model can react to.
func loadDocument(ctx context.Context, store Store, id string) (persistence.Document, *tools.ToolResult) {
	if id == "" {
		res := errorResult("document_id is required")
		return persistence.Document{}, &res
	}
	doc, found, err := store.GetDocument(ctx, id)
	if err != nil {
		res := errorResult("Failed to load document %s: %v", id, err)
		return persistence.Document{}, &res
	}
	if !found {
		res := errorResult("Document %s not found", id)
		return persistence.Document{}, &res
	}
	return doc, nil
}
