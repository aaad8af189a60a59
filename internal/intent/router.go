package intent

import (
	"encoding/json"
	"fmt"
)

// Dispatch is the deterministic outcome of routing one classification:
// either a single named tool with prebuilt arguments, or direct chat.
type Dispatch struct {
	ToolName string
	Args     json.RawMessage

	// Direct means no tool runs and the message goes straight to the
	// conversational model
	Direct bool
}

// Route maps a classification to exactly one tool invocation. The
// mapping is a fixed table; the model never chooses the tool on this
// path.
func Route(c Classification, userMessage string) (Dispatch, error) {
	switch c.Intent {
	case IntentGeneralChat:
		return Dispatch{Direct: true}, nil

	case IntentCreateDocument:
		title := c.Title
		if title == "" {
			title = "Untitled document"
		}
		return dispatch("create_document", map[string]string{
			"title":       title,
			"instruction": userMessage,
		})

	case IntentEditDocument:
		if c.DocumentID == "" {
			return Dispatch{}, fmt.Errorf("edit_document requires a document id")
		}
		return dispatch("edit_document", map[string]string{
			"document_id": c.DocumentID,
			"instruction": userMessage,
		})

	case IntentAppendContent:
		if c.DocumentID == "" {
			return Dispatch{}, fmt.Errorf("append_content requires a document id")
		}
		return dispatch("append_content", map[string]string{
			"document_id": c.DocumentID,
			"content":     userMessage,
		})

	case IntentReplaceContent:
		if c.DocumentID == "" {
			return Dispatch{}, fmt.Errorf("replace_content requires a document id")
		}
		return dispatch("replace_content", map[string]string{
			"document_id": c.DocumentID,
			"content":     userMessage,
		})

	case IntentFormatContent:
		if c.DocumentID == "" {
			return Dispatch{}, fmt.Errorf("format_content requires a document id")
		}
		return dispatch("format_content", map[string]string{
			"document_id": c.DocumentID,
			"style":       userMessage,
		})

	case IntentClearDocument:
		if c.DocumentID == "" {
			return Dispatch{}, fmt.Errorf("clear_document requires a document id")
		}
		return dispatch("clear_document", map[string]string{
			"document_id": c.DocumentID,
		})

	default:
		return Dispatch{Direct: true}, nil
	}
}

func dispatch(tool string, args map[string]string) (Dispatch, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return Dispatch{}, fmt.Errorf("build %s arguments: %w", tool, err)
	}
	return Dispatch{ToolName: tool, Args: raw}, nil
}
