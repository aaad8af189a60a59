package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/abadojack/whatlanggo"

	"github.com/draftmind/draftmind/internal/llm"
)

var intentGuidance = map[Intent]string{
	IntentCreateDocument: "the user wants a new document created",
	IntentEditDocument:   "the user wants an existing document rewritten or revised",
	IntentAppendContent:  "the user wants content added to the end of a document",
	IntentReplaceContent: "the user wants a document's content replaced wholesale",
	IntentFormatContent:  "the user wants a document reformatted or restyled",
	IntentClearDocument:  "the user wants a document emptied",
	IntentGeneralChat:    "anything else, including questions and conversation",
}

var classifySystemPrompt = buildClassifyPrompt()

func buildClassifyPrompt() string {
	var b strings.Builder
	b.WriteString("You are an intent classifier for a document writing assistant.\n")
	b.WriteString("Classify the user's message into exactly one of these intents:\n")
	for _, in := range All() {
		fmt.Fprintf(&b, "- %s: %s\n", in, intentGuidance[in])
	}
	b.WriteString("\nRespond with a single JSON object and nothing else:\n")
	b.WriteString(`{"intent": "<one of the labels above>", "document_id": "<id if the user referenced one, else empty>", "title": "<title for a new document, else empty>", "confidence": <0.0-1.0>}`)
	return b.String()
}

// Classification is the router's view of one user message
type Classification struct {
	Intent     Intent  `json:"intent"`
	DocumentID string  `json:"document_id,omitempty"`
	Title      string  `json:"title,omitempty"`
	Confidence float64 `json:"confidence"`

	// Language is the ISO 639-1 code detected from the message text,
	// used to ask the model to reply in the user's language
	Language string `json:"language,omitempty"`
}

// Classifier resolves a user message to one intent with a single
// JSON-mode model call.
type Classifier struct {
	client llm.CompletionClient
	model  string
}

// NewClassifier creates a classifier using the given (typically
// cheaper) model.
func NewClassifier(client llm.CompletionClient, model string) *Classifier {
	return &Classifier{client: client, model: model}
}

// Classify runs one classification call. The returned usage is folded
// into the request's ledger by the caller. Any failure is returned as
// an error; the caller decides how to degrade.
func (c *Classifier) Classify(ctx context.Context, message string) (Classification, llm.Usage, error) {
	messages := []llm.Message{
		{Role: "user", Content: message},
	}

	opts := llm.NewChatCompletionOptions().
		WithSystemPrompt(classifySystemPrompt).
		WithTemperature(0).
		WithJSONMode()
	if c.model != "" {
		opts = opts.WithModel(c.model)
	}

	resp, err := c.client.ChatCompletion(ctx, messages, opts)
	if err != nil {
		return Classification{}, llm.Usage{}, fmt.Errorf("classification call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Classification{}, resp.Usage, fmt.Errorf("no choices in classification response")
	}

	parsed, err := parseClassification(resp.Choices[0].Message.Content)
	if err != nil {
		return Classification{}, resp.Usage, err
	}

	parsed.Language = DetectLanguage(message)
	return parsed, resp.Usage, nil
}

// parseClassification tolerates code fences around the JSON object but
// nothing else.
func parseClassification(content string) (Classification, error) {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var raw struct {
		Intent     string  `json:"intent"`
		DocumentID string  `json:"document_id"`
		Title      string  `json:"title"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return Classification{}, fmt.Errorf("invalid classification response: %w", err)
	}

	return Classification{
		Intent:     Parse(raw.Intent),
		DocumentID: raw.DocumentID,
		Title:      raw.Title,
		Confidence: raw.Confidence,
	}, nil
}

// DetectLanguage returns the ISO 639-1 code of the text's language, or
// an empty string when there is nothing to detect.
func DetectLanguage(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	return whatlanggo.DetectLang(text).Iso6391()
}
