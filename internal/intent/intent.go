package intent

// Intent is the closed set of actions the router recognizes. Anything
// the classifier returns outside this set degrades to general chat.
type Intent string

const (
	IntentCreateDocument Intent = "create_document"
	IntentEditDocument   Intent = "edit_document"
	IntentAppendContent  Intent = "append_content"
	IntentReplaceContent Intent = "replace_content"
	IntentFormatContent  Intent = "format_content"
	IntentClearDocument  Intent = "clear_document"
	IntentGeneralChat    Intent = "general_chat"
)

var known = map[Intent]bool{
	IntentCreateDocument: true,
	IntentEditDocument:   true,
	IntentAppendContent:  true,
	IntentReplaceContent: true,
	IntentFormatContent:  true,
	IntentClearDocument:  true,
	IntentGeneralChat:    true,
}

// Parse maps a raw label to an Intent, degrading unknown labels to
// general_chat rather than failing.
func Parse(raw string) Intent {
	in := Intent(raw)
	if known[in] {
		return in
	}
	return IntentGeneralChat
}

// All returns every recognized intent, for prompt construction
func All() []Intent {
	return []Intent{
		IntentCreateDocument,
		IntentEditDocument,
		IntentAppendContent,
		IntentReplaceContent,
		IntentFormatContent,
		IntentClearDocument,
		IntentGeneralChat,
	}
}
