package agent

import (
	"time"

	"github.com/draftmind/draftmind/internal/usage"
)

// ChunkType discriminates the payload carried by a Chunk
type ChunkType string

const (
	// ChunkContent carries a piece of assistant text
	ChunkContent ChunkType = "content"

	// ChunkToolCall carries a completed tool call record
	ChunkToolCall ChunkType = "tool_call"

	// ChunkMetadata carries run status; a metadata chunk with status
	// "complete" is a terminal chunk
	ChunkMetadata ChunkType = "metadata"

	// ChunkError carries a fatal error and is always terminal
	ChunkError ChunkType = "error"
)

// Run status values carried by metadata chunks
const (
	StatusStarting = "starting"
	StatusComplete = "complete"
)

// Chunk is one typed unit of the response stream. Chunks are delivered
// in emission order; the last chunk of a healthy stream is metadata
// with status "complete", the last chunk of a failed stream is error.
type Chunk struct {
	Type      ChunkType `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// ContentData is the payload of a content chunk
type ContentData struct {
	Text string `json:"text"`
}

// ToolCallData is the payload of a tool_call chunk
type ToolCallData struct {
	Record ToolCallRecord `json:"record"`
}

// MetadataData is the payload of a metadata chunk
type MetadataData struct {
	Status       string       `json:"status"`
	Turns        int          `json:"turns,omitempty"`
	TurnLimitHit bool         `json:"turn_limit_hit,omitempty"`
	Usage        usage.Totals `json:"usage,omitempty"`
	Language     string       `json:"language,omitempty"`
}

// ErrorData is the payload of an error chunk
type ErrorData struct {
	Message string `json:"message"`
}

func contentChunk(text string) Chunk {
	return Chunk{Type: ChunkContent, Data: ContentData{Text: text}, Timestamp: time.Now()}
}

func toolCallChunk(record ToolCallRecord) Chunk {
	return Chunk{Type: ChunkToolCall, Data: ToolCallData{Record: record}, Timestamp: time.Now()}
}

func metadataChunk(data MetadataData) Chunk {
	return Chunk{Type: ChunkMetadata, Data: data, Timestamp: time.Now()}
}

func errorChunk(message string) Chunk {
	return Chunk{Type: ChunkError, Data: ErrorData{Message: message}, Timestamp: time.Now()}
}
