package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/draftmind/draftmind/internal/llm"
	"github.com/draftmind/draftmind/internal/tools"
	"github.com/draftmind/draftmind/internal/usage"
	"github.com/draftmind/draftmind/pkg/log"
)

// Engine runs the bounded reasoning/tool-calling loop for one request
// and streams typed chunks to the caller. Tool failures are converted
// to records and fed back to the model; only reasoning-model failures
// terminate a run with an error.
type Engine struct {
	client       llm.CompletionClient
	registry     *tools.Registry
	prices       usage.PriceTable
	maxTurns     int
	toolTimeout  time.Duration
	streamBuffer int
}

// NewEngine creates a new turn engine
func NewEngine(client llm.CompletionClient, registry *tools.Registry, prices usage.PriceTable, maxTurns int, toolTimeout time.Duration, streamBuffer int) *Engine {
	if maxTurns <= 0 {
		maxTurns = 8
	}
	if toolTimeout <= 0 {
		toolTimeout = 30 * time.Second
	}
	if prices == nil {
		prices = usage.DefaultPrices()
	}
	return &Engine{
		client:       client,
		registry:     registry,
		prices:       prices,
		maxTurns:     maxTurns,
		toolTimeout:  toolTimeout,
		streamBuffer: streamBuffer,
	}
}

// Execute starts the run and returns immediately. The loop runs in its
// own goroutine; the returned stream is the only handle to it.
func (e *Engine) Execute(ctx context.Context, req Request) *Stream {
	stream := newStream(e.streamBuffer)
	go e.run(ctx, req, stream)
	return stream
}

func (e *Engine) run(ctx context.Context, req Request, stream *Stream) {
	result := &Result{
		ToolCalls: make([]ToolCallRecord, 0),
	}
	var text strings.Builder

	messages := append(BuildHistory(req.History, 0), llm.Message{
		Role:    "user",
		Content: req.UserMessage,
	})

	toolDefs := e.registry.ToOpenAIFormat()
	ec := req.ExecutionContext()

	opts := llm.NewChatCompletionOptions().
		WithSystemPrompt(req.SystemPrompt)
	if req.Model != "" {
		opts = opts.WithModel(req.Model)
	}
	if req.Temperature >= 0 && req.Temperature <= 2 {
		opts = opts.WithTemperature(req.Temperature)
	}

	maxTurns := e.maxTurns
	if req.MaxTurns > 0 {
		maxTurns = req.MaxTurns
	}

	if !stream.send(ctx, metadataChunk(MetadataData{Status: StatusStarting})) {
		e.abort(ctx, stream, result, &text)
		return
	}

	done := false

	for turn := 0; turn < maxTurns && !done; turn++ {
		result.Turns++

		resp, err := e.client.ChatCompletionWithTools(ctx, messages, toolDefs, opts)
		if err != nil {
			e.fail(ctx, stream, result, fmt.Errorf("LLM call failed at turn %d: %w", turn+1, err))
			return
		}
		result.Usage = usage.Fold(result.Usage, resp.Model, resp.Usage, e.prices)

		if len(resp.Choices) == 0 {
			e.fail(ctx, stream, result, fmt.Errorf("no choices in response at turn %d", turn+1))
			return
		}

		choice := resp.Choices[0]
		assistantMsg := choice.Message

		switch choice.FinishReason {
		case "tool_calls":
			if len(assistantMsg.ToolCalls) == 0 {
				// Finish reason says tool_calls but none present,
				// treat as done
				done = true
				if !e.emitContent(ctx, stream, result, &text, assistantMsg.Content) {
					return
				}
				continue
			}

			// Interleaved commentary streams before the calls run
			if !e.emitContent(ctx, stream, result, &text, assistantMsg.Content) {
				return
			}

			messages = append(messages, assistantMsg)

			for _, toolCall := range assistantMsg.ToolCalls {
				if toolCall.ID == "" {
					toolCall.ID = uuid.NewString()
				}

				record := e.executeTool(ctx, toolCall, ec)
				result.ToolCalls = append(result.ToolCalls, record)

				if !stream.send(ctx, toolCallChunk(record)) {
					e.abort(ctx, stream, result, &text)
					return
				}

				messages = append(messages, llm.Message{
					Role:       "tool",
					Content:    record.Result,
					ToolCallID: toolCall.ID,
				})

				log.Info("tool %s executed: error=%v duration=%dms", record.ToolName, record.IsError, record.DurationMs)
			}

		default:
			// "stop" and anything unrecognized end the run
			done = true
			if !e.emitContent(ctx, stream, result, &text, assistantMsg.Content) {
				return
			}
		}
	}

	if !done {
		result.TurnLimitHit = true
		log.Warn("turn ceiling (%d) reached for session %s", maxTurns, req.SessionID)
	}

	result.Text = text.String()

	stream.send(ctx, metadataChunk(MetadataData{
		Status:       StatusComplete,
		Turns:        result.Turns,
		TurnLimitHit: result.TurnLimitHit,
		Usage:        result.Usage,
	}))
	stream.finish(result, nil)
}

// emitContent appends assistant text to the accumulated result and
// streams it. The separator between turns travels inside the chunk so
// the streamed content chunks concatenate exactly to the final text.
// Returns false when the consumer is gone.
func (e *Engine) emitContent(ctx context.Context, stream *Stream, result *Result, text *strings.Builder, content string) bool {
	if content == "" {
		return true
	}
	if text.Len() > 0 {
		content = "\n" + content
	}
	text.WriteString(content)
	if !stream.send(ctx, contentChunk(content)) {
		e.abort(ctx, stream, result, text)
		return false
	}
	return true
}

// fail terminates the run on a reasoning-model failure. The error chunk
// is best-effort; the terminal error is authoritative.
func (e *Engine) fail(ctx context.Context, stream *Stream, result *Result, err error) {
	log.Error("engine run failed: %v", err)
	result.Text = ""
	stream.send(ctx, errorChunk(err.Error()))
	stream.finish(result, err)
}

// abort finishes a run whose consumer disconnected. Production stops
// where it is; no error chunk is forced into a channel nobody reads.
func (e *Engine) abort(ctx context.Context, stream *Stream, result *Result, text *strings.Builder) {
	result.Aborted = true
	result.Text = text.String()
	if err := ctx.Err(); err != nil {
		stream.finish(result, err)
		return
	}
	stream.finish(result, nil)
}

func (e *Engine) executeTool(ctx context.Context, toolCall llm.ToolCall, ec tools.ExecutionContext) (record ToolCallRecord) {
	record = ToolCallRecord{
		ID:        toolCall.ID,
		ToolName:  toolCall.Function.Name,
		Arguments: toolCall.Function.Arguments,
	}
	start := time.Now()
	defer func() {
		record.DurationMs = time.Since(start).Milliseconds()
	}()

	if err := e.registry.CanInvoke(toolCall.Function.Name, ec); err != nil {
		record.Result = err.Error()
		record.IsError = true
		return record
	}

	tool, exists := e.registry.Get(toolCall.Function.Name)
	if !exists {
		record.Result = fmt.Sprintf("Tool %q not found", toolCall.Function.Name)
		record.IsError = true
		return record
	}

	toolCtx, cancel := context.WithTimeout(ctx, e.toolTimeout)
	defer cancel()

	result, err := tool.Execute(toolCtx, json.RawMessage(toolCall.Function.Arguments), ec)
	if err != nil {
		record.Result = fmt.Sprintf("Tool execution error: %v", err)
		record.IsError = true
		return record
	}

	record.Result = result.Content
	record.IsError = result.IsError
	return record
}
