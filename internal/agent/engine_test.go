package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/draftmind/draftmind/internal/llm"
	"github.com/draftmind/draftmind/internal/tools"
	"github.com/draftmind/draftmind/internal/usage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "Echo back input arguments." }

func (echoTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"text": {"type": "string"}
		},
		"required": ["text"]
	}`)
}

func (echoTool) RequiresPremium() bool { return false }

func (echoTool) Execute(_ context.Context, args json.RawMessage, _ tools.ExecutionContext) (tools.ToolResult, error) {
	return tools.ToolResult{Content: string(args)}, nil
}

type failingTool struct{}

func (failingTool) Name() string        { return "broken" }
func (failingTool) Description() string { return "Always fails." }

func (failingTool) Parameters() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (failingTool) RequiresPremium() bool { return false }

func (failingTool) Execute(_ context.Context, _ json.RawMessage, _ tools.ExecutionContext) (tools.ToolResult, error) {
	return tools.ToolResult{}, fmt.Errorf("boom")
}

type premiumTool struct{}

func (premiumTool) Name() string        { return "premium_rewrite" }
func (premiumTool) Description() string { return "Premium only." }

func (premiumTool) Parameters() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (premiumTool) RequiresPremium() bool { return true }

func (premiumTool) Execute(_ context.Context, _ json.RawMessage, _ tools.ExecutionContext) (tools.ToolResult, error) {
	return tools.ToolResult{Content: "rewritten"}, nil
}

func newTestClient(t *testing.T, serverURL string) *llm.Client {
	t.Helper()
	client, err := llm.NewClient(&llm.Config{
		APIKey:      "test-key",
		APIURL:      serverURL,
		Model:       "test-model",
		MaxTokens:   256,
		Temperature: 0.2,
		Timeout:     10,
	})
	require.NoError(t, err)
	return client
}

func toolCallResponse(calls string) string {
	return fmt.Sprintf(`{
		"id":"chatcmpl-1",
		"object":"chat.completion",
		"created":123,
		"model":"test-model",
		"choices":[
			{
				"index":0,
				"finish_reason":"tool_calls",
				"message":{"role":"assistant","content":"","tool_calls":[%s]}
			}
		],
		"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}
	}`, calls)
}

const stopResponse = `{
	"id":"chatcmpl-2",
	"object":"chat.completion",
	"created":124,
	"model":"test-model",
	"choices":[
		{
			"index":0,
			"finish_reason":"stop",
			"message":{"role":"assistant","content":"done"}
		}
	],
	"usage":{"prompt_tokens":8,"completion_tokens":2,"total_tokens":10}
}`

func drain(stream *Stream) []Chunk {
	chunks := make([]Chunk, 0)
	for chunk := range stream.Chunks() {
		chunks = append(chunks, chunk)
	}
	return chunks
}

func TestEngine_Execute_ToolCallThenStop(t *testing.T) {
	t.Parallel()

	var callCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.ReadAll(r.Body)
		_ = r.Body.Close()

		w.Header().Set("Content-Type", "application/json")
		switch atomic.AddInt32(&callCount, 1) {
		case 1:
			_, _ = w.Write([]byte(toolCallResponse(`{
				"id":"call_1",
				"type":"function",
				"function":{"name":"echo","arguments":"{\"text\":\"hello\"}"}
			}`)))
		default:
			_, _ = w.Write([]byte(stopResponse))
		}
	}))
	t.Cleanup(server.Close)

	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(echoTool{}))

	engine := NewEngine(newTestClient(t, server.URL), registry, usage.DefaultPrices(), 5, time.Second, 8)
	stream := engine.Execute(context.Background(), Request{
		SessionID:    "s1",
		UserID:       "u1",
		SystemPrompt: "You are helpful",
		UserMessage:  "Say hello",
		Temperature:  -1,
	})

	chunks := drain(stream)
	result, err := stream.Result()
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "done", result.Text)
	assert.Equal(t, 2, result.Turns)
	assert.False(t, result.TurnLimitHit)
	require.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "call_1", result.ToolCalls[0].ID)
	assert.Equal(t, "echo", result.ToolCalls[0].ToolName)
	assert.JSONEq(t, `{"text":"hello"}`, result.ToolCalls[0].Result)
	assert.False(t, result.ToolCalls[0].IsError)

	// starting metadata, tool_call, content, terminal metadata, in order
	require.Len(t, chunks, 4)
	assert.Equal(t, ChunkMetadata, chunks[0].Type)
	starting, ok := chunks[0].Data.(MetadataData)
	require.True(t, ok)
	assert.Equal(t, StatusStarting, starting.Status)
	assert.Equal(t, ChunkToolCall, chunks[1].Type)
	assert.Equal(t, ChunkContent, chunks[2].Type)
	assert.Equal(t, ChunkMetadata, chunks[3].Type)
	meta, ok := chunks[3].Data.(MetadataData)
	require.True(t, ok)
	assert.Equal(t, StatusComplete, meta.Status)

	// usage folded across both rounds
	assert.Equal(t, 18, result.Usage.InputTokens)
	assert.Equal(t, 7, result.Usage.OutputTokens)
	assert.Equal(t, 25, result.Usage.TotalTokens)
	assert.Equal(t, 2, result.Usage.Rounds)
}

func TestEngine_Execute_ToolFailureContinuesLoop(t *testing.T) {
	t.Parallel()

	var callCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		_ = r.Body.Close()

		w.Header().Set("Content-Type", "application/json")
		switch atomic.AddInt32(&callCount, 1) {
		case 1:
			_, _ = w.Write([]byte(toolCallResponse(`{
				"id":"call_1",
				"type":"function",
				"function":{"name":"echo","arguments":"{\"text\":\"ok\"}"}
			},{
				"id":"call_2",
				"type":"function",
				"function":{"name":"broken","arguments":"{}"}
			}`)))
		default:
			_, _ = w.Write([]byte(stopResponse))
		}
	}))
	t.Cleanup(server.Close)

	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(echoTool{}))
	require.NoError(t, registry.Register(failingTool{}))

	engine := NewEngine(newTestClient(t, server.URL), registry, usage.DefaultPrices(), 5, time.Second, 8)
	stream := engine.Execute(context.Background(), Request{UserMessage: "run both", Temperature: -1})

	chunks := drain(stream)
	result, err := stream.Result()
	require.NoError(t, err)

	// Both calls recorded in request order; the failure is data
	require.Len(t, result.ToolCalls, 2)
	assert.Equal(t, "echo", result.ToolCalls[0].ToolName)
	assert.False(t, result.ToolCalls[0].IsError)
	assert.Equal(t, "broken", result.ToolCalls[1].ToolName)
	assert.True(t, result.ToolCalls[1].IsError)
	assert.Contains(t, result.ToolCalls[1].Result, "boom")

	// The loop continued to the stop round
	assert.Equal(t, "done", result.Text)
	assert.Equal(t, 2, result.Turns)

	require.Len(t, chunks, 5)
	assert.Equal(t, ChunkMetadata, chunks[0].Type)
	assert.Equal(t, ChunkToolCall, chunks[1].Type)
	assert.Equal(t, ChunkToolCall, chunks[2].Type)
	assert.Equal(t, ChunkContent, chunks[3].Type)
	assert.Equal(t, ChunkMetadata, chunks[4].Type)
}

func TestEngine_Execute_UnknownToolIsData(t *testing.T) {
	t.Parallel()

	var callCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		_ = r.Body.Close()
		w.Header().Set("Content-Type", "application/json")
		switch atomic.AddInt32(&callCount, 1) {
		case 1:
			_, _ = w.Write([]byte(toolCallResponse(`{
				"id":"call_1",
				"type":"function",
				"function":{"name":"no_such_tool","arguments":"{}"}
			}`)))
		default:
			_, _ = w.Write([]byte(stopResponse))
		}
	}))
	t.Cleanup(server.Close)

	engine := NewEngine(newTestClient(t, server.URL), tools.NewRegistry(), usage.DefaultPrices(), 5, time.Second, 8)
	stream := engine.Execute(context.Background(), Request{UserMessage: "hi", Temperature: -1})

	drain(stream)
	result, err := stream.Result()
	require.NoError(t, err)
	require.Len(t, result.ToolCalls, 1)
	assert.True(t, result.ToolCalls[0].IsError)
	assert.Contains(t, result.ToolCalls[0].Result, "not found")
	assert.Equal(t, "done", result.Text)
}

func TestEngine_Execute_PremiumDeniedWithoutFlag(t *testing.T) {
	t.Parallel()

	var callCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		_ = r.Body.Close()
		w.Header().Set("Content-Type", "application/json")
		switch atomic.AddInt32(&callCount, 1) {
		case 1:
			_, _ = w.Write([]byte(toolCallResponse(`{
				"id":"call_1",
				"type":"function",
				"function":{"name":"premium_rewrite","arguments":"{}"}
			}`)))
		default:
			_, _ = w.Write([]byte(stopResponse))
		}
	}))
	t.Cleanup(server.Close)

	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(premiumTool{}))

	engine := NewEngine(newTestClient(t, server.URL), registry, usage.DefaultPrices(), 5, time.Second, 8)
	stream := engine.Execute(context.Background(), Request{UserMessage: "rewrite", Premium: false, Temperature: -1})

	drain(stream)
	result, err := stream.Result()
	require.NoError(t, err)
	require.Len(t, result.ToolCalls, 1)
	assert.True(t, result.ToolCalls[0].IsError)
	assert.Contains(t, result.ToolCalls[0].Result, "premium")
}

func TestEngine_Execute_TurnCeilingEndsGracefully(t *testing.T) {
	t.Parallel()

	var callCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		_ = r.Body.Close()
		w.Header().Set("Content-Type", "application/json")
		n := atomic.AddInt32(&callCount, 1)
		_, _ = w.Write([]byte(toolCallResponse(fmt.Sprintf(`{
			"id":"call_%d",
			"type":"function",
			"function":{"name":"echo","arguments":"{\"text\":\"again\"}"}
		}`, n))))
	}))
	t.Cleanup(server.Close)

	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(echoTool{}))

	engine := NewEngine(newTestClient(t, server.URL), registry, usage.DefaultPrices(), 3, time.Second, 32)
	stream := engine.Execute(context.Background(), Request{UserMessage: "loop forever", Temperature: -1})

	chunks := drain(stream)
	result, err := stream.Result()

	// The ceiling is not an error
	require.NoError(t, err)
	assert.True(t, result.TurnLimitHit)
	assert.Equal(t, 3, result.Turns)
	assert.Len(t, result.ToolCalls, 3)
	assert.Equal(t, int32(3), atomic.LoadInt32(&callCount))

	last := chunks[len(chunks)-1]
	require.Equal(t, ChunkMetadata, last.Type)
	meta, ok := last.Data.(MetadataData)
	require.True(t, ok)
	assert.Equal(t, StatusComplete, meta.Status)
	assert.True(t, meta.TurnLimitHit)
}

func TestEngine_Execute_ModelFailureIsTerminalError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		_ = r.Body.Close()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"model exploded"}}`))
	}))
	t.Cleanup(server.Close)

	engine := NewEngine(newTestClient(t, server.URL), tools.NewRegistry(), usage.DefaultPrices(), 5, time.Second, 8)
	stream := engine.Execute(context.Background(), Request{UserMessage: "hi", Temperature: -1})

	chunks := drain(stream)
	result, err := stream.Result()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "model exploded")
	assert.Equal(t, "", result.Text)

	require.Len(t, chunks, 2)
	assert.Equal(t, ChunkMetadata, chunks[0].Type)
	assert.Equal(t, ChunkError, chunks[1].Type)
	errData, ok := chunks[1].Data.(ErrorData)
	require.True(t, ok)
	assert.Contains(t, errData.Message, "model exploded")
}

func TestEngine_Execute_ConsumerCancelStopsProduction(t *testing.T) {
	t.Parallel()

	var callCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		_ = r.Body.Close()
		w.Header().Set("Content-Type", "application/json")
		n := atomic.AddInt32(&callCount, 1)
		_, _ = w.Write([]byte(toolCallResponse(fmt.Sprintf(`{
			"id":"call_%d",
			"type":"function",
			"function":{"name":"echo","arguments":"{\"text\":\"again\"}"}
		}`, n))))
	}))
	t.Cleanup(server.Close)

	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(echoTool{}))

	// Unbuffered-ish stream so the producer blocks on the consumer
	engine := NewEngine(newTestClient(t, server.URL), registry, usage.DefaultPrices(), 100, time.Second, 1)
	stream := engine.Execute(context.Background(), Request{UserMessage: "loop", Temperature: -1})

	// Read one chunk, then walk away
	<-stream.Chunks()
	stream.Close()

	result, err := stream.Result()
	require.NoError(t, err)
	assert.True(t, result.Aborted)
	assert.Less(t, result.Turns, 100)
}

func TestEngine_Execute_SystemPromptSentEveryTurn(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var bodies [][]byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		mu.Lock()
		bodies = append(bodies, body)
		n := len(bodies)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if n == 1 {
			_, _ = w.Write([]byte(toolCallResponse(`{
				"id":"call_1",
				"type":"function",
				"function":{"name":"echo","arguments":"{\"text\":\"hi\"}"}
			}`)))
			return
		}
		_, _ = w.Write([]byte(stopResponse))
	}))
	t.Cleanup(server.Close)

	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(echoTool{}))

	engine := NewEngine(newTestClient(t, server.URL), registry, usage.DefaultPrices(), 5, time.Second, 8)
	stream := engine.Execute(context.Background(), Request{
		SystemPrompt: "You write documents",
		UserMessage:  "hi",
		Temperature:  -1,
	})

	drain(stream)
	_, err := stream.Result()
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 2)
	for i, body := range bodies {
		var req llm.ChatRequest
		require.NoError(t, json.Unmarshal(body, &req))
		require.NotEmpty(t, req.Messages, "request %d has no messages", i+1)
		assert.Equal(t, "system", req.Messages[0].Role, "request %d lacks system framing", i+1)
		assert.Equal(t, "You write documents", req.Messages[0].Content)
	}
}

func TestEngine_Execute_ContentChunksConcatenateToText(t *testing.T) {
	t.Parallel()

	var callCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		_ = r.Body.Close()
		w.Header().Set("Content-Type", "application/json")
		switch atomic.AddInt32(&callCount, 1) {
		case 1:
			_, _ = w.Write([]byte(`{
				"id":"chatcmpl-1",
				"object":"chat.completion",
				"created":123,
				"model":"test-model",
				"choices":[
					{
						"index":0,
						"finish_reason":"tool_calls",
						"message":{
							"role":"assistant",
							"content":"Let me check.",
							"tool_calls":[{
								"id":"call_1",
								"type":"function",
								"function":{"name":"echo","arguments":"{\"text\":\"x\"}"}
							}]
						}
					}
				],
				"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}
			}`))
		default:
			_, _ = w.Write([]byte(stopResponse))
		}
	}))
	t.Cleanup(server.Close)

	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(echoTool{}))

	engine := NewEngine(newTestClient(t, server.URL), registry, usage.DefaultPrices(), 5, time.Second, 8)
	stream := engine.Execute(context.Background(), Request{UserMessage: "check", Temperature: -1})

	chunks := drain(stream)
	result, err := stream.Result()
	require.NoError(t, err)

	var concat strings.Builder
	for _, chunk := range chunks {
		if chunk.Type == ChunkContent {
			data, ok := chunk.Data.(ContentData)
			require.True(t, ok)
			concat.WriteString(data.Text)
		}
	}
	assert.Equal(t, "Let me check.\ndone", result.Text)
	assert.Equal(t, result.Text, concat.String())
}

func TestEngine_Execute_SynthesizesMissingCallID(t *testing.T) {
	t.Parallel()

	var callCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		_ = r.Body.Close()
		w.Header().Set("Content-Type", "application/json")
		switch atomic.AddInt32(&callCount, 1) {
		case 1:
			_, _ = w.Write([]byte(toolCallResponse(`{
				"id":"",
				"type":"function",
				"function":{"name":"echo","arguments":"{\"text\":\"x\"}"}
			}`)))
		default:
			_, _ = w.Write([]byte(stopResponse))
		}
	}))
	t.Cleanup(server.Close)

	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(echoTool{}))

	engine := NewEngine(newTestClient(t, server.URL), registry, usage.DefaultPrices(), 5, time.Second, 8)
	stream := engine.Execute(context.Background(), Request{UserMessage: "hi", Temperature: -1})

	drain(stream)
	result, err := stream.Result()
	require.NoError(t, err)
	require.Len(t, result.ToolCalls, 1)
	assert.NotEmpty(t, result.ToolCalls[0].ID)
}
