package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/draftmind/draftmind/internal/agent"
	"github.com/draftmind/draftmind/internal/config"
	"github.com/draftmind/draftmind/internal/intent"
	"github.com/draftmind/draftmind/internal/llm"
	"github.com/draftmind/draftmind/internal/persistence"
	"github.com/draftmind/draftmind/internal/tools"
	"github.com/draftmind/draftmind/internal/usage"
	"github.com/draftmind/draftmind/pkg/log"
)

const chatSystemPrompt = `You are a writing assistant. You help users create, edit, and organize documents.
Be concise and concrete. When you have changed a document, say what you changed.`

// cannedApology is the degraded-path reply when routing cannot complete
const cannedApology = "I'm sorry, I couldn't process that request right now. Please try again."

// historyWindow bounds how much persisted conversation is replayed to
// the model per request.
const historyWindow = 40

// Store is the persistence surface the assistant needs
type Store interface {
	EnsureSession(ctx context.Context, session persistence.Session) error
	AppendMessage(ctx context.Context, msg persistence.Message) error
	ListMessages(ctx context.Context, sessionID string, limit int) ([]persistence.Message, error)
	RecordUsage(ctx context.Context, rec persistence.UsageRecord) error
}

// Assistant ties the router path and the engine path to persistence.
// Chat never returns an error; StreamChat surfaces engine errors
// through the stream only.
type Assistant struct {
	store      Store
	client     llm.CompletionClient
	classifier *intent.Classifier
	registry   *tools.Registry
	engine     *agent.Engine
	prices     usage.PriceTable
	settings   *config.RuntimeSettingsStore
}

// NewAssistant creates the assistant service
func NewAssistant(
	store Store,
	client llm.CompletionClient,
	classifier *intent.Classifier,
	registry *tools.Registry,
	engine *agent.Engine,
	prices usage.PriceTable,
	settings *config.RuntimeSettingsStore,
) *Assistant {
	if prices == nil {
		prices = usage.DefaultPrices()
	}
	return &Assistant{
		store:      store,
		client:     client,
		classifier: classifier,
		registry:   registry,
		engine:     engine,
		prices:     prices,
		settings:   settings,
	}
}

// Chat handles one message on the router path: classify once, dispatch
// at most one tool, answer. Any failure degrades to a canned reply;
// both messages are persisted either way.
func (a *Assistant) Chat(ctx context.Context, req ChatRequest) *ChatResponse {
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	a.persistSession(ctx, req)

	// Load history before persisting the current message so the model
	// does not see it twice.
	history, err := a.history(ctx, req.SessionID)
	if err != nil {
		log.Warn("loading history for session %s failed: %v", req.SessionID, err)
		history = nil
	}
	a.persistMessage(ctx, req.SessionID, "user", req.Message, nil)

	resp := a.route(ctx, req, history)
	resp.SessionID = req.SessionID

	a.persistMessage(ctx, req.SessionID, "assistant", resp.Reply, map[string]string{
		"intent": string(resp.Intent),
	})
	a.recordUsage(ctx, req.SessionID, resp.Usage)

	return resp
}

func (a *Assistant) route(ctx context.Context, req ChatRequest, history []llm.Message) *ChatResponse {
	var totals usage.Totals

	classification, clsUsage, err := a.classifier.Classify(ctx, req.Message)
	totals = usage.Fold(totals, a.model(), clsUsage, a.prices)
	if err != nil {
		log.Error("intent classification failed: %v", err)
		return a.degraded(totals)
	}

	dispatch, err := intent.Route(classification, req.Message)
	if err != nil {
		log.Error("intent routing failed: %v", err)
		return a.degraded(totals)
	}

	if dispatch.Direct {
		reply, chatUsage, err := a.directChat(ctx, req, classification.Language, history)
		totals = usage.Fold(totals, a.model(), chatUsage, a.prices)
		if err != nil {
			log.Error("direct chat failed: %v", err)
			return a.degraded(totals)
		}
		return &ChatResponse{
			Intent:   intent.IntentGeneralChat,
			Reply:    reply,
			Language: classification.Language,
			Usage:    totals,
		}
	}

	record := a.executeDispatch(ctx, req, dispatch)
	if record.IsError {
		log.Error("dispatched tool %s failed: %s", dispatch.ToolName, record.Result)
		return a.degraded(totals)
	}

	reply, confirmUsage, err := a.confirm(ctx, req, classification, record)
	totals = usage.Fold(totals, a.model(), confirmUsage, a.prices)
	if err != nil {
		// The document change already happened; fall back to the raw
		// tool summary rather than the apology.
		log.Warn("confirmation call failed, using tool summary: %v", err)
		reply = record.Result
	}

	return &ChatResponse{
		Intent:          classification.Intent,
		Reply:           reply,
		DocumentUpdated: true,
		DocumentID:      documentID(classification, record),
		Language:        classification.Language,
		Usage:           totals,
	}
}

// degraded builds the canned-apology response of the fallback path
func (a *Assistant) degraded(totals usage.Totals) *ChatResponse {
	return &ChatResponse{
		Intent:   intent.IntentGeneralChat,
		Reply:    cannedApology,
		Degraded: true,
		Usage:    totals,
	}
}

func (a *Assistant) directChat(ctx context.Context, req ChatRequest, language string, history []llm.Message) (string, llm.Usage, error) {
	messages := append(history, llm.Message{Role: "user", Content: req.Message})

	prompt := chatSystemPrompt
	if language != "" {
		prompt += fmt.Sprintf("\nAnswer in the user's language (%s).", language)
	}

	opts := llm.NewChatCompletionOptions().
		WithSystemPrompt(prompt).
		WithModel(a.model()).
		WithTemperature(a.temperature())

	resp, err := a.client.ChatCompletion(ctx, messages, opts)
	if err != nil {
		return "", llm.Usage{}, err
	}
	if len(resp.Choices) == 0 {
		return "", resp.Usage, fmt.Errorf("no choices in response")
	}
	return resp.Choices[0].Message.Content, resp.Usage, nil
}

// executeDispatch runs the single routed tool, shaping every failure as
// an error record rather than an error.
func (a *Assistant) executeDispatch(ctx context.Context, req ChatRequest, dispatch intent.Dispatch) (record agent.ToolCallRecord) {
	record = agent.ToolCallRecord{
		ID:        uuid.NewString(),
		ToolName:  dispatch.ToolName,
		Arguments: string(dispatch.Args),
	}
	start := time.Now()
	defer func() {
		record.DurationMs = time.Since(start).Milliseconds()
	}()

	ec := tools.ExecutionContext{
		SessionID: req.SessionID,
		UserID:    req.UserID,
		ProjectID: req.ProjectID,
		Premium:   req.Premium,
	}

	if err := a.registry.CanInvoke(dispatch.ToolName, ec); err != nil {
		record.Result = err.Error()
		record.IsError = true
		return record
	}
	tool, exists := a.registry.Get(dispatch.ToolName)
	if !exists {
		record.Result = fmt.Sprintf("Tool %q not found", dispatch.ToolName)
		record.IsError = true
		return record
	}

	result, err := tool.Execute(ctx, dispatch.Args, ec)
	if err != nil {
		record.Result = fmt.Sprintf("Tool execution error: %v", err)
		record.IsError = true
		return record
	}
	record.Result = result.Content
	record.IsError = result.IsError
	return record
}

// confirm asks the model for a short user-facing confirmation of the
// completed document operation.
func (a *Assistant) confirm(ctx context.Context, req ChatRequest, c intent.Classification, record agent.ToolCallRecord) (string, llm.Usage, error) {
	prompt := chatSystemPrompt + "\nThe requested document operation has already been performed. Confirm it to the user in one or two sentences."
	if c.Language != "" {
		prompt += fmt.Sprintf("\nAnswer in the user's language (%s).", c.Language)
	}

	messages := []llm.Message{
		{Role: "user", Content: req.Message},
		{Role: "assistant", Content: fmt.Sprintf("Operation result: %s", record.Result)},
		{Role: "user", Content: "Confirm what was done."},
	}

	opts := llm.NewChatCompletionOptions().
		WithSystemPrompt(prompt).
		WithModel(a.model()).
		WithTemperature(a.temperature())

	resp, err := a.client.ChatCompletion(ctx, messages, opts)
	if err != nil {
		return "", llm.Usage{}, err
	}
	if len(resp.Choices) == 0 {
		return "", resp.Usage, fmt.Errorf("no choices in response")
	}
	return resp.Choices[0].Message.Content, resp.Usage, nil
}

// StreamChat handles one message on the engine path. The caller drains
// the returned stream; the final assistant message and usage are
// persisted once the run reaches a terminal state.
func (a *Assistant) StreamChat(ctx context.Context, req ChatRequest) *agent.Stream {
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	a.persistSession(ctx, req)

	history, err := a.history(ctx, req.SessionID)
	if err != nil {
		log.Warn("loading history for session %s failed: %v", req.SessionID, err)
		history = nil
	}
	a.persistMessage(ctx, req.SessionID, "user", req.Message, nil)

	stream := a.engine.Execute(ctx, agent.Request{
		SessionID:    req.SessionID,
		UserID:       req.UserID,
		ProjectID:    req.ProjectID,
		Premium:      req.Premium,
		SystemPrompt: chatSystemPrompt,
		UserMessage:  req.Message,
		History:      history,
		Model:        a.model(),
		Temperature:  a.temperature(),
		MaxTurns:     a.maxTurns(),
	})

	go a.persistStreamOutcome(req.SessionID, stream)

	return stream
}

// persistStreamOutcome writes the run's final message and usage after
// the terminal state. Persistence failures are logged, never surfaced.
func (a *Assistant) persistStreamOutcome(sessionID string, stream *agent.Stream) {
	result, err := stream.Result()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err != nil {
		log.Error("engine run for session %s failed: %v", sessionID, err)
	}
	if result == nil {
		return
	}
	if result.Text != "" {
		a.persistMessage(ctx, sessionID, "assistant", result.Text, map[string]string{
			"turns":          fmt.Sprintf("%d", result.Turns),
			"turn_limit_hit": fmt.Sprintf("%t", result.TurnLimitHit),
		})
	}
	a.recordUsage(ctx, sessionID, result.Usage)
}

// history replays the persisted conversation as model messages
func (a *Assistant) history(ctx context.Context, sessionID string) ([]llm.Message, error) {
	stored, err := a.store.ListMessages(ctx, sessionID, historyWindow)
	if err != nil {
		return nil, err
	}
	messages := make([]llm.Message, 0, len(stored))
	for _, msg := range stored {
		if msg.Role != "user" && msg.Role != "assistant" {
			continue
		}
		messages = append(messages, llm.Message{Role: msg.Role, Content: msg.Content})
	}
	return agent.BuildHistory(messages, historyWindow), nil
}

func (a *Assistant) persistSession(ctx context.Context, req ChatRequest) {
	err := a.store.EnsureSession(ctx, persistence.Session{
		ID:     req.SessionID,
		UserID: req.UserID,
	})
	if err != nil {
		log.Error("persisting session %s failed: %v", req.SessionID, err)
	}
}

func (a *Assistant) persistMessage(ctx context.Context, sessionID, role, content string, meta map[string]string) {
	err := a.store.AppendMessage(ctx, persistence.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Meta:      meta,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		log.Error("persisting %s message for session %s failed: %v", role, sessionID, err)
	}
}

func (a *Assistant) recordUsage(ctx context.Context, sessionID string, totals usage.Totals) {
	if totals.Rounds == 0 {
		return
	}
	err := a.store.RecordUsage(ctx, persistence.UsageRecord{
		SessionID:    sessionID,
		Model:        totals.Model,
		InputTokens:  totals.InputTokens,
		OutputTokens: totals.OutputTokens,
		TotalTokens:  totals.TotalTokens,
		CostUSD:      totals.CostUSD,
		Rounds:       totals.Rounds,
	})
	if err != nil {
		log.Error("recording usage for session %s failed: %v", sessionID, err)
	}
}

func (a *Assistant) model() string {
	if a.settings != nil {
		if s, err := a.settings.GetRuntimeSettings(); err == nil {
			return s.LLMModel
		}
	}
	return ""
}

func (a *Assistant) temperature() float64 {
	if a.settings != nil {
		if s, err := a.settings.GetRuntimeSettings(); err == nil {
			return s.Temperature
		}
	}
	return -1
}

func (a *Assistant) maxTurns() int {
	if a.settings != nil {
		if s, err := a.settings.GetRuntimeSettings(); err == nil {
			return s.MaxTurns
		}
	}
	return 0
}

// documentID picks the id the response reports: the classifier's when
// the user referenced one, otherwise the id a create tool reported.
func documentID(c intent.Classification, record agent.ToolCallRecord) string {
	if c.DocumentID != "" {
		return c.DocumentID
	}
	var args struct {
		DocumentID string `json:"document_id"`
	}
	if err := json.Unmarshal([]byte(record.Arguments), &args); err == nil && args.DocumentID != "" {
		return args.DocumentID
	}
	return ""
}
