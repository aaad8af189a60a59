package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/draftmind/draftmind/internal/config"
	"github.com/draftmind/draftmind/internal/persistence"
	"github.com/draftmind/draftmind/internal/service"
)

type runtimeSettingsStore interface {
	GetRuntimeSettings() (config.RuntimeSettings, error)
	UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error)
}

type readStore interface {
	ListMessages(ctx context.Context, sessionID string, limit int) ([]persistence.Message, error)
	GetSessionUsage(ctx context.Context, sessionID string) (persistence.SessionUsage, error)
	GetDocument(ctx context.Context, id string) (persistence.Document, bool, error)
}

type Server struct {
	assistant *service.Assistant
	store     readStore
	settings  runtimeSettingsStore

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

func WithRuntimeSettingsStore(store runtimeSettingsStore) Option {
	return func(s *Server) {
		s.settings = store
	}
}

func NewServer(assistant *service.Assistant, store readStore, opts ...Option) *Server {
	s := &Server{
		assistant: assistant,
		store:     store,
		mux:       http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/chat", s.handleChat)
	s.mux.HandleFunc("/api/chat/stream", s.handleChatStream)
	s.mux.HandleFunc("/api/sessions/", s.handleSessions)
	s.mux.HandleFunc("/api/documents/", s.handleGetDocument)
	s.mux.HandleFunc("/api/settings", s.handleSettings)
	s.mux.HandleFunc("/healthz", s.handleHealth)
}
