package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
)

// RuntimeSettings are the mutable knobs editable at runtime over the
// settings API. They override the env-derived Config for new requests.
type RuntimeSettings struct {
	LLMModel      string  `json:"llm_model"`
	Temperature   float64 `json:"temperature"`
	MaxTurns      int     `json:"max_turns"`
	RetentionDays int     `json:"retention_days"`
	RetentionCron string  `json:"retention_cron"`
}

func (s RuntimeSettings) Validate() error {
	if strings.TrimSpace(s.LLMModel) == "" {
		return fmt.Errorf("llm_model is required")
	}
	if s.Temperature < 0 || s.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if s.MaxTurns < 1 {
		return fmt.Errorf("max_turns must be at least 1")
	}
	if s.RetentionDays < 1 {
		return fmt.Errorf("retention_days must be at least 1")
	}
	if strings.TrimSpace(s.RetentionCron) == "" {
		return fmt.Errorf("retention_cron is required")
	}
	if _, err := cron.ParseStandard(s.RetentionCron); err != nil {
		return fmt.Errorf("invalid retention_cron: %w", err)
	}
	return nil
}

func (c *Config) RuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		LLMModel:      c.LLM.Model,
		Temperature:   c.LLM.Temperature,
		MaxTurns:      c.Agent.MaxTurns,
		RetentionDays: c.Storage.RetentionDays,
		RetentionCron: c.Storage.RetentionCron,
	}
}

func WithRuntimeSettings(settings RuntimeSettings) Option {
	return func(c *Config) {
		if strings.TrimSpace(settings.LLMModel) != "" {
			c.LLM.Model = settings.LLMModel
		}
		if settings.Temperature > 0 {
			c.LLM.Temperature = settings.Temperature
		}
		if settings.MaxTurns > 0 {
			c.Agent.MaxTurns = settings.MaxTurns
		}
		if settings.RetentionDays > 0 {
			c.Storage.RetentionDays = settings.RetentionDays
		}
		if strings.TrimSpace(settings.RetentionCron) != "" {
			c.Storage.RetentionCron = settings.RetentionCron
		}
	}
}

// SettingsBackend persists runtime settings across restarts.
type SettingsBackend interface {
	SaveRuntimeSettings(RuntimeSettings) error
	LoadRuntimeSettings() (RuntimeSettings, bool, error)
}

// RuntimeSettingsStore serializes reads and writes of the current
// runtime settings and mirrors every accepted update to the backend.
type RuntimeSettingsStore struct {
	backend SettingsBackend

	mu      sync.RWMutex
	current RuntimeSettings
}

// NewRuntimeSettingsStore seeds the store from the backend when a saved
// copy exists, otherwise from the given initial settings.
func NewRuntimeSettingsStore(backend SettingsBackend, initial RuntimeSettings) (*RuntimeSettingsStore, error) {
	if backend == nil {
		return nil, fmt.Errorf("settings backend is required")
	}
	if saved, ok, err := backend.LoadRuntimeSettings(); err != nil {
		return nil, fmt.Errorf("load runtime settings: %w", err)
	} else if ok {
		initial = saved
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &RuntimeSettingsStore{
		backend: backend,
		current: initial,
	}, nil
}

func (s *RuntimeSettingsStore) GetRuntimeSettings() (RuntimeSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, nil
}

func (s *RuntimeSettingsStore) UpdateRuntimeSettings(next RuntimeSettings) (RuntimeSettings, error) {
	if err := next.Validate(); err != nil {
		return RuntimeSettings{}, err
	}
	if err := s.backend.SaveRuntimeSettings(next); err != nil {
		return RuntimeSettings{}, err
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	return next, nil
}
