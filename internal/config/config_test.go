package config

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromEnv_Defaults(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "test-key", cfg.LLM.APIKey)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.LLM.APIURL)
	assert.Equal(t, "openai/gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, cfg.LLM.Model, cfg.LLM.RouterModel)
	assert.Equal(t, 8, cfg.Agent.MaxTurns)
	assert.Equal(t, 64, cfg.Agent.StreamBuffer)
	assert.Equal(t, 90, cfg.Storage.RetentionDays)
	assert.Equal(t, "0 3 * * *", cfg.Storage.RetentionCron)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestNewFromEnv_Overrides(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")
	t.Setenv("LLM_MODEL", "openai/gpt-4o")
	t.Setenv("LLM_ROUTER_MODEL", "openai/gpt-4o-mini")
	t.Setenv("AGENT_MAX_TURNS", "3")
	t.Setenv("LLM_TEMPERATURE", "0.2")
	t.Setenv("RETENTION_DAYS", "7")

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "openai/gpt-4o", cfg.LLM.Model)
	assert.Equal(t, "openai/gpt-4o-mini", cfg.LLM.RouterModel)
	assert.Equal(t, 3, cfg.Agent.MaxTurns)
	assert.InDelta(t, 0.2, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, 7, cfg.Storage.RetentionDays)
}

func TestNewFromEnv_RequiresAPIKey(t *testing.T) {
	t.Setenv("LLM_API_KEY", "")

	_, err := NewFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM_API_KEY")
}

func TestNewFromEnv_InvalidIntFallsBackToDefault(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")
	t.Setenv("AGENT_MAX_TURNS", "not-a-number")

	cfg, err := NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Agent.MaxTurns)
}

func TestRuntimeSettingsValidate(t *testing.T) {
	t.Parallel()

	valid := RuntimeSettings{
		LLMModel:      "openai/gpt-4o-mini",
		Temperature:   0.7,
		MaxTurns:      8,
		RetentionDays: 90,
		RetentionCron: "0 3 * * *",
	}
	require.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(*RuntimeSettings)
	}{
		{"empty model", func(s *RuntimeSettings) { s.LLMModel = " " }},
		{"temperature too high", func(s *RuntimeSettings) { s.Temperature = 2.5 }},
		{"zero turns", func(s *RuntimeSettings) { s.MaxTurns = 0 }},
		{"zero retention", func(s *RuntimeSettings) { s.RetentionDays = 0 }},
		{"bad cron", func(s *RuntimeSettings) { s.RetentionCron = "every other tuesday" }},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := valid
			tc.mutate(&s)
			assert.Error(t, s.Validate())
		})
	}
}

type fakeBackend struct {
	mu      sync.Mutex
	saved   *RuntimeSettings
	failing bool
}

func (b *fakeBackend) SaveRuntimeSettings(s RuntimeSettings) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failing {
		return fmt.Errorf("backend unavailable")
	}
	b.saved = &s
	return nil
}

func (b *fakeBackend) LoadRuntimeSettings() (RuntimeSettings, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.saved == nil {
		return RuntimeSettings{}, false, nil
	}
	return *b.saved, true, nil
}

func validSettings() RuntimeSettings {
	return RuntimeSettings{
		LLMModel:      "openai/gpt-4o-mini",
		Temperature:   0.7,
		MaxTurns:      8,
		RetentionDays: 90,
		RetentionCron: "0 3 * * *",
	}
}

func TestRuntimeSettingsStore_SeedsFromBackend(t *testing.T) {
	t.Parallel()

	saved := validSettings()
	saved.MaxTurns = 3
	backend := &fakeBackend{saved: &saved}

	store, err := NewRuntimeSettingsStore(backend, validSettings())
	require.NoError(t, err)

	got, err := store.GetRuntimeSettings()
	require.NoError(t, err)
	assert.Equal(t, 3, got.MaxTurns)
}

func TestRuntimeSettingsStore_UpdatePersists(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	store, err := NewRuntimeSettingsStore(backend, validSettings())
	require.NoError(t, err)

	next := validSettings()
	next.LLMModel = "openai/gpt-4o"
	_, err = store.UpdateRuntimeSettings(next)
	require.NoError(t, err)

	got, err := store.GetRuntimeSettings()
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o", got.LLMModel)
	require.NotNil(t, backend.saved)
	assert.Equal(t, "openai/gpt-4o", backend.saved.LLMModel)
}

func TestRuntimeSettingsStore_RejectsInvalidUpdate(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	store, err := NewRuntimeSettingsStore(backend, validSettings())
	require.NoError(t, err)

	bad := validSettings()
	bad.MaxTurns = 0
	_, err = store.UpdateRuntimeSettings(bad)
	require.Error(t, err)

	got, err := store.GetRuntimeSettings()
	require.NoError(t, err)
	assert.Equal(t, 8, got.MaxTurns)
}

func TestRuntimeSettingsStore_BackendFailureKeepsCurrent(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{failing: true}
	store, err := NewRuntimeSettingsStore(backend, validSettings())
	require.NoError(t, err)

	next := validSettings()
	next.MaxTurns = 2
	_, err = store.UpdateRuntimeSettings(next)
	require.Error(t, err)

	got, err := store.GetRuntimeSettings()
	require.NoError(t, err)
	assert.Equal(t, 8, got.MaxTurns)
}
