package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "STORE_BACKEND", "INTERVIEW_MAX_QUESTIONS", "SEARCH_DEBOUNCE", "DIAGNOSIS_TIMEOUT", "REDIS_ADDR", "DOCTOR_CHAT_ID", "OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 18, cfg.Interview.MaxQuestions)
	assert.Equal(t, 300*time.Millisecond, cfg.Interview.SearchDebounce)
	assert.Equal(t, 15*time.Second, cfg.Diagnosis.Timeout)
	assert.Equal(t, 2, cfg.Diagnosis.MaxRetries)
	assert.Equal(t, time.Hour, cfg.Redis.TTL)
	assert.Empty(t, cfg.Redis.Addr)
	assert.False(t, cfg.ReportsEnabled())
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "localhost:4317", cfg.Telemetry.Endpoint)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/a.db")
	t.Setenv("DIAGNOSIS_TIMEOUT", "3s")
	t.Setenv("DIAGNOSIS_MAX_RETRIES", "0")
	t.Setenv("SEARCH_DEBOUNCE", "150ms")
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok")
	t.Setenv("DOCTOR_CHAT_ID", "-100123")
	t.Setenv("MIGRATE_ON_STARTUP", "false")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Addr())
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "/tmp/a.db", cfg.Store.SQLitePath)
	assert.False(t, cfg.Store.MigrateOnStartup)
	assert.Equal(t, 3*time.Second, cfg.Diagnosis.Timeout)
	assert.Equal(t, 0, cfg.Diagnosis.MaxRetries)
	assert.Equal(t, 150*time.Millisecond, cfg.Interview.SearchDebounce)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, int64(-100123), cfg.Report.DoctorChatID)
	assert.True(t, cfg.ReportsEnabled())
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "collector:4317", cfg.Telemetry.Endpoint)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	t.Setenv("DIAGNOSIS_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Diagnosis.Timeout)
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "mongo")

	_, err := Load()

	assert.ErrorContains(t, err, "STORE_BACKEND")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server:    ServerConfig{Port: 8080},
			Diagnosis: DiagnosisConfig{URL: "http://x"},
			Interview: InterviewConfig{MaxQuestions: 18},
			Store:     StoreConfig{Backend: "memory"},
		}
	}
	require.NoError(t, base().Validate())

	c := base()
	c.Interview.MaxQuestions = 0
	assert.Error(t, c.Validate())

	c = base()
	c.Server.Port = 70000
	assert.Error(t, c.Validate())

	c = base()
	c.Diagnosis.MaxRetries = -1
	assert.Error(t, c.Validate())
}
