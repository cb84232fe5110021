package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://localhost/together
jwt:
  secret: s3cret
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 60*time.Second, cfg.Worker.Interval)
	assert.Equal(t, 3*time.Hour, cfg.Agent.ToneCacheTTL)
	assert.Equal(t, 6*time.Hour, cfg.Agent.SuggestionCacheTTL)
	assert.Equal(t, 24*time.Hour, cfg.Agent.StyleCacheTTL)
	assert.Equal(t, 60*time.Second, cfg.Agent.Cooldown)
	assert.Equal(t, 25, cfg.Agent.DecisionBatchSize)
	assert.Equal(t, 30*24*time.Hour, cfg.Agent.ActivityRetention)
	assert.Empty(t, cfg.Internal.Token)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, "postgres://localhost/together", cfg.Database.DSN())
	assert.False(t, cfg.Agent.AgentAvailable())
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
database:
  host: db
  port: 5432
  user: together
  password: pw
  dbname: together
jwt:
  secret: from-file
agent:
  enabled: true
  cooldown: 10s
`)
	t.Setenv("TOGETHER_JWT_SECRET", "from-env")
	t.Setenv("TOGETHER_PORT", "9090")
	t.Setenv("TOGETHER_GENAI_API_KEY", "key")
	t.Setenv("TOGETHER_CORS_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("TOGETHER_INTERNAL_TOKEN", "svc-token")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Agent.AgentAvailable())
	assert.Equal(t, 10*time.Second, cfg.Agent.Cooldown)
	assert.Equal(t, "svc-token", cfg.Internal.Token)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, "host=db port=5432 user=together password=pw dbname=together sslmode=disable", cfg.Database.DSN())
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing secret", "database:\n  url: postgres://x\n"},
		{"missing database", "jwt:\n  secret: x\n"},
		{"bad level", "database:\n  url: postgres://x\njwt:\n  secret: x\nlog:\n  level: loud\n"},
		{"short cooldown", "database:\n  url: postgres://x\njwt:\n  secret: x\nagent:\n  cooldown: 2s\n"},
		{"negative cooldown", "database:\n  url: postgres://x\njwt:\n  secret: x\nagent:\n  cooldown: -1m\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFileUsesEnv(t *testing.T) {
	t.Setenv("TOGETHER_DATABASE_URL", "postgres://env/db")
	t.Setenv("TOGETHER_JWT_SECRET", "env")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/db", cfg.Database.DSN())
}

func TestLoadInvalidPort(t *testing.T) {
	t.Setenv("TOGETHER_PORT", "eighty")
	_, err := Load(writeConfig(t, "database:\n  url: x\njwt:\n  secret: x\n"))
	assert.Error(t, err)
}
