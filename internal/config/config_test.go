package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigDefaults(t *testing.T) {
	t.Setenv("ENV_FILE", "")
	cfg, err := ParseConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "image", cfg.ImageCreditCounter)
	assert.Equal(t, "image", cfg.VideoCreditCounter)
	assert.Equal(t, "gradio", cfg.VideoBackend)
	assert.Equal(t, 60*time.Second, cfg.ImagenTimeout)
	assert.Equal(t, 5*time.Minute, cfg.GradioTimeout)
	assert.False(t, cfg.ParallelProviderAttempts)
	assert.Equal(t, int64(20<<20), cfg.SourceImageFetchLimit)
	assert.Equal(t, int64(500<<20), cfg.VideoFetchLimit)
}

func TestParseConfigLoadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("VIDEO_CREDIT_COUNTER=video\nOPENAI_TIMEOUT=15s\n"), 0o600))

	t.Setenv("ENV_FILE", path)
	t.Setenv("VIDEO_CREDIT_COUNTER", "")
	os.Unsetenv("VIDEO_CREDIT_COUNTER")
	os.Unsetenv("OPENAI_TIMEOUT")
	t.Cleanup(func() {
		os.Unsetenv("VIDEO_CREDIT_COUNTER")
		os.Unsetenv("OPENAI_TIMEOUT")
	})

	cfg, err := ParseConfig()
	require.NoError(t, err)
	assert.Equal(t, "video", cfg.VideoCreditCounter)
	assert.Equal(t, 15*time.Second, cfg.OpenAITimeout)
}

func TestParseConfigMissingExplicitEnvFile(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
	_, err := ParseConfig()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "video counter", mutate: func(c *Config) { c.VideoCreditCounter = "video" }},
		{name: "unknown counter", mutate: func(c *Config) { c.ImageCreditCounter = "tokens" }, wantErr: true},
		{name: "unknown backend", mutate: func(c *Config) { c.VideoBackend = "runway" }, wantErr: true},
		{name: "volcengine without key", mutate: func(c *Config) { c.VideoBackend = "volcengine" }, wantErr: true},
		{name: "volcengine with key", mutate: func(c *Config) {
			c.VideoBackend = "volcengine"
			c.VolcengineAPIKey = "ark-key"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{ImageCreditCounter: "image", VideoCreditCounter: "image", VideoBackend: "gradio"}
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
