package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("STORYFORGE_TEST_KEY", "sk-test")

	cases := []struct {
		in   string
		want string
	}{
		{"api_key: ${STORYFORGE_TEST_KEY}", "api_key: sk-test"},
		{"api_key: ${STORYFORGE_TEST_KEY:fallback}", "api_key: sk-test"},
		{"model: ${STORYFORGE_TEST_MISSING:gpt-4o}", "model: gpt-4o"},
		{"model: ${STORYFORGE_TEST_MISSING:}", "model: "},
		{"model: ${STORYFORGE_TEST_MISSING}", "model: ${STORYFORGE_TEST_MISSING}"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, expandEnv(tc.in), tc.in)
	}
}

func TestLoadFrom_DefaultsWithoutFiles(t *testing.T) {
	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "storyforge", cfg.App.Name)
	assert.Equal(t, "openai", cfg.LLM.DefaultProvider)
	assert.Equal(t, 3, cfg.LLM.MaxAttempts)
	assert.Equal(t, time.Second, cfg.LLM.RetryDelay)
	assert.Equal(t, 5, cfg.Session.DefaultSegments)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Providers["openai"].Model)
	assert.Equal(t, 120*time.Second, cfg.LLM.Providers["openai"].Timeout)
	assert.False(t, cfg.Quota.Enabled)
}

func TestLoadFrom_EnvFileOverridesBase(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("APP_ENV", "test")
	t.Setenv("STORYFORGE_TEST_KEY", "sk-from-env")

	writeFile(t, dir, "config.yaml", `
llm:
  default_provider: local
  max_attempts: 2
  providers:
    local:
      api_key: ${STORYFORGE_TEST_KEY}
      base_url: http://localhost:11434/v1
      model: llama3
      timeout: 30s
session:
  default_segments: 4
`)
	writeFile(t, dir, "config.test.yaml", `
session:
  default_segments: 6
  output_dir: /tmp/out
`)

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.LLM.DefaultProvider)
	assert.Equal(t, 2, cfg.LLM.MaxAttempts)
	assert.Equal(t, "sk-from-env", cfg.LLM.Providers["local"].APIKey)
	assert.Equal(t, 30*time.Second, cfg.LLM.Providers["local"].Timeout)
	assert.Equal(t, 6, cfg.Session.DefaultSegments)
	assert.Equal(t, "/tmp/out", cfg.Session.OutputDir)
}

func TestLoadFrom_InvalidSegmentBounds(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", `
session:
  min_segments: 3
  max_segments: 2
`)

	_, err := LoadFrom(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "segment bounds")
}

func TestValidate_UnknownDefaultProvider(t *testing.T) {
	cfg := &Config{
		LLM: LLMConfig{
			DefaultProvider: "missing",
			Providers:       map[string]ProviderConfig{"openai": {}},
			MaxAttempts:     1,
		},
		Session: SessionConfig{MinSegments: 1, MaxSegments: 5, DefaultSegments: 3},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}
