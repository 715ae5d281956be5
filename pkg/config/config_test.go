package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"LLM_PROVIDER", "LLM_MODEL", "AZURE_AI_API_KEY", "AZURE_AI_ENDPOINT", "AZURE_AI_API_VERSION",
		"AZURE_AI_DEPLOYMENT_NAME", "OPENAI_API_KEY", "OPENAI_BASE_URL", "ANTHROPIC_API_KEY",
		"GOOGLE_GENAI_API_KEY", "OLLAMA_HOST", "MAX_ITERATIONS", "ROUTING_MODE", "OUTPUT_ROOT",
		"LLM_MAX_TOKENS", "LLM_REQUEST_TIMEOUT", "LOG_LEVEL", "OPENSWE_HOME",
	} {
		t.Setenv(name, "")
	}
	SetDecryptedSecrets(nil)
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ProviderAzure, cfg.Provider)
	assert.Equal(t, DefaultAzureAPIVersion, cfg.Azure.APIVersion)
	assert.Equal(t, DefaultMaxIterations, cfg.MaxIterations)
	assert.Equal(t, RoutingDirect, cfg.RoutingMode)
	assert.Equal(t, DefaultOutputRoot, cfg.OutputRoot)
	assert.Equal(t, DefaultMaxTokens, cfg.MaxTokens)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, time.Duration(0), cfg.RequestTimeout)
	assert.Equal(t, filepath.Join(DefaultHome, "history.db"), cfg.HistoryPath())
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("AZURE_AI_API_KEY", "key")
	t.Setenv("AZURE_AI_ENDPOINT", "https://x.services.ai.azure.com/models")
	t.Setenv("AZURE_AI_DEPLOYMENT_NAME", "DeepSeek-R1-0528")
	t.Setenv("MAX_ITERATIONS", "4")
	t.Setenv("LLM_REQUEST_TIMEOUT", "90s")
	t.Setenv("ROUTING_MODE", "Supervisor")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "key", cfg.Azure.APIKey)
	assert.Equal(t, 4, cfg.MaxIterations)
	assert.Equal(t, 90*time.Second, cfg.RequestTimeout)
	assert.Equal(t, RoutingSupervisor, cfg.RoutingMode)
	assert.Equal(t, "DeepSeek-R1-0528", cfg.ModelFor(RoleManager))
}

func TestLoadInvalidInteger(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("MAX_ITERATIONS", "ten")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_ITERATIONS")
}

func TestYAMLOverlayAndEnvPrecedence(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)

	yamlText := `provider: anthropic
model: claude-from-file
max_iterations: 6
output_root: ./generated
request_timeout: 2m
roles:
  manager:
    model: claude-haiku
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(yamlText), 0644))
	t.Setenv("MAX_ITERATIONS", "3")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ProviderAnthropic, cfg.Provider)
	assert.Equal(t, 3, cfg.MaxIterations, "environment wins over the file")
	assert.Equal(t, "./generated", cfg.OutputRoot)
	assert.Equal(t, 2*time.Minute, cfg.RequestTimeout)
	assert.Equal(t, "claude-haiku", cfg.ModelFor(RoleManager))
	assert.Equal(t, "claude-from-file", cfg.ModelFor(RolePlanner))
}

func TestLoadExplicitMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestSecretsFileWinsOverEnv(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("OPENAI_API_KEY", "from-env")
	SetDecryptedSecrets(map[string]string{"OPENAI_API_KEY": "from-file"})
	t.Cleanup(func() { SetDecryptedSecrets(nil) })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Keys.OpenAI)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Azure.APIKey = "k"
		cfg.Azure.Endpoint = "https://e"
		cfg.Azure.Deployment = "d"
		return cfg
	}

	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Azure.APIKey = ""
	cfg.Azure.Endpoint = ""
	err := cfg.Validate()
	require.True(t, errors.Is(err, ErrMissingConfig))
	assert.Contains(t, err.Error(), "AZURE_AI_API_KEY")
	assert.Contains(t, err.Error(), "AZURE_AI_ENDPOINT")

	cfg = valid()
	cfg.MaxIterations = 0
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.RoutingMode = "graph"
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Provider = "bedrock"
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Provider = ProviderOllama
	assert.ErrorIs(t, cfg.Validate(), ErrMissingConfig)
	cfg.Model = "qwen3"
	assert.NoError(t, cfg.Validate())
}
