package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openswe/pkg/agent/middleware/metrics"
	"openswe/pkg/config"
)

func TestNewRoleClientsAzure(t *testing.T) {
	cfg := config.Default()
	cfg.Azure.APIKey = "k"
	cfg.Azure.Endpoint = "https://example.services.ai.azure.com/models"
	cfg.Azure.Deployment = "DeepSeek-R1-0528"
	cfg.RequestTimeout = time.Minute
	cfg.Roles = map[string]config.RoleConfig{config.RoleManager: {Model: "small-router"}}

	clients, err := NewRoleClients(cfg, FactoryOptions{Recorder: metrics.NewUsageRecorder()})
	require.NoError(t, err)
	assert.Equal(t, "small-router", clients.Manager.GetModelName())
	assert.Equal(t, "DeepSeek-R1-0528", clients.Planner.GetModelName())
	assert.Equal(t, "DeepSeek-R1-0528", clients.Programmer.GetModelName())
}

func TestNewRoleClientsRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	_, err := NewRoleClients(cfg, FactoryOptions{})
	require.ErrorIs(t, err, config.ErrMissingConfig)
}

func TestNewProviderClientEachProvider(t *testing.T) {
	for _, provider := range []string{
		config.ProviderAzure, config.ProviderOpenAI, config.ProviderAnthropic,
		config.ProviderGoogle, config.ProviderOllama,
	} {
		cfg := config.Default()
		cfg.Provider = provider
		client, err := NewProviderClient(cfg, "model-x")
		require.NoError(t, err, provider)
		assert.Equal(t, "model-x", client.GetModelName(), provider)
	}

	cfg := config.Default()
	cfg.Provider = "bedrock"
	_, err := NewProviderClient(cfg, "m")
	assert.Error(t, err)
}
