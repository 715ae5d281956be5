// Package agent builds the per-role LLM clients used by the workflow.
package agent

import (
	"fmt"

	"openswe/pkg/agent/internal/llmimpl/anthropic"
	"openswe/pkg/agent/internal/llmimpl/google"
	"openswe/pkg/agent/internal/llmimpl/ollama"
	"openswe/pkg/agent/internal/llmimpl/openaichat"
	"openswe/pkg/agent/llm"
	"openswe/pkg/agent/middleware/logging"
	"openswe/pkg/agent/middleware/metrics"
	"openswe/pkg/agent/middleware/resilience/timeout"
	"openswe/pkg/config"
	"openswe/pkg/logx"
)

// RoleClients holds one client per workflow role. They are built once at
// process start and passed explicitly to the steps.
type RoleClients struct {
	Manager    llm.LLMClient
	Planner    llm.LLMClient
	Programmer llm.LLMClient
}

// FactoryOptions tunes the middleware around every client.
type FactoryOptions struct {
	Recorder metrics.Recorder // nil disables metrics
	Logger   *logx.Logger     // request log lines; nil keeps them quiet
}

// NewProviderClient returns the raw client for cfg.Provider using model.
func NewProviderClient(cfg *config.Config, model string) (llm.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderAzure:
		return openaichat.NewAzureClient(cfg.Azure.Endpoint, cfg.Azure.APIKey, cfg.Azure.APIVersion, model), nil
	case config.ProviderOpenAI:
		return openaichat.NewOpenAIClient(cfg.Keys.OpenAI, model, cfg.Keys.OpenAIBaseURL), nil
	case config.ProviderAnthropic:
		return anthropic.NewClaudeClient(cfg.Keys.Anthropic, model, ""), nil
	case config.ProviderGoogle:
		return google.NewGeminiClient(cfg.Keys.Google, model, ""), nil
	case config.ProviderOllama:
		return ollama.NewOllamaClient(cfg.Keys.OllamaHost, model), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// NewRoleClients validates cfg and builds the manager, planner and programmer
// clients, each wrapped as logging -> metrics -> timeout -> provider.
func NewRoleClients(cfg *config.Config, opts FactoryOptions) (*RoleClients, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	build := func(role string) (llm.LLMClient, error) {
		base, err := NewProviderClient(cfg, cfg.ModelFor(role))
		if err != nil {
			return nil, err
		}
		return llm.Chain(base,
			logging.EmptyResponseLoggingMiddleware(role),
			metrics.Middleware(opts.Recorder, role, nil, opts.Logger),
			timeout.Middleware(cfg.RequestTimeout),
		), nil
	}

	var clients RoleClients
	var err error
	if clients.Manager, err = build(config.RoleManager); err != nil {
		return nil, err
	}
	if clients.Planner, err = build(config.RolePlanner); err != nil {
		return nil, err
	}
	if clients.Programmer, err = build(config.RoleProgrammer); err != nil {
		return nil, err
	}
	return &clients, nil
}
