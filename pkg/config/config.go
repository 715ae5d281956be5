// Package config loads openswe settings from defaults, an optional YAML file,
// the encrypted secrets file, and the environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"openswe/pkg/logx"
)

// Provider names accepted in LLM_PROVIDER.
const (
	ProviderAzure     = "azure"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

// Routing modes accepted in ROUTING_MODE.
const (
	RoutingDirect     = "direct"
	RoutingSupervisor = "supervisor"
)

// Secret names looked up through GetSecret.
const (
	EnvAzureAPIKey     = "AZURE_AI_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvGoogleAPIKey    = "GOOGLE_GENAI_API_KEY"
)

// Defaults.
const (
	DefaultAzureAPIVersion = "2024-02-15-preview"
	DefaultMaxIterations   = 10
	DefaultMaxTokens       = 8192
	DefaultOutputRoot      = "./agentic_code"
	DefaultHome            = ".openswe"
	DefaultOllamaHost      = "http://localhost:11434"
	DefaultLogLevel        = "ERROR"
	DefaultConfigFile      = "openswe.yaml"
)

// Role names used for per-role overrides.
const (
	RoleManager    = "manager"
	RolePlanner    = "planner"
	RoleProgrammer = "programmer"
)

// ErrMissingConfig reports a required setting that has no value.
var ErrMissingConfig = errors.New("missing required configuration")

// AzureConfig describes an Azure AI model deployment.
type AzureConfig struct {
	APIKey     string `yaml:"-" secret:"AZURE_AI_API_KEY"`
	Endpoint   string `yaml:"endpoint" env:"AZURE_AI_ENDPOINT"`
	APIVersion string `yaml:"api_version" env:"AZURE_AI_API_VERSION"`
	Deployment string `yaml:"deployment" env:"AZURE_AI_DEPLOYMENT_NAME"`
}

// ProviderKeys holds credentials for the hosted non-Azure providers.
type ProviderKeys struct {
	OpenAI        string `yaml:"-" secret:"OPENAI_API_KEY"`
	OpenAIBaseURL string `yaml:"openai_base_url" env:"OPENAI_BASE_URL"`
	Anthropic     string `yaml:"-" secret:"ANTHROPIC_API_KEY"`
	Google        string `yaml:"-" secret:"GOOGLE_GENAI_API_KEY"`
	OllamaHost    string `yaml:"ollama_host" env:"OLLAMA_HOST"`
}

// RoleConfig overrides the model used by one role. Empty keeps the shared model.
type RoleConfig struct {
	Model string `yaml:"model"`
}

// Config is the resolved process configuration.
type Config struct {
	Provider       string                `yaml:"provider" env:"LLM_PROVIDER"`
	Model          string                `yaml:"model" env:"LLM_MODEL"`
	Azure          AzureConfig           `yaml:"azure"`
	Keys           ProviderKeys          `yaml:"keys"`
	MaxIterations  int                   `yaml:"max_iterations" env:"MAX_ITERATIONS"`
	RoutingMode    string                `yaml:"routing_mode" env:"ROUTING_MODE"`
	OutputRoot     string                `yaml:"output_root" env:"OUTPUT_ROOT"`
	MaxTokens      int                   `yaml:"max_tokens" env:"LLM_MAX_TOKENS"`
	RequestTimeout time.Duration         `yaml:"request_timeout" env:"LLM_REQUEST_TIMEOUT"`
	LogLevel       string                `yaml:"log_level" env:"LOG_LEVEL"`
	Home           string                `yaml:"home" env:"OPENSWE_HOME"`
	Roles          map[string]RoleConfig `yaml:"roles"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Provider:      ProviderAzure,
		Azure:         AzureConfig{APIVersion: DefaultAzureAPIVersion},
		Keys:          ProviderKeys{OllamaHost: DefaultOllamaHost},
		MaxIterations: DefaultMaxIterations,
		RoutingMode:   RoutingDirect,
		OutputRoot:    DefaultOutputRoot,
		MaxTokens:     DefaultMaxTokens,
		LogLevel:      DefaultLogLevel,
		Home:          DefaultHome,
	}
}

// Load builds a Config. When path is empty, openswe.yaml in the working directory
// is read if present; an explicit path must exist. Environment values then
// override the file, and secrets resolve from the decrypted secrets file before
// the environment. Load does not validate; call Validate before using providers.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}
	if path != "" {
		if err := loadYAML(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	logx.NewLogger("config").Debug("loaded config file %s", path)
	return nil
}

// applyEnv walks struct fields: `env` tags read the environment, `secret` tags
// go through GetSecret so the secrets file wins over the environment.
func applyEnv(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if field.Kind() == reflect.Struct {
			if err := applyEnv(field); err != nil {
				return err
			}
			continue
		}

		if name := fieldType.Tag.Get("secret"); name != "" {
			if value, err := GetSecret(name); err == nil {
				field.SetString(value)
			}
			continue
		}
		if name := fieldType.Tag.Get("env"); name != "" {
			if value := os.Getenv(name); value != "" {
				if err := setField(field, value); err != nil {
					return fmt.Errorf("invalid %s=%q: %w", name, value, err)
				}
			}
		}
	}
	return nil
}

func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch {
	case field.Type() == reflect.TypeOf(time.Duration(0)):
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("failed to parse duration: %w", err)
		}
		field.SetInt(int64(d))
	case field.Kind() == reflect.String:
		field.SetString(value)
	case field.Kind() == reflect.Int:
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("failed to parse integer: %w", err)
		}
		field.SetInt(int64(n))
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}

func (c *Config) normalize() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	c.RoutingMode = strings.ToLower(strings.TrimSpace(c.RoutingMode))
	if c.Azure.APIVersion == "" {
		c.Azure.APIVersion = DefaultAzureAPIVersion
	}
	if c.Keys.OllamaHost == "" {
		c.Keys.OllamaHost = DefaultOllamaHost
	}
	if c.OutputRoot == "" {
		c.OutputRoot = DefaultOutputRoot
	}
	if c.Home == "" {
		c.Home = DefaultHome
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
}

// Validate reports the first problem that would make a run fail.
func (c *Config) Validate() error {
	if c.MaxIterations < 1 {
		return fmt.Errorf("MAX_ITERATIONS must be at least 1, got %d", c.MaxIterations)
	}
	switch c.RoutingMode {
	case RoutingDirect, RoutingSupervisor:
	default:
		return fmt.Errorf("unknown routing mode %q (want %s or %s)", c.RoutingMode, RoutingDirect, RoutingSupervisor)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("LLM_REQUEST_TIMEOUT must not be negative")
	}

	switch c.Provider {
	case ProviderAzure:
		return requireAll(
			EnvAzureAPIKey, c.Azure.APIKey,
			"AZURE_AI_ENDPOINT", c.Azure.Endpoint,
			"AZURE_AI_DEPLOYMENT_NAME", c.Azure.Deployment,
		)
	case ProviderOpenAI:
		return requireAll(EnvOpenAIAPIKey, c.Keys.OpenAI, "LLM_MODEL", c.Model)
	case ProviderAnthropic:
		return requireAll(EnvAnthropicAPIKey, c.Keys.Anthropic)
	case ProviderGoogle:
		return requireAll(EnvGoogleAPIKey, c.Keys.Google)
	case ProviderOllama:
		return requireAll("LLM_MODEL", c.Model)
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
}

// requireAll takes name/value pairs and names every empty value.
func requireAll(pairs ...string) error {
	var missing []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			missing = append(missing, pairs[i])
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}
	return nil
}

// ModelFor returns the model for role: the role override, else the shared model
// (the deployment name for Azure).
func (c *Config) ModelFor(role string) string {
	if rc, ok := c.Roles[role]; ok && rc.Model != "" {
		return rc.Model
	}
	if c.Provider == ProviderAzure {
		return c.Azure.Deployment
	}
	return c.Model
}

// HistoryPath is the SQLite run history database.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Home, "history.db")
}

// EventsDir holds the JSONL step event logs.
func (c *Config) EventsDir() string {
	return filepath.Join(c.Home, "events")
}

// LogsDir holds the rotating log file.
func (c *Config) LogsDir() string {
	return filepath.Join(c.Home, "logs")
}
