// Package factorymcp wires the factory SQL gateway and the chat memory
// store into an MCP tool service.
package factorymcp

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Config configures the service and the chat CLI.
type Config struct {
	// FactoryDBPath is the operational database file. Opened read-only;
	// populated externally.
	FactoryDBPath string `yaml:"factory_db"`

	// MemoryDBPath is the conversation memory database file.
	MemoryDBPath string `yaml:"memory_db"`

	// MemoryBackend selects the memory store: "sqlite" (default),
	// "postgres" or "memory".
	MemoryBackend string `yaml:"memory_backend"`

	// PostgresURL is the connection string when MemoryBackend is
	// "postgres".
	PostgresURL string `yaml:"postgres_url"`

	// ListenAddr is where the MCP server listens.
	ListenAddr string `yaml:"listen_addr"`

	// MCPURL is where the chat CLI reaches the MCP server.
	MCPURL string `yaml:"mcp_url"`

	// Provider selects the LLM backend: "openai" (default, also covers
	// Ollama via OpenAIBaseURL) or "anthropic".
	Provider string `yaml:"provider"`

	// Model is the model name passed to the provider.
	Model string `yaml:"model"`

	// OpenAIBaseURL overrides the OpenAI endpoint; point it at a local
	// Ollama (http://localhost:11434/v1) to run fully offline.
	OpenAIBaseURL string `yaml:"openai_base_url"`

	// OpenAIAPIKey / AnthropicAPIKey authenticate the providers. Both
	// also come from the usual environment variables.
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`

	// AllowedOrigins for CORS on the HTTP surface. Defaults to all.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// Logger is the structured logger. Optional - defaults to
	// slog.Default().
	Logger *slog.Logger `yaml:"-"`
}

// Load reads a YAML config file (optional — an empty path yields the
// defaults), applies environment overrides, then defaults.
func Load(path string) (Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setFromEnv(&c.FactoryDBPath, "FACTORY_DB", "DB_PATH")
	setFromEnv(&c.MemoryDBPath, "MEMORY_DB")
	setFromEnv(&c.MemoryBackend, "MEMORY_BACKEND")
	setFromEnv(&c.PostgresURL, "POSTGRES_URL")
	setFromEnv(&c.ListenAddr, "LISTEN_ADDR")
	setFromEnv(&c.MCPURL, "MCP_URL")
	setFromEnv(&c.Provider, "LLM_PROVIDER")
	setFromEnv(&c.Model, "LLM_MODEL", "OLLAMA_MODEL")
	setFromEnv(&c.OpenAIBaseURL, "OPENAI_BASE_URL")
	setFromEnv(&c.OpenAIAPIKey, "OPENAI_API_KEY")
	setFromEnv(&c.AnthropicAPIKey, "ANTHROPIC_API_KEY")
}

func setFromEnv(dst *string, names ...string) {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			*dst = v
			return
		}
	}
}

// withDefaults applies default values to the config.
func (c Config) withDefaults() Config {
	if c.FactoryDBPath == "" {
		c.FactoryDBPath = "factory.db"
	}
	if c.MemoryDBPath == "" {
		c.MemoryDBPath = "memory.db"
	}
	if c.MemoryBackend == "" {
		c.MemoryBackend = "sqlite"
	}
	if c.ListenAddr == "" {
		c.ListenAddr = "127.0.0.1:8000"
	}
	if c.MCPURL == "" {
		c.MCPURL = "http://127.0.0.1:8000/mcp"
	}
	if c.Provider == "" {
		c.Provider = "openai"
	}
	if c.Model == "" {
		c.Model = "qwen3:0.6b"
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// validate checks that the config names known backends.
func (c Config) validate() error {
	switch c.MemoryBackend {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("%w: unknown memory backend %q", ErrInvalidConfig, c.MemoryBackend)
	}
	if c.MemoryBackend == "postgres" && c.PostgresURL == "" {
		return fmt.Errorf("%w: postgres backend requires postgres_url", ErrInvalidConfig)
	}

	switch c.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, c.Provider)
	}
	return nil
}
