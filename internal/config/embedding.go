package config

import (
	"fmt"
	"os"
)

// EmbeddingConfig configures the embedding provider used by the run text index.
type EmbeddingConfig struct {
	Name       string `mapstructure:"name"`         // Identifier used in logs
	Provider   string `mapstructure:"provider"`     // Provider type: "jina", "openai-compatible"
	Model      string `mapstructure:"model"`        // Model name/ID
	APIKey     string `mapstructure:"api_key"`      // API key (can be set directly or via env var)
	APIKeyEnv  string `mapstructure:"api_key_env"`  // Environment variable name for API key
	BaseURL    string `mapstructure:"base_url"`     // Base URL for OpenAI-compatible APIs
	BaseURLEnv string `mapstructure:"base_url_env"` // Environment variable name for base URL
	Dimensions int    `mapstructure:"dimensions"`   // Embedding vector dimensions
}

// ResolveEnvVars resolves environment variable references in the configuration.
// Direct values (APIKey, BaseURL) take precedence if already set.
func (c *EmbeddingConfig) ResolveEnvVars() {
	if c.APIKeyEnv != "" && c.APIKey == "" {
		if val := os.Getenv(c.APIKeyEnv); val != "" {
			c.APIKey = val
		}
	}
	if c.BaseURLEnv != "" && c.BaseURL == "" {
		if val := os.Getenv(c.BaseURLEnv); val != "" {
			c.BaseURL = val
		}
	}
}

// Validate checks that the embedding configuration has all required fields.
// Returns an error describing the first validation failure, or nil if valid.
func (c *EmbeddingConfig) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("embedding %q: provider is required", c.Name)
	}
	if c.Model == "" {
		return fmt.Errorf("embedding %q: model is required", c.Name)
	}
	if c.Dimensions <= 0 {
		return fmt.Errorf("embedding %q: dimensions must be positive", c.Name)
	}

	switch c.Provider {
	case "jina", "openai-compatible":
	default:
		return fmt.Errorf("embedding %q: unknown provider %q", c.Name, c.Provider)
	}
	if c.Provider == "openai-compatible" && c.BaseURL == "" {
		return fmt.Errorf("embedding %q: base_url is required for openai-compatible providers", c.Name)
	}
	return nil
}

// ResolveEnvVars loads the API key from APIKeyEnv when no key is set directly.
func (c *OCRBackendConfig) ResolveEnvVars() {
	if c.APIKeyEnv != "" && c.APIKey == "" {
		c.APIKey = os.Getenv(c.APIKeyEnv)
	}
}
