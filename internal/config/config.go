package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	Generation      GenerationConfig       `toml:"generation"`
	Models          map[string]ModelConfig `toml:"models"`
	PromptTemplates PromptTemplates        `toml:"prompt_templates"`
	Metrics         MetricsConfig          `toml:"metrics"`
}

// GenerationConfig holds orchestration and regeneration-policy settings
type GenerationConfig struct {
	DataDir     string `toml:"data_dir"`     // conversation / policy / job records
	ExamplesDir string `toml:"examples_dir"` // example documents for retrieval

	MinimumWordCount            int `toml:"minimum_word_count"`             // sections below this are regenerated
	MaxAutoRegenerationAttempts int `toml:"max_auto_regeneration_attempts"` // per-section cap for automatic retries
	RegenerationCooldownMs      int `toml:"regeneration_cooldown_ms"`       // wait between attempts on one section

	Provider string `toml:"provider"` // "openai" or "mock", selected at construction
}

// RegenerationCooldown returns the cooldown as a duration
func (g GenerationConfig) RegenerationCooldown() time.Duration {
	return time.Duration(g.RegenerationCooldownMs) * time.Millisecond
}

// ModelConfig represents configuration for a single model endpoint
type ModelConfig struct {
	BaseURL            string  `toml:"base_url"`
	ModelName          string  `toml:"model_name"`
	Temperature        float64 `toml:"temperature"`
	TopP               float64 `toml:"top_p"`
	MaxOutputTokens    int     `toml:"max_output_tokens"`
	ContextSize        int     `toml:"context_size"`
	RateLimitPerMinute int     `toml:"rate_limit_per_minute"`
	MaxRetries         int     `toml:"max_retries"`          // 0 = default
	HTTPTimeoutSeconds int     `toml:"http_timeout_seconds"` // 0 = no per-request deadline
}

// PromptTemplates holds the customizable prompt templates. The prose content
// is opaque to the engine; templates are rendered with text/template.
type PromptTemplates struct {
	SystemPrompt        string `toml:"system_prompt"`
	OutlineRequest      string `toml:"outline_request"`
	SectionInstructions string `toml:"section_instructions"`
	RegenerationRequest string `toml:"regeneration_request"`
}

// MetricsConfig controls the optional Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

// Secrets holds sensitive credentials loaded from environment variables
type Secrets struct {
	APIKeys map[string]string
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Generation.MinimumWordCount < 1 {
		return fmt.Errorf("generation.minimum_word_count must be at least 1")
	}
	if c.Generation.MaxAutoRegenerationAttempts < 0 {
		return fmt.Errorf("generation.max_auto_regeneration_attempts must not be negative")
	}
	if c.Generation.RegenerationCooldownMs < 0 {
		return fmt.Errorf("generation.regeneration_cooldown_ms must not be negative")
	}

	switch c.Generation.Provider {
	case "openai", "mock":
	default:
		return fmt.Errorf("generation.provider must be openai or mock (got %q)", c.Generation.Provider)
	}

	if c.Generation.Provider == "openai" {
		mainModel, ok := c.Models["main"]
		if !ok {
			return fmt.Errorf("models.main is required")
		}
		if err := validateModelConfig("main", mainModel); err != nil {
			return err
		}
	}

	return nil
}

func validateModelConfig(name string, mc ModelConfig) error {
	if mc.BaseURL == "" {
		return fmt.Errorf("models.%s.base_url is required", name)
	}
	if mc.ModelName == "" {
		return fmt.Errorf("models.%s.model_name is required", name)
	}
	if mc.Temperature < 0 || mc.Temperature > 2 {
		return fmt.Errorf("models.%s.temperature must be between 0 and 2", name)
	}
	if mc.TopP < 0 || mc.TopP > 1 {
		return fmt.Errorf("models.%s.top_p must be between 0 and 1", name)
	}
	if mc.MaxOutputTokens < 1 {
		return fmt.Errorf("models.%s.max_output_tokens must be at least 1", name)
	}
	if mc.ContextSize > 0 && mc.MaxOutputTokens > mc.ContextSize {
		return fmt.Errorf("models.%s.max_output_tokens (%d) must not exceed context_size (%d)", name, mc.MaxOutputTokens, mc.ContextSize)
	}
	return nil
}

// LoadSecrets loads credentials from environment variables
func LoadSecrets() (*Secrets, error) {
	secrets := &Secrets{
		APIKeys: make(map[string]string),
	}

	if key := os.Getenv("API_KEY"); key != "" {
		secrets.APIKeys["generic"] = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		secrets.APIKeys["openai"] = key
	}
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		secrets.APIKeys["openrouter"] = key
	}
	if key := os.Getenv("TOGETHER_API_KEY"); key != "" {
		secrets.APIKeys["together"] = key
	}

	return secrets, nil
}

// GetAPIKey returns the API key for a given base URL
func (s *Secrets) GetAPIKey(baseURL string) string {
	if strings.Contains(baseURL, "openai.com") {
		if key := s.APIKeys["openai"]; key != "" {
			return key
		}
	}
	if strings.Contains(baseURL, "openrouter.ai") {
		if key := s.APIKeys["openrouter"]; key != "" {
			return key
		}
	}
	if strings.Contains(baseURL, "together.xyz") || strings.Contains(baseURL, "together.ai") {
		if key := s.APIKeys["together"]; key != "" {
			return key
		}
	}

	// Fall back to the generic key; a local server may need none at all.
	return s.APIKeys["generic"]
}
