package config

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.Generation.DataDir == "" {
		cfg.Generation.DataDir = "data"
	}
	if cfg.Generation.ExamplesDir == "" {
		cfg.Generation.ExamplesDir = "examples"
	}
	if cfg.Generation.MinimumWordCount == 0 {
		cfg.Generation.MinimumWordCount = 400
	}
	if cfg.Generation.MaxAutoRegenerationAttempts == 0 {
		cfg.Generation.MaxAutoRegenerationAttempts = 3
	}
	if cfg.Generation.RegenerationCooldownMs == 0 {
		cfg.Generation.RegenerationCooldownMs = 30000
	}
	if cfg.Generation.Provider == "" {
		cfg.Generation.Provider = "mock"
	}

	if cfg.Models == nil {
		cfg.Models = make(map[string]ModelConfig)
	}
	for name, model := range cfg.Models {
		if model.Temperature == 0 {
			model.Temperature = 0.8
		}
		if model.TopP == 0 {
			model.TopP = 1.0
		}
		if model.MaxOutputTokens == 0 {
			model.MaxOutputTokens = 8192
		}
		if model.RateLimitPerMinute == 0 {
			model.RateLimitPerMinute = 60
		}
		if model.MaxRetries == 0 {
			model.MaxRetries = 3
		}
		cfg.Models[name] = model
	}

	if cfg.PromptTemplates.SystemPrompt == "" {
		cfg.PromptTemplates.SystemPrompt = defaultSystemPrompt
	}
	if cfg.PromptTemplates.OutlineRequest == "" {
		cfg.PromptTemplates.OutlineRequest = defaultOutlineRequest
	}
	if cfg.PromptTemplates.SectionInstructions == "" {
		cfg.PromptTemplates.SectionInstructions = defaultSectionInstructions
	}
	if cfg.PromptTemplates.RegenerationRequest == "" {
		cfg.PromptTemplates.RegenerationRequest = defaultRegenerationRequest
	}

	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = ":2112"
	}
}

const defaultSystemPrompt = `You are an experienced hypnotherapy script writer. You write flowing,
permissive, second-person scripts with a calm and steady cadence. Format your
work as markdown: a single "# Title" line, then "## Section" headers.`

const defaultOutlineRequest = `{{.Prompt}}

First, respond with only an outline for the script: a "# Title" line, then a
"## Section Title" line for each section followed by a one-line description of
what that section covers. Do not write the script body yet.`

const defaultSectionInstructions = `Here is the outline of the full script:

{{.Outline}}

Here is what has been written so far:

{{.ContentSoFar}}

Now write the complete "{{.SectionTitle}}" section ({{.SectionDescription}}).
Begin with the "## {{.SectionTitle}}" header and maintain continuity with the
content above. Write at least {{.MinimumWordCount}} words for this section.`

const defaultRegenerationRequest = `The "{{.SectionTitle}}" section came out too short. Rewrite it in full,
keeping the same position in the script and continuity with its neighbors.
Begin with the "## {{.SectionTitle}}" header and write at least
{{.MinimumWordCount}} words.`
