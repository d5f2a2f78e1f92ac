package config

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// AssistantConfig configures the language-model runtime and conversation handling.
type AssistantConfig struct {
	Provider            string
	Model               string
	AnthropicAPIKey     string
	OpenAIAPIKey        string
	MaxTokens           int
	MaxToolIterations   int
	CompactionThreshold int
	KeepRecent          int
	SystemPrompt        string
}

func loadAssistantConfig() AssistantConfig {
	provider := getEnv("ASSISTANT_PROVIDER", ProviderAnthropic)

	defaultModel := "claude-sonnet-4-5"
	if provider == ProviderOpenAI {
		defaultModel = "gpt-4o"
	}

	return AssistantConfig{
		Provider:            provider,
		Model:               getEnv("ASSISTANT_MODEL", defaultModel),
		AnthropicAPIKey:     getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:        getEnv("OPENAI_API_KEY", ""),
		MaxTokens:           getEnvInt("ASSISTANT_MAX_TOKENS", 1024),
		MaxToolIterations:   getEnvInt("ASSISTANT_MAX_TOOL_ITERATIONS", 5),
		CompactionThreshold: getEnvInt("ASSISTANT_COMPACTION_THRESHOLD", 40),
		KeepRecent:          getEnvInt("ASSISTANT_KEEP_RECENT", 10),
		SystemPrompt:        getEnv("ASSISTANT_SYSTEM_PROMPT", "You are a helpful personal assistant. Use the available tools when they help."),
	}
}
