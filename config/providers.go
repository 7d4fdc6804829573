package config

import (
	"sync"
	"time"
)

var (
	providersOnce   sync.Once
	providersConfig *ProvidersConfig
)

// ProviderConfig describes one narrative generation backend.
type ProviderConfig struct {
	Endpoint string
	Model    string
	APIKey   string
}

// ProvidersConfig carries the primary/secondary generation backends.
// The primary speaks the OpenAI-compatible chat API, the secondary an
// Ollama-style generate API.
type ProvidersConfig struct {
	Primary   ProviderConfig
	Secondary ProviderConfig
	Timeout   time.Duration
}

func GetProvidersConfig() *ProvidersConfig {
	providersOnce.Do(func() {
		loadEnv()
		providersConfig = &ProvidersConfig{
			Primary: ProviderConfig{
				Endpoint: getenv("NARRATIVE_PRIMARY_ENDPOINT", "https://api.openai.com/v1/chat/completions"),
				Model:    getenv("NARRATIVE_PRIMARY_MODEL", "gpt-4o-mini"),
				APIKey:   getenv("NARRATIVE_PRIMARY_API_KEY", ""),
			},
			Secondary: ProviderConfig{
				Endpoint: getenv("NARRATIVE_SECONDARY_ENDPOINT", "http://localhost:11434"),
				Model:    getenv("NARRATIVE_SECONDARY_MODEL", "llama3"),
			},
			Timeout: time.Duration(getenvInt("NARRATIVE_TIMEOUT_SECONDS", 60)) * time.Second,
		}
	})
	return providersConfig
}
