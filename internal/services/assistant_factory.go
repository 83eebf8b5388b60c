package services

import (
	"context"
	"fmt"
	"strings"
)

type AssistantConfig struct {
	Provider       string
	GeminiAPIKey   string
	GeminiModel    string
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	OpenAIModel    string
	ConcurrentReqs int
}

// NewAssistant builds the configured provider. The returned close func is
// never nil. An empty provider yields an assistant that always fails, so
// callers fall back to the placeholder reply.
func NewAssistant(ctx context.Context, cfg AssistantConfig) (Assistant, func(), error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "":
		return disabledAssistant{}, func() {}, nil
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, nil, fmt.Errorf("GEMINI_API_KEY is required for the gemini provider")
		}
		svc, err := NewGeminiService(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.ConcurrentReqs)
		if err != nil {
			return nil, nil, err
		}
		return svc, svc.Close, nil
	case "openai":
		svc, err := NewOpenAIService(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.ConcurrentReqs)
		if err != nil {
			return nil, nil, err
		}
		return svc, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}
