package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"tradechat-backend/internal/models"
)

// OpenAIService talks to any OpenAI-compatible endpoint, including a local
// Ollama server when baseURL points at it.
type OpenAIService struct {
	llm   llms.Model
	slots rateSlots
}

func NewOpenAIService(apiKey, baseURL, model string, concurrentReqs int) (*OpenAIService, error) {
	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(model),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
	}

	return &OpenAIService{llm: llm, slots: newRateSlots(concurrentReqs)}, nil
}

func (s *OpenAIService) Reply(ctx context.Context, history []models.ChatTurn, prompt, language string) (string, error) {
	if err := s.slots.acquire(ctx); err != nil {
		return "", &ExternalServiceError{Provider: "openai", Err: err}
	}
	defer s.slots.release()

	resp, err := s.llm.GenerateContent(ctx, openAIMessages(history, promptWithLanguage(prompt, language)),
		llms.WithTemperature(0.4),
	)
	if err != nil {
		return "", &ExternalServiceError{Provider: "openai", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &ExternalServiceError{Provider: "openai", Err: fmt.Errorf("no choices returned")}
	}

	text := strings.TrimSpace(resp.Choices[0].Content)
	if text == "" {
		return "", &ExternalServiceError{Provider: "openai", Err: fmt.Errorf("empty response")}
	}
	return text, nil
}

func openAIMessages(history []models.ChatTurn, prompt string) []llms.MessageContent {
	msgs := make([]llms.MessageContent, 0, len(history)+2)
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, tradeAssistantInstruction))
	for _, t := range history {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		role := llms.ChatMessageTypeHuman
		if t.Role == models.SenderAI {
			role = llms.ChatMessageTypeAI
		}
		msgs = append(msgs, llms.TextParts(role, t.Content))
	}
	return append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, prompt))
}
