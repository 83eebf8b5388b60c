package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"tradechat-backend/internal/models"
)

type GeminiService struct {
	client *genai.Client
	model  *genai.GenerativeModel
	slots  rateSlots
}

func NewGeminiService(ctx context.Context, apiKey, modelName string, concurrentReqs int) (*GeminiService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.4)
	model.SetTopP(0.95)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(tradeAssistantInstruction)},
	}

	return &GeminiService{
		client: client,
		model:  model,
		slots:  newRateSlots(concurrentReqs),
	}, nil
}

func (s *GeminiService) Close() {
	s.client.Close()
}

func (s *GeminiService) Reply(ctx context.Context, history []models.ChatTurn, prompt, language string) (string, error) {
	if err := s.slots.acquire(ctx); err != nil {
		return "", &ExternalServiceError{Provider: "gemini", Err: err}
	}
	defer s.slots.release()

	cs := s.model.StartChat()
	cs.History = geminiHistory(history)

	resp, err := cs.SendMessage(ctx, genai.Text(promptWithLanguage(prompt, language)))
	if err != nil {
		return "", geminiError(err)
	}

	text := strings.TrimSpace(extractText(resp))
	if text == "" {
		return "", &ExternalServiceError{Provider: "gemini", Err: fmt.Errorf("empty response")}
	}
	return text, nil
}

// geminiHistory maps turns to Gemini roles and merges consecutive turns from
// the same side, since the API expects them to alternate.
func geminiHistory(turns []models.ChatTurn) []*genai.Content {
	var out []*genai.Content
	for _, t := range turns {
		text := strings.TrimSpace(t.Content)
		if text == "" {
			continue
		}
		role := "user"
		if t.Role == models.SenderAI {
			role = "model"
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Parts = append(out[n-1].Parts, genai.Text(text))
			continue
		}
		out = append(out, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(text)}})
	}
	return out
}

func geminiError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &ExternalServiceError{Provider: "gemini", StatusCode: apiErr.Code, Err: err}
	}
	return &ExternalServiceError{Provider: "gemini", Err: err}
}

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}
