package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tradechat-backend/internal/models"
)

// Assistant generates the AI side of a conversation.
type Assistant interface {
	Reply(ctx context.Context, history []models.ChatTurn, prompt, language string) (string, error)
}

const tradeAssistantInstruction = `You are a helpful assistant for import and export trade questions.
You explain Incoterms, customs procedures, HS codes, tariffs, documentation (commercial invoices, bills of lading, certificates of origin), payment terms and logistics.
Always answer in the same language the user writes in unless told otherwise.
Keep answers concise and practical. If a question depends on a specific country's current regulations, say so and suggest checking with the relevant customs authority.`

// FallbackReply is shown when the assistant cannot be reached.
const FallbackReply = "Sorry, I couldn't reach the trade assistant right now. Please try again in a moment."

func promptWithLanguage(prompt, language string) string {
	language = strings.TrimSpace(language)
	if language == "" {
		return prompt
	}
	return fmt.Sprintf("(Respond in %s.)\n\n%s", language, prompt)
}

// rateSlots caps concurrent provider calls.
type rateSlots chan struct{}

func newRateSlots(n int) rateSlots {
	if n < 1 {
		n = 1
	}
	slots := make(rateSlots, n)
	for i := 0; i < n; i++ {
		slots <- struct{}{}
	}
	return slots
}

// acquire blocks until a slot is available
func (s rateSlots) acquire(ctx context.Context) error {
	select {
	case <-s:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(2 * time.Minute):
		return fmt.Errorf("timeout waiting for assistant rate slot")
	}
}

func (s rateSlots) release() {
	s <- struct{}{}
}

// disabledAssistant is used when no AI provider is configured.
type disabledAssistant struct{}

func (disabledAssistant) Reply(ctx context.Context, history []models.ChatTurn, prompt, language string) (string, error) {
	return "", &ExternalServiceError{Provider: "assistant", Err: fmt.Errorf("no AI provider configured")}
}
