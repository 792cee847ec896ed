package llm

import (
	"strings"
	"unicode"

	"github.com/soundprediction/episodic/pkg/types"
)

// GetTokenCount estimates the token count of text from its word count.
// It is only used for logging and prompt budgeting, never for billing.
func GetTokenCount(text string) int {
	if text == "" {
		return 0
	}
	words := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	// Tokens run at roughly 1.3 per English word.
	return int(float64(len(words)) * 1.3)
}

// EstimateTokensFromMessages estimates tokens for a slice of messages.
func EstimateTokensFromMessages(messages []types.Message) int {
	total := 0
	for _, msg := range messages {
		total += GetTokenCount(msg.Content)
		total += 4 // role and formatting overhead
	}
	return total
}
