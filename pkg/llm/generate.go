package llm

import (
	"context"
	"fmt"

	"github.com/soundprediction/episodic/pkg/nlp"
	"github.com/soundprediction/episodic/pkg/types"
)

// DefaultJSONAttempts is how many completions GenerateJSONArray asks for
// before giving up on unparseable output.
const DefaultJSONAttempts = 2

// GenerateJSONArray asks client for a structured reply and decodes a list of
// T from it. When the reply does not parse, the bad output is echoed back
// with a correction request. Client errors are returned immediately; retrying
// those is the job of nlp.RetryClient. key and itemKeys are passed to
// ParseJSONArray.
func GenerateJSONArray[T any](ctx context.Context, client nlp.Client, messages []types.Message, schema any, key string, maxAttempts int, itemKeys ...string) ([]T, *types.Response, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultJSONAttempts
	}

	working := make([]types.Message, len(messages))
	copy(working, messages)

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		resp, err := client.ChatWithStructuredOutput(ctx, working, schema)
		if err != nil {
			return nil, nil, err
		}

		items, err := ParseJSONArray[T](resp.Content, key, itemKeys...)
		if err == nil {
			return items, resp, nil
		}
		lastErr = err

		working = append(working,
			nlp.NewMessage(nlp.RoleAssistant, resp.Content),
			nlp.NewUserMessage(fmt.Sprintf(
				"That response was not usable (%v). Reply again with only the complete JSON object.", err)),
		)
	}
	return nil, nil, fmt.Errorf("failed to get valid JSON after %d attempts: %w", maxAttempts, lastErr)
}
