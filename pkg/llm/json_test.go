package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func TestRemoveThinkTags(t *testing.T) {
	in := "<think>\nlet me see\n</think>{\"a\": 1}"
	assert.Equal(t, `{"a": 1}`, RemoveThinkTags(in))
}

func TestExtractJSONFromResponse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"fenced json", "Here you go:\n```json\n{\"a\": 1}\n```\nthanks", `{"a": 1}`},
		{"bare fence", "```\n[1, 2]\n```", `[1, 2]`},
		{"object in prose", `Sure! {"a": {"b": 2}} hope that helps`, `{"a": {"b": 2}}`},
		{"array in prose", `result: [{"a": 1}] done`, `[{"a": 1}]`},
		{"think tags", "<think>{\"no\": true}</think>{\"yes\": true}", `{"yes": true}`},
		{"no json", "nothing here", "nothing here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractJSONFromResponse(tt.input))
		})
	}
}

func TestParseJSONArray(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []item
	}{
		{
			name:     "wrapped under key",
			input:    `{"entities": [{"name": "Alice", "type": "person"}]}`,
			expected: []item{{Name: "Alice", Type: "person"}},
		},
		{
			name:     "top level array",
			input:    `[{"name": "Acme", "type": "organization"}]`,
			expected: []item{{Name: "Acme", Type: "organization"}},
		},
		{
			name:     "only array field under another name",
			input:    `{"results": [{"name": "Paris", "type": "location"}], "count": 1}`,
			expected: []item{{Name: "Paris", Type: "location"}},
		},
		{
			name:     "single object",
			input:    `{"name": "Bob", "type": "person"}`,
			expected: []item{{Name: "Bob", Type: "person"}},
		},
		{
			name:     "trailing comma repaired",
			input:    "```json\n{\"entities\": [{\"name\": \"Alice\", \"type\": \"person\"},]}\n```",
			expected: []item{{Name: "Alice", Type: "person"}},
		},
		{
			name:     "truncated tail repaired",
			input:    `{"entities": [{"name": "Alice", "type": "person"}`,
			expected: []item{{Name: "Alice", Type: "person"}},
		},
		{
			name:     "empty list",
			input:    `{"entities": []}`,
			expected: []item{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseJSONArray[item](tt.input, "entities", "name")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseJSONArrayRejectsOffSchemaObjects(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		itemKeys []string
	}{
		{"error object", `{"error": {"message": "cannot comply"}}`, []string{"name"}},
		{"status object", `{"status": "ok"}`, []string{"name"}},
		{"blank item key", `{"name": "  ", "type": "person"}`, []string{"name"}},
		{"single object without item keys", `{"name": "Bob", "type": "person"}`, nil},
		{"missing one of two item keys", `{"source": "a", "type": "knows"}`, []string{"source", "target"}},
		{"null list", `{"entities": null}`, []string{"name"}},
		{"list key holds an object", `{"entities": {"name": "Alice"}}`, []string{"name"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseJSONArray[item](tt.input, "entities", tt.itemKeys...)
			assert.ErrorIs(t, err, ErrUnexpectedShape)
			assert.Nil(t, got)
		})
	}
}

func TestGenerateJSONArrayRetriesOffSchemaObject(t *testing.T) {
	client := &scriptedClient{replies: []string{
		`{"error": {"message": "cannot comply"}}`,
		`{"status": "ok"}`,
	}}

	_, _, err := GenerateJSONArray[item](context.Background(), client, prompt, nil, "entities", 2, "name")
	assert.ErrorIs(t, err, ErrUnexpectedShape)
	assert.Len(t, client.seen, 2)
}

func TestParseJSONArrayRejectsProse(t *testing.T) {
	_, err := ParseJSONArray[item]("I could not find any entities.", "entities")
	assert.ErrorIs(t, err, ErrNoJSON)

	_, err = ParseJSONArray[item]("", "entities")
	assert.Error(t, err)
}

func TestCleanInput(t *testing.T) {
	assert.Equal(t, "Alice\tmet\nBob", CleanInput("Al\u200bice\tmet\nB\x00ob\ufeff"))
}

func TestGetTokenCount(t *testing.T) {
	assert.Equal(t, 0, GetTokenCount(""))
	assert.Equal(t, 3, GetTokenCount("Alice met Bob"))
}
