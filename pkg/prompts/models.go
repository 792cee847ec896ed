package prompts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/soundprediction/episodic/pkg/types"
)

// Response keys the extraction prompts ask the model to wrap its arrays in.
const (
	EntitiesKey      = "entities"
	RelationshipsKey = "relationships"
)

// Fields that identify a bare item object when the model skips the wrapper.
var (
	EntityItemKeys       = []string{"name"}
	RelationshipItemKeys = []string{"source", "target"}
)

// ExtractedEntity is one entity candidate as returned by the model.
type ExtractedEntity struct {
	Name        string                 `json:"name" yaml:"name"`
	Type        string                 `json:"type" yaml:"type"`
	Description string                 `json:"description,omitempty" yaml:"description,omitempty"`
	Properties  map[string]interface{} `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// ExtractedEntities is the wrapped entity extraction response.
type ExtractedEntities struct {
	Entities []ExtractedEntity `json:"entities"`
}

// ExtractedRelationship is one relationship candidate as returned by the
// model. Source and Target hold an entity id or name.
type ExtractedRelationship struct {
	Source      string      `json:"source"`
	Target      string      `json:"target"`
	Type        string      `json:"type"`
	Description string      `json:"description,omitempty"`
	Confidence  *Confidence `json:"confidence,omitempty"`
}

// ExtractedRelationships is the wrapped relationship extraction response.
type ExtractedRelationships struct {
	Relationships []ExtractedRelationship `json:"relationships"`
}

// Confidence accepts a JSON number or a numeric string; models emit both.
type Confidence float64

// UnmarshalJSON implements json.Unmarshaler.
func (c *Confidence) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return nil
	}
	s = strings.Trim(s, `"`)
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("invalid confidence %s: %w", string(data), err)
	}
	*c = Confidence(f)
	return nil
}

// Value returns the confidence, or def when none was supplied.
func (c *Confidence) Value(def float64) float64 {
	if c == nil {
		return def
	}
	return float64(*c)
}

// KnownEntity is the compact form of an existing entity given to the model
// as extraction context.
type KnownEntity struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Description string `yaml:"description,omitempty"`
}

// ToPromptJSON serializes data to JSON for use in prompts.
// When ensureASCII is false, non-ASCII characters are preserved in their original form.
func ToPromptJSON(data interface{}, ensureASCII bool, indent int) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent > 0 {
		enc.SetIndent("", strings.Repeat(" ", indent))
	}
	if err := enc.Encode(data); err != nil {
		return "", err
	}

	out := strings.TrimRight(buf.String(), "\n")
	if ensureASCII {
		return escapeNonASCII(out), nil
	}
	return out, nil
}

// ToPromptYAML serializes data to YAML for use in prompts.
func ToPromptYAML(data interface{}) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ToPromptTable renders entities one per line as "id | name | type".
func ToPromptTable(entities []*types.Entity) string {
	var b strings.Builder
	for _, e := range entities {
		if e == nil {
			continue
		}
		fmt.Fprintf(&b, "%s | %s | %s\n", e.ID, flattenCell(e.Name), e.Type)
	}
	return b.String()
}

// flattenCell keeps a value on one table line.
func flattenCell(s string) string {
	s = strings.ReplaceAll(s, "|", "/")
	return strings.Join(strings.Fields(s), " ")
}

// escapeNonASCII escapes non-ASCII characters in a string
func escapeNonASCII(s string) string {
	var buf strings.Builder
	for _, r := range s {
		if r > unicode.MaxASCII {
			fmt.Fprintf(&buf, "\\u%04x", r)
		} else {
			buf.WriteRune(r)
		}
	}
	return buf.String()
}

// logPrompts logs the generated prompts at debug level when
// DEBUG_LLM_PROMPTS=true.
func logPrompts(logger *slog.Logger, name, sysPrompt, userPrompt string) {
	if os.Getenv("DEBUG_LLM_PROMPTS") != "true" {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("Generated prompts",
		"prompt", name,
		"system", sysPrompt,
		"user", userPrompt)
}

// LogResponses logs a raw model response at debug level when
// DEBUG_LLM_PROMPTS=true.
func LogResponses(logger *slog.Logger, name string, response *types.Response) {
	if response == nil || os.Getenv("DEBUG_LLM_PROMPTS") != "true" {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("LLM response", "prompt", name, "content", response.Content)
}

func loggerFrom(context map[string]interface{}) *slog.Logger {
	if l, ok := context["logger"].(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

func stringFrom(context map[string]interface{}, key string) string {
	s, _ := context[key].(string)
	return s
}
