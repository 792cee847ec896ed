package llm

import "strings"

var zeroWidthChars = strings.NewReplacer(
	"\u200b", "",
	"\u200c", "",
	"\u200d", "",
	"\ufeff", "",
	"\u2060", "",
)

// CleanInput removes zero-width characters and control characters other
// than newlines, returns and tabs before text is placed into a prompt.
func CleanInput(input string) string {
	cleaned := zeroWidthChars.Replace(input)

	var builder strings.Builder
	builder.Grow(len(cleaned))
	for _, r := range cleaned {
		if r >= 32 || r == '\n' || r == '\r' || r == '\t' {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}
