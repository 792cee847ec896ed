package utils

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// ErrInvalidGroupID is returned when a group ID contains invalid characters
var ErrInvalidGroupID = errors.New("group ID contains invalid characters")

var groupIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateGroupID checks that groupID only holds ASCII letters, digits,
// dashes and underscores. Empty means the default group.
func ValidateGroupID(groupID string) error {
	if groupID == "" {
		return nil
	}
	if !groupIDPattern.MatchString(groupID) {
		return fmt.Errorf("%w: group ID %q", ErrInvalidGroupID, groupID)
	}
	return nil
}

// GenerateUUID generates a new UUID7 string
func GenerateUUID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Truncate shortens s to at most n runes, appending "..." when cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
