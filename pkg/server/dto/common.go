package dto

import "errors"

// Validation errors
var (
	ErrContentTooLong   = errors.New("content exceeds maximum length (1MB)")
	ErrSourceTooLong    = errors.New("source exceeds maximum length (256)")
	ErrGroupIDTooLong   = errors.New("group_id exceeds maximum length (256)")
	ErrEpisodeIDTooLong = errors.New("episode_id exceeds maximum length (256)")
	ErrTooManyMetadata  = errors.New("metadata count exceeds maximum (100)")
	ErrEmptyEpisodes    = errors.New("episodes cannot be empty")
	ErrTooManyEpisodes  = errors.New("episodes count exceeds maximum (100)")
	ErrEmptyQuery       = errors.New("query cannot be empty")
	ErrQueryTooLong     = errors.New("query exceeds maximum length (1024)")
	ErrNameTooLong      = errors.New("name exceeds maximum length (1024)")
	ErrInvalidLimit     = errors.New("limit must be between 0 and 100")
	ErrInvalidMaxHops   = errors.New("max_hops must be between 0 and 5")
)

// MaxFieldLengths defines maximum lengths for fields to prevent abuse
const (
	MaxGroupIDLength   = 256
	MaxEpisodeIDLength = 256
	MaxSourceLength    = 256
	MaxNameLength      = 1024
	MaxQueryLength     = 1024
	MaxContentLength   = 1024 * 1024 // 1MB
	MaxMetadataCount   = 100
	MaxBatchEpisodes   = 100
	MaxSearchLimit     = 100
	MaxHops            = 5
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
