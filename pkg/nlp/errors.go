package nlp

import "errors"

// Common LLM client errors
var (
	// ErrRateLimit indicates the rate limit has been exceeded
	ErrRateLimit = errors.New("rate limit exceeded, try again later")

	// ErrRefusal indicates the LLM refused to respond to the prompt
	ErrRefusal = errors.New("the LLM refused to respond to this prompt")

	// ErrEmptyResponse indicates the LLM returned an empty response
	ErrEmptyResponse = errors.New("the LLM returned an empty response")

	// ErrInvalidConfig indicates a client could not be built from its config
	ErrInvalidConfig = errors.New("invalid llm configuration")

	// ErrCircuitOpen indicates calls are being rejected after repeated failures
	ErrCircuitOpen = errors.New("llm circuit breaker is open")
)

// RateLimitError represents a rate limit error with optional custom message
type RateLimitError struct {
	Message string
}

func (e *RateLimitError) Error() string {
	if e.Message == "" {
		return ErrRateLimit.Error()
	}
	return e.Message
}

// Is lets errors.Is match both ErrRateLimit and any *RateLimitError.
func (e *RateLimitError) Is(target error) bool {
	if target == ErrRateLimit {
		return true
	}
	_, ok := target.(*RateLimitError)
	return ok
}

// NewRateLimitError creates a new rate limit error with optional custom message
func NewRateLimitError(message ...string) *RateLimitError {
	err := &RateLimitError{}
	if len(message) > 0 {
		err.Message = message[0]
	}
	return err
}

// RefusalError represents an LLM refusal error
type RefusalError struct {
	Message string
}

func (e *RefusalError) Error() string {
	return e.Message
}

func (e *RefusalError) Is(target error) bool {
	if target == ErrRefusal {
		return true
	}
	_, ok := target.(*RefusalError)
	return ok
}

// NewRefusalError creates a new refusal error (message is required)
func NewRefusalError(message string) *RefusalError {
	return &RefusalError{Message: message}
}

// EmptyResponseError represents an empty response error
type EmptyResponseError struct {
	Message string
}

func (e *EmptyResponseError) Error() string {
	return e.Message
}

func (e *EmptyResponseError) Is(target error) bool {
	if target == ErrEmptyResponse {
		return true
	}
	_, ok := target.(*EmptyResponseError)
	return ok
}

// NewEmptyResponseError creates a new empty response error (message is required)
func NewEmptyResponseError(message string) *EmptyResponseError {
	return &EmptyResponseError{Message: message}
}
