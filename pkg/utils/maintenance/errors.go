package maintenance

import (
	"errors"
	"fmt"
)

// Extraction stages reported by ExtractionError.
const (
	StageEntities      = "entities"
	StageRelationships = "relationships"
)

var (
	// ErrExtraction matches every *ExtractionError.
	ErrExtraction = errors.New("extraction failed")
	// ErrResolutionDegraded matches every *ResolutionDegraded.
	ErrResolutionDegraded = errors.New("entity resolution degraded")
)

// ExtractionError reports that the LLM call for a stage failed, timed out or
// returned output that could not be parsed.
type ExtractionError struct {
	Stage string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s extraction failed: %v", e.Stage, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func (e *ExtractionError) Is(target error) bool {
	return target == ErrExtraction
}

// ResolutionDegraded records that the identity lookup for a candidate
// failed and the candidate was created as a new entity.
type ResolutionDegraded struct {
	EntityName string
	Err        error
}

func (e *ResolutionDegraded) Error() string {
	return fmt.Sprintf("resolution degraded for %q: %v", e.EntityName, e.Err)
}

func (e *ResolutionDegraded) Unwrap() error { return e.Err }

func (e *ResolutionDegraded) Is(target error) bool {
	return target == ErrResolutionDegraded
}
