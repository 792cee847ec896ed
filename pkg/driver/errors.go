package driver

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by GraphStore implementations.
var (
	ErrVertexNotFound    = errors.New("vertex not found")
	ErrInvalidLabel      = errors.New("invalid label")
	ErrInvalidProperties = errors.New("invalid properties")
	ErrGraphWrite        = errors.New("graph write failed")
	ErrStoreClosed       = errors.New("graph store is closed")
)

// GraphWriteError reports a vertex or edge write that failed after retries.
type GraphWriteError struct {
	Op       string
	ID       string
	Attempts int
	Err      error
}

func (e *GraphWriteError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("graph write %s %s failed after %d attempt(s): %v", e.Op, e.ID, e.Attempts, e.Err)
	}
	return fmt.Sprintf("graph write %s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *GraphWriteError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrGraphWrite) match any GraphWriteError.
func (e *GraphWriteError) Is(target error) bool {
	return target == ErrGraphWrite
}

func validateVertex(v *Vertex) error {
	if v == nil {
		return fmt.Errorf("%w: nil vertex", ErrInvalidProperties)
	}
	if !ValidLabel(v.Label) {
		return fmt.Errorf("%w: %q", ErrInvalidLabel, v.Label)
	}
	if err := v.Properties.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProperties, err)
	}
	for _, k := range v.Properties.Keys() {
		if k == KeyUUID || k == KeyGroupID || k == KeyEmbedding {
			return fmt.Errorf("%w: reserved key %q", ErrInvalidProperties, k)
		}
	}
	return nil
}

func validateEdge(e *Edge) error {
	if e == nil {
		return fmt.Errorf("%w: nil edge", ErrInvalidProperties)
	}
	if !ValidLabel(e.Label) {
		return fmt.Errorf("%w: %q", ErrInvalidLabel, e.Label)
	}
	if e.From == "" || e.To == "" {
		return fmt.Errorf("%w: edge endpoints are required", ErrInvalidProperties)
	}
	if err := e.Properties.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProperties, err)
	}
	for _, k := range e.Properties.Keys() {
		if k == KeyUUID || k == KeyGroupID {
			return fmt.Errorf("%w: reserved key %q", ErrInvalidProperties, k)
		}
	}
	return nil
}
