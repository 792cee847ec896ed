package episodic

import (
	"errors"

	"github.com/soundprediction/episodic/pkg/driver"
	"github.com/soundprediction/episodic/pkg/embedder"
	"github.com/soundprediction/episodic/pkg/utils/maintenance"
)

var (
	// ErrExtraction matches *ExtractionError.
	ErrExtraction = maintenance.ErrExtraction
	// ErrResolutionDegraded matches *ResolutionDegraded.
	ErrResolutionDegraded = maintenance.ErrResolutionDegraded
	// ErrGraphWrite matches *GraphWriteError.
	ErrGraphWrite = driver.ErrGraphWrite
	// ErrEmbeddingUnavailable matches *EmbeddingUnavailable.
	ErrEmbeddingUnavailable = embedder.ErrEmbeddingUnavailable

	// ErrInvalidEpisode is returned when an episode is malformed.
	ErrInvalidEpisode = errors.New("invalid episode")
	// ErrEpisodeInFlight is returned when an episode id is already being processed.
	ErrEpisodeInFlight = errors.New("episode already in flight")
	// ErrClientClosed is returned by operations on a closed client.
	ErrClientClosed = errors.New("client is closed")
)

type (
	ExtractionError      = maintenance.ExtractionError
	ResolutionDegraded   = maintenance.ResolutionDegraded
	GraphWriteError      = driver.GraphWriteError
	EmbeddingUnavailable = embedder.EmbeddingUnavailable
)
