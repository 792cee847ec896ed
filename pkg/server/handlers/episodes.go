package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/episodic"
	"github.com/soundprediction/episodic/pkg/server/dto"
	"github.com/soundprediction/episodic/pkg/types"
)

// EpisodeHandler handles episode ingestion requests
type EpisodeHandler struct {
	ingester episodic.EpisodeIngester
	logger   *slog.Logger
}

// NewEpisodeHandler creates a new episode handler
func NewEpisodeHandler(ingester episodic.EpisodeIngester, logger *slog.Logger) *EpisodeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EpisodeHandler{ingester: ingester, logger: logger}
}

// AddEpisode handles POST /api/v1/episodes. The episode is processed
// before the response: 200 when complete, 207 when partial.
func (h *EpisodeHandler) AddEpisode(c *gin.Context) {
	var req dto.AddEpisodeRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.ingester.AddEpisode(c.Request.Context(), req.Content, req.Source, req.Metadata, req.Options())
	if err != nil {
		h.logger.Error("Episode ingestion failed", "error", err)
		if result != nil {
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{
				"error":   "episode_not_recorded",
				"message": err.Error(),
				"episode": dto.NewEpisodeResponse(result),
			})
			return
		}
		writeClientError(c, err)
		return
	}

	c.JSON(statusFor(result), dto.NewEpisodeResponse(result))
}

// AddEpisodes handles POST /api/v1/episodes/batch. Every entry gets a
// result; the response is 207 unless all of them completed.
func (h *EpisodeHandler) AddEpisodes(c *gin.Context) {
	var req dto.AddEpisodesRequest
	if !bindJSON(c, &req) {
		return
	}

	inputs := make([]episodic.EpisodeInput, len(req.Episodes))
	for i := range req.Episodes {
		inputs[i] = req.Episodes[i].Input()
	}
	results, errs := h.ingester.AddEpisodes(c.Request.Context(), inputs)

	resp := dto.AddEpisodesResponse{Results: make([]dto.BatchItem, len(inputs))}
	for i := range inputs {
		item := dto.BatchItem{Index: i, Episode: dto.NewEpisodeResponse(results[i])}
		switch {
		case errs[i] != nil:
			item.Error = errs[i].Error()
			resp.Failed++
		case results[i].Status == types.EpisodePartial:
			resp.Partial++
		default:
			resp.Complete++
		}
		resp.Results[i] = item
	}

	status := http.StatusOK
	if resp.Complete != len(inputs) {
		status = http.StatusMultiStatus
	}
	c.JSON(status, resp)
}

func statusFor(result *episodic.EpisodeResult) int {
	if result.Status == types.EpisodePartial {
		return http.StatusMultiStatus
	}
	return http.StatusOK
}
