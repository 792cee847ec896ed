package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/episodic"
	"github.com/soundprediction/episodic/pkg/server/dto"
)

// writeError writes an error response as JSON
func writeError(c *gin.Context, status int, errCode, message string) {
	c.AbortWithStatusJSON(status, dto.ErrorResponse{
		Error:   errCode,
		Message: message,
	})
}

// writeClientError maps a client error onto an HTTP status.
func writeClientError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, episodic.ErrInvalidEpisode):
		writeError(c, http.StatusBadRequest, "invalid_episode", err.Error())
	case errors.Is(err, episodic.ErrEpisodeInFlight):
		writeError(c, http.StatusConflict, "episode_in_flight", err.Error())
	case errors.Is(err, episodic.ErrClientClosed):
		writeError(c, http.StatusServiceUnavailable, "unavailable", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(c, http.StatusGatewayTimeout, "timeout", err.Error())
	case errors.Is(err, episodic.ErrGraphWrite):
		writeError(c, http.StatusBadGateway, "graph_write_failed", err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

// bindJSON decodes and validates the request body.
func bindJSON(c *gin.Context, req interface{ Validate() error }) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	if err := req.Validate(); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	return true
}
