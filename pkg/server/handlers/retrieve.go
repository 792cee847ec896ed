package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/episodic"
	"github.com/soundprediction/episodic/pkg/server/dto"
)

// RetrieveHandler handles data retrieval requests
type RetrieveHandler struct {
	querier episodic.GraphQuerier
}

// NewRetrieveHandler creates a new retrieve handler
func NewRetrieveHandler(querier episodic.GraphQuerier) *RetrieveHandler {
	return &RetrieveHandler{querier: querier}
}

// SearchEntities handles POST /api/v1/search/entities
func (h *RetrieveHandler) SearchEntities(c *gin.Context) {
	var req dto.SearchRequest
	if !bindJSON(c, &req) {
		return
	}
	results, err := h.querier.SearchEntities(c.Request.Context(), req.Query, req.Limit)
	if err != nil {
		writeClientError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSearchResponse(req.Query, results))
}

// SearchRelationships handles POST /api/v1/search/relationships
func (h *RetrieveHandler) SearchRelationships(c *gin.Context) {
	var req dto.RelationshipSearchRequest
	if !bindJSON(c, &req) {
		return
	}
	results, err := h.querier.SearchRelationships(c.Request.Context(), req.Query, req.Limit, req.Options())
	if err != nil {
		writeClientError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSearchResponse(req.Query, results))
}

// Search handles POST /api/v1/search
func (h *RetrieveHandler) Search(c *gin.Context) {
	var req dto.SearchRequest
	if !bindJSON(c, &req) {
		return
	}
	results, err := h.querier.Search(c.Request.Context(), req.Query, req.Limit)
	if err != nil {
		writeClientError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSearchResponse(req.Query, results))
}

// Neighbors handles GET /api/v1/entities/:name/neighbors?max_hops=N
func (h *RetrieveHandler) Neighbors(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		writeError(c, http.StatusBadRequest, "invalid_request", "entity name is required")
		return
	}
	if len(name) > dto.MaxNameLength {
		writeError(c, http.StatusBadRequest, "invalid_request", dto.ErrNameTooLong.Error())
		return
	}

	maxHops := 0
	if raw := c.Query("max_hops"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > dto.MaxHops {
			writeError(c, http.StatusBadRequest, "invalid_request", dto.ErrInvalidMaxHops.Error())
			return
		}
		maxHops = n
	}

	subgraph, err := h.querier.GetEntityNeighbors(c.Request.Context(), name, maxHops)
	if err != nil {
		writeClientError(c, err)
		return
	}
	c.JSON(http.StatusOK, subgraph)
}

// Stats handles GET /api/v1/stats
func (h *RetrieveHandler) Stats(c *gin.Context) {
	stats, err := h.querier.GetStatistics(c.Request.Context())
	if err != nil {
		writeClientError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
