package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parium/parium-api/internal/dtos"
	"github.com/parium/parium-api/internal/services"
)

type SavedJobHandler struct {
	Saved   *services.SavedJobService
	Matcher *services.MatcherService
}

func NewSavedJobHandler(saved *services.SavedJobService, matcher *services.MatcherService) *SavedJobHandler {
	return &SavedJobHandler{Saved: saved, Matcher: matcher}
}

func (h *SavedJobHandler) List(c *gin.Context) {
	res, err := h.Saved.List(c.Request.Context(), callerFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	cached(c, res.Value, res.Cached, res.Stale)
}

// Toggle is POST /saved-jobs/:jobId/toggle
func (h *SavedJobHandler) Toggle(c *gin.Context) {
	saved, err := h.Saved.Toggle(c.Request.Context(), callerFrom(c), c.Param("jobId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": c.Param("jobId"), "saved": saved})
}

func (h *SavedJobHandler) ListSearches(c *gin.Context) {
	searches, err := h.Saved.SavedSearches(c.Request.Context(), callerFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": searches})
}

func (h *SavedJobHandler) CreateSearch(c *gin.Context) {
	var req dtos.SavedSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ss, err := h.Saved.CreateSavedSearch(c.Request.Context(), callerFrom(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ss)
}

// SearchCounts is GET /saved-searches/counts
func (h *SavedJobHandler) SearchCounts(c *gin.Context) {
	tally, err := h.Matcher.MatchCounts(c.Request.Context(), callerFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tally)
}
