package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parium/parium-api/internal/dtos"
	"github.com/parium/parium-api/internal/services"
)

type TeamHandler struct {
	Team *services.TeamService
}

func NewTeamHandler(t *services.TeamService) *TeamHandler {
	return &TeamHandler{Team: t}
}

func (h *TeamHandler) List(c *gin.Context) {
	res, err := h.Team.List(c.Request.Context(), callerFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	cached(c, res.Value, res.Cached, res.Stale)
}

func (h *TeamHandler) Add(c *gin.Context) {
	var req dtos.TeamInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	m, err := h.Team.Add(c.Request.Context(), callerFrom(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *TeamHandler) Remove(c *gin.Context) {
	if err := h.Team.Remove(c.Request.Context(), callerFrom(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
