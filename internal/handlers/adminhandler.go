package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parium/parium-api/internal/dtos"
	"github.com/parium/parium-api/internal/services"
)

type AdminHandler struct {
	Storage *services.StorageService
}

func NewAdminHandler(s *services.StorageService) *AdminHandler {
	return &AdminHandler{Storage: s}
}

func (h *AdminHandler) StorageStats(c *gin.Context) {
	stats, err := h.Storage.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": stats})
}

// Migrate copies a bucket prefix to another bucket. Per-file failures are
// reported in the body; the request itself still succeeds.
func (h *AdminHandler) Migrate(c *gin.Context) {
	var req dtos.MigrateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	report, err := h.Storage.Migrate(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if report.Failed > 0 {
		status = http.StatusMultiStatus
	}
	c.JSON(status, report)
}
