package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/parium/parium-api/internal/dtos"
	"github.com/parium/parium-api/internal/services"
)

type MessageHandler struct {
	Messages *services.MessageService
}

func NewMessageHandler(m *services.MessageService) *MessageHandler {
	return &MessageHandler{Messages: m}
}

// Send is POST /messages. A queued message is answered with 202.
func (h *MessageHandler) Send(c *gin.Context) {
	var req dtos.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.Messages.Send(c.Request.Context(), callerFrom(c), req.ID, req.ConversationID, req.Body)
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusCreated
	if res.Queued {
		status = http.StatusAccepted
	}
	c.JSON(status, res)
}

func (h *MessageHandler) Conversation(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	msgs, err := h.Messages.Conversation(c.Request.Context(), callerFrom(c), c.Param("id"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": msgs})
}

func (h *MessageHandler) Unread(c *gin.Context) {
	tally, err := h.Messages.Unread(c.Request.Context(), callerFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tally)
}
