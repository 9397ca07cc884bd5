package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jroosing/hydrablock/internal/api/middleware"
	"github.com/jroosing/hydrablock/internal/api/models"
)

// maxMessageBytes bounds one message body. Imports carry the whole state.
const maxMessageBytes = 8 << 20

// PostMessage godoc
// @Summary Send a message
// @Description Delivers one {"action": name, ...payload} message to the coordinator
// @Description and returns its reply. Handler failures reply 200 with
// @Description {"success": false, "error": msg}; unknown actions reply {"error": "Unknown action"}.
// @Tags messages
// @Accept json
// @Produce json
// @Param message body object true "Message"
// @Success 200 {object} object
// @Failure 400 {object} models.ErrorResponse
// @Failure 413 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /messages [post]
func (h *Handler) PostMessage(c *gin.Context) {
	d := h.GetDispatcher()
	if d == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "message bus not running"})
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxMessageBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{Error: "message too large"})
			return
		}
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	reply := d.Dispatch(c.Request.Context(), raw)
	c.Header(middleware.RequestIDHeader, reply.ID)
	if !reply.OK && h.logger != nil {
		h.logger.Debug("message failed", "action", reply.Action, "id", reply.ID)
	}
	c.JSON(http.StatusOK, reply.Body)
}
