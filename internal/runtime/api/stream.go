package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	v1 "github.com/coderclaw/coderclaw/pkg/api/v1"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// streamFrame is one websocket message on the task stream.
type streamFrame struct {
	TaskID   string        `json:"task_id"`
	State    v1.TaskStatus `json:"state"`
	Result   *string       `json:"result,omitempty"`
	Error    *string       `json:"error,omitempty"`
	Progress *int          `json:"progress,omitempty"`
}

// StreamTask handles GET /api/runtime/tasks/:id/stream, upgrading to a
// websocket and forwarding task updates until a terminal state.
func (h *Handler) StreamTask(c *gin.Context) {
	taskID := c.Param("id")

	stream, err := h.runtime.StreamTaskUpdates(c.Request.Context(), taskID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{
			"code":    "NOT_FOUND",
			"message": err.Error(),
		}})
		return
	}
	defer stream.Close()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// Reads are only consumed to detect the peer going away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				stream.Close()
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case update, ok := <-stream.Updates():
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			frame := streamFrame{
				TaskID:   update.ID,
				State:    update.Status,
				Result:   update.Output,
				Error:    update.Error,
				Progress: update.Progress,
			}
			if err := conn.WriteJSON(frame); err != nil {
				h.logger.Debug("websocket write failed",
					zap.String("task_id", taskID), zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
