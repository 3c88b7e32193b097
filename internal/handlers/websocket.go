package handlers

import (
  "context"
  "net/http"

  "github.com/gin-gonic/gin"
  "github.com/google/uuid"
  "github.com/gorilla/websocket"

  "github.com/trackside-org/trackside-backend/internal/logger"
  "github.com/trackside-org/trackside-backend/internal/requestdata"
  "github.com/trackside-org/trackside-backend/internal/services"
  "github.com/trackside-org/trackside-backend/internal/socket"
)

var upgrader = websocket.Upgrader{
  CheckOrigin: func(r *http.Request) bool {
    return true
  },
}

// WsHandler subscribes the caller to their own user channel, where transfer
// and ticket events for them are delivered.
func WsHandler(hub *socket.Hub, log *logger.Logger) gin.HandlerFunc {
  return func(c *gin.Context) {
    rd := requestdata.GetRequestData(c.Request.Context())
    if rd == nil || rd.UserID == uuid.Nil {
      respondError(c, services.ErrUnauthorized.WithMessage("not authenticated"))
      return
    }
    conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
    if err != nil {
      log.Warn("Failed to upgrade to websocket", "error", err)
      return
    }
    // The request context ends when this handler returns; the pumps outlive it.
    ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
    client := socket.NewClient(conn, hub, rd.UserID, cancel, log)
    hub.Subscribe(client, []string{socket.UserChannel(rd.UserID)})

    go client.WriteLoop(ctx)
    go client.ReadLoop(ctx)
  }
}
