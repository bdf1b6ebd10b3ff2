package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaWS "github.com/gorilla/websocket"
)

var upgrader = gorillaWS.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// 在生产环境中应该检查 Origin
		return true
	},
}

// AuditStreamHandler 审计事件流 WebSocket 处理器
// 连接升级后即开始接收协调器的审计事件广播
func AuditStreamHandler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. 升级连接
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to upgrade connection"})
			return
		}

		// 2. 创建并注册客户端
		client := NewClient(
			uuid.New().String(),
			c.Request.RemoteAddr,
			hub,
			conn,
		)
		hub.Register <- client

		// 3. 启动 readPump 和 writePump
		go client.ReadPump()
		go client.WritePump()
	}
}
