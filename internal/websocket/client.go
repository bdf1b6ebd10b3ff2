package websocket

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// 单帧写超时
	writeWait = 10 * time.Second

	// 超过此时长未收到 pong 即判定订阅端断开
	pongWait = 60 * time.Second

	// ping 周期 (必须小于 pongWait)
	pingPeriod = (pongWait * 9) / 10

	// 审计流是单向的,订阅端只应发送控制帧,入站上限给得很小
	inboundLimit = 512
)

// Client 审计事件流的 WebSocket 订阅端
// 订阅是只读的: 客户端发来的消息被丢弃,读循环只负责保活与断开检测
type Client struct {
	// ID 订阅端 ID
	ID string

	// RemoteAddr 对端地址,日志用
	RemoteAddr string

	// Hub Hub 实例
	Hub *Hub

	// Conn WebSocket 连接
	Conn *websocket.Conn

	// Send 待推送的审计事件队列,Hub 写入,WritePump 消费
	Send chan []byte
}

// NewClient 创建新的订阅端
func NewClient(id string, remoteAddr string, hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		ID:         id,
		RemoteAddr: remoteAddr,
		Hub:        hub,
		Conn:       conn,
		Send:       make(chan []byte, 256),
	}
}

// ReadPump 消费入站帧直到连接断开,然后从 Hub 注销
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(inboundLimit)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithFields(logrus.Fields{
					"client_id": c.ID,
					"remote":    c.RemoteAddr,
				}).WithError(err).Warn("audit stream subscriber disconnected unexpectedly")
			}
			return
		}
	}
}

// WritePump 推送审计事件与保活 ping
// 每条事件是一份自包含的 JSON 快照,独立成帧,订阅端按消息边界解析
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 注销了该订阅端
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, event); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
