package websocket_test

import (
	"testing"
	"time"

	"github.com/mautops/template-gin/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHub_RegisterUnregister 测试客户端注册与注销
func TestHub_RegisterUnregister(t *testing.T) {
	hub := websocket.NewHub()
	go hub.Run()

	client := websocket.NewClient("client-001", "127.0.0.1:1234", hub, nil)
	hub.Register <- client

	assert.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	hub.Unregister <- client
	assert.Eventually(t, func() bool {
		return hub.ClientCount() == 0
	}, time.Second, 10*time.Millisecond)
}

// TestHub_Broadcast 广播消息投递到所有客户端的发送通道
func TestHub_Broadcast(t *testing.T) {
	hub := websocket.NewHub()
	go hub.Run()

	client := websocket.NewClient("client-001", "127.0.0.1:1234", hub, nil)
	hub.Register <- client
	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	hub.Broadcast([]byte(`{"action":"approved"}`))

	select {
	case msg := <-client.Send:
		assert.Equal(t, `{"action":"approved"}`, string(msg))
	case <-time.After(time.Second):
		t.Fatal("broadcast message not delivered")
	}
}

// TestHub_BroadcastNonBlocking 无订阅者且通道满时广播不阻塞
func TestHub_BroadcastNonBlocking(t *testing.T) {
	hub := websocket.NewHub()
	// 不启动 Run,通道最终填满

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Broadcast([]byte("x"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Broadcast blocked")
	}
}
