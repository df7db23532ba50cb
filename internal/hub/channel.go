package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Channel 会话双工通道的下行写端
// 注册表只依赖这个接口，测试可以注入故障通道
type Channel interface {
	// WriteText 写一帧文本消息（JSON信封）
	WriteText(data []byte) error
	// Close 关闭通道
	Close() error
}

// wsChannel gorilla连接的写端包装
// gorilla的Conn不允许并发写，所有写操作经由同一把互斥锁
type wsChannel struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
}

// NewWebSocketChannel 包装一个WebSocket连接
func NewWebSocketChannel(conn *websocket.Conn, writeTimeout time.Duration) Channel {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &wsChannel{conn: conn, writeTimeout: writeTimeout}
}

func (c *wsChannel) WriteText(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
		time.Now().Add(time.Second))
	return c.conn.Close()
}
