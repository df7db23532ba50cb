package wsclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"InterviewStream/internal/logger"
	"InterviewStream/internal/protocol"
)

// ClientState 客户端连接状态
type ClientState int32

const (
	StateDisconnected ClientState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s ClientState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// FeedbackHandler 下行反馈消息处理器
type FeedbackHandler func(msg *protocol.FeedbackMessage)

// StateChangeHandler 状态变化处理器
type StateChangeHandler func(oldState, newState ClientState)

// ClientConfig 客户端配置
type ClientConfig struct {
	URL               string
	HandshakeTimeout  time.Duration
	ReconnectInterval time.Duration
	MaxReconnectTries uint64
	EnableCompression bool
}

// DefaultClientConfig 返回默认配置
func DefaultClientConfig(url string) *ClientConfig {
	return &ClientConfig{
		URL:               url,
		HandshakeTimeout:  10 * time.Second,
		ReconnectInterval: 500 * time.Millisecond,
		MaxReconnectTries: 5,
		EnableCompression: true,
	}
}

// Client 面试流客户端
// 连接一个通道端点（遥测或编码），断线按指数退避自动重连
type Client struct {
	config *ClientConfig

	connMu sync.Mutex
	conn   *websocket.Conn

	state atomic.Int32

	handlerMu       sync.RWMutex
	feedbackHandler FeedbackHandler
	stateHandler    StateChangeHandler

	closeCh   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New 创建客户端
func New(config *ClientConfig) *Client {
	return &Client{
		config:  config,
		closeCh: make(chan struct{}),
	}
}

// SetFeedbackHandler 设置下行消息处理器
func (c *Client) SetFeedbackHandler(h FeedbackHandler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.feedbackHandler = h
}

// SetStateChangeHandler 设置状态变化处理器
func (c *Client) SetStateChangeHandler(h StateChangeHandler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.stateHandler = h
}

// State 当前连接状态
func (c *Client) State() ClientState {
	return ClientState(c.state.Load())
}

func (c *Client) setState(newState ClientState) {
	oldState := ClientState(c.state.Swap(int32(newState)))
	if oldState == newState {
		return
	}

	c.handlerMu.RLock()
	handler := c.stateHandler
	c.handlerMu.RUnlock()
	if handler != nil {
		handler(oldState, newState)
	}
}

// Connect 建立连接并启动读循环
func (c *Client) Connect(ctx context.Context) error {
	c.setState(StateConnecting)

	if err := c.dial(ctx); err != nil {
		c.setState(StateDisconnected)
		return err
	}

	c.setState(StateConnected)

	c.wg.Add(1)
	go c.readLoop()

	return nil
}

// dial 按指数退避重试握手
func (c *Client) dial(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout:  c.config.HandshakeTimeout,
		EnableCompression: c.config.EnableCompression,
	}

	op := func() error {
		conn, _, err := dialer.DialContext(ctx, c.config.URL, nil)
		if err != nil {
			return fmt.Errorf("dial %s: %w", c.config.URL, err)
		}

		c.connMu.Lock()
		c.conn = conn
		c.connMu.Unlock()
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.config.ReconnectInterval
	return backoff.Retry(op, backoff.WithContext(
		backoff.WithMaxRetries(bo, c.config.MaxReconnectTries), ctx))
}

// readLoop 读循环：解码反馈消息并分发，断线时尝试重连
func (c *Client) readLoop() {
	defer c.wg.Done()

	log := logger.Module("wsclient")

	for {
		select {
		case <-c.closeCh:
			return
		default:
		}

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closeCh:
				return
			default:
			}

			log.Warnf("连接断开，尝试重连: %v", err)
			c.setState(StateReconnecting)

			ctx, cancel := context.WithTimeout(context.Background(), c.config.HandshakeTimeout)
			dialErr := c.dial(ctx)
			cancel()
			if dialErr != nil {
				log.Errorf("重连失败: %v", dialErr)
				c.setState(StateDisconnected)
				return
			}

			c.setState(StateConnected)
			continue
		}

		msg, err := protocol.Decode(raw)
		if err != nil {
			log.Warnf("反馈消息解码失败: %v", err)
			continue
		}

		c.handlerMu.RLock()
		handler := c.feedbackHandler
		c.handlerMu.RUnlock()
		if handler != nil {
			handler(msg)
		}
	}
}

// SendTelemetry 发送一块原始遥测数据（二进制帧）
func (c *Client) SendTelemetry(payload []byte) error {
	return c.write(websocket.BinaryMessage, payload)
}

// SendTelemetryBase64 按应用层base64约定发送遥测数据（文本帧）
func (c *Client) SendTelemetryBase64(payload []byte) error {
	encoded := base64.StdEncoding.EncodeToString(payload)
	return c.write(websocket.TextMessage, []byte(encoded))
}

// SendCode 提交一份代码
func (c *Client) SendCode(code, language string, tests []protocol.TestCase) error {
	req := &protocol.CodeExecutionRequest{
		Code:      code,
		Language:  language,
		TestCases: tests,
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal code submission: %w", err)
	}
	return c.write(websocket.TextMessage, data)
}

func (c *Client) write(messageType int, data []byte) error {
	if c.State() != StateConnected {
		return fmt.Errorf("client is not connected (state=%s)", c.State())
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("connection is nil")
	}

	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(messageType, data)
}

// Close 关闭客户端
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closeCh)
		c.setState(StateClosed)

		c.connMu.Lock()
		if c.conn != nil {
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closed"),
				time.Now().Add(time.Second))
			c.conn.Close()
		}
		c.connMu.Unlock()

		c.wg.Wait()
	})
}
