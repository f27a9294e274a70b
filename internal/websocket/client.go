package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/wfunc/neon-reels/internal/game"
	"go.uber.org/zap"
)

// Client WebSocket客户端
type Client struct {
	ID   string          // 客户端ID
	hub  *Hub            // Hub引用
	conn *websocket.Conn // WebSocket连接
	send chan []byte     // 发送通道

	mu          sync.RWMutex
	sessionID   string        // 游戏会话ID
	session     *game.Session // 绑定的会话
	owned       bool          // 会话由本连接创建
	unsubscribe func()

	closeOnce sync.Once
}

// newClient 创建新客户端
func newClient(hub *Hub, conn *websocket.Conn, session *game.Session, owned bool) *Client {
	return &Client{
		ID:        uuid.New().String(),
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, hub.opts.SendBufferSize),
		sessionID: session.ID(),
		session:   session,
		owned:     owned,
	}
}

// SessionID 绑定的会话ID
func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// Owned 会话是否由本连接创建
func (c *Client) Owned() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.owned
}

// setUnsubscribe 记录取消订阅函数
func (c *Client) setUnsubscribe(unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribe = unsubscribe
}

// unbind 解除绑定，返回之前绑定的会话
func (c *Client) unbind() (*game.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	session, owned := c.session, c.owned
	c.session = nil
	c.owned = false
	return session, owned
}

// Session 当前绑定的会话
func (c *Client) Session() *game.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// ReadPump 读取消息
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
	}()

	pongWait := c.hub.opts.PongTimeout
	if c.hub.opts.MaxMessageSize > 0 {
		c.conn.SetReadLimit(c.hub.opts.MaxMessageSize)
	}
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("WebSocket读取错误",
					zap.String("client_id", c.ID),
					zap.Error(err))
			}
			break
		}
		// 任何消息都说明连接存活
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if c.hub.handler != nil {
			c.hub.handler.HandleClientMessage(c, message)
		}
	}
}

// WritePump 写入消息，每条消息单独一帧
func (c *Client) WritePump() {
	pingPeriod := (c.hub.opts.PongTimeout * 9) / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	writeWait := c.hub.opts.WriteTimeout
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub关闭了通道
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage 发送消息给客户端
func (c *Client) SendMessage(msgType string, data interface{}) error {
	msg, err := NewMessage(msgType, c.SessionID(), data)
	if err != nil {
		return err
	}
	return c.hub.SendToClient(c.ID, msg)
}

// Close 关闭底层连接，读协程随之退出并注销客户端
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.conn.Close()
	})
}
