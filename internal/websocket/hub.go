package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wfunc/neon-reels/internal/game"
	"github.com/wfunc/neon-reels/internal/logger"
	"go.uber.org/zap"
)

// MessageHandler 客户端消息处理器
type MessageHandler interface {
	// OnConnect 在客户端注册后调用
	OnConnect(client *Client)

	// HandleClientMessage 在读协程中调用
	HandleClientMessage(client *Client, data []byte)

	// OnDisconnect 在客户端注销后调用
	OnDisconnect(client *Client)
}

// Options 连接参数
type Options struct {
	PingInterval   time.Duration // 应用层 ping 周期
	PongTimeout    time.Duration // 读超时
	WriteTimeout   time.Duration
	MaxMessageSize int64
	SendBufferSize int
}

// DefaultOptions 默认连接参数
func DefaultOptions() Options {
	return Options{
		PingInterval:   30 * time.Second,
		PongTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxMessageSize: 8192,
		SendBufferSize: 256,
	}
}

// Hub WebSocket连接管理中心
type Hub struct {
	// 客户端连接池
	clients   map[string]*Client
	clientsMu sync.RWMutex

	// 消息广播通道
	broadcast chan *Message

	// 注册/注销通道
	register   chan *Client
	unregister chan *Client

	handler MessageHandler
	opts    Options
	done    chan struct{}
	logger  *zap.Logger
}

// NewHub 创建Hub
func NewHub(handler MessageHandler, opts Options, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.SendBufferSize <= 0 {
		opts.SendBufferSize = DefaultOptions().SendBufferSize
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = DefaultOptions().PongTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultOptions().WriteTimeout
	}
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		handler:    handler,
		opts:       opts,
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run 运行Hub，直到 ctx 结束
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	if h.opts.PingInterval > 0 {
		go h.heartbeat(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// heartbeat 周期性向所有客户端广播 ping
func (h *Hub) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ping, err := NewMessage(MessageTypePing, "", nil)
			if err != nil {
				h.logger.Error("创建心跳消息失败", zap.Error(err))
				continue
			}
			h.Broadcast(ping)
		}
	}
}

// Serve 接管一个已升级的连接
// owned 为 true 时会话随连接关闭而销毁
func (h *Hub) Serve(conn *websocket.Conn, session *game.Session, owned bool) (*Client, error) {
	client := newClient(h, conn, session, owned)
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return nil, ErrHubStopped
	}

	go client.WritePump()
	go client.ReadPump()
	return client, nil
}

// registerClient 注册客户端
func (h *Hub) registerClient(client *Client) {
	h.clientsMu.Lock()
	h.clients[client.ID] = client
	total := len(h.clients)
	h.clientsMu.Unlock()

	h.logger.Info("WebSocket客户端连接",
		zap.String("client_id", client.ID),
		zap.String("session_id", client.SessionID()),
		zap.Int("online", total))

	if h.handler != nil {
		h.handler.OnConnect(client)
	}
}

// unregisterClient 注销客户端
func (h *Hub) unregisterClient(client *Client) {
	h.clientsMu.Lock()
	_, ok := h.clients[client.ID]
	if ok {
		delete(h.clients, client.ID)
		close(client.send)
	}
	h.clientsMu.Unlock()

	if !ok {
		return
	}

	h.logger.Info("WebSocket客户端断开",
		zap.String("client_id", client.ID),
		zap.String("session_id", client.SessionID()))

	if h.handler != nil {
		h.handler.OnDisconnect(client)
	}
}

// shutdown 关闭所有连接
func (h *Hub) shutdown() {
	h.clientsMu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for id, client := range h.clients {
		delete(h.clients, id)
		close(client.send)
		clients = append(clients, client)
	}
	h.clientsMu.Unlock()

	for _, client := range clients {
		if h.handler != nil {
			h.handler.OnDisconnect(client)
		}
	}
	h.logger.Info("WebSocket连接中心已停止", zap.Int("closed", len(clients)))
}

// broadcastMessage 广播消息
func (h *Hub) broadcastMessage(message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("序列化消息失败", zap.Error(err))
		return
	}

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.send <- data:
		default:
			h.logger.Warn("客户端发送缓冲区满",
				zap.String("client_id", client.ID))
		}
	}
}

// SendToClient 发送消息给指定客户端
func (h *Hub) SendToClient(clientID string, message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	logger.LogWebSocketMessage("send", message.Type, message.SessionID)

	// 持有读锁发送，避免与注销时关闭通道竞争
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	client, ok := h.clients[clientID]
	if !ok {
		return ErrClientNotFound
	}

	select {
	case client.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// GetOnlineCount 获取在线连接数
func (h *Hub) GetOnlineCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Broadcast 广播消息（公开方法）
func (h *Hub) Broadcast(message *Message) {
	select {
	case h.broadcast <- message:
	case <-h.done:
	}
}

// Unregister 注销客户端（公开方法）
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
