package api

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/wfunc/neon-reels/internal/game"
	ws "github.com/wfunc/neon-reels/internal/websocket"
	"go.uber.org/zap"
)

// WebSocketHandler WebSocket处理器
type WebSocketHandler struct {
	manager  *game.SessionManager
	hub      *ws.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(manager *game.SessionManager, hub *ws.Hub, opts Options, logger *zap.Logger) *WebSocketHandler {
	readSize, writeSize := opts.ReadBufferSize, opts.WriteBufferSize
	if readSize <= 0 {
		readSize = 1024
	}
	if writeSize <= 0 {
		writeSize = 1024
	}
	return &WebSocketHandler{
		manager: manager,
		hub:     hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    readSize,
			WriteBufferSize:   writeSize,
			EnableCompression: opts.EnableCompression,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger,
	}
}

// GameWebSocket 游戏WebSocket连接
// 携带 session_id 时加入已有会话，否则创建随连接销毁的会话
func (h *WebSocketHandler) GameWebSocket(c *gin.Context) {
	sessionID := c.Query("session_id")

	var (
		session *game.Session
		owned   bool
		err     error
	)
	if sessionID != "" {
		session, err = h.manager.GetSession(sessionID)
	} else {
		session, err = h.manager.CreateSession("")
		owned = true
	}
	if err != nil {
		h.logger.Warn("WebSocket会话不可用",
			zap.String("session_id", sessionID),
			zap.String("ip", c.ClientIP()),
			zap.Error(err))
		respondError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket升级失败",
			zap.String("session_id", session.ID()),
			zap.Error(err))
		h.release(session, owned)
		return
	}

	client, err := h.hub.Serve(conn, session, owned)
	if err != nil {
		h.logger.Warn("WebSocket接入失败",
			zap.String("session_id", session.ID()),
			zap.Error(err))
		h.release(session, owned)
		return
	}

	h.logger.Info("WebSocket连接建立",
		zap.String("client_id", client.ID),
		zap.String("session_id", session.ID()),
		zap.Bool("owned", owned))
}

// release 释放连接独占的会话
func (h *WebSocketHandler) release(session *game.Session, owned bool) {
	if !owned {
		return
	}
	if err := h.manager.RemoveSession(session.ID()); err != nil && !stderrors.Is(err, game.ErrSessionNotFound) {
		h.logger.Warn("释放会话失败", zap.String("session_id", session.ID()), zap.Error(err))
	}
}
