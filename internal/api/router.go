package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/wfunc/neon-reels/internal/errors"
	"github.com/wfunc/neon-reels/internal/game"
	"github.com/wfunc/neon-reels/internal/middleware"
	ws "github.com/wfunc/neon-reels/internal/websocket"
	"go.uber.org/zap"
)

// Options 路由参数
type Options struct {
	Mode              string // gin 运行模式
	WebSocketPath     string
	ReadBufferSize    int
	WriteBufferSize   int
	EnableCompression bool
}

// Router API路由器
type Router struct {
	engine    *gin.Engine
	manager   *game.SessionManager
	hub       *ws.Hub
	sessions  *SessionHandler
	websocket *WebSocketHandler
	opts      Options
	log       *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(manager *game.SessionManager, hub *ws.Hub, opts Options, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Mode != "" {
		gin.SetMode(opts.Mode)
	}
	if opts.WebSocketPath == "" {
		opts.WebSocketPath = "/ws"
	}

	engine := gin.New()

	// 全局中间件
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Recovery())
	engine.Use(middleware.RequestLogger())

	router := &Router{
		engine:    engine,
		manager:   manager,
		hub:       hub,
		sessions:  NewSessionHandler(manager, log),
		websocket: NewWebSocketHandler(manager, hub, opts, log),
		opts:      opts,
		log:       log,
	}

	router.setupRoutes()
	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	r.engine.GET("/health", r.healthCheck)

	v1 := r.engine.Group("/api/v1")
	{
		v1.GET("/catalog", r.sessions.Catalog)

		sessions := v1.Group("/sessions")
		{
			sessions.GET("", r.sessions.List)
			sessions.POST("", r.sessions.Create)
			sessions.GET("/:id", r.sessions.Get)
			sessions.DELETE("/:id", r.sessions.Delete)
			sessions.POST("/:id/spin", r.sessions.Spin)
			sessions.POST("/:id/demo", r.sessions.Demo)
			sessions.PUT("/:id/bet", r.sessions.SetBet)
			sessions.POST("/:id/reset", r.sessions.Reset)
		}
	}

	r.engine.GET(r.opts.WebSocketPath, r.websocket.GameWebSocket)

	r.engine.NoRoute(func(c *gin.Context) {
		respondError(c, apperrors.Newf(apperrors.ErrNotFound, "接口不存在: %s %s", c.Request.Method, c.Request.URL.Path))
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "healthy",
		"message":         "服务运行正常",
		"active_sessions": r.manager.GetActiveSessions(),
		"online":          r.hub.GetOnlineCount(),
	})
}

// Handler 返回 http.Handler
func (r *Router) Handler() http.Handler {
	return r.engine
}

// GetEngine 获取Gin引擎（用于测试）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

// retryAfterSeconds 可重试错误建议的等待秒数
const retryAfterSeconds = "1"

// respondError 统一错误响应
func respondError(c *gin.Context, err error) {
	appErr := apperrors.FromGame(err)
	appErr.Stack = nil
	if apperrors.IsRetryable(appErr) {
		c.Header("Retry-After", retryAfterSeconds)
	}
	c.AbortWithStatusJSON(appErr.HTTPStatus(), apperrors.NewErrorResponse(appErr, middleware.GetRequestID(c)))
}
