package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	apperrors "github.com/wfunc/neon-reels/internal/errors"
	"github.com/wfunc/neon-reels/internal/game"
	"github.com/wfunc/neon-reels/internal/game/slot"
	"github.com/wfunc/neon-reels/internal/logger"
	"go.uber.org/zap"
)

// SessionHandler 老虎机会话处理器
type SessionHandler struct {
	manager *game.SessionManager
	logger  *zap.Logger
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(manager *game.SessionManager, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		manager: manager,
		logger:  logger,
	}
}

// CreateRequest 创建会话请求
type CreateRequest struct {
	SessionID string `json:"session_id"`
}

// SpinRequest 转动请求
type SpinRequest struct {
	Demo bool `json:"demo"`
}

// BetRequest 修改下注请求
type BetRequest struct {
	Amount *int64 `json:"amount" binding:"required"`
}

// SessionResponse 会话响应
type SessionResponse struct {
	SessionID string        `json:"session_id"`
	Snapshot  game.Snapshot `json:"snapshot"`
}

// ActionResponse 操作响应
type ActionResponse struct {
	Outcome  game.SpinOutcome `json:"outcome,omitempty"`
	Snapshot game.Snapshot    `json:"snapshot"`
}

// SymbolInfo 符号目录条目
type SymbolInfo struct {
	ID          slot.SymbolID   `json:"id"`
	Label       string          `json:"label"`
	Icon        string          `json:"icon"`
	Weight      float64         `json:"weight"`
	Probability float64         `json:"probability"`
	Multiplier  decimal.Decimal `json:"multiplier"`
}

// BetLimits 下注限制
type BetLimits struct {
	Min       int64   `json:"min"`
	Max       int64   `json:"max"`
	Step      int64   `json:"step"`
	Default   int64   `json:"default"`
	QuickBets []int64 `json:"quick_bets"`
}

// CatalogResponse 老虎机目录
type CatalogResponse struct {
	Reels             int                     `json:"reels"`
	Rows              int                     `json:"rows"`
	Symbols           []SymbolInfo            `json:"symbols"`
	StreakMultipliers map[int]decimal.Decimal `json:"streak_multipliers"`
	WildSymbol        slot.SymbolID           `json:"wild_symbol"`
	SevenSymbol       slot.SymbolID           `json:"seven_symbol"`
	AdvertisedRTP     float64                 `json:"advertised_rtp"`
	InitialBalance    int64                   `json:"initial_balance"`
	Bet               BetLimits               `json:"bet"`
}

// Catalog 符号目录、倍率表与下注限制
func (h *SessionHandler) Catalog(c *gin.Context) {
	cfg := h.manager.SlotConfig()
	rules := h.manager.Rules()

	symbols := make([]SymbolInfo, 0, cfg.Catalog.Len())
	for _, s := range cfg.Catalog.Symbols() {
		symbols = append(symbols, SymbolInfo{
			ID:          s.ID,
			Label:       s.Label,
			Icon:        s.Icon,
			Weight:      s.Weight,
			Probability: cfg.Catalog.Probability(s.ID),
			Multiplier:  s.Multiplier,
		})
	}

	c.JSON(http.StatusOK, CatalogResponse{
		Reels:             cfg.Reels,
		Rows:              cfg.Rows,
		Symbols:           symbols,
		StreakMultipliers: cfg.StreakMultipliers,
		WildSymbol:        cfg.WildSymbol,
		SevenSymbol:       cfg.SevenSymbol,
		AdvertisedRTP:     cfg.AdvertisedRTP,
		InitialBalance:    rules.InitialBalance,
		Bet: BetLimits{
			Min:       rules.MinBet,
			Max:       rules.MaxBet,
			Step:      rules.BetStep,
			Default:   rules.DefaultBet,
			QuickBets: rules.QuickBets,
		},
	})
}

// List 会话列表
func (h *SessionHandler) List(c *gin.Context) {
	sessions := h.manager.ListSessions()
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

// Create 创建会话，session_id 为空时自动生成
func (h *SessionHandler) Create(c *gin.Context) {
	var req CreateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, apperrors.Wrap(err, apperrors.ErrInvalidParam))
			return
		}
	}

	session, err := h.manager.CreateSession(req.SessionID)
	if err != nil {
		h.logger.Warn("创建会话失败", zap.String("session_id", req.SessionID), zap.Error(err))
		respondError(c, err)
		return
	}
	snap, err := session.Snapshot()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, SessionResponse{SessionID: session.ID(), Snapshot: snap})
}

// Get 会话快照
func (h *SessionHandler) Get(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	h.respondSnapshot(c, session, "")
}

// Delete 销毁会话
func (h *SessionHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.manager.RemoveSession(id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": id,
		"removed":    true,
	})
}

// Spin 转动
func (h *SessionHandler) Spin(c *gin.Context) {
	var req SpinRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, apperrors.Wrap(err, apperrors.ErrInvalidParam))
			return
		}
	}
	session, ok := h.session(c)
	if !ok {
		return
	}
	h.respondOutcome(c, session, "spin", session.Spin(req.Demo))
}

// Demo 演示按钮
func (h *SessionHandler) Demo(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	h.respondOutcome(c, session, "demo", session.HandleDemo())
}

// SetBet 修改下注，校验范围与步长
func (h *SessionHandler) SetBet(c *gin.Context) {
	var req BetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.ErrInvalidParam))
		return
	}
	session, ok := h.session(c)
	if !ok {
		return
	}
	if err := session.Rules().ValidateBet(*req.Amount); err != nil {
		respondError(c, err)
		return
	}
	if err := session.SetBet(*req.Amount); err != nil {
		respondError(c, err)
		return
	}
	h.respondSnapshot(c, session, "")
}

// Reset 重置会话
func (h *SessionHandler) Reset(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	if err := session.Reset(); err != nil {
		respondError(c, err)
		return
	}
	logger.LogGameEvent("reset", session.ID(), nil)
	h.respondSnapshot(c, session, "")
}

// session 按路径参数查找会话
func (h *SessionHandler) session(c *gin.Context) (*game.Session, bool) {
	session, err := h.manager.GetSession(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return session, true
}

// respondOutcome 回复转动结果
func (h *SessionHandler) respondOutcome(c *gin.Context, session *game.Session, action string, outcome game.SpinOutcome) {
	if outcome == game.OutcomeClosed {
		respondError(c, game.ErrSessionClosed)
		return
	}
	logger.LogGameEvent(action, session.ID(), map[string]interface{}{
		"outcome": outcome,
	})
	h.respondSnapshot(c, session, outcome)
}

// respondSnapshot 回复当前快照
func (h *SessionHandler) respondSnapshot(c *gin.Context, session *game.Session, outcome game.SpinOutcome) {
	snap, err := session.Snapshot()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ActionResponse{Outcome: outcome, Snapshot: snap})
}
