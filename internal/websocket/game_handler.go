package websocket

import (
	stderrors "errors"

	apperrors "github.com/wfunc/neon-reels/internal/errors"
	"github.com/wfunc/neon-reels/internal/game"
	"github.com/wfunc/neon-reels/internal/logger"
	"go.uber.org/zap"
)

// SessionStore 会话来源
type SessionStore interface {
	RemoveSession(sessionID string) error
}

// GameMessageHandler WebSocket游戏消息处理器
type GameMessageHandler struct {
	store  SessionStore
	logger *zap.Logger
}

// NewGameMessageHandler 创建游戏消息处理器
func NewGameMessageHandler(store SessionStore, logger *zap.Logger) *GameMessageHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GameMessageHandler{
		store:  store,
		logger: logger,
	}
}

// OnConnect 订阅会话并推送当前快照
func (h *GameMessageHandler) OnConnect(client *Client) {
	session := client.Session()
	if session == nil {
		return
	}

	client.SendMessage(MessageTypeConnected, ConnectedPayload{
		ClientID:  client.ID,
		SessionID: session.ID(),
		Owned:     client.Owned(),
	})

	// 回调在会话事件循环中执行，只做非阻塞投递
	client.setUnsubscribe(session.Subscribe(func(snap game.Snapshot) {
		if err := client.SendMessage(MessageTypeSnapshot, snap); err != nil && err != ErrClientNotFound {
			h.logger.Debug("推送快照失败",
				zap.String("client_id", client.ID),
				zap.Error(err))
		}
	}))
	h.sendSnapshot(client, session)
}

// OnDisconnect 取消订阅，销毁连接独占的会话
func (h *GameMessageHandler) OnDisconnect(client *Client) {
	session, owned := client.unbind()
	if session == nil || !owned {
		return
	}
	if err := h.store.RemoveSession(session.ID()); err != nil && !stderrors.Is(err, game.ErrSessionNotFound) {
		h.logger.Warn("销毁会话失败",
			zap.String("session_id", session.ID()),
			zap.Error(err))
	}
}

// HandleClientMessage 处理客户端消息
func (h *GameMessageHandler) HandleClientMessage(client *Client, data []byte) {
	msg, err := DecodeMessage(data)
	if err != nil {
		h.logger.Debug("解析消息失败",
			zap.String("client_id", client.ID),
			zap.Error(err))
		h.sendError(client, apperrors.Wrap(err, apperrors.ErrMessageFormat))
		return
	}
	logger.LogWebSocketMessage("receive", msg.Type, msg.Data)

	if msg.Type == MessageTypePong {
		return
	}

	session := client.Session()
	if session == nil {
		h.sendError(client, apperrors.New(apperrors.ErrSessionNotFound))
		return
	}

	switch msg.Type {
	case MessageTypeState:
		h.sendSnapshot(client, session)

	case MessageTypeSpin:
		var req SpinRequest
		if err := msg.Bind(&req); err != nil {
			h.sendError(client, apperrors.Wrapf(err, apperrors.ErrMessageFormat, "%s 消息数据无效", msg.Type))
			return
		}
		h.sendOutcome(client, session, MessageTypeSpin, session.Spin(req.Demo))

	case MessageTypeDemo:
		h.sendOutcome(client, session, MessageTypeDemo, session.HandleDemo())

	case MessageTypeSetBet:
		var req BetRequest
		if err := msg.Bind(&req); err != nil {
			h.sendError(client, apperrors.Wrapf(err, apperrors.ErrMessageFormat, "%s 消息数据无效", msg.Type))
			return
		}
		if req.Amount == nil {
			h.sendError(client, apperrors.New(apperrors.ErrInvalidParam, "amount 不能为空"))
			return
		}
		if err := session.Rules().ValidateBet(*req.Amount); err != nil {
			h.sendError(client, apperrors.FromGame(err))
			return
		}
		if err := session.SetBet(*req.Amount); err != nil {
			h.sendError(client, apperrors.FromGame(err))
			return
		}
		h.sendOutcome(client, session, MessageTypeSetBet, "")

	case MessageTypeReset:
		if err := session.Reset(); err != nil {
			h.sendError(client, apperrors.FromGame(err))
			return
		}
		h.sendOutcome(client, session, MessageTypeReset, "")

	default:
		h.logger.Debug("未知消息类型",
			zap.String("client_id", client.ID),
			zap.String("type", msg.Type))
		h.sendError(client, apperrors.Newf(apperrors.ErrUnknownMessage, "类型 %q", msg.Type))
	}
}

// sendSnapshot 推送当前快照
func (h *GameMessageHandler) sendSnapshot(client *Client, session *game.Session) {
	snap, err := session.Snapshot()
	if err != nil {
		h.sendError(client, apperrors.FromGame(err))
		return
	}
	client.SendMessage(MessageTypeSnapshot, snap)
}

// sendOutcome 回复操作结果
func (h *GameMessageHandler) sendOutcome(client *Client, session *game.Session, action string, outcome game.SpinOutcome) {
	if outcome == game.OutcomeClosed {
		h.sendError(client, apperrors.New(apperrors.ErrSessionClosed))
		return
	}
	logger.LogGameEvent(action, session.ID(), map[string]interface{}{
		"outcome": outcome,
		"client":  client.ID,
	})
	client.SendMessage(MessageTypeOutcome, OutcomePayload{Action: action, Outcome: outcome})
}

// sendError 发送错误消息
func (h *GameMessageHandler) sendError(client *Client, appErr *apperrors.AppError) {
	client.SendMessage(MessageTypeError, ErrorPayload{
		Code:    int(appErr.Code),
		Message: appErr.Message,
		Details: appErr.Details,
	})
}
