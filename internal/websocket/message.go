package websocket

import (
	stdjson "encoding/json"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/wfunc/neon-reels/internal/game"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// 错误定义
var (
	ErrClientNotFound = errors.New("客户端未找到")
	ErrSendBufferFull = errors.New("发送缓冲区已满")
	ErrInvalidMessage = errors.New("无效的消息格式")
	ErrHubStopped     = errors.New("连接中心已停止")
)

// MessageType 消息类型
const (
	// 服务端 -> 客户端
	MessageTypeConnected = "connected"
	MessageTypeSnapshot  = "snapshot"
	MessageTypeOutcome   = "outcome"
	MessageTypeError     = "error"
	MessageTypePing      = "ping"

	// 客户端 -> 服务端
	MessageTypeSpin   = "spin"
	MessageTypeDemo   = "demo"
	MessageTypeSetBet = "set_bet"
	MessageTypeState  = "state"
	MessageTypeReset  = "reset"
	MessageTypePong   = "pong"
)

// Message WebSocket消息信封
type Message struct {
	Type      string             `json:"type"`                 // 消息类型
	SessionID string             `json:"session_id,omitempty"` // 游戏会话ID
	Data      stdjson.RawMessage `json:"data,omitempty"`       // 消息数据
	Timestamp int64              `json:"timestamp"`            // 毫秒时间戳
}

// NewMessage 创建消息
func NewMessage(msgType, sessionID string, data interface{}) (*Message, error) {
	msg := &Message{
		Type:      msgType,
		SessionID: sessionID,
		Timestamp: time.Now().UnixMilli(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		msg.Data = raw
	}
	return msg, nil
}

// DecodeMessage 解析客户端消息
func DecodeMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.Join(ErrInvalidMessage, err)
	}
	if msg.Type == "" {
		return nil, errors.Join(ErrInvalidMessage, errors.New("消息类型不能为空"))
	}
	return &msg, nil
}

// Bind 解析消息数据，空数据保持零值
func (m *Message) Bind(v interface{}) error {
	if len(m.Data) == 0 || string(m.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return errors.Join(ErrInvalidMessage, err)
	}
	return nil
}

// SpinRequest 旋转请求
type SpinRequest struct {
	Demo bool `json:"demo"`
}

// BetRequest 下注请求
type BetRequest struct {
	Amount *int64 `json:"amount"`
}

// ConnectedPayload 连接成功
type ConnectedPayload struct {
	ClientID  string `json:"client_id"`
	SessionID string `json:"session_id"`
	Owned     bool   `json:"owned"` // 会话随连接关闭而销毁
}

// OutcomePayload 操作结果
type OutcomePayload struct {
	Action  string           `json:"action"`
	Outcome game.SpinOutcome `json:"outcome,omitempty"`
}

// ErrorPayload 错误
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}
