package game

import (
	"errors"
	"time"

	"github.com/wfunc/neon-reels/internal/game/reel"
	"github.com/wfunc/neon-reels/internal/game/slot"
)

var (
	ErrSessionClosed   = errors.New("会话已关闭")
	ErrSessionNotFound = errors.New("会话不存在")
	ErrSessionExists   = errors.New("会话已存在")
	ErrSessionLimit    = errors.New("会话数量已达上限")
	ErrInvalidRules    = errors.New("无效的会话规则")
	ErrInvalidBet      = errors.New("下注金额无效")
)

// SpinOutcome 旋转请求的结果
type SpinOutcome string

const (
	OutcomeStarted  SpinOutcome = "started"  // 已开始
	OutcomeIgnored  SpinOutcome = "ignored"  // 正在旋转，忽略
	OutcomeRejected SpinOutcome = "rejected" // 余额不足，拒绝
	OutcomeClosed   SpinOutcome = "closed"   // 会话已关闭
)

// EventKind 快照对应的事件
type EventKind string

const (
	EventKindState        EventKind = "state"         // 主动查询
	EventKindSpinStarted  EventKind = "spin_started"  // 开始旋转
	EventKindReelRedrawn  EventKind = "reel_redrawn"  // 卷轴刷新
	EventKindReelStopped  EventKind = "reel_stopped"  // 单个卷轴停轮
	EventKindSpinSettled  EventKind = "spin_settled"  // 本轮结算
	EventKindSpinRejected EventKind = "spin_rejected" // 余额不足
	EventKindBetChanged   EventKind = "bet_changed"   // 下注变更
	EventKindReset        EventKind = "reset"         // 会话重置
	EventKindCancelled    EventKind = "cancelled"     // 本轮被取消
)

// HistoryEntry 历史记录（最新在前）
type HistoryEntry struct {
	SpinID  uint64          `json:"spin_id"`
	Bet     int64           `json:"bet"`
	Demo    bool            `json:"demo"`
	Result  slot.SpinResult `json:"result"`
	Payline []slot.SymbolID `json:"payline"`
	At      time.Time       `json:"at"`
}

// Statistics 会话统计
type Statistics struct {
	TotalSpins int     `json:"total_spins"`
	DemoSpins  int     `json:"demo_spins"`
	Wins       int     `json:"wins"`
	TotalBet   int64   `json:"total_bet"`
	TotalWin   int64   `json:"total_win"`
	BiggestWin int64   `json:"biggest_win"`
	Subsidies  int64   `json:"subsidies"`
	RTP        float64 `json:"rtp"` // 实际返还率（百分比）
}

// record 记录一次结算
func (st *Statistics) record(bet int64, result slot.SpinResult, demo bool) {
	st.TotalSpins++
	if demo {
		st.DemoSpins++
	}
	if result.IsWin() {
		st.Wins++
	}
	st.TotalBet += bet
	st.TotalWin += result.WinAmount
	if result.WinAmount > st.BiggestWin {
		st.BiggestWin = result.WinAmount
	}
	st.RTP = slot.RTPPercent(st.TotalWin, st.TotalBet)
}

// ReelView 卷轴视图
type ReelView struct {
	reel.View
	Winning bool `json:"winning"` // 支付线格子是否属于中奖符号
}

// Snapshot 会话的不可变快照
type Snapshot struct {
	SessionID           string         `json:"session_id"`
	Version             uint64         `json:"version"`
	Event               EventKind      `json:"event"`
	State               GameState      `json:"state"`
	Balance             int64          `json:"balance"`
	Bet                 int64          `json:"bet"`
	LastWin             int64          `json:"last_win"`
	Status              slot.Message   `json:"status"`
	IsSpinning          bool           `json:"is_spinning"`
	IsDemo              bool           `json:"is_demo"`
	HighlightedSymbolID slot.SymbolID  `json:"highlighted_symbol_id,omitempty"`
	History             []HistoryEntry `json:"history"`
	DemoChainRemaining  int            `json:"demo_chain_remaining"`
	Reels               []ReelView     `json:"reels"`
	Statistics          Statistics     `json:"statistics"`
	AdvertisedRTP       float64        `json:"advertised_rtp"`
	Timestamp           time.Time      `json:"timestamp"`
}

// SessionInfo 会话摘要
type SessionInfo struct {
	SessionID    string     `json:"session_id"`
	State        GameState  `json:"state"`
	Balance      int64      `json:"balance"`
	Bet          int64      `json:"bet"`
	Statistics   Statistics `json:"statistics"`
	CreatedAt    time.Time  `json:"created_at"`
	LastActivity time.Time  `json:"last_activity"`
}
