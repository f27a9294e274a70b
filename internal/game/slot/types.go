package slot

import (
	"github.com/shopspring/decimal"
)

// SymbolID 符号标识
type SymbolID string

// Symbol 符号目录条目（不可变）
type Symbol struct {
	ID         SymbolID        `json:"id"`         // 唯一键
	Label      string          `json:"label"`      // 显示名称
	Icon       string          `json:"icon"`       // 图标
	Weight     float64         `json:"weight"`     // 相对抽取权重
	Multiplier decimal.Decimal `json:"multiplier"` // 赔付倍率
}

// Row 单个卷轴上显示的一列符号（自上而下）
type Row []Symbol

// Grid 完整网格，grid[reel][row]
type Grid []Row

// Payline 返回中间行（支付线）上的符号，空卷轴不参与
func (g Grid) Payline() []Symbol {
	line := make([]Symbol, 0, len(g))
	for _, reel := range g {
		if len(reel) == 0 {
			continue
		}
		line = append(line, reel[len(reel)/2])
	}
	return line
}

// IDs 返回符号ID序列
func (r Row) IDs() []SymbolID {
	ids := make([]SymbolID, len(r))
	for i, s := range r {
		ids[i] = s.ID
	}
	return ids
}

// MessageCategory 结果消息类别
type MessageCategory string

const (
	CategoryReady             MessageCategory = "ready"              // 待机
	CategorySpinning          MessageCategory = "spinning"           // 转动中
	CategoryDemoSpinning      MessageCategory = "demo_spinning"      // 演示转动中
	CategoryInsufficientFunds MessageCategory = "insufficient_funds" // 余额不足
	CategoryNearMiss          MessageCategory = "near_miss"          // 差一点
	CategoryWinningLine       MessageCategory = "winning_line"       // 普通中奖
	CategoryLegendary         MessageCategory = "legendary"          // 传奇七
	CategoryMegaJackpot       MessageCategory = "mega_jackpot"       // 超级Wild大奖
)

// Message 状态消息（类别 + 强度描述）
type Message struct {
	Category MessageCategory `json:"category"`
	Text     string          `json:"text"`
	Streak   int             `json:"streak,omitempty"`
	SymbolID SymbolID        `json:"symbol_id,omitempty"`
}

// SpinResult 单次旋转的结算结果
type SpinResult struct {
	WinAmount           int64    `json:"win_amount"`                      // 中奖金额（已取整）
	Message             Message  `json:"message"`                         // 结果消息
	HighlightedSymbolID SymbolID `json:"highlighted_symbol_id,omitempty"` // 中奖符号，未中奖为空
	MatchStreak         int      `json:"match_streak"`                    // 支付线上最佳符号数量
}

// IsWin 是否中奖
func (r SpinResult) IsWin() bool {
	return r.HighlightedSymbolID != ""
}

// RandomSource 随机数来源
type RandomSource interface {
	// Float64 返回 [0,1) 内的均匀随机数
	Float64() float64

	// IntN 返回 [0,n) 内的均匀随机整数
	IntN(n int) int
}
