package slot

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidConfig     = errors.New("无效的配置")
	ErrInvalidReels      = errors.New("卷轴数至少为3")
	ErrInvalidRows       = errors.New("行数必须为正数")
	ErrInvalidStreak     = errors.New("连线倍率表无效")
	ErrSpecialNotInTable = errors.New("特殊符号不在目录中")
)

// MinWinStreak 支付线中奖所需的最少相同符号数
const MinWinStreak = 3

// SlotConfig 老虎机配置
type SlotConfig struct {
	Reels             int                     `json:"reels"`              // 卷轴数
	Rows              int                     `json:"rows"`               // 行数
	Catalog           *Catalog                `json:"-"`                  // 符号目录
	StreakMultipliers map[int]decimal.Decimal `json:"streak_multipliers"` // 连线数 -> 连线倍率
	WildSymbol        SymbolID                `json:"wild_symbol"`        // 超级大奖符号
	SevenSymbol       SymbolID                `json:"seven_symbol"`       // 传奇符号
	AdvertisedRTP     float64                 `json:"advertised_rtp"`     // 展示用RTP（百分比）
}

// GetDefaultConfig 获取默认配置（5×3 霓虹老虎机）
func GetDefaultConfig() *SlotConfig {
	return &SlotConfig{
		Reels:   5,
		Rows:    3,
		Catalog: DefaultCatalog(),
		StreakMultipliers: map[int]decimal.Decimal{
			3: decimal.RequireFromString("1.15"),
			4: decimal.RequireFromString("1.6"),
			5: decimal.RequireFromString("2.5"),
		},
		WildSymbol:    SymbolWild,
		SevenSymbol:   SymbolSeven,
		AdvertisedRTP: 97.1,
	}
}

// ValidateConfig 验证配置
func ValidateConfig(config *SlotConfig) error {
	if config == nil || config.Catalog == nil {
		return ErrInvalidConfig
	}
	if config.Reels < MinWinStreak {
		return ErrInvalidReels
	}
	if config.Rows <= 0 {
		return ErrInvalidRows
	}

	// 每个可中奖的连线数都必须有正的倍率，且倍率随连线数严格递增
	prev := decimal.Zero
	for streak := MinWinStreak; streak <= config.Reels; streak++ {
		m, ok := config.StreakMultipliers[streak]
		if !ok {
			return fmt.Errorf("%w: 缺少 %d 连倍率", ErrInvalidStreak, streak)
		}
		if !m.GreaterThan(prev) {
			return fmt.Errorf("%w: %d 连倍率必须大于 %s", ErrInvalidStreak, streak, prev)
		}
		prev = m
	}

	for _, id := range []SymbolID{config.WildSymbol, config.SevenSymbol} {
		if id != "" && !config.Catalog.Contains(id) {
			return fmt.Errorf("%w: %s", ErrSpecialNotInTable, id)
		}
	}

	return nil
}

// PaylineRow 支付线所在行（中间行）
func (c *SlotConfig) PaylineRow() int {
	return c.Rows / 2
}
